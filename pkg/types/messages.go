package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Client -> Server
// Move (untagged):
//   [{ x: number, y: number, value: string, modifiedBy: string }]
//   modifiedBy is ignored; the server stamps the sender's user.
//
// Cursor (untagged):
//   { x: number, y: number }
//
// Tagged forms, preferred by newer clients:
//   { type: "move", items: [...] }
//   { type: "cursor", x: number, y: number }

// Server -> Client
// Initial snapshot: solution JSON exactly as persisted, once per connect.
// Moves broadcast:  [{ x, y, value, modifiedBy }]
// Cursor broadcast: { x, y, user }
// Error:            { type: "error", error: string }

var (
	ErrEmptyFrame       = errors.New("empty frame")
	ErrUnknownFrame     = errors.New("unrecognised frame")
	ErrNegativeCoord    = errors.New("negative coordinate")
	ErrMissingCoord     = errors.New("cursor frame needs x and y")
	ErrUnknownFrameType = errors.New("unknown frame type")
)

type SolutionItem struct {
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Value      string `json:"value"`
	ModifiedBy string `json:"modifiedBy"`
}

type CurrentCellUpdate struct {
	X    int    `json:"x"`
	Y    int    `json:"y"`
	User string `json:"user"`
}

// Cell is a grid position.
type Cell struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type ErrorMessage struct {
	Type  string `json:"type"` // always "error"
	Error string `json:"error"`
}

func NewErrorMessage(msg string) ErrorMessage {
	return ErrorMessage{Type: "error", Error: msg}
}

type FrameKind int

const (
	FrameMove FrameKind = iota + 1
	FrameCursor
)

func (k FrameKind) String() string {
	switch k {
	case FrameMove:
		return "move"
	case FrameCursor:
		return "cursor"
	default:
		return "unknown"
	}
}

// ClientFrame is a decoded inbound text frame. Items is set for moves,
// Cursor for cursor reports.
type ClientFrame struct {
	Kind   FrameKind
	Items  []SolutionItem
	Cursor Cell
}

type envelope struct {
	Type  string          `json:"type"`
	Items json.RawMessage `json:"items"`
	X     *int            `json:"x"`
	Y     *int            `json:"y"`
}

// DecodeClientFrame accepts both the tagged and the shape-only wire forms.
func DecodeClientFrame(data []byte) (ClientFrame, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ClientFrame{}, ErrEmptyFrame
	}

	switch data[0] {
	case '[':
		return decodeMove(data)
	case '{':
	default:
		return ClientFrame{}, ErrUnknownFrame
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return ClientFrame{}, fmt.Errorf("decode frame: %w", err)
	}

	switch env.Type {
	case "move":
		if len(env.Items) == 0 {
			return ClientFrame{}, fmt.Errorf("move frame: %w", ErrEmptyFrame)
		}
		return decodeMove(env.Items)
	case "cursor", "":
		if env.X == nil || env.Y == nil {
			if env.Type == "" {
				return ClientFrame{}, ErrUnknownFrame
			}
			return ClientFrame{}, ErrMissingCoord
		}
		if *env.X < 0 || *env.Y < 0 {
			return ClientFrame{}, ErrNegativeCoord
		}
		return ClientFrame{Kind: FrameCursor, Cursor: Cell{X: *env.X, Y: *env.Y}}, nil
	default:
		return ClientFrame{}, fmt.Errorf("%w: %q", ErrUnknownFrameType, env.Type)
	}
}

func decodeMove(data []byte) (ClientFrame, error) {
	var items []SolutionItem
	if err := json.Unmarshal(data, &items); err != nil {
		return ClientFrame{}, fmt.Errorf("decode move: %w", err)
	}
	for _, it := range items {
		if it.X < 0 || it.Y < 0 {
			return ClientFrame{}, ErrNegativeCoord
		}
	}
	return ClientFrame{Kind: FrameMove, Items: items}, nil
}
