package coordinator

import "github.com/DoyleJ11/crossword-backend/pkg/types"

type Msg interface{ isCoordinatorMsg() }

// Connect registers a session. Reply (buffered) receives nil once the
// session is live, or ErrDuplicateSession.
type Connect struct {
	SessionID string
	Team      string
	Puzzle    string
	User      string
	Outbox    chan<- []byte // closed by the coordinator when the session is removed
	Reply     chan<- error
}

func (Connect) isCoordinatorMsg() {}

type Disconnect struct{ SessionID string }

func (Disconnect) isCoordinatorMsg() {}

type Move struct {
	SessionID string
	Items     []types.SolutionItem
}

func (Move) isCoordinatorMsg() {}

type CurrentCell struct {
	SessionID string
	X, Y      int
}

func (CurrentCell) isCoordinatorMsg() {}

type GetState struct {
	Reply chan View // buffered
}

func (GetState) isCoordinatorMsg() {}

type Shutdown struct{}

func (Shutdown) isCoordinatorMsg() {}

// Completions fed back by persistence workers.

type solutionLoaded struct {
	Room      RoomKey
	SessionID string
	Solution  string
	Err       error
}

func (solutionLoaded) isCoordinatorMsg() {}

type moveApplied struct {
	Room  RoomKey
	User  string
	Items []types.SolutionItem
	Err   error
}

func (moveApplied) isCoordinatorMsg() {}

type SessionView struct {
	ID     string
	Team   string
	Puzzle string
	User   string
	Cell   *types.Cell
}

type View struct {
	Sessions []SessionView // sorted by ID
	Rooms    int
}
