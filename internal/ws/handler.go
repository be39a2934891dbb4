package ws

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/DoyleJ11/crossword-backend/internal/coordinator"
	"github.com/DoyleJ11/crossword-backend/pkg/types"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Options struct {
	OutboxSize     int
	WriteTimeout   time.Duration
	PingInterval   time.Duration // 0 disables keepalive pings
	MaxFrameBytes  int64
	OriginPatterns []string // empty accepts any origin
}

func (o Options) withDefaults() Options {
	if o.OutboxSize < 1 {
		o.OutboxSize = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 3 * time.Second
	}
	return o
}

// Handler serves /move/{team}/{puzzle}/{user}. Each connection becomes one
// coordinator session for its lifetime.
func Handler(c *coordinator.Coordinator, opts Options, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		team := chi.URLParam(r, "team")
		puzzle := chi.URLParam(r, "puzzle")
		user := chi.URLParam(r, "user")
		if team == "" || puzzle == "" || user == "" {
			http.Error(w, "missing team, puzzle or user", http.StatusBadRequest)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns:     opts.OriginPatterns,
			InsecureSkipVerify: len(opts.OriginPatterns) == 0,
		})
		if err != nil {
			log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.CloseNow()
		if opts.MaxFrameBytes > 0 {
			conn.SetReadLimit(opts.MaxFrameBytes)
		}

		id := uuid.NewString()
		log := log.With(
			zap.String("session", id),
			zap.String("team", team),
			zap.String("puzzle", puzzle),
			zap.String("user", user),
		)

		out := make(chan []byte, opts.OutboxSize)
		reply := make(chan error, 1)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		err = c.Send(ctx, coordinator.Connect{
			SessionID: id,
			Team:      team,
			Puzzle:    puzzle,
			User:      user,
			Outbox:    out,
			Reply:     reply,
		})
		if err != nil {
			conn.Close(websocket.StatusTryAgainLater, "server unavailable")
			return
		}
		// Once queued, Connect is always answered unless the coordinator stops.
		select {
		case err := <-reply:
			if err != nil {
				log.Error("session rejected", zap.Error(err))
				conn.Close(websocket.StatusInternalError, "session rejected")
				return
			}
		case <-c.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		}
		defer func() { _ = c.Send(context.Background(), coordinator.Disconnect{SessionID: id}) }()

		// Writer goroutine
		go func() {
			defer cancel()
			for {
				select {
				case <-ctx.Done():
					return
				case frame, ok := <-out:
					if !ok {
						conn.Close(websocket.StatusGoingAway, "session closed")
						return
					}
					wctx, wcancel := context.WithTimeout(ctx, opts.WriteTimeout)
					err := conn.Write(wctx, websocket.MessageText, frame)
					wcancel()
					if err != nil {
						log.Debug("write failed", zap.Error(err))
						conn.CloseNow()
						return
					}
				}
			}
		}()

		if opts.PingInterval > 0 {
			go keepalive(ctx, cancel, conn, opts.PingInterval, log)
		}

		// Reader loop
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Debug("client closed")
				default:
					if ctx.Err() == nil {
						log.Debug("read failed", zap.Error(err))
					}
				}
				return
			}
			if typ != websocket.MessageText {
				log.Warn("dropping binary frame", zap.Int("bytes", len(data)))
				continue
			}

			cmd, err := toCommand(id, data)
			if err != nil {
				log.Warn("dropping malformed frame", zap.Int("bytes", len(data)), zap.Error(err))
				continue
			}
			if err := c.Send(ctx, cmd); err != nil {
				return
			}
		}
	}
}

func keepalive(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, every time.Duration, log *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, pcancel := context.WithTimeout(ctx, every)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					log.Debug("ping failed", zap.Error(err))
				}
				cancel()
				return
			}
		}
	}
}

func toCommand(sessionID string, data []byte) (coordinator.Msg, error) {
	f, err := types.DecodeClientFrame(data)
	if err != nil {
		return nil, err
	}

	switch f.Kind {
	case types.FrameMove:
		return coordinator.Move{SessionID: sessionID, Items: f.Items}, nil
	case types.FrameCursor:
		return coordinator.CurrentCell{SessionID: sessionID, X: f.Cursor.X, Y: f.Cursor.Y}, nil
	default:
		return nil, fmt.Errorf("unsupported frame kind %s", f.Kind)
	}
}
