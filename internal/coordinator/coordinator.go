// Package coordinator is the single authority over live sessions. One
// goroutine owns the session table and room index; connection handlers talk
// to it only through Send.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/DoyleJ11/crossword-backend/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	ErrDuplicateSession = errors.New("session id already registered")
	ErrClosed           = errors.New("coordinator closed")
)

// Persistence is the solution store the coordinator drives.
type Persistence interface {
	LoadSolution(ctx context.Context, team, puzzle string) (string, error)
	ApplyMove(ctx context.Context, items []types.SolutionItem, user, team, puzzle string) error
}

type options struct {
	log         *zap.Logger
	registerer  prometheus.Registerer
	workers     int64
	callTimeout time.Duration
	inboxSize   int
}

type Option func(*options)

func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithRegisterer exposes the coordinator's metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithWorkers bounds the number of concurrent persistence calls.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = int64(n)
		}
	}
}

// WithCallTimeout sets the deadline for each persistence call.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.callTimeout = d
		}
	}
}

func WithInboxSize(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.inboxSize = n
		}
	}
}

type Coordinator struct {
	inbox    chan Msg
	store    Persistence
	sessions map[string]*session
	rooms    map[RoomKey]*room

	sem         *semaphore.Weighted
	callTimeout time.Duration
	workers     sync.WaitGroup

	log     *zap.Logger
	metrics *metrics

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, store Persistence, opts ...Option) *Coordinator {
	o := options{
		log:         zap.NewNop(),
		registerer:  prometheus.NewRegistry(),
		workers:     8,
		callTimeout: 5 * time.Second,
		inboxSize:   256,
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(parent)
	c := &Coordinator{
		inbox:       make(chan Msg, o.inboxSize),
		store:       store,
		sessions:    make(map[string]*session),
		rooms:       make(map[RoomKey]*room),
		sem:         semaphore.NewWeighted(o.workers),
		callTimeout: o.callTimeout,
		log:         o.log,
		metrics:     newMetrics(o.registerer),
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	go c.loop()
	return c
}

// Send queues m for the command loop. It fails once the coordinator has
// stopped or ctx is done.
func (c *Coordinator) Send(ctx context.Context, m Msg) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.inbox <- m:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the command loop has exited.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Close stops the loop and waits for in-flight persistence calls.
func (c *Coordinator) Close() {
	c.cancel()
	<-c.done
	c.workers.Wait()
}

func (c *Coordinator) loop() {
	defer close(c.done)

	for {
		select {
		case <-c.ctx.Done():
			c.shutdown()
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Connect:
				c.connect(msg)
			case Disconnect:
				c.disconnect(msg.SessionID)
			case Move:
				c.move(msg)
			case CurrentCell:
				c.currentCell(msg)
			case solutionLoaded:
				c.solutionLoaded(msg)
			case moveApplied:
				c.moveApplied(msg)
			case GetState:
				msg.Reply <- c.view()
			case Shutdown:
				c.shutdown()
				return
			}
		}
	}
}

func (c *Coordinator) shutdown() {
	for id, s := range c.sessions {
		close(s.outbox)
		delete(c.sessions, id)
	}
	clear(c.rooms)
	c.metrics.sessions.Set(0)
	c.metrics.rooms.Set(0)
	c.cancel()
}

func (c *Coordinator) connect(msg Connect) {
	if _, exists := c.sessions[msg.SessionID]; exists {
		c.log.Error("duplicate session id", zap.String("session", msg.SessionID))
		reply(msg.Reply, ErrDuplicateSession)
		return
	}

	key := RoomKey{Team: msg.Team, Puzzle: msg.Puzzle}
	s := &session{
		id:     msg.SessionID,
		room:   key,
		user:   msg.User,
		outbox: msg.Outbox,
	}

	r := c.roomFor(key)
	// Cursor positions as of this instant; held until the solution is sent.
	for _, other := range r.members {
		if other.cell == nil {
			continue
		}
		frame, err := json.Marshal(types.CurrentCellUpdate{X: other.cell.X, Y: other.cell.Y, User: other.user})
		if err != nil {
			c.log.Warn("encode cursor snapshot", zap.String("session", other.id), zap.Error(err))
			continue
		}
		s.pending = append(s.pending, frame)
	}

	c.sessions[s.id] = s
	r.members[s.id] = s
	c.metrics.sessions.Set(float64(len(c.sessions)))
	reply(msg.Reply, nil)

	c.log.Info("session joined",
		zap.String("session", s.id),
		zap.String("team", key.Team),
		zap.String("puzzle", key.Puzzle),
		zap.String("user", s.user),
	)

	id := s.id
	c.enqueue(key, job{
		op: "load_solution",
		run: func(ctx context.Context) Msg {
			solution, err := c.store.LoadSolution(ctx, key.Team, key.Puzzle)
			return solutionLoaded{Room: key, SessionID: id, Solution: solution, Err: err}
		},
		fail: func(err error) Msg {
			return solutionLoaded{Room: key, SessionID: id, Err: err}
		},
	})
}

// reply must not block the loop; callers pass a buffered channel or none.
func reply(ch chan<- error, err error) {
	if ch == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

func (c *Coordinator) solutionLoaded(msg solutionLoaded) {
	defer c.jobDone(msg.Room)

	s := c.sessions[msg.SessionID]
	if s == nil {
		return
	}

	frame := []byte(msg.Solution)
	if msg.Err != nil {
		c.log.Warn("load solution failed",
			zap.String("session", s.id),
			zap.String("team", msg.Room.Team),
			zap.String("puzzle", msg.Room.Puzzle),
			zap.Error(msg.Err),
		)
		b, err := json.Marshal(types.NewErrorMessage(msg.Err.Error()))
		if err != nil {
			b = []byte(`{"type":"error","error":"failed to load solution"}`)
		}
		frame = b
	}

	s.ready = true
	if !c.deliver(s, frame) {
		return
	}
	pending := s.pending
	s.pending = nil
	for _, f := range pending {
		if !c.deliver(s, f) {
			return
		}
	}
}

func (c *Coordinator) disconnect(id string) {
	if _, ok := c.sessions[id]; !ok {
		return
	}
	c.remove(id)
	c.log.Info("session left", zap.String("session", id))
}

func (c *Coordinator) remove(id string) {
	s := c.sessions[id]
	if s == nil {
		return
	}
	delete(c.sessions, id)
	if r := c.rooms[s.room]; r != nil {
		delete(r.members, id)
	}
	close(s.outbox)
	c.metrics.sessions.Set(float64(len(c.sessions)))
	c.dropRoomIfIdle(s.room)
}

func (c *Coordinator) move(msg Move) {
	s := c.sessions[msg.SessionID]
	if s == nil {
		c.log.Debug("move from unknown session", zap.String("session", msg.SessionID))
		return
	}
	if len(msg.Items) == 0 {
		return
	}

	items := make([]types.SolutionItem, len(msg.Items))
	for i, it := range msg.Items {
		it.ModifiedBy = s.user
		items[i] = it
	}

	key, user := s.room, s.user
	c.enqueue(key, job{
		op: "apply_move",
		run: func(ctx context.Context) Msg {
			err := c.store.ApplyMove(ctx, items, user, key.Team, key.Puzzle)
			return moveApplied{Room: key, User: user, Items: items, Err: err}
		},
		fail: func(err error) Msg {
			return moveApplied{Room: key, User: user, Items: items, Err: err}
		},
	})
}

func (c *Coordinator) moveApplied(msg moveApplied) {
	defer c.jobDone(msg.Room)

	if msg.Err != nil {
		c.metrics.moves.WithLabelValues("rejected").Inc()
		c.log.Warn("move rejected by store",
			zap.String("team", msg.Room.Team),
			zap.String("puzzle", msg.Room.Puzzle),
			zap.String("user", msg.User),
			zap.Int("cells", len(msg.Items)),
			zap.Error(msg.Err),
		)
		return
	}
	c.metrics.moves.WithLabelValues("applied").Inc()
	c.broadcast(msg.Room, msg.Items)
}

func (c *Coordinator) currentCell(msg CurrentCell) {
	s := c.sessions[msg.SessionID]
	if s == nil {
		c.log.Debug("cursor from unknown session", zap.String("session", msg.SessionID))
		return
	}
	s.cell = &types.Cell{X: msg.X, Y: msg.Y}
	c.broadcast(s.room, types.CurrentCellUpdate{X: msg.X, Y: msg.Y, User: s.user})
}

func (c *Coordinator) broadcast(key RoomKey, v any) {
	r := c.rooms[key]
	if r == nil || len(r.members) == 0 {
		return
	}
	frame, err := json.Marshal(v)
	if err != nil {
		c.log.Error("encode broadcast", zap.String("team", key.Team), zap.String("puzzle", key.Puzzle), zap.Error(err))
		return
	}
	for _, s := range r.members {
		c.push(s, frame)
	}
}

// push delivers frame to s, or holds it if s has not received its snapshot.
func (c *Coordinator) push(s *session, frame []byte) {
	if s.ready {
		c.deliver(s, frame)
		return
	}
	if len(s.pending) >= maxPendingFrames {
		c.drop(s, "pending frames exceeded")
		return
	}
	s.pending = append(s.pending, frame)
}

// deliver queues frame without blocking. A full outbox removes the session.
func (c *Coordinator) deliver(s *session, frame []byte) bool {
	select {
	case s.outbox <- frame:
		return true
	default:
		c.drop(s, "outbox full")
		return false
	}
}

func (c *Coordinator) drop(s *session, reason string) {
	c.metrics.framesDropped.Inc()
	c.log.Warn("dropping slow session",
		zap.String("session", s.id),
		zap.String("user", s.user),
		zap.String("reason", reason),
	)
	c.remove(s.id)
}

func (c *Coordinator) view() View {
	v := View{Sessions: make([]SessionView, 0, len(c.sessions)), Rooms: len(c.rooms)}
	for _, s := range c.sessions {
		sv := SessionView{ID: s.id, Team: s.room.Team, Puzzle: s.room.Puzzle, User: s.user}
		if s.cell != nil {
			cell := *s.cell
			sv.Cell = &cell
		}
		v.Sessions = append(v.Sessions, sv)
	}
	sort.Slice(v.Sessions, func(i, j int) bool { return v.Sessions[i].ID < v.Sessions[j].ID })
	return v
}
