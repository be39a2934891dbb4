package coordinator

import (
	"context"
	"time"

	"github.com/DoyleJ11/crossword-backend/pkg/types"
)

// RoomKey identifies the broadcast scope of a session.
type RoomKey struct {
	Team   string
	Puzzle string
}

// Most frames a session may accumulate before its initial snapshot lands.
const maxPendingFrames = 256

type session struct {
	id     string
	room   RoomKey
	user   string
	cell   *types.Cell
	outbox chan<- []byte

	// Frames are held back until the solution snapshot has been pushed.
	ready   bool
	pending [][]byte
}

type job struct {
	op   string
	run  func(ctx context.Context) Msg
	fail func(err error) Msg // completion reported when run misses its deadline
}

// room is the secondary index entry for one (team, puzzle) pair. Persistence
// jobs for a room run one at a time in submission order.
type room struct {
	members map[string]*session
	queue   []job
	busy    bool
}

func newRoom() *room {
	return &room{members: make(map[string]*session)}
}

func (r *room) idle() bool {
	return len(r.members) == 0 && !r.busy && len(r.queue) == 0
}

func (c *Coordinator) roomFor(key RoomKey) *room {
	r := c.rooms[key]
	if r == nil {
		r = newRoom()
		c.rooms[key] = r
		c.metrics.rooms.Set(float64(len(c.rooms)))
	}
	return r
}

func (c *Coordinator) dropRoomIfIdle(key RoomKey) {
	if r := c.rooms[key]; r != nil && r.idle() {
		delete(c.rooms, key)
		c.metrics.rooms.Set(float64(len(c.rooms)))
	}
}

func (c *Coordinator) enqueue(key RoomKey, j job) {
	r := c.roomFor(key)
	r.queue = append(r.queue, j)
	c.startNext(key, r)
}

func (c *Coordinator) startNext(key RoomKey, r *room) {
	if r.busy || len(r.queue) == 0 {
		return
	}
	j := r.queue[0]
	r.queue[0] = job{}
	r.queue = r.queue[1:]
	r.busy = true

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		msg := c.runJob(j)
		select {
		case c.inbox <- msg:
		case <-c.ctx.Done():
		}
	}()
}

// runJob executes j on the bounded pool with a per-call deadline. A call that
// outlives the deadline is abandoned and reported through j.fail, whether or
// not the store honours ctx.
func (c *Coordinator) runJob(j job) Msg {
	if err := c.sem.Acquire(c.ctx, 1); err != nil {
		return j.fail(err)
	}
	defer c.sem.Release(1)

	ctx, cancel := context.WithTimeout(c.ctx, c.callTimeout)
	defer cancel()

	start := time.Now()
	result := make(chan Msg, 1)
	go func() { result <- j.run(ctx) }()

	select {
	case msg := <-result:
		c.metrics.persistDuration.WithLabelValues(j.op).Observe(time.Since(start).Seconds())
		return msg
	case <-ctx.Done():
		c.metrics.persistDuration.WithLabelValues(j.op).Observe(time.Since(start).Seconds())
		return j.fail(ctx.Err())
	}
}

// jobDone marks the room's in-flight job finished and starts the next one.
func (c *Coordinator) jobDone(key RoomKey) {
	r := c.rooms[key]
	if r == nil {
		return
	}
	r.busy = false
	c.startNext(key, r)
	c.dropRoomIfIdle(key)
}
