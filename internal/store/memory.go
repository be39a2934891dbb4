package store

import (
	"context"
	"sync"
	"time"

	"github.com/DoyleJ11/crossword-backend/pkg/types"
)

type roomKey struct{ team, puzzle string }

type cellKey struct{ x, y int }

// MemoryStore keeps solutions in process memory. Contents are lost on exit.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[roomKey]map[cellKey]SolutionCell
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[roomKey]map[cellKey]SolutionCell)}
}

func (s *MemoryStore) LoadSolution(ctx context.Context, team, puzzle string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	cells := s.rooms[roomKey{team, puzzle}]
	items := make([]types.SolutionItem, 0, len(cells))
	for _, c := range cells {
		items = append(items, c.item())
	}
	s.mu.Unlock()

	return types.MarshalSolution(items)
}

func (s *MemoryStore) ApplyMove(ctx context.Context, items []types.SolutionItem, user, team, puzzle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := roomKey{team, puzzle}
	room := s.rooms[key]
	if room == nil {
		room = make(map[cellKey]SolutionCell)
		s.rooms[key] = room
	}
	for _, c := range cellsFor(items, user, team, puzzle, time.Now().UTC()) {
		room[cellKey{c.X, c.Y}] = c
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }
