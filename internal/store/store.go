// Package store persists crossword solutions per team and puzzle.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/crossword-backend/pkg/types"
)

var ErrUnknownBackend = errors.New("unknown store backend")

// Store is the persistence contract the coordinator relies on.
type Store interface {
	LoadSolution(ctx context.Context, team, puzzle string) (string, error)
	ApplyMove(ctx context.Context, items []types.SolutionItem, user, team, puzzle string) error
	Close() error
}

// SolutionCell is one filled cell of a team's attempt at a puzzle.
type SolutionCell struct {
	Team       string `gorm:"primaryKey;size:128"`
	Puzzle     string `gorm:"primaryKey;size:128"`
	X          int    `gorm:"primaryKey;autoIncrement:false"`
	Y          int    `gorm:"primaryKey;autoIncrement:false"`
	Value      string `gorm:"size:16"`
	ModifiedBy string `gorm:"size:128"`
	UpdatedAt  time.Time
}

func (SolutionCell) TableName() string { return "solution_cells" }

func (c SolutionCell) item() types.SolutionItem {
	return types.SolutionItem{X: c.X, Y: c.Y, Value: c.Value, ModifiedBy: c.ModifiedBy}
}

func cellsFor(items []types.SolutionItem, user, team, puzzle string, now time.Time) []SolutionCell {
	cells := make([]SolutionCell, 0, len(items))
	for _, it := range items {
		cells = append(cells, SolutionCell{
			Team:       team,
			Puzzle:     puzzle,
			X:          it.X,
			Y:          it.Y,
			Value:      it.Value,
			ModifiedBy: user,
			UpdatedAt:  now,
		})
	}
	return cells
}
