package store

import (
	"context"
	"fmt"
	"time"

	"github.com/DoyleJ11/crossword-backend/pkg/types"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type GormStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// OpenPostgres connects to dsn and migrates the solution table.
func OpenPostgres(dsn string, log *zap.Logger) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return NewGormStore(db, log)
}

func NewGormStore(db *gorm.DB, log *zap.Logger) (*GormStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := db.AutoMigrate(&SolutionCell{}); err != nil {
		return nil, fmt.Errorf("migrate solution_cells: %w", err)
	}
	return &GormStore{db: db, log: log}, nil
}

func (s *GormStore) LoadSolution(ctx context.Context, team, puzzle string) (string, error) {
	var cells []SolutionCell
	err := s.db.WithContext(ctx).
		Where("team = ? AND puzzle = ?", team, puzzle).
		Order("y, x").
		Find(&cells).Error
	if err != nil {
		return "", fmt.Errorf("load solution %s/%s: %w", team, puzzle, err)
	}

	items := make([]types.SolutionItem, 0, len(cells))
	for _, c := range cells {
		items = append(items, c.item())
	}
	return types.MarshalSolution(items)
}

func (s *GormStore) ApplyMove(ctx context.Context, items []types.SolutionItem, user, team, puzzle string) error {
	if len(items) == 0 {
		return nil
	}
	cells := cellsFor(items, user, team, puzzle, time.Now().UTC())

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "team"}, {Name: "puzzle"}, {Name: "x"}, {Name: "y"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "modified_by", "updated_at"}),
		}).Create(&cells).Error
	})
	if err != nil {
		return fmt.Errorf("apply move %s/%s: %w", team, puzzle, err)
	}
	s.log.Debug("move persisted",
		zap.String("team", team),
		zap.String("puzzle", puzzle),
		zap.String("user", user),
		zap.Int("cells", len(cells)),
	)
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
