package store

import (
	"fmt"

	"go.uber.org/zap"
)

const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// Open returns the store selected by backend.
func Open(backend, dsn string, log *zap.Logger) (Store, error) {
	switch backend {
	case BackendPostgres:
		s, err := OpenPostgres(dsn, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}
