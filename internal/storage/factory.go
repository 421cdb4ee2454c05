package storage

import (
	"errors"
	"fmt"
	"io"
)

// Store backends accepted by NewStore.
const (
	KindMemory = "memory"
	KindSQLite = "sqlite"
)

// DefaultSQLitePath is the database file used when a sqlite store is
// requested without a path.
const DefaultSQLitePath = "xcs.db"

var ErrUnsupportedStore = errors.New("unsupported store backend")

// NewStore opens the backend named by kind. An empty kind selects the
// memory store.
func NewStore(kind, sqlitePath string) (Store, error) {
	switch kind {
	case "", KindMemory:
		return NewMemoryStore(), nil
	case KindSQLite:
		if sqlitePath == "" {
			sqlitePath = DefaultSQLitePath
		}
		return newSQLiteStore(sqlitePath)
	default:
		return nil, fmt.Errorf("%w: %q (want %s or %s)", ErrUnsupportedStore, kind, KindMemory, KindSQLite)
	}
}

// Close releases backends that hold resources. The memory store has none.
func Close(store Store) error {
	if closer, ok := store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
