//go:build !sqlite

package storage

import "fmt"

func newSQLiteStore(path string) (Store, error) {
	return nil, fmt.Errorf("sqlite backend unavailable in this build (store %q); rebuild with -tags sqlite", path)
}

// DefaultStoreKind is the backend used when none is named.
func DefaultStoreKind() string { return KindMemory }
