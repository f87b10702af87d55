package storage

import "flipmatch-server/ledger"

// BlobStore persists ledger blobs. Implementations can be swapped for testing
// or for a different backend (local SQLite file, shared Postgres).
type BlobStore interface {
	ledger.Backend

	// Lifecycle
	Close() error
}

// Ensure both stores implement BlobStore at compile time.
var (
	_ BlobStore          = (*Store)(nil)
	_ BlobStore          = (*SQLiteStore)(nil)
	_ ledger.Broadcaster = (*Store)(nil)
)
