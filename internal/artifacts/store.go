// Package artifacts stores oversized payloads that don't belong inline in
// Postgres rows — workflow definitions and execution logs above the
// configured inline threshold — adapted from the teacher's
// pkg/storage/log_store.go.
package artifacts

import "context"

// Store saves a blob and returns a reference string that Retrieve accepts.
type Store interface {
	Store(ctx context.Context, key string, data []byte) (string, error)
	Retrieve(ctx context.Context, reference string) ([]byte, error)
}
