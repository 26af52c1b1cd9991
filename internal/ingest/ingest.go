// Package ingest turns raw data sources into normalized membership records.
// Two interchangeable sources exist: the decrypted chat database and the
// JSON export document. Both produce the same flat record shape consumed by
// the index build.
package ingest

import (
	"context"

	"github.com/aaqwq/groupscope/internal/membership"
)

// Source produces a finite batch of membership records.
type Source interface {
	// Name identifies the source kind for logging and metrics.
	Name() string
	// Records reads the entire source into memory. Record order carries no
	// meaning.
	Records(ctx context.Context) ([]membership.Record, error)
}
