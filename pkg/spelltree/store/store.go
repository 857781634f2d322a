package store

import (
	"context"
	"time"
)

// Store archives finished builds so they can be inspected later
type Store interface {
	Close() error

	SaveBuild(ctx context.Context, b BuildRecord) error
	GetBuild(ctx context.Context, id string) (BuildRecord, bool, error)
	ListBuilds(ctx context.Context, limit int) ([]BuildRecord, error)
}

// BuildRecord is one archived build or lock pass
type BuildRecord struct {
	ID        string // ULID
	Command   string
	Seed      int64
	CreatedAt time.Time
	Success   bool
	ElapsedMS int64
	// RequestJSON and ResultJSON hold the wire payloads verbatim
	RequestJSON string
	ResultJSON  string
}
