package contest

import (
	"context"
	"time"
)

// Fetcher performs a bounded HTTP GET. Non-2xx responses are errors.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Response, error)
}

// Source yields the candidate documents of a contest in priority order. It
// stops as soon as visit returns false.
type Source interface {
	Documents(ctx context.Context, item ListingItem, visit func(Document) bool) error
}

// Notifier delivers a finished record downstream.
type Notifier interface {
	Notify(ctx context.Context, record Record) error
}

// Archiver stores the document that produced a match and returns its URI.
type Archiver interface {
	Archive(ctx context.Context, documentURL string, body []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces batch run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}
