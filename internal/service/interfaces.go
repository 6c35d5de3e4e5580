package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"ecolisting_ingest/internal/domain"
)

// Source pages through one provider's listing collection.
type Source interface {
	ID() string
	Name() string
	FetchPage(ctx context.Context, cursor domain.Cursor, pageSize int) (*domain.Page, error)
}

type Normalizer interface {
	Normalize(raw domain.RawRecord) (domain.Listing, error)
}

// ListingSink writes a batch idempotently, keyed by external id, and returns
// the number of rows the store reports as written.
type ListingSink interface {
	UpsertBatch(ctx context.Context, rows []domain.Listing) (int, error)
}

type PhotoSink interface {
	ReplacePhotos(ctx context.Context, externalID string, urls []string) error
	MergePhotos(ctx context.Context, externalID string, urls []string) error
}

type RunStateStore interface {
	Get(ctx context.Context, sourceID string) (*domain.RunState, error)
	Update(ctx context.Context, state *domain.RunState) error
}

type Publisher interface {
	Publish(ctx context.Context, event *domain.BatchEvent) error
	Close() error
}
