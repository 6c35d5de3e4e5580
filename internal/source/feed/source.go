// Package feed reads a generic JSON listings feed with limit/offset paging
// and a bearer token.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"ecolisting_ingest/internal/domain"
	"ecolisting_ingest/internal/retry"
	"ecolisting_ingest/internal/source"
	"ecolisting_ingest/internal/source/httpsource"
)

const (
	SourceID   = "feed"
	SourceName = "Listings feed"

	MaxPageSize = 500
)

type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
	Retry   retry.Policy
}

type Source struct {
	client *httpsource.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	logger = logger.With("source", SourceID)
	return &Source{
		client: httpsource.New(httpsource.Config{
			BaseURL: cfg.URL,
			Timeout: cfg.Timeout,
			Auth:    httpsource.BearerToken{Token: cfg.Token},
			Retry:   cfg.Retry,
		}, logger),
		logger: logger,
	}
}

func (s *Source) ID() string {
	return SourceID
}

func (s *Source) Name() string {
	return SourceName
}

func (s *Source) FetchPage(ctx context.Context, cursor domain.Cursor, pageSize int) (*domain.Page, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(pageSize))
	query.Set("offset", strconv.Itoa(cursor.Offset))

	resp, err := s.client.Get(ctx, query)
	if errors.Is(err, source.ErrEndOfStream) {
		return &domain.Page{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch offset %d: %w", cursor.Offset, err)
	}

	records, envelope, err := httpsource.DecodeRecords(resp.Body, "data", "records", "items")
	if err != nil {
		return nil, err
	}

	page := &domain.Page{
		Records: records,
		Size:    pageSize,
		Next:    domain.Cursor{Offset: cursor.Offset + len(records)},
		HasMore: len(records) >= pageSize,
	}

	if envelope != nil {
		if meta, ok := envelope["meta"].(map[string]any); ok {
			if total, ok := httpsource.Int(meta["total"]); ok && total > 0 {
				page.Total = total
				page.HasMore = page.Next.Offset < total
			}
			if more, ok := meta["has_more"].(bool); ok {
				page.HasMore = more
			}
		}
	}

	s.logger.Debug("fetched page",
		"offset", cursor.Offset,
		"listings", len(records),
		"has_more", page.HasMore,
	)

	return page, nil
}
