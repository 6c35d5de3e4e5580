// Package repliers pages through the Repliers listings API.
package repliers

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
	SourceID   = "repliers"
	SourceName = "Repliers"

	MaxPageSize = 100
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Retry   retry.Policy
}

// Source implements the ingest source for Repliers. Pages are 1-based and the
// response is either a bare array or an envelope with paging metadata.
type Source struct {
	client *httpsource.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	logger = logger.With("source", SourceID)
	return &Source{
		client: httpsource.New(httpsource.Config{
			BaseURL: cfg.BaseURL,
			Timeout: cfg.Timeout,
			Auth:    httpsource.APIKey{Header: "X-Api-Key", Key: cfg.APIKey},
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
	page := cursor.Page
	if page < 1 {
		page = 1
	}

	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(pageSize))

	resp, err := s.client.Get(ctx, query)
	if errors.Is(err, source.ErrEndOfStream) {
		s.logger.Info("page past end of data", "page", page)
		return &domain.Page{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", page, err)
	}

	records, envelope, err := httpsource.DecodeRecords(resp.Body, "data", "listings", "results")
	if err != nil {
		return nil, err
	}

	result := &domain.Page{
		Records: records,
		Size:    pageSize,
		Next:    domain.Cursor{Page: page + 1},
	}

	var totalPages int
	if envelope != nil {
		totalPages, result.Total = pagingMeta(envelope)
	}
	if totalPages > 0 {
		result.HasMore = page < totalPages
	} else {
		// No paging metadata: a full page means there may be more.
		result.HasMore = len(records) >= pageSize
	}

	s.logger.Debug("fetched page",
		"page", page,
		"listings", len(records),
		"has_more", result.HasMore,
	)

	return result, nil
}

// pagingMeta reads total pages and total count from either
// {meta: {total_pages, total}} or the top-level {numPages, count}.
func pagingMeta(envelope map[string]any) (totalPages, total int) {
	if meta, ok := envelope["meta"].(map[string]any); ok {
		totalPages, _ = httpsource.Int(meta["total_pages"])
		total, _ = httpsource.Int(meta["total"])
	}
	if totalPages == 0 {
		totalPages, _ = httpsource.Int(envelope["numPages"])
	}
	if total == 0 {
		total, _ = httpsource.Int(envelope["count"])
	}
	return totalPages, total
}
