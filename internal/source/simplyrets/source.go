// Package simplyrets pages through the SimplyRETS properties API.
package simplyrets

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
	SourceID   = "simplyrets"
	SourceName = "SimplyRETS"

	// MaxPageSize is the largest limit the API accepts.
	MaxPageSize = 500
)

// Config holds SimplyRETS source configuration.
type Config struct {
	BaseURL  string
	Username string
	Password string
	Timeout  time.Duration
	Retry    retry.Policy
}

// Source implements the ingest source for SimplyRETS. Pagination is
// limit/offset; the API answers with a bare array and an X-Total-Count header.
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
			Auth:    httpsource.BasicAuth{Username: cfg.Username, Password: cfg.Password},
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

// FetchPage fetches up to pageSize listings starting at cursor.Offset.
func (s *Source) FetchPage(ctx context.Context, cursor domain.Cursor, pageSize int) (*domain.Page, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	query := url.Values{}
	query.Set("limit", strconv.Itoa(pageSize))
	query.Set("offset", strconv.Itoa(cursor.Offset))

	resp, err := s.client.Get(ctx, query)
	if errors.Is(err, source.ErrEndOfStream) {
		s.logger.Info("offset past end of data", "offset", cursor.Offset)
		return &domain.Page{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch offset %d: %w", cursor.Offset, err)
	}

	records, _, err := httpsource.DecodeRecords(resp.Body)
	if err != nil {
		return nil, err
	}

	total, _ := httpsource.Int(resp.Header.Get("X-Total-Count"))

	next := domain.Cursor{Offset: cursor.Offset + len(records)}
	hasMore := len(records) > 0
	if total > 0 {
		hasMore = next.Offset < total
	}

	s.logger.Debug("fetched page",
		"offset", cursor.Offset,
		"listings", len(records),
		"total", total,
	)

	return &domain.Page{
		Records: records,
		HasMore: hasMore,
		Total:   total,
		Size:    pageSize,
		Next:    next,
	}, nil
}
