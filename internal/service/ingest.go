package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ecolisting_ingest/internal/config"
	"ecolisting_ingest/internal/domain"
	"ecolisting_ingest/internal/normalize"
	"ecolisting_ingest/internal/retry"
)

type runState int

const (
	stateFetching runState = iota
	stateDone
)

// IngestService drives one source through normalization into the sink,
// page by page.
type IngestService struct {
	source     Source
	normalizer Normalizer
	sink       ListingSink
	photos     PhotoSink
	runState   RunStateStore
	publisher  Publisher
	logger     *slog.Logger
	config     config.IngestConfig
}

// NewIngestService wires the driver. sink may be nil only in dry-run mode;
// photos, runState and publisher are optional.
func NewIngestService(
	source Source,
	normalizer Normalizer,
	sink ListingSink,
	photos PhotoSink,
	runState RunStateStore,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.IngestConfig,
) *IngestService {
	return &IngestService{
		source:     source,
		normalizer: normalizer,
		sink:       sink,
		photos:     photos,
		runState:   runState,
		publisher:  publisher,
		logger:     logger.With("source", source.ID()),
		config:     cfg,
	}
}

// Run pages through the source until it is exhausted. A fatal error returns
// the stats gathered so far together with the error.
func (s *IngestService) Run(ctx context.Context) (*domain.RunStats, error) {
	startTime := time.Now()
	dryRun := bool(s.config.DryRun)

	stats := &domain.RunStats{
		RunID:      uuid.NewString(),
		SourceID:   s.source.ID(),
		DryRun:     dryRun,
		Rejections: make(map[string]int),
	}

	if !dryRun && s.sink == nil {
		return stats, errors.New("no sink configured")
	}

	logger := s.logger.With("run_id", stats.RunID)
	logger.Info("starting ingest",
		"source_name", s.source.Name(),
		"dry_run", dryRun,
		"page_size", s.config.PageSize,
		"batch_size", s.config.BatchSize,
		"max_pages", s.config.MaxPages,
	)

	cursor := domain.Cursor{Offset: 0, Page: 1}

	for state := stateFetching; state == stateFetching; {
		page, err := s.source.FetchPage(ctx, cursor, s.config.PageSize)
		if err != nil {
			return s.fail(logger, stats, startTime, fmt.Errorf("fetch page %d: %w", stats.Pages+1, err))
		}

		if len(page.Records) == 0 {
			logger.Info("source returned empty page", "page", stats.Pages+1)
			break
		}

		stats.Pages++
		stats.Fetched += len(page.Records)

		rows := s.normalizePage(logger, page.Records, stats)

		upserted, err := s.write(ctx, logger, rows, stats)
		if err != nil {
			return s.fail(logger, stats, startTime, err)
		}

		logger.Info("page processed",
			"page", stats.Pages,
			"fetched", len(page.Records),
			"accepted", len(rows),
			"rejected", len(page.Records)-len(rows),
			"upserted", upserted,
			"total_upserted", stats.Upserted,
		)

		state = s.next(logger, page, cursor, stats)
		cursor = page.Next
	}

	if !dryRun {
		if err := s.updateRunState(ctx, stats); err != nil {
			return s.fail(logger, stats, startTime, fmt.Errorf("update run state: %w", err))
		}
	}

	stats.Duration = time.Since(startTime)

	logger.Info("ingest completed",
		"pages", stats.Pages,
		"fetched", stats.Fetched,
		"accepted", stats.Accepted,
		"rejected", stats.Rejected,
		"rejections", stats.Rejections,
		"batches", stats.Batches,
		"upserted", stats.Upserted,
		"photos", stats.Photos,
		"photo_failures", stats.PhotoFailures,
		"published", stats.Published,
		"duration", stats.Duration,
	)

	return stats, nil
}

// next decides whether another page should be fetched.
func (s *IngestService) next(logger *slog.Logger, page *domain.Page, cursor domain.Cursor, stats *domain.RunStats) runState {
	switch {
	case !page.HasMore:
		logger.Debug("source signaled last page")
		return stateDone
	case bool(s.config.StopOnShortPage) && len(page.Records) < s.pageSize(page):
		logger.Debug("short page", "records", len(page.Records), "page_size", s.pageSize(page))
		return stateDone
	case page.Total > 0 && stats.Fetched >= page.Total:
		logger.Debug("total reached", "total", page.Total)
		return stateDone
	case s.config.MaxPages > 0 && stats.Pages >= s.config.MaxPages:
		logger.Info("max pages reached", "max_pages", s.config.MaxPages)
		return stateDone
	case page.Next == cursor:
		logger.Warn("source cursor did not advance", "offset", cursor.Offset, "page", cursor.Page)
		return stateDone
	}
	return stateFetching
}

// pageSize is the size the source actually served, which may be below the
// configured one when the provider caps it.
func (s *IngestService) pageSize(page *domain.Page) int {
	if page.Size > 0 {
		return page.Size
	}
	return s.config.PageSize
}

func (s *IngestService) normalizePage(logger *slog.Logger, records []domain.RawRecord, stats *domain.RunStats) []domain.Listing {
	rows := make([]domain.Listing, 0, len(records))
	for _, raw := range records {
		row, err := s.normalizer.Normalize(raw)
		if err != nil {
			reason := "invalid"
			var rejectErr *normalize.RejectError
			if errors.As(err, &rejectErr) {
				reason = rejectErr.Reason
			}
			stats.Rejected++
			stats.Rejections[reason]++
			logger.Debug("record rejected", "reason", reason, "error", err)
			continue
		}
		stats.Accepted++
		rows = append(rows, row)
	}
	return rows
}

// write hands rows to the sink in chunks of BatchSize. In dry-run mode it
// only logs them.
func (s *IngestService) write(ctx context.Context, logger *slog.Logger, rows []domain.Listing, stats *domain.RunStats) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	if s.config.DryRun {
		for i := range rows {
			data, _ := json.Marshal(rows[i])
			logger.Info("dry run listing",
				"external_id", rows[i].ExternalID,
				"photos", len(rows[i].Photos),
				"listing", string(data),
			)
		}
		return 0, nil
	}

	written := 0
	for _, batch := range chunk(dedupe(rows), s.config.BatchSize) {
		n, err := s.upsert(ctx, logger, batch)
		if err != nil {
			return written, fmt.Errorf("upsert batch %d: %w", stats.Batches+1, err)
		}

		stats.Batches++
		stats.Upserted += n
		written += n

		logger.Info("batch upserted",
			"batch", stats.Batches,
			"rows", len(batch),
			"upserted", n,
			"total_upserted", stats.Upserted,
		)

		s.writePhotos(ctx, logger, batch, stats)
		s.publish(ctx, logger, batch, n, stats)
	}

	return written, nil
}

func (s *IngestService) upsert(ctx context.Context, logger *slog.Logger, batch []domain.Listing) (int, error) {
	var n int
	notify := func(attempt int, delay time.Duration, err error) {
		logger.Warn("retrying batch upsert",
			"attempt", attempt,
			"max_attempts", s.config.SinkRetry.MaxAttempts,
			"delay", delay,
			"rows", len(batch),
			"error", err,
		)
	}

	err := retry.Do(ctx, s.config.SinkRetry.Policy(), notify, func(ctx context.Context) error {
		var err error
		n, err = s.sink.UpsertBatch(ctx, batch)
		return err
	})
	return n, err
}

// writePhotos applies the photo strategy per listing. Failures are counted
// and logged; the listing row itself is already written.
func (s *IngestService) writePhotos(ctx context.Context, logger *slog.Logger, batch []domain.Listing, stats *domain.RunStats) {
	if s.photos == nil || s.config.PhotoStrategy == config.PhotoOff {
		return
	}

	for i := range batch {
		row := &batch[i]
		// A listing without photos keeps whatever is stored.
		if len(row.Photos) == 0 {
			continue
		}

		var err error
		if s.config.PhotoStrategy == config.PhotoMerge {
			err = s.photos.MergePhotos(ctx, row.ExternalID, row.Photos)
		} else {
			err = s.photos.ReplacePhotos(ctx, row.ExternalID, row.Photos)
		}
		if err != nil {
			stats.PhotoFailures++
			logger.Warn("photo update failed",
				"external_id", row.ExternalID,
				"strategy", s.config.PhotoStrategy,
				"error", err,
			)
			continue
		}
		stats.Photos += len(row.Photos)
	}
}

func (s *IngestService) publish(ctx context.Context, logger *slog.Logger, batch []domain.Listing, upserted int, stats *domain.RunStats) {
	if s.publisher == nil {
		return
	}

	ids := make([]string, len(batch))
	for i := range batch {
		ids[i] = batch[i].ExternalID
	}

	event := &domain.BatchEvent{
		RunID:       stats.RunID,
		SourceID:    stats.SourceID,
		ExternalIDs: ids,
		Upserted:    upserted,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.Warn("publish batch event failed", "batch", stats.Batches, "error", err)
		return
	}
	stats.Published++
}

func (s *IngestService) updateRunState(ctx context.Context, stats *domain.RunStats) error {
	if s.runState == nil {
		return nil
	}

	state, err := s.runState.Get(ctx, stats.SourceID)
	if err != nil {
		return err
	}

	state.SourceID = stats.SourceID
	state.LastRunAt = time.Now().UTC()
	state.LastRunID = stats.RunID
	state.TotalUpserted += int64(stats.Upserted)

	return s.runState.Update(ctx, state)
}

func (s *IngestService) fail(logger *slog.Logger, stats *domain.RunStats, startTime time.Time, err error) (*domain.RunStats, error) {
	stats.Duration = time.Since(startTime)
	logger.Error("ingest aborted",
		"pages", stats.Pages,
		"fetched", stats.Fetched,
		"rejected", stats.Rejected,
		"upserted", stats.Upserted,
		"duration", stats.Duration,
		"error", err,
	)
	return stats, err
}

// dedupe keeps one row per external id. The last occurrence wins but keeps
// the position of the first, since a single upsert statement cannot touch
// the same conflict key twice.
func dedupe(rows []domain.Listing) []domain.Listing {
	index := make(map[string]int, len(rows))
	out := make([]domain.Listing, 0, len(rows))
	for _, r := range rows {
		if i, ok := index[r.ExternalID]; ok {
			out[i] = r
			continue
		}
		index[r.ExternalID] = len(out)
		out = append(out, r)
	}
	return out
}

func chunk(rows []domain.Listing, size int) [][]domain.Listing {
	if len(rows) == 0 {
		return nil
	}
	if size <= 0 {
		size = len(rows)
	}
	batches := make([][]domain.Listing, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := min(start+size, len(rows))
		batches = append(batches, rows[start:end])
	}
	return batches
}
