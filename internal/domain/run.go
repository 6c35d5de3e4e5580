package domain

import "time"

// RunStats holds statistics about one ingest run.
type RunStats struct {
	RunID         string
	SourceID      string
	DryRun        bool
	Pages         int
	Fetched       int
	Accepted      int
	Rejected      int
	Rejections    map[string]int
	Batches       int
	Upserted      int
	Photos        int
	PhotoFailures int
	Published     int
	Duration      time.Duration
}

// BatchEvent announces a successfully written batch.
type BatchEvent struct {
	RunID       string    `json:"run_id"`
	SourceID    string    `json:"source"`
	ExternalIDs []string  `json:"external_ids"`
	Upserted    int       `json:"upserted"`
	Timestamp   time.Time `json:"timestamp"`
}
