// Package rpc writes listings through a PostgREST (Supabase) endpoint: batch
// upserts go to a remote procedure, photos to a REST table.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ecolisting_ingest/internal/contracts"
	"ecolisting_ingest/internal/domain"
	"ecolisting_ingest/internal/retry"
)

const clientInfo = "ecolisting-ingest/1.0"

// Error is the error object PostgREST returns. Code is either an HTTP status
// or a store specific code.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
	Hint    string `json:"hint"`
}

func (e *Error) Error() string {
	code := e.Code
	if code == "" {
		code = strconv.Itoa(e.Status)
	}
	msg := e.Message
	if msg == "" {
		msg = e.Hint
	}
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("rpc error %s: %s", code, msg)
}

// Transient applies the retryable status set to the HTTP status and to a
// numeric error code.
func (e *Error) Transient() bool {
	if retry.IsTransientStatus(e.Status) {
		return true
	}
	if n, err := strconv.Atoi(e.Code); err == nil {
		return retry.IsTransientStatus(n)
	}
	return false
}

type Config struct {
	URL         string
	ServiceKey  string
	Function    string
	PhotosTable string
	Timeout     time.Duration
}

type Client struct {
	httpClient  *http.Client
	baseURL     string
	serviceKey  string
	function    string
	photosTable string
	logger      *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		serviceKey:  cfg.ServiceKey,
		function:    cfg.Function,
		photosTable: cfg.PhotosTable,
		logger:      logger.With("component", "rpc_sink"),
	}
}

type upsertRequest struct {
	Payload []domain.Listing `json:"payload"`
}

// UpsertBatch calls the ingest procedure with the batch as payload and
// returns the count it reports.
func (c *Client) UpsertBatch(ctx context.Context, rows []domain.Listing) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := contracts.ValidateListings(rows); err != nil {
		return 0, err
	}

	body, err := c.do(ctx, http.MethodPost, "/rest/v1/rpc/"+c.function, nil, upsertRequest{Payload: rows}, nil)
	if err != nil {
		return 0, err
	}

	return parseCount(body)
}

// ReplacePhotos deletes the stored photos then inserts urls. The two calls
// are not atomic: a failure in between leaves the listing without photos
// until the next run.
func (c *Client) ReplacePhotos(ctx context.Context, externalID string, urls []string) error {
	query := url.Values{}
	query.Set("external_id", "eq."+externalID)
	if _, err := c.do(ctx, http.MethodDelete, "/rest/v1/"+c.photosTable, query, nil, nil); err != nil {
		return fmt.Errorf("delete photos: %w", err)
	}

	photos := domain.PhotoRows(externalID, urls)
	if len(photos) == 0 {
		return nil
	}
	if _, err := c.do(ctx, http.MethodPost, "/rest/v1/"+c.photosTable, nil, photos, nil); err != nil {
		return fmt.Errorf("insert photos: %w", err)
	}
	return nil
}

// MergePhotos upserts urls on (external_id, url).
func (c *Client) MergePhotos(ctx context.Context, externalID string, urls []string) error {
	photos := domain.PhotoRows(externalID, urls)
	if len(photos) == 0 {
		return nil
	}

	query := url.Values{}
	query.Set("on_conflict", "external_id,url")
	headers := map[string]string{"Prefer": "resolution=merge-duplicates,return=minimal"}
	if _, err := c.do(ctx, http.MethodPost, "/rest/v1/"+c.photosTable, query, photos, headers); err != nil {
		return fmt.Errorf("merge photos: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload any, headers map[string]string) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal payload: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("apikey", c.serviceKey)
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Client-Info", clientInfo)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		rpcErr := &Error{Status: resp.StatusCode}
		if len(body) > 0 {
			_ = json.Unmarshal(body, rpcErr)
		}
		c.logger.Debug("rpc call failed",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"code", rpcErr.Code,
		)
		return nil, rpcErr
	}

	return body, nil
}

// parseCount reads the procedure result: a bare number, null, or a quoted
// number.
func parseCount(body []byte) (int, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return 0, nil
	}

	var n json.Number
	if err := json.Unmarshal([]byte(trimmed), &n); err != nil {
		return 0, fmt.Errorf("decode rpc result: %w", err)
	}
	f, err := n.Float64()
	if err != nil {
		return 0, fmt.Errorf("decode rpc result: %w", err)
	}
	return int(f), nil
}
