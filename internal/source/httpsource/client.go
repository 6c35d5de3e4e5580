// Package httpsource is the HTTP JSON client behind the provider sources.
package httpsource

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"ecolisting_ingest/internal/domain"
	"ecolisting_ingest/internal/retry"
	"ecolisting_ingest/internal/source"
)

const userAgent = "EcoListingIngest/1.0"

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

var outOfRangePattern = regexp.MustCompile(`(?i)(offset|page)[^"]*(too high|too large|out of range)|out of range`)

// StatusError is a non-2xx provider response.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("unexpected status: %d", e.Status)
	}
	return fmt.Sprintf("unexpected status: %d: %s", e.Status, e.Body)
}

func (e *StatusError) Transient() bool {
	return retry.IsTransientStatus(e.Status)
}

type Config struct {
	BaseURL string
	Timeout time.Duration
	Auth    Authenticator
	Retry   retry.Policy
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	auth       Authenticator
	retry      retry.Policy
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		auth:    cfg.Auth,
		retry:   cfg.Retry,
		logger:  logger,
	}
}

// Response is a decoded JSON body with the headers it came with.
type Response struct {
	Body   json.RawMessage
	Header http.Header
}

// Get requests baseURL with the given query. Terminal out-of-range responses
// are reported as source.ErrEndOfStream.
func (c *Client) Get(ctx context.Context, query url.Values) (*Response, error) {
	target := c.baseURL
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var resp *Response
	err := retry.Do(ctx, c.retry,
		func(attempt int, delay time.Duration, err error) {
			c.logger.Warn("request failed, retrying",
				"attempt", attempt,
				"backoff", delay,
				"error", err,
			)
		},
		func(ctx context.Context) error {
			r, err := c.doRequest(ctx, target)
			if err != nil {
				return err
			}
			resp = r
			return nil
		},
	)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) doRequest(ctx context.Context, target string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.auth != nil {
		c.auth.Apply(req)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if isEndOfStream(resp.StatusCode, body) {
			return nil, source.ErrEndOfStream
		}
		return nil, &StatusError{Status: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &Response{Body: body, Header: resp.Header}, nil
}

func isEndOfStream(status int, body []byte) bool {
	switch status {
	case http.StatusRequestedRangeNotSatisfiable:
		return true
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return outOfRangePattern.Match(body)
	}
	return false
}

// DecodeRecords decodes either a bare JSON array of records or an object
// holding the array under one of keys. The object form is returned as well so
// callers can read paging metadata from it.
func DecodeRecords(body []byte, keys ...string) ([]domain.RawRecord, map[string]any, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()

	if trimmed[0] == '[' {
		var records []domain.RawRecord
		if err := dec.Decode(&records); err != nil {
			return nil, nil, fmt.Errorf("decode response: %w", err)
		}
		return records, nil, nil
	}

	var envelope map[string]any
	if err := dec.Decode(&envelope); err != nil {
		return nil, nil, fmt.Errorf("decode response: %w", err)
	}

	for _, key := range keys {
		items, ok := envelope[key].([]any)
		if !ok {
			continue
		}
		records := make([]domain.RawRecord, 0, len(items))
		for _, item := range items {
			if m, ok := item.(map[string]any); ok {
				records = append(records, domain.RawRecord(m))
			}
		}
		return records, envelope, nil
	}

	return nil, envelope, nil
}

// Int reads an integer out of decoded JSON metadata or a header value.
func Int(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return int(i), true
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}
