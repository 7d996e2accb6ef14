// Package fetch implements the transfer engine all strategies route through:
// conditional HTTP requests, retry with exponential backoff, and atomic
// temp-file-then-rename placement with digest verification.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/RogerCibrian/notapkgtool-sub000/internal/logging"
	"github.com/RogerCibrian/notapkgtool-sub000/internal/verify"
)

const (
	// DefaultTimeout is the per-attempt HTTP request timeout.
	DefaultTimeout = 5 * time.Minute
	// DefaultRetries is the default number of transfer retries.
	DefaultRetries = 3
	// DefaultUserAgent is the User-Agent header sent with requests.
	DefaultUserAgent = "notapkgtool/1.0"

	defaultBackoffBase = time.Second
)

// Validator map keys. Values are opaque transport tokens.
const (
	ValidatorETag         = "etag"
	ValidatorLastModified = "last_modified"
)

// Status reports how a fetch concluded.
type Status string

const (
	// StatusFetched means bytes were transferred and placed at the destination.
	StatusFetched Status = "fetched"
	// StatusNotModified means the server confirmed the cached copy is current;
	// no bytes were written.
	StatusNotModified Status = "not-modified"
)

// Request describes one artifact transfer.
type Request struct {
	// URL is the artifact location. Redirects are followed transparently.
	URL string
	// Destination is the final on-disk path. The file appears there only
	// after a fully successful transfer.
	Destination string
	// Validators holds cache-freshness tokens from a previous fetch
	// (ValidatorETag, ValidatorLastModified). When present they are sent as
	// conditional headers.
	Validators map[string]string
	// ExpectedHash, when set, is the hex SHA-256 the downloaded bytes must
	// match; a mismatch discards the transfer with an IntegrityError.
	ExpectedHash string
	// ApplicationID scopes temp-file names so concurrent fetches against one
	// directory cannot collide.
	ApplicationID string
}

// Result is the output of a fetch.
type Result struct {
	URL         string            `json:"url"`
	LocalPath   string            `json:"local_path"`
	ContentHash string            `json:"content_hash,omitempty"`
	Validators  map[string]string `json:"validators"`
	Status      Status            `json:"status"`
}

// Engine performs HTTP transfers with retry logic. The zero value is not
// usable; construct with NewEngine.
type Engine struct {
	client      *http.Client
	userAgent   string
	retries     int
	backoffBase time.Duration
	logger      *slog.Logger
}

// NewEngine creates a transfer engine with default timeout and retry budget.
func NewEngine() *Engine {
	return &Engine{
		client: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Allow up to 10 redirects
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		userAgent:   DefaultUserAgent,
		retries:     DefaultRetries,
		backoffBase: defaultBackoffBase,
		logger:      logging.New("fetch"),
	}
}

// WithRetries sets the retry budget.
func (e *Engine) WithRetries(n int) *Engine {
	if n >= 0 {
		e.retries = n
	}
	return e
}

// WithTimeout sets the per-attempt timeout.
func (e *Engine) WithTimeout(d time.Duration) *Engine {
	if d > 0 {
		e.client.Timeout = d
	}
	return e
}

// WithUserAgent overrides the User-Agent header.
func (e *Engine) WithUserAgent(ua string) *Engine {
	if ua != "" {
		e.userAgent = ua
	}
	return e
}

// Fetch transfers req.URL to req.Destination. Transient failures (network
// errors, 5xx, 429) are retried with exponential backoff; other 4xx statuses
// fail immediately. A failed or cancelled transfer never leaves a renamed
// destination file behind.
func (e *Engine) Fetch(ctx context.Context, req Request) (*Result, error) {
	if req.URL == "" {
		return nil, fmt.Errorf("fetch: url is required")
	}
	if req.Destination == "" {
		return nil, fmt.Errorf("fetch: destination path is required")
	}

	var lastErr error
	lastStatus := 0

	for attempt := 0; attempt <= e.retries; attempt++ {
		// Check context before each attempt
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s
			backoff := time.Duration(1<<uint(attempt-1)) * e.backoffBase
			e.logger.Debug("retrying transfer",
				"url", req.URL, "app_id", req.ApplicationID, "attempt", attempt, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		res, err := e.fetchOnce(ctx, req)
		if err == nil {
			return res, nil
		}

		// Cancellation and integrity failures are final.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var integrityErr *IntegrityError
		if errors.As(err, &integrityErr) {
			return nil, err
		}

		var statusErr *httpStatusError
		if errors.As(err, &statusErr) {
			lastStatus = statusErr.status
			if !statusErr.retryable() {
				return nil, &TransferError{URL: req.URL, Status: statusErr.status, Attempts: attempt + 1, Err: err}
			}
		}

		lastErr = err
	}

	return nil, &TransferError{URL: req.URL, Status: lastStatus, Attempts: e.retries + 1, Err: lastErr}
}

// fetchOnce performs a single transfer attempt.
func (e *Engine) fetchOnce(ctx context.Context, req Request) (*Result, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("User-Agent", e.userAgent)
	if etag := req.Validators[ValidatorETag]; etag != "" {
		httpReq.Header.Set("If-None-Match", etag)
	}
	if lastMod := req.Validators[ValidatorLastModified]; lastMod != "" {
		httpReq.Header.Set("If-Modified-Since", lastMod)
	}

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		// Nothing written; the caller keeps its recorded file and hash.
		validators := make(map[string]string, len(req.Validators))
		for k, v := range req.Validators {
			validators[k] = v
		}
		overlayValidators(validators, resp)
		return &Result{
			URL:        req.URL,
			LocalPath:  req.Destination,
			Validators: validators,
			Status:     StatusNotModified,
		}, nil
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &httpStatusError{status: resp.StatusCode}
	}

	destDir := filepath.Dir(req.Destination)
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return nil, fmt.Errorf("create dest dir: %w", err)
	}

	// Sibling temp file with a collision-resistant name: concurrent fetches
	// may target the same directory.
	tmpPath := filepath.Join(destDir, tempName(filepath.Base(req.Destination), req.ApplicationID))
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	// Track whether we need to clean up the temp file
	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath) // Clean up on error
		}
	}()

	if _, err := io.Copy(tmpFile, resp.Body); err != nil {
		return nil, fmt.Errorf("copy response body: %w", err)
	}

	// Flush to disk before the rename makes the file visible.
	if err := tmpFile.Sync(); err != nil {
		return nil, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return nil, fmt.Errorf("close temp file: %w", err)
	}

	hash, err := verify.FileSHA256(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("hash temp file: %w", err)
	}

	if req.ExpectedHash != "" && !verify.DigestsEqual(hash, req.ExpectedHash) {
		return nil, &IntegrityError{URL: req.URL, Want: strings.ToLower(req.ExpectedHash), Got: hash}
	}

	if err := os.Rename(tmpPath, req.Destination); err != nil {
		return nil, fmt.Errorf("rename temp file: %w", err)
	}

	// Sync directory for durability
	if df, err := os.Open(destDir); err == nil {
		if syncErr := df.Sync(); syncErr != nil {
			df.Close()
			return nil, fmt.Errorf("sync dest dir: %w", syncErr)
		}
		df.Close()
	}

	// Success - don't clean up the temp file (it's been renamed)
	cleanupNeeded = false

	validators := make(map[string]string)
	overlayValidators(validators, resp)

	return &Result{
		URL:         req.URL,
		LocalPath:   req.Destination,
		ContentHash: hash,
		Validators:  validators,
		Status:      StatusFetched,
	}, nil
}

// overlayValidators copies freshness tokens from the terminal response; any
// intermediate redirect's headers have already been discarded by the client.
func overlayValidators(dst map[string]string, resp *http.Response) {
	if etag := resp.Header.Get("ETag"); etag != "" {
		dst[ValidatorETag] = etag
	}
	if lastMod := resp.Header.Get("Last-Modified"); lastMod != "" {
		dst[ValidatorLastModified] = lastMod
	}
}

// tempName builds a temp-file name from the destination base name, the
// application id, and a random suffix.
func tempName(base, appID string) string {
	id := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ':' {
			return '-'
		}
		return r
	}, appID)
	if id == "" {
		id = "artifact"
	}
	return fmt.Sprintf("%s.%s-%s.partial", base, id, uuid.New().String())
}
