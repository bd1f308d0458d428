package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"pamsync/pkg/circuitbreaker"
)

// maxDocumentBytes caps how much of a sheet export is read.
const maxDocumentBytes = 10 << 20

var ErrDocumentTooLarge = errors.New("document too large")

// Fetcher downloads the raw sheet export.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher does a single GET per call, no retry, behind a circuit breaker.
type HTTPFetcher struct {
	client  *http.Client
	breaker *circuitbreaker.CircuitBreaker
}

func NewHTTPFetcher(timeout time.Duration, breaker *circuitbreaker.CircuitBreaker) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	var doc string
	err := f.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "text/csv, text/plain;q=0.9, */*;q=0.1")

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d from sheet export", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
		if err != nil {
			return err
		}
		if len(body) > maxDocumentBytes {
			return ErrDocumentTooLarge
		}
		doc = string(body)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("fetch sheet: %w", err)
	}
	return doc, nil
}
