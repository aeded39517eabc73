package activitypub

import (
	"context"
	"crypto"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Fetcher retrieves the JSON document behind a remote id.
type Fetcher interface {
	Fetch(ctx context.Context, apID string) ([]byte, error)
}

// HTTPFetcher fetches remote objects over HTTP, optionally signing every
// request with the instance key.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
	MaxBytes  int64

	// signing is skipped unless both are set
	KeyId      string
	PrivateKey crypto.PrivateKey
}

func NewHTTPFetcher(timeout time.Duration, userAgent string, maxBytes int64) *HTTPFetcher {
	return &HTTPFetcher{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
		MaxBytes:  maxBytes,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, apID string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apID, nil)
	if err != nil {
		return nil, fail(ErrFetchFailed, "failed to create request for %s: %v", apID, err)
	}

	req.Header.Set("Accept", ContentType+`, application/ld+json; profile="https://www.w3.org/ns/activitystreams"`)
	req.Header.Set("User-Agent", f.UserAgent)
	req.Header.Set("Date", time.Now().UTC().Format(http.TimeFormat))
	req.Header.Set("Host", req.URL.Host)

	if f.KeyId != "" && f.PrivateKey != nil {
		if err := SignRequest(req, nil, f.PrivateKey, f.KeyId); err != nil {
			log.Printf("Resolver: Failed to sign fetch of %s: %v", apID, err)
		}
	}

	start := time.Now()
	resp, err := f.Client.Do(req)
	if err != nil {
		fetchesTotal.WithLabelValues("error").Inc()
		return nil, fail(ErrFetchFailed, "request to %s failed: %v", apID, err)
	}
	defer resp.Body.Close()
	fetchDuration.Observe(time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fetchesTotal.WithLabelValues(fmt.Sprintf("%dxx", resp.StatusCode/100)).Inc()
		return nil, fail(ErrFetchFailed, "%s returned status %d", apID, resp.StatusCode)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = 1 << 20
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		fetchesTotal.WithLabelValues("error").Inc()
		return nil, fail(ErrFetchFailed, "failed to read %s: %v", apID, err)
	}
	if int64(len(body)) > limit {
		fetchesTotal.WithLabelValues("too_large").Inc()
		return nil, fail(ErrInvalidRemoteObject, "%s exceeds %d bytes", apID, limit)
	}

	fetchesTotal.WithLabelValues("ok").Inc()
	return body, nil
}
