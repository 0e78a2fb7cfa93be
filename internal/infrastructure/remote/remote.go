// Package remote implements the HTTP-facing catalog sources: the bulk scene
// listing, per-scene metadata files, and per-scene asset index pages.
package remote

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"SceneBroker/internal/domain"
)

const userAgent = "SceneBroker/1.0"

func defaultClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

// get issues a context-bound GET and normalizes transport and status failures
// into domain.FetchError. The caller owns the response body.
func get(ctx context.Context, client *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &domain.FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{URL: url, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &domain.FetchError{URL: url, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	return resp, nil
}
