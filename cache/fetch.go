package cache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// HTTPFetcher is the production Fetcher: a plain GET against the origin
// URL, mapping non-2xx responses to an error. No retries.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns an HTTPFetcher whose client enforces the default
// connect/read timeout.
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		Client: &http.Client{Timeout: DefaultHTTPConnectTimeout},
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, dest *os.File) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPConnectTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return fmt.Errorf("genbankfs: origin returned %s for %s", resp.Status, url)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("genbankfs: origin returned %s for %s", resp.Status, url)
	}

	_, err = io.Copy(dest, resp.Body)
	return err
}

var _ Fetcher = (*HTTPFetcher)(nil)
