package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxResourceSize bounds the size of a single fetched resource.
const maxResourceSize = 10 << 20

// HTTP fetches resources with GET requests relative to a base URL.
// Responses are never cached.
type HTTP struct {
	client *http.Client
	base   string
}

// NewHTTP creates an HTTP source.
func NewHTTP(client *http.Client, base string) *HTTP {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTP{client: client, base: strings.TrimSuffix(base, "/")}
}

// Read implements Source.
func (s *HTTP) Read(ctx context.Context, name string) ([]byte, error) {
	cleaned, err := Clean(name)
	if err != nil {
		return nil, err
	}

	url := s.base + "/" + cleaned
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request for %s: %w", url, err)
	}
	req.Header.Set("Cache-Control", "no-store")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, notExist(name)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("unable to load %s (%d)", url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResourceSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	if len(data) > maxResourceSize {
		return nil, fmt.Errorf("resource %s exceeds %d bytes", url, maxResourceSize)
	}
	return data, nil
}
