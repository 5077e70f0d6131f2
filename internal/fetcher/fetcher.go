// Package fetcher downloads remote payloads and decodes the source dataset.
package fetcher

import (
	"context"
	"io"
)

// Fetcher defines the interface for downloading remote data.
type Fetcher interface {
	// Download fetches the URL and returns the response body. Any non-2xx
	// status is an error.
	Download(ctx context.Context, url string) (io.ReadCloser, error)
}
