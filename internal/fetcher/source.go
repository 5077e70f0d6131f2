package fetcher

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/venturesignal/internal/model"
)

// Source endpoint defaults.
const (
	DefaultSourceBaseURL = "https://yc-oss.github.io/api"
	DefaultSourcePath    = "/industries/b2b.json"
	DefaultSourceTimeout = 30 * time.Second
)

// SourceFetcher pulls the candidate company list from the public dataset.
type SourceFetcher struct {
	fetcher Fetcher
	url     string
}

// NewSourceFetcher creates a SourceFetcher for baseURL+path.
func NewSourceFetcher(f Fetcher, baseURL, path string) *SourceFetcher {
	if baseURL == "" {
		baseURL = DefaultSourceBaseURL
	}
	if path == "" {
		path = DefaultSourcePath
	}
	return &SourceFetcher{
		fetcher: f,
		url:     strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"),
	}
}

// URL returns the endpoint the fetcher reads.
func (s *SourceFetcher) URL() string {
	return s.url
}

// FetchRecords performs one GET and returns every element of the top-level
// JSON array undecoded, so that each record can fail on its own later.
func (s *SourceFetcher) FetchRecords(ctx context.Context) ([]model.RawRecord, error) {
	body, err := s.fetcher.Download(ctx, s.url)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: fetch source records")
	}
	defer body.Close() //nolint:errcheck

	records, err := CollectJSONArray[model.RawRecord](ctx, body)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: decode source payload from %s", s.url)
	}

	zap.L().Info("fetcher: source records fetched",
		zap.String("url", s.url),
		zap.Int("records", len(records)),
	)
	return records, nil
}
