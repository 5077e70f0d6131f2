// Package scrape reduces a company website to a short labeled text summary.
package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/venturesignal/internal/fetcher"
)

// Scrape defaults.
const (
	DefaultUserAgent    = "VentureSignal/1.0 (research bot)"
	DefaultTimeout      = 10 * time.Second
	DefaultMaxBodyChars = 2000
	maxResponseBytes    = 2 << 20
)

// ErrNoContent is returned when a page yields no title, description or body
// text. Callers treat it like a fetch failure.
var ErrNoContent = eris.New("scrape: no content")

// Options configures a Scraper.
type Options struct {
	UserAgent    string
	Timeout      time.Duration
	MaxBodyChars int
	// RequestsPerSecond paces outbound requests. Zero leaves them unpaced.
	RequestsPerSecond float64
}

// Scraper fetches a single URL and reduces it to a Page.
type Scraper struct {
	fetcher      fetcher.Fetcher
	maxBodyChars int
}

// New creates a Scraper backed by an HTTPFetcher.
func New(opts Options) *Scraper {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    opts.UserAgent,
		Timeout:      opts.Timeout,
		RateLimit:    opts.RequestsPerSecond,
		MaxBodyBytes: maxResponseBytes,
	})
	return NewWithFetcher(f, opts.MaxBodyChars)
}

// NewWithFetcher creates a Scraper over an existing Fetcher.
func NewWithFetcher(f fetcher.Fetcher, maxBodyChars int) *Scraper {
	if maxBodyChars <= 0 {
		maxBodyChars = DefaultMaxBodyChars
	}
	return &Scraper{fetcher: f, maxBodyChars: maxBodyChars}
}

// NormalizeURL prepends https:// when the URL does not already start with
// "http".
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "http") {
		return raw
	}
	return "https://" + raw
}

// Scrape fetches url and extracts its title, meta description and visible
// text. Transport errors, non-2xx statuses and empty pages all return an
// error; a page with nothing to say returns ErrNoContent.
func (s *Scraper) Scrape(ctx context.Context, url string) (*Page, error) {
	target := NormalizeURL(url)

	body, err := s.fetcher.Download(ctx, target)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: fetch %s", target)
	}
	defer body.Close() //nolint:errcheck

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, eris.Wrapf(err, "scrape: parse %s", target)
	}

	page := extract(doc, s.maxBodyChars)
	page.URL = target
	if page.Empty() {
		return nil, eris.Wrapf(ErrNoContent, "scrape: %s", target)
	}

	zap.L().Debug("scrape: page reduced",
		zap.String("url", target),
		zap.Int("body_chars", len([]rune(page.Body))),
	)
	return page, nil
}
