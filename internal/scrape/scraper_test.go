package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveHTML(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		w.Write([]byte(body)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"acme.dev", "https://acme.dev"},
		{"https://acme.dev", "https://acme.dev"},
		{"http://acme.dev/about", "http://acme.dev/about"},
		{"  www.acme.dev ", "https://www.acme.dev"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeURL(tt.in))
	}
}

func TestScrape_FullPage(t *testing.T) {
	srv := serveHTML(t, http.StatusOK, `<!doctype html>
<html><head>
  <title>  Acme Data  </title>
  <meta name="description" content=" Pipelines for everyone ">
  <style>.x{color:red}</style>
  <script>var tracking = true;</script>
</head>
<body>
  <header>Top banner</header>
  <nav><a href="/">Home</a><a href="/about">About</a></nav>
  <main>
    <h1>Build   pipelines</h1>
    <p>Fast <b>and</b> reliable.</p>
  </main>
  <footer>Copyright</footer>
</body></html>`)

	page, err := New(Options{}).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Acme Data", page.Title)
	assert.Equal(t, "Pipelines for everyone", page.Description)
	assert.Equal(t, "Acme Data Build   pipelines Fast and reliable.", page.Body)
	assert.NotContains(t, page.Body, "tracking")
	assert.NotContains(t, page.Body, "Top banner")
	assert.NotContains(t, page.Body, "Home")
	assert.NotContains(t, page.Body, "Copyright")

	assert.Equal(t,
		"Title: Acme Data\nDescription: Pipelines for everyone\nBody: Acme Data Build   pipelines Fast and reliable.",
		page.Text())
}

func TestScrape_BodyTruncatedToExactLimit(t *testing.T) {
	long := strings.Repeat("é", 2500)
	srv := serveHTML(t, http.StatusOK, "<html><body><p>"+long+"</p></body></html>")

	page, err := New(Options{}).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Empty(t, page.Title)
	assert.Equal(t, 2000, len([]rune(page.Body)))
	assert.True(t, strings.HasPrefix(page.Text(), "Body: "))
	assert.NotContains(t, page.Text(), "Title:")
}

func TestScrape_OnlyDescription(t *testing.T) {
	srv := serveHTML(t, http.StatusOK, `<html><head><meta name="description" content="Just this"></head><body><script>x()</script></body></html>`)

	page, err := New(Options{}).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Description: Just this", page.Text())
}

func TestScrape_NoContent(t *testing.T) {
	srv := serveHTML(t, http.StatusOK, `<html><head><style>p{}</style></head><body><nav>menu</nav><footer>f</footer></body></html>`)

	_, err := New(Options{}).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoContent)
}

func TestScrape_NonSuccessStatus(t *testing.T) {
	srv := serveHTML(t, http.StatusNotFound, `<html><title>Not found</title></html>`)

	_, err := New(Options{}).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoContent)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestScrape_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := New(Options{Timeout: 30 * time.Millisecond}).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
}

func TestScrape_CustomBodyLimit(t *testing.T) {
	srv := serveHTML(t, http.StatusOK, `<html><body>abcdefghij</body></html>`)

	page, err := New(Options{MaxBodyChars: 4}).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "abcd", page.Body)
	assert.Equal(t, srv.URL, page.URL)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "héll", truncateRunes("héllo", 4))
	assert.Equal(t, "hi", truncateRunes("hi", 4))
	assert.Equal(t, "abcd", truncateRunes("abcd", 4))
	assert.Equal(t, "", truncateRunes("", 4))
}

func TestPage_Empty(t *testing.T) {
	assert.True(t, (&Page{URL: "https://x"}).Empty())
	assert.False(t, (&Page{Body: "b"}).Empty())
	assert.Equal(t, "", (&Page{}).Text())
}
