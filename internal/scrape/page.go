package scrape

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// removedSelectors are dropped before any text is read.
const removedSelectors = "script, style, nav, footer, header"

// Page is the reduced form of a scraped website.
type Page struct {
	URL         string
	Title       string
	Description string
	Body        string
}

// Empty reports whether none of the three parts has content.
func (p *Page) Empty() bool {
	return p.Title == "" && p.Description == "" && p.Body == ""
}

// Text composes the labeled summary stored as enriched text.
func (p *Page) Text() string {
	var parts []string
	if p.Title != "" {
		parts = append(parts, "Title: "+p.Title)
	}
	if p.Description != "" {
		parts = append(parts, "Description: "+p.Description)
	}
	if p.Body != "" {
		parts = append(parts, "Body: "+p.Body)
	}
	return strings.Join(parts, "\n")
}

func extract(doc *goquery.Document, maxBodyChars int) *Page {
	doc.Find(removedSelectors).Remove()

	page := &Page{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}
	if content, ok := doc.Find(`meta[name="description"]`).First().Attr("content"); ok {
		page.Description = strings.TrimSpace(content)
	}

	var tokens []string
	for _, n := range doc.Nodes {
		collectText(n, &tokens)
	}
	page.Body = truncateRunes(strings.Join(tokens, " "), maxBodyChars)
	return page
}

// collectText appends every non-blank text node under n, trimmed, in
// document order.
func collectText(n *html.Node, out *[]string) {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*out = append(*out, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
