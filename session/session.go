// Package session abstracts the page a scraper drives: a real browser for
// script-heavy sites, or plain HTTP fetches for static ones.
package session

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Session is one browsing context. Implementations are not safe for
// concurrent use; a run drives its session sequentially.
type Session interface {
	// Navigate loads rawURL and makes it the current page.
	Navigate(ctx context.Context, rawURL string) error
	// WaitFor blocks until selector matches an element or timeout expires.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	// Click activates the index-th element matching selector. Negative
	// indexes count from the last match.
	Click(ctx context.Context, selector string, index int) error
	// Back returns to the previous page.
	Back(ctx context.Context) error
	// Document snapshots the current DOM.
	Document(ctx context.Context) (*goquery.Document, error)
	// URL returns the address of the current page.
	URL() string
	Close() error
}

// Options configure session construction.
type Options struct {
	Headless         bool
	Bin              string
	UserAgent        string
	AcceptLanguage   string
	WindowSize       string
	Timeout          time.Duration
	Delay            time.Duration
	RandomDelay      time.Duration
	RespectRobotsTxt bool

	// Transport replaces the HTTP transport of static sessions.
	Transport http.RoundTripper
}

// DefaultOptions mirrors the desktop Chrome the sites are tested against.
func DefaultOptions() Options {
	return Options{
		Headless:       true,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/116.0.5845.188 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9",
		WindowSize:     "1920,1080",
		Timeout:        30 * time.Second,
	}
}

var containsRe = regexp.MustCompile(`^(.*):contains\("([^"]*)"\)\s*$`)

// splitContains separates a trailing :contains("text") pseudo-class, which
// browsers do not implement, from the CSS selector it qualifies.
func splitContains(selector string) (css, text string) {
	m := containsRe.FindStringSubmatch(selector)
	if m == nil {
		return selector, ""
	}
	css = m[1]
	if css == "" {
		css = "*"
	}
	return css, m[2]
}

func pick(n, index int) (int, bool) {
	if index < 0 {
		index += n
	}
	return index, index >= 0 && index < n
}
