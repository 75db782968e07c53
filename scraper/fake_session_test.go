package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-shows/profile"
	"github.com/aluiziolira/go-scrape-shows/session"
)

// fakeSession serves canned HTML. Each URL has one or more frames; clicking
// a selector listed in advance moves the current URL to its next frame, the
// way a script-driven calendar re-renders in place. Other clicks follow the
// element's href or data-href.
type fakeSession struct {
	mu      sync.Mutex
	pages   map[string][]string
	advance map[string]bool
	navErrs map[string][]error

	current string
	frame   map[string]int
	history []string
	visits  map[string]int
	closed  bool
}

func newFakeSession(pages map[string][]string, advance ...string) *fakeSession {
	adv := make(map[string]bool, len(advance))
	for _, sel := range advance {
		adv[sel] = true
	}
	return &fakeSession{
		pages:   pages,
		advance: adv,
		navErrs: make(map[string][]error),
		frame:   make(map[string]int),
		visits:  make(map[string]int),
	}
}

// failNext queues errors returned by the next navigations to rawURL.
func (f *fakeSession) failNext(rawURL string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navErrs[rawURL] = append(f.navErrs[rawURL], errs...)
}

func (f *fakeSession) factory() SessionFactory {
	return func(context.Context, profile.Engine, session.Options) (session.Session, error) {
		return f, nil
	}
}

func (f *fakeSession) Navigate(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visits[rawURL]++
	if queued := f.navErrs[rawURL]; len(queued) > 0 {
		f.navErrs[rawURL] = queued[1:]
		return queued[0]
	}
	if _, ok := f.pages[rawURL]; !ok {
		return session.ErrNotFound{Err: fmt.Errorf("http status 404 for %s", rawURL)}
	}
	if f.current != "" {
		f.history = append(f.history, f.current)
	}
	f.current = rawURL
	f.frame[rawURL] = 0
	return nil
}

func (f *fakeSession) WaitFor(ctx context.Context, selector string, _ time.Duration) error {
	doc, err := f.Document(ctx)
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return session.ErrElementNotFound{Selector: selector}
	}
	return nil
}

func (f *fakeSession) Click(ctx context.Context, selector string, index int) error {
	doc, err := f.Document(ctx)
	if err != nil {
		return err
	}
	matches := doc.Find(selector)
	if index < 0 {
		index += matches.Length()
	}
	if index < 0 || index >= matches.Length() {
		return session.ErrElementNotFound{Selector: selector}
	}

	f.mu.Lock()
	if f.advance[selector] {
		if f.frame[f.current] < len(f.pages[f.current])-1 {
			f.frame[f.current]++
		}
		f.mu.Unlock()
		return nil
	}
	f.mu.Unlock()

	el := matches.Eq(index)
	href, ok := el.Attr("data-href")
	if !ok {
		href, ok = el.Attr("href")
	}
	if !ok {
		href, ok = el.Find("a[href]").First().Attr("href")
	}
	if !ok {
		href, ok = el.Closest("a[href]").Attr("href")
	}
	if !ok {
		return nil
	}
	target, err := doc.Url.Parse(href)
	if err != nil {
		return err
	}
	return f.Navigate(ctx, target.String())
}

func (f *fakeSession) Back(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) == 0 {
		return session.ErrUnsupported{Op: "back without history"}
	}
	f.current = f.history[len(f.history)-1]
	f.history = f.history[:len(f.history)-1]
	return nil
}

func (f *fakeSession) Document(ctx context.Context) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	cur := f.current
	frames := f.pages[cur]
	i := f.frame[cur]
	f.mu.Unlock()
	if cur == "" {
		return nil, session.ErrUnsupported{Op: "document before navigation"}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(frames[i]))
	if err != nil {
		return nil, err
	}
	doc.Url, _ = url.Parse(cur)
	return doc, nil
}

func (f *fakeSession) URL() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}
