package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

type page struct {
	url  *url.URL
	body []byte
}

// StaticSession fetches pages with a colly collector. Scripts never run, so
// clicks only work on links.
type StaticSession struct {
	collector *colly.Collector

	mu      sync.Mutex
	current *page
	fetched *page
	status  int
	history []*page
}

// NewStatic builds a static session configured from opts.
func NewStatic(opts Options) (*StaticSession, error) {
	collector := colly.NewCollector(
		colly.UserAgent(opts.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(opts.Timeout)
	collector.IgnoreRobotsTxt = !opts.RespectRobotsTxt
	if opts.Transport != nil {
		collector.WithTransport(opts.Transport)
	} else {
		collector.WithTransport(&http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   opts.Timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		})
	}

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       opts.Delay,
		RandomDelay: opts.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	s := &StaticSession{collector: collector}

	collector.OnRequest(func(r *colly.Request) {
		if opts.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", opts.AcceptLanguage)
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.status = r.StatusCode
		s.fetched = &page{url: r.Request.URL, body: r.Body}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r == nil {
			return
		}
		s.mu.Lock()
		s.status = r.StatusCode
		s.mu.Unlock()
	})

	return s, nil
}

// Navigate fetches rawURL.
func (s *StaticSession) Navigate(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.fetched = nil
	s.status = 0
	s.mu.Unlock()

	err := s.collector.Visit(rawURL)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		return classifyError(err, s.status)
	}
	if s.fetched == nil {
		return ErrConnection{Err: fmt.Errorf("no response for %s", rawURL)}
	}
	if s.current != nil {
		s.history = append(s.history, s.current)
	}
	s.current = s.fetched
	return nil
}

// WaitFor checks the fetched page for selector. Nothing renders after the
// fetch, so there is nothing to wait for.
func (s *StaticSession) WaitFor(ctx context.Context, selector string, _ time.Duration) error {
	doc, err := s.Document(ctx)
	if err != nil {
		return err
	}
	if doc.Find(selector).Length() == 0 {
		return ErrElementNotFound{Selector: selector}
	}
	return nil
}

// Click follows the link of the matched element.
func (s *StaticSession) Click(ctx context.Context, selector string, index int) error {
	doc, err := s.Document(ctx)
	if err != nil {
		return err
	}
	matches := doc.Find(selector)
	i, ok := pick(matches.Length(), index)
	if !ok {
		return ErrElementNotFound{Selector: selector}
	}
	el := matches.Eq(i)

	href, ok := el.Attr("href")
	if !ok {
		href, ok = el.Find("a[href]").First().Attr("href")
	}
	if !ok {
		href, ok = el.Closest("a[href]").Attr("href")
	}
	if !ok || href == "" {
		return ErrUnsupported{Op: "click on " + selector}
	}

	s.mu.Lock()
	base := s.current.url
	s.mu.Unlock()
	target, err := base.Parse(href)
	if err != nil {
		return fmt.Errorf("resolve %q: %w", href, err)
	}
	return s.Navigate(ctx, target.String())
}

// Back restores the previously fetched page without refetching it.
func (s *StaticSession) Back(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return ErrUnsupported{Op: "back without history"}
	}
	s.current = s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	return nil
}

// Document parses the current page.
func (s *StaticSession) Document(ctx context.Context) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur == nil {
		return nil, ErrUnsupported{Op: "document before navigation"}
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(cur.body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", cur.url, err)
	}
	doc.Url = cur.url
	return doc, nil
}

// URL returns the current page address.
func (s *StaticSession) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return ""
	}
	return s.current.url.String()
}

// Close is a no-op; the collector holds no resources.
func (s *StaticSession) Close() error {
	return nil
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}
