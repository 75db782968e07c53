package session

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const hideWebdriver = `Object.defineProperty(navigator, 'webdriver', {get: () => undefined})`

// BrowserSession drives a Chromium tab through the DevTools protocol.
type BrowserSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	timeout  time.Duration
}

// NewBrowser launches a browser with automation markers disabled and opens
// one tab.
func NewBrowser(ctx context.Context, opts Options) (*BrowserSession, error) {
	l := launcher.New().
		Headless(opts.Headless).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("ignore-certificate-errors").
		Set("ignore-ssl-errors").
		Set("disable-infobars").
		Set("disable-dev-shm-usage")
	if opts.AcceptLanguage != "" {
		l = l.Set("lang", opts.AcceptLanguage)
	}
	if opts.WindowSize != "" {
		l = l.Set("window-size", opts.WindowSize)
	}
	if opts.Bin != "" {
		l = l.Bin(opts.Bin)
	}

	controlURL, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, ErrConnection{Err: fmt.Errorf("launch browser: %w", err)}
	}

	s := &BrowserSession{launcher: l, timeout: opts.Timeout}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, ErrConnection{Err: fmt.Errorf("connect browser: %w", err)}
	}
	s.browser = browser

	if err := browser.IgnoreCertErrors(true); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ignore cert errors: %w", err)
	}

	// Don't download files in the browser, e.g. pdf files
	if err := (proto.BrowserSetDownloadBehavior{
		Behavior:         proto.BrowserSetDownloadBehaviorBehaviorDeny,
		BrowserContextID: browser.BrowserContextID,
	}).Call(browser); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("deny downloads: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	s.page = page

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      opts.UserAgent,
		AcceptLanguage: opts.AcceptLanguage,
	}); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("set user agent: %w", err)
	}
	if _, err := page.EvalOnNewDocument(hideWebdriver); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("hide webdriver flag: %w", err)
	}

	return s, nil
}

// Navigate loads rawURL and waits for the load event.
func (s *BrowserSession) Navigate(ctx context.Context, rawURL string) error {
	p := s.page.Context(ctx).Timeout(s.timeout)
	if err := p.Navigate(rawURL); err != nil {
		return classifyBrowserError(err)
	}
	if err := p.WaitLoad(); err != nil {
		return classifyBrowserError(err)
	}
	return nil
}

// WaitFor polls until selector matches.
func (s *BrowserSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = s.timeout
	}
	p := s.page.Context(ctx).Timeout(timeout)
	css, text := splitContains(selector)

	var err error
	if text != "" {
		_, err = p.ElementR(css, regexp.QuoteMeta(text))
	} else {
		_, err = p.Element(css)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout{Err: fmt.Errorf("waiting for %s: %w", selector, err)}
		}
		return classifyBrowserError(err)
	}
	return nil
}

// Click scrolls the element into view and clicks it from script, which is
// not intercepted by overlays.
func (s *BrowserSession) Click(ctx context.Context, selector string, index int) error {
	p := s.page.Context(ctx).Timeout(s.timeout)
	css, text := splitContains(selector)

	els, err := p.Elements(css)
	if err != nil {
		return classifyBrowserError(err)
	}
	if text != "" {
		var matched rod.Elements
		for _, el := range els {
			t, err := el.Text()
			if err == nil && strings.Contains(t, text) {
				matched = append(matched, el)
			}
		}
		els = matched
	}

	i, ok := pick(len(els), index)
	if !ok {
		return ErrElementNotFound{Selector: selector}
	}
	el := els[i]
	if err := el.ScrollIntoView(); err != nil {
		return classifyBrowserError(err)
	}
	if _, err := el.Eval(`() => this.click()`); err != nil {
		return classifyBrowserError(err)
	}

	// Let the page react before the caller inspects it.
	_ = p.Timeout(5 * time.Second).WaitStable(300 * time.Millisecond)
	return nil
}

// Back goes one step back in the tab history.
func (s *BrowserSession) Back(ctx context.Context) error {
	p := s.page.Context(ctx).Timeout(s.timeout)
	if err := p.NavigateBack(); err != nil {
		return classifyBrowserError(err)
	}
	if err := p.WaitLoad(); err != nil {
		return classifyBrowserError(err)
	}
	return nil
}

// Document snapshots the rendered DOM.
func (s *BrowserSession) Document(ctx context.Context) (*goquery.Document, error) {
	html, err := s.page.Context(ctx).Timeout(s.timeout).HTML()
	if err != nil {
		return nil, classifyBrowserError(err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

// URL returns the address shown in the tab.
func (s *BrowserSession) URL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close releases the browser and its launcher.
func (s *BrowserSession) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
	}
	return err
}

func classifyBrowserError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var nav *rod.NavigationError
	if errors.As(err, &nav) {
		return ErrConnection{Err: err}
	}
	var notFound *rod.ElementNotFoundError
	if errors.As(err, &notFound) {
		return ErrElementNotFound{Selector: "element"}
	}
	return err
}
