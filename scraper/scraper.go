// Package scraper drives a session through a site profile: listing pages,
// detail pages, calendars and schedules, emitting flat rows.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"github.com/aluiziolira/go-scrape-shows/config"
	"github.com/aluiziolira/go-scrape-shows/extract"
	"github.com/aluiziolira/go-scrape-shows/models"
	"github.com/aluiziolira/go-scrape-shows/parser"
	"github.com/aluiziolira/go-scrape-shows/profile"
	"github.com/aluiziolira/go-scrape-shows/session"
)

// Sink receives rows as soon as a show is complete.
type Sink interface {
	Process(rows ...*models.Row) error
}

// SessionFactory opens the session a run drives.
type SessionFactory func(ctx context.Context, engine profile.Engine, opts session.Options) (session.Session, error)

// OpenSession starts a browser or a static session depending on engine.
func OpenSession(ctx context.Context, engine profile.Engine, opts session.Options) (session.Session, error) {
	if engine == profile.EngineStatic {
		return session.NewStatic(opts)
	}
	return session.NewBrowser(ctx, opts)
}

// Scraper runs one profile. A Scraper is not safe for concurrent runs.
type Scraper struct {
	cfg      *config.Config
	profile  *profile.Profile
	sessOpts session.Options
	open     SessionFactory
	logger   *slog.Logger
	now      func() time.Time
	runID    string
	retry    *retryPolicy
	Metrics  *Metrics

	requestCount  int
	pageCount     int
	calendarPages int
	errorCount    int
	showCount     int
	rowCount      int
	failedURLs    []string
	errorsByType  map[string]int
	completeness  models.Completeness
}

// Option customizes a Scraper.
type Option func(*Scraper)

// WithSessionFactory replaces the session constructor.
func WithSessionFactory(f SessionFactory) Option {
	return func(s *Scraper) {
		if f != nil {
			s.open = f
		}
	}
}

// WithTransport routes static sessions through rt.
func WithTransport(rt http.RoundTripper) Option {
	return func(s *Scraper) {
		s.sessOpts.Transport = rt
	}
}

// WithLogger sets the run logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scraper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics shares a metrics set, e.g. across runs of a server.
func WithMetrics(m *Metrics) Option {
	return func(s *Scraper) {
		if m != nil {
			s.Metrics = m
		}
	}
}

// WithClock replaces time.Now for status derivation and timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scraper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRunID sets the run identifier instead of a random UUID.
func WithRunID(id string) Option {
	return func(s *Scraper) {
		if id != "" {
			s.runID = id
		}
	}
}

// NewScraper builds a scraper for prof configured from cfg.
func NewScraper(cfg *config.Config, prof *profile.Profile, opts ...Option) (*Scraper, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if prof == nil {
		return nil, fmt.Errorf("profile cannot be nil")
	}
	if err := prof.Validate(); err != nil {
		return nil, err
	}

	s := &Scraper{
		cfg:      cfg,
		profile:  prof,
		sessOpts: cfg.SessionOptions(),
		open:     OpenSession,
		logger:   slog.Default(),
		now:      time.Now,
		runID:    uuid.NewString(),
		Metrics:  NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.retry = newRetryPolicy(cfg, s.Metrics)
	return s, nil
}

// RunID returns the identifier attached to the run's logs and result.
func (s *Scraper) RunID() string {
	return s.runID
}

// Run scrapes the profile and streams rows to sink. Field-level failures
// never abort the run; an unreachable start page does. The returned result
// is never nil.
func (s *Scraper) Run(ctx context.Context, sink Sink) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.reset()
	start := s.now()
	logger := s.logger.With(slog.String("run_id", s.runID), slog.String("site", s.profile.Name))

	sess, err := s.open(ctx, s.profile.Engine, s.sessOpts)
	if err != nil {
		s.recordError(logger, s.profile.StartURL, err)
		return s.result(start), fmt.Errorf("open session: %w", err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("close session", slog.Any("error", err))
		}
	}()

	listings, err := s.listings(ctx, sess, logger)
	if err != nil {
		s.failedURLs = append(s.failedURLs, s.profile.StartURL)
		return s.result(start), err
	}
	logger.Info("listings collected", slog.Int("shows", len(listings)), slog.Int("pages", s.pageCount))

	for i, l := range listings {
		if s.cfg.MaxShows > 0 && i >= s.cfg.MaxShows {
			logger.Info("show limit reached", slog.Int("max_shows", s.cfg.MaxShows))
			break
		}
		if err := ctx.Err(); err != nil {
			return s.result(start), err
		}

		rows, err := s.show(ctx, sess, l, logger)
		if err != nil {
			return s.result(start), err
		}
		if len(rows) == 0 {
			continue
		}
		if err := sink.Process(rows...); err != nil {
			return s.result(start), fmt.Errorf("process rows: %w", err)
		}
	}

	return s.result(start), nil
}

func (s *Scraper) reset() {
	s.requestCount = 0
	s.pageCount = 0
	s.calendarPages = 0
	s.errorCount = 0
	s.showCount = 0
	s.rowCount = 0
	s.failedURLs = nil
	s.errorsByType = make(map[string]int)
	s.completeness = models.NewCompleteness()
	s.retry.total = 0
}

func (s *Scraper) result(start time.Time) *models.ScraperResult {
	failed := make([]string, len(s.failedURLs))
	copy(failed, s.failedURLs)
	byType := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		byType[k] = v
	}
	return &models.ScraperResult{
		RunID:         s.runID,
		Site:          s.profile.Name,
		StartTime:     start,
		EndTime:       s.now(),
		ShowCount:     s.showCount,
		TotalCount:    s.rowCount,
		PageCount:     s.pageCount,
		CalendarPages: s.calendarPages,
		RequestCount:  s.requestCount,
		ErrorCount:    s.errorCount,
		RetryCount:    s.retry.total,
		FailedURLs:    failed,
		ErrorsByType:  byType,
		Completeness:  s.completeness,
	}
}

// listings walks the listing pages and returns one listing per accepted
// card. Only a start page that cannot be loaded is an error.
func (s *Scraper) listings(ctx context.Context, sess session.Session, logger *slog.Logger) ([]*models.Listing, error) {
	p := s.profile
	if err := s.load(ctx, sess, p.StartURL, p.Ready, "listing", logger); err != nil {
		return nil, fmt.Errorf("load start page %s: %w", p.StartURL, err)
	}
	if err := s.steps(ctx, sess, p.Setup, logger); err != nil {
		return nil, fmt.Errorf("setup: %w", err)
	}

	var out []*models.Listing
	seen := make(map[string]bool)
	for page := 1; ; page++ {
		doc, err := sess.Document(ctx)
		if err != nil {
			s.recordError(logger, sess.URL(), err)
			break
		}
		s.pageCount++
		s.Metrics.IncPages()

		var cards []*models.Listing
		if p.CardClick != "" {
			cards = s.clickThrough(ctx, sess, doc.Find(p.Card).Length(), seen, logger)
		} else {
			cards = s.cards(doc, pageURL(doc, sess), logger)
		}
		out = append(out, cards...)
		logger.Debug("listing page extracted", slog.Int("page", page), slog.Int("cards", len(cards)))

		if p.NextPage == "" || doc.Find(p.NextPage).Length() == 0 {
			break
		}
		if page >= s.cfg.MaxPages {
			logger.Info("page limit reached", slog.Int("max_pages", s.cfg.MaxPages))
			break
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if err := s.follow(ctx, sess, p.NextPage, p.Ready, logger); err != nil {
			break
		}
	}
	return out, nil
}

// follow clicks a pagination control and waits for the listing to render.
func (s *Scraper) follow(ctx context.Context, sess session.Session, selector, ready string, logger *slog.Logger) error {
	s.requestCount++
	s.Metrics.IncRequest("listing")
	start := time.Now()
	err := sess.Click(ctx, selector, 0)
	if err == nil && ready != "" {
		err = sess.WaitFor(ctx, ready, s.cfg.WaitTimeout)
	}
	s.Metrics.ObserveDuration(time.Since(start))
	if err != nil {
		s.recordError(logger, sess.URL(), err)
	}
	return err
}

func (s *Scraper) cards(doc *goquery.Document, base *url.URL, logger *slog.Logger) []*models.Listing {
	p := s.profile
	var out []*models.Listing
	doc.Find(p.Card).Each(func(i int, card *goquery.Selection) {
		l, results := extract.Listing(p.Name, card, base, p.CardFields, s.now())
		s.logFields(results, logger)
		if name := missingRequired(l, p.Required); name != "" {
			logger.Warn("skipping card without required field", slog.Int("card", i), slog.String("field", name))
			return
		}
		out = append(out, l)
	})
	return out
}

// clickThrough handles listings whose detail URL is only reachable by
// clicking: click, record the URL, go back, restore the listing view.
func (s *Scraper) clickThrough(ctx context.Context, sess session.Session, count int, seen map[string]bool, logger *slog.Logger) []*models.Listing {
	p := s.profile
	var out []*models.Listing
	for i := 0; i < count; i++ {
		if ctx.Err() != nil {
			break
		}
		doc, err := sess.Document(ctx)
		if err != nil {
			s.recordError(logger, sess.URL(), err)
			break
		}
		card := doc.Find(p.Card).Eq(i)
		if card.Length() == 0 {
			break
		}
		l, results := extract.Listing(p.Name, card, pageURL(doc, sess), p.CardFields, s.now())
		s.logFields(results, logger)

		link, err := s.clickOut(ctx, sess, i, logger)
		if err != nil {
			logger.Warn("card click failed", slog.Int("card", i), slog.Any("error", err))
			if restoreErr := s.restore(ctx, sess, logger); restoreErr != nil {
				break
			}
			continue
		}
		l.Merge(models.FieldResult{Name: p.LinkField(), Value: link})

		if seen[link] {
			logger.Debug("duplicate listing", slog.String("link", link))
			continue
		}
		seen[link] = true
		if name := missingRequired(l, p.Required); name != "" {
			logger.Warn("skipping card without required field", slog.Int("card", i), slog.String("field", name))
			continue
		}
		out = append(out, l)
	}
	return out
}

func (s *Scraper) clickOut(ctx context.Context, sess session.Session, i int, logger *slog.Logger) (string, error) {
	p := s.profile
	listingURL := sess.URL()
	if err := sess.Click(ctx, p.Card+" "+p.CardClick, i); err != nil {
		return "", err
	}
	if p.Detail != nil && p.Detail.Ready != "" {
		if err := sess.WaitFor(ctx, p.Detail.Ready, s.cfg.WaitTimeout); err != nil {
			s.recordError(logger, sess.URL(), err)
		}
	}
	link := sess.URL()
	if err := s.restore(ctx, sess, logger); err != nil {
		return "", err
	}
	if link == "" || link == listingURL {
		return "", session.ErrUnsupported{Op: "card click did not navigate"}
	}
	return link, nil
}

// restore goes back to the listing view and replays the Return steps.
func (s *Scraper) restore(ctx context.Context, sess session.Session, logger *slog.Logger) error {
	if err := sess.Back(ctx); err != nil {
		s.recordError(logger, sess.URL(), err)
		return err
	}
	if err := s.steps(ctx, sess, s.profile.Return, logger); err != nil {
		return err
	}
	if s.profile.Ready != "" {
		if err := sess.WaitFor(ctx, s.profile.Ready, s.cfg.WaitTimeout); err != nil {
			s.recordError(logger, sess.URL(), err)
			return err
		}
	}
	return nil
}

// show completes one listing and returns its rows. A show whose detail
// page cannot be loaded yields no rows; only cancellation is an error.
func (s *Scraper) show(ctx context.Context, sess session.Session, l *models.Listing, logger *slog.Logger) ([]*models.Row, error) {
	p := s.profile
	var perfs []models.Performance
	if p.Detail != nil {
		link := l.Get(p.LinkField())
		if link == models.NA {
			logger.Warn("skipping show without detail link", slog.String("title", l.Get("title")))
			return nil, nil
		}
		var err error
		perfs, err = s.detail(ctx, sess, l, link, logger)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.failedURLs = append(s.failedURLs, link)
			logger.Warn("skipping show", slog.String("title", l.Get("title")), slog.String("url", link), slog.Any("error", err))
			return nil, nil
		}
	}

	scrapedAt := s.now()
	var rows []*models.Row
	if p.HasCalendarColumns() {
		rows = models.FanOut(l, perfs, scrapedAt)
	} else {
		rows = models.Rows(l, scrapedAt)
	}

	s.showCount++
	s.rowCount += len(rows)
	s.completeness.Add(l.Missing)
	for _, name := range l.Missing {
		s.Metrics.IncFieldMissing(p.Name, name)
	}
	s.Metrics.IncShows()
	s.Metrics.AddRows(len(rows))
	logger.Info("show scraped",
		slog.String("title", l.Get("title")),
		slog.Int("performances", len(perfs)),
		slog.Int("rows", len(rows)),
		slog.Any("missing", l.Missing),
	)
	return rows, nil
}

func (s *Scraper) detail(ctx context.Context, sess session.Session, l *models.Listing, link string, logger *slog.Logger) ([]models.Performance, error) {
	d := s.profile.Detail
	if err := s.load(ctx, sess, link, d.Ready, "detail", logger); err != nil {
		return nil, err
	}
	doc, err := sess.Document(ctx)
	if err != nil {
		s.recordError(logger, link, err)
		return nil, err
	}
	base := pageURL(doc, sess)
	now := s.now()

	results := extract.Fields(doc.Selection, base, d.Fields, now)
	s.logFields(results, logger)
	for _, res := range results {
		l.Merge(res)
	}

	if d.Milestones != nil {
		s.milestones(doc, d.Milestones, l, now, logger)
	}

	var perfs []models.Performance
	if d.Schedule != nil {
		entries, err := extract.Schedule(doc, d.Schedule)
		if err != nil {
			s.fieldError(logger, "schedule", err)
		}
		perfs = append(perfs, extract.Performances(entries)...)
	}
	if d.Calendar != nil {
		perfs = append(perfs, s.calendar(ctx, sess, d.Calendar, base, logger)...)
	}
	return perfs, nil
}

// milestones derives the opening date, production age and run status. A
// production with an opening date but no readable closing date is active.
func (s *Scraper) milestones(doc *goquery.Document, m *profile.Milestones, l *models.Listing, now time.Time, logger *slog.Logger) {
	dates, err := extract.Milestones(doc, m)
	if err != nil {
		s.fieldError(logger, "milestones", err)
	}

	opening := models.FieldResult{Name: "opening_date", Value: dates.Opening}
	age := models.FieldResult{Name: "age_of_production"}
	status := models.FieldResult{Name: models.ColumnStatus}
	if dates.Opening == "" {
		opening.Err = session.ErrElementNotFound{Selector: m.OpeningLabel}
		age.Err = opening.Err
	} else {
		age.Value, age.Err = parser.ProductionAge(dates.Opening, now)
	}
	if dates.Closing == "" {
		status.Err = session.ErrElementNotFound{Selector: m.ClosingLabel}
	} else {
		status.Value, status.Err = parser.RunStatus(dates.Closing, now)
	}
	if !status.OK() && dates.Opening != "" {
		status = models.FieldResult{Name: models.ColumnStatus, Value: parser.StatusActive}
	}

	results := []models.FieldResult{opening, age, status}
	s.logFields(results, logger)
	for _, res := range results {
		l.Merge(res)
	}
}

// calendar reads every page of a detail calendar, bounded by
// MaxCalendarPages. Failures end the walk and keep what was read.
func (s *Scraper) calendar(ctx context.Context, sess session.Session, cal *profile.Calendar, base *url.URL, logger *slog.Logger) []models.Performance {
	if cal.Open != "" {
		if err := sess.Click(ctx, cal.Open, 0); err != nil {
			s.fieldError(logger, "calendar", err)
			return nil
		}
	}
	if cal.Ready != "" {
		if err := sess.WaitFor(ctx, cal.Ready, s.cfg.WaitTimeout); err != nil {
			s.fieldError(logger, "calendar", err)
			return nil
		}
	}

	var (
		perfs []models.Performance
		last  *goquery.Document
	)
	for page := 1; ; page++ {
		doc, err := sess.Document(ctx)
		if err != nil {
			s.fieldError(logger, "calendar", err)
			break
		}
		last = doc
		s.calendarPages++
		s.Metrics.IncCalendarPages()

		if !cal.Cumulative {
			perfs = append(perfs, s.calendarPass(doc, base, cal, logger)...)
		}
		if extract.CalendarDone(doc, cal) {
			break
		}
		if page >= s.cfg.MaxCalendarPages {
			logger.Warn("calendar page limit reached", slog.Int("max_calendar_pages", s.cfg.MaxCalendarPages))
			break
		}
		if err := sess.Click(ctx, cal.Next, 0); err != nil {
			s.fieldError(logger, "calendar", err)
			break
		}
		if err := pause(ctx, s.cfg.CalendarDelay, s.cfg.CalendarJitter); err != nil {
			break
		}
	}
	if cal.Cumulative && last != nil {
		perfs = s.calendarPass(last, base, cal, logger)
	}
	return perfs
}

func (s *Scraper) calendarPass(doc *goquery.Document, base *url.URL, cal *profile.Calendar, logger *slog.Logger) []models.Performance {
	perfs, errs := extract.CalendarPass(doc, base, cal, s.now())
	for _, err := range errs {
		s.fieldError(logger, "calendar_entry", err)
	}
	return perfs
}

// load navigates to rawURL and waits for ready, retrying transient
// failures.
func (s *Scraper) load(ctx context.Context, sess session.Session, rawURL, ready, phase string, logger *slog.Logger) error {
	return s.retry.Do(ctx, func(attempt int) error {
		s.requestCount++
		s.Metrics.IncRequest(phase)
		start := time.Now()
		err := sess.Navigate(ctx, rawURL)
		if err == nil && ready != "" {
			err = sess.WaitFor(ctx, ready, s.cfg.WaitTimeout)
		}
		s.Metrics.ObserveDuration(time.Since(start))
		if err != nil {
			s.recordError(logger, rawURL, err)
			if attempt < s.cfg.MaxRetries && session.Retryable(err) {
				logger.Info("retrying page load", slog.String("url", rawURL), slog.Int("attempt", attempt+1))
			}
		}
		return err
	})
}

func (s *Scraper) steps(ctx context.Context, sess session.Session, steps []profile.Step, logger *slog.Logger) error {
	for i, st := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		switch st.Action {
		case profile.ActionClick:
			err = sess.Click(ctx, st.Selector, st.Index)
		case profile.ActionWait:
			err = sess.WaitFor(ctx, st.Selector, s.cfg.WaitTimeout)
		case profile.ActionSleep:
			err = sleep(ctx, st.Duration)
		default:
			err = fmt.Errorf("unknown step action %q", st.Action)
		}
		if err == nil {
			continue
		}
		if st.Optional && ctx.Err() == nil {
			logger.Debug("optional step skipped", slog.Int("step", i), slog.String("selector", st.Selector), slog.Any("error", err))
			continue
		}
		s.recordError(logger, sess.URL(), err)
		return fmt.Errorf("step %d (%s %s): %w", i, st.Action, st.Selector, err)
	}
	return nil
}

func (s *Scraper) recordError(logger *slog.Logger, rawURL string, err error) {
	category := session.ErrorType(err)
	s.errorCount++
	s.errorsByType[category]++
	s.Metrics.IncError(category)
	logger.Error("request error",
		slog.String("url", rawURL),
		slog.String("category", category),
		slog.Any("error", err),
	)
}

// fieldError records an extraction failure that does not stop the show.
func (s *Scraper) fieldError(logger *slog.Logger, name string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	category := session.ErrorType(err)
	s.errorsByType[category]++
	s.Metrics.IncError(category)
	logger.Debug("extraction failed", slog.String("field", name), slog.String("category", category), slog.Any("error", err))
}

func (s *Scraper) logFields(results []models.FieldResult, logger *slog.Logger) {
	for _, res := range results {
		if res.Err != nil {
			logger.Debug("field defaulted to N/A", slog.String("field", res.Name), slog.Any("error", res.Err))
		}
	}
}

func missingRequired(l *models.Listing, required []string) string {
	for _, name := range required {
		if l.Get(name) == models.NA {
			return name
		}
	}
	return ""
}

func pageURL(doc *goquery.Document, sess session.Session) *url.URL {
	if doc.Url != nil {
		return doc.Url
	}
	u, err := url.Parse(sess.URL())
	if err != nil || u.Host == "" {
		return nil
	}
	return u
}
