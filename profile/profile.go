// Package profile describes a site as data: where to start, which elements
// are cards, which fields to pull from them and how to walk detail pages.
package profile

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/aluiziolira/go-scrape-shows/parser"
)

// Engine selects the session implementation used for a profile.
type Engine string

const (
	// EngineBrowser drives a headless Chromium through the DevTools protocol.
	EngineBrowser Engine = "browser"
	// EngineStatic fetches plain HTML without running scripts.
	EngineStatic Engine = "static"
)

// Step actions.
const (
	ActionClick = "click"
	ActionWait  = "wait"
	ActionSleep = "sleep"
)

// Status rules for calendar entries.
const (
	StatusDay    = "day"
	StatusWindow = "window"
	StatusNone   = "none"
)

// Step is one interaction performed on the page before extraction.
type Step struct {
	Action   string        `mapstructure:"action"`
	Selector string        `mapstructure:"selector"`
	Index    int           `mapstructure:"index"`
	Duration time.Duration `mapstructure:"duration"`
	Optional bool          `mapstructure:"optional"`
}

// Field extracts one named value relative to a card or a page.
//
// An empty Selector targets the scope element itself. Index picks the n-th
// match, negative values counting from the last one. When Join is set every
// match is read and joined with it. Attr reads an attribute instead of the
// text, with Fallbacks tried in order when it is empty.
type Field struct {
	Name      string   `mapstructure:"name"`
	Selector  string   `mapstructure:"selector"`
	Attr      string   `mapstructure:"attr"`
	Fallbacks []string `mapstructure:"fallbacks"`
	Index     int      `mapstructure:"index"`
	Join      string   `mapstructure:"join"`
	Const     string   `mapstructure:"const"`
	Absolute  bool     `mapstructure:"absolute"`
	Trim      string   `mapstructure:"trim"`
	Transform string   `mapstructure:"transform"`
}

// Calendar walks a paginated performance calendar.
type Calendar struct {
	// Open is clicked once to reveal the calendar.
	Open  string `mapstructure:"open"`
	Ready string `mapstructure:"ready"`

	// Header holds the month and year of the rendered page.
	Header       string `mapstructure:"header"`
	HeaderLayout string `mapstructure:"header_layout"`

	// Groups and GroupDate are used when several entries share one date
	// heading.
	Groups    string `mapstructure:"groups"`
	GroupDate string `mapstructure:"group_date"`

	Entry        string `mapstructure:"entry"`
	DateAttr     string `mapstructure:"date_attr"`
	DateSelector string `mapstructure:"date_selector"`
	TimeSelector string `mapstructure:"time_selector"`

	// Layout parses "<date> - <time>" as one timestamp when set.
	Layout string        `mapstructure:"layout"`
	Status string        `mapstructure:"status"`
	Window time.Duration `mapstructure:"window"`
	Extra  []Field       `mapstructure:"extra"`

	Next     string `mapstructure:"next"`
	Disabled string `mapstructure:"disabled"`

	// Cumulative pages append to the entries already rendered, so entries
	// are read once after the last click instead of after every click.
	Cumulative bool `mapstructure:"cumulative"`
}

// Schedule reads a free-text schedule block.
type Schedule struct {
	Selector string `mapstructure:"selector"`
}

// Milestones reads opening and closing dates from labelled slides.
type Milestones struct {
	Slide        string `mapstructure:"slide"`
	Title        string `mapstructure:"title"`
	Text         string `mapstructure:"text"`
	OpeningLabel string `mapstructure:"opening_label"`
	ClosingLabel string `mapstructure:"closing_label"`
}

// Detail describes the page reached from a card's link.
type Detail struct {
	// Link names the listing field holding the detail URL.
	Link       string      `mapstructure:"link"`
	Ready      string      `mapstructure:"ready"`
	Fields     []Field     `mapstructure:"fields"`
	Calendar   *Calendar   `mapstructure:"calendar"`
	Schedule   *Schedule   `mapstructure:"schedule"`
	Milestones *Milestones `mapstructure:"milestones"`
}

// Profile is the full description of one scrape target.
type Profile struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
	Engine      Engine `mapstructure:"engine"`
	StartURL    string `mapstructure:"start_url"`
	Ready       string `mapstructure:"ready"`
	Setup       []Step `mapstructure:"setup"`

	Card       string  `mapstructure:"card"`
	CardFields []Field `mapstructure:"card_fields"`

	// CardClick is clicked per card when listings only expose their detail
	// URL through navigation. The resulting URL is stored in the "link"
	// field, then the browser goes back and runs Return.
	CardClick string `mapstructure:"card_click"`
	Return    []Step `mapstructure:"return"`

	Required []string `mapstructure:"required"`
	NextPage string   `mapstructure:"next_page"`
	Detail   *Detail  `mapstructure:"detail"`
	Columns  []string `mapstructure:"columns"`

	// Format is the output format used when the configuration names none.
	Format string `mapstructure:"format"`
}

// LinkField returns the listing field that holds the detail URL.
func (p *Profile) LinkField() string {
	if p.Detail != nil && p.Detail.Link != "" {
		return p.Detail.Link
	}
	return "link"
}

// HasCalendarColumns reports whether rows fan out per performance.
func (p *Profile) HasCalendarColumns() bool {
	return p.Detail != nil && (p.Detail.Calendar != nil || p.Detail.Schedule != nil)
}

// ErrInvalidProfile is wrapped by every validation failure.
var ErrInvalidProfile = errors.New("invalid profile")

func invalid(name, format string, args ...any) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidProfile, name, fmt.Sprintf(format, args...))
}

// Validate ensures the profile can be executed.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidProfile)
	}
	switch p.Engine {
	case EngineBrowser, EngineStatic:
	default:
		return invalid(p.Name, "engine must be %s or %s", EngineBrowser, EngineStatic)
	}

	u, err := url.Parse(p.StartURL)
	if err != nil || u.Host == "" {
		return invalid(p.Name, "start URL %q must be absolute", p.StartURL)
	}
	if p.Card == "" {
		return invalid(p.Name, "card selector cannot be empty")
	}
	if len(p.CardFields) == 0 && p.CardClick == "" {
		return invalid(p.Name, "profile extracts nothing from its cards")
	}
	if len(p.Columns) == 0 {
		return invalid(p.Name, "columns cannot be empty")
	}
	switch p.Format {
	case "", "csv", "json", "dual", "sqlite":
	default:
		return invalid(p.Name, "format %q must be csv, json, dual or sqlite", p.Format)
	}
	if p.CardClick != "" && p.Engine != EngineBrowser {
		return invalid(p.Name, "card clicks need the browser engine")
	}

	if err := validateSteps(p.Name, p.Setup); err != nil {
		return err
	}
	if err := validateSteps(p.Name, p.Return); err != nil {
		return err
	}
	if err := validateFields(p.Name, p.CardFields); err != nil {
		return err
	}
	for _, req := range p.Required {
		if !hasField(p.CardFields, req) && !(req == "link" && p.CardClick != "") {
			return invalid(p.Name, "required field %q is not extracted from cards", req)
		}
	}

	if p.Detail != nil {
		if err := p.Detail.validate(p.Name); err != nil {
			return err
		}
	}
	return nil
}

func (d *Detail) validate(name string) error {
	if err := validateFields(name, d.Fields); err != nil {
		return err
	}
	if c := d.Calendar; c != nil {
		if c.Entry == "" {
			return invalid(name, "calendar entry selector cannot be empty")
		}
		switch c.Status {
		case "", StatusDay, StatusNone:
		case StatusWindow:
			if c.Layout == "" {
				return invalid(name, "window status needs a date-time layout")
			}
			if c.Window <= 0 {
				return invalid(name, "window status needs a positive window")
			}
		default:
			return invalid(name, "unknown calendar status rule %q", c.Status)
		}
		if c.DateAttr == "" && c.DateSelector == "" && c.GroupDate == "" {
			return invalid(name, "calendar needs a date attribute or selector")
		}
		if err := validateFields(name, c.Extra); err != nil {
			return err
		}
	}
	if s := d.Schedule; s != nil && s.Selector == "" {
		return invalid(name, "schedule selector cannot be empty")
	}
	if m := d.Milestones; m != nil && (m.Slide == "" || m.Title == "" || m.Text == "") {
		return invalid(name, "milestones need slide, title and text selectors")
	}
	return nil
}

func validateSteps(name string, steps []Step) error {
	for i, s := range steps {
		switch s.Action {
		case ActionClick, ActionWait:
			if s.Selector == "" {
				return invalid(name, "step %d (%s) needs a selector", i, s.Action)
			}
		case ActionSleep:
			if s.Duration <= 0 {
				return invalid(name, "step %d (sleep) needs a positive duration", i)
			}
		default:
			return invalid(name, "step %d has unknown action %q", i, s.Action)
		}
	}
	return nil
}

func validateFields(name string, fields []Field) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			return invalid(name, "field without a name")
		}
		if seen[f.Name] {
			return invalid(name, "duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		if f.Transform != "" && !parser.KnownTransform(f.Transform) {
			return invalid(name, "field %q uses unknown transform %q", f.Name, f.Transform)
		}
	}
	return nil
}

func hasField(fields []Field, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}
