// Package models defines data structures for the scraper.
package models

import (
	"encoding/json"
	"sort"
	"time"
)

// NA marks a field that could not be extracted or does not exist on the page.
const NA = "N/A"

// Column names shared by every calendar-aware profile.
const (
	ColumnDate      = "date"
	ColumnTime      = "time"
	ColumnStatus    = "status"
	ColumnDateRange = "date_range"
)

// FieldResult is the outcome of extracting a single field.
type FieldResult struct {
	Name  string
	Value string
	Err   error
}

// OK reports whether the field was extracted.
func (f FieldResult) OK() bool {
	return f.Err == nil && f.Value != ""
}

// Or returns the extracted value, or def when extraction failed.
func (f FieldResult) Or(def string) string {
	if !f.OK() {
		return def
	}
	return f.Value
}

// Listing is one card from an index page, later enriched with detail fields.
type Listing struct {
	Site    string
	Fields  map[string]string
	Missing []string
}

// NewListing returns an empty listing for site.
func NewListing(site string) *Listing {
	return &Listing{Site: site, Fields: make(map[string]string)}
}

// Get returns the named field or NA.
func (l *Listing) Get(name string) string {
	if v, ok := l.Fields[name]; ok && v != "" {
		return v
	}
	return NA
}

// Apply records a field result, defaulting failures to NA.
func (l *Listing) Apply(res FieldResult) {
	l.Fields[res.Name] = res.Or(NA)
	if !res.OK() {
		l.markMissing(res.Name)
	}
}

// Merge copies detail results over the listing, keeping the card value when
// the detail page has nothing better.
func (l *Listing) Merge(res FieldResult) {
	if res.OK() && res.Value != NA {
		l.Fields[res.Name] = res.Value
		l.clearMissing(res.Name)
		return
	}
	if cur, ok := l.Fields[res.Name]; ok && cur != NA && cur != "" {
		return
	}
	l.Apply(res)
}

func (l *Listing) markMissing(name string) {
	for _, m := range l.Missing {
		if m == name {
			return
		}
	}
	l.Missing = append(l.Missing, name)
}

func (l *Listing) clearMissing(name string) {
	out := l.Missing[:0]
	for _, m := range l.Missing {
		if m != name {
			out = append(out, m)
		}
	}
	l.Missing = out
}

// Performance is one dated slot from a calendar or schedule.
type Performance struct {
	Date      string
	Time      string
	Status    string
	DateRange string
	Extra     map[string]string
}

// Row is a flat output record.
type Row struct {
	Site      string
	Fields    map[string]string
	Missing   []string
	ScrapedAt time.Time
}

// Get returns the named column, or NA when absent.
func (r *Row) Get(name string) string {
	switch name {
	case "site":
		return r.Site
	case "scraped_at":
		return r.ScrapedAt.Format(time.RFC3339)
	}
	if v, ok := r.Fields[name]; ok && v != "" {
		return v
	}
	return NA
}

// MarshalJSON flattens the row into a single object.
func (r *Row) MarshalJSON() ([]byte, error) {
	out := make(map[string]string, len(r.Fields)+2)
	for k, v := range r.Fields {
		out[k] = v
	}
	out["site"] = r.Site
	out["scraped_at"] = r.ScrapedAt.Format(time.RFC3339)
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *Row) UnmarshalJSON(data []byte) error {
	var in map[string]string
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	r.Site = in["site"]
	if ts, ok := in["scraped_at"]; ok {
		parsed, err := time.Parse(time.RFC3339, ts)
		if err != nil {
			return err
		}
		r.ScrapedAt = parsed
	}
	delete(in, "site")
	delete(in, "scraped_at")
	r.Fields = in
	return nil
}

// FieldNames returns the row's field names in sorted order.
func (r *Row) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// FanOut flattens a listing into one row per performance. A listing without
// performances still yields exactly one row, with the calendar columns set
// to NA.
func FanOut(l *Listing, perfs []Performance, scrapedAt time.Time) []*Row {
	if len(perfs) == 0 {
		row := newRow(l, scrapedAt)
		row.Fields[ColumnDate] = NA
		row.Fields[ColumnTime] = NA
		if _, ok := row.Fields[ColumnStatus]; !ok {
			row.Fields[ColumnStatus] = NA
		}
		return []*Row{row}
	}

	rows := make([]*Row, 0, len(perfs))
	for _, perf := range perfs {
		row := newRow(l, scrapedAt)
		row.Fields[ColumnDate] = orNA(perf.Date)
		row.Fields[ColumnTime] = orNA(perf.Time)
		if perf.Status != "" {
			row.Fields[ColumnStatus] = perf.Status
		} else if _, ok := row.Fields[ColumnStatus]; !ok {
			row.Fields[ColumnStatus] = NA
		}
		if perf.DateRange != "" {
			row.Fields[ColumnDateRange] = perf.DateRange
		}
		for k, v := range perf.Extra {
			row.Fields[k] = orNA(v)
		}
		rows = append(rows, row)
	}
	return rows
}

// Rows converts a listing without any detail stage into a single row.
func Rows(l *Listing, scrapedAt time.Time) []*Row {
	return []*Row{newRow(l, scrapedAt)}
}

func newRow(l *Listing, scrapedAt time.Time) *Row {
	fields := make(map[string]string, len(l.Fields)+3)
	for k, v := range l.Fields {
		fields[k] = v
	}
	missing := make([]string, len(l.Missing))
	copy(missing, l.Missing)
	return &Row{
		Site:      l.Site,
		Fields:    fields,
		Missing:   missing,
		ScrapedAt: scrapedAt,
	}
}

func orNA(v string) string {
	if v == "" {
		return NA
	}
	return v
}
