// Package extract evaluates profile fields against parsed HTML.
package extract

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-shows/models"
	"github.com/aluiziolira/go-scrape-shows/parser"
	"github.com/aluiziolira/go-scrape-shows/profile"
	"github.com/aluiziolira/go-scrape-shows/session"
)

// Field evaluates one field against scope. An empty selector reads scope
// itself. Failures are reported in the result, never by panicking.
func Field(scope *goquery.Selection, base *url.URL, f profile.Field, now time.Time) models.FieldResult {
	res := models.FieldResult{Name: f.Name}
	if f.Const != "" {
		res.Value = f.Const
		return res
	}

	matches := scope
	if f.Selector != "" {
		matches = scope.Find(f.Selector)
	}
	if matches.Length() == 0 {
		res.Err = session.ErrElementNotFound{Selector: f.Selector}
		return res
	}

	var value string
	if f.Join != "" {
		var parts []string
		matches.Each(func(_ int, s *goquery.Selection) {
			if v := read(s, f); v != "" {
				parts = append(parts, v)
			}
		})
		value = strings.Join(parts, f.Join)
	} else {
		i, ok := index(matches.Length(), f.Index)
		if !ok {
			res.Err = session.ErrElementNotFound{Selector: f.Selector}
			return res
		}
		value = read(matches.Eq(i), f)
	}

	if f.Trim != "" {
		value = strings.TrimSpace(strings.Trim(value, f.Trim))
	}
	if value == "" {
		res.Err = session.ErrElementNotFound{Selector: f.Selector}
		return res
	}
	if f.Absolute {
		value = Resolve(base, value)
	}
	if f.Transform != "" {
		out, err := parser.ApplyTransform(f.Transform, value, now)
		if err != nil {
			res.Err = err
			return res
		}
		value = out
	}
	res.Value = value
	return res
}

// Fields evaluates every field against scope.
func Fields(scope *goquery.Selection, base *url.URL, fields []profile.Field, now time.Time) []models.FieldResult {
	out := make([]models.FieldResult, 0, len(fields))
	for _, f := range fields {
		out = append(out, Field(scope, base, f, now))
	}
	return out
}

// Listing builds a listing from one card.
func Listing(site string, card *goquery.Selection, base *url.URL, fields []profile.Field, now time.Time) (*models.Listing, []models.FieldResult) {
	l := models.NewListing(site)
	results := Fields(card, base, fields, now)
	for _, res := range results {
		l.Apply(res)
	}
	return l, results
}

// Resolve makes ref absolute against base. Unparseable references are
// returned unchanged.
func Resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := base.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return u.String()
}

// Text returns the whitespace-collapsed text of s.
func Text(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

func read(s *goquery.Selection, f profile.Field) string {
	if f.Attr == "" {
		return Text(s)
	}
	if v, ok := s.Attr(f.Attr); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	for _, attr := range f.Fallbacks {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func index(n, i int) (int, bool) {
	if i < 0 {
		i += n
	}
	return i, i >= 0 && i < n
}
