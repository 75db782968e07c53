// Package parser holds the pure text transforms applied to scraped values.
package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-shows/models"
)

// Status labels derived from a performance or production date.
const (
	StatusActive   = "active"
	StatusUpcoming = "upcoming"
	StatusClosed   = "closed"
)

// Market labels.
const (
	MarketUS      = "US"
	MarketUK      = "UK"
	MarketUnknown = "Unknown"
)

// ISODate is the output layout for normalized calendar dates.
const ISODate = "2006-01-02"

var (
	ordinalRe   = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	dateLabelRe = regexp.MustCompile(`(?i)\b(Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday),?\s+([A-Za-z]{3,9})\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	weekdayRe   = regexp.MustCompile(`(?i)^(Monday|Tuesday|Wednesday|Thursday|Friday|Saturday|Sunday|Mon|Tue|Wed|Thu|Fri|Sat|Sun),?\s+`)
	yearRe      = regexp.MustCompile(`\b(19|20)\d{2}\b`)
	openingRe   = regexp.MustCompile(`(?i)Opening:\s*([A-Za-z]{3,9}\.?\s+\d{1,2},?\s+\d{4})`)
	spaceRe     = regexp.MustCompile(`\s+`)
	parenRe     = regexp.MustCompile(`[()]`)
)

// StripOrdinals removes st/nd/rd/th suffixes from day numbers.
func StripOrdinals(s string) string {
	return ordinalRe.ReplaceAllString(s, "$1")
}

// ExtractDateLabel pulls "Weekday, Month Day" out of a longer label such as
// an ARIA label, with the ordinal suffix removed.
func ExtractDateLabel(label string) (string, error) {
	m := dateLabelRe.FindStringSubmatch(label)
	if m == nil {
		return "", fmt.Errorf("no date in label %q", label)
	}
	return fmt.Sprintf("%s, %s %s", m[1], m[2], m[3]), nil
}

// ParseCalendarDay parses a "Monday, June 28" or "Jun 28" label into a date
// in the given year.
func ParseCalendarDay(label string, year int, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	clean := strings.TrimSpace(StripOrdinals(label))
	clean = weekdayRe.ReplaceAllString(clean, "")
	clean = strings.TrimSuffix(strings.ReplaceAll(clean, ".", ""), ",")
	clean = spaceRe.ReplaceAllString(clean, " ")

	for _, layout := range []string{"January 2", "Jan 2"} {
		t, err := time.Parse(layout, clean)
		if err != nil {
			continue
		}
		day := time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, loc)
		if day.Month() != t.Month() || day.Day() != t.Day() {
			return time.Time{}, fmt.Errorf("calendar day %q does not exist in %d", label, year)
		}
		return day, nil
	}
	return time.Time{}, fmt.Errorf("unparseable calendar day %q", label)
}

// CalendarYear returns the year shown in a calendar header such as
// "June 2025", or now's year when the header carries none.
func CalendarYear(header string, now time.Time) int {
	if m := yearRe.FindString(header); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			return y
		}
	}
	return now.Year()
}

// NormalizeCalendarDate turns a calendar label into an ISO date, taking the
// year from the calendar header.
func NormalizeCalendarDate(label, header string, now time.Time) (string, error) {
	day, err := ExtractDateLabel(label)
	if err != nil {
		day = label
	}
	t, err := ParseCalendarDay(day, CalendarYear(header, now), now.Location())
	if err != nil {
		return "", err
	}
	return t.Format(ISODate), nil
}

// DeriveStatus compares whole days: same day is active, later is upcoming,
// earlier is closed.
func DeriveStatus(day, today time.Time) string {
	d := truncateDay(day)
	t := truncateDay(today.In(day.Location()))
	switch {
	case d.Equal(t):
		return StatusActive
	case d.After(t):
		return StatusUpcoming
	default:
		return StatusClosed
	}
}

// DeriveStatusWindow treats a performance starting within window of now as
// active.
func DeriveStatusWindow(t, now time.Time, window time.Duration) string {
	diff := t.Sub(now)
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff <= window:
		return StatusActive
	case t.After(now):
		return StatusUpcoming
	default:
		return StatusClosed
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseDateTime parses text with layout in loc after collapsing whitespace
// and stripping ordinals.
func ParseDateTime(text, layout string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	clean := spaceRe.ReplaceAllString(strings.TrimSpace(StripOrdinals(text)), " ")
	t, err := time.ParseInLocation(layout, clean, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", text, err)
	}
	return t, nil
}

// parseLooseDate accepts the month-day-year forms used by production pages:
// "Jun 5, 2023", "JUN 5 2023", "June 5 2023".
func parseLooseDate(text string, loc *time.Location) (time.Time, error) {
	clean := strings.ReplaceAll(strings.TrimSpace(text), ",", "")
	clean = strings.ReplaceAll(clean, ".", "")
	clean = spaceRe.ReplaceAllString(StripOrdinals(clean), " ")
	if clean != "" {
		clean = strings.ToUpper(clean[:1]) + strings.ToLower(clean[1:])
	}
	for _, layout := range []string{"Jan 2 2006", "January 2 2006"} {
		if t, err := time.ParseInLocation(layout, clean, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", text)
}

// ProductionAge returns the completed years since the opening date found in
// text, or "upcoming" when the production has not opened yet.
func ProductionAge(text string, now time.Time) (string, error) {
	raw := text
	if m := openingRe.FindStringSubmatch(text); m != nil {
		raw = m[1]
	}
	opening, err := parseLooseDate(raw, now.Location())
	if err != nil {
		return models.NA, err
	}
	if opening.After(now) {
		return StatusUpcoming, nil
	}
	years := now.Year() - opening.Year()
	if now.Month() < opening.Month() || (now.Month() == opening.Month() && now.Day() < opening.Day()) {
		years--
	}
	return strconv.Itoa(years), nil
}

// RunStatus derives a production status from its closing date text.
func RunStatus(closing string, now time.Time) (string, error) {
	if strings.Contains(strings.ToUpper(closing), "CURRENTLY RUNNING") {
		return StatusActive, nil
	}
	t, err := parseLooseDate(closing, now.Location())
	if err != nil {
		return models.NA, err
	}
	if t.Before(now) {
		return StatusClosed, nil
	}
	return StatusUpcoming, nil
}

// MarketPresence maps a venue address to a market.
func MarketPresence(address string) string {
	a := strings.ToLower(address)
	switch {
	case strings.Contains(a, "new york") || strings.Contains(address, "NY") || strings.Contains(a, "broadway"):
		return MarketUS
	case strings.Contains(a, "london") || strings.Contains(address, "UK") || strings.Contains(a, "england"):
		return MarketUK
	default:
		return MarketUnknown
	}
}

// USMarketSuffix appends " (US)" to New York and California locations.
func USMarketSuffix(location string) string {
	loc := strings.TrimSpace(location)
	if loc == "" {
		return loc
	}
	if strings.HasSuffix(loc, "NY") || strings.HasSuffix(loc, "CA") || strings.Contains(loc, "New York") {
		return loc + " (US)"
	}
	return loc
}

// ProductionType maps show categories to Musicals or Plays.
func ProductionType(categories string) string {
	c := strings.ToLower(categories)
	switch {
	case strings.Contains(c, "musical"):
		return "Musicals"
	case strings.Contains(c, "play"):
		return "Plays"
	default:
		return models.NA
	}
}

// StripVenueSuffix drops a trailing "Theatre" or "Theater".
func StripVenueSuffix(venue string) string {
	v := strings.TrimSpace(venue)
	for _, suffix := range []string{"Theatre", "Theater"} {
		if len(v) > len(suffix) && strings.EqualFold(v[len(v)-len(suffix):], suffix) {
			return strings.TrimSpace(v[:len(v)-len(suffix)])
		}
	}
	return v
}

// Truncate shortens s to max runes, ending with "...".
func Truncate(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if max <= 3 || len(r) <= max {
		return string(r)
	}
	return string(r[:max-3]) + "..."
}

// ScheduleEntry is one "Day @ Time" line under a date range heading.
type ScheduleEntry struct {
	DateRange string
	Day       string
	Time      string
}

// ParseSchedule reads schedule text line by line. A line ending in ":"
// without "@" opens a date range such as "June 24-29:"; every "Tuesday @ 7pm"
// line becomes an entry under the current range, N/A before the first one.
// Other lines are ignored.
func ParseSchedule(text string) []ScheduleEntry {
	var out []ScheduleEntry
	dateRange := models.NA
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case strings.HasSuffix(line, ":") && !strings.Contains(line, "@"):
			dateRange = strings.TrimSpace(strings.Trim(line, ": "))
		case strings.Contains(line, "@"):
			parts := strings.Split(line, "@")
			out = append(out, ScheduleEntry{
				DateRange: dateRange,
				Day:       strings.TrimSpace(strings.ReplaceAll(parts[0], "SCHEDULE", "")),
				Time:      strings.TrimSpace(parts[1]),
			})
		}
	}
	return out
}

// NormalizePrice removes the currency symbol and surrounding whitespace.
func NormalizePrice(price string) string {
	price = strings.TrimSpace(price)
	for _, sym := range []string{"Â£", "£", "$", "€"} {
		price = strings.ReplaceAll(price, sym, "")
	}
	return strings.TrimSpace(price)
}

// NormalizeAvailability trims spacing from the availability text.
func NormalizeAvailability(text string) string {
	return spaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
}

// RatingToNumeric converts the textual rating to a numeric scale.
func RatingToNumeric(rating string) int {
	switch strings.TrimSpace(rating) {
	case "One":
		return 1
	case "Two":
		return 2
	case "Three":
		return 3
	case "Four":
		return 4
	case "Five":
		return 5
	default:
		return 0
	}
}

// StripParens removes parentheses, as in review counts like "(1,234)".
func StripParens(s string) string {
	return strings.TrimSpace(parenRe.ReplaceAllString(s, ""))
}
