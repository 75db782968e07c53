package extract

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/aluiziolira/go-scrape-shows/models"
	"github.com/aluiziolira/go-scrape-shows/parser"
	"github.com/aluiziolira/go-scrape-shows/profile"
	"github.com/aluiziolira/go-scrape-shows/session"
)

// TimeLayout formats performance times parsed from date-time calendars.
const TimeLayout = "3:04 PM"

// CalendarYear returns the year of the rendered calendar page.
func CalendarYear(doc *goquery.Document, cal *profile.Calendar, now time.Time) int {
	if cal.Header == "" {
		return now.Year()
	}
	header := Text(doc.Find(cal.Header).First())
	if cal.HeaderLayout != "" {
		if t, err := time.Parse(cal.HeaderLayout, header); err == nil {
			return t.Year()
		}
	}
	return parser.CalendarYear(header, now)
}

// CalendarPass reads every performance on the rendered calendar page.
// Entries whose date cannot be parsed are still returned, with the raw date
// and an N/A status, and reported in the error slice.
func CalendarPass(doc *goquery.Document, base *url.URL, cal *profile.Calendar, now time.Time) ([]models.Performance, []error) {
	year := CalendarYear(doc, cal, now)
	var (
		perfs []models.Performance
		errs  []error
	)

	visit := func(entry *goquery.Selection, groupDate string) {
		perf, err := performance(entry, groupDate, year, base, cal, now)
		if err != nil {
			errs = append(errs, err)
		}
		if perf != nil {
			perfs = append(perfs, *perf)
		}
	}

	if cal.Groups != "" {
		doc.Find(cal.Groups).Each(func(_ int, group *goquery.Selection) {
			groupDate := ""
			if cal.GroupDate != "" {
				groupDate = Text(group.Find(cal.GroupDate).First())
			}
			group.Find(cal.Entry).Each(func(_ int, entry *goquery.Selection) {
				visit(entry, groupDate)
			})
		})
	} else {
		doc.Find(cal.Entry).Each(func(_ int, entry *goquery.Selection) {
			visit(entry, "")
		})
	}
	return perfs, errs
}

func performance(entry *goquery.Selection, groupDate string, year int, base *url.URL, cal *profile.Calendar, now time.Time) (*models.Performance, error) {
	dateText := groupDate
	switch {
	case cal.DateAttr != "":
		dateText, _ = entry.Attr(cal.DateAttr)
		dateText = strings.TrimSpace(dateText)
	case cal.DateSelector != "":
		dateText = Text(entry.Find(cal.DateSelector).First())
	}
	timeText := Text(entry)
	if cal.TimeSelector != "" {
		timeText = Text(entry.Find(cal.TimeSelector).First())
	}
	if dateText == "" {
		return nil, session.ErrElementNotFound{Selector: cal.Entry + " date"}
	}

	perf := &models.Performance{Time: timeText}
	if len(cal.Extra) > 0 {
		perf.Extra = make(map[string]string, len(cal.Extra)+1)
		for _, res := range Fields(entry, base, cal.Extra, now) {
			perf.Extra[res.Name] = res.Or(models.NA)
		}
	}

	if cal.Layout != "" {
		combined := dateText + " - " + timeText
		if perf.Extra == nil {
			perf.Extra = make(map[string]string, 1)
		}
		perf.Extra["date_time"] = combined

		at, err := parser.ParseDateTime(combined, cal.Layout, now.Location())
		if err != nil {
			perf.Date = dateText
			perf.Status = models.NA
			return perf, err
		}
		perf.Date = at.Format(parser.ISODate)
		perf.Time = at.Format(TimeLayout)
		perf.Status = status(cal, at, now)
		return perf, nil
	}

	label, err := parser.ExtractDateLabel(dateText)
	if err != nil {
		label = dateText
	}
	day, err := parser.ParseCalendarDay(label, year, now.Location())
	if err != nil {
		perf.Date = parser.StripOrdinals(dateText)
		perf.Status = models.NA
		return perf, err
	}
	perf.Date = day.Format(parser.ISODate)
	perf.Status = status(cal, day, now)
	return perf, nil
}

func status(cal *profile.Calendar, at, now time.Time) string {
	switch cal.Status {
	case profile.StatusNone:
		return ""
	case profile.StatusWindow:
		return parser.DeriveStatusWindow(at, now, cal.Window)
	default:
		return parser.DeriveStatus(at, now)
	}
}

// CalendarDone reports whether the calendar has no further page: the next
// control is missing, matches the disabled sentinel or carries a disabled
// attribute.
func CalendarDone(doc *goquery.Document, cal *profile.Calendar) bool {
	if cal.Next == "" {
		return true
	}
	next := doc.Find(cal.Next)
	if next.Length() == 0 {
		return true
	}
	if cal.Disabled != "" && doc.Find(cal.Disabled).Length() > 0 {
		return true
	}
	if _, disabled := next.First().Attr("disabled"); disabled {
		return true
	}
	if v, _ := next.First().Attr("aria-disabled"); v == "true" {
		return true
	}
	return false
}

// Schedule reads a text schedule block.
func Schedule(doc *goquery.Document, sched *profile.Schedule) ([]parser.ScheduleEntry, error) {
	block := doc.Find(sched.Selector).First()
	if block.Length() == 0 {
		return nil, session.ErrElementNotFound{Selector: sched.Selector}
	}
	return parser.ParseSchedule(BlockText(block)), nil
}

// Performances converts schedule entries into performances.
func Performances(entries []parser.ScheduleEntry) []models.Performance {
	out := make([]models.Performance, 0, len(entries))
	for _, e := range entries {
		out = append(out, models.Performance{Date: e.Day, Time: e.Time, DateRange: e.DateRange})
	}
	return out
}

// MilestoneDates are the raw opening and closing texts of a production.
type MilestoneDates struct {
	Opening string
	Closing string
}

// Milestones reads the labelled opening and closing slides.
func Milestones(doc *goquery.Document, m *profile.Milestones) (MilestoneDates, error) {
	var out MilestoneDates
	slides := doc.Find(m.Slide)
	if slides.Length() == 0 {
		return out, session.ErrElementNotFound{Selector: m.Slide}
	}

	opening := strings.ToUpper(m.OpeningLabel)
	closing := strings.ToUpper(m.ClosingLabel)
	slides.Each(func(_ int, slide *goquery.Selection) {
		title := strings.ToUpper(Text(slide.Find(m.Title).First()))
		if title == "" {
			return
		}
		var parts []string
		slide.Find(m.Text).Each(func(_ int, s *goquery.Selection) {
			if t := Text(s); t != "" {
				parts = append(parts, strings.ToUpper(t))
			}
		})
		text := strings.Join(parts, " ")
		switch title {
		case opening:
			out.Opening = text
		case closing:
			out.Closing = text
		}
	})

	if out.Opening == "" && out.Closing == "" {
		return out, fmt.Errorf("no %s or %s slide: %w", m.OpeningLabel, m.ClosingLabel, session.ErrElementNotFound{Selector: m.Title})
	}
	return out, nil
}

var (
	blankLinesRe  = regexp.MustCompile(`\n{3,}`)
	inlineSpaceRe = regexp.MustCompile(`[ \t\f\r\v\x{00a0}]+`)
)

// blockSeparators maps block elements to the line breaks rendered after them.
var blockSeparators = map[string]string{
	"p": "\n\n", "div": "\n", "li": "\n", "ul": "\n", "ol": "\n", "tr": "\n",
	"h1": "\n", "h2": "\n", "h3": "\n", "h4": "\n", "h5": "\n", "h6": "\n",
	"section": "\n", "article": "\n",
}

// BlockText renders s as visible text: <br> and block boundaries become line
// breaks, paragraphs are separated by a blank line.
func BlockText(s *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(strings.ReplaceAll(n.Data, "\n", " "))
			return
		case html.ElementNode:
			switch n.Data {
			case "br":
				b.WriteString("\n")
				return
			case "script", "style":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			b.WriteString(blockSeparators[n.Data])
		}
	}
	for _, n := range s.Nodes {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(inlineSpaceRe.ReplaceAllString(line, " "))
	}
	out := blankLinesRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	return strings.TrimSpace(out)
}
