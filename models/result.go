package models

import "time"

// Completeness counts the fields that had to be defaulted during a run.
type Completeness struct {
	Records int
	Missing map[string]int
}

// NewCompleteness returns an empty report.
func NewCompleteness() Completeness {
	return Completeness{Missing: make(map[string]int)}
}

// Add accounts for one record and its missing fields.
func (c *Completeness) Add(missing []string) {
	if c.Missing == nil {
		c.Missing = make(map[string]int)
	}
	c.Records++
	for _, name := range missing {
		c.Missing[name]++
	}
}

// Ratio returns the share of records that had name extracted.
func (c Completeness) Ratio(name string) float64 {
	if c.Records == 0 {
		return 0
	}
	return float64(c.Records-c.Missing[name]) / float64(c.Records)
}

// ScraperResult holds the overall result of a scraping run.
type ScraperResult struct {
	RunID         string
	Site          string
	StartTime     time.Time
	EndTime       time.Time
	ShowCount     int
	TotalCount    int
	PageCount     int
	CalendarPages int
	RequestCount  int
	ErrorCount    int
	RetryCount    int
	FailedURLs    []string
	ErrorsByType  map[string]int
	Completeness  Completeness
}

// Duration returns how long the run took.
func (r *ScraperResult) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}
