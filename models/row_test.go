package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestFanOutWithoutPerformances(t *testing.T) {
	l := NewListing("broadway")
	l.Apply(FieldResult{Name: "title", Value: "Hamilton"})
	l.Apply(FieldResult{Name: "description", Err: errors.New("not found")})

	rows := FanOut(l, nil, time.Now())
	if len(rows) != 1 {
		t.Fatalf("rows=%d, want 1", len(rows))
	}
	row := rows[0]
	for _, col := range []string{ColumnDate, ColumnTime, ColumnStatus, "description"} {
		if got := row.Get(col); got != NA {
			t.Fatalf("%s=%q, want %q", col, got, NA)
		}
	}
	if row.Get("title") != "Hamilton" {
		t.Fatalf("title=%q", row.Get("title"))
	}
}

func TestFanOutSharesListingFields(t *testing.T) {
	l := NewListing("broadway")
	l.Apply(FieldResult{Name: "title", Value: "Wicked"})
	l.Apply(FieldResult{Name: "venue", Value: "Gershwin"})

	perfs := []Performance{
		{Date: "2025-06-28", Time: "7:00 PM", Status: "upcoming"},
		{Date: "2025-06-29", Time: "2:00 PM", Status: "upcoming"},
		{Date: "2025-06-20", Time: "8:00 PM", Status: "active"},
	}
	rows := FanOut(l, perfs, time.Now())
	if len(rows) != len(perfs) {
		t.Fatalf("rows=%d, want %d", len(rows), len(perfs))
	}
	for i, row := range rows {
		if row.Get("title") != "Wicked" || row.Get("venue") != "Gershwin" {
			t.Fatalf("row %d lost listing fields: %v", i, row.Fields)
		}
		if row.Get(ColumnDate) != perfs[i].Date || row.Get(ColumnStatus) != perfs[i].Status {
			t.Fatalf("row %d = %v, want %+v", i, row.Fields, perfs[i])
		}
	}

	rows[0].Fields["title"] = "changed"
	if rows[1].Get("title") != "Wicked" {
		t.Fatalf("rows must not share field maps")
	}
}

func TestFanOutKeepsProductionStatus(t *testing.T) {
	l := NewListing("playbill")
	l.Apply(FieldResult{Name: "title", Value: "Chicago"})
	l.Apply(FieldResult{Name: ColumnStatus, Value: "active"})

	rows := FanOut(l, []Performance{{Date: "Tuesday", Time: "7pm", DateRange: "June 24-29"}}, time.Now())
	if got := rows[0].Get(ColumnStatus); got != "active" {
		t.Fatalf("status=%q, want active", got)
	}
	if got := rows[0].Get(ColumnDateRange); got != "June 24-29" {
		t.Fatalf("date_range=%q", got)
	}
}

func TestListingMergePrefersDetail(t *testing.T) {
	l := NewListing("ovationtix")
	l.Apply(FieldResult{Name: "title", Err: errors.New("missing")})
	l.Apply(FieldResult{Name: "image_url", Value: "http://example.test/a.png"})

	l.Merge(FieldResult{Name: "title", Value: "Macbeth"})
	l.Merge(FieldResult{Name: "image_url", Err: errors.New("missing")})

	if l.Get("title") != "Macbeth" {
		t.Fatalf("title=%q", l.Get("title"))
	}
	if l.Get("image_url") != "http://example.test/a.png" {
		t.Fatalf("image_url=%q", l.Get("image_url"))
	}
	if len(l.Missing) != 0 {
		t.Fatalf("missing=%v, want none", l.Missing)
	}
}

func TestRowJSON(t *testing.T) {
	row := &Row{
		Site:      "books",
		Fields:    map[string]string{"title": "Test Book", "price": "10.00"},
		ScrapedAt: time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC),
	}
	data, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded Row
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Site != "books" || decoded.Get("price") != "10.00" || !decoded.ScrapedAt.Equal(row.ScrapedAt) {
		t.Fatalf("decoded=%+v", decoded)
	}
}

func TestCompleteness(t *testing.T) {
	c := NewCompleteness()
	c.Add([]string{"price"})
	c.Add(nil)
	c.Add([]string{"price", "image_url"})

	if c.Records != 3 || c.Missing["price"] != 2 {
		t.Fatalf("completeness=%+v", c)
	}
	if got := c.Ratio("image_url"); got < 0.66 || got > 0.67 {
		t.Fatalf("ratio=%v", got)
	}
}
