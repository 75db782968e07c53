package profile

import (
	"sort"
	"time"
)

var showColumns = []string{
	"title", "link", "description", "image_url", "production_type", "market_presence",
	"theatre", "age_of_production", "category", "origin", "date", "time", "status",
}

func broadwayCards() []Field {
	return []Field{
		{Name: "title", Selector: `[data-qa="show-name"]`},
		{Name: "link", Selector: `[data-qa="show-name"]`, Attr: "href", Absolute: true},
		{Name: "description", Selector: ".showlistpage__show-card-list--show-description p"},
		{Name: "image_url", Selector: `[data-qa="show-poster"] img`, Attr: "src", Fallbacks: []string{"data-src"}, Absolute: true},
		{Name: "reviews", Selector: ".showlistpage__show-card-list--total-customer-reviews", Transform: "strip_parens"},
		{Name: "price", Selector: ".showlistpage__show-card-list--pricing-container:not(.hide) .showlistpage__show-card-list--show-price"},
	}
}

var builtins = map[string]func() *Profile{
	"broadway": func() *Profile {
		cards := broadwayCards()
		for i := range cards {
			if cards[i].Name == "description" {
				cards[i].Transform = "truncate30"
			}
		}
		return &Profile{
			Name:        "broadway",
			Description: "Broadway.com show list",
			Engine:      EngineBrowser,
			StartURL:    "https://www.broadway.com/shows/tickets/?view_all=true",
			Ready:       "div.showlistpage__bg-color",
			Card:        "li.showlistpage__show-card-list--card-container",
			CardFields:  cards,
			Required:    []string{"title"},
			Columns:     []string{"title", "description", "image_url", "reviews", "price"},
		}
	},

	"broadway-calendar": func() *Profile {
		return &Profile{
			Name:        "broadway-calendar",
			Description: "Broadway.com shows with performance calendars",
			Engine:      EngineBrowser,
			StartURL:    "https://www.broadway.com/shows/tickets/?view_all=true",
			Ready:       "div.showlistpage__bg-color",
			Card:        "li.showlistpage__show-card-list--card-container",
			CardFields:  broadwayCards(),
			Required:    []string{"title", "link"},
			Detail: &Detail{
				Ready: "div.showpage__contents",
				Fields: []Field{
					{Name: "production_type", Selector: "div.showpage__story--categories a.showpage__story--button", Join: " ", Transform: "production_type"},
					{Name: "age_of_production", Selector: `h3:contains("Show Dates") + div`, Transform: "production_age"},
					{Name: "theatre", Selector: `a.showpage__venue--name[data-qa="show-theater-link"]`, Transform: "strip_venue_suffix"},
					{Name: "market_presence", Selector: `a.showpage__venue--name[data-qa="show-theater-link"] + div`, Transform: "market_presence"},
					{Name: "category", Const: "show-production"},
					{Name: "origin", Const: "N/A"},
				},
				Calendar: &Calendar{
					Open:         `a.showpage__calendar--button[data-qa="rsp-btn-view-calendar"]`,
					Ready:        "div.CalendarBody__root__Anjr2",
					Header:       `[data-qa="current-month-year"]`,
					HeaderLayout: "January 2006",
					Entry:        `button[data-qa="performance-button"]`,
					DateAttr:     "aria-label",
					Status:       StatusDay,
					Next:         `button[data-qa="right-arrow"]`,
					Disabled:     `button[data-qa="right-arrow"][disabled]`,
				},
			},
			Columns: showColumns,
		}
	},

	"playbill": func() *Profile {
		return &Profile{
			Name:        "playbill",
			Description: "Playbill Broadway productions and schedules",
			Engine:      EngineBrowser,
			StartURL:    "https://playbill.com/shows/broadway",
			Ready:       "div.show-container",
			Card:        "div.show-container",
			CardFields: []Field{
				{Name: "title", Selector: "div.prod-title a"},
				{Name: "link", Selector: "div.prod-title a", Attr: "href", Absolute: true},
				{Name: "image_url", Selector: "div.cover-container img", Attr: "src", Fallbacks: []string{"data-src"}, Absolute: true},
				{Name: "venue_name", Selector: "div.prod-venue a"},
				{Name: "venue_link", Selector: "div.prod-venue a", Attr: "href", Absolute: true},
			},
			Required: []string{"title", "link"},
			Detail: &Detail{
				Ready: "div.bsp-bio-subtitle",
				Fields: []Field{
					{Name: "market", Selector: "div.bsp-bio-subtitle h5", Index: 0},
					{Name: "production_type", Selector: "div.bsp-bio-subtitle h5", Index: 1},
					{Name: "origin", Selector: "div.bsp-bio-subtitle h5", Index: 2},
					{Name: "market_presence", Selector: "ul.bsp-bio-links li:nth-child(2) a", Transform: "us_market_suffix"},
				},
				Milestones: &Milestones{
					Slide:        "div.bsp-carousel-slide.with-circular-links",
					Title:        ".bsp-list-promo-title",
					Text:         ".info-circular span",
					OpeningLabel: "OPENING DATE",
					ClosingLabel: "CLOSING DATE",
				},
				Schedule: &Schedule{Selector: "div.bsp-bio-text"},
			},
			Columns: []string{
				"title", "link", "image_url", "venue_name", "venue_link", "market", "market_presence",
				"production_type", "origin", "opening_date", "age_of_production", "status",
				"date_range", "date", "time",
			},
		}
	},

	"ticketmaster": func() *Profile {
		return &Profile{
			Name:        "ticketmaster",
			Description: "Ticketmaster Broadway musicals and events",
			Engine:      EngineBrowser,
			StartURL:    "https://www.ticketmaster.com/broadway",
			Ready:       "div.card.item",
			Card:        "div.card.item.ny-category-musicals.ny",
			CardFields: []Field{
				{Name: "title", Selector: "h3"},
				{Name: "link", Selector: "a", Attr: "href", Absolute: true},
				{Name: "image_url", Selector: "img", Attr: "src", Absolute: true},
			},
			Required: []string{"link"},
			Format:   "dual",
			Detail: &Detail{
				Calendar: &Calendar{
					Open:         "#pageInfo > div:nth-of-type(1) ul li:nth-of-type(1) button",
					Entry:        "li.sc-a4c9d98c-1.gmqiju",
					DateSelector: "div.sc-d4c18b64-0.kViXXz",
					TimeSelector: "span.sc-5ae165d4-1.xHFfV",
					Status:       StatusDay,
					Extra: []Field{
						{Name: "theatre", Selector: "span.sc-cce7ae2b-8.eHUDaT", Index: -1},
						{Name: "location", Selector: "span.sc-cce7ae2b-8.eHUDaT", Index: -2},
					},
					Next:       `button:contains("More Events")`,
					Cumulative: true,
				},
			},
			Columns: []string{"title", "link", "image_url", "theatre", "date", "time", "location", "status"},
		}
	},

	"ovationtix": func() *Profile {
		return &Profile{
			Name:        "ovationtix",
			Description: "OvationTix production calendar",
			Engine:      EngineBrowser,
			StartURL:    "https://ci.ovationtix.com/35583/production/1152995",
			Ready:       `button[data-test="calendar_button"]`,
			Setup: []Step{
				{Action: ActionClick, Selector: `button[data-test="calendar_button"]`},
				{Action: ActionClick, Selector: ".calendarToggleButtons button", Index: 1},
				{Action: ActionWait, Selector: ".ot_prodListContainer"},
			},
			Card: ".ot_prodListItem.ot_callout",
			CardFields: []Field{
				{Name: "title", Selector: ".ot_prodTitle, h3"},
			},
			CardClick: "button.ot_prodInfoButton",
			Return: []Step{
				{Action: ActionClick, Selector: ".calendarToggleButtons button", Index: 1, Optional: true},
				{Action: ActionWait, Selector: ".ot_prodListContainer"},
			},
			Required: []string{"link"},
			Detail: &Detail{
				Ready: "h1.calendarTitle.prodTitle",
				Fields: []Field{
					{Name: "title", Selector: "h1.calendarTitle.prodTitle"},
					{Name: "image_url", Selector: "img.ot_prodImg", Attr: "src", Absolute: true},
					{Name: "production_type", Const: "N/A"},
					{Name: "origin", Const: "N/A"},
					{Name: "market_presence", Const: "N/A"},
					{Name: "age_of_production", Const: "N/A"},
				},
				Calendar: &Calendar{
					Groups:    "li.events",
					GroupDate: "h5.ot_eventDateTitle .date",
					Entry:     "button.ot_timeSlotBtn p",
					Layout:    "2 January 2006 - 3:04 PM",
					Status:    StatusWindow,
					Window:    5 * time.Minute,
				},
			},
			Columns: []string{
				"title", "link", "image_url", "status", "production_type", "date_time",
				"date", "time", "origin", "market_presence", "age_of_production",
			},
		}
	},

	"todaytix": func() *Profile {
		return &Profile{
			Name:        "todaytix",
			Description: "TodayTix all-shows listing with show calendars",
			Engine:      EngineBrowser,
			StartURL:    "https://www.todaytix.com/",
			Ready:       "#quick-link-0",
			Setup: []Step{
				{Action: ActionClick, Selector: "#onetrust-accept-btn-handler", Optional: true},
				{Action: ActionClick, Selector: "#quick-link-0"},
				{Action: ActionWait, Selector: `a[href*="/shows/"]`},
			},
			Card: `a[href*="/shows/"]`,
			CardFields: []Field{
				{Name: "title", Selector: "h3, h2"},
				{Name: "link", Attr: "href", Absolute: true},
				{Name: "image_url", Selector: "img", Attr: "src", Absolute: true},
			},
			Required: []string{"link"},
			Detail: &Detail{
				Ready: "#about-section",
				Fields: []Field{
					{Name: "title", Selector: "#about-section h2"},
					{Name: "theatre", Selector: `a[href*="/venues/"]`, Transform: "strip_venue_suffix"},
				},
				Calendar: &Calendar{
					Ready:        "#show-calendar",
					Header:       "#show-calendar h3, #show-calendar [aria-live]",
					HeaderLayout: "January 2006",
					Entry:        "#show-calendar button[aria-label]:not([disabled])",
					DateAttr:     "aria-label",
					TimeSelector: "span.showtime",
					Status:       StatusDay,
					Next:         `#show-calendar button[aria-label="Next month"]`,
					Disabled:     `#show-calendar button[aria-label="Next month"][disabled]`,
				},
			},
			Columns: []string{"title", "link", "image_url", "theatre", "date", "time", "status"},
		}
	},

	"conspicuous": func() *Profile {
		return &Profile{
			Name:        "conspicuous",
			Description: "Conspicuous jobs board",
			Engine:      EngineBrowser,
			StartURL:    "https://conspicuous.com/jobs/",
			Ready:       ".jobs-filter-results .job-item",
			Card:        ".job-item",
			CardFields: []Field{
				{Name: "title", Selector: "h3, .job-title"},
				{Name: "link", Selector: "a", Attr: "href", Absolute: true},
				{Name: "company", Selector: ".company, .job-company"},
				{Name: "location", Selector: ".location, .job-location"},
				{Name: "job_type", Selector: ".job-type"},
			},
			Required: []string{"title"},
			NextPage: `.job-manager-pagination a:contains("→")`,
			Columns:  []string{"title", "link", "company", "location", "job_type"},
		}
	},

	"books": func() *Profile {
		return &Profile{
			Name:        "books",
			Description: "books.toscrape.com catalogue",
			Engine:      EngineStatic,
			StartURL:    "https://books.toscrape.com/",
			Ready:       "article.product_pod",
			Card:        "article.product_pod",
			CardFields: []Field{
				{Name: "title", Selector: "h3 a", Attr: "title"},
				{Name: "link", Selector: "h3 a", Attr: "href", Absolute: true},
				{Name: "price", Selector: ".price_color", Transform: "price"},
				{Name: "rating", Selector: "p.star-rating", Attr: "class", Transform: "rating"},
				{Name: "availability", Selector: ".availability", Transform: "availability"},
				{Name: "image_url", Selector: ".image_container img", Attr: "src", Absolute: true},
			},
			Required: []string{"title", "price"},
			NextPage: "li.next a",
			Columns:  []string{"title", "link", "price", "rating", "availability", "image_url", "scraped_at"},
		}
	},
}

// Builtin returns a fresh copy of the named built-in profile.
func Builtin(name string) (*Profile, bool) {
	fn, ok := builtins[name]
	if !ok {
		return nil, false
	}
	return fn(), true
}

// BuiltinNames lists the built-in profiles in sorted order.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
