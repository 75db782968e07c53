package parser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TransformFunc converts one extracted value.
type TransformFunc func(value string, now time.Time) (string, error)

func pure(fn func(string) string) TransformFunc {
	return func(value string, _ time.Time) (string, error) {
		return fn(value), nil
	}
}

var transforms = map[string]TransformFunc{
	"trim":               pure(strings.TrimSpace),
	"strip_ordinals":     pure(StripOrdinals),
	"strip_parens":       pure(StripParens),
	"strip_venue_suffix": pure(StripVenueSuffix),
	"market_presence":    pure(MarketPresence),
	"us_market_suffix":   pure(USMarketSuffix),
	"production_type":    pure(ProductionType),
	"price":              pure(NormalizePrice),
	"availability":       pure(NormalizeAvailability),
	"truncate30": pure(func(s string) string {
		return Truncate(s, 30)
	}),
	"rating": pure(func(s string) string {
		// Accepts both "Three" and the class list "star-rating Three".
		parts := strings.Fields(s)
		if len(parts) == 0 {
			return "0"
		}
		return strconv.Itoa(RatingToNumeric(parts[len(parts)-1]))
	}),
	"date_label": func(value string, _ time.Time) (string, error) {
		return ExtractDateLabel(value)
	},
	"production_age": ProductionAge,
	"run_status":     RunStatus,
}

// KnownTransform reports whether every step of a "a|b" transform chain is
// registered.
func KnownTransform(chain string) bool {
	for _, name := range splitChain(chain) {
		if _, ok := transforms[name]; !ok {
			return false
		}
	}
	return true
}

// Transforms lists the registered transform names.
func Transforms() []string {
	names := make([]string, 0, len(transforms))
	for name := range transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyTransform runs a "|" separated chain of transforms over value.
func ApplyTransform(chain, value string, now time.Time) (string, error) {
	out := value
	for _, name := range splitChain(chain) {
		fn, ok := transforms[name]
		if !ok {
			return value, fmt.Errorf("unknown transform %q", name)
		}
		next, err := fn(out, now)
		if err != nil {
			return value, fmt.Errorf("transform %s: %w", name, err)
		}
		out = next
	}
	return out, nil
}

func splitChain(chain string) []string {
	var names []string
	for _, part := range strings.Split(chain, "|") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}
