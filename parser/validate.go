package parser

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/aluiziolira/go-scrape-shows/models"
)

// ValidateRow ensures the scraper captured the required fields.
func ValidateRow(r *models.Row, required []string) error {
	if r == nil {
		return fmt.Errorf("row is nil")
	}
	if strings.TrimSpace(r.Site) == "" {
		return fmt.Errorf("row missing site")
	}
	for _, name := range required {
		v := strings.TrimSpace(r.Get(name))
		if v == "" || v == models.NA {
			return fmt.Errorf("row missing %s", name)
		}
	}
	return nil
}

// Fingerprint hashes a row's site and fields, ignoring the scrape time, so
// identical records collide.
func Fingerprint(r *models.Row) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(r.Site)
	for _, name := range r.FieldNames() {
		_, _ = d.WriteString("\x00")
		_, _ = d.WriteString(name)
		_, _ = d.WriteString("\x01")
		_, _ = d.WriteString(r.Fields[name])
	}
	return d.Sum64()
}
