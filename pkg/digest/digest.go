// Package digest renders the e-mail body announcing newly seen listings.
package digest

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"listing-hunter/pkg/models"
)

const ContentType = "text/html; charset=utf-8"

const perRow = 2

//go:embed digest.html.tmpl
var pageTemplate string

var page = template.Must(template.New("digest").Parse(pageTemplate))

// Section holds one brand's listings, laid out perRow to a row. A nil cell
// pads the last row.
type Section struct {
	Brand string
	Rows  [][]*models.Listing
}

// Group buckets listings by brand. Brands keep the order in which they were
// first seen and listings keep their input order within a brand.
func Group(listings []models.Listing) []Section {
	index := map[string]int{}
	var sections []Section
	var members [][]*models.Listing

	for i := range listings {
		l := &listings[i]
		pos, ok := index[l.Brand]
		if !ok {
			pos = len(sections)
			index[l.Brand] = pos
			sections = append(sections, Section{Brand: l.Brand})
			members = append(members, nil)
		}
		members[pos] = append(members[pos], l)
	}

	for i := range sections {
		sections[i].Rows = rows(members[i])
	}
	return sections
}

func rows(items []*models.Listing) [][]*models.Listing {
	var out [][]*models.Listing
	for start := 0; start < len(items); start += perRow {
		row := make([]*models.Listing, perRow)
		copy(row, items[start:min(start+perRow, len(items))])
		out = append(out, row)
	}
	return out
}

// Render produces the digest markup. Output depends only on the input
// slice, so re-running a day's scrape overwrites the artifact with the same
// bytes.
func Render(listings []models.Listing) ([]byte, error) {
	if len(listings) == 0 {
		return nil, fmt.Errorf("digest: nothing to render")
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, struct{ Sections []Section }{Group(listings)}); err != nil {
		return nil, fmt.Errorf("digest: execute template: %w", err)
	}
	return buf.Bytes(), nil
}
