// Package normalize turns source-specific raw records into canonical
// listings. Every field is looked up independently so that one missing
// attribute only blanks that field; the completeness gate decides at the end.
package normalize

import (
	"listing-hunter/pkg/models"
	"strings"
)

// Accessor extracts one field from a raw record.
type Accessor func(raw models.RawRecord) (string, error)

// Accessors is the per-source extraction table. Nil accessors leave their
// field empty.
type Accessors struct {
	ID        Accessor
	Brand     Accessor
	Title     Accessor
	Price     Accessor
	Size      Accessor
	Condition Accessor
	URL       Accessor
	ImageURL  Accessor

	// Sold reports whether a price string carries the source's "sold"
	// marker. It is a heuristic: sources expose no structured availability.
	Sold func(price string) bool
}

// Normalize returns the canonical listing and true, or false when the record
// is incomplete or marked as sold.
func Normalize(raw models.RawRecord, acc Accessors) (models.Listing, bool) {
	// The sold marker may itself be whitespace, so it is matched against
	// the untrimmed price.
	price := lookup(raw, acc.Price)

	l := models.Listing{
		ID:        field(raw, acc.ID),
		Brand:     field(raw, acc.Brand),
		Title:     field(raw, acc.Title),
		Price:     strings.TrimSpace(price),
		Size:      field(raw, acc.Size),
		Condition: field(raw, acc.Condition),
		URL:       field(raw, acc.URL),
		ImageURL:  field(raw, acc.ImageURL),
	}

	if !l.Complete() {
		return models.Listing{}, false
	}
	if acc.Sold != nil && acc.Sold(price) {
		return models.Listing{}, false
	}
	return l, true
}

func field(raw models.RawRecord, get Accessor) string {
	return strings.TrimSpace(lookup(raw, get))
}

func lookup(raw models.RawRecord, get Accessor) (value string) {
	if get == nil {
		return ""
	}
	// Markup drift can surface as a panic deep inside an accessor (nil
	// selections, short slices); treat it like any other failed lookup.
	defer func() {
		if recover() != nil {
			value = ""
		}
	}()

	v, err := get(raw)
	if err != nil {
		return ""
	}
	return v
}
