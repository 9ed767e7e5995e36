// Package brand decides whether a listing's declared brand is one we watch.
package brand

import (
	"listing-hunter/pkg/models"
	"strings"
)

// Filter is a case-insensitive allow-list. A brand matches an entry when
// either string contains the other, so "Loro Piana Kids" and "piana" both
// match "loro piana". False positives are preferred over dropped brands.
type Filter struct {
	entries []string
}

func NewFilter(allow []string) *Filter {
	entries := make([]string, 0, len(allow))
	for _, a := range allow {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		entries = append(entries, a)
	}
	return &Filter{entries: entries}
}

// Matches reports whether the listing's brand is on the allow-list.
func (f *Filter) Matches(l models.Listing) bool {
	return f.MatchesBrand(l.Brand)
}

func (f *Filter) MatchesBrand(brand string) bool {
	b := strings.ToLower(strings.TrimSpace(brand))
	if b == "" {
		return false
	}
	for _, e := range f.entries {
		if strings.Contains(b, e) || strings.Contains(e, b) {
			return true
		}
	}
	return false
}

// Matches is the one-shot form of Filter.Matches.
func Matches(l models.Listing, allow []string) bool {
	return NewFilter(allow).Matches(l)
}
