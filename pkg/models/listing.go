package models

import "time"

// RawRecord is whatever a source adapter hands to the normalizer: a DOM
// selection for rendered pages, a decoded item for JSON APIs.
type RawRecord any

type Listing struct {
	ID        string `json:"id"`
	Brand     string `json:"brand"`
	Title     string `json:"title,omitempty"`
	Price     string `json:"price"`
	Size      string `json:"size,omitempty"`
	Condition string `json:"condition,omitempty"`
	URL       string `json:"url"`
	ImageURL  string `json:"image_url"`
}

// Complete reports whether every field the digest and the novelty store
// depend on is present.
func (l Listing) Complete() bool {
	return l.ID != "" && l.Brand != "" && l.Price != "" && l.URL != "" && l.ImageURL != ""
}

// NoveltyRecord is a listing as persisted in the novelty store. It is
// written once and never updated.
type NoveltyRecord struct {
	Source      string    `json:"source"`
	Listing     Listing   `json:"listing"`
	FirstSeenAt time.Time `json:"first_seen_at"`
}
