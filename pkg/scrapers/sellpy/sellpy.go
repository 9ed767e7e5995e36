package sellpy

import (
	"context"
	"fmt"
	"listing-hunter/pkg/browser"
	"listing-hunter/pkg/models"
	"listing-hunter/pkg/normalize"
	"listing-hunter/pkg/scrapers"
	"listing-hunter/pkg/source"
	"log/slog"
	"strings"
)

const (
	Source  = "sellpy"
	BaseURL = "https://www.sellpy.se"
)

var Page = scrapers.Page{
	URLTemplate: BaseURL + "/search?query=%s&sortBy=saleStartedAt_desc",
	Item:        "article",
	Exclude:     "#clipResults-slider",
}

type Scraper struct {
	Launch  browser.Launcher
	BaseURL string
	Logger  *slog.Logger
}

var _ source.Adapter = (*Scraper)(nil)

func NewScraper(opts browser.Options) *Scraper {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		Launch:  browser.Chrome(opts),
		BaseURL: BaseURL,
		Logger:  logger.With("source", Source),
	}
}

func (s *Scraper) Name() string {
	return Source
}

func (s *Scraper) Fetch(ctx context.Context, terms []string) ([]models.RawRecord, error) {
	return scrapers.FetchRendered(ctx, s.Launch, Page, terms, s.Logger)
}

func (s *Scraper) AllowList(terms []string) []string {
	return source.PlusSeparated(terms)
}

func (s *Scraper) Accessors() normalize.Accessors {
	return normalize.Accessors{
		ID: func(raw models.RawRecord) (string, error) {
			href, err := scrapers.Attr(raw, "a", "href")
			if err != nil {
				return "", err
			}
			return itemID(href)
		},
		Brand: func(raw models.RawRecord) (string, error) {
			return scrapers.Attr(raw, `meta[itemprop="brand"]`, "content")
		},
		Title: func(raw models.RawRecord) (string, error) {
			return scrapers.Text(raw, "p")
		},
		Price: func(raw models.RawRecord) (string, error) {
			return scrapers.Text(raw, `p[itemprop="price"]`)
		},
		URL: func(raw models.RawRecord) (string, error) {
			href, err := scrapers.Attr(raw, "a", "href")
			if err != nil {
				return "", err
			}
			if strings.HasPrefix(href, "http") {
				return href, nil
			}
			return s.BaseURL + href, nil
		},
		ImageURL: func(raw models.RawRecord) (string, error) {
			return scrapers.Attr(raw, "img", "src")
		},
		Sold: Sold,
	}
}

// itemID takes the second path segment: "/item/AbC123/..." -> "AbC123".
func itemID(href string) (string, error) {
	parts := strings.Split(href, "/")
	if len(parts) < 3 || parts[2] == "" {
		return "", fmt.Errorf("no item id in %q", href)
	}
	return parts[2], nil
}

// Sold recognises sold items: Sellpy replaces their price with text that
// contains a non-breaking space.
func Sold(price string) bool {
	return strings.Contains(price, "\u00a0")
}
