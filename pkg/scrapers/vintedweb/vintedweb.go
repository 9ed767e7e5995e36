package vintedweb

import (
	"context"
	"fmt"
	"listing-hunter/pkg/browser"
	"listing-hunter/pkg/models"
	"listing-hunter/pkg/normalize"
	"listing-hunter/pkg/scrapers"
	"listing-hunter/pkg/source"
	"log/slog"
	"regexp"
	"strings"
)

const (
	Source  = "vinted-web"
	BaseURL = "https://www.vinted.se"
)

var Page = scrapers.Page{
	URLTemplate: BaseURL + "/catalog?search_text=%s&order=newest_first&catalog[]=5&page=1",
	Item:        `div[data-testid="grid-item"]`,
}

const (
	brandSel    = `p[data-testid*="description-title"]`
	subtitleSel = `p[data-testid*="description-subtitle"]`
	priceSel    = `p[data-testid*="price-text"]`
	linkSel     = "a.new-item-box__overlay"
	imageSel    = "div.web_ui__Image__portrait img"
)

var itemPath = regexp.MustCompile(`/items/(\d+)-`)

type Scraper struct {
	Launch browser.Launcher
	Logger *slog.Logger
}

var _ source.Adapter = (*Scraper)(nil)

func NewScraper(opts browser.Options) *Scraper {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		Launch: browser.Chrome(opts),
		Logger: logger.With("source", Source),
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
			href, err := scrapers.Attr(raw, linkSel, "href")
			if err != nil {
				return "", err
			}
			m := itemPath.FindStringSubmatch(href)
			if m == nil {
				return "", fmt.Errorf("no item number in %q", href)
			}
			return m[1], nil
		},
		Brand: func(raw models.RawRecord) (string, error) {
			return scrapers.Text(raw, brandSel)
		},
		Price: func(raw models.RawRecord) (string, error) {
			return scrapers.Text(raw, priceSel)
		},
		Size: func(raw models.RawRecord) (string, error) {
			size, _, err := subtitle(raw)
			return size, err
		},
		Condition: func(raw models.RawRecord) (string, error) {
			_, condition, err := subtitle(raw)
			return condition, err
		},
		URL: func(raw models.RawRecord) (string, error) {
			href, err := scrapers.Attr(raw, linkSel, "href")
			if err != nil {
				return "", err
			}
			if strings.HasPrefix(href, "/") {
				href = BaseURL + href
			}
			return href, nil
		},
		ImageURL: func(raw models.RawRecord) (string, error) {
			return scrapers.Attr(raw, imageSel, "src")
		},
	}
}

// subtitle splits "M · Very good" into size and condition. Without the
// separator the whole text is the condition.
func subtitle(raw models.RawRecord) (size, condition string, err error) {
	text, err := scrapers.Text(raw, subtitleSel)
	if err != nil {
		return "", "", err
	}
	text = strings.TrimSpace(text)
	if before, after, ok := strings.Cut(text, "·"); ok {
		return strings.TrimSpace(before), strings.TrimSpace(after), nil
	}
	return "", text, nil
}
