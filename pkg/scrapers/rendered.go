// Package scrapers holds what the catalog adapters under it share: the
// rendered-page fetch loop and goquery field helpers.
package scrapers

import (
	"context"
	"errors"
	"fmt"
	"listing-hunter/pkg/browser"
	"listing-hunter/pkg/models"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Page describes where listings live on a rendered catalog page.
type Page struct {
	// URLTemplate holds one %s for the search term.
	URLTemplate string
	// Item selects one node per listing.
	Item string
	// Exclude, when set, drops items nested inside matching containers
	// (carousels and "related" sliders repeat listings from other searches).
	Exclude string
}

// FetchRendered opens one browser session, renders every term's search page
// and returns the matching nodes as *goquery.Selection records. A failing
// term is logged and skipped; only a browser that cannot start, or a run in
// which every term failed, is reported as models.ErrSourceUnreachable.
func FetchRendered(ctx context.Context, launch browser.Launcher, page Page, terms []string, logger *slog.Logger) ([]models.RawRecord, error) {
	if logger == nil {
		logger = slog.Default()
	}

	session, err := launch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrSourceUnreachable, err)
	}
	defer session.Close()

	var (
		records []models.RawRecord
		failed  int
		lastErr error
	)
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		pageURL := browser.QueryURL(page.URLTemplate, term)
		html, err := session.Render(ctx, pageURL)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return records, ctx.Err()
			}
			failed++
			lastErr = err
			logger.Warn("search term failed", "term", term, "error", err)
			continue
		}

		nodes, err := Select(html, page.Item, page.Exclude)
		if err != nil {
			failed++
			lastErr = err
			logger.Warn("parse search page", "term", term, "error", err)
			continue
		}
		if len(nodes) == 0 {
			logger.Warn("search page had no listings", "term", term, "url", pageURL)
		}

		logger.Info("scraped search term", "term", term, "items", len(nodes))
		for _, n := range nodes {
			records = append(records, n)
		}
	}

	if len(terms) > 0 && failed == len(terms) {
		return nil, fmt.Errorf("%w: all %d search terms failed, last error: %w", models.ErrSourceUnreachable, failed, lastErr)
	}
	return records, nil
}

// Select parses html and returns the nodes matching item that are not inside
// an exclude container.
func Select(html, item, exclude string) ([]*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	var nodes []*goquery.Selection
	doc.Find(item).Each(func(_ int, s *goquery.Selection) {
		if exclude != "" && s.ParentsFiltered(exclude).Length() > 0 {
			return
		}
		nodes = append(nodes, s)
	})
	return nodes, nil
}

// Selection unwraps a raw record produced by FetchRendered.
func Selection(raw models.RawRecord) (*goquery.Selection, error) {
	s, ok := raw.(*goquery.Selection)
	if !ok || s == nil {
		return nil, models.ErrUnexpectedRecord
	}
	return s, nil
}

var errNotFound = errors.New("element not found")

// Text returns the text of the first element matching sel.
func Text(raw models.RawRecord, sel string) (string, error) {
	s, err := Selection(raw)
	if err != nil {
		return "", err
	}
	found := s.Find(sel).First()
	if found.Length() == 0 {
		return "", fmt.Errorf("%s: %w", sel, errNotFound)
	}
	return found.Text(), nil
}

// Attr returns attribute attr of the first element matching sel.
func Attr(raw models.RawRecord, sel, attr string) (string, error) {
	s, err := Selection(raw)
	if err != nil {
		return "", err
	}
	v, ok := s.Find(sel).First().Attr(attr)
	if !ok {
		return "", fmt.Errorf("%s[%s]: %w", sel, attr, errNotFound)
	}
	return v, nil
}
