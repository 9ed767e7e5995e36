package vinted

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"listing-hunter/pkg/browser"
	"listing-hunter/pkg/models"
	"listing-hunter/pkg/normalize"
	"listing-hunter/pkg/source"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

const (
	Source      = "vinted"
	BaseURL     = "https://www.vinted.se/"
	apiPath     = "api/v2/catalog/items?page=1&per_page=96&search_text=%s&catalog_ids=&order=newest_first"
	tokenCookie = "access_token_web"
	thumbType   = "thumb310x430"
)

var baseHeaders = map[string]string{
	"Accept":                    "application/json, text/plain, */*",
	"Accept-Language":           "en-US,en;q=0.5",
	"Upgrade-Insecure-Requests": "1",
	"DNT":                       "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
}

type Scraper struct {
	Collector *colly.Collector
	BaseURL   string
	// Delay is the pause between two search terms.
	Delay  time.Duration
	Logger *slog.Logger
}

var _ source.Adapter = (*Scraper)(nil)

func NewScraper(logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	c := colly.NewCollector(
		colly.AllowedDomains("www.vinted.se", "127.0.0.1"), // localhost for testing
		colly.UserAgent(browser.DefaultUserAgent),
		colly.AllowURLRevisit(),
	)
	return &Scraper{
		Collector: c,
		BaseURL:   BaseURL,
		Delay:     4 * time.Second,
		Logger:    logger.With("source", Source),
	}
}

// Item is one catalog API item, decoded loosely so that a drifted field
// only blanks that field. Numbers are kept as json.Number.
type Item map[string]any

type catalogResponse struct {
	Items []json.RawMessage `json:"items"`
}

func (s *Scraper) Name() string {
	return Source
}

func (s *Scraper) AllowList(terms []string) []string {
	return source.PlusSeparated(terms)
}

func (s *Scraper) Fetch(ctx context.Context, terms []string) ([]models.RawRecord, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", models.ErrSourceUnreachable, Source, err)
	}

	var records []models.RawRecord
	failed := 0
	for i, term := range terms {
		if i > 0 && s.Delay > 0 {
			select {
			case <-ctx.Done():
				return records, ctx.Err()
			case <-time.After(s.Delay):
			}
		}

		items, err := s.search(ctx, token, term)
		if err != nil {
			failed++
			s.Logger.Warn("search term failed", "term", term, "error", err)
			continue
		}
		s.Logger.Info("search term fetched", "term", term, "items", len(items))
		for _, item := range items {
			records = append(records, item)
		}
	}

	if len(terms) > 0 && failed == len(terms) {
		return nil, fmt.Errorf("%w: %s: every search term failed", models.ErrSourceUnreachable, Source)
	}
	return records, nil
}

// accessToken visits the landing page and returns the session cookie the
// catalog API expects.
func (s *Scraper) accessToken(ctx context.Context) (string, error) {
	c := s.Collector.Clone()
	c.Context = ctx
	if err := c.Visit(s.BaseURL); err != nil {
		return "", fmt.Errorf("warm-up visit: %w", err)
	}
	for _, cookie := range c.Cookies(s.BaseURL) {
		if cookie.Name == tokenCookie && cookie.Value != "" {
			return cookie.Value, nil
		}
	}
	return "", errors.New("no " + tokenCookie + " cookie")
}

func (s *Scraper) search(ctx context.Context, token, term string) ([]Item, error) {
	c := s.Collector.Clone()
	c.Context = ctx

	base := strings.TrimRight(s.BaseURL, "/") + "/"
	origin := strings.TrimRight(s.BaseURL, "/")

	c.OnRequest(func(r *colly.Request) {
		for k, v := range baseHeaders {
			r.Headers.Set(k, v)
		}
		r.Headers.Set("Origin", origin)
		r.Headers.Set("Referer", base)
		r.Headers.Set("Cookie", tokenCookie+"="+token)
	})

	var (
		items    []Item
		parseErr error
	)
	c.OnResponse(func(r *colly.Response) {
		items, parseErr = decodeItems(r.Body, s.Logger.With("term", term))
	})

	apiURL := base + fmt.Sprintf(apiPath, url.QueryEscape(strings.ReplaceAll(term, "+", " ")))
	if err := c.Visit(apiURL); err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, fmt.Errorf("decode catalog response: %w", parseErr)
	}
	return items, nil
}

// decodeItems fails only when the envelope is unreadable. An element that is
// not a JSON object is logged and skipped.
func decodeItems(body []byte, logger *slog.Logger) ([]Item, error) {
	var resp catalogResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(resp.Items))
	for i, raw := range resp.Items {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var it Item
		if err := dec.Decode(&it); err != nil || it == nil {
			logger.Warn("skipping malformed catalog item", "index", i, "error", err)
			continue
		}
		items = append(items, it)
	}
	return items, nil
}

func item(raw models.RawRecord) (Item, error) {
	switch v := raw.(type) {
	case Item:
		return v, nil
	case map[string]any:
		return Item(v), nil
	}
	return nil, fmt.Errorf("%w: %T", models.ErrUnexpectedRecord, raw)
}

var errMissingField = errors.New("missing field")

// lookup walks nested objects along path.
func (it Item) lookup(path ...string) (any, error) {
	var cur any = map[string]any(it)
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: not an object", key)
		}
		if cur, ok = obj[key]; !ok || cur == nil {
			return nil, fmt.Errorf("%s: %w", strings.Join(path, "."), errMissingField)
		}
	}
	return cur, nil
}

// Text returns the scalar at path as text. Numbers are accepted because the
// API is inconsistent about quoting ids and amounts.
func (it Item) Text(path ...string) (string, error) {
	v, err := it.lookup(path...)
	if err != nil {
		return "", err
	}
	switch v := v.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	default:
		return "", fmt.Errorf("%s: unexpected %T", strings.Join(path, "."), v)
	}
}

func field(path ...string) normalize.Accessor {
	return func(raw models.RawRecord) (string, error) {
		it, err := item(raw)
		if err != nil {
			return "", err
		}
		return it.Text(path...)
	}
}

func (s *Scraper) Accessors() normalize.Accessors {
	return normalize.Accessors{
		ID:        field("id"),
		Brand:     field("brand_title"),
		Title:     field("title"),
		Price:     price,
		Size:      field("size_title"),
		Condition: field("status"),
		URL:       field("url"),
		ImageURL:  imageURL,
	}
}

func price(raw models.RawRecord) (string, error) {
	it, err := item(raw)
	if err != nil {
		return "", err
	}
	amount, err := it.Text("total_item_price", "amount")
	if err != nil {
		return "", err
	}
	currency, _ := it.Text("total_item_price", "currency_code")
	return strings.TrimSpace(amount + " " + currency), nil
}

// imageURL prefers the portrait thumbnail and falls back to the full photo.
func imageURL(raw models.RawRecord) (string, error) {
	it, err := item(raw)
	if err != nil {
		return "", err
	}
	if thumbs, err := it.lookup("photo", "thumbnails"); err == nil {
		list, _ := thumbs.([]any)
		for _, t := range list {
			thumb, ok := t.(map[string]any)
			if !ok {
				continue
			}
			kind, _ := Item(thumb).Text("type")
			if u, _ := Item(thumb).Text("url"); kind == thumbType && u != "" {
				return u, nil
			}
		}
	}
	return it.Text("photo", "url")
}
