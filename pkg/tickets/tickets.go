package tickets

import (
	"context"
	"errors"
	"fmt"
	"listing-hunter/pkg/alert"
	"listing-hunter/pkg/browser"
	"log/slog"
	"strings"

	"github.com/gocolly/colly/v2"
)

type Status int

const (
	StatusNone Status = iota
	StatusPending
	StatusAvailable
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAvailable:
		return "available"
	default:
		return "none"
	}
}

const (
	noneMarker    = "There are currently no race numbers for sale"
	pendingMarker = "In progress"
)

type Checker struct {
	Collector *colly.Collector
	URL       string
	Logger    *slog.Logger
}

func NewChecker(pageURL string, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	c := colly.NewCollector(
		colly.UserAgent(browser.DefaultUserAgent),
		colly.AllowURLRevisit(),
	)
	return &Checker{
		Collector: c,
		URL:       pageURL,
		Logger:    logger.With("component", "tickets"),
	}
}

// Check fetches the exchange page once and classifies it by its text.
func (c *Checker) Check(ctx context.Context) (Status, error) {
	if c.URL == "" {
		return StatusNone, errors.New("tickets: no page url configured")
	}

	col := c.Collector.Clone()
	col.Context = ctx

	var text strings.Builder
	col.OnHTML("body", func(e *colly.HTMLElement) {
		text.WriteString(e.Text)
	})

	if err := col.Visit(c.URL); err != nil {
		return StatusNone, fmt.Errorf("tickets: visit %s: %w", c.URL, err)
	}

	status := Classify(text.String())
	c.Logger.Info("ticket page checked", "status", status)
	return status, nil
}

func Classify(pageText string) Status {
	switch {
	case strings.Contains(pageText, noneMarker):
		return StatusNone
	case strings.Contains(pageText, pendingMarker):
		return StatusPending
	default:
		return StatusAvailable
	}
}

// Notify alerts only when tickets are available.
func (c *Checker) Notify(ctx context.Context, a alert.Alerter, status Status) error {
	if status != StatusAvailable || a == nil {
		return nil
	}
	subject := "TICKETS " + strings.ToUpper(status.String())
	message := fmt.Sprintf("Tickets are %s.\nCheck the link: %s", status, c.URL)
	return a.Alert(ctx, subject, message)
}
