// Package browser owns the headless Chrome used by rendered-page adapters.
// A Session is opened once per run, reused for every search term and closed
// on every exit path; it is never shared between runs.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36"

type Options struct {
	UserAgent string
	// Settle is how long to wait after the page is ready. Catalog pages
	// hydrate their grids asynchronously and signal nothing when done.
	Settle      time.Duration
	PageTimeout time.Duration
	ExecPath    string
	NoSandbox   bool
	// DebugDir, when set, receives a screenshot and the page HTML of every
	// failed render.
	DebugDir string
	Logger   *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = DefaultUserAgent
	}
	if o.PageTimeout <= 0 {
		o.PageTimeout = 60 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Renderer loads a URL and returns the resulting document markup.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Close()
}

// Launcher opens a Renderer for one run.
type Launcher func(ctx context.Context) (Renderer, error)

// Chrome returns a Launcher backed by a local headless Chrome.
func Chrome(opts Options) Launcher {
	return func(ctx context.Context) (Renderer, error) {
		return Open(ctx, opts)
	}
}

type Session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	opts        Options
	renders     int
}

var _ Renderer = (*Session)(nil)

// Open starts the browser. The returned session must be closed.
func Open(ctx context.Context, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserAgent(opts.UserAgent),
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	if opts.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &Session{ctx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc, opts: opts}

	// An empty Run launches the browser, surfacing a missing binary here
	// instead of on the first navigation.
	if err := chromedp.Run(tabCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("browser: launch: %w", err)
	}
	return s, nil
}

func (s *Session) Render(ctx context.Context, pageURL string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.renders++

	pageCtx, cancel := context.WithTimeout(s.ctx, s.opts.PageTimeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	s.opts.Logger.Debug("navigating", "url", pageURL)
	err := chromedp.Run(pageCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.opts.Settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		s.dumpDebug()
		return "", fmt.Errorf("browser: render %s: %w", pageURL, err)
	}
	return html, nil
}

func (s *Session) dumpDebug() {
	if s.opts.DebugDir == "" {
		return
	}
	if err := os.MkdirAll(s.opts.DebugDir, 0o755); err != nil {
		s.opts.Logger.Warn("create debug dir", "error", err)
		return
	}

	debugCtx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()
	base := filepath.Join(s.opts.DebugDir, fmt.Sprintf("render-%d", s.renders))

	var shot []byte
	if err := chromedp.Run(debugCtx, chromedp.CaptureScreenshot(&shot)); err != nil {
		s.opts.Logger.Warn("capture screenshot", "error", err)
	} else if err := os.WriteFile(base+".png", shot, 0o644); err != nil {
		s.opts.Logger.Warn("write screenshot", "error", err)
	}

	var html string
	if err := chromedp.Run(debugCtx, chromedp.Evaluate(`document.documentElement.outerHTML`, &html)); err != nil {
		s.opts.Logger.Warn("capture html", "error", err)
	} else if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
		s.opts.Logger.Warn("write html", "error", err)
	} else {
		s.opts.Logger.Info("saved debug capture", "path", base)
	}
}

// Close shuts down the tab and the browser process. It is safe to call
// more than once.
func (s *Session) Close() {
	s.cancelTab()
	s.cancelAlloc()
}

// QueryURL substitutes an escaped search term into a URL template holding a
// single %s. "loro piana" and "loro+piana" produce the same query.
func QueryURL(template, term string) string {
	term = strings.ReplaceAll(strings.TrimSpace(term), "+", " ")
	return fmt.Sprintf(template, url.QueryEscape(term))
}
