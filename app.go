package main

import (
	"context"
	"fmt"
	"listing-hunter/pkg/alert"
	"listing-hunter/pkg/artifact"
	"listing-hunter/pkg/browser"
	"listing-hunter/pkg/config"
	"listing-hunter/pkg/consumer"
	"listing-hunter/pkg/mail"
	"listing-hunter/pkg/novelty"
	"listing-hunter/pkg/pipeline"
	"listing-hunter/pkg/queue"
	"listing-hunter/pkg/scheduler"
	"listing-hunter/pkg/scrapers/sellpy"
	"listing-hunter/pkg/scrapers/vinted"
	"listing-hunter/pkg/scrapers/vintedweb"
	"listing-hunter/pkg/source"
	"listing-hunter/pkg/tickets"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const maxConcurrentRuns = 3

type app struct {
	cfg       config.Config
	logger    *slog.Logger
	registry  *source.Registry
	artifacts *artifact.Bucket
	queue     *queue.Queue
	// runSlots bounds concurrent pipeline runs; each rendered run holds a
	// whole browser.
	runSlots chan struct{}
}

func newRegistry(cfg config.Config, logger *slog.Logger) *source.Registry {
	r := source.NewRegistry()

	rendered := func(build func(browser.Options) source.Adapter) source.Factory {
		return func(opts source.Options) (source.Adapter, error) {
			bo := browser.Options{
				PageTimeout: cfg.Browser.PageTimeout,
				ExecPath:    cfg.Browser.ExecPath,
				NoSandbox:   cfg.Browser.NoSandbox,
				DebugDir:    cfg.Browser.DebugDir,
				Logger:      logger,
			}
			if v := opts["settle"]; v != "" {
				d, err := time.ParseDuration(v)
				if err != nil {
					return nil, fmt.Errorf("settle: %w", err)
				}
				bo.Settle = d
			}
			return build(bo), nil
		}
	}

	r.Register(sellpy.Source, rendered(func(o browser.Options) source.Adapter { return sellpy.NewScraper(o) }))
	r.Register(vintedweb.Source, rendered(func(o browser.Options) source.Adapter { return vintedweb.NewScraper(o) }))
	r.Register(vinted.Source, func(opts source.Options) (source.Adapter, error) {
		s := vinted.NewScraper(logger)
		if v := opts["delay"]; v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, fmt.Errorf("delay: %w", err)
			}
			s.Delay = d
		}
		if v := opts["base_url"]; v != "" {
			s.BaseURL = v
		}
		return s, nil
	})
	return r
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func newApp(cfg config.Config, registry *source.Registry, logger *slog.Logger) (*app, error) {
	for _, p := range []string{cfg.Artifacts.Bucket, cfg.Queue.Path} {
		if err := ensureDir(p); err != nil {
			return nil, err
		}
	}

	bucket, err := artifact.OpenBucket(cfg.Artifacts.Bucket)
	if err != nil {
		return nil, err
	}
	q, err := queue.Open(cfg.Queue.Path, cfg.Queue.VisibilityTimeout)
	if err != nil {
		bucket.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		artifacts: bucket,
		queue:     q,
		runSlots:  make(chan struct{}, maxConcurrentRuns),
	}, nil
}

func (a *app) Close() {
	a.queue.Close()
	a.artifacts.Close()
}

func (a *app) Sources() []string {
	names := make([]string, 0, len(a.cfg.Sources))
	for _, s := range a.cfg.Sources {
		names = append(names, s.Name)
	}
	return names
}

// RunSource executes one pipeline run for the named source within
// run_timeout.
func (a *app) RunSource(ctx context.Context, name string) (pipeline.Result, error) {
	sc, ok := a.cfg.Source(name)
	if !ok {
		return pipeline.Result{Source: name}, fmt.Errorf("%w: %s", errUnknownSource, name)
	}

	select {
	case a.runSlots <- struct{}{}:
		defer func() { <-a.runSlots }()
	case <-ctx.Done():
		return pipeline.Result{Source: name}, ctx.Err()
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.RunTimeout)
	defer cancel()

	opts := source.Options{}
	for k, v := range sc.Options {
		opts[k] = v
	}
	if sc.Settle > 0 {
		opts["settle"] = sc.Settle.String()
	}
	adapter, err := a.registry.New(sc.Adapter, opts)
	if err != nil {
		return pipeline.Result{Source: name}, err
	}

	if a.cfg.Novelty.Driver == "" || a.cfg.Novelty.Driver == "sqlite" {
		if err := ensureDir(a.cfg.Novelty.DSN); err != nil {
			return pipeline.Result{Source: name}, err
		}
	}
	store, err := novelty.Open(ctx, a.cfg.Novelty.Driver, a.cfg.Novelty.DSN, sc.Table)
	if err != nil {
		return pipeline.Result{Source: name}, err
	}
	defer store.Close()

	p := &pipeline.Pipeline{
		Source:     sc.Name,
		SenderName: sc.SenderName,
		Recipient:  a.cfg.Mail.Recipient,
		Terms:      sc.Terms,
		Adapter:    adapter,
		Novelty:    store,
		Artifacts:  a.artifacts,
		Queue:      a.queue,
		Logger:     a.logger,
	}
	return p.Run(ctx)
}

func (a *app) Mailer() mail.Sender {
	if a.cfg.Mail.DryRun || a.cfg.Mail.SMTP.Host == "" {
		return &mail.LogSender{Logger: a.logger}
	}
	smtp := a.cfg.Mail.SMTP
	return mail.NewSMTPSender(mail.SMTPConfig{
		Host:     smtp.Host,
		Port:     smtp.Port,
		Username: smtp.Username,
		Password: smtp.Password,
		TLS:      smtp.TLS,
	})
}

func (a *app) Consumer() *consumer.Consumer {
	return &consumer.Consumer{
		Queue:        a.queue,
		Artifacts:    a.artifacts,
		Mail:         a.Mailer(),
		From:         a.cfg.Mail.Sender,
		PollInterval: a.cfg.Queue.PollInterval,
		Logger:       a.logger.With("component", "consumer"),
	}
}

func (a *app) Alerter() alert.Alerter {
	tg := a.cfg.Telegram
	if tg.BotToken == "" || tg.ChatID == 0 {
		return nil
	}
	t, err := alert.NewTelegram(tg.BotToken, tg.ChatID)
	if err != nil {
		a.logger.Warn("telegram alerts disabled", "error", err)
		return nil
	}
	return t
}

func (a *app) CheckTickets(ctx context.Context) (tickets.Status, error) {
	checker := tickets.NewChecker(a.cfg.Tickets.URL, a.logger)
	status, err := checker.Check(ctx)
	if err != nil {
		return status, err
	}
	if err := checker.Notify(ctx, a.Alerter(), status); err != nil {
		return status, err
	}
	return status, nil
}

func (a *app) Scheduler() (*scheduler.Scheduler, error) {
	s := scheduler.New(a.logger)
	for _, sc := range a.cfg.Sources {
		name := sc.Name
		err := s.Add(name, sc.Schedule, func(ctx context.Context) error {
			res, err := a.RunSource(ctx, name)
			if err == nil {
				a.logger.Info("scheduled run finished", "source", name, "new_listings", res.NewListings)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	if a.cfg.Tickets.URL != "" {
		err := s.Add("tickets", a.cfg.Tickets.Schedule, func(ctx context.Context) error {
			_, err := a.CheckTickets(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return s, nil
}
