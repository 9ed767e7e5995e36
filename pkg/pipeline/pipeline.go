// Package pipeline runs one source end to end: fetch, normalize, filter,
// record novelty and, when something is new, publish a digest.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"listing-hunter/pkg/artifact"
	"listing-hunter/pkg/brand"
	"listing-hunter/pkg/digest"
	"listing-hunter/pkg/logger"
	"listing-hunter/pkg/models"
	"listing-hunter/pkg/normalize"
	"listing-hunter/pkg/novelty"
	"listing-hunter/pkg/source"
	"log/slog"
	"time"
)

type Publisher interface {
	Publish(ctx context.Context, msg models.NotificationMessage) (string, error)
}

type Pipeline struct {
	Source     string
	SenderName string
	Recipient  string
	Terms      []string

	Adapter   source.Adapter
	Novelty   novelty.Store
	Artifacts artifact.Store
	Queue     Publisher
	Logger    *slog.Logger

	now func() time.Time
}

type Result struct {
	Source      string `json:"source"`
	NewListings int    `json:"new_listings"`
	ArtifactKey string `json:"artifact_key,omitempty"`
	MessageID   string `json:"message_id,omitempty"`

	Fetched    int `json:"fetched"`
	Incomplete int `json:"incomplete"`
	Mismatched int `json:"mismatched"`
	Existing   int `json:"existing"`
	Failed     int `json:"failed"`
}

func (p *Pipeline) logger() *slog.Logger {
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	return p.Logger
}

func (p *Pipeline) clock() time.Time {
	if p.now != nil {
		return p.now()
	}
	return time.Now()
}

// Run executes one sequential pass. The returned error is non-nil only for
// fatal failures: the source is unreachable, or new listings exist but the
// digest could not be rendered, stored or announced. Per-item problems are
// logged and counted in the Result.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	log := p.logger().With("source", p.Source)
	res := Result{Source: p.Source}

	raw, err := p.Adapter.Fetch(ctx, p.Terms)
	if err != nil {
		return res, fmt.Errorf("pipeline %s: fetch: %w", p.Source, err)
	}
	res.Fetched = len(raw)

	dropped := logger.NewDeduplicator(func(msg string) { log.Info(msg) })
	defer dropped.Flush()

	filter := brand.NewFilter(p.Adapter.AllowList(p.Terms))
	acc := p.Adapter.Accessors()

	var fresh []models.Listing
	for _, r := range raw {
		l, ok := normalize.Normalize(r, acc)
		if !ok {
			res.Incomplete++
			dropped.Logf("incomplete or sold listing dropped")
			continue
		}
		if !filter.Matches(l) {
			res.Mismatched++
			log.Debug("brand not on allow-list", "id", l.ID, "brand", l.Brand)
			continue
		}

		outcome, err := p.Novelty.InsertIfAbsent(ctx, l)
		switch outcome {
		case novelty.Inserted:
			fresh = append(fresh, l)
		case novelty.AlreadyExists:
			res.Existing++
		default:
			if ctx.Err() != nil {
				return res, fmt.Errorf("pipeline %s: %w", p.Source, ctx.Err())
			}
			res.Failed++
			log.Error("novelty insert failed", "id", l.ID, "error", err)
		}
	}
	dropped.Flush()

	res.NewListings = len(fresh)
	log.Info("listings processed",
		"fetched", res.Fetched,
		"incomplete", res.Incomplete,
		"mismatched", res.Mismatched,
		"existing", res.Existing,
		"failed", res.Failed,
		"new", res.NewListings,
	)
	if len(fresh) == 0 {
		return res, nil
	}

	page, err := digest.Render(fresh)
	if err != nil {
		return res, fmt.Errorf("pipeline %s: render digest: %w", p.Source, err)
	}

	key := artifact.Key(p.Source, p.clock())
	if err := p.Artifacts.Put(ctx, key, page, digest.ContentType); err != nil {
		return res, fmt.Errorf("pipeline %s: store digest: %w", p.Source, err)
	}
	res.ArtifactKey = key
	log.Info("digest stored", "key", key, "bytes", len(page))

	msg := models.NotificationMessage{
		ObjectKey:  key,
		SenderName: p.SenderName,
		Subject:    Subject(len(fresh), p.SenderName),
		Recipient:  p.Recipient,
	}
	id, err := p.Queue.Publish(ctx, msg)
	if err != nil {
		return res, fmt.Errorf("pipeline %s: publish notification: %w", p.Source, err)
	}
	res.MessageID = id
	log.Info("notification queued", "message_id", id)

	return res, nil
}

func Subject(n int, senderName string) string {
	return fmt.Sprintf("%d new %s listings", n, senderName)
}

// Unreachable reports whether a Run error means the source itself failed.
func Unreachable(err error) bool {
	return errors.Is(err, models.ErrSourceUnreachable)
}
