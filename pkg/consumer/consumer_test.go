package consumer

import (
	"context"
	"errors"
	"listing-hunter/pkg/artifact"
	"listing-hunter/pkg/mail"
	"listing-hunter/pkg/models"
	"listing-hunter/pkg/queue"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []mail.Email
	fail error
}

func (r *recordingSender) Send(_ context.Context, e mail.Email) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return "", r.fail
	}
	r.sent = append(r.sent, e)
	return "<id@test>", nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// crashingQueue simulates a worker dying after the mail went out but before
// the acknowledgement reached the queue.
type crashingQueue struct {
	*queue.Queue
	crash bool
}

func (c *crashingQueue) Ack(ctx context.Context, receipt string) error {
	if c.crash {
		return errors.New("worker crashed")
	}
	return c.Queue.Ack(ctx, receipt)
}

type env struct {
	queue  *queue.Queue
	bucket *artifact.Bucket
	sender *recordingSender
}

func newEnv(t *testing.T, visibility time.Duration) *env {
	t.Helper()
	dir := t.TempDir()

	q, err := queue.Open(filepath.Join(dir, "queue.db"), visibility)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	b, err := artifact.OpenBucket(filepath.Join(dir, "artifacts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })

	return &env{queue: q, bucket: b, sender: &recordingSender{}}
}

func (e *env) publish(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.bucket.Put(ctx, "sellpy/2025-06-28.html", []byte("<html>digest</html>"), "text/html"))
	_, err := e.queue.Publish(ctx, models.NotificationMessage{
		ObjectKey:  "sellpy/2025-06-28.html",
		SenderName: "Sellpy",
		Subject:    "2 new Sellpy listings",
		Recipient:  "me@example.se",
	})
	require.NoError(t, err)
}

func TestPollMailsAndAcks(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Minute)
	e.publish(t)

	c := &Consumer{Queue: e.queue, Artifacts: e.bucket, Mail: e.sender, From: "hunter@example.se"}
	require.NoError(t, c.Poll(ctx))

	require.Equal(t, 1, e.sender.count())
	got := e.sender.sent[0]
	assert.Equal(t, mail.Email{
		FromName: "Sellpy",
		From:     "hunter@example.se",
		To:       "me@example.se",
		Subject:  "2 new Sellpy listings",
		HTMLBody: "<html>digest</html>",
	}, got)

	n, err := e.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, c.Poll(ctx), queue.ErrEmpty)
}

func TestCrashBeforeAckRedelivers(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 50*time.Millisecond)
	e.publish(t)

	crashing := &crashingQueue{Queue: e.queue, crash: true}
	c := &Consumer{Queue: crashing, Artifacts: e.bucket, Mail: e.sender, From: "hunter@example.se"}

	require.Error(t, c.Poll(ctx))
	assert.Equal(t, 1, e.sender.count())
	assert.ErrorIs(t, c.Poll(ctx), queue.ErrEmpty, "message is invisible until the timeout lapses")

	time.Sleep(100 * time.Millisecond)
	crashing.crash = false
	require.NoError(t, c.Poll(ctx))
	assert.Equal(t, 2, e.sender.count(), "redelivery sends a duplicate mail")

	n, err := e.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMailFailureLeavesMessageQueued(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Minute)
	e.publish(t)
	e.sender.fail = errors.New("relay down")

	c := &Consumer{Queue: e.queue, Artifacts: e.bucket, Mail: e.sender, From: "hunter@example.se"}
	require.Error(t, c.Poll(ctx))

	n, err := e.queue.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUndeliverableMessagesAreDiscarded(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, 50*time.Millisecond)
	require.NoError(t, e.bucket.Put(ctx, "sellpy/2025-06-28.html", []byte("<html>digest</html>"), "text/html"))

	_, err := e.queue.Send(ctx, []byte(`{"object_key":`))
	require.NoError(t, err)
	_, err = e.queue.Publish(ctx, models.NotificationMessage{
		ObjectKey:  "sellpy/2025-06-28.html",
		SenderName: "Sellpy",
		Subject:    "1 new Sellpy listings",
		Recipient:  "",
	})
	require.NoError(t, err)

	c := &Consumer{Queue: e.queue, Artifacts: e.bucket, Mail: &mail.LogSender{}, From: "hunter@example.se"}

	err = c.Poll(ctx)
	assert.ErrorIs(t, err, ErrDiscarded)
	assert.ErrorIs(t, err, queue.ErrMalformed)

	err = c.Poll(ctx)
	assert.ErrorIs(t, err, ErrDiscarded)
	assert.ErrorIs(t, err, mail.ErrInvalidAddress)

	time.Sleep(100 * time.Millisecond)
	n, err := e.queue.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "undeliverable messages must not be redelivered")
	assert.ErrorIs(t, c.Poll(ctx), queue.ErrEmpty)
}

func TestMissingArtifactIsNotMailed(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Minute)
	_, err := e.queue.Publish(ctx, models.NotificationMessage{ObjectKey: "vinted/2025-01-01.html", Recipient: "me@example.se"})
	require.NoError(t, err)

	c := &Consumer{Queue: e.queue, Artifacts: e.bucket, Mail: e.sender}
	err = c.Poll(ctx)
	assert.ErrorIs(t, err, models.ErrArtifactNotFound)
	assert.Zero(t, e.sender.count())
}

func TestRunStopsOnCancel(t *testing.T) {
	e := newEnv(t, time.Minute)
	e.publish(t)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Consumer{
		Queue:        e.queue,
		Artifacts:    e.bucket,
		Mail:         e.sender,
		From:         "hunter@example.se",
		PollInterval: 10 * time.Millisecond,
	}

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, 2) }()

	require.Eventually(t, func() bool { return e.sender.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 1, e.sender.count())
}
