package queue

import (
	"context"
	"listing-hunter/pkg/models"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestQueue(t *testing.T) (*Queue, *clock) {
	t.Helper()
	q, err := Open(filepath.Join(t.TempDir(), "queue.db"), 30*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { q.Close() })

	c := &clock{t: time.Date(2025, 6, 28, 6, 0, 0, 0, time.UTC)}
	q.now = c.now
	return q, c
}

func TestPublishReceiveAck(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	sent := models.NotificationMessage{
		ObjectKey:  "vinted/2025-06-28.html",
		SenderName: "Vinted",
		Subject:    "2 new Vinted listings",
		Recipient:  "me@example.com",
	}
	id, err := q.Publish(ctx, sent)
	require.NoError(t, err)

	m, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, m.ID)
	assert.Equal(t, 1, m.ReceiveCount)
	assert.JSONEq(t, `{"object_key":"vinted/2025-06-28.html","sender_name":"Vinted","subject":"2 new Vinted listings","recipient":"me@example.com"}`, string(m.Body))

	got, err := m.Decode()
	require.NoError(t, err)
	assert.Equal(t, sent, got)

	require.NoError(t, q.Ack(ctx, m.Receipt))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = q.Receive(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestUnackedMessageIsRedelivered(t *testing.T) {
	ctx := context.Background()
	q, c := newTestQueue(t)

	_, err := q.Send(ctx, []byte(`{}`))
	require.NoError(t, err)

	first, err := q.Receive(ctx)
	require.NoError(t, err)

	_, err = q.Receive(ctx)
	require.ErrorIs(t, err, ErrEmpty, "claimed message must be invisible")

	c.advance(31 * time.Second)

	second, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.ReceiveCount)
	assert.NotEqual(t, first.Receipt, second.Receipt)

	assert.ErrorIs(t, q.Ack(ctx, first.Receipt), ErrStaleReceipt)
	assert.NoError(t, q.Ack(ctx, second.Receipt))
	assert.ErrorIs(t, q.Ack(ctx, second.Receipt), ErrStaleReceipt)
}

func TestReceiveIsFIFO(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	var ids []string
	for _, body := range []string{"a", "b", "c"} {
		id, err := q.Send(ctx, []byte(body))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	for _, want := range ids {
		m, err := q.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, m.ID)
	}
}

func TestConcurrentReceiversClaimDistinctMessages(t *testing.T) {
	ctx := context.Background()
	q, _ := newTestQueue(t)

	for i := 0; i < 10; i++ {
		_, err := q.Send(ctx, []byte(`{}`))
		require.NoError(t, err)
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				m, err := q.Receive(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[m.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 10)
	for id, n := range seen {
		assert.Equal(t, 1, n, "message %s claimed more than once", id)
	}
}

func TestOpenRejectsZeroVisibility(t *testing.T) {
	_, err := Open(":memory:", 0)
	assert.Error(t, err)
}
