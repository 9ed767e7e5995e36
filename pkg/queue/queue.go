// Package queue is a durable at-least-once message queue kept in SQLite.
// A received message stays invisible for the visibility timeout; if it is
// not acknowledged in time it is handed out again with a new receipt.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"listing-hunter/pkg/models"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var (
	ErrEmpty        = errors.New("queue: no visible messages")
	ErrStaleReceipt = errors.New("queue: receipt no longer valid")
	ErrMalformed    = errors.New("queue: malformed message body")
)

type Message struct {
	ID           string
	Body         []byte
	Receipt      string
	ReceiveCount int
	SentAt       time.Time
}

// Decode unmarshals the body as a notification.
func (m Message) Decode() (models.NotificationMessage, error) {
	var n models.NotificationMessage
	if err := json.Unmarshal(m.Body, &n); err != nil {
		return models.NotificationMessage{}, fmt.Errorf("%w: message %s: %v", ErrMalformed, m.ID, err)
	}
	return n, nil
}

type Queue struct {
	db         *sql.DB
	visibility time.Duration
	now        func() time.Time
}

func Open(path string, visibility time.Duration) (*Queue, error) {
	if visibility <= 0 {
		return nil, fmt.Errorf("queue: visibility timeout must be positive, got %s", visibility)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("queue: open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			body BLOB NOT NULL,
			sent_at INTEGER NOT NULL,
			visible_at INTEGER NOT NULL,
			receive_count INTEGER NOT NULL DEFAULT 0,
			receipt TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS messages_visible_at ON messages (visible_at)`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("queue: init: %w", err)
		}
	}

	return &Queue{db: db, visibility: visibility, now: time.Now}, nil
}

func (q *Queue) Send(ctx context.Context, body []byte) (string, error) {
	id := uuid.NewString()
	now := q.now().UnixMilli()

	query, args, err := sq.Insert("messages").
		Columns("id", "body", "sent_at", "visible_at").
		Values(id, body, now, now).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("queue: build send: %w", err)
	}

	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return "", fmt.Errorf("queue: send: %w", err)
	}
	return id, nil
}

// Publish sends a notification encoded as a JSON object.
func (q *Queue) Publish(ctx context.Context, msg models.NotificationMessage) (string, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("queue: encode notification: %w", err)
	}
	return q.Send(ctx, body)
}

// Receive claims the oldest visible message. The claim is a single UPDATE,
// so concurrent receivers never get the same message within one visibility
// window.
func (q *Queue) Receive(ctx context.Context) (Message, error) {
	now := q.now()
	receipt := uuid.NewString()

	query, args, err := sq.Update("messages").
		Set("receipt", receipt).
		Set("visible_at", now.Add(q.visibility).UnixMilli()).
		Set("receive_count", sq.Expr("receive_count + 1")).
		Where("id = (SELECT id FROM messages WHERE visible_at <= ? ORDER BY seq LIMIT 1)", now.UnixMilli()).
		Suffix("RETURNING id, body, receive_count, sent_at").
		ToSql()
	if err != nil {
		return Message{}, fmt.Errorf("queue: build receive: %w", err)
	}

	var (
		m      Message
		sentAt int64
	)
	err = q.db.QueryRowContext(ctx, query, args...).Scan(&m.ID, &m.Body, &m.ReceiveCount, &sentAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Message{}, ErrEmpty
	}
	if err != nil {
		return Message{}, fmt.Errorf("queue: receive: %w", err)
	}

	m.Receipt = receipt
	m.SentAt = time.UnixMilli(sentAt)
	return m, nil
}

// Ack deletes the message claimed with receipt. It fails with
// ErrStaleReceipt when the claim expired and the message was handed out
// again, or was already acknowledged.
func (q *Queue) Ack(ctx context.Context, receipt string) error {
	query, args, err := sq.Delete("messages").Where(sq.Eq{"receipt": receipt}).ToSql()
	if err != nil {
		return fmt.Errorf("queue: build ack: %w", err)
	}

	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("queue: ack: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("queue: ack rows affected: %w", err)
	}
	if n == 0 {
		return ErrStaleReceipt
	}
	return nil
}

// Len counts every message still in the queue, visible or not.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages").Scan(&n); err != nil {
		return 0, fmt.Errorf("queue: count: %w", err)
	}
	return n, nil
}

func (q *Queue) Close() error {
	return q.db.Close()
}
