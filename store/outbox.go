package store

import (
	"context"
	"time"
)

type OutboxMessage struct {
	ID        int64
	Topic     string
	Payload   []byte
	MsgType   string
	StationID string
	Retries   int
	CreatedAt time.Time
	SentAt    *time.Time
}

func (db *DB) EnqueueOutbox(ctx context.Context, topic string, payload []byte, msgType, stationID string) error {
	_, err := db.ExecContext(ctx, db.Q(`INSERT INTO outbox (topic, payload, msg_type, station_id) VALUES (?, ?, ?, ?)`),
		topic, payload, msgType, stationID)
	return Classify("enqueue outbox", err)
}

// ListPendingOutbox returns unsent messages with fewer than maxRetries
// failed attempts, oldest first.
func (db *DB) ListPendingOutbox(ctx context.Context, limit, maxRetries int) ([]*OutboxMessage, error) {
	rows, err := db.QueryContext(ctx, db.Q(`SELECT id, topic, payload, msg_type, station_id, retries, created_at FROM outbox
		WHERE sent_at IS NULL AND retries < ? ORDER BY id LIMIT ?`), maxRetries, limit)
	if err != nil {
		return nil, Classify("list outbox", err)
	}
	defer rows.Close()
	var msgs []*OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		var createdAt any
		if err := rows.Scan(&m.ID, &m.Topic, &m.Payload, &m.MsgType, &m.StationID, &m.Retries, &createdAt); err != nil {
			return nil, Classify("scan outbox", err)
		}
		m.CreatedAt = parseTime(createdAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

func (db *DB) AckOutbox(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, db.Q(`UPDATE outbox SET sent_at=`+db.dialect.Now()+` WHERE id=?`), id)
	return Classify("ack outbox", err)
}

func (db *DB) IncrementOutboxRetries(ctx context.Context, id int64) error {
	_, err := db.ExecContext(ctx, db.Q(`UPDATE outbox SET retries=retries+1 WHERE id=?`), id)
	return Classify("outbox retries", err)
}

// CountPendingOutbox reports how many messages still wait for delivery.
func (db *DB) CountPendingOutbox(ctx context.Context) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox WHERE sent_at IS NULL`).Scan(&n)
	return n, Classify("count outbox", err)
}
