package messaging

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"bomdesk/logging"
	"bomdesk/metrics"
	"bomdesk/store"
)

const (
	drainBatch       = 50
	maxOutboxRetries = 10
)

// Publisher is the part of Client the drainer needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// OutboxDrainer periodically sends pending outbox messages.
type OutboxDrainer struct {
	db       *store.DB
	pub      Publisher
	interval time.Duration
	log      *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	done     chan struct{}
}

func NewOutboxDrainer(db *store.DB, pub Publisher, interval time.Duration, log *zap.Logger) *OutboxDrainer {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &OutboxDrainer{
		db:       db,
		pub:      pub,
		interval: interval,
		log:      logging.OrNop(log).Named("outbox"),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (d *OutboxDrainer) Start() {
	go d.run()
}

// Stop cancels any in-flight publish and waits for the drain loop to exit.
// It is safe to call more than once, but only after Start.
func (d *OutboxDrainer) Stop() {
	d.stopOnce.Do(d.cancel)
	<-d.done
}

func (d *OutboxDrainer) run() {
	defer close(d.done)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.Drain(d.ctx)
		}
	}
}

// Drain publishes one batch of pending messages, acking each success and
// counting a retry for each failure. It returns the number published.
func (d *OutboxDrainer) Drain(ctx context.Context) int {
	msgs, err := d.db.ListPendingOutbox(ctx, drainBatch, maxOutboxRetries)
	if err != nil {
		d.log.Error("list pending", zap.Error(err))
		return 0
	}
	sent := 0
	for _, msg := range msgs {
		if err := d.pub.Publish(ctx, msg.Topic, msg.Payload); err != nil {
			metrics.OutboxFailures.Inc()
			d.log.Warn("publish failed", zap.String("topic", msg.Topic), zap.Int64("id", msg.ID), zap.Error(err))
			if err := d.db.IncrementOutboxRetries(ctx, msg.ID); err != nil {
				d.log.Error("increment retries", zap.Int64("id", msg.ID), zap.Error(err))
			}
			continue
		}
		if err := d.db.AckOutbox(ctx, msg.ID); err != nil {
			d.log.Error("ack", zap.Int64("id", msg.ID), zap.Error(err))
			continue
		}
		metrics.OutboxPublished.Inc()
		sent++
	}
	return sent
}
