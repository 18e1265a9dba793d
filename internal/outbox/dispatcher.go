// Package outbox drains due reminder rows and delivers them to Kafka.
package outbox

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// Message is one claimed outbox row.
type Message struct {
	OutboxID     int64
	UserID       string
	Topic        string
	PartitionKey string
	Payload      []byte
	RemindAt     time.Time
}

// Dispatcher polls the reminder outbox and publishes rows whose remind
// time has passed. Failed rows stay unpublished with an incremented
// attempt count and are re-claimed on a later poll.
type Dispatcher struct {
	pool             *pgxpool.Pool
	producer         messageWriter
	pollInterval     time.Duration
	batchSize        int
	shutdownComplete chan struct{}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(pool *pgxpool.Pool, producer messageWriter, pollInterval time.Duration, batchSize int) *Dispatcher {
	return &Dispatcher{
		pool:             pool,
		producer:         producer,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		shutdownComplete: make(chan struct{}),
	}
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("reminder outbox error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait waits until the dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.fetchAndClaim(ctx)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if err := d.deliver(ctx, messages); err != nil {
		log.Printf("reminder outbox: delivery failure: %v", err)
		failedCounter.Add(float64(len(messages)))
		return d.recordAttempt(ctx, messages)
	}

	deliveredCounter.Add(float64(len(messages)))
	return d.markPublished(ctx, messages)
}

func (d *Dispatcher) fetchAndClaim(ctx context.Context) ([]Message, error) {
	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const query = `SELECT outbox_id, user_id, topic, partition_key, payload, remind_at
        FROM reminder_outbox
        WHERE published_at IS NULL AND remind_at <= now()
        ORDER BY remind_at
        LIMIT $1
        FOR UPDATE SKIP LOCKED`

	rows, err := tx.Query(ctx, query, d.batchSize)
	if err != nil {
		return nil, err
	}

	var messages []Message
	for rows.Next() {
		var msg Message
		if err = rows.Scan(&msg.OutboxID, &msg.UserID, &msg.Topic, &msg.PartitionKey, &msg.Payload, &msg.RemindAt); err != nil {
			rows.Close()
			return nil, err
		}
		messages = append(messages, msg)
	}
	rows.Close()
	if err = rows.Err(); err != nil {
		return nil, err
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return messages, nil
}

func (d *Dispatcher) deliver(ctx context.Context, messages []Message) error {
	byTopic := make(map[string][]kafka.Message)
	for _, msg := range messages {
		byTopic[msg.Topic] = append(byTopic[msg.Topic], kafka.Message{
			Key:   []byte(msg.PartitionKey),
			Value: msg.Payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte("reminder.due")},
				{Key: "user_id", Value: []byte(msg.UserID)},
			},
		})
	}
	for topic, batch := range byTopic {
		if err := d.producer.WriteMessages(ctx, topic, batch...); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) markPublished(ctx context.Context, messages []Message) error {
	ids := outboxIDs(messages)
	_, err := d.pool.Exec(ctx,
		`UPDATE reminder_outbox SET published_at=now() WHERE outbox_id = ANY($1)`, ids)
	return err
}

func (d *Dispatcher) recordAttempt(ctx context.Context, messages []Message) error {
	ids := outboxIDs(messages)
	_, err := d.pool.Exec(ctx,
		`UPDATE reminder_outbox SET attempts = attempts + 1 WHERE outbox_id = ANY($1)`, ids)
	return err
}

func outboxIDs(messages []Message) []int64 {
	ids := make([]int64, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.OutboxID)
	}
	return ids
}
