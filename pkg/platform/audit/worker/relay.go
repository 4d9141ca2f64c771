// Package worker relays audit outbox rows to Kafka.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"irpf/pkg/platform/audit/store/postgres"
	"irpf/pkg/platform/circuit"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = time.Second
	defaultOpenBackoff  = 15 * time.Second
)

// Outbox is the subset of the postgres audit store the relay needs.
type Outbox interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	FetchUnpublished(ctx context.Context, limit int) ([]postgres.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
}

// Producer is satisfied by *kgo.Client.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

// Relay polls the outbox and produces each entry to a Kafka topic keyed by
// aggregate id, so events for one user stay ordered within a partition.
type Relay struct {
	outbox       Outbox
	producer     Producer
	topic        string
	logger       *slog.Logger
	breaker      *circuit.Breaker
	batchSize    int
	pollInterval time.Duration
	openBackoff  time.Duration
	now          func() time.Time

	nextAttempt time.Time
}

type Option func(*Relay)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) { r.logger = logger }
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.pollInterval = d
		}
	}
}

// WithBreaker overrides the circuit breaker guarding the producer.
func WithBreaker(b *circuit.Breaker) Option {
	return func(r *Relay) { r.breaker = b }
}

func NewRelay(outbox Outbox, producer Producer, topic string, opts ...Option) *Relay {
	r := &Relay{
		outbox:       outbox,
		producer:     producer,
		topic:        topic,
		logger:       slog.Default(),
		breaker:      circuit.New("audit-kafka", circuit.WithFailureThreshold(3)),
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
		openBackoff:  defaultOpenBackoff,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run relays until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := r.RelayOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.WarnContext(ctx, "audit relay batch failed", "error", err)
			}
		}
	}
}

// RelayOnce publishes one batch and returns how many entries were relayed.
// While the breaker is open it waits out the backoff before probing again.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	if r.breaker.IsOpen() && r.now().Before(r.nextAttempt) {
		return 0, nil
	}

	relayed := 0
	err := r.outbox.RunInTx(ctx, func(ctx context.Context) error {
		entries, err := r.outbox.FetchUnpublished(ctx, r.batchSize)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return nil
		}

		records := make([]*kgo.Record, 0, len(entries))
		ids := make([]uuid.UUID, 0, len(entries))
		for _, e := range entries {
			records = append(records, &kgo.Record{
				Topic: r.topic,
				Key:   []byte(e.AggregateID),
				Value: e.Payload,
				Headers: []kgo.RecordHeader{
					{Key: "event_type", Value: []byte(e.EventType)},
				},
				Timestamp: e.CreatedAt,
			})
			ids = append(ids, e.ID)
		}

		if err := r.producer.ProduceSync(ctx, records...).FirstErr(); err != nil {
			r.recordFailure(ctx)
			return fmt.Errorf("produce audit batch: %w", err)
		}
		r.recordSuccess(ctx)

		if err := r.outbox.MarkPublished(ctx, ids, r.now()); err != nil {
			return err
		}
		relayed = len(ids)
		return nil
	})
	return relayed, err
}

func (r *Relay) recordFailure(ctx context.Context) {
	_, change := r.breaker.RecordFailure()
	if r.breaker.IsOpen() {
		r.nextAttempt = r.now().Add(r.openBackoff)
	}
	if change.Opened {
		r.logger.WarnContext(ctx, "audit relay circuit opened", "breaker", r.breaker.Name())
	}
}

func (r *Relay) recordSuccess(ctx context.Context) {
	_, change := r.breaker.RecordSuccess()
	if change.Closed {
		r.logger.InfoContext(ctx, "audit relay circuit closed", "breaker", r.breaker.Name())
	}
}

// EnsureTopic creates the audit topic if it does not exist yet.
func EnsureTopic(ctx context.Context, admin *kadm.Client, topic string, partitions int32, replication int16) error {
	resp, err := admin.CreateTopics(ctx, partitions, replication, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	for _, t := range resp.Sorted() {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}
