package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// StreamName holds failed-event replay messages.
const StreamName = "HOOKLINE_DLQ"

// subjectPrefix namespaces DLQ subjects; the final token is the
// failure reason so operators can replay a single class of failure.
const subjectPrefix = "hookline.dlq"

// JetStreamQueue writes failed events to NATS JetStream. Safe for use
// across multiple collector instances.
type JetStreamQueue struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	stream  jetstream.Stream
	written uint64
}

// NewJetStreamQueue connects to NATS and creates or updates the DLQ stream.
func NewJetStreamQueue(ctx context.Context, natsURL string) (*JetStreamQueue, error) {
	nc, err := nats.Connect(natsURL,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{subjectPrefix + ".>"},
		MaxAge:    7 * 24 * time.Hour,
		MaxBytes:  1024 * 1024 * 1024,
		Retention: jetstream.LimitsPolicy,
		Storage:   jetstream.FileStorage,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}

	slog.Info("dlq stream ready", slog.String("stream", StreamName))

	return &JetStreamQueue{nc: nc, js: js, stream: stream}, nil
}

// Write publishes one failed event to the DLQ stream.
func (q *JetStreamQueue) Write(ctx context.Context, failed *FailedEvent) error {
	if q == nil {
		return nil
	}

	data, err := json.Marshal(failed)
	if err != nil {
		slog.Error("marshal dlq entry", slog.String("error", err.Error()))
		return err
	}

	subject := fmt.Sprintf("%s.%s", subjectPrefix, failed.Reason)
	if _, err := q.js.Publish(ctx, subject, data); err != nil {
		slog.Error("publish dlq entry", slog.String("error", err.Error()))
		return err
	}

	atomic.AddUint64(&q.written, 1)
	slog.Info("dlq entry published",
		slog.String("request_id", failed.RequestID),
		slog.String("reason", failed.Reason),
	)
	return nil
}

// List reads up to limit failed events through an ephemeral consumer.
func (q *JetStreamQueue) List(ctx context.Context, limit int) ([]FailedEvent, error) {
	if q == nil {
		return nil, fmt.Errorf("dlq not enabled")
	}
	if limit <= 0 {
		limit = 100
	}

	consumer, err := q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: subjectPrefix + ".>",
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("create list consumer: %w", err)
	}

	msgs, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	var events []FailedEvent
	for msg := range msgs.Messages() {
		var failed FailedEvent
		if err := json.Unmarshal(msg.Data(), &failed); err != nil {
			slog.Warn("skip unparseable dlq message", slog.String("error", err.Error()))
			continue
		}
		events = append(events, failed)
	}
	return events, nil
}

// Close shuts down the NATS connection.
func (q *JetStreamQueue) Close() {
	if q != nil && q.nc != nil {
		q.nc.Close()
	}
}
