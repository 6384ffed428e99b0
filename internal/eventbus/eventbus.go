// Package eventbus publishes job-lifecycle events to Kafka for the audit
// log and the backlog watchdog to consume asynchronously, and reads them
// back on the consumer side. Publishing from the scheduler is fire-and-
// forget: a broker outage degrades observability, not scheduling.
package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"github.com/smukkama/ytfetchd/internal/job"
)

// Event is the wire shape of one job-lifecycle occurrence. EventID makes
// each publish idempotent from a consumer's point of view (replays after a
// consumer restart carry the same id).
type Event struct {
	EventID  string    `json:"eventId"`
	Client   uint64    `json:"client"`
	Item     string    `json:"item"`
	State    string    `json:"state"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// FromJob builds the event a state transition on j should publish.
func FromJob(j job.Job) Event {
	return Event{
		EventID: uuid.NewString(),
		Client:  uint64(j.Client),
		Item:    string(j.Item),
		State:   j.State.String(),
		Error:   j.Error,
		At:      j.At,
	}
}

// AlarmEvent is the wire shape of one backlog-watchdog occurrence, published
// to a separate topic from job-lifecycle Events so the notifier can consume
// only alarm transitions rather than filtering the full job stream.
type AlarmEvent struct {
	EventID   string    `json:"eventId"`
	Client    uint64    `json:"client"`
	Kind      string    `json:"kind"` // "triggered" or "cleared"
	Depth     int       `json:"depth,omitempty"`
	Threshold int       `json:"threshold,omitempty"`
	At        time.Time `json:"at"`
}

// ProducerConfig configures the Kafka writer.
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	WriteTimeout time.Duration
}

// Producer publishes job-lifecycle events.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer builds a Producer with sane batching defaults, mirroring the
// teacher's metrics producer.
func NewProducer(cfg ProducerConfig) *Producer {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout == 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	var acks kafka.RequiredAcks
	switch cfg.RequiredAcks {
	case -1:
		acks = kafka.RequireAll
	case 0:
		acks = kafka.RequireNone
	default:
		acks = kafka.RequireOne
	}

	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			Compression:  compress.Snappy,
			RequiredAcks: acks,
			WriteTimeout: cfg.WriteTimeout,
		},
	}
}

// Publish emits ev, keyed by client id so all of one client's events land
// on the same partition and so stay ordered relative to one another.
func (p *Producer) Publish(ctx context.Context, ev Event) error {
	return p.write(ctx, fmt.Sprintf("%d", ev.Client), ev)
}

// PublishAlarm emits an AlarmEvent, keyed the same way as Publish. Intended
// for a Producer constructed with Topic set to the alarms topic rather than
// the job topic.
func (p *Producer) PublishAlarm(ctx context.Context, ev AlarmEvent) error {
	return p.write(ctx, fmt.Sprintf("%d", ev.Client), ev)
}

func (p *Producer) write(ctx context.Context, key string, payload interface{}) error {
	data, err := jsoniter.Marshal(payload)
	if err != nil {
		return fmt.Errorf("eventbus: marshal: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: data,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("eventbus: publish: %w", err)
	}
	return nil
}

// Close closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Consumer reads job-lifecycle events back off the bus.
type Consumer struct {
	reader *kafka.Reader
}

// NewConsumer creates a consumer in group groupID (one group per downstream
// — audit log, watchdog — so each sees every event independently).
func NewConsumer(brokers []string, topic, groupID string) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:        brokers,
			Topic:          topic,
			GroupID:        groupID,
			MinBytes:       1,
			MaxBytes:       10e6,
			CommitInterval: 0,
			StartOffset:    kafka.LastOffset,
		}),
	}
}

// Next fetches and decodes the next event and commits its offset before
// returning it, so an event the caller then fails to process is not
// redelivered.
func (c *Consumer) Next(ctx context.Context) (Event, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return Event{}, fmt.Errorf("eventbus: fetch: %w", err)
	}

	var ev Event
	if err := jsoniter.Unmarshal(msg.Value, &ev); err != nil {
		return Event{}, fmt.Errorf("eventbus: decode: %w", err)
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return Event{}, fmt.Errorf("eventbus: commit: %w", err)
	}
	return ev, nil
}

// NextAlarm fetches and decodes the next AlarmEvent, for a Consumer reading
// the alarms topic.
func (c *Consumer) NextAlarm(ctx context.Context) (AlarmEvent, error) {
	msg, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return AlarmEvent{}, fmt.Errorf("eventbus: fetch: %w", err)
	}

	var ev AlarmEvent
	if err := jsoniter.Unmarshal(msg.Value, &ev); err != nil {
		return AlarmEvent{}, fmt.Errorf("eventbus: decode: %w", err)
	}

	if err := c.reader.CommitMessages(ctx, msg); err != nil {
		return AlarmEvent{}, fmt.Errorf("eventbus: commit: %w", err)
	}
	return ev, nil
}

// Close closes the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
