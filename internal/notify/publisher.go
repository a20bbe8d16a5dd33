// Package notify publishes booking lifecycle events to Kafka.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"

	"github.com/cx-tal-miterani/train-booking-system/internal/logger"
	"github.com/cx-tal-miterani/train-booking-system/shared/models"
)

type EventType string

const (
	EventBookingConfirmed EventType = "booking.confirmed"
	EventBookingFailed    EventType = "booking.failed"
)

// Event is the message body written to the bookings topic
type Event struct {
	ID               string             `json:"id"`
	Type             EventType          `json:"type"`
	OrderID          string             `json:"orderId"`
	ScheduleID       string             `json:"scheduleId"`
	Contact          models.Contact     `json:"contact"`
	Seats            []models.SeatLabel `json:"seats"`
	TotalAmount      models.Money       `json:"totalAmount"`
	ConfirmationCode string             `json:"confirmationCode,omitempty"`
	Status           models.OrderStatus `json:"status"`
	FailureReason    string             `json:"failureReason,omitempty"`
	OccurredAt       time.Time          `json:"occurredAt"`
}

// Publisher delivers booking events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type KafkaConfig struct {
	Brokers  []string
	Topic    string
	RetryMax int
	Timeout  time.Duration
}

// KafkaPublisher writes events with the order ID as key, so all events of one
// order land on the same partition in order.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

// NewSaramaConfig returns the producer settings used for booking events.
func NewSaramaConfig(cfg KafkaConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Partitioner = sarama.NewHashPartitioner
	sc.Producer.Retry.Max = cfg.RetryMax
	if cfg.Timeout > 0 {
		sc.Producer.Timeout = cfg.Timeout
	}
	return sc
}

func NewKafkaPublisher(cfg KafkaConfig, log *logger.Logger) (*KafkaPublisher, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return NewKafkaPublisherWithProducer(producer, cfg.Topic, log), nil
}

// NewKafkaPublisherWithProducer wraps an existing producer.
func NewKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic, log: log}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(e.OrderID),
		Value: sarama.ByteEncoder(body),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event-type"), Value: []byte(e.Type)},
		},
		Timestamp: e.OccurredAt,
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to publish %s for order %s: %w", e.Type, e.OrderID, err)
	}
	p.log.Debug("Event published", "type", e.Type, "order_id", e.OrderID, "partition", partition, "offset", offset)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// LogPublisher only logs events. The worker falls back to it when no brokers
// are configured.
type LogPublisher struct {
	log    *logger.Logger
	mu     sync.Mutex
	events []Event
}

func NewLogPublisher(log *logger.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	p.log.Info("Booking event", "type", e.Type, "order_id", e.OrderID, "status", e.Status)
	return nil
}

// Events returns the events published so far.
func (p *LogPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}
