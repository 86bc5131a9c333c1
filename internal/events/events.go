// Package events publishes booking lifecycle events.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Shivanand-hulikatti/hotel-booking/internal/model"
	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Type names a booking event.
type Type string

const (
	BookingCreated Type = "booking.created"
	BookingMoved   Type = "booking.moved"
)

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "booking-events"

// BookingEvent is the message body written for every committed booking
// change.
type BookingEvent struct {
	EventID        string    `json:"eventId"`
	Type           Type      `json:"type"`
	OccurredAt     time.Time `json:"occurredAt"`
	BookingID      int       `json:"bookingId"`
	UserID         int       `json:"userId"`
	RoomID         int       `json:"roomId"`
	PreviousRoomID *int      `json:"previousRoomId,omitempty"`
}

// Key partitions events by booking so one booking's events stay ordered.
func (e BookingEvent) Key() string {
	return strconv.Itoa(e.BookingID)
}

func NewBookingCreated(b *model.Booking) BookingEvent {
	return BookingEvent{
		EventID:    uuid.New().String(),
		Type:       BookingCreated,
		OccurredAt: time.Now().UTC(),
		BookingID:  b.ID,
		UserID:     b.UserID,
		RoomID:     b.RoomID,
	}
}

func NewBookingMoved(b *model.Booking, previousRoomID int) BookingEvent {
	e := NewBookingCreated(b)
	e.Type = BookingMoved
	e.PreviousRoomID = &previousRoomID
	return e
}

// Publisher delivers booking events.
type Publisher interface {
	Publish(ctx context.Context, e BookingEvent) error
	Close()
}

// KafkaConfig configures a KafkaPublisher.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
	Source   string
}

// KafkaPublisher writes events to a Kafka topic with franz-go.
type KafkaPublisher struct {
	client *kgo.Client
	topic  string
	source string
}

// NewKafkaPublisher connects to the brokers and verifies the connection.
func NewKafkaPublisher(ctx context.Context, cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	topic := cfg.Topic
	if topic == "" {
		topic = DefaultTopic
	}

	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(cfg.ClientID),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.RecordRetries(3),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping kafka: %w", err)
	}

	return &KafkaPublisher{client: client, topic: topic, source: cfg.Source}, nil
}

// Publish writes the event and waits for the broker to acknowledge it.
func (p *KafkaPublisher) Publish(ctx context.Context, e BookingEvent) error {
	rec, err := newRecord(p.topic, p.source, e)
	if err != nil {
		return err
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("publish %s event: %w", e.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	p.client.Close()
}

func newRecord(topic, source string, e BookingEvent) (*kgo.Record, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return &kgo.Record{
		Topic:     topic,
		Key:       []byte(e.Key()),
		Value:     value,
		Timestamp: e.OccurredAt,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "event_id", Value: []byte(e.EventID)},
			{Key: "source", Value: []byte(source)},
			{Key: "content_type", Value: []byte("application/json")},
		},
	}, nil
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, BookingEvent) error { return nil }

func (NopPublisher) Close() {}
