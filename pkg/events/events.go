package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// Trip event types, one per persisted transition
const (
	TripRequested = "trip.requested"
	TripAccepted  = "trip.accepted"
	TripPickedUp  = "trip.picked_up"
	TripCompleted = "trip.completed"
	TripCancelled = "trip.cancelled"
)

// TripEvent is the record appended to the trip event log
type TripEvent struct {
	Type          string    `json:"type"`
	TripID        string    `json:"tripId"`
	RiderID       string    `json:"riderId"`
	DriverID      string    `json:"driverId,omitempty"`
	Status        string    `json:"status"`
	Fare          float64   `json:"fare"`
	PaymentMethod string    `json:"paymentMethod"`
	CancelledBy   string    `json:"cancelledBy,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// Publisher appends trip events to the log
type Publisher interface {
	Publish(ctx context.Context, event TripEvent) error
	Close() error
}

// KafkaPublisher writes events keyed by trip id so one trip's events stay ordered
// within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher creates a publisher for topic
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaPublisher{writer: w}
}

// Publish implements Publisher
func (k *KafkaPublisher) Publish(ctx context.Context, event TripEvent) error {
	msg, err := Encode(event)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, msg)
}

// Close flushes and closes the writer
func (k *KafkaPublisher) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}

// Encode renders the Kafka message for an event
func Encode(event TripEvent) (kafka.Message, error) {
	b, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode trip event: %w", err)
	}
	return kafka.Message{
		Key:   []byte(event.TripID),
		Value: b,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	}, nil
}

// Nop discards events. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(ctx context.Context, event TripEvent) error { return nil }
func (Nop) Close() error                                       { return nil }
