package producer

import (
	"context"
	"encoding/json"
	"time"

	"reservation-service/internal/service"

	"github.com/segmentio/kafka-go"
)

// ReservationEventProducer публикует события жизненного цикла резерваций
// в один топик; ключ — product_id, чтобы события по товару шли по порядку.
type ReservationEventProducer struct {
	writer *kafka.Writer
}

func NewReservationEventProducer(brokers []string, topic string) *ReservationEventProducer {
	return &ReservationEventProducer{
		writer: &kafka.Writer{
			Addr:  kafka.TCP(brokers...),
			Topic: topic,
			// партиционирование по ключу: все события одного товара
			// попадают в одну партицию и читаются по порядку
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		},
	}
}

type eventEnvelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (p *ReservationEventProducer) publish(ctx context.Context, key, eventType string, payload any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	value, err := json.Marshal(eventEnvelope{Type: eventType, Payload: payload})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: value,
	})
}

func (p *ReservationEventProducer) PublishReservationCreated(ctx context.Context, e service.ReservationCreatedEvent) error {
	return p.publish(ctx, e.ProductID.String(), "reservation.created", e)
}

func (p *ReservationEventProducer) PublishReservationConfirmed(ctx context.Context, e service.ReservationConfirmedEvent) error {
	return p.publish(ctx, e.ProductID.String(), "reservation.confirmed", e)
}

func (p *ReservationEventProducer) PublishReservationReleased(ctx context.Context, e service.ReservationReleasedEvent) error {
	return p.publish(ctx, e.ProductID.String(), "reservation.released", e)
}

func (p *ReservationEventProducer) PublishReservationExpired(ctx context.Context, e service.ReservationExpiredEvent) error {
	return p.publish(ctx, e.ProductID.String(), "reservation.expired", e)
}

func (p *ReservationEventProducer) Close() error {
	return p.writer.Close()
}
