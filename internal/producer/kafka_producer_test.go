package producer

import (
	"testing"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Порядок событий по товару держится на партиционировании по ключу:
// балансировщик обязан выбирать партицию из ключа сообщения.
func TestProducer_PartitionsByKey(t *testing.T) {
	p := NewReservationEventProducer([]string{"localhost:9092"}, "reservation-events")
	defer p.Close()

	balancer, ok := p.writer.Balancer.(*kafka.Hash)
	if !ok {
		t.Fatalf("expected key-hash balancer, got %T", p.writer.Balancer)
	}

	// один и тот же product_id всегда даёт одну и ту же партицию
	key := []byte(uuid.New().String())
	partitions := []int{0, 1, 2, 3}

	first := balancer.Balance(kafka.Message{Key: key}, partitions...)
	for i := 0; i < 16; i++ {
		if got := balancer.Balance(kafka.Message{Key: key}, partitions...); got != first {
			t.Fatalf("same key must map to one partition: got %d, want %d", got, first)
		}
	}
}
