package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/scrap-tracking/internal/models"
	"github.com/example/scrap-tracking/internal/observability"
)

// KafkaBroadcaster publishes location updates to the scrapper-locations
// topic, keyed by order id so one order's samples stay ordered.
type KafkaBroadcaster struct {
	writer *kafka.Writer
}

func NewKafkaBroadcaster(brokers []string, topic string) *KafkaBroadcaster {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &KafkaBroadcaster{writer: w}
}

func (k *KafkaBroadcaster) Send(orderID string, pos models.GeoPosition, heading float64) {
	u := models.LocationUpdate{OrderID: orderID, Position: pos, Heading: heading, CapturedAt: time.Now()}
	b, _ := json.Marshal(u)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(orderID), Value: b}); err == nil {
			observability.BroadcastsTotal.WithLabelValues("kafka").Inc()
		}
	}()
}

func (k *KafkaBroadcaster) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
