package kafka

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
)

// Producer publishes notification events. The notifier itself only consumes;
// this side backs notifyctl and integration checks.
type Producer struct {
	w *kafkago.Writer
}

func NewProducer(brokers []string) *Producer {
	return &Producer{
		w: &kafkago.Writer{
			Addr:     kafkago.TCP(brokers...),
			Balancer: &kafkago.Hash{},
		},
	}
}

// Publish sends value to topic keyed by user, so one user's events stay on one
// partition. The active trace context travels in the record headers.
func (p *Producer) Publish(ctx context.Context, topic, user string, value []byte) error {
	msg := kafkago.Message{
		Topic: topic,
		Key:   []byte(user),
		Value: value,
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{msg: &msg})
	return p.w.WriteMessages(ctx, msg)
}

func (p *Producer) Close() error { return p.w.Close() }

type headerCarrier struct {
	msg *kafkago.Message
}

func (c headerCarrier) Get(key string) string {
	for _, h := range c.msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c headerCarrier) Set(key, value string) {
	for i, h := range c.msg.Headers {
		if h.Key == key {
			c.msg.Headers[i].Value = []byte(value)
			return
		}
	}
	c.msg.Headers = append(c.msg.Headers, kafkago.Header{Key: key, Value: []byte(value)})
}

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}
