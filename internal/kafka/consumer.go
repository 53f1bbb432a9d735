package kafka

import (
	"context"
	"errors"

	"github.com/SARVESHVARADKAR123/notifier/internal/observability"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/SARVESHVARADKAR123/notifier/internal/kafka"

type Handler interface {
	Handle(ctx context.Context, record []byte)
}

type kgoRecordCarrier struct {
	record *kgo.Record
}

func (c kgoRecordCarrier) Get(key string) string {
	for _, h := range c.record.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// Set is a no-op; consumers only extract.
func (c kgoRecordCarrier) Set(key string, value string) {}

func (c kgoRecordCarrier) Keys() []string {
	keys := make([]string, 0, len(c.record.Headers))
	for _, h := range c.record.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

type Consumer struct {
	client  *kgo.Client
	handler Handler
}

func New(brokers, topics []string, group string, handler Handler) (*Consumer, error) {
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
		kgo.OnPartitionsRevoked(func(ctx context.Context, _ *kgo.Client, _ map[string][]int32) {
			observability.GetLogger(ctx).Info("kafka partitions revoked")
		}),
		kgo.OnPartitionsAssigned(func(ctx context.Context, _ *kgo.Client, _ map[string][]int32) {
			observability.GetLogger(ctx).Info("kafka partitions assigned")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Consumer{client: cl, handler: handler}, nil
}

func (c *Consumer) Start(ctx context.Context) {
	go func() {
		log := observability.GetLogger(ctx)
		log.Info("kafka consumer started")
		for {
			select {
			case <-ctx.Done():
				log.Info("kafka consumer loop stopping: context canceled")
				return
			default:
				fetches := c.client.PollFetches(ctx)
				if fetches.IsClientClosed() {
					return
				}
				if errs := fetches.Errors(); len(errs) > 0 {
					for _, ferr := range errs {
						if errors.Is(ferr.Err, context.Canceled) {
							return
						}
						log.Error("kafka fetch error", zap.String("topic", ferr.Topic), zap.Int32("partition", ferr.Partition), zap.Error(ferr.Err))
					}
					continue
				}

				fetches.EachRecord(func(r *kgo.Record) {
					c.handleRecord(ctx, r)
				})
			}
		}
	}()
}

func (c *Consumer) handleRecord(ctx context.Context, r *kgo.Record) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, kgoRecordCarrier{record: r})
	ctx, span := otel.Tracer(tracerName).Start(ctx, "notification-event.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.destination", r.Topic),
			attribute.Int("messaging.kafka.partition", int(r.Partition)),
			attribute.Int64("messaging.kafka.offset", r.Offset),
		),
	)
	defer span.End()

	c.handler.Handle(ctx, r.Value)
}

func (c *Consumer) Close() {
	if c.client != nil {
		c.client.Close()
	}
}
