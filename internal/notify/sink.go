package notify

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// LogSink writes events to the request logger. It is the default sink when
// no broker is configured.
type LogSink struct{}

// Send logs the customer confirmation and the admin summary of ev.
func (LogSink) Send(ctx context.Context, ev *Event) error {
	lg := zctx.From(ctx).With(zap.String("order_id", ev.OrderID))

	lg.Info("Order confirmation",
		zap.String("to", ev.Customer.Email),
		zap.String("total", ev.Total.StringFixed(2)),
		zap.String("coupon", ev.CouponCode),
	)

	lines := make([]string, 0, len(ev.Items))
	for _, it := range ev.Items {
		line := it.Name
		if len(it.Contents) > 0 {
			line += " (" + strings.Join(it.Contents, ", ") + ")"
		}
		lines = append(lines, line)
	}
	lg.Info("Order summary",
		zap.String("customer", ev.Customer.Name),
		zap.String("customer_kind", ev.Customer.Kind),
		zap.String("phone", ev.Customer.Phone),
		zap.String("address", ev.Customer.Address),
		zap.Strings("items", lines),
		zap.String("subtotal", ev.Subtotal.StringFixed(2)),
		zap.String("discount", ev.Discount.StringFixed(2)),
		zap.String("total", ev.Total.StringFixed(2)),
	)
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events to a Kafka topic keyed by order ID.
type KafkaSink struct {
	w messageWriter
}

// NewKafkaSink creates a sink writing to topic on brokers.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{w: &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}}
}

// Send encodes ev and writes it as a single message.
func (s *KafkaSink) Send(ctx context.Context, ev *Event) error {
	var e jx.Encoder
	ev.Encode(&e)

	msg := kafka.Message{
		Key:   []byte(ev.OrderID),
		Value: e.Bytes(),
		Time:  ev.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte("order.placed")},
		},
	}
	if err := s.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "write message")
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	return s.w.Close()
}
