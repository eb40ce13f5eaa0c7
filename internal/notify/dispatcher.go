package notify

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/webstore/internal/domain/order"
)

// Sink delivers a single event.
type Sink interface {
	Send(ctx context.Context, ev *Event) error
}

// Dispatcher implements order.Notifier. Each notification runs in its own
// goroutine on a context detached from the request, so a slow or failing
// sink never delays or fails checkout.
type Dispatcher struct {
	builder *Builder
	sink    Sink
	timeout time.Duration

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

var _ order.Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher. Every delivery is bounded by timeout.
func NewDispatcher(builder *Builder, sink Sink, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{builder: builder, sink: sink, timeout: timeout}
}

// OrderPlaced schedules delivery of the event for o and returns immediately.
func (d *Dispatcher) OrderPlaced(ctx context.Context, o *order.Order) {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID))

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		lg.Warn("Notification dropped, dispatcher closed")
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := d.deliver(ctx, o); err != nil {
			lg.Warn("Order notification failed", zap.Error(err))
			return
		}
		lg.Debug("Order notification sent")
	}()
}

func (d *Dispatcher) deliver(ctx context.Context, o *order.Order) error {
	ev, err := d.builder.Build(ctx, o)
	if err != nil {
		return errors.Wrap(err, "build event")
	}
	if err := d.sink.Send(ctx, ev); err != nil {
		return errors.Wrap(err, "send event")
	}
	return nil
}

// Close waits for in-flight deliveries and closes the sink if it holds
// resources. Notifications arriving afterwards are dropped.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.wg.Wait()
	if c, ok := d.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
