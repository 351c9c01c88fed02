// Package events is the in-process fanout from invoice lifecycle transitions
// to the client aggregator and the recurring scheduler. Handlers run
// synchronously in subscription order; a handler error is logged and does not
// stop the remaining handlers, so a failed downstream recompute never rolls
// back a committed transition.
package events

import (
	"context"
	"sync"

	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/billora/internal/billingevent/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Event is the in-memory form of a lifecycle notification.
type Event struct {
	Type      eventdomain.EventType
	InvoiceID snowflake.ID
	ClientID  snowflake.ID
	Payload   map[string]any
}

// Handler consumes one event.
type Handler func(ctx context.Context, ev Event) error

// Dispatcher fans events out to subscribed handlers.
type Dispatcher struct {
	log *zap.Logger

	mu       sync.RWMutex
	handlers map[eventdomain.EventType][]Handler
	catchAll []Handler
}

func NewDispatcher(log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		log:      log.Named("events"),
		handlers: make(map[eventdomain.EventType][]Handler),
	}
}

// Subscribe registers a handler for one event type.
func (d *Dispatcher) Subscribe(t eventdomain.EventType, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[t] = append(d.handlers[t], h)
}

// SubscribeAll registers a handler for every event type.
func (d *Dispatcher) SubscribeAll(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.catchAll = append(d.catchAll, h)
}

// Dispatch delivers the event to all matching handlers.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) {
	d.mu.RLock()
	matched := make([]Handler, 0, len(d.handlers[ev.Type])+len(d.catchAll))
	matched = append(matched, d.handlers[ev.Type]...)
	matched = append(matched, d.catchAll...)
	d.mu.RUnlock()

	for _, h := range matched {
		if err := h(ctx, ev); err != nil {
			d.log.Error("event handler failed",
				zap.String("event_type", string(ev.Type)),
				zap.String("invoice_id", ev.InvoiceID.String()),
				zap.Error(err),
			)
		}
	}
}

// registerAuditLog mirrors every dispatched event into the audit log,
// independent of which typed handlers are subscribed.
func registerAuditLog(d *Dispatcher, log *zap.Logger) {
	audit := log.Named("events.audit")
	d.SubscribeAll(func(_ context.Context, ev Event) error {
		audit.Debug("event dispatched",
			zap.String("event_type", string(ev.Type)),
			zap.String("invoice_id", ev.InvoiceID.String()),
			zap.String("client_id", ev.ClientID.String()),
		)
		return nil
	})
}

var Module = fx.Module("events",
	fx.Provide(NewDispatcher),
	fx.Invoke(registerAuditLog),
)
