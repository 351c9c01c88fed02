package client

import (
	"context"

	eventdomain "github.com/smallbiznis/billora/internal/billingevent/domain"
	clientdomain "github.com/smallbiznis/billora/internal/client/domain"
	"github.com/smallbiznis/billora/internal/client/service"
	"github.com/smallbiznis/billora/internal/events"
	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("client.service",
	fx.Provide(service.New),
	fx.Provide(provideDirectory),
	fx.Invoke(subscribeLifecycleEvents),
)

func provideDirectory(svc clientdomain.Service) invoicedomain.ClientDirectory {
	return svc
}

// subscribeLifecycleEvents recomputes the affected client's aggregates after
// every financially relevant invoice transition.
func subscribeLifecycleEvents(dispatcher *events.Dispatcher, svc clientdomain.Service) {
	handler := func(ctx context.Context, ev events.Event) error {
		if ev.ClientID == 0 {
			return nil
		}
		_, err := svc.RecomputeAggregates(ctx, ev.ClientID)
		return err
	}

	for _, t := range []eventdomain.EventType{
		eventdomain.EventInvoiceSent,
		eventdomain.EventInvoicePaid,
		eventdomain.EventInvoiceOverdue,
		eventdomain.EventInvoiceCancelled,
		eventdomain.EventPaymentRecorded,
	} {
		dispatcher.Subscribe(t, handler)
	}
}
