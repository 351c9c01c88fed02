package recurring

import (
	"context"

	eventdomain "github.com/smallbiznis/billora/internal/billingevent/domain"
	"github.com/smallbiznis/billora/internal/config"
	"github.com/smallbiznis/billora/internal/events"
	"go.uber.org/fx"
)

var Module = fx.Module("recurring",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(subscribeLifecycleEvents),
	fx.Invoke(startScheduler),
)

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.SchedulerRunInterval,
		BatchSize:   cfg.SchedulerBatchSize,
	}
}

func subscribeLifecycleEvents(dispatcher *events.Dispatcher, sched *Scheduler) {
	handler := func(ctx context.Context, ev events.Event) error {
		return sched.HandleLifecycleEvent(ctx, ev.InvoiceID)
	}
	dispatcher.Subscribe(eventdomain.EventInvoiceSent, handler)
	dispatcher.Subscribe(eventdomain.EventInvoicePaid, handler)
}

func startScheduler(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())
			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})
			return nil
		},
	})
}
