package main

import (
	"github.com/bwmarrin/snowflake"
	eventdomain "github.com/smallbiznis/billora/internal/billingevent/domain"
	"github.com/smallbiznis/billora/internal/client"
	clientdomain "github.com/smallbiznis/billora/internal/client/domain"
	"github.com/smallbiznis/billora/internal/clock"
	"github.com/smallbiznis/billora/internal/config"
	"github.com/smallbiznis/billora/internal/events"
	"github.com/smallbiznis/billora/internal/invoice"
	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
	"github.com/smallbiznis/billora/internal/observability"
	"github.com/smallbiznis/billora/internal/providers/pdf"
	"github.com/smallbiznis/billora/internal/recurring"
	recurringdomain "github.com/smallbiznis/billora/internal/recurring/domain"
	"github.com/smallbiznis/billora/internal/server"
	"github.com/smallbiznis/billora/pkg/db"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func main() {
	app := fx.New(
		// core infrastructure
		config.Module,
		observability.Module,
		clock.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		events.Module,
		fx.Invoke(migrate),

		// functional domains
		client.Module,
		invoice.Module,
		recurring.Module,
		pdf.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}

func migrate(gormDB *gorm.DB) error {
	return gormDB.AutoMigrate(
		&clientdomain.Client{},
		&invoicedomain.Invoice{},
		&invoicedomain.LineItem{},
		&invoicedomain.InvoiceSequence{},
		&recurringdomain.RecurringInvoice{},
		&eventdomain.BillingEvent{},
	)
}
