package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	clientdomain "github.com/smallbiznis/billora/internal/client/domain"
	"github.com/smallbiznis/billora/internal/clock"
	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupClientService(t *testing.T) (clientdomain.Service, *gorm.DB, *snowflake.Node) {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&clientdomain.Client{},
		&invoicedomain.Invoice{},
		&invoicedomain.LineItem{},
	)
	require.NoError(t, err)

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	svc := New(ServiceParam{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)),
	})
	return svc, db, node
}

// Concurrent recomputations for the same client must serialize and leave the
// stored aggregates consistent with the invoice set.
func TestRecomputeAggregatesConcurrentSameClient(t *testing.T) {
	svc, db, node := setupClientService(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, clientdomain.CreateClientRequest{
		Name:  "Globex",
		Email: "ap@globex.test",
	})
	require.NoError(t, err)

	for i := 0; i < 8; i++ {
		inv := invoicedomain.Invoice{
			ID:            node.Generate(),
			ClientID:      c.ID,
			InvoiceNumber: fmt.Sprintf("INV-PAID-%06d", i),
			Status:        invoicedomain.InvoiceStatusPaid,
			Currency:      "USD",
			TotalAmount:   10000,
			IssueDate:     ts(1),
			PaidDate:      ts(11),
		}
		require.NoError(t, db.Create(&inv).Error)
	}
	for i := 0; i < 4; i++ {
		inv := invoicedomain.Invoice{
			ID:            node.Generate(),
			ClientID:      c.ID,
			InvoiceNumber: fmt.Sprintf("INV-SENT-%06d", i),
			Status:        invoicedomain.InvoiceStatusSent,
			Currency:      "USD",
			TotalAmount:   5000,
			IssueDate:     ts(1),
		}
		require.NoError(t, db.Create(&inv).Error)
	}

	const workers = 16
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecomputeAggregates(ctx, c.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	refreshed, err := svc.GetByID(ctx, c.ID.String())
	require.NoError(t, err)
	assert.Equal(t, int64(100000), refreshed.LifetimeBilled)
	assert.Equal(t, int64(80000), refreshed.LifetimePaid)
	assert.Equal(t, int64(20000), refreshed.Outstanding)
	assert.Equal(t, refreshed.LifetimeBilled-refreshed.LifetimePaid, refreshed.Outstanding)
	assert.Equal(t, 10.0, refreshed.AveragePaymentDays)
}

func TestRecomputeAggregatesUnknownClient(t *testing.T) {
	svc, _, node := setupClientService(t)

	_, err := svc.RecomputeAggregates(context.Background(), node.Generate())
	assert.ErrorIs(t, err, clientdomain.ErrNotFound)
}
