package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/snowflake"
	clientdomain "github.com/smallbiznis/billora/internal/client/domain"
	"github.com/smallbiznis/billora/internal/clock"
	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
	obsmetrics "github.com/smallbiznis/billora/internal/observability/metrics"
	"github.com/smallbiznis/billora/pkg/db/option"
	"github.com/smallbiznis/billora/pkg/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	clientrepo repository.Repository[clientdomain.Client]

	// serializes recomputation per client id; concurrent invoice updates for
	// different clients proceed in parallel
	locksMu sync.Mutex
	locks   map[snowflake.ID]*sync.Mutex
}

func New(p ServiceParam) clientdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("client.service"),
		genID: p.GenID,
		clock: p.Clock,

		clientrepo: repository.ProvideStore[clientdomain.Client](p.DB),
		locks:      make(map[snowflake.ID]*sync.Mutex),
	}
}

func (s *Service) Create(ctx context.Context, req clientdomain.CreateClientRequest) (clientdomain.Client, error) {
	name := strings.TrimSpace(req.Name)
	email := strings.TrimSpace(req.Email)
	if name == "" || email == "" {
		return clientdomain.Client{}, fmt.Errorf("%w: name and email are required", clientdomain.ErrInvalidInput)
	}

	terms := req.PaymentTerms
	if terms == "" {
		terms = clientdomain.PaymentTermsNet30
	}

	now := s.clock.Now()
	c := clientdomain.Client{
		ID:           s.genID.Generate(),
		Name:         name,
		Email:        email,
		Phone:        req.Phone,
		Address:      req.Address,
		City:         req.City,
		State:        req.State,
		ZipCode:      req.ZipCode,
		Country:      req.Country,
		TaxID:        req.TaxID,
		Status:       clientdomain.ClientStatusActive,
		PaymentTerms: terms,
		Health:       clientdomain.HealthExcellent,
		Notes:        req.Notes,
		Metadata:     datatypes.JSONMap(req.Metadata),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.clientrepo.Create(ctx, &c); err != nil {
		return clientdomain.Client{}, err
	}

	s.log.Info("client created",
		zap.String("client_id", c.ID.String()),
		zap.String("name", c.Name),
	)
	return c, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (clientdomain.Client, error) {
	clientID, err := snowflake.ParseString(strings.TrimSpace(id))
	if err != nil {
		return clientdomain.Client{}, clientdomain.ErrNotFound
	}

	var c clientdomain.Client
	err = s.db.WithContext(ctx).First(&c, "id = ?", clientID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return clientdomain.Client{}, clientdomain.ErrNotFound
		}
		return clientdomain.Client{}, err
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, req clientdomain.ListClientRequest) (clientdomain.ListClientResponse, error) {
	filter := &clientdomain.Client{}
	if req.Status != nil {
		filter.Status = *req.Status
	}

	options := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{Allow: map[string]bool{"created_at": true, "name": true}}),
	}
	if req.Limit > 0 {
		options = append(options, option.WithLimit(req.Limit))
	}

	items, err := s.clientrepo.Find(ctx, filter, options...)
	if err != nil {
		return clientdomain.ListClientResponse{}, err
	}

	clients := make([]clientdomain.Client, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		clients = append(clients, *item)
	}
	return clientdomain.ListClientResponse{Clients: clients}, nil
}

// RecomputeAggregates rebuilds the client's derived financial columns from
// its full invoice set. Calls for the same client are serialized; the
// computation itself is idempotent, so a lost race never corrupts the
// outstanding invariant.
func (s *Service) RecomputeAggregates(ctx context.Context, clientID snowflake.ID) (clientdomain.Financials, error) {
	lock := s.lockFor(clientID)
	lock.Lock()
	defer lock.Unlock()

	var invoices []invoicedomain.Invoice
	err := s.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Find(&invoices).Error
	if err != nil {
		return clientdomain.Financials{}, err
	}

	fin := ComputeFinancials(invoices)

	res := s.db.WithContext(ctx).
		Model(&clientdomain.Client{}).
		Where("id = ?", clientID).
		Updates(map[string]any{
			"lifetime_billed":      fin.LifetimeBilled,
			"lifetime_paid":        fin.LifetimePaid,
			"outstanding":          fin.Outstanding,
			"average_payment_days": fin.AveragePaymentDays,
			"health":               fin.Health,
			"updated_at":           s.clock.Now(),
		})
	if res.Error != nil {
		return clientdomain.Financials{}, res.Error
	}
	if res.RowsAffected == 0 {
		return clientdomain.Financials{}, clientdomain.ErrNotFound
	}

	obsmetrics.Engine().IncRecompute(string(fin.Health))
	s.log.Debug("client aggregates recomputed",
		zap.String("client_id", clientID.String()),
		zap.Int64("outstanding", fin.Outstanding),
		zap.String("health", string(fin.Health)),
	)
	return fin, nil
}

func (s *Service) ClientExists(ctx context.Context, id snowflake.ID) (bool, error) {
	count, err := s.clientrepo.Count(ctx, &clientdomain.Client{ID: id})
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// PaymentWindowDays returns the client's agreed payment window in days.
func (s *Service) PaymentWindowDays(ctx context.Context, id snowflake.ID) (int, error) {
	c, err := s.GetByID(ctx, id.String())
	if err != nil {
		return 0, err
	}
	return c.PaymentTerms.DueInDays(), nil
}

func (s *Service) lockFor(clientID snowflake.ID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[clientID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[clientID] = lock
	}
	return lock
}
