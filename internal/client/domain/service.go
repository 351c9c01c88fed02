package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrNotFound     = errors.New("client_not_found")
	ErrInvalidInput = errors.New("invalid_client_input")
)

// Financials is the derived financial summary of one client.
type Financials struct {
	LifetimeBilled     int64   `json:"lifetime_billed"`
	LifetimePaid       int64   `json:"lifetime_paid"`
	Outstanding        int64   `json:"outstanding"`
	AveragePaymentDays float64 `json:"average_payment_days"`
	Health             Health  `json:"health"`
}

type CreateClientRequest struct {
	Name         string         `json:"name"`
	Email        string         `json:"email"`
	Phone        string         `json:"phone,omitempty"`
	Address      string         `json:"address,omitempty"`
	City         string         `json:"city,omitempty"`
	State        string         `json:"state,omitempty"`
	ZipCode      string         `json:"zip_code,omitempty"`
	Country      string         `json:"country,omitempty"`
	TaxID        string         `json:"tax_id,omitempty"`
	PaymentTerms PaymentTerms   `json:"payment_terms,omitempty"`
	Notes        string         `json:"notes,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type ListClientRequest struct {
	Status *ClientStatus
	Limit  int
}

type ListClientResponse struct {
	Clients []Client `json:"clients"`
}

// Service manages clients and their derived financial aggregates.
type Service interface {
	Create(ctx context.Context, req CreateClientRequest) (Client, error)
	GetByID(ctx context.Context, id string) (Client, error)
	List(ctx context.Context, req ListClientRequest) (ListClientResponse, error)
	RecomputeAggregates(ctx context.Context, clientID snowflake.ID) (Financials, error)
	ClientExists(ctx context.Context, id snowflake.ID) (bool, error)
	PaymentWindowDays(ctx context.Context, id snowflake.ID) (int, error)
}
