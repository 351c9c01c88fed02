// Package pdf renders invoices as PDF documents.
package pdf

import (
	"context"
	"io"

	clientdomain "github.com/smallbiznis/billora/internal/client/domain"
	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
	"go.uber.org/fx"
)

type Provider interface {
	GenerateInvoice(ctx context.Context, inv invoicedomain.Invoice, billTo clientdomain.Client) (io.Reader, error)
}

var Module = fx.Module("providers.pdf",
	fx.Provide(New),
)
