package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
)

type paymentWebhookRequest struct {
	InvoiceID string `json:"invoice_id"`
	Amount    int64  `json:"amount"`
}

// PaymentWebhook records a payment received by an external payment processor.
// Full payment moves the invoice to paid; partial payments accumulate.
func (s *Server) PaymentWebhook(c *gin.Context) {
	var req paymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid", "malformed request body"))
		return
	}
	if req.InvoiceID == "" {
		AbortWithError(c, newValidationError("invoice_id", "required", "invoice_id is required"))
		return
	}

	inv, err := s.invoiceSvc.Transition(c.Request.Context(), req.InvoiceID, invoicedomain.TransitionEvent{
		Kind:   invoicedomain.TransitionPayment,
		Amount: req.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

type readReceiptWebhookRequest struct {
	InvoiceID string `json:"invoice_id"`
}

// ReadReceiptWebhook records that the client viewed the invoice. Repeated
// receipts are no-ops.
func (s *Server) ReadReceiptWebhook(c *gin.Context) {
	var req readReceiptWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid", "malformed request body"))
		return
	}
	if req.InvoiceID == "" {
		AbortWithError(c, newValidationError("invoice_id", "required", "invoice_id is required"))
		return
	}

	inv, err := s.invoiceSvc.Transition(c.Request.Context(), req.InvoiceID, invoicedomain.TransitionEvent{
		Kind: invoicedomain.TransitionView,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

type emailDeliveryWebhookRequest struct {
	InvoiceID string `json:"invoice_id"`
	Status    string `json:"status"`
}

// EmailDeliveryWebhook records email provider callbacks (delivered, opened,
// bounced). An opened email also counts as a view.
func (s *Server) EmailDeliveryWebhook(c *gin.Context) {
	var req emailDeliveryWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid", "malformed request body"))
		return
	}
	if req.InvoiceID == "" {
		AbortWithError(c, newValidationError("invoice_id", "required", "invoice_id is required"))
		return
	}
	status := invoicedomain.EmailStatus(req.Status)
	if !status.Valid() {
		AbortWithError(c, newValidationError("status", "invalid", "unknown email status"))
		return
	}

	inv, err := s.invoiceSvc.MarkEmail(c.Request.Context(), req.InvoiceID, status)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}
