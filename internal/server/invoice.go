package server

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	invoicedomain "github.com/smallbiznis/billora/internal/invoice/domain"
)

func (s *Server) ListInvoices(c *gin.Context) {
	req := invoicedomain.ListInvoiceRequest{}

	if v := c.Query("client_id"); v != "" {
		if _, err := snowflake.ParseString(v); err != nil {
			AbortWithError(c, newValidationError("client_id", "invalid", "client_id must be a valid id"))
			return
		}
		req.ClientID = &v
	}
	if v := c.Query("status"); v != "" {
		status := invoicedomain.InvoiceStatus(v)
		if !status.Valid() {
			AbortWithError(c, newValidationError("status", "invalid", "unknown invoice status"))
			return
		}
		req.Status = &status
	}
	if v := c.Query("due_from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			AbortWithError(c, newValidationError("due_from", "invalid", "due_from must be RFC3339"))
			return
		}
		req.DueFrom = &t
	}
	if v := c.Query("due_to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			AbortWithError(c, newValidationError("due_to", "invalid", "due_to must be RFC3339"))
			return
		}
		req.DueTo = &t
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			AbortWithError(c, newValidationError("limit", "invalid", "limit must be a non-negative integer"))
			return
		}
		req.Limit = n
	}

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Invoices})
}

func (s *Server) GetInvoiceByID(c *gin.Context) {
	inv, err := s.invoiceSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) CreateInvoice(c *gin.Context) {
	var req invoicedomain.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid", "malformed request body"))
		return
	}

	inv, err := s.invoiceSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": inv})
}

func (s *Server) ApplyLineItems(c *gin.Context) {
	var req invoicedomain.ApplyLineItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid", "malformed request body"))
		return
	}

	inv, err := s.invoiceSvc.ApplyLineItems(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) SendInvoice(c *gin.Context) {
	inv, err := s.invoiceSvc.Transition(c.Request.Context(), c.Param("id"), invoicedomain.TransitionEvent{
		Kind: invoicedomain.TransitionSend,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) CancelInvoice(c *gin.Context) {
	inv, err := s.invoiceSvc.Transition(c.Request.Context(), c.Param("id"), invoicedomain.TransitionEvent{
		Kind: invoicedomain.TransitionCancel,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) InvoicePDF(c *gin.Context) {
	ctx := c.Request.Context()

	inv, err := s.invoiceSvc.GetByID(ctx, c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	billTo, err := s.clientSvc.GetByID(ctx, inv.ClientID.String())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	doc, err := s.pdf.GenerateInvoice(ctx, inv, billTo)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+inv.InvoiceNumber+`.pdf"`)
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, doc)
}
