package server

import (
	"net/http"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	clientdomain "github.com/smallbiznis/billora/internal/client/domain"
)

func (s *Server) ListClients(c *gin.Context) {
	req := clientdomain.ListClientRequest{}

	if v := c.Query("status"); v != "" {
		status := clientdomain.ClientStatus(v)
		if !status.Valid() {
			AbortWithError(c, newValidationError("status", "invalid", "unknown client status"))
			return
		}
		req.Status = &status
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			AbortWithError(c, newValidationError("limit", "invalid", "limit must be a non-negative integer"))
			return
		}
		req.Limit = n
	}

	resp, err := s.clientSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp.Clients})
}

func (s *Server) GetClientByID(c *gin.Context) {
	client, err := s.clientSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": client})
}

func (s *Server) CreateClient(c *gin.Context) {
	var req clientdomain.CreateClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid", "malformed request body"))
		return
	}

	client, err := s.clientSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": client})
}

// GetClientFinancials returns the stored derived aggregates without forcing a
// recomputation.
func (s *Server) GetClientFinancials(c *gin.Context) {
	client, err := s.clientSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": clientdomain.Financials{
		LifetimeBilled:     client.LifetimeBilled,
		LifetimePaid:       client.LifetimePaid,
		Outstanding:        client.Outstanding,
		AveragePaymentDays: client.AveragePaymentDays,
		Health:             client.Health,
	}})
}

// RecomputeClient recomputes the client's financial aggregates from its
// invoices. Idempotent.
func (s *Server) RecomputeClient(c *gin.Context) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		AbortWithError(c, clientdomain.ErrNotFound)
		return
	}

	fin, err := s.clientSvc.RecomputeAggregates(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": fin})
}
