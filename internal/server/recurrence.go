package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/billora/internal/recurring"
)

func (s *Server) ListRecurrences(c *gin.Context) {
	req := recurring.ListRecurrenceRequest{}

	if v := c.Query("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			AbortWithError(c, newValidationError("active", "invalid", "active must be a boolean"))
			return
		}
		req.Active = &active
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			AbortWithError(c, newValidationError("limit", "invalid", "limit must be a non-negative integer"))
			return
		}
		req.Limit = n
	}

	recs, err := s.scheduler.ListRecurrences(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": recs})
}

func (s *Server) CreateRecurrence(c *gin.Context) {
	var req recurring.CreateRecurrenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("body", "invalid", "malformed request body"))
		return
	}

	rec, err := s.scheduler.CreateRecurrence(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": rec})
}
