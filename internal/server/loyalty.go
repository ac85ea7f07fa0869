package server

import (
	"net/http"
	"strings"

	loyaltydomain "github.com/atolpos/atolpos/internal/loyalty/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type loyaltyHoldRequest struct {
	CustomerID snowflake.ID `json:"customer_id"`
	OrderID    snowflake.ID `json:"order_id"`
	Points     int64        `json:"points"`
	// Preview computes the clamp and discount without persisting.
	Preview bool `json:"preview,omitempty"`
}

func (s *Server) CreateLoyaltyHold(c *gin.Context) {
	var req loyaltyHoldRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CustomerID == 0 || req.OrderID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if req.Preview {
		preview, err := s.loyaltySvc.HoldPreview(c.Request.Context(), req.CustomerID, req.Points, req.OrderID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"preview": preview})
		return
	}

	hold, order, err := s.loyaltySvc.CreateOrRefreshHold(c.Request.Context(), req.CustomerID, req.OrderID, req.Points)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"hold": hold, "order": order})
}

func (s *Server) ReleaseLoyaltyHold(c *gin.Context) {
	orderID, ok := paramID(c, "orderId")
	if !ok {
		return
	}
	order, err := s.loyaltySvc.ReleaseHold(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (s *Server) GetLoyaltyAccount(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("customer_id"))
	customerID, err := snowflake.ParseString(raw)
	if err != nil || raw == "" {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	account, err := s.loyaltySvc.AccountFor(c.Request.Context(), customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account":          account,
		"available_points": account.AvailablePoints(),
	})
}

type adjustPointsRequest struct {
	CustomerID     snowflake.ID `json:"customer_id"`
	Delta          int64        `json:"delta"`
	Reason         string       `json:"reason"`
	IdempotencyKey string       `json:"idempotency_key,omitempty"`
}

func (s *Server) AdjustLoyaltyPoints(c *gin.Context) {
	var req adjustPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.CustomerID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	entry, err := s.loyaltySvc.Adjust(c.Request.Context(), loyaltydomain.AdjustRequest{
		CustomerID:     req.CustomerID,
		Delta:          req.Delta,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}
