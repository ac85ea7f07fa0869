package server

import (
	"net/http"

	promodomain "github.com/atolpos/atolpos/internal/promotion/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type createPromotionRequest struct {
	Code               string  `json:"code"`
	Name               string  `json:"name"`
	Type               string  `json:"type"`
	Value              int64   `json:"value"`
	Scope              string  `json:"scope,omitempty"`
	Stackable          bool    `json:"stackable"`
	StartsAt           *string `json:"starts_at,omitempty"`
	ExpiresAt          *string `json:"expires_at,omitempty"`
	MinOrderLaari      int64   `json:"min_order_laari,omitempty"`
	MaxUses            int64   `json:"max_uses,omitempty"`
	MaxUsesPerCustomer int64   `json:"max_uses_per_customer,omitempty"`
}

func (s *Server) CreatePromotion(c *gin.Context) {
	var req createPromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	promotion, err := s.promoSvc.Create(c.Request.Context(), promodomain.CreatePromotionRequest{
		Code:               req.Code,
		Name:               req.Name,
		Type:               promodomain.PromotionType(req.Type),
		Value:              req.Value,
		Scope:              promodomain.PromotionScope(req.Scope),
		Stackable:          req.Stackable,
		StartsAt:           req.StartsAt,
		ExpiresAt:          req.ExpiresAt,
		MinOrderLaari:      req.MinOrderLaari,
		MaxUses:            req.MaxUses,
		MaxUsesPerCustomer: req.MaxUsesPerCustomer,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, promotion)
}

type evaluatePromotionRequest struct {
	Code           string        `json:"code"`
	OrderID        snowflake.ID  `json:"order_id"`
	CustomerID     *snowflake.ID `json:"customer_id,omitempty"`
	ItemPriceLaari int64         `json:"item_price_laari,omitempty"`
}

func (s *Server) ValidatePromotion(c *gin.Context) {
	var req evaluatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.promoSvc.Evaluate(c.Request.Context(), promodomain.EvaluateRequest{
		Code:           req.Code,
		OrderID:        req.OrderID,
		CustomerID:     req.CustomerID,
		ItemPriceLaari: req.ItemPriceLaari,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) ApplyPromotion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req evaluatePromotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	order, result, err := s.promoSvc.ApplyToOrder(c.Request.Context(), promodomain.EvaluateRequest{
		Code:           req.Code,
		OrderID:        id,
		CustomerID:     req.CustomerID,
		ItemPriceLaari: req.ItemPriceLaari,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !result.Valid {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"result": result})
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order, "result": result})
}

func (s *Server) RemovePromotion(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	promotionID, ok := paramID(c, "promotionId")
	if !ok {
		return
	}

	order, err := s.promoSvc.RemoveFromOrder(c.Request.Context(), id, promotionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}
