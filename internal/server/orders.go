package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	orderdomain "github.com/atolpos/atolpos/internal/order/domain"
	"github.com/atolpos/atolpos/pkg/money"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type orderItemRequest struct {
	MenuItemID *snowflake.ID `json:"menu_item_id,omitempty"`
	Name       string        `json:"name"`
	UnitPrice  int64         `json:"unit_price_laari"`
	// UnitPriceDecimal is the legacy client encoding; read only when
	// unit_price_laari is absent.
	UnitPriceDecimal float64         `json:"unit_price,omitempty"`
	Quantity         int64           `json:"quantity"`
	Modifiers        json.RawMessage `json:"modifiers,omitempty"`
	Notes            string          `json:"notes,omitempty"`
}

type createOrderRequest struct {
	Type       string             `json:"type"`
	CustomerID *snowflake.ID      `json:"customer_id,omitempty"`
	StaffID    *snowflake.ID      `json:"staff_id,omitempty"`
	DeviceID   *string            `json:"device_id,omitempty"`
	TableID    *snowflake.ID      `json:"table_id,omitempty"`
	Items      []orderItemRequest `json:"items"`
}

func toItemInputs(items []orderItemRequest) []orderdomain.ItemInput {
	inputs := make([]orderdomain.ItemInput, 0, len(items))
	for _, item := range items {
		price := item.UnitPrice
		if price == 0 && item.UnitPriceDecimal != 0 {
			price = money.FromDecimal(item.UnitPriceDecimal)
		}
		inputs = append(inputs, orderdomain.ItemInput{
			MenuItemID:     item.MenuItemID,
			Name:           item.Name,
			UnitPriceLaari: price,
			Quantity:       item.Quantity,
			Modifiers:      item.Modifiers,
			Notes:          item.Notes,
		})
	}
	return inputs
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	order, err := s.orderSvc.Create(c.Request.Context(), orderdomain.CreateOrderRequest{
		Type:       orderdomain.OrderType(req.Type),
		CustomerID: req.CustomerID,
		StaffID:    req.StaffID,
		DeviceID:   req.DeviceID,
		TableID:    req.TableID,
		Items:      toItemInputs(req.Items),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) GetOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	order, err := s.orderSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) ListActiveOrders(c *gin.Context) {
	orders, err := s.orderSvc.ListActive(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) AddOrderItems(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Items []orderItemRequest `json:"items"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	order, err := s.orderSvc.AddItems(c.Request.Context(), id, toItemInputs(req.Items))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) SetManualDiscount(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		AmountLaari int64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	order, err := s.orderSvc.SetManualDiscount(c.Request.Context(), id, req.AmountLaari)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) HoldOrder(c *gin.Context)     { s.transition(c, s.orderSvc.Hold) }
func (s *Server) ResumeOrder(c *gin.Context)   { s.transition(c, s.orderSvc.Resume) }
func (s *Server) StartOrder(c *gin.Context)    { s.transition(c, s.orderSvc.Start) }
func (s *Server) CompleteOrder(c *gin.Context) { s.transition(c, s.orderSvc.Complete) }
func (s *Server) RecallOrder(c *gin.Context)   { s.transition(c, s.orderSvc.Recall) }
func (s *Server) CancelOrder(c *gin.Context)   { s.transition(c, s.orderSvc.Cancel) }
func (s *Server) RefundOrder(c *gin.Context)   { s.transition(c, s.orderSvc.Refund) }

func (s *Server) MergeOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		TargetTableID snowflake.ID `json:"target_table_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.TargetTableID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	order, err := s.orderSvc.Merge(c.Request.Context(), orderdomain.MergeRequest{
		SourceOrderID: id,
		TargetTableID: req.TargetTableID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) SplitOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		ItemIDs     []snowflake.ID `json:"item_ids,omitempty"`
		AmountLaari int64          `json:"amount,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	sibling, err := s.orderSvc.Split(c.Request.Context(), orderdomain.SplitRequest{
		OrderID:     id,
		ItemIDs:     req.ItemIDs,
		AmountLaari: req.AmountLaari,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sibling)
}

func (s *Server) transition(c *gin.Context, fn func(ctx context.Context, id snowflake.ID) (*orderdomain.Order, error)) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	order, err := fn(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func paramID(c *gin.Context, name string) (snowflake.ID, bool) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := snowflake.ParseString(raw)
	if err != nil || raw == "" {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}
