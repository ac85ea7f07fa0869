package server

import (
	"io"
	"net/http"
	"strings"

	paymentdomain "github.com/atolpos/atolpos/internal/payment/domain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const signatureHeader = "X-Gateway-Signature"

func (s *Server) RecordOrderPayments(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Payments []paymentdomain.PaymentInput `json:"payments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.paymentSvc.RecordPayments(c.Request.Context(), id, req.Payments)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) ListOrderPayments(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	payments, err := s.paymentSvc.ListByOrder(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

type initiatePaymentRequest struct {
	OrderID        snowflake.ID `json:"order_id"`
	AmountLaari    int64        `json:"amount,omitempty"`
	IdempotencyKey string       `json:"idempotency_key"`
}

func (s *Server) InitiateOnlinePayment(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.paymentSvc.InitiatePayment(c.Request.Context(), req.OrderID, req.IdempotencyKey)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) InitiatePartialOnlinePayment(c *gin.Context) {
	var req initiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.OrderID == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.paymentSvc.InitiatePartialPayment(c.Request.Context(), paymentdomain.InitiateRequest{
		OrderID:        req.OrderID,
		AmountLaari:    req.AmountLaari,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// OnlinePaymentReturn lands the customer's browser after the gateway
// checkout. The state query parameter is a hint for the POS UI and nothing
// more; order and payment status move only on verified webhooks.
func (s *Server) OnlinePaymentReturn(c *gin.Context) {
	orderID := strings.TrimSpace(c.Query("orderId"))
	state := strings.TrimSpace(c.Query("state"))
	c.JSON(http.StatusOK, gin.H{
		"order_id": orderID,
		"state":    state,
		"note":     "pending confirmation; final status arrives by webhook",
	})
}

// IngestGatewayWebhook reads the raw body before any parsing so the
// signature covers the exact bytes the gateway sent.
func (s *Server) IngestGatewayWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err = s.ingestor.Ingest(c.Request.Context(), "gateway", payload, c.GetHeader(signatureHeader))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
