package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	loyaltydomain "github.com/atolpos/atolpos/internal/loyalty/domain"
	orderdomain "github.com/atolpos/atolpos/internal/order/domain"
	paymentdomain "github.com/atolpos/atolpos/internal/payment/domain"
	"github.com/atolpos/atolpos/internal/payment/gateway"
	printingdomain "github.com/atolpos/atolpos/internal/printing/domain"
	promodomain "github.com/atolpos/atolpos/internal/promotion/domain"
	"gorm.io/gorm"
)

type errorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var transition *orderdomain.InvalidTransitionError
	if errors.As(err, &transition) {
		return http.StatusConflict, errorPayload{
			Type:    "business_rule",
			Code:    "invalid_transition",
			Message: transition.Error(),
		}
	}

	var gwErr *gateway.GatewayError
	if errors.As(err, &gwErr) {
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Code:    "gateway_error",
			Message: gwErr.Error(),
		}
	}

	switch {
	case isValidation(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Code:    err.Error(),
			Message: err.Error(),
		}
	case isBusinessRule(err):
		return http.StatusConflict, errorPayload{
			Type:    "business_rule",
			Code:    err.Error(),
			Message: err.Error(),
		}
	case isNotFound(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Code:    err.Error(),
			Message: err.Error(),
		}
	case errors.Is(err, paymentdomain.ErrInvalidSignature):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Code:    "invalid_signature",
			Message: "invalid signature",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Code:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Code:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isValidation(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, orderdomain.ErrNoItems),
		errors.Is(err, orderdomain.ErrInvalidItem),
		errors.Is(err, orderdomain.ErrInvalidType),
		errors.Is(err, orderdomain.ErrInvalidDiscount),
		errors.Is(err, orderdomain.ErrTableRequired),
		errors.Is(err, orderdomain.ErrNothingToSplit),
		errors.Is(err, promodomain.ErrInvalidCode),
		errors.Is(err, promodomain.ErrInvalidValue),
		errors.Is(err, promodomain.ErrInvalidType),
		errors.Is(err, loyaltydomain.ErrInvalidPoints),
		errors.Is(err, loyaltydomain.ErrReasonRequired),
		errors.Is(err, paymentdomain.ErrInvalidMethod),
		errors.Is(err, paymentdomain.ErrInvalidAmount):
		return true
	}
	return false
}

func isBusinessRule(err error) bool {
	switch {
	case errors.Is(err, orderdomain.ErrSplitExceeds),
		errors.Is(err, orderdomain.ErrOrderFinalized),
		errors.Is(err, promodomain.ErrOrderFinalized),
		errors.Is(err, promodomain.ErrNotValid),
		errors.Is(err, loyaltydomain.ErrInsufficientPoints),
		errors.Is(err, loyaltydomain.ErrOrderFinalized),
		errors.Is(err, paymentdomain.ErrOrderFinalized),
		errors.Is(err, paymentdomain.ErrAmountExceedsDue),
		errors.Is(err, paymentdomain.ErrAlreadySettled),
		errors.Is(err, printingdomain.ErrJobNotRetryable):
		return true
	}
	return false
}

func isNotFound(err error) bool {
	switch {
	case errors.Is(err, orderdomain.ErrNotFound),
		errors.Is(err, promodomain.ErrNotFound),
		errors.Is(err, promodomain.ErrDraftNotFound),
		errors.Is(err, loyaltydomain.ErrHoldNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, printingdomain.ErrJobNotFound),
		errors.Is(err, printingdomain.ErrPrinterNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	}
	return false
}
