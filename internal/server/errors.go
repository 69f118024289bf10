package server

import (
	"errors"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/cookiejar/internal/audit/domain"
	authdomain "github.com/smallbiznis/cookiejar/internal/auth/domain"
	"github.com/smallbiznis/cookiejar/internal/authorization"
	billingdomain "github.com/smallbiznis/cookiejar/internal/billing/domain"
	billingsyncdomain "github.com/smallbiznis/cookiejar/internal/billingsync/domain"
	checkoutdomain "github.com/smallbiznis/cookiejar/internal/checkout/domain"
	customerdomain "github.com/smallbiznis/cookiejar/internal/customer/domain"
	mediadomain "github.com/smallbiznis/cookiejar/internal/media/domain"
	orderdomain "github.com/smallbiznis/cookiejar/internal/order/domain"
	productdomain "github.com/smallbiznis/cookiejar/internal/product/domain"
	unitdomain "github.com/smallbiznis/cookiejar/internal/productunit/domain"
	reconciledomain "github.com/smallbiznis/cookiejar/internal/reconcile/domain"
	subscriptiondomain "github.com/smallbiznis/cookiejar/internal/subscription/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
)

var validationSentinels = []error{
	ErrInvalidRequest,
	productdomain.ErrInvalidName,
	productdomain.ErrInvalidCode,
	productdomain.ErrInvalidPrice,
	productdomain.ErrInvalidQuantityRange,
	productdomain.ErrInvalidID,
	unitdomain.ErrInvalidID,
	unitdomain.ErrInvalidProduct,
	unitdomain.ErrInvalidName,
	unitdomain.ErrInvalidQuantity,
	unitdomain.ErrInvalidPrice,
	customerdomain.ErrInvalidEmail,
	customerdomain.ErrInvalidID,
	orderdomain.ErrInvalidID,
	orderdomain.ErrInvalidStatus,
	orderdomain.ErrInvalidAmount,
	orderdomain.ErrInvalidReason,
	orderdomain.ErrInvalidDispute,
	orderdomain.ErrInvalidEvidence,
	subscriptiondomain.ErrInvalidPlan,
	subscriptiondomain.ErrPlanNotConfigured,
	subscriptiondomain.ErrInvalidCustomer,
	subscriptiondomain.ErrInvalidItems,
	subscriptiondomain.ErrInvalidSubscription,
	checkoutdomain.ErrEmptyCart,
	checkoutdomain.ErrInvalidItem,
	checkoutdomain.ErrInvalidQuantity,
	checkoutdomain.ErrInvalidCustomer,
	checkoutdomain.ErrProductNotFound,
	checkoutdomain.ErrProductUnavailable,
	checkoutdomain.ErrInvalidSession,
	billingsyncdomain.ErrInvalidPrice,
	billingdomain.ErrInvalidSignature,
	billingdomain.ErrInvalidPayload,
	billingdomain.ErrInvalidEvent,
	reconciledomain.ErrInvalidEvent,
	reconciledomain.ErrEmptyPayload,
	mediadomain.ErrEmptyFile,
	authdomain.ErrWeakPassword,
	authdomain.ErrInvalidRole,
	auditdomain.ErrInvalidPageToken,
	auditdomain.ErrInvalidAction,
}

var notFoundSentinels = []error{
	ErrNotFound,
	productdomain.ErrNotFound,
	unitdomain.ErrNotFound,
	customerdomain.ErrNotFound,
	orderdomain.ErrNotFound,
	subscriptiondomain.ErrNotFound,
	checkoutdomain.ErrSessionNotFound,
	billingsyncdomain.ErrProductNotFound,
	gorm.ErrRecordNotFound,
}

var conflictSentinels = []error{
	ErrConflict,
	productdomain.ErrCodeAlreadyExists,
	orderdomain.ErrInvalidTransition,
	orderdomain.ErrConflict,
	orderdomain.ErrNotPaid,
	authdomain.ErrUserExists,
}

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
		c.Header("Content-Type", "application/json")
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

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var cartErr *checkoutdomain.ValidationError
	if errors.As(err, &cartErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  fieldErrors(cartErr),
		}
	}

	var providerErr *billingdomain.ProviderError
	if errors.As(err, &providerErr) {
		message := strings.TrimSpace(providerErr.Message)
		if message == "" {
			message = "billing provider request failed"
		}
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_error",
			Message: message,
		}
	}

	if code, ok := matchSentinel(err, validationSentinels); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authdomain.ErrInvalidCredentials):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isAny(err, conflictSentinels):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isAny(err, notFoundSentinels):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, mediadomain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{
			Type:    "file_too_large",
			Message: "file too large",
		}
	case errors.Is(err, mediadomain.ErrUnsupportedType):
		return http.StatusUnsupportedMediaType, errorPayload{
			Type:    "unsupported_media_type",
			Message: "unsupported media type",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, billingdomain.ErrInvalidResponse):
		return http.StatusBadGateway, errorPayload{
			Type:    "provider_error",
			Message: "billing provider returned an invalid response",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, billingdomain.ErrNotConfigured),
		errors.Is(err, mediadomain.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code recorded on request logs.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if status >= http.StatusInternalServerError && payload.Type == "internal_error" {
		return "internal", code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func matchSentinel(err error, sentinels []error) (string, bool) {
	for _, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return sentinel.Error(), true
		}
	}
	return "", false
}

func isAny(err error, sentinels []error) bool {
	_, ok := matchSentinel(err, sentinels)
	return ok
}

func fieldErrors(err *checkoutdomain.ValidationError) []ValidationError {
	code := err.Err.Error()
	if len(err.Fields) == 0 {
		return []ValidationError{{
			Field:   validationErrorField(code),
			Code:    code,
			Message: validationErrorMessage(code),
		}}
	}

	fields := make([]string, 0, len(err.Fields))
	for field := range err.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	out := make([]ValidationError, 0, len(fields))
	for _, field := range fields {
		out = append(out, ValidationError{
			Field:   field,
			Code:    code,
			Message: "failed on " + err.Fields[field],
		})
	}
	return out
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "empty_cart":
		return "cart is empty"
	case "product_unavailable":
		return "product is not available"
	case "product_not_found":
		return "product does not exist"
	case "plan_not_configured":
		return "plan has no billing price yet"
	default:
		return "invalid value"
	}
}
