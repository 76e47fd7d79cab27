package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// ErrorResponse: единый формат ошибки API.
// Code: машинный код в snake_case, Fields заполняется для ошибок валидации.
type ErrorResponse struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Details string       `json:"details,omitempty"`
	Fields  []FieldError `json:"fields,omitempty"`
}

// FieldError описывает ошибку конкретного поля запроса.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const (
	codeValidation  = "validation_error"
	codeNotFound    = "not_found"
	codeConflict    = "conflict"
	codeForbidden   = "forbidden"
	codeUnauth      = "unauthorized"
	codeUnavailable = "service_unavailable"
	codeInternal    = "internal_error"
)

// requestError: ошибка разбора запроса. Сравнивается с domain.ErrValidation.
type requestError struct {
	message string
	fields  []FieldError
}

func (e *requestError) Error() string { return e.message }

func (e *requestError) Unwrap() error { return domain.ErrValidation }

func invalidRequest(message string, fields ...FieldError) error {
	return &requestError{message: message, fields: fields}
}

func invalidField(field, message string) error {
	return invalidRequest("invalid request", FieldError{Field: field, Message: message})
}

// classify переводит ошибку сервиса в HTTP статус и тело ответа.
func classify(err error) (int, ErrorResponse) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return http.StatusBadRequest, ErrorResponse{Code: codeValidation, Message: reqErr.message, Fields: reqErr.fields}
	}

	var stockErr *domain.InsufficientStockError
	switch {
	case errors.As(err, &stockErr):
		return http.StatusConflict, ErrorResponse{
			Code:    codeConflict,
			Message: domain.ErrInsufficientStock.Error(),
			Details: stockErr.Error(),
		}
	case domain.IsValidation(err), errors.Is(err, domain.ErrIdempotencyKeyRequired):
		return http.StatusBadRequest, ErrorResponse{Code: codeValidation, Message: err.Error()}
	case domain.IsNotFound(err):
		return http.StatusNotFound, ErrorResponse{Code: codeNotFound, Message: err.Error()}
	case domain.IsAccessDenied(err):
		return http.StatusForbidden, ErrorResponse{Code: codeForbidden, Message: err.Error()}
	case domain.IsConflict(err):
		return http.StatusConflict, ErrorResponse{Code: codeConflict, Message: err.Error()}
	case errors.Is(err, domain.ErrProjectionUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{Code: codeUnavailable, Message: "search is temporarily unavailable"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Code: codeInternal, Message: "internal server error"}
	}
}

func (h *handler) fail(c *gin.Context, err error) {
	status, body := classify(err)
	entry := h.logger.WithFields(log.Fields{
		"method": c.Request.Method,
		"route":  c.FullPath(),
		"status": status,
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("request failed")
	} else {
		entry.Debug("request rejected")
	}
	c.AbortWithStatusJSON(status, body)
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Code: codeUnauth, Message: message})
}
