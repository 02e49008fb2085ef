package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Error codes returned by this service's handlers
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidID          = "INVALID_ID"
	ErrCodeInvalidAmount      = "INVALID_AMOUNT"
	ErrCodeInvalidStatus      = "INVALID_STATUS"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeWithdrawalNotFound = "WITHDRAWAL_NOT_FOUND"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeWebhookFailed      = "WEBHOOK_PROCESSING_ERROR"
)

// ErrorResponse is the uniform error envelope
type ErrorResponse struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func respondError(c *gin.Context, status int, code, message string, details map[string]interface{}) {
	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

func respondBadRequest(c *gin.Context, code, message string, details ...map[string]interface{}) {
	var d map[string]interface{}
	if len(details) > 0 {
		d = details[0]
	}
	respondError(c, http.StatusBadRequest, code, message, d)
}

func respondNotFound(c *gin.Context, code, message string) {
	respondError(c, http.StatusNotFound, code, message, nil)
}

func respondConflict(c *gin.Context, code, message string) {
	respondError(c, http.StatusConflict, code, message, nil)
}

func respondInternalError(c *gin.Context, code, message string) {
	respondError(c, http.StatusInternalServerError, code, message, nil)
}

func respondSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

func respondCreated(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// parseLimitOffset reads pagination query params with sane bounds
func parseLimitOffset(c *gin.Context, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			limit = v
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}
