package handlers

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/vestra/chain_service/internal/domain/entities"
	domainerrors "github.com/vestra/chain_service/internal/domain/errors"
	"github.com/vestra/chain_service/internal/domain/services/withdrawal"
	"github.com/vestra/chain_service/pkg/logger"
)

// WithdrawalHandlers handles the withdrawal request lifecycle endpoints
type WithdrawalHandlers struct {
	service *withdrawal.Service
	logger  *logger.Logger
}

// NewWithdrawalHandlers creates a new WithdrawalHandlers instance
func NewWithdrawalHandlers(service *withdrawal.Service, logger *logger.Logger) *WithdrawalHandlers {
	return &WithdrawalHandlers{service: service, logger: logger}
}

// CreateWithdrawalRequest is the POST /withdrawals body
type CreateWithdrawalRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Chain   string `json:"chain" binding:"required"`
	Token   string `json:"token" binding:"required"`
	Address string `json:"address" binding:"required"`
	Amount  string `json:"amount" binding:"required"`
}

// Create handles POST /withdrawals
func (h *WithdrawalHandlers) Create(c *gin.Context) {
	var req CreateWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, ErrCodeInvalidRequest, err.Error())
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		respondBadRequest(c, ErrCodeInvalidID, "Invalid user_id")
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		respondBadRequest(c, ErrCodeInvalidAmount, "Invalid amount")
		return
	}

	request, err := h.service.Create(c.Request.Context(), withdrawal.CreateParams{
		UserID:  userID,
		Chain:   req.Chain,
		Token:   req.Token,
		Address: req.Address,
		Amount:  amount,
	})
	if err != nil {
		if errors.Is(err, domainerrors.ErrInvalidInput) {
			respondBadRequest(c, domainerrors.GetErrorCode(err), err.Error())
			return
		}
		if strings.Contains(err.Error(), "insufficient balance") {
			respondConflict(c, "INSUFFICIENT_BALANCE", "Balance too low for this withdrawal")
			return
		}
		h.logger.Error("Failed to create withdrawal request", "error", err)
		respondInternalError(c, ErrCodeInternalError, "Failed to create withdrawal request")
		return
	}

	respondCreated(c, request)
}

// Get handles GET /withdrawals/:id
func (h *WithdrawalHandlers) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, ErrCodeInvalidID, "Invalid withdrawal id")
		return
	}

	request, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		respondNotFound(c, ErrCodeWithdrawalNotFound, "Withdrawal request not found")
		return
	}
	respondSuccess(c, request)
}

// List handles GET /withdrawals?status=pending
func (h *WithdrawalHandlers) List(c *gin.Context) {
	status := entities.WithdrawalStatus(c.DefaultQuery("status", string(entities.WithdrawalStatusPending)))
	limit, _ := parseLimitOffset(c, 50, 500)

	requests, err := h.service.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		if errors.Is(err, domainerrors.ErrInvalidInput) {
			respondBadRequest(c, ErrCodeInvalidStatus, err.Error())
			return
		}
		h.logger.Error("Failed to list withdrawal requests", "error", err)
		respondInternalError(c, ErrCodeInternalError, "Failed to list withdrawal requests")
		return
	}
	respondSuccess(c, gin.H{"withdrawals": requests, "count": len(requests)})
}

// Approve handles POST /withdrawals/:id/approve
func (h *WithdrawalHandlers) Approve(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, ErrCodeInvalidID, "Invalid withdrawal id")
		return
	}

	if err := h.service.Approve(c.Request.Context(), id); err != nil {
		respondConflict(c, ErrCodeConflict, err.Error())
		return
	}
	respondSuccess(c, gin.H{"status": string(entities.WithdrawalStatusApproved)})
}

// RejectWithdrawalRequest is the POST /withdrawals/:id/reject body
type RejectWithdrawalRequest struct {
	Note string `json:"note"`
}

// Reject handles POST /withdrawals/:id/reject
func (h *WithdrawalHandlers) Reject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, ErrCodeInvalidID, "Invalid withdrawal id")
		return
	}

	var req RejectWithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		respondBadRequest(c, ErrCodeInvalidRequest, err.Error())
		return
	}

	if err := h.service.Reject(c.Request.Context(), id, req.Note); err != nil {
		respondConflict(c, ErrCodeConflict, err.Error())
		return
	}
	respondSuccess(c, gin.H{"status": string(entities.WithdrawalStatusRejected)})
}
