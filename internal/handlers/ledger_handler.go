package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "hearth/internal/errors"
	"hearth/internal/models"
	"hearth/internal/services"
)

// LedgerHandler handles weekly ledger requests
type LedgerHandler struct {
	ledgerService services.LedgerServicer
	reconciler    services.Reconciler
	auditService  services.AuditServicer
}

// NewLedgerHandler creates a new LedgerHandler
func NewLedgerHandler(ledgerService services.LedgerServicer, reconciler services.Reconciler, auditService services.AuditServicer) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService, reconciler: reconciler, auditService: auditService}
}

// AddPaymentRequest represents a new ledger payment entry.
type AddPaymentRequest struct {
	Name          string `json:"name" binding:"required,max=100"`
	Amount        int64  `json:"amount" binding:"required,min=1"`
	ScheduledDate string `json:"scheduled_date" binding:"required"`
}

// SetAllocationRequest sets a category bucket's allocation ceiling.
type SetAllocationRequest struct {
	Allocation int64                 `json:"allocation" binding:"min=0"`
	Mode       models.AllocationMode `json:"mode" binding:"required,allocation_mode"`
}

// SetEntryStatusRequest transitions a payment entry's status.
type SetEntryStatusRequest struct {
	Status   models.PaymentStatus `json:"status" binding:"required,payment_status"`
	PaidDate *string              `json:"paid_date"`
}

// GetLedger returns one ledger with its category buckets and entries
// @Summary     Get a weekly ledger
// @Tags        ledgers
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Ledger ID"
// @Success     200 {object} models.WeeklyLedger
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /ledgers/{id} [get]
func (h *LedgerHandler) GetLedger(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	ledgerID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	ledger, err := h.ledgerService.GetLedgerByID(userID, ledgerID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ledger": ledger})
}

// GetSpending returns the per-category spending view of a ledger
// @Summary     Get ledger spending by category
// @Tags        ledgers
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Ledger ID"
// @Success     200 {array} services.CategorySpending
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /ledgers/{id}/spending [get]
func (h *LedgerHandler) GetSpending(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	ledgerID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	spending, err := h.ledgerService.GetSpendingByCategory(userID, ledgerID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"spending": spending})
}

// AddPayment adds a payment entry to a ledger category
// @Summary     Add a payment entry
// @Description Add a payment to a category bucket, enforcing its allocation ceiling
// @Tags        ledgers
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Ledger ID"
// @Param       categoryId path string true "Category ID"
// @Param       request body AddPaymentRequest true "Payment data"
// @Success     201 {object} models.PaymentEntry
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Not found"
// @Failure     409 {object} ErrorResponse "Allocation exceeded"
// @Router      /ledgers/{id}/categories/{categoryId}/payments [post]
func (h *LedgerHandler) AddPayment(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	ledgerID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	categoryID, err := parsePathID(c, "categoryId")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req AddPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	scheduledDate, err := time.Parse("2006-01-02", req.ScheduledDate)
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid scheduled_date, expected YYYY-MM-DD"))
		return
	}

	entry, err := h.ledgerService.AddPayment(userID, ledgerID, categoryID, services.PaymentInput{
		Name:          req.Name,
		Amount:        req.Amount,
		ScheduledDate: scheduledDate,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "add_payment", "weekly_ledger", ledgerID, c.ClientIP(),
		map[string]interface{}{"entry_id": entry.ID, "amount": entry.Amount})
	c.JSON(http.StatusCreated, gin.H{"entry": entry})
}

// SetAllocation sets a category bucket's allocation
// @Summary     Set a category allocation
// @Description Set the allocation ceiling and mode of a ledger category bucket
// @Tags        ledgers
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Ledger ID"
// @Param       categoryId path string true "Category ID"
// @Param       request body SetAllocationRequest true "Allocation data"
// @Success     200 {object} models.LedgerCategory
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /ledgers/{id}/categories/{categoryId} [put]
func (h *LedgerHandler) SetAllocation(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	ledgerID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	categoryID, err := parsePathID(c, "categoryId")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SetAllocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	bucket, err := h.ledgerService.SetCategoryAllocation(userID, ledgerID, categoryID, req.Allocation, req.Mode)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"category": bucket})
}

// SetEntryStatus transitions a payment entry through reconciliation
// @Summary     Update a payment entry's status
// @Description Transition an entry's status; linked schedules converge and paid entries materialize transactions
// @Tags        ledgers
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Ledger ID"
// @Param       entryId path string true "Entry ID"
// @Param       request body SetEntryStatusRequest true "New status"
// @Success     200 {object} models.PaymentEntry
// @Failure     400 {object} ErrorResponse "Invalid status"
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /ledgers/{id}/entries/{entryId}/status [patch]
func (h *LedgerHandler) SetEntryStatus(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	ledgerID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}
	entryID, err := parsePathID(c, "entryId")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SetEntryStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var paidDate *time.Time
	if req.PaidDate != nil && *req.PaidDate != "" {
		t, err := time.Parse("2006-01-02", *req.PaidDate)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid paid_date, expected YYYY-MM-DD"))
			return
		}
		paidDate = &t
	}

	entry, err := h.reconciler.SetEntryStatus(userID, ledgerID, entryID, req.Status, paidDate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "update_status", "payment_entry", entryID, c.ClientIP(),
		map[string]interface{}{"status": req.Status})
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}
