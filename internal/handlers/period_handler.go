package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "hearth/internal/errors"
	"hearth/internal/models"
	"hearth/internal/pagination"
	"hearth/internal/services"
)

// PeriodHandler handles budget period requests
type PeriodHandler struct {
	periodService services.PeriodServicer
	ledgerService services.LedgerServicer
	auditService  services.AuditServicer
}

// NewPeriodHandler creates a new PeriodHandler
func NewPeriodHandler(periodService services.PeriodServicer, ledgerService services.LedgerServicer, auditService services.AuditServicer) *PeriodHandler {
	return &PeriodHandler{periodService: periodService, ledgerService: ledgerService, auditService: auditService}
}

// AllocationRequest is one per-category allocation in a period request.
type AllocationRequest struct {
	CategoryID string  `json:"category_id" binding:"required,uuid"`
	Amount     int64   `json:"amount" binding:"omitempty,min=0"`
	Percent    float64 `json:"percent" binding:"omitempty,min=0,max=100"`
}

// CreatePeriodRequest represents the period creation payload. Dates are
// YYYY-MM-DD; amounts are integer cents.
type CreatePeriodRequest struct {
	Name         string              `json:"name" binding:"required,max=100"`
	PeriodType   models.PeriodType   `json:"period_type" binding:"required,period_type"`
	Anchor       *string             `json:"anchor"`
	StartDate    *string             `json:"start_date"`
	EndDate      *string             `json:"end_date"`
	TotalAmount  int64               `json:"total_amount" binding:"required,min=1"`
	WeeklyAmount *int64              `json:"weekly_amount" binding:"omitempty,min=1"`
	Allocations  []AllocationRequest `json:"allocations" binding:"omitempty,dive"`
}

// UpdatePeriodStatusRequest represents a period status change.
type UpdatePeriodStatusRequest struct {
	Status models.PeriodStatus `json:"status" binding:"required,period_status"`
}

// UpdateSliceAmountRequest represents a per-week amount override.
type UpdateSliceAmountRequest struct {
	Amount int64 `json:"amount" binding:"required,min=0"`
}

func parseDateField(value *string, name string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *value)
	if err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid "+name+", expected YYYY-MM-DD")
	}
	return &t, nil
}

// CreatePeriod creates a budget period with weekly slices
// @Summary     Create a budget period
// @Description Create a budget plan decomposed into Monday-aligned weekly slices
// @Tags        periods
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreatePeriodRequest true "Period data"
// @Success     201 {object} models.PeriodBudget
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /periods [post]
func (h *PeriodHandler) CreatePeriod(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	anchor, err := parseDateField(req.Anchor, "anchor")
	if err != nil {
		respondWithError(c, err)
		return
	}
	startDate, err := parseDateField(req.StartDate, "start_date")
	if err != nil {
		respondWithError(c, err)
		return
	}
	endDate, err := parseDateField(req.EndDate, "end_date")
	if err != nil {
		respondWithError(c, err)
		return
	}

	in := services.CreatePeriodInput{
		Name:         req.Name,
		PeriodType:   req.PeriodType,
		Anchor:       anchor,
		StartDate:    startDate,
		EndDate:      endDate,
		TotalAmount:  req.TotalAmount,
		WeeklyAmount: req.WeeklyAmount,
	}
	for _, a := range req.Allocations {
		in.Allocations = append(in.Allocations, services.AllocationInput{
			CategoryID: a.CategoryID,
			Amount:     a.Amount,
			Percent:    a.Percent,
		})
	}

	period, err := h.periodService.CreatePeriod(userID, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "create", "period_budget", period.ID, c.ClientIP(), nil)
	c.JSON(http.StatusCreated, gin.H{"period": period})
}

// GetPeriods lists the user's budget periods
// @Summary     List budget periods
// @Tags        periods
// @Produce     json
// @Security    BearerAuth
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Param       status query string false "Filter by status"
// @Success     200 {object} pagination.PageResponse[models.PeriodBudget]
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /periods [get]
func (h *PeriodHandler) GetPeriods(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	var status *models.PeriodStatus
	if raw := c.Query("status"); raw != "" {
		s := models.PeriodStatus(raw)
		status = &s
	}

	result, err := h.periodService.GetUserPeriods(userID, page, status)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetPeriod returns one period with allocations and slices
// @Summary     Get a budget period
// @Tags        periods
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Period ID"
// @Success     200 {object} models.PeriodBudget
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /periods/{id} [get]
func (h *PeriodHandler) GetPeriod(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	periodID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	period, err := h.periodService.GetPeriodByID(userID, periodID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"period": period})
}

// UpdatePeriodStatus transitions a period's lifecycle status
// @Summary     Update period status
// @Tags        periods
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Period ID"
// @Param       request body UpdatePeriodStatusRequest true "New status"
// @Success     200 {object} models.PeriodBudget
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /periods/{id}/status [patch]
func (h *PeriodHandler) UpdatePeriodStatus(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	periodID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdatePeriodStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	period, err := h.periodService.UpdatePeriodStatus(userID, periodID, req.Status)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "update_status", "period_budget", periodID, c.ClientIP(),
		map[string]interface{}{"status": req.Status})
	c.JSON(http.StatusOK, gin.H{"period": period})
}

// DeletePeriod deletes a period and its slices
// @Summary     Delete a budget period
// @Description Delete a period; materialized ledgers survive detached
// @Tags        periods
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Period ID"
// @Success     204 "Deleted"
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /periods/{id} [delete]
func (h *PeriodHandler) DeletePeriod(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	periodID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.periodService.DeletePeriod(userID, periodID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "delete", "period_budget", periodID, c.ClientIP(), nil)
	c.Status(http.StatusNoContent)
}

// UpdateSliceAmount overrides one week's allocated amount
// @Summary     Update a weekly slice amount
// @Tags        periods
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Period ID"
// @Param       week path int true "Week number (1-based)"
// @Param       request body UpdateSliceAmountRequest true "New amount in cents"
// @Success     200 {object} models.WeeklySlice
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /periods/{id}/weeks/{week} [patch]
func (h *PeriodHandler) UpdateSliceAmount(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	periodID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	week, err := strconv.Atoi(c.Param("week"))
	if err != nil || week < 1 {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid week number"))
		return
	}

	var req UpdateSliceAmountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	slice, err := h.periodService.UpdateSliceAmount(userID, periodID, week, req.Amount)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"slice": slice})
}

// RecalculateTotal resets the period total from its slice amounts
// @Summary     Recalculate period total
// @Description Set the period total to the sum of its weekly slice amounts
// @Tags        periods
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Period ID"
// @Success     200 {object} models.PeriodBudget
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /periods/{id}/recalculate [post]
func (h *PeriodHandler) RecalculateTotal(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	periodID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	period, err := h.periodService.RecalculateTotal(userID, periodID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"period": period})
}

// CleanupFutureSlices removes ledgers for future weeks
// @Summary     Clean up future slices
// @Description Delete materialized ledgers for slices that have not started yet and reset those slices to pending
// @Tags        periods
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Period ID"
// @Success     200 {object} map[string]int
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /periods/{id}/cleanup-future [post]
func (h *PeriodHandler) CleanupFutureSlices(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	periodID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	cleaned, err := h.periodService.CleanupFutureSlices(userID, periodID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "cleanup_future", "period_budget", periodID, c.ClientIP(), nil)
	c.JSON(http.StatusOK, gin.H{"cleaned": cleaned})
}

// MaterializeLedger materializes one weekly slice into a ledger
// @Summary     Materialize a weekly ledger
// @Description Create (or return the existing) ledger for one weekly slice of a period
// @Tags        periods
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Period ID"
// @Param       week path int true "Week number (1-based)"
// @Success     200 {object} models.WeeklyLedger
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /periods/{id}/weeks/{week}/ledger [post]
func (h *PeriodHandler) MaterializeLedger(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	periodID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	week, err := strconv.Atoi(c.Param("week"))
	if err != nil || week < 1 {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid week number"))
		return
	}

	ledger, err := h.ledgerService.MaterializeFromPeriod(userID, periodID, week)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ledger": ledger})
}
