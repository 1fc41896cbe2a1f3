package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "hearth/internal/errors"
	"hearth/internal/models"
	"hearth/internal/pagination"
	"hearth/internal/services"
)

// ScheduleHandler handles payment schedule requests
type ScheduleHandler struct {
	scheduleService services.ScheduleServicer
	auditService    services.AuditServicer
}

// NewScheduleHandler creates a new ScheduleHandler
func NewScheduleHandler(scheduleService services.ScheduleServicer, auditService services.AuditServicer) *ScheduleHandler {
	return &ScheduleHandler{scheduleService: scheduleService, auditService: auditService}
}

// CreateScheduleRequest represents the schedule creation payload.
type CreateScheduleRequest struct {
	Name             string                  `json:"name" binding:"required,max=100"`
	Amount           int64                   `json:"amount" binding:"required,min=1"`
	CategoryID       string                  `json:"category_id" binding:"required,uuid"`
	DueDate          string                  `json:"due_date" binding:"required"`
	Frequency        models.PaymentFrequency `json:"frequency" binding:"required,payment_frequency"`
	IsRecurring      bool                    `json:"is_recurring"`
	RecurringEndDate *string                 `json:"recurring_end_date"`
	TxType           models.TransactionType  `json:"tx_type" binding:"omitempty,transaction_type"`
	ReminderDays     int                     `json:"reminder_days" binding:"min=0,max=60"`
}

// UpdateScheduleRequest represents optional schedule updates.
type UpdateScheduleRequest struct {
	Name             *string                  `json:"name" binding:"omitempty,max=100"`
	Amount           *int64                   `json:"amount" binding:"omitempty,min=1"`
	DueDate          *string                  `json:"due_date"`
	Frequency        *models.PaymentFrequency `json:"frequency" binding:"omitempty,payment_frequency"`
	RecurringEndDate *string                  `json:"recurring_end_date"`
	ReminderDays     *int                     `json:"reminder_days" binding:"omitempty,min=0,max=60"`
}

// MarkPaidRequest represents a pay action payload.
type MarkPaidRequest struct {
	PaidDate *string `json:"paid_date"`
}

// SetScheduleStatusRequest transitions a schedule's status.
type SetScheduleStatusRequest struct {
	Status models.PaymentStatus `json:"status" binding:"required,payment_status"`
}

// CreateSchedule creates a payment schedule
// @Summary     Create a payment schedule
// @Description Create a one-off or recurring payment schedule, bridged into the ledger covering its due date
// @Tags        schedules
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateScheduleRequest true "Schedule data"
// @Success     201 {object} models.PaymentSchedule
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /schedules [post]
func (h *ScheduleHandler) CreateSchedule(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	dueDate, err := time.Parse("2006-01-02", req.DueDate)
	if err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid due_date, expected YYYY-MM-DD"))
		return
	}

	var recurringEnd *time.Time
	if req.RecurringEndDate != nil && *req.RecurringEndDate != "" {
		t, err := time.Parse("2006-01-02", *req.RecurringEndDate)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid recurring_end_date, expected YYYY-MM-DD"))
			return
		}
		recurringEnd = &t
	}

	schedule, err := h.scheduleService.CreateSchedule(userID, services.ScheduleInput{
		Name:             req.Name,
		Amount:           req.Amount,
		CategoryID:       req.CategoryID,
		DueDate:          dueDate,
		Frequency:        req.Frequency,
		IsRecurring:      req.IsRecurring,
		RecurringEndDate: recurringEnd,
		TxType:           req.TxType,
		ReminderDays:     req.ReminderDays,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "create", "payment_schedule", schedule.ID, c.ClientIP(), nil)
	c.JSON(http.StatusCreated, gin.H{"schedule": schedule})
}

// GetSchedules lists the user's payment schedules
// @Summary     List payment schedules
// @Tags        schedules
// @Produce     json
// @Security    BearerAuth
// @Param       page query int false "Page number"
// @Param       page_size query int false "Page size"
// @Param       status query string false "Filter by status"
// @Success     200 {object} pagination.PageResponse[models.PaymentSchedule]
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /schedules [get]
func (h *ScheduleHandler) GetSchedules(c *gin.Context) {
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

	var status *models.PaymentStatus
	if raw := c.Query("status"); raw != "" {
		s := models.PaymentStatus(raw)
		status = &s
	}

	result, err := h.scheduleService.GetUserSchedules(userID, page, status)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetSchedule returns one schedule
// @Summary     Get a payment schedule
// @Tags        schedules
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Schedule ID"
// @Success     200 {object} models.PaymentSchedule
// @Failure     403 {object} ErrorResponse "Forbidden"
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /schedules/{id} [get]
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	scheduleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	schedule, err := h.scheduleService.GetScheduleByID(userID, scheduleID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"schedule": schedule})
}

// UpdateSchedule updates a schedule
// @Summary     Update a payment schedule
// @Description Update schedule fields; an unpaid linked ledger entry is kept in step
// @Tags        schedules
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Schedule ID"
// @Param       request body UpdateScheduleRequest true "Fields to update"
// @Success     200 {object} models.PaymentSchedule
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /schedules/{id} [put]
func (h *ScheduleHandler) UpdateSchedule(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	scheduleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	in := services.UpdateScheduleInput{
		Name:         req.Name,
		Amount:       req.Amount,
		Frequency:    req.Frequency,
		ReminderDays: req.ReminderDays,
	}
	if req.DueDate != nil {
		t, err := time.Parse("2006-01-02", *req.DueDate)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid due_date, expected YYYY-MM-DD"))
			return
		}
		in.DueDate = &t
	}
	if req.RecurringEndDate != nil && *req.RecurringEndDate != "" {
		t, err := time.Parse("2006-01-02", *req.RecurringEndDate)
		if err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "Invalid recurring_end_date, expected YYYY-MM-DD"))
			return
		}
		in.RecurringEndDate = &t
	}

	schedule, err := h.scheduleService.UpdateSchedule(userID, scheduleID, in)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "update", "payment_schedule", scheduleID, c.ClientIP(), nil)
	c.JSON(http.StatusOK, gin.H{"schedule": schedule})
}

// DeleteSchedule deletes a schedule
// @Summary     Delete a payment schedule
// @Description Delete a schedule; an unpaid linked ledger entry is removed with it
// @Tags        schedules
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Schedule ID"
// @Success     204 "Deleted"
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /schedules/{id} [delete]
func (h *ScheduleHandler) DeleteSchedule(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	scheduleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	if err := h.scheduleService.DeleteSchedule(userID, scheduleID); err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "delete", "payment_schedule", scheduleID, c.ClientIP(), nil)
	c.Status(http.StatusNoContent)
}

// MarkPaid marks a schedule paid
// @Summary     Mark a schedule paid
// @Description Mark a schedule paid; linked entries converge, a transaction is recorded and recurring schedules advance
// @Tags        schedules
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Schedule ID"
// @Param       request body MarkPaidRequest false "Optional paid date"
// @Success     200 {object} models.PaymentSchedule
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /schedules/{id}/pay [post]
func (h *ScheduleHandler) MarkPaid(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	scheduleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req MarkPaidRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
			return
		}
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

	schedule, err := h.scheduleService.MarkPaid(userID, scheduleID, paidDate)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "mark_paid", "payment_schedule", scheduleID, c.ClientIP(), nil)
	c.JSON(http.StatusOK, gin.H{"schedule": schedule})
}

// SetStatus transitions a schedule's status
// @Summary     Update a schedule's status
// @Tags        schedules
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Schedule ID"
// @Param       request body SetScheduleStatusRequest true "New status"
// @Success     200 {object} models.PaymentSchedule
// @Failure     400 {object} ErrorResponse "Invalid status"
// @Failure     404 {object} ErrorResponse "Not found"
// @Router      /schedules/{id}/status [patch]
func (h *ScheduleHandler) SetStatus(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	scheduleID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SetScheduleStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	schedule, err := h.scheduleService.SetStatus(userID, scheduleID, req.Status)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "update_status", "payment_schedule", scheduleID, c.ClientIP(),
		map[string]interface{}{"status": req.Status})
	c.JSON(http.StatusOK, gin.H{"schedule": schedule})
}
