package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "hearth/internal/errors"
	"hearth/internal/services"
)

// ReportHandler handles reporting requests
type ReportHandler struct {
	reportService services.Reporter
}

// NewReportHandler creates a new ReportHandler
func NewReportHandler(reportService services.Reporter) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

// dateRange parses from/to query parameters, defaulting to the last 30
// days. The upper bound is exclusive.
func dateRange(c *gin.Context) (time.Time, time.Time, error) {
	now := time.Now().UTC().Truncate(24 * time.Hour)
	from, err := parseDateQuery(c, "from", now.AddDate(0, 0, -30))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDateQuery(c, "to", now.AddDate(0, 0, 1))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, apperrors.WithMessage(apperrors.ErrInvalidInput, "to must be after from")
	}
	return from, to, nil
}

// GetTransactions returns the merged transaction stream
// @Summary     List merged transactions
// @Description List plain transactions merged with paid schedules and paid ledger entries, each payment counted once
// @Tags        reports
// @Produce     json
// @Security    BearerAuth
// @Param       from query string false "Range start (YYYY-MM-DD)"
// @Param       to query string false "Range end, exclusive (YYYY-MM-DD)"
// @Success     200 {array} services.AggregatedTransaction
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /reports/transactions [get]
func (h *ReportHandler) GetTransactions(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	from, to, err := dateRange(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	rows, err := h.reportService.GetPeriodTransactions(userID, from, to)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": rows})
}

// Aggregate reduces the merged stream into grouped buckets
// @Summary     Aggregate transactions
// @Description Group the merged transaction stream by type, category or weekday
// @Tags        reports
// @Produce     json
// @Security    BearerAuth
// @Param       from query string false "Range start (YYYY-MM-DD)"
// @Param       to query string false "Range end, exclusive (YYYY-MM-DD)"
// @Param       group_by query string false "Grouping key: type, category or weekday" default(type)
// @Success     200 {object} map[string]services.AggregateBucket
// @Failure     400 {object} ErrorResponse "Invalid grouping key"
// @Router      /reports/aggregate [get]
func (h *ReportHandler) Aggregate(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	from, to, err := dateRange(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var key services.KeyFunc
	switch c.DefaultQuery("group_by", "type") {
	case "type":
		key = services.KeyByType
	case "category":
		key = services.KeyByCategory
	case "weekday":
		key = services.KeyByWeekday
	default:
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "group_by must be one of type, category, weekday"))
		return
	}

	buckets, err := h.reportService.AggregateBy(userID, from, to, key)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}

// GetPerformance returns budget-vs-spend rows
// @Summary     Get budget performance
// @Description Flattened budget-vs-spend rows across period allocations and limited ledger categories
// @Tags        reports
// @Produce     json
// @Security    BearerAuth
// @Param       from query string false "Range start (YYYY-MM-DD)"
// @Param       to query string false "Range end, exclusive (YYYY-MM-DD)"
// @Success     200 {array} services.BudgetPerformance
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /reports/performance [get]
func (h *ReportHandler) GetPerformance(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	from, to, err := dateRange(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	rows, err := h.reportService.GetBudgetPerformance(userID, from, to)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"performance": rows})
}

// GetSummary returns the financial summary for a range
// @Summary     Get financial summary
// @Description Income, expense and net totals with a per-category expense breakdown
// @Tags        reports
// @Produce     json
// @Security    BearerAuth
// @Param       from query string false "Range start (YYYY-MM-DD)"
// @Param       to query string false "Range end, exclusive (YYYY-MM-DD)"
// @Success     200 {object} services.FinancialSummary
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /reports/summary [get]
func (h *ReportHandler) GetSummary(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	from, to, err := dateRange(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	summary, err := h.reportService.GetFinancialSummary(userID, from, to)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": summary})
}
