package services

import (
	"time"

	"gorm.io/gorm"

	apperrors "hearth/internal/errors"
	"hearth/internal/models"
)

// reportService merges plain transactions with payment-derived records
// into a single reporting stream.
type reportService struct {
	db *gorm.DB
}

// NewReportService creates a new Reporter.
func NewReportService(db *gorm.DB) Reporter {
	return &reportService{db: db}
}

// Predefined grouping keys for AggregateBy.
var (
	KeyByType = func(t AggregatedTransaction) string { return string(t.Type) }

	KeyByCategory = func(t AggregatedTransaction) string {
		if t.CategoryID == "" {
			return "uncategorized"
		}
		return t.CategoryID
	}

	KeyByWeekday = func(t AggregatedTransaction) string { return t.Date.Weekday().String() }
)

// GetPeriodTransactions returns every money movement in [from, to) as a
// flat list: plain transactions, paid schedules, and paid ledger entries.
// Each payment counts exactly once. A Transaction carrying a schedule
// reference supersedes its schedule; a ledger entry linked to a schedule
// or transaction is represented by that record instead.
func (s *reportService) GetPeriodTransactions(userID string, from, to time.Time) ([]AggregatedTransaction, error) {
	var txns []models.Transaction
	err := s.db.Where("user_id = ? AND date >= ? AND date < ?", userID, from, to).Find(&txns).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	out := make([]AggregatedTransaction, 0, len(txns))
	coveredSchedules := make(map[string]bool)
	for i := range txns {
		t := &txns[i]
		if t.ScheduleID != nil {
			coveredSchedules[*t.ScheduleID] = true
		}
		row := AggregatedTransaction{
			ID:          t.ID,
			Source:      "transaction",
			Type:        t.Type,
			Amount:      t.Amount,
			Date:        t.Date,
			Description: t.Description,
		}
		if t.CategoryID != nil {
			row.CategoryID = *t.CategoryID
		}
		out = append(out, row)
	}

	var schedules []models.PaymentSchedule
	err = s.db.Where("user_id = ? AND status = ?", userID, models.PaymentStatusPaid).Find(&schedules).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for i := range schedules {
		sc := &schedules[i]
		if coveredSchedules[sc.ID] {
			continue
		}
		date := sc.DueDate
		if sc.PaidDate != nil {
			date = *sc.PaidDate
		}
		if date.Before(from) || !date.Before(to) {
			continue
		}
		out = append(out, AggregatedTransaction{
			ID:          sc.ID,
			Source:      "schedule",
			Type:        sc.TxType,
			Amount:      sc.Amount,
			CategoryID:  sc.CategoryID,
			Date:        date,
			Description: sc.Name,
		})
	}

	// Ledger entries linked to a schedule or transaction are already
	// represented above; only standalone paid entries remain.
	var entries []models.PaymentEntry
	err = s.db.Where("user_id = ? AND status = ? AND schedule_id IS NULL AND transaction_id IS NULL",
		userID, models.PaymentStatusPaid).Find(&entries).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if len(entries) > 0 {
		categoryOf, err := s.entryCategories(entries)
		if err != nil {
			return nil, err
		}
		for i := range entries {
			e := &entries[i]
			date := e.ScheduledDate
			if e.PaidDate != nil {
				date = *e.PaidDate
			}
			if date.Before(from) || !date.Before(to) {
				continue
			}
			out = append(out, AggregatedTransaction{
				ID:          e.ID,
				Source:      "ledger_entry",
				Type:        models.TransactionTypeExpense,
				Amount:      e.Amount,
				CategoryID:  categoryOf[e.LedgerCategoryID],
				Date:        date,
				Description: e.Name,
			})
		}
	}

	return out, nil
}

// entryCategories resolves ledger category rows to their category IDs.
func (s *reportService) entryCategories(entries []models.PaymentEntry) (map[string]string, error) {
	ids := make([]string, 0, len(entries))
	for i := range entries {
		ids = append(ids, entries[i].LedgerCategoryID)
	}

	var rows []models.LedgerCategory
	if err := s.db.Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	categoryOf := make(map[string]string, len(rows))
	for i := range rows {
		categoryOf[rows[i].ID] = rows[i].CategoryID
	}
	return categoryOf, nil
}

// AggregateBy reduces the merged transaction stream into buckets keyed by
// the supplied function.
func (s *reportService) AggregateBy(userID string, from, to time.Time, key KeyFunc) (map[string]AggregateBucket, error) {
	rows, err := s.GetPeriodTransactions(userID, from, to)
	if err != nil {
		return nil, err
	}

	buckets := make(map[string]AggregateBucket)
	for _, row := range rows {
		b := buckets[key(row)]
		b.Total += row.Amount
		b.Count++
		buckets[key(row)] = b
	}
	for k, b := range buckets {
		b.Average = float64(b.Total) / float64(b.Count)
		buckets[k] = b
	}
	return buckets, nil
}

func performanceStatus(spent, budgeted int64) string {
	switch {
	case spent > budgeted:
		return "exceeded"
	case budgeted > 0 && float64(spent)/float64(budgeted)*100 > 80:
		return "warning"
	default:
		return "good"
	}
}

// GetBudgetPerformance flattens budget-vs-spend rows across both scopes:
// per-category allocations of period plans overlapping the range, and
// limited category buckets of weekly ledgers overlapping the range.
func (s *reportService) GetBudgetPerformance(userID string, from, to time.Time) ([]BudgetPerformance, error) {
	var out []BudgetPerformance

	var periods []models.PeriodBudget
	err := s.db.Preload("Allocations").
		Where("user_id = ? AND start_date < ? AND end_date > ?", userID, to, from).
		Find(&periods).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for i := range periods {
		p := &periods[i]
		for j := range p.Allocations {
			alloc := &p.Allocations[j]
			if alloc.Amount <= 0 {
				continue
			}
			spent, err := s.periodCategorySpend(p.ID, alloc.CategoryID)
			if err != nil {
				return nil, err
			}
			out = append(out, BudgetPerformance{
				Scope:      "period",
				RefID:      p.ID,
				CategoryID: alloc.CategoryID,
				Budgeted:   alloc.Amount,
				Spent:      spent,
				Remaining:  alloc.Amount - spent,
				Percentage: float64(spent) / float64(alloc.Amount) * 100,
				Status:     performanceStatus(spent, alloc.Amount),
			})
		}
	}

	var ledgers []models.WeeklyLedger
	err = s.db.Preload("Categories.Entries").
		Where("user_id = ? AND week_start < ? AND week_end > ?", userID, to, from).
		Find(&ledgers).Error
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for i := range ledgers {
		l := &ledgers[i]
		for j := range l.Categories {
			lc := &l.Categories[j]
			if lc.Mode != models.AllocationModeLimited || lc.Allocation <= 0 {
				continue
			}
			var spent int64
			for k := range lc.Entries {
				if lc.Entries[k].Status == models.PaymentStatusPaid {
					spent += lc.Entries[k].Amount
				}
			}
			out = append(out, BudgetPerformance{
				Scope:      "ledger",
				RefID:      l.ID,
				CategoryID: lc.CategoryID,
				Budgeted:   lc.Allocation,
				Spent:      spent,
				Remaining:  lc.Allocation - spent,
				Percentage: float64(spent) / float64(lc.Allocation) * 100,
				Status:     performanceStatus(spent, lc.Allocation),
			})
		}
	}

	return out, nil
}

// periodCategorySpend sums paid entries in the period's ledgers for one
// category.
func (s *reportService) periodCategorySpend(periodID, categoryID string) (int64, error) {
	var spent int64
	err := s.db.Model(&models.PaymentEntry{}).
		Joins("JOIN ledger_categories ON ledger_categories.id = payment_entries.ledger_category_id").
		Joins("JOIN weekly_ledgers ON weekly_ledgers.id = payment_entries.ledger_id").
		Where("weekly_ledgers.period_budget_id = ? AND ledger_categories.category_id = ? AND payment_entries.status = ?",
			periodID, categoryID, models.PaymentStatusPaid).
		Select("COALESCE(SUM(payment_entries.amount), 0)").Scan(&spent).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return spent, nil
}

// GetFinancialSummary rolls the merged stream up into income, expense and
// net totals plus a per-category expense breakdown.
func (s *reportService) GetFinancialSummary(userID string, from, to time.Time) (*FinancialSummary, error) {
	rows, err := s.GetPeriodTransactions(userID, from, to)
	if err != nil {
		return nil, err
	}

	summary := &FinancialSummary{ByCategory: make(map[string]int64)}
	for _, row := range rows {
		summary.Count++
		switch row.Type {
		case models.TransactionTypeIncome:
			summary.Income += row.Amount
		default:
			summary.Expense += row.Amount
			summary.ByCategory[KeyByCategory(row)] += row.Amount
		}
	}
	summary.Net = summary.Income - summary.Expense
	return summary, nil
}
