package services

import (
	"time"

	"hearth/internal/models"
	"hearth/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName, currency string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id string) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
	StoreRefreshTokenHash(userID, tokenHash string) error
	GetRefreshTokenHash(userID string) (string, error)
}

// CategoryServicer defines the contract for category-related business logic.
type CategoryServicer interface {
	CreateCategory(userID, name string, categoryType models.CategoryType, description, icon, color string) (*models.Category, error)
	GetUserCategories(userID string, page pagination.PageRequest) (*pagination.PageResponse[models.Category], error)
	GetCategoryByID(userID, categoryID string) (*models.Category, error)
	UpdateCategory(userID, categoryID, name, description, icon, color string) (*models.Category, error)
	DeleteCategory(userID, categoryID string) error
}

// AllocationInput is a per-category allocation supplied at plan creation.
// Amount is cents for the whole period; Percent is a share of each slice's
// amount. Exactly one of the two should be non-zero.
type AllocationInput struct {
	CategoryID string
	Amount     int64
	Percent    float64
}

// CreatePeriodInput carries the parameters for a new budget plan.
// For calendar period types the plan covers the calendar month/quarter/
// year containing Anchor (the current day when Anchor is nil). Custom
// plans supply StartDate and EndDate directly; EndDate is exclusive.
type CreatePeriodInput struct {
	Name         string
	PeriodType   models.PeriodType
	Anchor       *time.Time
	StartDate    *time.Time
	EndDate      *time.Time
	TotalAmount  int64
	WeeklyAmount *int64
	Allocations  []AllocationInput
}

// PeriodServicer decomposes funding periods into Monday-aligned weekly
// slices and manages plan lifecycle.
type PeriodServicer interface {
	CreatePeriod(userID string, in CreatePeriodInput) (*models.PeriodBudget, error)
	GetUserPeriods(userID string, page pagination.PageRequest, status *models.PeriodStatus) (*pagination.PageResponse[models.PeriodBudget], error)
	GetPeriodByID(userID, periodID string) (*models.PeriodBudget, error)
	UpdatePeriodStatus(userID, periodID string, status models.PeriodStatus) (*models.PeriodBudget, error)
	DeletePeriod(userID, periodID string) error
	UpdateSliceAmount(userID, periodID string, weekNumber int, amount int64) (*models.WeeklySlice, error)
	RecalculateTotal(userID, periodID string) (*models.PeriodBudget, error)
	CleanupFutureSlices(userID, periodID string) (int, error)
}

// PaymentInput carries a new ledger payment entry.
type PaymentInput struct {
	Name          string
	Amount        int64
	ScheduledDate time.Time
	Status        models.PaymentStatus
	ScheduleID    *string
}

// CategorySpending is the per-category view of a weekly ledger.
type CategorySpending struct {
	CategoryID  string                `json:"category_id"`
	Mode        models.AllocationMode `json:"mode"`
	Allocated   int64                 `json:"allocated"`
	Spent       int64                 `json:"spent"`
	Scheduled   int64                 `json:"scheduled"`
	Remaining   int64                 `json:"remaining"`
	PercentUsed float64               `json:"percent_used"`
}

// LedgerServicer manages materialized weekly ledgers and their
// allocation-constrained payment entries.
type LedgerServicer interface {
	MaterializeFromPeriod(userID, periodID string, weekNumber int) (*models.WeeklyLedger, error)
	EnsureLedgerFor(userID string, date time.Time) (*models.WeeklyLedger, error)
	GetLedgerByID(userID, ledgerID string) (*models.WeeklyLedger, error)
	AddPayment(userID, ledgerID, categoryID string, in PaymentInput) (*models.PaymentEntry, error)
	SetCategoryAllocation(userID, ledgerID, categoryID string, allocation int64, mode models.AllocationMode) (*models.LedgerCategory, error)
	GetSpendingByCategory(userID, ledgerID string) ([]CategorySpending, error)
	UpdateRemaining(ledgerID string) error
	CheckBudgetAlerts() (int, error)
}

// ScheduleInput carries the parameters for a new payment schedule.
type ScheduleInput struct {
	Name             string
	Amount           int64
	CategoryID       string
	DueDate          time.Time
	Frequency        models.PaymentFrequency
	IsRecurring      bool
	RecurringEndDate *time.Time
	TxType           models.TransactionType
	ReminderDays     int
}

// UpdateScheduleInput carries optional schedule updates; nil fields are
// left unchanged.
type UpdateScheduleInput struct {
	Name             *string
	Amount           *int64
	DueDate          *time.Time
	Frequency        *models.PaymentFrequency
	RecurringEndDate *time.Time
	ReminderDays     *int
}

// ScheduleServicer manages standalone recurring/one-off payment records
// and their bridge into weekly ledgers.
type ScheduleServicer interface {
	CreateSchedule(userID string, in ScheduleInput) (*models.PaymentSchedule, error)
	GetUserSchedules(userID string, page pagination.PageRequest, status *models.PaymentStatus) (*pagination.PageResponse[models.PaymentSchedule], error)
	GetScheduleByID(userID, scheduleID string) (*models.PaymentSchedule, error)
	UpdateSchedule(userID, scheduleID string, in UpdateScheduleInput) (*models.PaymentSchedule, error)
	DeleteSchedule(userID, scheduleID string) error
	MarkPaid(userID, scheduleID string, paidDate *time.Time) (*models.PaymentSchedule, error)
	SetStatus(userID, scheduleID string, status models.PaymentStatus) (*models.PaymentSchedule, error)
	CheckOverdue() (int, error)
	CheckReminders() (int, error)
}

// SweepReport summarizes one reconciliation pass.
type SweepReport struct {
	Examined            int `json:"examined"`
	Converged           int `json:"converged"`
	TransactionsCreated int `json:"transactions_created"`
	TransactionsPruned  int `json:"transactions_pruned"`
	Failures            int `json:"failures"`
}

// Reconciler keeps a payment's two representations (ledger entry and
// schedule record) status-consistent and maintains the at-most-one-
// Transaction-per-paid-payment invariant.
type Reconciler interface {
	SetScheduleStatus(userID, scheduleID string, status models.PaymentStatus, paidDate *time.Time) (*models.PaymentSchedule, error)
	SetEntryStatus(userID, ledgerID, entryID string, status models.PaymentStatus, paidDate *time.Time) (*models.PaymentEntry, error)
	Sweep() (*SweepReport, error)
}

// AggregatedTransaction is the common reporting shape for plain
// transactions and payment-derived pseudo-transactions.
type AggregatedTransaction struct {
	ID          string                 `json:"id"`
	Source      string                 `json:"source"` // transaction | ledger_entry | schedule
	Type        models.TransactionType `json:"type"`
	Amount      int64                  `json:"amount"`
	CategoryID  string                 `json:"category_id,omitempty"`
	Date        time.Time              `json:"date"`
	Description string                 `json:"description,omitempty"`
}

// KeyFunc groups aggregated transactions for the reducer.
type KeyFunc func(AggregatedTransaction) string

// AggregateBucket is the reduced view of one group.
type AggregateBucket struct {
	Total   int64   `json:"total"`
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

// BudgetPerformance is one flattened budget-vs-spend row.
type BudgetPerformance struct {
	Scope      string  `json:"scope"` // period | ledger
	RefID      string  `json:"ref_id"`
	CategoryID string  `json:"category_id,omitempty"`
	Budgeted   int64   `json:"budgeted"`
	Spent      int64   `json:"spent"`
	Remaining  int64   `json:"remaining"`
	Percentage float64 `json:"percentage"`
	Status     string  `json:"status"` // good | warning | exceeded
}

// FinancialSummary is the top-level spend report over a range.
type FinancialSummary struct {
	Income     int64            `json:"income"`
	Expense    int64            `json:"expense"`
	Net        int64            `json:"net"`
	Count      int              `json:"count"`
	ByCategory map[string]int64 `json:"by_category"`
}

// Reporter merges plain transactions with payment-derived
// pseudo-transactions so reports never undercount money moved through the
// scheduler path.
type Reporter interface {
	GetPeriodTransactions(userID string, from, to time.Time) ([]AggregatedTransaction, error)
	AggregateBy(userID string, from, to time.Time, key KeyFunc) (map[string]AggregateBucket, error)
	GetBudgetPerformance(userID string, from, to time.Time) ([]BudgetPerformance, error)
	GetFinancialSummary(userID string, from, to time.Time) (*FinancialSummary, error)
}

// NotificationServicer exposes the user-facing notification feed.
type NotificationServicer interface {
	GetUserNotifications(userID string, page pagination.PageRequest, unreadOnly bool) (*pagination.PageResponse[models.Notification], error)
	MarkRead(userID, notificationID string) (*models.Notification, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
