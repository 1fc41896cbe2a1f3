package models

import "time"

// AllocationMode distinguishes the three allocation states of a ledger
// category. "limited" enforces the allocation as a ceiling; "unlimited"
// admits any payment; "unset" means no ceiling was ever configured and
// also admits any payment.
type AllocationMode string

const (
	AllocationModeUnset     AllocationMode = "unset"
	AllocationModeLimited   AllocationMode = "limited"
	AllocationModeUnlimited AllocationMode = "unlimited"
)

// PaymentStatus is the shared status vocabulary for ledger payment entries
// and payment schedules. The two are views of one conceptual payment and
// converge through reconciliation.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaying    PaymentStatus = "paying"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusOverdue   PaymentStatus = "overdue"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// WeeklyLedger is the live, mutable weekly record of category allocations
// and payment entries. WeekEnd is exclusive. A ledger may be materialized
// from a PeriodBudget slice or bootstrapped standalone by the scheduler.
type WeeklyLedger struct {
	Base
	UserID         string    `gorm:"type:uuid;not null;index" json:"user_id"`
	PeriodBudgetID *string   `gorm:"type:uuid;index" json:"period_budget_id,omitempty"`
	WeekStart      time.Time `gorm:"not null;index" json:"week_start"`
	WeekEnd        time.Time `gorm:"not null" json:"week_end"`
	TotalAmount    int64     `gorm:"type:bigint;not null" json:"total_amount"`
	Remaining      int64     `gorm:"type:bigint;not null" json:"remaining"`

	Categories []LedgerCategory `gorm:"foreignKey:LedgerID" json:"categories,omitempty"`
}

// LedgerCategory holds one category's allocation within a weekly ledger.
// AlertLevel records the highest budget-alert threshold already fired
// (0, 80 or 100) so repeated sweeps do not duplicate notifications.
type LedgerCategory struct {
	Base
	LedgerID   string         `gorm:"type:uuid;not null;uniqueIndex:idx_ledger_category" json:"ledger_id"`
	CategoryID string         `gorm:"type:uuid;not null;uniqueIndex:idx_ledger_category" json:"category_id"`
	Allocation int64          `gorm:"type:bigint;not null;default:0" json:"allocation"`
	Mode       AllocationMode `gorm:"not null;default:'unset'" json:"mode"`
	AlertLevel int            `gorm:"not null;default:0" json:"-"`

	Category Category       `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
	Entries  []PaymentEntry `gorm:"foreignKey:LedgerCategoryID" json:"entries,omitempty"`
}

// PaymentEntry is a single payment recorded in a weekly ledger, keyed by
// (ledger, category, entry). ScheduleID links the entry to its
// PaymentSchedule twin when the payment came through the scheduler;
// TransactionID links to the derived Transaction once paid.
type PaymentEntry struct {
	Base
	LedgerID         string        `gorm:"type:uuid;not null;index" json:"ledger_id"`
	LedgerCategoryID string        `gorm:"type:uuid;not null;index" json:"ledger_category_id"`
	UserID           string        `gorm:"type:uuid;not null" json:"user_id"`
	Name             string        `gorm:"not null" json:"name"`
	Amount           int64         `gorm:"type:bigint;not null" json:"amount"`
	ScheduledDate    time.Time     `gorm:"not null" json:"scheduled_date"`
	Status           PaymentStatus `gorm:"not null;default:'pending'" json:"status"`
	PaidDate         *time.Time    `json:"paid_date,omitempty"`
	PaidBy           *string       `gorm:"type:uuid" json:"paid_by,omitempty"`
	ScheduleID       *string       `gorm:"type:uuid;index" json:"schedule_id,omitempty"`
	TransactionID    *string       `gorm:"type:uuid" json:"transaction_id,omitempty"`
}
