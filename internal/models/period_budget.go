package models

import "time"

// PeriodType represents the calendar span a budget plan covers.
type PeriodType string

const (
	PeriodTypeMonthly   PeriodType = "monthly"
	PeriodTypeQuarterly PeriodType = "quarterly"
	PeriodTypeYearly    PeriodType = "yearly"
	PeriodTypeCustom    PeriodType = "custom"
)

// PeriodStatus represents the lifecycle state of a budget plan.
type PeriodStatus string

const (
	PeriodStatusActive    PeriodStatus = "active"
	PeriodStatusCompleted PeriodStatus = "completed"
	PeriodStatusCancelled PeriodStatus = "cancelled"
)

// SliceStatus represents the lifecycle state of a weekly slice.
type SliceStatus string

const (
	SliceStatusPending   SliceStatus = "pending"
	SliceStatusActive    SliceStatus = "active"
	SliceStatusCompleted SliceStatus = "completed"
)

// PeriodBudget is a funding plan over a calendar period, decomposed into
// Monday-aligned weekly slices. EndDate is exclusive.
type PeriodBudget struct {
	Base
	UserID       string       `gorm:"type:uuid;not null;index" json:"user_id"`
	Name         string       `gorm:"not null" json:"name"`
	PeriodType   PeriodType   `gorm:"not null" json:"period_type"`
	StartDate    time.Time    `gorm:"not null" json:"start_date"`
	EndDate      time.Time    `gorm:"not null" json:"end_date"`
	TotalAmount  int64        `gorm:"type:bigint;not null" json:"total_amount"`
	WeeklyAmount *int64       `gorm:"type:bigint" json:"weekly_amount,omitempty"`
	Status       PeriodStatus `gorm:"not null;default:'active'" json:"status"`

	Allocations []PeriodAllocation `gorm:"foreignKey:PeriodBudgetID" json:"allocations,omitempty"`
	Slices      []WeeklySlice      `gorm:"foreignKey:PeriodBudgetID" json:"slices,omitempty"`
}

// PeriodAllocation is a per-category default allocation for a budget plan.
// Either Amount (cents for the whole period) or Percent (share of a slice's
// amount) is set, never both.
type PeriodAllocation struct {
	Base
	PeriodBudgetID string  `gorm:"type:uuid;not null;index" json:"period_budget_id"`
	CategoryID     string  `gorm:"type:uuid;not null" json:"category_id"`
	Amount         int64   `gorm:"type:bigint" json:"amount"`
	Percent        float64 `json:"percent"`

	Category Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

// WeeklySlice is one Monday–Sunday week within a PeriodBudget, clipped to
// the plan boundaries. A slice is materialized into a WeeklyLedger on
// demand; until then LedgerID is nil.
type WeeklySlice struct {
	Base
	PeriodBudgetID  string      `gorm:"type:uuid;not null;index" json:"period_budget_id"`
	WeekNumber      int         `gorm:"not null" json:"week_number"`
	StartDate       time.Time   `gorm:"not null" json:"start_date"`
	EndDate         time.Time   `gorm:"not null" json:"end_date"`
	AllocatedAmount int64       `gorm:"type:bigint;not null" json:"allocated_amount"`
	SpentAmount     int64       `gorm:"type:bigint;not null;default:0" json:"spent_amount"`
	LedgerID        *string     `gorm:"type:uuid" json:"ledger_id,omitempty"`
	Status          SliceStatus `gorm:"not null;default:'pending'" json:"status"`
}
