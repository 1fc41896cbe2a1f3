package models

import "time"

// TransactionType represents the type of transaction.
type TransactionType string

const (
	TransactionTypeIncome  TransactionType = "income"
	TransactionTypeExpense TransactionType = "expense"
)

// Transaction is the plain ledger-of-record. Reconciliation derives one
// Transaction per paid schedule-linked payment; ScheduleID carries that
// link and at most one live Transaction exists per schedule.
type Transaction struct {
	Base
	UserID      string          `gorm:"type:uuid;not null;index" json:"user_id"`
	Type        TransactionType `gorm:"not null" json:"type"`
	Amount      int64           `gorm:"type:bigint;not null" json:"amount"`
	CategoryID  *string         `gorm:"type:uuid" json:"category_id,omitempty"`
	Date        time.Time       `gorm:"not null;index" json:"date"`
	Description string          `json:"description"`
	Currency    string          `gorm:"size:3;default:'USD'" json:"currency"`
	ScheduleID  *string         `gorm:"type:uuid;index" json:"schedule_id,omitempty"`

	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}
