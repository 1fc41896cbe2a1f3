package models

import "time"

// PaymentFrequency is the recurrence interval of a payment schedule.
type PaymentFrequency string

const (
	FrequencyOnce      PaymentFrequency = "once"
	FrequencyWeekly    PaymentFrequency = "weekly"
	FrequencyBiweekly  PaymentFrequency = "biweekly"
	FrequencyMonthly   PaymentFrequency = "monthly"
	FrequencyQuarterly PaymentFrequency = "quarterly"
	FrequencyYearly    PaymentFrequency = "yearly"
)

// NextDue advances a due date by one frequency interval.
func (f PaymentFrequency) NextDue(from time.Time) time.Time {
	switch f {
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7)
	case FrequencyBiweekly:
		return from.AddDate(0, 0, 14)
	case FrequencyMonthly:
		return from.AddDate(0, 1, 0)
	case FrequencyQuarterly:
		return from.AddDate(0, 3, 0)
	case FrequencyYearly:
		return from.AddDate(1, 0, 0)
	}
	return from
}

// PaymentSchedule is a standalone (possibly recurring) payment obligation,
// independent of any budget plan. When a schedule is created it is bridged
// to the weekly ledger covering its due date; LedgerID and LedgerEntryID
// hold that link. Marking a recurring schedule paid spawns a successor
// record with the due date advanced by one frequency interval, capped at
// RecurringEndDate.
type PaymentSchedule struct {
	Base
	UserID           string           `gorm:"type:uuid;not null;index" json:"user_id"`
	Name             string           `gorm:"not null" json:"name"`
	Amount           int64            `gorm:"type:bigint;not null" json:"amount"`
	CategoryID       string           `gorm:"type:uuid;not null" json:"category_id"`
	DueDate          time.Time        `gorm:"not null;index" json:"due_date"`
	Frequency        PaymentFrequency `gorm:"not null;default:'once'" json:"frequency"`
	Status           PaymentStatus    `gorm:"not null;default:'pending'" json:"status"`
	PaidDate         *time.Time       `json:"paid_date,omitempty"`
	PaidBy           *string          `gorm:"type:uuid" json:"paid_by,omitempty"`
	IsRecurring      bool             `gorm:"default:false" json:"is_recurring"`
	RecurringEndDate *time.Time       `json:"recurring_end_date,omitempty"`
	TxType           TransactionType  `gorm:"not null;default:'expense'" json:"tx_type"`
	ReminderDays     int              `gorm:"default:0" json:"reminder_days"`
	ReminderSentAt   *time.Time       `json:"-"`
	LedgerID         *string          `gorm:"type:uuid" json:"ledger_id,omitempty"`
	LedgerEntryID    *string          `gorm:"type:uuid;index" json:"ledger_entry_id,omitempty"`

	Category Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}
