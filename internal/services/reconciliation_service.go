package services

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"hearth/internal/clock"
	apperrors "hearth/internal/errors"
	"hearth/internal/logger"
	"hearth/internal/models"
)

// reconciliationService propagates payment status changes between a
// schedule record and its ledger entry twin, and maintains the
// at-most-one-Transaction-per-paid-payment invariant. Every write is
// guarded by an existence check so that migrations and sweeps can re-run
// safely.
type reconciliationService struct {
	db    *gorm.DB
	clock clock.Clock
	gate  PermissionGate
}

// NewReconciliationService creates a new Reconciler.
func NewReconciliationService(db *gorm.DB, clk clock.Clock, gate PermissionGate) Reconciler {
	return &reconciliationService{db: db, clock: clk, gate: gate}
}

func validPaymentStatus(status models.PaymentStatus) bool {
	switch status {
	case models.PaymentStatusPending, models.PaymentStatusPaying, models.PaymentStatusPaid,
		models.PaymentStatusOverdue, models.PaymentStatusCancelled:
		return true
	}
	return false
}

// SetScheduleStatus applies a status change initiated on the schedule side
// and propagates it to the linked ledger entry and the Transaction store.
func (s *reconciliationService) SetScheduleStatus(userID, scheduleID string, status models.PaymentStatus, paidDate *time.Time) (*models.PaymentSchedule, error) {
	if !validPaymentStatus(status) {
		return nil, apperrors.ErrInvalidStatusChange
	}

	var schedule models.PaymentSchedule
	if err := s.db.Where("id = ?", scheduleID).First(&schedule).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrScheduleNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if schedule.UserID != userID && !s.gate.MayWrite(userID, schedule.UserID, "payment_schedule", schedule.ID) {
		return nil, apperrors.ErrForbidden
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		entry, err := s.findLinkedEntry(tx, &schedule)
		if err != nil {
			return err
		}
		return s.apply(tx, &schedule, entry, status, paidDate, userID)
	})
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

// SetEntryStatus applies a status change initiated on the ledger side and
// propagates it to the linked schedule and the Transaction store.
func (s *reconciliationService) SetEntryStatus(userID, ledgerID, entryID string, status models.PaymentStatus, paidDate *time.Time) (*models.PaymentEntry, error) {
	if !validPaymentStatus(status) {
		return nil, apperrors.ErrInvalidStatusChange
	}

	var entry models.PaymentEntry
	if err := s.db.Where("id = ? AND ledger_id = ?", entryID, ledgerID).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrEntryNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if entry.UserID != userID && !s.gate.MayWrite(userID, entry.UserID, "payment_entry", entry.ID) {
		return nil, apperrors.ErrForbidden
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		schedule, err := s.findLinkedSchedule(tx, &entry)
		if err != nil {
			return err
		}
		return s.apply(tx, schedule, &entry, status, paidDate, userID)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// findLinkedEntry locates the ledger entry matching a schedule, first by
// the schedule's own link, then by the entry's scheduleRef back-reference.
func (s *reconciliationService) findLinkedEntry(tx *gorm.DB, schedule *models.PaymentSchedule) (*models.PaymentEntry, error) {
	var entry models.PaymentEntry
	if schedule.LedgerEntryID != nil {
		err := tx.Where("id = ?", *schedule.LedgerEntryID).First(&entry).Error
		if err == nil {
			return &entry, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	err := tx.Where("schedule_id = ?", schedule.ID).Order("created_at DESC").First(&entry).Error
	if err == nil {
		return &entry, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
}

// findLinkedSchedule locates the schedule matching a ledger entry.
func (s *reconciliationService) findLinkedSchedule(tx *gorm.DB, entry *models.PaymentEntry) (*models.PaymentSchedule, error) {
	var schedule models.PaymentSchedule
	if entry.ScheduleID != nil {
		err := tx.Where("id = ?", *entry.ScheduleID).First(&schedule).Error
		if err == nil {
			return &schedule, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}
	err := tx.Where("ledger_entry_id = ?", entry.ID).First(&schedule).Error
	if err == nil {
		return &schedule, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
}

// apply writes one status change to both representations and maintains
// the Transaction invariant. Either side may be nil for an unlinked
// payment.
func (s *reconciliationService) apply(tx *gorm.DB, schedule *models.PaymentSchedule, entry *models.PaymentEntry, status models.PaymentStatus, paidDate *time.Time, actor string) error {
	prev := models.PaymentStatus("")
	if schedule != nil {
		prev = schedule.Status
	} else if entry != nil {
		prev = entry.Status
	}

	var pd *time.Time
	var paidBy *string
	if status == models.PaymentStatusPaid {
		when := s.clock.Now()
		if paidDate != nil {
			when = *paidDate
		}
		pd = &when
		paidBy = &actor
	}

	fields := map[string]interface{}{
		"status":    status,
		"paid_date": pd,
		"paid_by":   paidBy,
	}
	if schedule != nil {
		if err := tx.Model(schedule).Updates(fields).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		schedule.Status = status
		schedule.PaidDate = pd
		schedule.PaidBy = paidBy
	}
	if entry != nil {
		if err := tx.Model(entry).Updates(fields).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		entry.Status = status
		entry.PaidDate = pd
		entry.PaidBy = paidBy
	}

	if schedule != nil {
		if status == models.PaymentStatusPaid {
			if _, err := s.ensureTransaction(tx, schedule, entry); err != nil {
				return err
			}
		} else if prev == models.PaymentStatusPaid {
			if err := s.dropTransactions(tx, schedule.ID, entry); err != nil {
				return err
			}
		}
	}

	if entry != nil {
		if err := s.refreshSliceSpend(tx, entry.LedgerID); err != nil {
			return err
		}
	}
	return nil
}

// ensureTransaction guarantees exactly one Transaction carries the
// schedule's reference: never inserts blindly, and when duplicates are
// found keeps the most recent and deletes the rest. Returns true when a
// Transaction was created.
func (s *reconciliationService) ensureTransaction(tx *gorm.DB, schedule *models.PaymentSchedule, entry *models.PaymentEntry) (bool, error) {
	var existing []models.Transaction
	if err := tx.Where("schedule_id = ?", schedule.ID).Order("created_at DESC").Find(&existing).Error; err != nil {
		return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	created := false
	var keep models.Transaction
	if len(existing) > 0 {
		keep = existing[0]
		for _, dup := range existing[1:] {
			if err := tx.Delete(&dup).Error; err != nil {
				return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
			}
		}
	} else {
		date := s.clock.Now()
		if schedule.PaidDate != nil {
			date = *schedule.PaidDate
		}
		keep = models.Transaction{
			UserID:      schedule.UserID,
			Type:        schedule.TxType,
			Amount:      schedule.Amount,
			CategoryID:  &schedule.CategoryID,
			Date:        date,
			Description: schedule.Name,
			Currency:    s.ownerCurrency(tx, schedule.UserID),
			ScheduleID:  &schedule.ID,
		}
		if err := tx.Create(&keep).Error; err != nil {
			return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		created = true
	}

	if entry != nil && (entry.TransactionID == nil || *entry.TransactionID != keep.ID) {
		if err := tx.Model(entry).Update("transaction_id", keep.ID).Error; err != nil {
			return false, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		entry.TransactionID = &keep.ID
	}
	return created, nil
}

// dropTransactions removes every Transaction derived from the schedule
// after a payment transitions away from paid.
func (s *reconciliationService) dropTransactions(tx *gorm.DB, scheduleID string, entry *models.PaymentEntry) error {
	if err := tx.Where("schedule_id = ?", scheduleID).Delete(&models.Transaction{}).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if entry != nil && entry.TransactionID != nil {
		if err := tx.Model(entry).Update("transaction_id", nil).Error; err != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
		entry.TransactionID = nil
	}
	return nil
}

// ownerCurrency defaults a derived Transaction's currency from the owner's
// preference.
func (s *reconciliationService) ownerCurrency(tx *gorm.DB, userID string) string {
	var user models.User
	if err := tx.Where("id = ?", userID).First(&user).Error; err != nil || user.Currency == "" {
		return "USD"
	}
	return user.Currency
}

// refreshSliceSpend recomputes the parent slice's spent amount from the
// ledger's paid entries.
func (s *reconciliationService) refreshSliceSpend(tx *gorm.DB, ledgerID string) error {
	var ledger models.WeeklyLedger
	if err := tx.Where("id = ?", ledgerID).First(&ledger).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	if ledger.PeriodBudgetID == nil {
		return nil
	}

	var spent int64
	if err := tx.Model(&models.PaymentEntry{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("ledger_id = ? AND status = ?", ledgerID, models.PaymentStatusPaid).
		Scan(&spent).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	err := tx.Model(&models.WeeklySlice{}).
		Where("ledger_id = ?", ledgerID).
		Update("spent_amount", spent).Error
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}

// Sweep is the drift-recovery pass. It converges every linked
// schedule/entry pair whose statuses disagree (the side updated more
// recently wins; on a tie the ledger entry wins, since that is what end
// users observe) and then re-establishes the Transaction invariant for
// every schedule. Failures on individual records are logged and skipped
// so one corrupt link cannot block global recovery. The pass is
// idempotent: re-running it produces no additional writes.
func (s *reconciliationService) Sweep() (*SweepReport, error) {
	report := &SweepReport{}
	log := logger.Get()

	// Pass 1: status convergence across linked pairs.
	var entries []models.PaymentEntry
	if err := s.db.Where("schedule_id IS NOT NULL").Find(&entries).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for i := range entries {
		entry := &entries[i]
		report.Examined++

		var schedule models.PaymentSchedule
		if err := s.db.Where("id = ?", *entry.ScheduleID).First(&schedule).Error; err != nil {
			log.Warnw("reconciliation: dangling schedule reference",
				"entry_id", entry.ID, "schedule_id", *entry.ScheduleID, "error", err)
			report.Failures++
			continue
		}
		if schedule.Status == entry.Status {
			continue
		}

		winner := entry.Status
		winnerPaid := entry.PaidDate
		actor := entry.UserID
		if schedule.UpdatedAt.After(entry.UpdatedAt) {
			winner = schedule.Status
			winnerPaid = schedule.PaidDate
			actor = schedule.UserID
			if schedule.PaidBy != nil {
				actor = *schedule.PaidBy
			}
		} else if entry.PaidBy != nil {
			actor = *entry.PaidBy
		}

		err := s.db.Transaction(func(tx *gorm.DB) error {
			return s.apply(tx, &schedule, entry, winner, winnerPaid, actor)
		})
		if err != nil {
			log.Errorw("reconciliation: convergence failed",
				"entry_id", entry.ID, "schedule_id", schedule.ID, "error", err)
			report.Failures++
			continue
		}
		report.Converged++
	}

	// Pass 2: Transaction invariant per schedule.
	var schedules []models.PaymentSchedule
	if err := s.db.Find(&schedules).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	for i := range schedules {
		schedule := &schedules[i]

		if schedule.Status != models.PaymentStatusPaid {
			var count int64
			if err := s.db.Model(&models.Transaction{}).Where("schedule_id = ?", schedule.ID).Count(&count).Error; err != nil {
				report.Failures++
				continue
			}
			if count == 0 {
				continue
			}
			err := s.db.Transaction(func(tx *gorm.DB) error {
				entry, err := s.findLinkedEntry(tx, schedule)
				if err != nil {
					return err
				}
				return s.dropTransactions(tx, schedule.ID, entry)
			})
			if err != nil {
				log.Errorw("reconciliation: transaction cleanup failed", "schedule_id", schedule.ID, "error", err)
				report.Failures++
				continue
			}
			report.TransactionsPruned += int(count)
			continue
		}

		var pruned int64
		if err := s.db.Model(&models.Transaction{}).Where("schedule_id = ?", schedule.ID).Count(&pruned).Error; err != nil {
			report.Failures++
			continue
		}
		err := s.db.Transaction(func(tx *gorm.DB) error {
			entry, err := s.findLinkedEntry(tx, schedule)
			if err != nil {
				return err
			}
			created, err := s.ensureTransaction(tx, schedule, entry)
			if err != nil {
				return err
			}
			if created {
				report.TransactionsCreated++
			}
			if pruned > 1 {
				report.TransactionsPruned += int(pruned - 1)
			}
			return nil
		})
		if err != nil {
			log.Errorw("reconciliation: transaction invariant failed", "schedule_id", schedule.ID, "error", err)
			report.Failures++
		}
	}

	log.Infow("reconciliation sweep complete",
		"examined", report.Examined,
		"converged", report.Converged,
		"transactions_created", report.TransactionsCreated,
		"transactions_pruned", report.TransactionsPruned,
		"failures", report.Failures,
	)
	return report, nil
}
