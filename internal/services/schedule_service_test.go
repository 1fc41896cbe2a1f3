package services

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"hearth/internal/models"
	"hearth/internal/testutil"
)

type scheduleFixture struct {
	db        *gorm.DB
	clk       *testutil.FakeClock
	ledgers   LedgerServicer
	schedules ScheduleServicer
}

func newScheduleFixture(t *testing.T, db *gorm.DB, now time.Time) *scheduleFixture {
	t.Helper()
	clk := testutil.NewFakeClock(now)
	gate := OwnerGate{}
	notifier := newTestNotifier(db)
	ledgers := NewLedgerService(db, clk, gate, notifier)
	reconciler := NewReconciliationService(db, clk, gate)
	schedules := NewScheduleService(db, clk, gate, ledgers, reconciler, notifier)
	return &scheduleFixture{db: db, clk: clk, ledgers: ledgers, schedules: schedules}
}

func scheduleTransactionCount(t *testing.T, db *gorm.DB, scheduleID string) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.Transaction{}).Where("schedule_id = ?", scheduleID).Count(&count).Error; err != nil {
		t.Fatalf("counting transactions: %v", err)
	}
	return count
}

func TestCreateSchedule(t *testing.T) {
	t.Run("bridges_into_weekly_ledger", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		f := newScheduleFixture(t, db, time.Now())
		user := testutil.CreateTestUser(t, db)
		bills := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		due := date(2026, 9, 2) // a Wednesday
		schedule, err := f.schedules.CreateSchedule(user.ID, ScheduleInput{
			Name:       "Rent",
			Amount:     150000,
			CategoryID: bills.ID,
			DueDate:    due,
			Frequency:  models.FrequencyMonthly,
		})
		testutil.AssertNoError(t, err)

		if schedule.LedgerID == nil || schedule.LedgerEntryID == nil {
			t.Fatal("expected the schedule to be bridged into a ledger")
		}

		var entry models.PaymentEntry
		if err := db.Where("id = ?", *schedule.LedgerEntryID).First(&entry).Error; err != nil {
			t.Fatalf("loading bridged entry: %v", err)
		}
		if entry.ScheduleID == nil || *entry.ScheduleID != schedule.ID {
			t.Error("bridged entry should back-reference the schedule")
		}
		if entry.Amount != schedule.Amount || entry.Name != schedule.Name {
			t.Error("bridged entry should mirror the schedule")
		}

		// The bootstrap ledger covers the due date's week.
		ledger, err := f.ledgers.EnsureLedgerFor(user.ID, due)
		testutil.AssertNoError(t, err)
		if ledger.ID != *schedule.LedgerID {
			t.Error("expected the bridge to reuse the week's ledger")
		}
		if !ledger.WeekStart.Equal(date(2026, 8, 31)) {
			t.Errorf("expected week start 2026-08-31, got %v", ledger.WeekStart)
		}
	})

	t.Run("duplicate_inside_window_returns_original", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		f := newScheduleFixture(t, db, time.Now())
		user := testutil.CreateTestUser(t, db)
		bills := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		in := ScheduleInput{
			Name:       "Internet",
			Amount:     6000,
			CategoryID: bills.ID,
			DueDate:    date(2026, 9, 10),
			Frequency:  models.FrequencyMonthly,
		}

		first, err := f.schedules.CreateSchedule(user.ID, in)
		testutil.AssertNoError(t, err)
		retry, err := f.schedules.CreateSchedule(user.ID, in)
		testutil.AssertNoError(t, err)
		if retry.ID != first.ID {
			t.Errorf("expected the retry to return the original schedule, got a new one")
		}

		var count int64
		if err := db.Model(&models.PaymentSchedule{}).Where("user_id = ?", user.ID).Count(&count).Error; err != nil {
			t.Fatalf("counting schedules: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected 1 schedule, got %d", count)
		}

		// Outside the window the same input is a genuine new schedule.
		f.clk.Advance(time.Minute)
		later, err := f.schedules.CreateSchedule(user.ID, in)
		testutil.AssertNoError(t, err)
		if later.ID == first.ID {
			t.Error("expected a new schedule outside the duplicate window")
		}
	})

	t.Run("duplicate_window_follows_injected_clock", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		// Simulated time far from wall time; creation stamps come from
		// the clock, so the window still holds.
		f := newScheduleFixture(t, db, date(2027, 5, 3))
		user := testutil.CreateTestUser(t, db)
		bills := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		in := ScheduleInput{
			Name:       "Water",
			Amount:     4500,
			CategoryID: bills.ID,
			DueDate:    date(2027, 5, 10),
			Frequency:  models.FrequencyMonthly,
		}

		first, err := f.schedules.CreateSchedule(user.ID, in)
		testutil.AssertNoError(t, err)
		if !first.CreatedAt.Equal(f.clk.Now()) {
			t.Errorf("expected creation stamped at %v, got %v", f.clk.Now(), first.CreatedAt)
		}

		retry, err := f.schedules.CreateSchedule(user.ID, in)
		testutil.AssertNoError(t, err)
		if retry.ID != first.ID {
			t.Error("expected the retry to return the original schedule")
		}

		f.clk.Advance(time.Minute)
		later, err := f.schedules.CreateSchedule(user.ID, in)
		testutil.AssertNoError(t, err)
		if later.ID == first.ID {
			t.Error("expected a new schedule outside the duplicate window")
		}
	})

	t.Run("recurring_requires_repeating_frequency", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		f := newScheduleFixture(t, db, time.Now())
		user := testutil.CreateTestUser(t, db)
		bills := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		_, err := f.schedules.CreateSchedule(user.ID, ScheduleInput{
			Name:        "One-off",
			Amount:      100,
			CategoryID:  bills.ID,
			DueDate:     date(2026, 9, 10),
			Frequency:   models.FrequencyOnce,
			IsRecurring: true,
		})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("rejects_unknown_frequency_and_category", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		f := newScheduleFixture(t, db, time.Now())
		user := testutil.CreateTestUser(t, db)
		other := testutil.CreateTestUser(t, db)
		foreign := testutil.CreateTestCategory(t, db, other.ID, models.CategoryTypeExpense)

		_, err := f.schedules.CreateSchedule(user.ID, ScheduleInput{
			Name: "Bad", Amount: 100, CategoryID: foreign.ID,
			DueDate: date(2026, 9, 10), Frequency: "fortnightly-ish",
		})
		testutil.AssertAppError(t, err, "INVALID_FREQUENCY")

		_, err = f.schedules.CreateSchedule(user.ID, ScheduleInput{
			Name: "Bad", Amount: 100, CategoryID: foreign.ID,
			DueDate: date(2026, 9, 10), Frequency: models.FrequencyMonthly,
		})
		testutil.AssertAppError(t, err, "CATEGORY_NOT_FOUND")
	})
}

func TestMarkPaidRecurring(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	f := newScheduleFixture(t, db, date(2027, 2, 1))
	user := testutil.CreateTestUser(t, db)
	bills := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

	end := date(2027, 3, 15)
	schedule, err := f.schedules.CreateSchedule(user.ID, ScheduleInput{
		Name:             "Gym",
		Amount:           100,
		CategoryID:       bills.ID,
		DueDate:          date(2027, 2, 1),
		Frequency:        models.FrequencyMonthly,
		IsRecurring:      true,
		RecurringEndDate: &end,
	})
	testutil.AssertNoError(t, err)

	paid, err := f.schedules.MarkPaid(user.ID, schedule.ID, nil)
	testutil.AssertNoError(t, err)
	if paid.Status != models.PaymentStatusPaid {
		t.Fatalf("expected paid, got %s", paid.Status)
	}
	if paid.PaidDate == nil {
		t.Fatal("expected a paid date")
	}

	// Exactly one derived Transaction.
	if got := scheduleTransactionCount(t, db, schedule.ID); got != 1 {
		t.Fatalf("expected 1 transaction, got %d", got)
	}
	var txn models.Transaction
	if err := db.Where("schedule_id = ?", schedule.ID).First(&txn).Error; err != nil {
		t.Fatalf("loading transaction: %v", err)
	}
	if txn.Amount != 100 || txn.Type != models.TransactionTypeExpense {
		t.Errorf("unexpected transaction: amount=%d type=%s", txn.Amount, txn.Type)
	}

	// Exactly one successor, due one month later.
	var successor models.PaymentSchedule
	err = db.Where("user_id = ? AND name = ? AND due_date = ?", user.ID, "Gym", date(2027, 3, 1)).First(&successor).Error
	if err != nil {
		t.Fatalf("expected a successor due 2027-03-01: %v", err)
	}
	if successor.Status != models.PaymentStatusPending {
		t.Errorf("successor should start pending, got %s", successor.Status)
	}

	// Repeating the mark-paid does not duplicate either artifact.
	_, err = f.schedules.MarkPaid(user.ID, schedule.ID, nil)
	testutil.AssertNoError(t, err)
	if got := scheduleTransactionCount(t, db, schedule.ID); got != 1 {
		t.Errorf("expected still 1 transaction, got %d", got)
	}
	var successors int64
	if err := db.Model(&models.PaymentSchedule{}).
		Where("user_id = ? AND name = ? AND due_date = ?", user.ID, "Gym", date(2027, 3, 1)).
		Count(&successors).Error; err != nil {
		t.Fatalf("counting successors: %v", err)
	}
	if successors != 1 {
		t.Errorf("expected 1 successor, got %d", successors)
	}

	// Paying the successor would advance past the recurring end date, so
	// the chain stops there.
	f.clk.Set(date(2027, 3, 1))
	_, err = f.schedules.MarkPaid(user.ID, successor.ID, nil)
	testutil.AssertNoError(t, err)

	var grandchild int64
	if err := db.Model(&models.PaymentSchedule{}).
		Where("user_id = ? AND name = ? AND due_date = ?", user.ID, "Gym", date(2027, 4, 1)).
		Count(&grandchild).Error; err != nil {
		t.Fatalf("counting schedules: %v", err)
	}
	if grandchild != 0 {
		t.Error("expected no successor past the recurring end date")
	}
	if got := scheduleTransactionCount(t, db, successor.ID); got != 1 {
		t.Errorf("expected 1 transaction for the successor, got %d", got)
	}
}

func TestUpdateSchedulePropagatesToEntry(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	f := newScheduleFixture(t, db, date(2026, 9, 1))
	user := testutil.CreateTestUser(t, db)
	bills := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

	schedule, err := f.schedules.CreateSchedule(user.ID, ScheduleInput{
		Name: "Phone", Amount: 4500, CategoryID: bills.ID,
		DueDate: date(2026, 9, 3), Frequency: models.FrequencyMonthly,
	})
	testutil.AssertNoError(t, err)

	newName := "Phone plan"
	newAmount := int64(5000)
	updated, err := f.schedules.UpdateSchedule(user.ID, schedule.ID, UpdateScheduleInput{
		Name:   &newName,
		Amount: &newAmount,
	})
	testutil.AssertNoError(t, err)
	if updated.Name != newName || updated.Amount != newAmount {
		t.Errorf("schedule not updated: %s/%d", updated.Name, updated.Amount)
	}

	var entry models.PaymentEntry
	if err := db.Where("id = ?", *schedule.LedgerEntryID).First(&entry).Error; err != nil {
		t.Fatalf("loading entry: %v", err)
	}
	if entry.Name != newName || entry.Amount != newAmount {
		t.Errorf("linked entry not kept in step: %s/%d", entry.Name, entry.Amount)
	}
}

func TestDeleteSchedule(t *testing.T) {
	t.Run("removes_unpaid_entry", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		f := newScheduleFixture(t, db, date(2026, 9, 1))
		user := testutil.CreateTestUser(t, db)
		bills := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		schedule, err := f.schedules.CreateSchedule(user.ID, ScheduleInput{
			Name: "Streaming", Amount: 1500, CategoryID: bills.ID,
			DueDate: date(2026, 9, 3), Frequency: models.FrequencyMonthly,
		})
		testutil.AssertNoError(t, err)
		entryID := *schedule.LedgerEntryID

		testutil.AssertNoError(t, f.schedules.DeleteSchedule(user.ID, schedule.ID))

		_, err = f.schedules.GetScheduleByID(user.ID, schedule.ID)
		testutil.AssertAppError(t, err, "SCHEDULE_NOT_FOUND")

		var entry models.PaymentEntry
		if err := db.Where("id = ?", entryID).First(&entry).Error; err == nil {
			t.Error("expected the unpaid entry to be deleted with the schedule")
		}
	})

	t.Run("keeps_paid_entry_and_transaction", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		f := newScheduleFixture(t, db, date(2026, 9, 1))
		user := testutil.CreateTestUser(t, db)
		bills := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		schedule, err := f.schedules.CreateSchedule(user.ID, ScheduleInput{
			Name: "Insurance", Amount: 8000, CategoryID: bills.ID,
			DueDate: date(2026, 9, 3), Frequency: models.FrequencyMonthly,
		})
		testutil.AssertNoError(t, err)
		entryID := *schedule.LedgerEntryID

		_, err = f.schedules.MarkPaid(user.ID, schedule.ID, nil)
		testutil.AssertNoError(t, err)

		testutil.AssertNoError(t, f.schedules.DeleteSchedule(user.ID, schedule.ID))

		var entry models.PaymentEntry
		if err := db.Where("id = ?", entryID).First(&entry).Error; err != nil {
			t.Errorf("paid entry should survive: %v", err)
		}
		if got := scheduleTransactionCount(t, db, schedule.ID); got != 1 {
			t.Errorf("paid transaction should survive, got %d", got)
		}
	})
}

func TestCheckOverdue(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	f := newScheduleFixture(t, db, date(2027, 2, 5))
	user := testutil.CreateTestUser(t, db)
	bills := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

	late, err := f.schedules.CreateSchedule(user.ID, ScheduleInput{
		Name: "Water", Amount: 3000, CategoryID: bills.ID,
		DueDate: date(2027, 2, 3), Frequency: models.FrequencyMonthly,
	})
	testutil.AssertNoError(t, err)
	_, err = f.schedules.CreateSchedule(user.ID, ScheduleInput{
		Name: "Future bill", Amount: 3000, CategoryID: bills.ID,
		DueDate: date(2027, 2, 20), Frequency: models.FrequencyMonthly,
	})
	testutil.AssertNoError(t, err)

	transitioned, err := f.schedules.CheckOverdue()
	testutil.AssertNoError(t, err)
	if transitioned != 1 {
		t.Fatalf("expected 1 overdue transition, got %d", transitioned)
	}

	reloaded, err := f.schedules.GetScheduleByID(user.ID, late.ID)
	testutil.AssertNoError(t, err)
	if reloaded.Status != models.PaymentStatusOverdue {
		t.Errorf("expected overdue, got %s", reloaded.Status)
	}

	// The linked ledger entry converges through the same protocol.
	var entry models.PaymentEntry
	if err := db.Where("id = ?", *late.LedgerEntryID).First(&entry).Error; err != nil {
		t.Fatalf("loading entry: %v", err)
	}
	if entry.Status != models.PaymentStatusOverdue {
		t.Errorf("expected entry overdue, got %s", entry.Status)
	}

	if got := notificationCount(t, db, user.ID, models.NotificationPaymentOverdue); got != 1 {
		t.Errorf("expected 1 overdue notification, got %d", got)
	}

	// A second sweep finds nothing to do.
	transitioned, err = f.schedules.CheckOverdue()
	testutil.AssertNoError(t, err)
	if transitioned != 0 {
		t.Errorf("expected an idempotent sweep, got %d transitions", transitioned)
	}
}

func TestCheckReminders(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	f := newScheduleFixture(t, db, date(2027, 2, 5))
	user := testutil.CreateTestUser(t, db)
	bills := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

	soon, err := f.schedules.CreateSchedule(user.ID, ScheduleInput{
		Name: "Soon", Amount: 3000, CategoryID: bills.ID,
		DueDate: date(2027, 2, 7), Frequency: models.FrequencyMonthly, ReminderDays: 3,
	})
	testutil.AssertNoError(t, err)
	_, err = f.schedules.CreateSchedule(user.ID, ScheduleInput{
		Name: "Far out", Amount: 3000, CategoryID: bills.ID,
		DueDate: date(2027, 2, 20), Frequency: models.FrequencyMonthly, ReminderDays: 3,
	})
	testutil.AssertNoError(t, err)

	sent, err := f.schedules.CheckReminders()
	testutil.AssertNoError(t, err)
	if sent != 1 {
		t.Fatalf("expected 1 reminder, got %d", sent)
	}
	if got := notificationCount(t, db, user.ID, models.NotificationPaymentReminder); got != 1 {
		t.Errorf("expected 1 reminder notification, got %d", got)
	}

	reloaded, err := f.schedules.GetScheduleByID(user.ID, soon.ID)
	testutil.AssertNoError(t, err)
	if reloaded.ReminderSentAt == nil {
		t.Error("expected the reminder to be recorded")
	}

	sent, err = f.schedules.CheckReminders()
	testutil.AssertNoError(t, err)
	if sent != 0 {
		t.Errorf("expected no repeat reminder, got %d", sent)
	}
}
