package services

import (
	"testing"

	"gorm.io/gorm"

	"hearth/internal/models"
	"hearth/internal/testutil"
)

func notificationCount(t *testing.T, db *gorm.DB, userID, nType string) int64 {
	t.Helper()
	var count int64
	if err := db.Model(&models.Notification{}).Where("user_id = ? AND type = ?", userID, nType).Count(&count).Error; err != nil {
		t.Fatalf("counting notifications: %v", err)
	}
	return count
}

func TestMaterializeFromPeriod(t *testing.T) {
	t.Run("is_idempotent", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		clk := testutil.NewFakeClock(date(2027, 2, 10))
		gate := OwnerGate{}
		periods := NewPeriodService(db, clk, gate)
		ledgers := NewLedgerService(db, clk, gate, newTestNotifier(db))
		user := testutil.CreateTestUser(t, db)

		period, err := periods.CreatePeriod(user.ID, CreatePeriodInput{
			Name:        "February",
			PeriodType:  models.PeriodTypeMonthly,
			TotalAmount: 3000,
		})
		testutil.AssertNoError(t, err)

		first, err := ledgers.MaterializeFromPeriod(user.ID, period.ID, 1)
		testutil.AssertNoError(t, err)
		second, err := ledgers.MaterializeFromPeriod(user.ID, period.ID, 1)
		testutil.AssertNoError(t, err)

		if first.ID != second.ID {
			t.Errorf("expected the same ledger on repeat, got %s then %s", first.ID, second.ID)
		}
		var ledgerCount int64
		if err := db.Model(&models.WeeklyLedger{}).Where("user_id = ?", user.ID).Count(&ledgerCount).Error; err != nil {
			t.Fatalf("counting ledgers: %v", err)
		}
		if ledgerCount != 1 {
			t.Errorf("expected 1 ledger, got %d", ledgerCount)
		}
	})

	t.Run("clones_allocations_per_slice", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		clk := testutil.NewFakeClock(date(2027, 2, 10))
		gate := OwnerGate{}
		periods := NewPeriodService(db, clk, gate)
		ledgers := NewLedgerService(db, clk, gate, newTestNotifier(db))
		user := testutil.CreateTestUser(t, db)
		groceries := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		period, err := periods.CreatePeriod(user.ID, CreatePeriodInput{
			Name:        "February",
			PeriodType:  models.PeriodTypeMonthly,
			TotalAmount: 3000,
			Allocations: []AllocationInput{{CategoryID: groceries.ID, Amount: 2000}},
		})
		testutil.AssertNoError(t, err)

		ledger, err := ledgers.MaterializeFromPeriod(user.ID, period.ID, 1)
		testutil.AssertNoError(t, err)

		if len(ledger.Categories) != 1 {
			t.Fatalf("expected 1 ledger category, got %d", len(ledger.Categories))
		}
		lc := ledger.Categories[0]
		// 2000 over 4 slices.
		if lc.Allocation != 500 {
			t.Errorf("expected per-slice allocation 500, got %d", lc.Allocation)
		}
		if lc.Mode != models.AllocationModeLimited {
			t.Errorf("expected limited mode, got %s", lc.Mode)
		}
		if ledger.TotalAmount != 750 {
			t.Errorf("expected ledger total 750, got %d", ledger.TotalAmount)
		}
		if ledger.Remaining != 250 {
			t.Errorf("expected remaining headroom 250, got %d", ledger.Remaining)
		}
	})

	t.Run("started_slice_pulls_due_schedules", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		clk := testutil.NewFakeClock(date(2027, 2, 3))
		gate := OwnerGate{}
		periods := NewPeriodService(db, clk, gate)
		ledgers := NewLedgerService(db, clk, gate, newTestNotifier(db))
		user := testutil.CreateTestUser(t, db)
		bills := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		schedule := &models.PaymentSchedule{
			UserID:     user.ID,
			Name:       "Electricity",
			Amount:     120,
			CategoryID: bills.ID,
			DueDate:    date(2027, 2, 4),
			Frequency:  models.FrequencyMonthly,
			Status:     models.PaymentStatusPending,
			TxType:     models.TransactionTypeExpense,
		}
		if err := db.Create(schedule).Error; err != nil {
			t.Fatalf("creating schedule: %v", err)
		}

		period, err := periods.CreatePeriod(user.ID, CreatePeriodInput{
			Name:        "February",
			PeriodType:  models.PeriodTypeMonthly,
			TotalAmount: 3000,
		})
		testutil.AssertNoError(t, err)

		// Week 1 (Feb 1-8) has started; week 2 has not.
		week1, err := ledgers.MaterializeFromPeriod(user.ID, period.ID, 1)
		testutil.AssertNoError(t, err)
		week2, err := ledgers.MaterializeFromPeriod(user.ID, period.ID, 2)
		testutil.AssertNoError(t, err)

		var entry models.PaymentEntry
		if err := db.Where("schedule_id = ?", schedule.ID).First(&entry).Error; err != nil {
			t.Fatalf("expected the due schedule to appear as a ledger entry: %v", err)
		}
		if entry.LedgerID != week1.ID {
			t.Errorf("entry landed in ledger %s, expected %s", entry.LedgerID, week1.ID)
		}

		var reloaded models.PaymentSchedule
		if err := db.Where("id = ?", schedule.ID).First(&reloaded).Error; err != nil {
			t.Fatalf("reloading schedule: %v", err)
		}
		if reloaded.LedgerEntryID == nil || *reloaded.LedgerEntryID != entry.ID {
			t.Error("schedule should back-link its ledger entry")
		}

		var futureEntries int64
		if err := db.Model(&models.PaymentEntry{}).Where("ledger_id = ?", week2.ID).Count(&futureEntries).Error; err != nil {
			t.Fatalf("counting entries: %v", err)
		}
		if futureEntries != 0 {
			t.Errorf("future slice should start empty, got %d entries", futureEntries)
		}
	})

	t.Run("unknown_week_is_not_found", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		clk := testutil.NewFakeClock(date(2027, 2, 10))
		gate := OwnerGate{}
		periods := NewPeriodService(db, clk, gate)
		ledgers := NewLedgerService(db, clk, gate, newTestNotifier(db))
		user := testutil.CreateTestUser(t, db)

		period, err := periods.CreatePeriod(user.ID, CreatePeriodInput{
			Name:        "February",
			PeriodType:  models.PeriodTypeMonthly,
			TotalAmount: 3000,
		})
		testutil.AssertNoError(t, err)

		_, err = ledgers.MaterializeFromPeriod(user.ID, period.ID, 9)
		testutil.AssertAppError(t, err, "SLICE_NOT_FOUND")
	})
}

func TestEnsureLedgerFor(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	clk := testutil.NewFakeClock(date(2026, 6, 10))
	ledgers := NewLedgerService(db, clk, OwnerGate{}, newTestNotifier(db))
	user := testutil.CreateTestUser(t, db)

	// 2026-06-10 is a Wednesday; its week starts Monday 2026-06-08.
	ledger, err := ledgers.EnsureLedgerFor(user.ID, date(2026, 6, 10))
	testutil.AssertNoError(t, err)
	if !ledger.WeekStart.Equal(date(2026, 6, 8)) {
		t.Errorf("expected week start 2026-06-08, got %v", ledger.WeekStart)
	}
	if !ledger.WeekEnd.Equal(date(2026, 6, 15)) {
		t.Errorf("expected week end 2026-06-15, got %v", ledger.WeekEnd)
	}

	// Any date within the same week resolves to the same ledger.
	again, err := ledgers.EnsureLedgerFor(user.ID, date(2026, 6, 14))
	testutil.AssertNoError(t, err)
	if again.ID != ledger.ID {
		t.Errorf("expected the existing ledger, got a new one")
	}

	next, err := ledgers.EnsureLedgerFor(user.ID, date(2026, 6, 15))
	testutil.AssertNoError(t, err)
	if next.ID == ledger.ID {
		t.Error("the following Monday should open a new ledger")
	}
}

func TestEnsureLedgerForAdoptsClippedPlanLedger(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	clk := testutil.NewFakeClock(date(2026, 3, 4))
	gate := OwnerGate{}
	periods := NewPeriodService(db, clk, gate)
	ledgers := NewLedgerService(db, clk, gate, newTestNotifier(db))
	user := testutil.CreateTestUser(t, db)

	// A custom plan starting Wednesday 2026-03-04 clips its first slice
	// to a mid-week window, 2026-03-04 .. 2026-03-09.
	start, end := date(2026, 3, 4), date(2026, 3, 25)
	period, err := periods.CreatePeriod(user.ID, CreatePeriodInput{
		Name:        "Custom",
		PeriodType:  models.PeriodTypeCustom,
		StartDate:   &start,
		EndDate:     &end,
		TotalAmount: 2100,
	})
	testutil.AssertNoError(t, err)

	planLedger, err := ledgers.MaterializeFromPeriod(user.ID, period.ID, 1)
	testutil.AssertNoError(t, err)

	// A date inside the clipped window resolves to the plan ledger
	// instead of opening a second, Monday-aligned one.
	got, err := ledgers.EnsureLedgerFor(user.ID, date(2026, 3, 5))
	testutil.AssertNoError(t, err)
	if got.ID != planLedger.ID {
		t.Errorf("expected the plan ledger %s, got %s", planLedger.ID, got.ID)
	}

	var ledgerCount int64
	if err := db.Model(&models.WeeklyLedger{}).Where("user_id = ?", user.ID).Count(&ledgerCount).Error; err != nil {
		t.Fatalf("counting ledgers: %v", err)
	}
	if ledgerCount != 1 {
		t.Errorf("expected 1 ledger, got %d", ledgerCount)
	}
}

func TestAddPayment(t *testing.T) {
	t.Run("limited_category_enforces_allocation", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		clk := testutil.NewFakeClock(date(2026, 6, 10))
		ledgers := NewLedgerService(db, clk, OwnerGate{}, newTestNotifier(db))
		user := testutil.CreateTestUser(t, db)
		dining := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		ledger, err := ledgers.EnsureLedgerFor(user.ID, clk.Now())
		testutil.AssertNoError(t, err)
		_, err = ledgers.SetCategoryAllocation(user.ID, ledger.ID, dining.ID, 500, models.AllocationModeLimited)
		testutil.AssertNoError(t, err)

		_, err = ledgers.AddPayment(user.ID, ledger.ID, dining.ID, PaymentInput{
			Name: "Takeout", Amount: 480, ScheduledDate: clk.Now(),
		})
		testutil.AssertNoError(t, err)

		// 480 committed against 500: 30 overshoots, 20 lands exactly.
		_, err = ledgers.AddPayment(user.ID, ledger.ID, dining.ID, PaymentInput{
			Name: "Dessert", Amount: 30, ScheduledDate: clk.Now(),
		})
		testutil.AssertAppError(t, err, "OVER_ALLOCATION")

		_, err = ledgers.AddPayment(user.ID, ledger.ID, dining.ID, PaymentInput{
			Name: "Coffee", Amount: 20, ScheduledDate: clk.Now(),
		})
		testutil.AssertNoError(t, err)

		// Headroom is now zero; even the smallest payment is rejected.
		_, err = ledgers.AddPayment(user.ID, ledger.ID, dining.ID, PaymentInput{
			Name: "Gum", Amount: 1, ScheduledDate: clk.Now(),
		})
		testutil.AssertAppError(t, err, "OVER_ALLOCATION")

		report, err := ledgers.GetSpendingByCategory(user.ID, ledger.ID)
		testutil.AssertNoError(t, err)
		if len(report) != 1 {
			t.Fatalf("expected 1 category row, got %d", len(report))
		}
		if report[0].Scheduled != 500 {
			t.Errorf("expected 500 scheduled, got %d", report[0].Scheduled)
		}
		// Pending payments claim headroom too.
		if report[0].Remaining != 0 {
			t.Errorf("expected zero remaining headroom, got %d", report[0].Remaining)
		}
	})

	t.Run("cancelled_entries_release_headroom", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		clk := testutil.NewFakeClock(date(2026, 6, 10))
		ledgers := NewLedgerService(db, clk, OwnerGate{}, newTestNotifier(db))
		user := testutil.CreateTestUser(t, db)
		dining := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		ledger, err := ledgers.EnsureLedgerFor(user.ID, clk.Now())
		testutil.AssertNoError(t, err)
		_, err = ledgers.SetCategoryAllocation(user.ID, ledger.ID, dining.ID, 500, models.AllocationModeLimited)
		testutil.AssertNoError(t, err)

		entry, err := ledgers.AddPayment(user.ID, ledger.ID, dining.ID, PaymentInput{
			Name: "Takeout", Amount: 480, ScheduledDate: clk.Now(),
		})
		testutil.AssertNoError(t, err)

		if err := db.Model(entry).Update("status", models.PaymentStatusCancelled).Error; err != nil {
			t.Fatalf("cancelling entry: %v", err)
		}

		_, err = ledgers.AddPayment(user.ID, ledger.ID, dining.ID, PaymentInput{
			Name: "Replacement", Amount: 480, ScheduledDate: clk.Now(),
		})
		testutil.AssertNoError(t, err)
	})

	t.Run("unlimited_category_accepts_anything", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		clk := testutil.NewFakeClock(date(2026, 6, 10))
		ledgers := NewLedgerService(db, clk, OwnerGate{}, newTestNotifier(db))
		user := testutil.CreateTestUser(t, db)
		misc := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		ledger, err := ledgers.EnsureLedgerFor(user.ID, clk.Now())
		testutil.AssertNoError(t, err)
		_, err = ledgers.SetCategoryAllocation(user.ID, ledger.ID, misc.ID, 100, models.AllocationModeUnlimited)
		testutil.AssertNoError(t, err)

		_, err = ledgers.AddPayment(user.ID, ledger.ID, misc.ID, PaymentInput{
			Name: "Big purchase", Amount: 100000, ScheduledDate: clk.Now(),
		})
		testutil.AssertNoError(t, err)
	})

	t.Run("unset_category_accepts_anything", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		clk := testutil.NewFakeClock(date(2026, 6, 10))
		ledgers := NewLedgerService(db, clk, OwnerGate{}, newTestNotifier(db))
		user := testutil.CreateTestUser(t, db)
		misc := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		ledger, err := ledgers.EnsureLedgerFor(user.ID, clk.Now())
		testutil.AssertNoError(t, err)

		// No allocation set at all; the category row is created on the fly.
		_, err = ledgers.AddPayment(user.ID, ledger.ID, misc.ID, PaymentInput{
			Name: "First spend", Amount: 99999, ScheduledDate: clk.Now(),
		})
		testutil.AssertNoError(t, err)
	})

	t.Run("rejects_invalid_input", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		clk := testutil.NewFakeClock(date(2026, 6, 10))
		ledgers := NewLedgerService(db, clk, OwnerGate{}, newTestNotifier(db))
		user := testutil.CreateTestUser(t, db)
		misc := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

		ledger, err := ledgers.EnsureLedgerFor(user.ID, clk.Now())
		testutil.AssertNoError(t, err)

		_, err = ledgers.AddPayment(user.ID, ledger.ID, misc.ID, PaymentInput{Name: "Free", Amount: 0, ScheduledDate: clk.Now()})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
		_, err = ledgers.AddPayment(user.ID, ledger.ID, misc.ID, PaymentInput{Name: "", Amount: 10, ScheduledDate: clk.Now()})
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("foreign_ledger_is_forbidden", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		clk := testutil.NewFakeClock(date(2026, 6, 10))
		ledgers := NewLedgerService(db, clk, OwnerGate{}, newTestNotifier(db))
		owner := testutil.CreateTestUser(t, db)
		intruder := testutil.CreateTestUser(t, db)
		misc := testutil.CreateTestCategory(t, db, owner.ID, models.CategoryTypeExpense)

		ledger, err := ledgers.EnsureLedgerFor(owner.ID, clk.Now())
		testutil.AssertNoError(t, err)

		_, err = ledgers.AddPayment(intruder.ID, ledger.ID, misc.ID, PaymentInput{
			Name: "Sneaky", Amount: 10, ScheduledDate: clk.Now(),
		})
		testutil.AssertAppError(t, err, "FORBIDDEN")
	})
}

func TestCheckBudgetAlerts(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)
	clk := testutil.NewFakeClock(date(2026, 6, 10))
	ledgers := NewLedgerService(db, clk, OwnerGate{}, newTestNotifier(db))
	user := testutil.CreateTestUser(t, db)
	dining := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)

	ledger, err := ledgers.EnsureLedgerFor(user.ID, clk.Now())
	testutil.AssertNoError(t, err)
	_, err = ledgers.SetCategoryAllocation(user.ID, ledger.ID, dining.ID, 1000, models.AllocationModeLimited)
	testutil.AssertNoError(t, err)

	_, err = ledgers.AddPayment(user.ID, ledger.ID, dining.ID, PaymentInput{
		Name: "Groceries", Amount: 850, ScheduledDate: clk.Now(), Status: models.PaymentStatusPaid,
	})
	testutil.AssertNoError(t, err)

	fired, err := ledgers.CheckBudgetAlerts()
	testutil.AssertNoError(t, err)
	if fired != 1 {
		t.Fatalf("expected 1 alert at 80%%, got %d", fired)
	}
	if got := notificationCount(t, db, user.ID, models.NotificationBudgetAlert); got != 1 {
		t.Fatalf("expected 1 budget alert notification, got %d", got)
	}

	// Re-running the sweep fires nothing new.
	fired, err = ledgers.CheckBudgetAlerts()
	testutil.AssertNoError(t, err)
	if fired != 0 {
		t.Errorf("expected no repeat alert, got %d", fired)
	}

	// Crossing 100% fires the next level exactly once.
	_, err = ledgers.AddPayment(user.ID, ledger.ID, dining.ID, PaymentInput{
		Name: "More groceries", Amount: 150, ScheduledDate: clk.Now(), Status: models.PaymentStatusPaid,
	})
	testutil.AssertNoError(t, err)

	fired, err = ledgers.CheckBudgetAlerts()
	testutil.AssertNoError(t, err)
	if fired != 1 {
		t.Errorf("expected 1 alert at 100%%, got %d", fired)
	}
	fired, err = ledgers.CheckBudgetAlerts()
	testutil.AssertNoError(t, err)
	if fired != 0 {
		t.Errorf("expected no repeat alert after 100%%, got %d", fired)
	}
}
