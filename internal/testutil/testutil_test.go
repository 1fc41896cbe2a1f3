package testutil_test

import (
	"testing"
	"time"

	"hearth/internal/errors"
	"hearth/internal/models"
	"hearth/internal/testutil"
)

func TestSetupTestDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	// Verify all tables exist by doing a simple count query on each model.
	var count int64
	for _, table := range []string{
		"users", "categories", "period_budgets", "period_allocations",
		"weekly_slices", "weekly_ledgers", "ledger_categories",
		"payment_entries", "payment_schedules", "transactions",
		"notifications", "audit_logs",
	} {
		if err := db.Table(table).Count(&count).Error; err != nil {
			t.Errorf("table %q should exist after migration: %v", table, err)
		}
	}
}

func TestFixtures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	defer testutil.TeardownTestDB(t, db)

	user := testutil.CreateTestUser(t, db)
	if user.ID == "" {
		t.Fatal("user should have a non-empty ID")
	}

	category := testutil.CreateTestCategory(t, db, user.ID, models.CategoryTypeExpense)
	if category.Type != models.CategoryTypeExpense {
		t.Errorf("expected expense category, got %s", category.Type)
	}

	tx := testutil.CreateTestTransaction(t, db, user.ID, models.TransactionTypeIncome, 1000, time.Now())
	if tx.Amount != 1000 {
		t.Errorf("expected amount 1000, got %d", tx.Amount)
	}

	weekStart := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	ledger := testutil.CreateTestLedger(t, db, user.ID, weekStart, 50000)
	if !ledger.WeekEnd.Equal(weekStart.AddDate(0, 0, 7)) {
		t.Errorf("expected week end %v, got %v", weekStart.AddDate(0, 0, 7), ledger.WeekEnd)
	}
}

func TestFakeClock(t *testing.T) {
	start := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	clk := testutil.NewFakeClock(start)
	if !clk.Now().Equal(start) {
		t.Errorf("expected %v, got %v", start, clk.Now())
	}

	clk.Advance(48 * time.Hour)
	if !clk.Now().Equal(start.Add(48 * time.Hour)) {
		t.Errorf("expected %v, got %v", start.Add(48*time.Hour), clk.Now())
	}
}

func TestAssertAppError(t *testing.T) {
	err := errors.WithMessage(errors.ErrLedgerNotFound, "custom message")
	testutil.AssertAppError(t, err, "LEDGER_NOT_FOUND")
}

func TestAssertNoError(t *testing.T) {
	testutil.AssertNoError(t, nil)
}
