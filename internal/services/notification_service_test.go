package services

import (
	"testing"
	"time"

	"gorm.io/gorm"

	"hearth/internal/models"
	"hearth/internal/pagination"
	"hearth/internal/testutil"
)

func createTestNotification(t *testing.T, db *gorm.DB, userID, title string) *models.Notification {
	t.Helper()
	n := &models.Notification{
		UserID: userID,
		Type:   models.NotificationBudgetAlert,
		Title:  title,
	}
	if err := db.Create(n).Error; err != nil {
		t.Fatalf("failed to create notification: %v", err)
	}
	return n
}

func TestGetUserNotifications(t *testing.T) {
	t.Run("unread_filter", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		clk := testutil.NewFakeClock(date(2026, 9, 1))
		svc := NewNotificationService(db, clk)
		user := testutil.CreateTestUser(t, db)

		createTestNotification(t, db, user.ID, "first")
		read := createTestNotification(t, db, user.ID, "second")
		when := clk.Now()
		db.Model(read).Update("read_at", when)

		page := pagination.PageRequest{Page: 1, PageSize: 20}
		all, err := svc.GetUserNotifications(user.ID, page, false)
		testutil.AssertNoError(t, err)
		if all.TotalItems != 2 {
			t.Errorf("expected 2 notifications, got %d", all.TotalItems)
		}

		unread, err := svc.GetUserNotifications(user.ID, page, true)
		testutil.AssertNoError(t, err)
		if unread.TotalItems != 1 {
			t.Errorf("expected 1 unread notification, got %d", unread.TotalItems)
		}
		if len(unread.Data) != 1 || unread.Data[0].Title != "first" {
			t.Error("expected only the unread notification")
		}
	})

	t.Run("scoped_to_user", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		clk := testutil.NewFakeClock(date(2026, 9, 1))
		svc := NewNotificationService(db, clk)
		user := testutil.CreateTestUser(t, db)
		other := testutil.CreateTestUser(t, db)

		createTestNotification(t, db, user.ID, "mine")
		createTestNotification(t, db, other.ID, "theirs")

		result, err := svc.GetUserNotifications(user.ID, pagination.PageRequest{Page: 1, PageSize: 20}, false)
		testutil.AssertNoError(t, err)
		if result.TotalItems != 1 {
			t.Errorf("expected 1 notification, got %d", result.TotalItems)
		}
	})
}

func TestMarkRead(t *testing.T) {
	t.Run("stamps_read_time_once", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		clk := testutil.NewFakeClock(date(2026, 9, 1))
		svc := NewNotificationService(db, clk)
		user := testutil.CreateTestUser(t, db)
		n := createTestNotification(t, db, user.ID, "alert")

		marked, err := svc.MarkRead(user.ID, n.ID)
		testutil.AssertNoError(t, err)
		if marked.ReadAt == nil || !marked.ReadAt.Equal(clk.Now()) {
			t.Fatalf("expected read_at %v, got %v", clk.Now(), marked.ReadAt)
		}

		// Marking again keeps the original timestamp.
		clk.Advance(time.Hour)
		again, err := svc.MarkRead(user.ID, n.ID)
		testutil.AssertNoError(t, err)
		if !again.ReadAt.Equal(*marked.ReadAt) {
			t.Errorf("expected read_at unchanged, got %v", again.ReadAt)
		}
	})

	t.Run("foreign_notification_not_found", func(t *testing.T) {
		db := testutil.SetupTestDB(t)
		defer testutil.TeardownTestDB(t, db)
		clk := testutil.NewFakeClock(date(2026, 9, 1))
		svc := NewNotificationService(db, clk)
		user := testutil.CreateTestUser(t, db)
		other := testutil.CreateTestUser(t, db)
		n := createTestNotification(t, db, other.ID, "private")

		_, err := svc.MarkRead(user.ID, n.ID)
		testutil.AssertAppError(t, err, "NOT_FOUND")
	})
}
