package storage_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ogulcanaydogan/orbit-alerts/pkg/model"
	"github.com/ogulcanaydogan/orbit-alerts/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *storage.SQLStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := storage.NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newAlert(userID, token string) *model.Alert {
	return &model.Alert{
		UserID:      userID,
		Token:       token,
		Condition:   model.ConditionAbove,
		TargetPrice: 50000,
		Active:      true,
		Channels:    model.ChannelList{model.ChannelInApp, model.ChannelEmail},
	}
}

func TestSQLStore_CreateAndGetAlert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	alert := newAlert("user-1", " btc ")
	require.NoError(t, db.CreateAlert(ctx, alert))
	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, "BTC", alert.Token)

	got, err := db.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, model.ConditionAbove, got.Condition)
	assert.InDelta(t, 50000, got.TargetPrice, 1e-9)
	assert.True(t, got.Active)
	assert.Equal(t, model.ChannelList{model.ChannelInApp, model.ChannelEmail}, got.Channels)
	assert.Nil(t, got.LastTriggered)
}

func TestSQLStore_CreateAlert_Invalid(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	alert := newAlert("user-1", "BTC")
	alert.TargetPrice = 0
	require.Error(t, db.CreateAlert(ctx, alert))

	alert = newAlert("user-1", "BTC")
	alert.Channels = nil
	require.Error(t, db.CreateAlert(ctx, alert))
}

func TestSQLStore_GetAlert_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetAlert(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLStore_ListActiveAlerts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a := newAlert("user-1", "BTC")
	b := newAlert("user-2", "ETH")
	c := newAlert("user-1", "SOL")
	for _, alert := range []*model.Alert{a, b, c} {
		require.NoError(t, db.CreateAlert(ctx, alert))
	}
	require.NoError(t, db.SetAlertActive(ctx, "user-1", c.ID, false))

	active, err := db.ListActiveAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)

	ids := []string{active[0].ID, active[1].ID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)

	mine, err := db.ListAlerts(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, mine, 2)
}

func TestSQLStore_SetAlertActive_WrongUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	alert := newAlert("user-1", "BTC")
	require.NoError(t, db.CreateAlert(ctx, alert))

	err := db.SetAlertActive(ctx, "user-2", alert.ID, false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLStore_DeleteAlert(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	alert := newAlert("user-1", "BTC")
	require.NoError(t, db.CreateAlert(ctx, alert))
	require.NoError(t, db.DeleteAlert(ctx, "user-1", alert.ID))

	_, err := db.GetAlert(ctx, alert.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, db.DeleteAlert(ctx, "user-1", alert.ID), storage.ErrNotFound)
}

func TestSQLStore_UpdateTriggered(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	alert := newAlert("user-1", "BTC")
	other := newAlert("user-1", "ETH")
	require.NoError(t, db.CreateAlert(ctx, alert))
	require.NoError(t, db.CreateAlert(ctx, other))

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, db.UpdateTriggered(ctx, alert.ID, at))

	got, err := db.GetAlert(ctx, alert.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastTriggered)
	assert.True(t, at.Equal(*got.LastTriggered))
	assert.True(t, at.Equal(got.UpdatedAt))
	assert.True(t, got.Active)
	assert.InDelta(t, 50000, got.TargetPrice, 1e-9)

	untouched, err := db.GetAlert(ctx, other.ID)
	require.NoError(t, err)
	assert.Nil(t, untouched.LastTriggered)
}

func TestSQLStore_UpdateTriggered_NotFound(t *testing.T) {
	db := newTestDB(t)

	err := db.UpdateTriggered(context.Background(), "missing", time.Now())
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSQLStore_Preferences(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	_, err := db.GetPreferences(ctx, "user-1")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	prefs := &model.Preferences{
		UserID:   "user-1",
		Email:    "a@b.com",
		Channels: model.ChannelList{model.ChannelInApp, model.ChannelEmail},
	}
	require.NoError(t, db.UpsertPreferences(ctx, prefs))

	got, err := db.GetPreferences(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "a@b.com", got.Email)
	assert.Empty(t, got.PhoneNumber)
	assert.Equal(t, prefs.Channels, got.Channels)

	prefs.PhoneNumber = "+15551234567"
	prefs.Channels = model.ChannelList{model.ChannelSMS}
	require.NoError(t, db.UpsertPreferences(ctx, prefs))

	got, err = db.GetPreferences(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", got.PhoneNumber)
	assert.Equal(t, model.ChannelList{model.ChannelSMS}, got.Channels)
}

func TestSQLStore_UpsertPreferences_Invalid(t *testing.T) {
	db := newTestDB(t)

	prefs := &model.Preferences{
		UserID:   "user-1",
		Email:    "not-an-email",
		Channels: model.ChannelList{model.ChannelEmail},
	}
	assert.Error(t, db.UpsertPreferences(context.Background(), prefs))
}

func TestSQLStore_Notifications(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	var ids []string
	for i := 0; i < 3; i++ {
		n := &model.InboxNotification{
			UserID:       "user-1",
			AlertID:      "alert-1",
			Title:        "BTC Price Alert",
			Message:      "BTC is now above $50,000.00",
			Token:        "BTC",
			Condition:    model.ConditionAbove,
			TargetPrice:  50000,
			CurrentPrice: 51000,
			CreatedAt:    base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.CreateNotification(ctx, n))
		assert.Equal(t, "price_alert", n.Type)
		ids = append(ids, n.ID)
	}
	require.NoError(t, db.CreateNotification(ctx, &model.InboxNotification{
		UserID: "user-2", AlertID: "alert-2", Title: "t", Message: "m", Token: "ETH",
		Condition: model.ConditionBelow, TargetPrice: 1, CurrentPrice: 1,
	}))

	list, err := db.ListNotifications(ctx, "user-1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID)
	assert.False(t, list[0].Read)

	n, err := db.MarkNotificationsRead(ctx, "user-1", []string{ids[0], ids[1]})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = db.MarkNotificationsRead(ctx, "user-2", []string{ids[2]})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = db.MarkAllNotificationsRead(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	list, err = db.ListNotifications(ctx, "user-1", 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, item := range list {
		assert.True(t, item.Read)
		assert.NotNil(t, item.ReadAt)
	}
}

func TestSQLStore_Cleanup(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	old := &model.InboxNotification{
		UserID: "user-1", AlertID: "a", Title: "t", Message: "m", Token: "BTC",
		Condition: model.ConditionAbove, TargetPrice: 1, CurrentPrice: 1,
		CreatedAt: now.Add(-31 * 24 * time.Hour),
	}
	fresh := &model.InboxNotification{
		UserID: "user-1", AlertID: "a", Title: "t", Message: "m", Token: "BTC",
		Condition: model.ConditionAbove, TargetPrice: 1, CurrentPrice: 1,
		CreatedAt: now.Add(-time.Hour),
	}
	require.NoError(t, db.CreateNotification(ctx, old))
	require.NoError(t, db.CreateNotification(ctx, fresh))

	stale := newAlert("user-1", "BTC")
	stale.Active = false
	stale.CreatedAt = now.Add(-91 * 24 * time.Hour)
	staleActive := newAlert("user-1", "ETH")
	staleActive.CreatedAt = now.Add(-91 * 24 * time.Hour)
	recentInactive := newAlert("user-1", "SOL")
	recentInactive.Active = false
	for _, a := range []*model.Alert{stale, staleActive, recentInactive} {
		require.NoError(t, db.CreateAlert(ctx, a))
	}

	result, err := db.Cleanup(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.DeletedNotifications)
	assert.Equal(t, int64(1), result.DeletedAlerts)

	_, err = db.GetAlert(ctx, stale.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = db.GetAlert(ctx, staleActive.ID)
	assert.NoError(t, err)
	_, err = db.GetAlert(ctx, recentInactive.ID)
	assert.NoError(t, err)
}

func TestSQLStore_CleanupArchivesQuietAlerts(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	quiet := newAlert("user-1", "BTC")
	recent := newAlert("user-1", "ETH")
	never := newAlert("user-1", "SOL")
	for _, a := range []*model.Alert{quiet, recent, never} {
		require.NoError(t, db.CreateAlert(ctx, a))
	}
	require.NoError(t, db.UpdateTriggered(ctx, quiet.ID, now.Add(-31*24*time.Hour)))
	require.NoError(t, db.UpdateTriggered(ctx, recent.ID, now.Add(-24*time.Hour)))

	result, err := db.Cleanup(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.ArchivedAlerts)
	assert.Equal(t, int64(0), result.DeletedAlerts)

	got, err := db.GetAlert(ctx, quiet.ID)
	require.NoError(t, err)
	assert.True(t, got.Archived)
	assert.True(t, got.Active)
	for _, id := range []string{recent.ID, never.ID} {
		got, err := db.GetAlert(ctx, id)
		require.NoError(t, err)
		assert.False(t, got.Archived, id)
	}

	active, err := db.ListActiveAlerts(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 3)

	result, err = db.Cleanup(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.ArchivedAlerts)
}

func TestSQLStore_ReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	db, err := storage.NewSQLite(dbPath)
	require.NoError(t, err)
	alert := newAlert("user-1", "BTC")
	require.NoError(t, db.CreateAlert(ctx, alert))
	require.NoError(t, db.Close())

	db, err = storage.NewSQLite(dbPath)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.GetAlert(ctx, alert.ID)
	assert.NoError(t, err)
	assert.NoError(t, db.Ping(ctx))
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := storage.Open("mysql", "dsn")
	assert.Error(t, err)
}
