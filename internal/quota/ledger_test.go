package quota_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"whatsapp-hub/internal/models"
	"whatsapp-hub/internal/quota"
)

type staticLimits struct {
	limits quota.Limits
}

func (s *staticLimits) Limits(string) (quota.Limits, error) {
	return s.limits, nil
}

type failingStore struct{}

func (failingStore) Load(string) ([]quota.Window, error) { return nil, errors.New("store down") }
func (failingStore) Save(string, quota.Window) error     { return errors.New("store down") }
func (failingStore) Reset(string) error                  { return errors.New("store down") }

type saveFailingStore struct{}

func (saveFailingStore) Load(string) ([]quota.Window, error) { return nil, nil }
func (saveFailingStore) Save(string, quota.Window) error     { return errors.New("store down") }
func (saveFailingStore) Reset(string) error                  { return nil }

type stubGuard struct {
	allowed bool
	allows  int
	refunds int
}

func (g *stubGuard) Allow(context.Context, string, int64) (bool, error) {
	g.allows++
	return g.allowed, nil
}

func (g *stubGuard) Refund(context.Context, string) error {
	g.refunds++
	return nil
}

type capturedQuota struct {
	tenantID  string
	snapshots []quota.ResourceSnapshot
}

type capturePublisher struct {
	published []capturedQuota
}

func (c *capturePublisher) PublishQuota(tenantID string, snapshots []quota.ResourceSnapshot) {
	c.published = append(c.published, capturedQuota{tenantID: tenantID, snapshots: snapshots})
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.QuotaWindow{}))
	return db
}

func newLedger(t *testing.T, limits quota.Limits, opts ...quota.Option) *quota.Ledger {
	t.Helper()
	store := quota.NewGormStore(testDB(t))
	return quota.NewLedger(store, &staticLimits{limits: limits}, opts...)
}

func snapshotFor(t *testing.T, l *quota.Ledger, tenantID string, kind quota.Kind) quota.ResourceSnapshot {
	t.Helper()
	snaps, err := l.Snapshot(tenantID)
	require.NoError(t, err)
	for _, s := range snaps {
		if s.Kind == kind {
			return s
		}
	}
	t.Fatalf("no snapshot for kind %s", kind)
	return quota.ResourceSnapshot{}
}

func TestTryConsume_DeniesAtDailyLimit(t *testing.T) {
	ledger := newLedger(t, quota.Limits{PerSecond: quota.Unlimited, PerDay: 5, PerMonth: quota.Unlimited})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, err := ledger.TryConsume(ctx, "t1")
		require.NoError(t, err)
		require.True(t, d.Allowed, "consume %d should be allowed", i+1)
	}

	d, err := ledger.TryConsume(ctx, "t1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, quota.KindDay, d.DeniedKind)
	assert.False(t, d.RetryAt.IsZero())

	// Denial never increments.
	assert.Equal(t, int64(5), snapshotFor(t, ledger, "t1", quota.KindDay).Used)
}

func TestTryConsume_ReportsTightestWindowFirst(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	ledger := newLedger(t, quota.Limits{PerSecond: 1, PerDay: 1, PerMonth: 1},
		quota.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	d, err := ledger.TryConsume(ctx, "t1")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = ledger.TryConsume(ctx, "t1")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	assert.Equal(t, quota.KindSecond, d.DeniedKind)
}

func TestTryConsume_ZeroLimitDeniesEverything(t *testing.T) {
	ledger := newLedger(t, quota.Limits{PerSecond: quota.Unlimited, PerDay: 0, PerMonth: quota.Unlimited})

	d, err := ledger.TryConsume(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, quota.KindDay, d.DeniedKind)
}

func TestTryConsume_UnlimitedShortCircuits(t *testing.T) {
	ledger := newLedger(t, quota.Limits{PerSecond: quota.Unlimited, PerDay: quota.Unlimited, PerMonth: quota.Unlimited})
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		d, err := ledger.TryConsume(ctx, "t1")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	snap := snapshotFor(t, ledger, "t1", quota.KindDay)
	assert.Equal(t, quota.Unlimited, snap.Limit)
	assert.False(t, snap.Warning)
	assert.Zero(t, snap.Percentage)
}

func TestWindowReset_OncePerBoundary(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	ledger := newLedger(t,
		quota.Limits{PerSecond: quota.Unlimited, PerDay: 2, PerMonth: 10},
		quota.WithClock(clock))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		d, err := ledger.TryConsume(ctx, "t1")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}
	d, err := ledger.TryConsume(ctx, "t1")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, quota.KindDay, d.DeniedKind)

	// Crossing the day boundary resets the day window only.
	now = now.AddDate(0, 0, 1)
	d, err = ledger.TryConsume(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), snapshotFor(t, ledger, "t1", quota.KindDay).Used)
	assert.Equal(t, int64(3), snapshotFor(t, ledger, "t1", quota.KindMonth).Used)
}

func TestWindowReset_SecondWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	ledger := newLedger(t,
		quota.Limits{PerSecond: 1, PerDay: quota.Unlimited, PerMonth: quota.Unlimited},
		quota.WithClock(clock))
	ctx := context.Background()

	d, err := ledger.TryConsume(ctx, "t1")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = ledger.TryConsume(ctx, "t1")
	require.NoError(t, err)
	require.False(t, d.Allowed)
	require.Equal(t, quota.KindSecond, d.DeniedKind)

	now = now.Add(time.Second)
	d, err = ledger.TryConsume(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRelease_RefundsReservation(t *testing.T) {
	ledger := newLedger(t, quota.Limits{PerSecond: quota.Unlimited, PerDay: 1, PerMonth: quota.Unlimited})
	ctx := context.Background()

	d, err := ledger.TryConsume(ctx, "t1")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	ledger.Release("t1")
	assert.Equal(t, int64(0), snapshotFor(t, ledger, "t1", quota.KindDay).Used)

	d, err = ledger.TryConsume(ctx, "t1")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestSnapshot_WarnsAtThreshold(t *testing.T) {
	ledger := newLedger(t, quota.Limits{PerSecond: quota.Unlimited, PerDay: 10, PerMonth: quota.Unlimited})
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		_, err := ledger.TryConsume(ctx, "t1")
		require.NoError(t, err)
	}
	assert.False(t, snapshotFor(t, ledger, "t1", quota.KindDay).Warning)

	_, err := ledger.TryConsume(ctx, "t1")
	require.NoError(t, err)

	snap := snapshotFor(t, ledger, "t1", quota.KindDay)
	assert.True(t, snap.Warning)
	assert.InDelta(t, 80.0, snap.Percentage, 0.01)
}

func TestTryConsume_FailsClosedOnStoreFault(t *testing.T) {
	ledger := quota.NewLedger(failingStore{}, &staticLimits{limits: quota.Limits{PerSecond: quota.Unlimited, PerDay: 5, PerMonth: quota.Unlimited}})

	d, err := ledger.TryConsume(context.Background(), "t1")
	require.Error(t, err)
	assert.False(t, d.Allowed)
}

func TestTryConsume_GuardDenialReportsSecondWindow(t *testing.T) {
	guard := &stubGuard{allowed: false}
	ledger := newLedger(t,
		quota.Limits{PerSecond: 5, PerDay: quota.Unlimited, PerMonth: quota.Unlimited},
		quota.WithSecondGuard(guard))

	d, err := ledger.TryConsume(context.Background(), "t1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, quota.KindSecond, d.DeniedKind)
	assert.Equal(t, 1, guard.allows)
	assert.Zero(t, guard.refunds)

	// The guard denial happened before any local increment.
	assert.Equal(t, int64(0), snapshotFor(t, ledger, "t1", quota.KindSecond).Used)
}

func TestTryConsume_PersistFailureRefundsGuard(t *testing.T) {
	guard := &stubGuard{allowed: true}
	ledger := quota.NewLedger(saveFailingStore{},
		&staticLimits{limits: quota.Limits{PerSecond: 5, PerDay: quota.Unlimited, PerMonth: quota.Unlimited}},
		quota.WithSecondGuard(guard))

	_, err := ledger.TryConsume(context.Background(), "t1")
	require.Error(t, err)
	assert.Equal(t, 1, guard.allows)
	assert.Equal(t, 1, guard.refunds)
}

func TestForceReset_ZeroesAllWindows(t *testing.T) {
	ledger := newLedger(t, quota.Limits{PerSecond: quota.Unlimited, PerDay: 5, PerMonth: 5})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := ledger.TryConsume(ctx, "t1")
		require.NoError(t, err)
	}

	require.NoError(t, ledger.ForceReset("t1"))
	assert.Equal(t, int64(0), snapshotFor(t, ledger, "t1", quota.KindDay).Used)
	assert.Equal(t, int64(0), snapshotFor(t, ledger, "t1", quota.KindMonth).Used)
}

func TestLedger_CountersSurviveRestart(t *testing.T) {
	db := testDB(t)
	limits := &staticLimits{limits: quota.Limits{PerSecond: quota.Unlimited, PerDay: 10, PerMonth: quota.Unlimited}}
	ctx := context.Background()

	first := quota.NewLedger(quota.NewGormStore(db), limits)
	for i := 0; i < 4; i++ {
		d, err := first.TryConsume(ctx, "t1")
		require.NoError(t, err)
		require.True(t, d.Allowed)
	}

	second := quota.NewLedger(quota.NewGormStore(db), limits)
	assert.Equal(t, int64(4), snapshotFor(t, second, "t1", quota.KindDay).Used)
}

func TestRecordUsage_PublishesSnapshot(t *testing.T) {
	pub := &capturePublisher{}
	ledger := newLedger(t,
		quota.Limits{PerSecond: quota.Unlimited, PerDay: 5, PerMonth: quota.Unlimited},
		quota.WithPublisher(pub))
	ctx := context.Background()

	d, err := ledger.TryConsume(ctx, "t1")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	ledger.RecordUsage("t1")
	require.Len(t, pub.published, 1)
	assert.Equal(t, "t1", pub.published[0].tenantID)
}

func TestTryConsume_TenantsAreIsolated(t *testing.T) {
	ledger := newLedger(t, quota.Limits{PerSecond: quota.Unlimited, PerDay: 1, PerMonth: quota.Unlimited})
	ctx := context.Background()

	d, err := ledger.TryConsume(ctx, "t1")
	require.NoError(t, err)
	require.True(t, d.Allowed)

	d, err = ledger.TryConsume(ctx, "t1")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	d, err = ledger.TryConsume(ctx, "t2")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
