package tenant_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"whatsapp-hub/internal/models"
	"whatsapp-hub/internal/quota"
	"whatsapp-hub/internal/tenant"
)

func testRegistry(t *testing.T) *tenant.Registry {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Tenant{}))
	return tenant.NewRegistry(db, nil)
}

func TestCreateAndGet(t *testing.T) {
	r := testRegistry(t)

	created, err := r.Create("acme", "starter", quota.Limits{PerSecond: 10, PerDay: 1000, PerMonth: 10000})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	got, err := r.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Name)
	assert.True(t, got.Enabled)
	assert.Empty(t, got.PhoneNumberID)
}

func TestGet_Missing(t *testing.T) {
	r := testRegistry(t)
	_, err := r.Get("nope")
	require.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestAssignPhoneNumber_ExactlyOnce(t *testing.T) {
	r := testRegistry(t)
	created, err := r.Create("acme", "starter", quota.Limits{})
	require.NoError(t, err)

	require.NoError(t, r.AssignPhoneNumber(created.ID, "phone-123"))

	got, err := r.FindByPhoneNumberID("phone-123")
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	err = r.AssignPhoneNumber(created.ID, "phone-456")
	require.ErrorIs(t, err, tenant.ErrPhoneAssigned)
}

func TestAssignPhoneNumber_UniqueAcrossTenants(t *testing.T) {
	r := testRegistry(t)
	first, err := r.Create("acme", "starter", quota.Limits{})
	require.NoError(t, err)
	second, err := r.Create("globex", "starter", quota.Limits{})
	require.NoError(t, err)

	require.NoError(t, r.AssignPhoneNumber(first.ID, "phone-123"))
	err = r.AssignPhoneNumber(second.ID, "phone-123")
	require.ErrorIs(t, err, tenant.ErrPhoneTaken)
}

func TestFindByPhoneNumberID_Unassigned(t *testing.T) {
	r := testRegistry(t)
	_, err := r.FindByPhoneNumberID("phone-999")
	require.ErrorIs(t, err, tenant.ErrNotFound)
}

func TestSetPlanUpdatesLimits(t *testing.T) {
	r := testRegistry(t)
	created, err := r.Create("acme", "starter", quota.Limits{PerSecond: 1, PerDay: 10, PerMonth: 100})
	require.NoError(t, err)

	require.NoError(t, r.SetPlan(created.ID, "growth", quota.Limits{PerSecond: 5, PerDay: 500, PerMonth: quota.Unlimited}))

	limits, err := r.Limits(created.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), limits.PerSecond)
	assert.Equal(t, int64(500), limits.PerDay)
	assert.Equal(t, quota.Unlimited, limits.PerMonth)

	got, err := r.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "growth", got.PlanName)
}

func TestSetEnabled(t *testing.T) {
	r := testRegistry(t)
	created, err := r.Create("acme", "starter", quota.Limits{})
	require.NoError(t, err)

	require.NoError(t, r.SetEnabled(created.ID, false))
	got, err := r.Get(created.ID)
	require.NoError(t, err)
	assert.False(t, got.Enabled)
}
