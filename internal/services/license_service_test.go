// internal/services/license_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solunex/core-backend/internal/models"
	"github.com/solunex/core-backend/internal/store"
)

type licenseFixture struct {
	store   *store.MemoryLicenseStore
	service *LicenseService
	now     time.Time
}

func newLicenseFixture(t *testing.T, allowRebind bool) *licenseFixture {
	t.Helper()

	f := &licenseFixture{
		store: store.NewMemoryLicenseStore(),
		now:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.service = NewLicenseService(f.store, nil, allowRebind)
	f.service.now = func() time.Time { return f.now }
	return f
}

func (f *licenseFixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
}

func (f *licenseFixture) seed(t *testing.T, license *models.License) *models.License {
	t.Helper()
	require.NoError(t, f.store.Insert(context.Background(), license))
	return license
}

func (f *licenseFixture) seedLicense(t *testing.T, key string, maxDevices int) *models.License {
	expiry := f.now.AddDate(1, 0, 0)
	return f.seed(t, &models.License{
		LicenseKey: key,
		UserEmail:  "user@example.com",
		AppID:      "solunex-desktop",
		Status:     models.LicenseStatusActive,
		ExpiresAt:  &expiry,
		MaxDevices: maxDevices,
	})
}

func TestValidateNotFound(t *testing.T) {
	f := newLicenseFixture(t, true)

	result, err := f.service.Validate(context.Background(), "SOL-XXXX-XXXX-XXXX-XXXX-00", "", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotFound, result.Outcome)
	assert.Nil(t, result.License)
	assert.False(t, result.Valid())
}

func TestValidateUnboundLicenseValidatesFreely(t *testing.T) {
	f := newLicenseFixture(t, true)
	f.seedLicense(t, "SOL-AAAA-BBBB-CCCC-12", 1)

	result, err := f.service.Validate(context.Background(), "SOL-AAAA-BBBB-CCCC-12", "", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeActive, result.Outcome)
	assert.True(t, result.Valid())

	// Validation never binds
	stored, err := f.store.FindByKey(context.Background(), "SOL-AAAA-BBBB-CCCC-12")
	require.NoError(t, err)
	assert.Empty(t, stored.BoundDevices)
	assert.NotNil(t, stored.LastVerified, "last_verified must be touched")
}

func TestValidateAppMismatch(t *testing.T) {
	f := newLicenseFixture(t, true)
	f.seedLicense(t, "SOL-AAAA-BBBB-CCCC-12", 1)

	result, err := f.service.Validate(context.Background(), "SOL-AAAA-BBBB-CCCC-12", "", "other-app")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAppMismatch, result.Outcome)
}

func TestValidateBoundLicenseRequiresDevice(t *testing.T) {
	f := newLicenseFixture(t, true)
	f.seedLicense(t, "SOL-AAAA-BBBB-CCCC-12", 1)

	_, err := f.service.Activate(context.Background(), "SOL-AAAA-BBBB-CCCC-12", "DEV-1", nil, "")
	require.NoError(t, err)

	result, err := f.service.Validate(context.Background(), "SOL-AAAA-BBBB-CCCC-12", "", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRequiresDevice, result.Outcome)
}

// Single-seat transfer: activating a second device evicts the first,
// and the evicted device no longer validates as Active.
func TestSingleSeatOverride(t *testing.T) {
	f := newLicenseFixture(t, true)
	f.seedLicense(t, "SOL-AAAA-BBBB-CCCC-12", 1)
	ctx := context.Background()

	result, err := f.service.Activate(ctx, "SOL-AAAA-BBBB-CCCC-12", "DEV-1", nil, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeActive, result.Outcome)
	require.Len(t, result.License.BoundDevices, 1)
	assert.Equal(t, "DEV-1", result.License.BoundDevices[0].DeviceID)

	result, err = f.service.Activate(ctx, "SOL-AAAA-BBBB-CCCC-12", "DEV-2", nil, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeActive, result.Outcome)
	require.Len(t, result.License.BoundDevices, 1)
	assert.Equal(t, "DEV-2", result.License.BoundDevices[0].DeviceID)

	// The evicted device sees the slot occupied but reachable
	result, err = f.service.Validate(ctx, "SOL-AAAA-BBBB-CCCC-12", "DEV-1", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCanBind, result.Outcome)

	result, err = f.service.Validate(ctx, "SOL-AAAA-BBBB-CCCC-12", "DEV-2", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeActive, result.Outcome)
}

func TestSingleSeatOverrideDisabledByPolicy(t *testing.T) {
	f := newLicenseFixture(t, false)
	f.seedLicense(t, "SOL-AAAA-BBBB-CCCC-12", 1)
	ctx := context.Background()

	_, err := f.service.Activate(ctx, "SOL-AAAA-BBBB-CCCC-12", "DEV-1", nil, "")
	require.NoError(t, err)

	result, err := f.service.Activate(ctx, "SOL-AAAA-BBBB-CCCC-12", "DEV-2", nil, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeviceLimitReached, result.Outcome)

	// DEV-1 stays bound
	stored, err := f.store.FindByKey(ctx, "SOL-AAAA-BBBB-CCCC-12")
	require.NoError(t, err)
	require.Len(t, stored.BoundDevices, 1)
	assert.Equal(t, "DEV-1", stored.BoundDevices[0].DeviceID)
}

func TestMultiSeatLimitNoMutation(t *testing.T) {
	f := newLicenseFixture(t, true)
	f.seedLicense(t, "SOL-AAAA-BBBB-CCCC-12", 2)
	ctx := context.Background()

	for _, dev := range []string{"DEV-1", "DEV-2"} {
		result, err := f.service.Activate(ctx, "SOL-AAAA-BBBB-CCCC-12", dev, nil, "")
		require.NoError(t, err)
		assert.Equal(t, OutcomeActive, result.Outcome)
	}

	result, err := f.service.Activate(ctx, "SOL-AAAA-BBBB-CCCC-12", "DEV-3", nil, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeDeviceLimitReached, result.Outcome)

	stored, err := f.store.FindByKey(ctx, "SOL-AAAA-BBBB-CCCC-12")
	require.NoError(t, err)
	assert.Len(t, stored.BoundDevices, 2, "failed bind must not mutate the device list")
}

func TestUnlimitedSeats(t *testing.T) {
	f := newLicenseFixture(t, true)
	f.seedLicense(t, "SOL-AAAA-BBBB-CCCC-12", 0)
	ctx := context.Background()

	for i, dev := range []string{"DEV-1", "DEV-2", "DEV-3", "DEV-4", "DEV-5"} {
		result, err := f.service.Activate(ctx, "SOL-AAAA-BBBB-CCCC-12", dev, nil, "")
		require.NoError(t, err)
		assert.Equal(t, OutcomeActive, result.Outcome)
		assert.Len(t, result.License.BoundDevices, i+1)
	}
}

func TestReactivationRefreshesBinding(t *testing.T) {
	f := newLicenseFixture(t, true)
	f.seedLicense(t, "SOL-AAAA-BBBB-CCCC-12", 1)
	ctx := context.Background()

	_, err := f.service.Activate(ctx, "SOL-AAAA-BBBB-CCCC-12", "DEV-1", map[string]string{"os": "linux"}, "")
	require.NoError(t, err)

	f.advance(time.Hour)

	result, err := f.service.Activate(ctx, "SOL-AAAA-BBBB-CCCC-12", "DEV-1", map[string]string{"os": "windows"}, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeActive, result.Outcome)
	require.Len(t, result.License.BoundDevices, 1)
	assert.Equal(t, "windows", result.License.BoundDevices[0].Meta["os"])
	assert.Equal(t, f.now, result.License.BoundDevices[0].LastSeen)
}

func TestLazyExpiryPersists(t *testing.T) {
	f := newLicenseFixture(t, true)
	f.seedLicense(t, "SOL-AAAA-BBBB-CCCC-12", 1)
	ctx := context.Background()

	f.advance(2 * 365 * 24 * time.Hour)

	result, err := f.service.Validate(ctx, "SOL-AAAA-BBBB-CCCC-12", "", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, result.Outcome)

	// The transition is persisted, not recomputed per call
	stored, err := f.store.FindByKey(ctx, "SOL-AAAA-BBBB-CCCC-12")
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusExpired, stored.Status)

	// And stays expired on subsequent calls
	result, err = f.service.Validate(ctx, "SOL-AAAA-BBBB-CCCC-12", "", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, result.Outcome)
}

func TestActivateExpiredLicense(t *testing.T) {
	f := newLicenseFixture(t, true)
	f.seedLicense(t, "SOL-AAAA-BBBB-CCCC-12", 1)
	ctx := context.Background()

	f.advance(2 * 365 * 24 * time.Hour)

	result, err := f.service.Activate(ctx, "SOL-AAAA-BBBB-CCCC-12", "DEV-1", nil, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeExpired, result.Outcome)

	stored, err := f.store.FindByKey(ctx, "SOL-AAAA-BBBB-CCCC-12")
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusExpired, stored.Status)
	assert.Empty(t, stored.BoundDevices)
}

func TestRevocationIsTerminal(t *testing.T) {
	f := newLicenseFixture(t, true)
	f.seedLicense(t, "SOL-AAAA-BBBB-CCCC-12", 1)
	ctx := context.Background()

	require.NoError(t, f.service.Revoke(ctx, "SOL-AAAA-BBBB-CCCC-12", "chargeback"))

	result, err := f.service.Validate(ctx, "SOL-AAAA-BBBB-CCCC-12", "DEV-1", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRevoked, result.Outcome)

	result, err = f.service.Activate(ctx, "SOL-AAAA-BBBB-CCCC-12", "DEV-1", nil, "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeRevoked, result.Outcome)

	_, err = f.service.Renew(ctx, "SOL-AAAA-BBBB-CCCC-12", 30)
	assert.ErrorIs(t, err, ErrLicenseRevoked)

	stored, err := f.store.FindByKey(ctx, "SOL-AAAA-BBBB-CCCC-12")
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusRevoked, stored.Status)
	assert.Equal(t, "chargeback", stored.Meta["revocation_reason"])
}

func TestRevokeIdempotent(t *testing.T) {
	f := newLicenseFixture(t, true)
	f.seedLicense(t, "SOL-AAAA-BBBB-CCCC-12", 1)
	ctx := context.Background()

	require.NoError(t, f.service.Revoke(ctx, "SOL-AAAA-BBBB-CCCC-12", "first"))
	require.NoError(t, f.service.Revoke(ctx, "SOL-AAAA-BBBB-CCCC-12", "second"))

	stored, err := f.store.FindByKey(ctx, "SOL-AAAA-BBBB-CCCC-12")
	require.NoError(t, err)
	assert.Equal(t, "first", stored.Meta["revocation_reason"], "second revoke must not overwrite")
}

func TestRenewExtendsFromExpiry(t *testing.T) {
	f := newLicenseFixture(t, true)
	license := f.seedLicense(t, "SOL-AAAA-BBBB-CCCC-12", 1)
	originalExpiry := *license.ExpiresAt

	renewed, err := f.service.Renew(context.Background(), "SOL-AAAA-BBBB-CCCC-12", 30)
	require.NoError(t, err)

	// Future expiry extends from the expiry, not from now
	assert.Equal(t, originalExpiry.AddDate(0, 0, 30), renewed.ExpiresAt.UTC())
}

func TestRenewRevivesExpiredLicense(t *testing.T) {
	f := newLicenseFixture(t, true)
	f.seedLicense(t, "SOL-AAAA-BBBB-CCCC-12", 1)
	ctx := context.Background()

	f.advance(2 * 365 * 24 * time.Hour)

	_, err := f.service.Validate(ctx, "SOL-AAAA-BBBB-CCCC-12", "", "")
	require.NoError(t, err)

	renewed, err := f.service.Renew(ctx, "SOL-AAAA-BBBB-CCCC-12", 30)
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusActive, renewed.Status)

	// Past expiry extends from now
	assert.Equal(t, f.now.AddDate(0, 0, 30), renewed.ExpiresAt.UTC())

	result, err := f.service.Validate(ctx, "SOL-AAAA-BBBB-CCCC-12", "", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeActive, result.Outcome)
}

func TestRenewNotFound(t *testing.T) {
	f := newLicenseFixture(t, true)

	_, err := f.service.Renew(context.Background(), "SOL-MISSING-00", 30)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// raceyStore lets a status transition commit between Validate's read
// and its lock-free last_verified touch.
type raceyStore struct {
	*store.MemoryLicenseStore
	afterRead func()
}

func (s *raceyStore) FindByKey(ctx context.Context, key string) (*models.License, error) {
	license, err := s.MemoryLicenseStore.FindByKey(ctx, key)
	if err == nil && s.afterRead != nil {
		fn := s.afterRead
		s.afterRead = nil
		fn()
	}
	return license, err
}

// A revoke that lands between Validate's read and its touch must stick:
// the touch path writes last_verified only and can never drag the
// status back to the stale snapshot.
func TestValidateTouchCannotResurrectRevokedLicense(t *testing.T) {
	inner := store.NewMemoryLicenseStore()
	racey := &raceyStore{MemoryLicenseStore: inner}
	service := NewLicenseService(racey, nil, true)
	ctx := context.Background()

	expiry := time.Now().UTC().AddDate(1, 0, 0)
	require.NoError(t, inner.Insert(ctx, &models.License{
		LicenseKey: "SOL-AAAA-BBBB-CCCC-12",
		UserEmail:  "user@example.com",
		AppID:      "solunex-desktop",
		Status:     models.LicenseStatusActive,
		ExpiresAt:  &expiry,
		MaxDevices: 1,
	}))

	racey.afterRead = func() {
		_, err := inner.UpdateWithLock(ctx, "SOL-AAAA-BBBB-CCCC-12", func(l *models.License) error {
			l.Status = models.LicenseStatusRevoked
			return nil
		})
		require.NoError(t, err)
	}

	result, err := service.Validate(ctx, "SOL-AAAA-BBBB-CCCC-12", "", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeActive, result.Outcome, "the stale read still reports active")

	stored, err := inner.FindByKey(ctx, "SOL-AAAA-BBBB-CCCC-12")
	require.NoError(t, err)
	assert.Equal(t, models.LicenseStatusRevoked, stored.Status, "revocation is terminal")
	assert.NotNil(t, stored.LastVerified)
}

func TestLicenseWithoutExpiryNeverExpires(t *testing.T) {
	f := newLicenseFixture(t, true)
	f.seed(t, &models.License{
		LicenseKey: "SOL-PERP-ETUA-L000-00",
		UserEmail:  "user@example.com",
		AppID:      "solunex-desktop",
		Status:     models.LicenseStatusActive,
		MaxDevices: 1,
	})

	f.advance(20 * 365 * 24 * time.Hour)

	result, err := f.service.Validate(context.Background(), "SOL-PERP-ETUA-L000-00", "", "")
	require.NoError(t, err)
	assert.Equal(t, OutcomeActive, result.Outcome)
}
