package delivery_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/internal/config"
	"ampere/internal/core"
	"ampere/internal/delivery"
	"ampere/internal/identity"
	"ampere/internal/store"
)

type fixture struct {
	verifier *delivery.Verifier
	store    *store.Memory
	registry *identity.Registry
	device   core.Hash
	orderID  core.Hash
	order    *core.Order
	clock    time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st := store.NewMemory()
	registry := identity.NewRegistry()
	require.NoError(t, registry.RegisterUser("seller", identity.Prosumer))
	device, err := registry.RegisterDevice("seller", identity.SmartMeter, 500)
	require.NoError(t, err)

	cfg := config.Default()
	orderID := core.HashOf([]byte("order"))
	return &fixture{
		verifier: delivery.NewVerifier(st, registry, cfg.Tolerance, cfg.Bounds),
		store:    st,
		registry: registry,
		device:   device,
		orderID:  orderID,
		order:    &core.Order{ID: orderID, EnergyAmount: 100},
		clock:    time.Unix(1_700_000_000, 0),
	}
}

func (f *fixture) sample(delta int64) core.Measurement {
	f.clock = f.clock.Add(time.Minute)
	return core.Measurement{
		DeviceID:      f.device,
		Timestamp:     f.clock,
		EnergyDelta:   delta,
		GridFrequency: 5000,
		Voltage:       230,
	}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	_, err := f.verifier.Start(f.orderID, f.clock)
	require.NoError(t, err)
}

func TestStart_OnlyOnce(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	_, err := f.verifier.Start(f.orderID, f.clock)
	assert.ErrorIs(t, err, core.ErrTransferAlreadyStarted)
}

func TestStart_RejectedAfterTerminalRecord(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	_, err := f.verifier.Fail(f.orderID, "meter offline")
	require.NoError(t, err)

	// The window never reopens, even after failure.
	_, err = f.verifier.Start(f.orderID, f.clock)
	assert.ErrorIs(t, err, core.ErrTransferAlreadyStarted)
}

func TestRecord_RequiresOpenWindow(t *testing.T) {
	f := newFixture(t)

	_, err := f.verifier.Record(f.orderID, f.sample(10))
	assert.ErrorIs(t, err, core.ErrTransferNotFound)
}

func TestRecord_AccumulatesEnergy(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	rec, err := f.verifier.Record(f.orderID, f.sample(40))
	require.NoError(t, err)
	assert.Equal(t, uint64(40), rec.EnergyDelivered)

	rec, err = f.verifier.Record(f.orderID, f.sample(35))
	require.NoError(t, err)
	assert.Equal(t, uint64(75), rec.EnergyDelivered)
	assert.Len(t, rec.Samples, 2)
}

func TestRecord_RejectsUnknownDevice(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	m := f.sample(10)
	m.DeviceID = core.HashOf([]byte("rogue"))
	_, err := f.verifier.Record(f.orderID, m)
	assert.ErrorIs(t, err, core.ErrDeviceNotAuthorized)
}

func TestRecord_RejectsInactiveDevice(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	require.NoError(t, f.registry.SetDeviceActive(f.device, false))

	_, err := f.verifier.Record(f.orderID, f.sample(10))
	assert.ErrorIs(t, err, core.ErrDeviceNotAuthorized)
}

func TestRecord_PlausibilityBounds(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	for _, tc := range []struct {
		name   string
		mutate func(*core.Measurement)
	}{
		{"negative delta", func(m *core.Measurement) { m.EnergyDelta = -5 }},
		{"frequency low", func(m *core.Measurement) { m.GridFrequency = 4900 }},
		{"frequency high", func(m *core.Measurement) { m.GridFrequency = 5100 }},
		{"voltage low", func(m *core.Measurement) { m.Voltage = 190 }},
		{"voltage high", func(m *core.Measurement) { m.Voltage = 260 }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m := f.sample(10)
			tc.mutate(&m)
			_, err := f.verifier.Record(f.orderID, m)
			assert.ErrorIs(t, err, core.ErrInvalidMeasurement)
		})
	}

	// A rejected sample leaves the record untouched.
	rec, err := f.store.Delivery(f.orderID)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), rec.EnergyDelivered)
	assert.Empty(t, rec.Samples)
}

func TestRecord_RejectsTimestampRegression(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	_, err := f.verifier.Record(f.orderID, f.sample(10))
	require.NoError(t, err)

	stale := f.sample(10)
	stale.Timestamp = stale.Timestamp.Add(-time.Hour)
	_, err = f.verifier.Record(f.orderID, stale)
	assert.ErrorIs(t, err, core.ErrInvalidMeasurement)
}

func TestComplete_WithinTolerance(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	_, err := f.verifier.Record(f.orderID, f.sample(50))
	require.NoError(t, err)

	// 97 of 100 units lands inside the 95..105 percent band.
	rec, ok, err := f.verifier.Complete(f.order, f.clock.Add(time.Minute), f.sample(47))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, core.TransferCompleted, rec.Status)
	assert.Equal(t, uint64(97), rec.EnergyDelivered)
}

func TestComplete_BandEdges(t *testing.T) {
	for _, tc := range []struct {
		name      string
		delivered int64
		ok        bool
	}{
		{"floor", 95, true},
		{"ceiling", 105, true},
		{"below floor", 94, false},
		{"above ceiling", 106, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.start(t)

			rec, ok, err := f.verifier.Complete(f.order, f.clock.Add(time.Minute), f.sample(tc.delivered))
			require.NoError(t, err)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, core.TransferCompleted, rec.Status)
			} else {
				assert.Equal(t, core.TransferFailed, rec.Status)
				assert.NotEmpty(t, rec.FailureReason)
			}
		})
	}
}

func TestComplete_RequiresOpenWindow(t *testing.T) {
	f := newFixture(t)
	f.start(t)
	_, _, err := f.verifier.Complete(f.order, f.clock.Add(time.Minute), f.sample(100))
	require.NoError(t, err)

	_, _, err = f.verifier.Complete(f.order, f.clock.Add(time.Minute), f.sample(1))
	assert.ErrorIs(t, err, core.ErrInvalidTransferStatus)
}

func TestFail_Terminal(t *testing.T) {
	f := newFixture(t)
	f.start(t)

	rec, err := f.verifier.Fail(f.orderID, "grid fault")
	require.NoError(t, err)
	assert.Equal(t, core.TransferFailed, rec.Status)
	assert.Equal(t, "grid fault", rec.FailureReason)

	_, err = f.verifier.Fail(f.orderID, "again")
	assert.ErrorIs(t, err, core.ErrInvalidTransferStatus)
	_, err = f.verifier.Record(f.orderID, f.sample(10))
	assert.ErrorIs(t, err, core.ErrTransferNotFound)
}
