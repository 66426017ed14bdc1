package identity_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/internal/core"
	"ampere/internal/identity"
)

func TestRegisterUser(t *testing.T) {
	r := identity.NewRegistry()

	require.NoError(t, r.RegisterUser("alice", identity.Prosumer))
	assert.True(t, r.IsActive("alice"))

	role, err := r.RoleOf("alice")
	require.NoError(t, err)
	assert.Equal(t, identity.Prosumer, role)

	err = r.RegisterUser("alice", identity.Consumer)
	assert.ErrorIs(t, err, identity.ErrUserAlreadyRegistered)

	assert.False(t, r.IsActive("stranger"))
	_, err = r.RoleOf("stranger")
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

func TestRegisterDevice_RoleGated(t *testing.T) {
	r := identity.NewRegistry()
	require.NoError(t, r.RegisterUser("prosumer", identity.Prosumer))
	require.NoError(t, r.RegisterUser("operator", identity.GridOperator))
	require.NoError(t, r.RegisterUser("consumer", identity.Consumer))

	id, err := r.RegisterDevice("prosumer", identity.SolarPanel, 300)
	require.NoError(t, err)
	d, ok := r.Device(id)
	require.True(t, ok)
	assert.Equal(t, identity.SolarPanel, d.Type)
	assert.True(t, d.Active)

	_, err = r.RegisterDevice("operator", identity.SmartMeter, 500)
	assert.NoError(t, err)

	_, err = r.RegisterDevice("consumer", identity.SmartMeter, 500)
	assert.ErrorIs(t, err, identity.ErrUnauthorized)

	_, err = r.RegisterDevice("stranger", identity.SmartMeter, 500)
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}

func TestSetDeviceActive(t *testing.T) {
	r := identity.NewRegistry()
	require.NoError(t, r.RegisterUser("prosumer", identity.Prosumer))
	id, err := r.RegisterDevice("prosumer", identity.Battery, 100)
	require.NoError(t, err)

	require.NoError(t, r.SetDeviceActive(id, false))
	d, ok := r.Device(id)
	require.True(t, ok)
	assert.False(t, d.Active)

	err = r.SetDeviceActive(core.HashOf([]byte("missing")), true)
	assert.ErrorIs(t, err, identity.ErrDeviceNotFound)
}

func TestSetRole_AdminOnly(t *testing.T) {
	r := identity.NewRegistry()
	require.NoError(t, r.RegisterUser("admin", identity.Admin))
	require.NoError(t, r.RegisterUser("alice", identity.Consumer))

	err := r.SetRole("alice", "alice", identity.Admin)
	assert.ErrorIs(t, err, identity.ErrUnauthorized)

	require.NoError(t, r.SetRole("admin", "alice", identity.Prosumer))
	role, err := r.RoleOf("alice")
	require.NoError(t, err)
	assert.Equal(t, identity.Prosumer, role)

	err = r.SetRole("admin", "stranger", identity.Prosumer)
	assert.ErrorIs(t, err, identity.ErrUserNotFound)
}
