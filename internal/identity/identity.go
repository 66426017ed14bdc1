// Package identity exposes the user and device registry consumed by the
// trade core for authorization facts. Registration itself is external to
// the lifecycle; the in-memory registry here backs tests and the server.
package identity

import (
	"errors"
	"sync"
	"time"

	"ampere/internal/core"
)

var (
	ErrUserAlreadyRegistered = errors.New("user already registered")
	ErrUserNotFound          = errors.New("user not found")
	ErrDeviceExists          = errors.New("device already registered")
	ErrDeviceNotFound        = errors.New("device not found")
	ErrUnauthorized          = errors.New("unauthorized")
)

type Role int

const (
	Consumer Role = iota
	Prosumer
	GridOperator
	Admin
)

func (r Role) String() string {
	switch r {
	case Consumer:
		return "consumer"
	case Prosumer:
		return "prosumer"
	case GridOperator:
		return "grid_operator"
	case Admin:
		return "admin"
	}
	return "unknown"
}

// CanRegisterDevice reports whether the role may register metering devices.
func (r Role) CanRegisterDevice() bool {
	return r == Prosumer || r == GridOperator
}

type DeviceType int

const (
	SolarPanel DeviceType = iota
	Battery
	SmartMeter
	OtherDevice
)

type Device struct {
	ID          core.Hash
	Owner       core.AccountID
	Type        DeviceType
	MaxCapacity uint32
	Active      bool
}

type profile struct {
	role       Role
	active     bool
	reputation uint32
	devices    []core.Hash
}

// Adapter is the authorization surface the trade core consumes.
type Adapter interface {
	RoleOf(account core.AccountID) (Role, error)
	IsActive(account core.AccountID) bool
	Device(id core.Hash) (Device, bool)
}

// Registry is the in-memory identity and device registry.
type Registry struct {
	mu       sync.RWMutex
	profiles map[core.AccountID]*profile
	devices  map[core.Hash]Device
}

func NewRegistry() *Registry {
	return &Registry{
		profiles: make(map[core.AccountID]*profile),
		devices:  make(map[core.Hash]Device),
	}
}

func (r *Registry) RegisterUser(account core.AccountID, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.profiles[account]; ok {
		return ErrUserAlreadyRegistered
	}
	r.profiles[account] = &profile{role: role, active: true, reputation: 100}
	return nil
}

// RegisterDevice records a metering device for the owner. Only prosumers
// and grid operators may own devices.
func (r *Registry) RegisterDevice(owner core.AccountID, typ DeviceType, maxCapacity uint32) (core.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.profiles[owner]
	if !ok {
		return core.ZeroHash, ErrUserNotFound
	}
	if !p.role.CanRegisterDevice() {
		return core.ZeroHash, ErrUnauthorized
	}

	id := core.HashOf(
		[]byte("device"),
		[]byte(owner),
		[]byte{byte(typ)},
		[]byte(time.Now().UTC().Format(time.RFC3339Nano)),
	)
	if _, ok := r.devices[id]; ok {
		return core.ZeroHash, ErrDeviceExists
	}

	r.devices[id] = Device{ID: id, Owner: owner, Type: typ, MaxCapacity: maxCapacity, Active: true}
	p.devices = append(p.devices, id)
	return id, nil
}

// SetRole changes an account's role. Only an admin caller may do this.
func (r *Registry) SetRole(caller, account core.AccountID, role Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp, ok := r.profiles[caller]
	if !ok || cp.role != Admin {
		return ErrUnauthorized
	}
	p, ok := r.profiles[account]
	if !ok {
		return ErrUserNotFound
	}
	p.role = role
	return nil
}

// SetDeviceActive flips a device's active flag; inactive devices are
// rejected as measurement sources.
func (r *Registry) SetDeviceActive(id core.Hash, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.devices[id]
	if !ok {
		return ErrDeviceNotFound
	}
	d.Active = active
	r.devices[id] = d
	return nil
}

func (r *Registry) RoleOf(account core.AccountID) (Role, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[account]
	if !ok {
		return Consumer, ErrUserNotFound
	}
	return p.role, nil
}

func (r *Registry) IsActive(account core.AccountID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[account]
	return ok && p.active
}

func (r *Registry) Device(id core.Hash) (Device, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	return d, ok
}
