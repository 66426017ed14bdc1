// Package delivery accumulates metering samples for matched orders and
// decides when physical delivery is proven or failed.
package delivery

import (
	"time"

	"ampere/internal/config"
	"ampere/internal/core"
	"ampere/internal/identity"
	"ampere/internal/store"
)

// Verifier drives the per-order transfer state machine:
// Pending -> InProgress -> {Completed, Failed}. It writes only to delivery
// records; order status stays with the coordinator.
type Verifier struct {
	store     store.Store
	identity  identity.Adapter
	tolerance config.Tolerance
	bounds    config.Bounds
}

func NewVerifier(s store.Store, id identity.Adapter, tol config.Tolerance, bounds config.Bounds) *Verifier {
	return &Verifier{store: s, identity: id, tolerance: tol, bounds: bounds}
}

// Start opens the delivery window for an order. A window can only be opened
// once; a prior record, terminal or not, rejects the start.
func (v *Verifier) Start(orderID core.Hash, startTime time.Time) (*core.DeliveryRecord, error) {
	if _, err := v.store.Delivery(orderID); err == nil {
		return nil, core.ErrTransferAlreadyStarted
	}

	rec := &core.DeliveryRecord{
		OrderID:   orderID,
		StartTime: startTime,
		Status:    core.TransferInProgress,
	}
	if err := v.store.PutDelivery(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Record validates and appends one sample to an in-progress window.
func (v *Verifier) Record(orderID core.Hash, sample core.Measurement) (*core.DeliveryRecord, error) {
	rec, err := v.store.Delivery(orderID)
	if err != nil {
		return nil, err
	}
	if rec.Status != core.TransferInProgress {
		return nil, core.ErrTransferNotFound
	}

	if err := v.accept(rec, sample); err != nil {
		return nil, err
	}
	if err := v.store.PutDelivery(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Complete accepts the final sample, closes the window and evaluates the
// tolerance band. The returned bool reports whether delivery is proven; on
// false the record is terminal Failed and the caller must reverse the order.
func (v *Verifier) Complete(
	order *core.Order,
	endTime time.Time,
	final core.Measurement,
) (*core.DeliveryRecord, bool, error) {
	rec, err := v.store.Delivery(order.ID)
	if err != nil {
		return nil, false, err
	}
	if rec.Status != core.TransferInProgress {
		return nil, false, core.ErrInvalidTransferStatus
	}

	if err := v.accept(rec, final); err != nil {
		return nil, false, err
	}
	rec.EndTime = endTime

	ok := core.WithinBand(rec.EnergyDelivered, order.EnergyAmount, v.tolerance.MinPct, v.tolerance.MaxPct)
	if ok {
		rec.Status = core.TransferCompleted
	} else {
		rec.Status = core.TransferFailed
		rec.FailureReason = "delivered energy outside tolerance band"
	}

	if err := v.store.PutDelivery(rec); err != nil {
		return nil, false, err
	}
	return rec, ok, nil
}

// Fail is the out-of-band failure path, usable while the window is open,
// e.g. on a reported device malfunction. Always terminal.
func (v *Verifier) Fail(orderID core.Hash, reason string) (*core.DeliveryRecord, error) {
	rec, err := v.store.Delivery(orderID)
	if err != nil {
		return nil, err
	}
	if rec.Status != core.TransferInProgress {
		return nil, core.ErrInvalidTransferStatus
	}

	rec.Status = core.TransferFailed
	rec.FailureReason = reason
	if err := v.store.PutDelivery(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// accept validates a sample against the record and the device registry,
// then folds it into the running total.
func (v *Verifier) accept(rec *core.DeliveryRecord, m core.Measurement) error {
	dev, ok := v.identity.Device(m.DeviceID)
	if !ok || !dev.Active {
		return core.ErrDeviceNotAuthorized
	}

	if m.EnergyDelta < 0 {
		return core.ErrInvalidMeasurement
	}
	if m.GridFrequency < v.bounds.FreqMin || m.GridFrequency > v.bounds.FreqMax {
		return core.ErrInvalidMeasurement
	}
	if m.Voltage < v.bounds.VoltMin || m.Voltage > v.bounds.VoltMax {
		return core.ErrInvalidMeasurement
	}
	// Timestamps within a record are non-decreasing. A rewound clock or a
	// replayed sample both show up as a regression here.
	if n := len(rec.Samples); n > 0 && m.Timestamp.Before(rec.Samples[n-1].Timestamp) {
		return core.ErrInvalidMeasurement
	}

	sum, err := core.CheckedAdd(rec.EnergyDelivered, uint64(m.EnergyDelta))
	if err != nil {
		return core.ErrInvalidMeasurement
	}
	rec.EnergyDelivered = sum
	rec.Samples = append(rec.Samples, m)
	return nil
}
