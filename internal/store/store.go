// Package store holds the keyed tables behind the trade lifecycle: orders,
// delivery records and payments by order id, plus the per-account order
// index and the payment-id lookup. Stores are handles passed explicitly so
// tests can run against isolated instances.
package store

import (
	"sync"

	"ampere/internal/core"
)

type Store interface {
	PutOrder(o *core.Order) error
	// PutOrders commits several orders atomically: either every order is
	// persisted or none is.
	PutOrders(orders ...*core.Order) error
	Order(id core.Hash) (*core.Order, error)
	// OpenOrders scans the order table for orders still in Open status,
	// for rebuilding indexes after a restart.
	OpenOrders() ([]*core.Order, error)

	PutDelivery(d *core.DeliveryRecord) error
	Delivery(orderID core.Hash) (*core.DeliveryRecord, error)

	PutPayment(p *core.Payment) error
	Payment(orderID core.Hash) (*core.Payment, error)
	OrderIDForPayment(paymentID core.Hash) (core.Hash, error)

	AppendAccountOrder(account core.AccountID, id core.Hash) error
	OrdersByAccount(account core.AccountID) ([]core.Hash, error)

	Close() error
}

// Memory is the in-process store used by tests and non-durable deployments.
type Memory struct {
	mu         sync.RWMutex
	orders     map[core.Hash]core.Order
	deliveries map[core.Hash]core.DeliveryRecord
	payments   map[core.Hash]core.Payment
	paymentIdx map[core.Hash]core.Hash // payment id -> order id
	accountIdx map[core.AccountID][]core.Hash
}

func NewMemory() *Memory {
	return &Memory{
		orders:     make(map[core.Hash]core.Order),
		deliveries: make(map[core.Hash]core.DeliveryRecord),
		payments:   make(map[core.Hash]core.Payment),
		paymentIdx: make(map[core.Hash]core.Hash),
		accountIdx: make(map[core.AccountID][]core.Hash),
	}
}

func (s *Memory) PutOrder(o *core.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = *o
	return nil
}

func (s *Memory) PutOrders(orders ...*core.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range orders {
		s.orders[o.ID] = *o
	}
	return nil
}

func (s *Memory) Order(id core.Hash) (*core.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, core.ErrOrderNotFound
	}
	cp := o
	return &cp, nil
}

func (s *Memory) OpenOrders() ([]*core.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.Order
	for _, o := range s.orders {
		if o.Status == core.Open {
			cp := o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Memory) PutDelivery(d *core.DeliveryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *d
	cp.Samples = append([]core.Measurement(nil), d.Samples...)
	s.deliveries[d.OrderID] = cp
	return nil
}

func (s *Memory) Delivery(orderID core.Hash) (*core.DeliveryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.deliveries[orderID]
	if !ok {
		return nil, core.ErrTransferNotFound
	}
	cp := d
	cp.Samples = append([]core.Measurement(nil), d.Samples...)
	return &cp, nil
}

func (s *Memory) PutPayment(p *core.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.payments[p.OrderID] = *p
	s.paymentIdx[p.ID] = p.OrderID
	return nil
}

func (s *Memory) Payment(orderID core.Hash) (*core.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.payments[orderID]
	if !ok {
		return nil, core.ErrPaymentNotFound
	}
	cp := p
	return &cp, nil
}

func (s *Memory) OrderIDForPayment(paymentID core.Hash) (core.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.paymentIdx[paymentID]
	if !ok {
		return core.ZeroHash, core.ErrPaymentNotFound
	}
	return id, nil
}

func (s *Memory) AppendAccountOrder(account core.AccountID, id core.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountIdx[account] = append(s.accountIdx[account], id)
	return nil
}

func (s *Memory) OrdersByAccount(account core.AccountID) ([]core.Hash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Hash(nil), s.accountIdx[account]...), nil
}

func (s *Memory) Close() error { return nil }
