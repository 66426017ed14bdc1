package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"ampere/internal/core"
)

// Key prefixes for the pebble keyspace.
var (
	prefixOrder      = []byte("o/")
	prefixDelivery   = []byte("d/")
	prefixPayment    = []byte("p/")
	prefixPaymentIdx = []byte("pi/")
	prefixAccountIdx = []byte("u/")
)

// Pebble is the durable store. Values are JSON; identifiers key the tables
// directly under short prefixes.
type Pebble struct {
	db *pebble.DB
}

func OpenPebble(dir string) (*Pebble, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble store: %w", err)
	}
	return &Pebble{db: db}, nil
}

func key(prefix []byte, suffix []byte) []byte {
	k := make([]byte, 0, len(prefix)+len(suffix))
	k = append(k, prefix...)
	return append(k, suffix...)
}

func (s *Pebble) put(k []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Set(k, b, pebble.Sync)
}

func (s *Pebble) get(k []byte, v any, notFound error) error {
	b, closer, err := s.db.Get(k)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return notFound
		}
		return err
	}
	defer closer.Close()
	return json.Unmarshal(b, v)
}

// prefixEnd is the exclusive upper bound for an iterator over one prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	end[len(end)-1]++
	return end
}

func (s *Pebble) PutOrder(o *core.Order) error {
	return s.put(key(prefixOrder, o.ID[:]), o)
}

// PutOrders writes all orders in one synced batch so a crash cannot persist
// one side of a pair without the other.
func (s *Pebble) PutOrders(orders ...*core.Order) error {
	b := s.db.NewBatch()
	defer b.Close()

	for _, o := range orders {
		v, err := json.Marshal(o)
		if err != nil {
			return err
		}
		if err := b.Set(key(prefixOrder, o.ID[:]), v, nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

func (s *Pebble) Order(id core.Hash) (*core.Order, error) {
	var o core.Order
	if err := s.get(key(prefixOrder, id[:]), &o, core.ErrOrderNotFound); err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *Pebble) OpenOrders() ([]*core.Order, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefixOrder,
		UpperBound: prefixEnd(prefixOrder),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*core.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o core.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, err
		}
		if o.Status == core.Open {
			cp := o
			out = append(out, &cp)
		}
	}
	return out, iter.Error()
}

func (s *Pebble) PutDelivery(d *core.DeliveryRecord) error {
	return s.put(key(prefixDelivery, d.OrderID[:]), d)
}

func (s *Pebble) Delivery(orderID core.Hash) (*core.DeliveryRecord, error) {
	var d core.DeliveryRecord
	if err := s.get(key(prefixDelivery, orderID[:]), &d, core.ErrTransferNotFound); err != nil {
		return nil, err
	}
	return &d, nil
}

// PutPayment commits the payment and its id index in one synced batch.
func (s *Pebble) PutPayment(p *core.Payment) error {
	v, err := json.Marshal(p)
	if err != nil {
		return err
	}

	b := s.db.NewBatch()
	defer b.Close()
	if err := b.Set(key(prefixPayment, p.OrderID[:]), v, nil); err != nil {
		return err
	}
	if err := b.Set(key(prefixPaymentIdx, p.ID[:]), p.OrderID[:], nil); err != nil {
		return err
	}
	return b.Commit(pebble.Sync)
}

func (s *Pebble) Payment(orderID core.Hash) (*core.Payment, error) {
	var p core.Payment
	if err := s.get(key(prefixPayment, orderID[:]), &p, core.ErrPaymentNotFound); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Pebble) OrderIDForPayment(paymentID core.Hash) (core.Hash, error) {
	b, closer, err := s.db.Get(key(prefixPaymentIdx, paymentID[:]))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return core.ZeroHash, core.ErrPaymentNotFound
		}
		return core.ZeroHash, err
	}
	defer closer.Close()

	var id core.Hash
	if len(b) != len(id) {
		return core.ZeroHash, core.ErrInvalidHash
	}
	copy(id[:], b)
	return id, nil
}

func (s *Pebble) AppendAccountOrder(account core.AccountID, id core.Hash) error {
	k := key(prefixAccountIdx, []byte(account))

	var ids []core.Hash
	if err := s.get(k, &ids, nil); err != nil {
		return err
	}
	return s.put(k, append(ids, id))
}

func (s *Pebble) OrdersByAccount(account core.AccountID) ([]core.Hash, error) {
	var ids []core.Hash
	if err := s.get(key(prefixAccountIdx, []byte(account)), &ids, nil); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Pebble) Close() error {
	return s.db.Close()
}
