// Package book owns order creation and exact-parameter match validation.
// Matching here is deliberately equality-only: one ask pairs with one bid of
// identical amount, unit price and grid location. Partial fills and price
// improvement are candidates for a later continuous double-auction
// extension.
package book

import (
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/btree"

	"ampere/internal/core"
	"ampere/internal/ledger"
)

const maxLocationLen = 64

// PriceLevel groups open orders resting at the same unit price.
type PriceLevel struct {
	Price  uint64
	Orders []core.Hash
}

type priceLevels = btree.BTreeG[*PriceLevel]

// Book validates new orders and match requests, and keeps price-sorted
// indexes of open orders for browse queries. The book never writes order
// status; the coordinator commits every transition.
type Book struct {
	ledger ledger.Adapter

	// Open orders by price. Asks sorted cheapest first, bids most
	// generous first.
	asks *priceLevels
	bids *priceLevels
}

func New(l ledger.Adapter) *Book {
	asks := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price < b.Price
	})
	bids := btree.NewBTreeG(func(a, b *PriceLevel) bool {
		return a.Price > b.Price
	})
	return &Book{ledger: l, asks: asks, bids: bids}
}

// Prepare validates the parameters of a new order and builds it in Open
// status. For bids the creator's balance must cover the total price; funds
// are only checked here, escrow happens at match time.
func (b *Book) Prepare(
	typ core.OrderType,
	creator core.AccountID,
	amount, price uint64,
	location string,
	method core.PaymentMethod,
	now time.Time,
) (*core.Order, error) {
	if amount == 0 {
		return nil, core.ErrInvalidAmount
	}
	if price == 0 {
		return nil, core.ErrInvalidPrice
	}
	if location == "" || len(location) > maxLocationLen {
		return nil, core.ErrInvalidLocation
	}

	total, err := core.CheckedMul(amount, price)
	if err != nil {
		return nil, core.ErrInvalidPrice
	}

	if typ == core.Bid && b.ledger.Balance(creator) < total {
		return nil, core.ErrInsufficientFunds
	}

	return &core.Order{
		ID:            core.OrderIDOf(creator, uuid.New().String(), now.UnixNano()),
		OrderType:     typ,
		Creator:       creator,
		EnergyAmount:  amount,
		PricePerUnit:  price,
		TotalPrice:    total,
		GridLocation:  location,
		PaymentMethod: method,
		Status:        core.Open,
		CreatedAt:     now,
	}, nil
}

// CheckMatch validates that ask and bid form a legal exact match. Both must
// be open, on opposite sides, and agree on amount, unit price and location.
func (b *Book) CheckMatch(ask, bid *core.Order) error {
	if ask.Status != core.Open || bid.Status != core.Open {
		return core.ErrInvalidOrderStatus
	}
	if ask.OrderType != core.Ask || bid.OrderType != core.Bid {
		return core.ErrOrderMismatch
	}
	if ask.EnergyAmount != bid.EnergyAmount ||
		ask.PricePerUnit != bid.PricePerUnit ||
		ask.GridLocation != bid.GridLocation {
		return core.ErrOrderMismatch
	}
	return nil
}

// Track adds an open order to the price indexes.
func (b *Book) Track(o *core.Order) {
	levels := b.side(o.OrderType)
	level, ok := levels.GetMut(&PriceLevel{Price: o.PricePerUnit})
	if ok {
		level.Orders = append(level.Orders, o.ID)
		return
	}
	levels.Set(&PriceLevel{Price: o.PricePerUnit, Orders: []core.Hash{o.ID}})
}

// Untrack removes an order from the price indexes once it leaves Open.
func (b *Book) Untrack(o *core.Order) {
	levels := b.side(o.OrderType)
	level, ok := levels.GetMut(&PriceLevel{Price: o.PricePerUnit})
	if !ok {
		return
	}
	for i, id := range level.Orders {
		if id == o.ID {
			level.Orders = append(level.Orders[:i], level.Orders[i+1:]...)
			break
		}
	}
	if len(level.Orders) == 0 {
		levels.Delete(level)
	}
}

// OpenAsks lists resting ask levels, cheapest first.
func (b *Book) OpenAsks() []PriceLevel { return flatten(b.asks) }

// OpenBids lists resting bid levels, most generous first.
func (b *Book) OpenBids() []PriceLevel { return flatten(b.bids) }

func (b *Book) side(typ core.OrderType) *priceLevels {
	if typ == core.Ask {
		return b.asks
	}
	return b.bids
}

func flatten(levels *priceLevels) []PriceLevel {
	out := make([]PriceLevel, 0, levels.Len())
	levels.Scan(func(l *PriceLevel) bool {
		out = append(out, PriceLevel{
			Price:  l.Price,
			Orders: append([]core.Hash(nil), l.Orders...),
		})
		return true
	})
	return out
}
