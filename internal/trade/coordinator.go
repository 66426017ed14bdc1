// Package trade holds the lifecycle coordinator: the single authority over
// order status. Every public operation applies atomically with respect to
// all order, payment and ledger state; the coordinator validates the current
// status before delegating to the book, the delivery verifier or the
// settlement engine, and re-validates before committing the new status.
package trade

import (
	"sync"
	"time"

	"ampere/internal/book"
	"ampere/internal/core"
	"ampere/internal/delivery"
	"ampere/internal/identity"
	"ampere/internal/settle"
	"ampere/internal/store"
)

// Coordinator serializes lifecycle operations behind one lock, matching the
// sequential execution model: no operation observes a partially applied
// effect of another. Each operation returns the ordered list of events it
// produced; the caller appends them to the external log.
type Coordinator struct {
	mu sync.Mutex

	store    store.Store
	book     *book.Book
	verifier *delivery.Verifier
	engine   *settle.Engine
	identity identity.Adapter

	now func() time.Time
}

func NewCoordinator(
	s store.Store,
	b *book.Book,
	v *delivery.Verifier,
	e *settle.Engine,
	id identity.Adapter,
) *Coordinator {
	return &Coordinator{
		store:    s,
		book:     b,
		verifier: v,
		engine:   e,
		identity: id,
		now:      time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// Restore rebuilds the book's open-order indexes from persisted state. A
// durable deployment calls this once on startup, before serving requests.
func (c *Coordinator) Restore() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	orders, err := c.store.OpenOrders()
	if err != nil {
		return err
	}
	for _, o := range orders {
		c.book.Track(o)
	}
	return nil
}

// CreateAsk opens a sell order.
func (c *Coordinator) CreateAsk(
	creator core.AccountID,
	amount, price uint64,
	location string,
) (core.Hash, []core.Event, error) {
	return c.create(core.Ask, creator, amount, price, location, core.Native)
}

// CreateBid opens a buy order. The buyer picks the payment rail used at
// settlement; funds are checked against the ledger here, escrowed at match.
func (c *Coordinator) CreateBid(
	creator core.AccountID,
	amount, price uint64,
	location string,
	method core.PaymentMethod,
) (core.Hash, []core.Event, error) {
	return c.create(core.Bid, creator, amount, price, location, method)
}

func (c *Coordinator) create(
	typ core.OrderType,
	creator core.AccountID,
	amount, price uint64,
	location string,
	method core.PaymentMethod,
) (core.Hash, []core.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.identity.IsActive(creator) {
		return core.ZeroHash, nil, core.ErrUnauthorized
	}

	o, err := c.book.Prepare(typ, creator, amount, price, location, method, c.now())
	if err != nil {
		return core.ZeroHash, nil, err
	}

	if err := c.store.PutOrder(o); err != nil {
		return core.ZeroHash, nil, err
	}
	if err := c.store.AppendAccountOrder(creator, o.ID); err != nil {
		return core.ZeroHash, nil, err
	}
	c.book.Track(o)

	events := []core.Event{core.OrderCreatedEvent{
		OrderID:   o.ID,
		OrderType: typ,
		Creator:   creator,
		Amount:    amount,
		Price:     price,
		Location:  location,
	}}
	return o.ID, events, nil
}

// Match binds an ask and a bid with identical parameters. On success both
// orders move to Matched and, for native bids, the buyer's funds are locked
// in escrow. Re-submitting a matched pair yields ErrInvalidOrderStatus, not
// a duplicate match.
func (c *Coordinator) Match(askID, bidID core.Hash, matcher core.AccountID) ([]core.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.identity.IsActive(matcher) {
		return nil, core.ErrUnauthorized
	}

	ask, err := c.store.Order(askID)
	if err != nil {
		return nil, err
	}
	bid, err := c.store.Order(bidID)
	if err != nil {
		return nil, err
	}

	if err := c.book.CheckMatch(ask, bid); err != nil {
		return nil, err
	}

	if err := c.engine.LockEscrow(bid); err != nil {
		return nil, err
	}

	// Commit check: a delegated call must not advance an order whose
	// status changed underneath it.
	if err := c.ensureStatus(askID, core.Open); err != nil {
		_ = c.engine.RefundEscrow(bid)
		return nil, err
	}
	if err := c.ensureStatus(bidID, core.Open); err != nil {
		_ = c.engine.RefundEscrow(bid)
		return nil, err
	}

	now := c.now()
	ask.Status = core.Matched
	ask.Counterparty = bid.Creator
	ask.MatchedWith = bid.ID
	ask.MatchedAt = now

	bid.Status = core.Matched
	bid.Counterparty = ask.Creator
	bid.MatchedWith = ask.ID
	bid.MatchedAt = now

	if err := c.putPair(ask, bid); err != nil {
		_ = c.engine.RefundEscrow(bid)
		return nil, err
	}
	c.book.Untrack(ask)
	c.book.Untrack(bid)

	events := []core.Event{core.OrdersMatchedEvent{
		AskID:  ask.ID,
		BidID:  bid.ID,
		Seller: ask.Creator,
		Buyer:  bid.Creator,
		Amount: ask.EnergyAmount,
		Price:  ask.TotalPrice,
	}}
	return events, nil
}

// Cancel withdraws an order. Creator-initiated and only legal while Open.
func (c *Coordinator) Cancel(orderID core.Hash, caller core.AccountID) ([]core.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	o, err := c.store.Order(orderID)
	if err != nil {
		return nil, err
	}
	if o.Creator != caller {
		return nil, core.ErrUnauthorized
	}
	if o.Status != core.Open {
		return nil, core.ErrInvalidOrderStatus
	}

	o.Status = core.Cancelled
	if err := c.store.PutOrder(o); err != nil {
		return nil, err
	}
	c.book.Untrack(o)

	return []core.Event{core.OrderCancelledEvent{OrderID: o.ID}}, nil
}

// StartTransfer opens the delivery window for a matched pair. The window and
// everything downstream (measurements, payment) is keyed by the ask order.
// Either side's id resolves the pair.
func (c *Coordinator) StartTransfer(orderID core.Hash, startTime time.Time) ([]core.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ask, bid, err := c.pair(orderID)
	if err != nil {
		return nil, err
	}
	if ask.Status != core.Matched {
		return nil, core.ErrInvalidOrderStatus
	}

	if _, err := c.verifier.Start(ask.ID, startTime); err != nil {
		return nil, err
	}

	if err := c.ensureStatus(ask.ID, core.Matched); err != nil {
		return nil, err
	}

	ask.Status = core.InTransfer
	bid.Status = core.InTransfer
	if err := c.putPair(ask, bid); err != nil {
		return nil, err
	}

	return []core.Event{core.TransferStartedEvent{OrderID: ask.ID, StartTime: startTime}}, nil
}

// RecordMeasurement ingests one device sample for an in-transfer order.
func (c *Coordinator) RecordMeasurement(orderID core.Hash, m core.Measurement) ([]core.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ask, _, err := c.pair(orderID)
	if err != nil {
		return nil, err
	}
	if ask.Status != core.InTransfer {
		return nil, core.ErrTransferNotFound
	}

	if _, err := c.verifier.Record(ask.ID, m); err != nil {
		return nil, err
	}

	events := []core.Event{core.MeasurementRecordedEvent{
		OrderID:     ask.ID,
		DeviceID:    m.DeviceID,
		EnergyDelta: m.EnergyDelta,
	}}
	return events, nil
}

// CompleteTransfer closes the delivery window with a final sample and
// evaluates the tolerance band. Within tolerance the settlement engine
// fires; outside it the trade reverses. Replays against a terminal order
// return ErrInvalidOrderStatus with no further mutation.
func (c *Coordinator) CompleteTransfer(
	orderID core.Hash,
	endTime time.Time,
	final core.Measurement,
) ([]core.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ask, bid, err := c.pair(orderID)
	if err != nil {
		return nil, err
	}
	if ask.Status != core.InTransfer {
		return nil, core.ErrInvalidOrderStatus
	}

	rec, delivered, err := c.verifier.Complete(ask, endTime, final)
	if err != nil {
		return nil, err
	}

	if err := c.ensureStatus(ask.ID, core.InTransfer); err != nil {
		return nil, err
	}

	if !delivered {
		events := []core.Event{core.TransferFailedEvent{OrderID: ask.ID, Reason: rec.FailureReason}}
		failEvents, err := c.reverse(ask, bid, rec.FailureReason)
		if err != nil {
			return nil, err
		}
		return append(events, failEvents...), nil
	}

	ref := core.DeliveryRefOf(ask.ID, rec.EnergyDelivered, endTime.UnixNano())
	ask.DeliveryRef = ref
	bid.DeliveryRef = ref

	events := []core.Event{core.TransferCompletedEvent{OrderID: ask.ID, TotalEnergy: rec.EnergyDelivered}}
	settleEvents, err := c.settle(ask, bid)
	return append(events, settleEvents...), err
}

// ReportFailure is the out-of-band failure hook, e.g. for an external
// watchdog observing a stalled window or a device malfunction.
func (c *Coordinator) ReportFailure(orderID core.Hash, reason string) ([]core.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ask, bid, err := c.pair(orderID)
	if err != nil {
		return nil, err
	}
	if ask.Status != core.InTransfer {
		return nil, core.ErrInvalidOrderStatus
	}

	if _, err := c.verifier.Fail(ask.ID, reason); err != nil {
		return nil, err
	}

	events := []core.Event{core.TransferFailedEvent{OrderID: ask.ID, Reason: reason}}
	failEvents, err := c.reverse(ask, bid, reason)
	if err != nil {
		return nil, err
	}
	return append(events, failEvents...), nil
}

// ProcessExternalPayment resolves a pending external-rail payment with its
// proof. A verified proof completes the trade; a failed verification is
// terminal for the payment and reverses the order.
func (c *Coordinator) ProcessExternalPayment(paymentID core.Hash, proof []byte) ([]core.Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, perr := c.engine.ProcessExternal(paymentID, proof)
	if perr != nil && p == nil {
		return nil, perr
	}

	ask, bid, err := c.pair(p.OrderID)
	if err != nil {
		return nil, err
	}

	if perr != nil {
		events := []core.Event{core.PaymentFailedEvent{
			PaymentID: p.ID,
			OrderID:   p.OrderID,
			Reason:    perr.Error(),
		}}
		failEvents, err := c.reverse(ask, bid, "external payment verification failed")
		if err != nil {
			return nil, err
		}
		return append(events, failEvents...), perr
	}

	if err := c.ensureStatus(ask.ID, core.InTransfer); err != nil {
		return nil, err
	}

	events := []core.Event{core.PaymentCompletedEvent{PaymentID: p.ID, OrderID: p.OrderID}}
	doneEvents, err := c.finalize(ask, bid)
	if err != nil {
		return nil, err
	}
	return append(events, doneEvents...), nil
}

// settle runs the settlement engine for a verified delivery. Native
// payments finalize or reverse synchronously; external rails leave the pair
// InTransfer until their proof arrives.
func (c *Coordinator) settle(ask, bid *core.Order) ([]core.Event, error) {
	p, serr := c.engine.Settle(ask, bid, c.now())
	if serr != nil && p == nil {
		return nil, serr
	}

	events := []core.Event{core.PaymentCreatedEvent{
		PaymentID: p.ID,
		OrderID:   p.OrderID,
		Amount:    p.Amount,
		Method:    p.Method,
	}}

	if serr != nil {
		events = append(events, core.PaymentFailedEvent{
			PaymentID: p.ID,
			OrderID:   p.OrderID,
			Reason:    serr.Error(),
		})
		failEvents, err := c.reverse(ask, bid, "settlement failed")
		if err != nil {
			return nil, err
		}
		return append(events, failEvents...), serr
	}

	if p.Status == core.PaymentPending {
		// External rail: the pair stays InTransfer awaiting the proof,
		// but the delivery evidence is already committed.
		return events, c.putPair(ask, bid)
	}

	events = append(events, core.PaymentCompletedEvent{PaymentID: p.ID, OrderID: p.OrderID})
	doneEvents, err := c.finalize(ask, bid)
	if err != nil {
		return nil, err
	}
	return append(events, doneEvents...), nil
}

// finalize commits the terminal Completed status on both sides.
func (c *Coordinator) finalize(ask, bid *core.Order) ([]core.Event, error) {
	now := c.now()
	ask.Status = core.Completed
	ask.CompletedAt = now
	bid.Status = core.Completed
	bid.CompletedAt = now
	if err := c.putPair(ask, bid); err != nil {
		return nil, err
	}

	return []core.Event{core.OrderCompletedEvent{
		OrderID: ask.ID,
		Seller:  ask.Creator,
		Buyer:   bid.Creator,
		Amount:  ask.EnergyAmount,
		Price:   ask.TotalPrice,
	}}, nil
}

// reverse is the failure path: escrowed funds return to the buyer and both
// sides commit the terminal Failed status.
func (c *Coordinator) reverse(ask, bid *core.Order, reason string) ([]core.Event, error) {
	if err := c.engine.RefundEscrow(bid); err != nil {
		return nil, err
	}

	ask.Status = core.Failed
	bid.Status = core.Failed
	if err := c.putPair(ask, bid); err != nil {
		return nil, err
	}

	return []core.Event{core.OrderFailedEvent{OrderID: ask.ID, Reason: reason}}, nil
}

// pair resolves a matched ask/bid pair from either side's id. Unmatched
// orders have no pair yet.
func (c *Coordinator) pair(id core.Hash) (ask, bid *core.Order, err error) {
	o, err := c.store.Order(id)
	if err != nil {
		return nil, nil, err
	}
	if o.MatchedWith.IsZero() {
		return nil, nil, core.ErrInvalidOrderStatus
	}

	peer, err := c.store.Order(o.MatchedWith)
	if err != nil {
		return nil, nil, err
	}
	if o.OrderType == core.Ask {
		return o, peer, nil
	}
	return peer, o, nil
}

// putPair commits both sides of a pair in one atomic store write; a partial
// pair must never be observable, even across a crash.
func (c *Coordinator) putPair(ask, bid *core.Order) error {
	return c.store.PutOrders(ask, bid)
}

// ensureStatus re-reads an order immediately before committing a transition
// and rejects the commit if the stored status is no longer the one the
// operation validated against.
func (c *Coordinator) ensureStatus(id core.Hash, want core.OrderStatus) error {
	cur, err := c.store.Order(id)
	if err != nil {
		return err
	}
	if cur.Status != want {
		return core.ErrInvalidOrderStatus
	}
	return nil
}

// --- Queries ---------------------------------------------------------------

func (c *Coordinator) Order(id core.Hash) (*core.Order, error) {
	return c.store.Order(id)
}

// Delivery returns the delivery record for either side of a matched pair.
func (c *Coordinator) Delivery(orderID core.Hash) (*core.DeliveryRecord, error) {
	ask, _, err := c.pairRead(orderID)
	if err != nil {
		return nil, err
	}
	return c.store.Delivery(ask.ID)
}

// Payment returns the payment for either side of a matched pair.
func (c *Coordinator) Payment(orderID core.Hash) (*core.Payment, error) {
	ask, _, err := c.pairRead(orderID)
	if err != nil {
		return nil, err
	}
	return c.store.Payment(ask.ID)
}

func (c *Coordinator) OrdersByAccount(account core.AccountID) ([]core.Hash, error) {
	return c.store.OrdersByAccount(account)
}

func (c *Coordinator) OpenAsks() []book.PriceLevel { return c.book.OpenAsks() }
func (c *Coordinator) OpenBids() []book.PriceLevel { return c.book.OpenBids() }

// pairRead is pair without the write lock semantics; reads go straight to
// the store.
func (c *Coordinator) pairRead(id core.Hash) (ask, bid *core.Order, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pair(id)
}
