// Package settle drives payment creation and processing once delivery is
// verified, against the ledger for the native token or against external
// payment proofs for the other rails.
package settle

import (
	"errors"
	"sync"
	"time"

	"ampere/internal/core"
	"ampere/internal/ledger"
	"ampere/internal/store"
)

// EscrowAccount holds buyer funds locked at match time until settlement
// releases them or a failure path refunds them.
const EscrowAccount core.AccountID = "ampere/escrow"

// ProofVerifier validates an out-of-band payment proof for one method.
type ProofVerifier interface {
	Verify(p *core.Payment, proof []byte) error
}

// proofNotEmpty is the default verification strategy: the proof must carry
// an opaque reference. Deployments plug real verifiers per rail.
type proofNotEmpty struct{}

func (proofNotEmpty) Verify(_ *core.Payment, proof []byte) error {
	if len(proof) == 0 {
		return core.ErrProofInvalid
	}
	return nil
}

// Engine writes payments and, through the ledger adapter, balances. It never
// writes order status.
type Engine struct {
	store  store.Store
	ledger ledger.Adapter

	escrowAtMatch bool
	verifiers     map[core.PaymentMethod]ProofVerifier

	ratesMu sync.RWMutex
	rates   map[[2]string]Rate
}

// Rate converts between two currencies. Value is in parts per million:
// converted = amount * Value / 1e6.
type Rate struct {
	Value     uint64
	UpdatedAt time.Time
}

const rateScale = 1_000_000

func New(s store.Store, l ledger.Adapter, escrowAtMatch bool) *Engine {
	verifiers := map[core.PaymentMethod]ProofVerifier{
		core.Fiat:          proofNotEmpty{},
		core.Stablecoin:    proofNotEmpty{},
		core.ExternalToken: proofNotEmpty{},
	}
	return &Engine{
		store:         s,
		ledger:        l,
		escrowAtMatch: escrowAtMatch,
		verifiers:     verifiers,
		rates:         make(map[[2]string]Rate),
	}
}

// RegisterVerifier replaces the verification strategy for one method.
func (e *Engine) RegisterVerifier(m core.PaymentMethod, v ProofVerifier) {
	e.verifiers[m] = v
}

func (e *Engine) EscrowAtMatch() bool { return e.escrowAtMatch }

// LockEscrow moves the bid's total price from the buyer into escrow at
// match time. Only native-method bids lock tokens; external rails settle
// off-ledger. The caller persists the mutated bid.
func (e *Engine) LockEscrow(bid *core.Order) error {
	if !e.escrowAtMatch || bid.PaymentMethod != core.Native {
		return nil
	}
	if err := e.ledger.Debit(bid.Creator, bid.TotalPrice); err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return core.ErrInsufficientFunds
		}
		return err
	}
	if err := e.ledger.Credit(EscrowAccount, bid.TotalPrice); err != nil {
		// Undo the debit so the failed lock leaves no trace.
		_ = e.ledger.Credit(bid.Creator, bid.TotalPrice)
		return err
	}
	bid.EscrowHeld = true
	return nil
}

// RefundEscrow returns locked funds to the buyer on a failure path.
func (e *Engine) RefundEscrow(bid *core.Order) error {
	if !bid.EscrowHeld {
		return nil
	}
	if err := e.ledger.Debit(EscrowAccount, bid.TotalPrice); err != nil {
		return err
	}
	if err := e.ledger.Credit(bid.Creator, bid.TotalPrice); err != nil {
		_ = e.ledger.Credit(EscrowAccount, bid.TotalPrice)
		return err
	}
	bid.EscrowHeld = false
	return nil
}

// Settle creates the payment for a verified delivery and, for the native
// method, moves the funds. External methods leave the payment Pending until
// a proof arrives. The returned payment is persisted in either outcome; a
// native debit failure returns ErrInsufficientFunds alongside the Failed
// payment so the coordinator can reverse the order.
func (e *Engine) Settle(ask, bid *core.Order, now time.Time) (*core.Payment, error) {
	if p, err := e.store.Payment(ask.ID); err == nil && !p.Status.Terminal() {
		return nil, core.ErrInvalidPaymentState
	}

	p := &core.Payment{
		ID:        core.PaymentIDOf(ask.ID, bid.Creator, ask.Creator, ask.TotalPrice),
		OrderID:   ask.ID,
		Payer:     bid.Creator,
		Payee:     ask.Creator,
		Amount:    ask.TotalPrice,
		Method:    bid.PaymentMethod,
		Status:    core.PaymentPending,
		CreatedAt: now,
	}

	if p.Method != core.Native {
		if err := e.store.PutPayment(p); err != nil {
			return nil, err
		}
		return p, nil
	}

	if err := e.moveNative(p, bid); err != nil {
		p.Status = core.PaymentFailed
		if perr := e.store.PutPayment(p); perr != nil {
			return nil, perr
		}
		return p, err
	}

	p.Status = core.PaymentCompleted
	if err := e.store.PutPayment(p); err != nil {
		return nil, err
	}
	return p, nil
}

// moveNative debits the payer (or the escrow holding the payer's funds) and
// credits the payee. Debit strictly precedes credit; a failed debit skips
// the credit entirely and a failed credit undoes the debit.
func (e *Engine) moveNative(p *core.Payment, bid *core.Order) error {
	source := p.Payer
	if bid.EscrowHeld {
		source = EscrowAccount
	}

	if err := e.ledger.Debit(source, p.Amount); err != nil {
		if errors.Is(err, ledger.ErrInsufficientBalance) {
			return core.ErrInsufficientFunds
		}
		return err
	}
	if err := e.ledger.Credit(p.Payee, p.Amount); err != nil {
		_ = e.ledger.Credit(source, p.Amount)
		return err
	}
	if bid.EscrowHeld {
		bid.EscrowHeld = false
	}
	return nil
}

// ProcessExternal verifies an out-of-band payment proof against the pending
// payment. A verification failure is terminal for the payment.
func (e *Engine) ProcessExternal(paymentID core.Hash, proof []byte) (*core.Payment, error) {
	orderID, err := e.store.OrderIDForPayment(paymentID)
	if err != nil {
		return nil, err
	}
	p, err := e.store.Payment(orderID)
	if err != nil {
		return nil, err
	}
	if p.Status != core.PaymentPending {
		return nil, core.ErrInvalidPaymentState
	}
	if !p.Method.External() {
		return nil, core.ErrMethodNotSupported
	}

	v, ok := e.verifiers[p.Method]
	if !ok {
		return nil, core.ErrMethodNotSupported
	}

	if verr := v.Verify(p, proof); verr != nil {
		p.Status = core.PaymentFailed
		if err := e.store.PutPayment(p); err != nil {
			return nil, err
		}
		return p, core.ErrProofInvalid
	}

	p.Status = core.PaymentCompleted
	p.ExternalRef = string(proof)
	if err := e.store.PutPayment(p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpdateRate records the conversion rate between two currencies, in parts
// per million.
func (e *Engine) UpdateRate(from, to string, value uint64, now time.Time) {
	e.ratesMu.Lock()
	defer e.ratesMu.Unlock()
	e.rates[[2]string{from, to}] = Rate{Value: value, UpdatedAt: now}
}

// Convert translates an amount between currencies using a recorded rate.
func (e *Engine) Convert(amount uint64, from, to string) (uint64, error) {
	e.ratesMu.RLock()
	rate, ok := e.rates[[2]string{from, to}]
	e.ratesMu.RUnlock()
	if !ok {
		return 0, core.ErrRateNotFound
	}

	scaled, err := core.CheckedMul(amount, rate.Value)
	if err != nil {
		return 0, err
	}
	return scaled / rateScale, nil
}
