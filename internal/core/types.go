package core

import "time"

// AccountID names a trading party.
type AccountID string

type OrderType int

const (
	Ask OrderType = iota // seller's offer
	Bid                  // buyer's offer
)

func (t OrderType) String() string {
	switch t {
	case Ask:
		return "ask"
	case Bid:
		return "bid"
	}
	return "unknown"
}

type OrderStatus int

const (
	Open OrderStatus = iota
	Matched
	InTransfer
	Completed
	Cancelled
	Failed
)

func (s OrderStatus) String() string {
	switch s {
	case Open:
		return "open"
	case Matched:
		return "matched"
	case InTransfer:
		return "in_transfer"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transition is permitted out of s.
func (s OrderStatus) Terminal() bool {
	return s == Completed || s == Cancelled || s == Failed
}

// Order is a party's standing offer to buy or sell energy. Orders are never
// deleted, only transitioned to a terminal status.
type Order struct {
	ID            Hash          `json:"id"`
	OrderType     OrderType     `json:"order_type"`
	Creator       AccountID     `json:"creator"`
	Counterparty  AccountID     `json:"counterparty,omitempty"`
	EnergyAmount  uint64        `json:"energy_amount"`  // units of energy
	PricePerUnit  uint64        `json:"price_per_unit"` // token amount per unit
	TotalPrice    uint64        `json:"total_price"`    // checked product, fixed at creation
	GridLocation  string        `json:"grid_location"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	Status        OrderStatus   `json:"status"`
	EscrowHeld    bool          `json:"escrow_held,omitempty"` // buyer funds locked in escrow
	MatchedWith   Hash          `json:"matched_with,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	MatchedAt     time.Time     `json:"matched_at,omitempty"`
	CompletedAt   time.Time     `json:"completed_at,omitempty"`
	DeliveryRef   Hash          `json:"delivery_ref,omitempty"` // hash of the delivery evidence
}

type TransferStatus int

const (
	TransferPending TransferStatus = iota
	TransferInProgress
	TransferCompleted
	TransferFailed
)

func (s TransferStatus) String() string {
	switch s {
	case TransferPending:
		return "pending"
	case TransferInProgress:
		return "in_progress"
	case TransferCompleted:
		return "completed"
	case TransferFailed:
		return "failed"
	}
	return "unknown"
}

func (s TransferStatus) Terminal() bool {
	return s == TransferCompleted || s == TransferFailed
}

// Measurement is a single sample reported by a metering device during a
// delivery window. GridFrequency is in centihertz, Voltage in volts.
type Measurement struct {
	DeviceID      Hash      `json:"device_id"`
	Timestamp     time.Time `json:"timestamp"`
	EnergyDelta   int64     `json:"energy_delta"`
	GridFrequency uint32    `json:"grid_frequency"`
	Voltage       uint32    `json:"voltage"`
}

// DeliveryRecord accumulates measurements for one matched order. Exactly one
// record exists per order once its delivery window opens; it is closed once.
type DeliveryRecord struct {
	OrderID         Hash           `json:"order_id"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time,omitempty"`
	EnergyDelivered uint64         `json:"energy_delivered"` // running sum of accepted deltas
	Status          TransferStatus `json:"status"`
	Samples         []Measurement  `json:"samples"`
	FailureReason   string         `json:"failure_reason,omitempty"`
}

type PaymentMethod int

const (
	Native PaymentMethod = iota // platform token via the ledger
	Fiat
	Stablecoin
	ExternalToken
)

func (m PaymentMethod) String() string {
	switch m {
	case Native:
		return "native"
	case Fiat:
		return "fiat"
	case Stablecoin:
		return "stablecoin"
	case ExternalToken:
		return "external_token"
	}
	return "unknown"
}

// External reports whether settlement waits on an out-of-band payment proof.
func (m PaymentMethod) External() bool {
	return m == Fiat || m == Stablecoin || m == ExternalToken
}

type PaymentStatus int

const (
	PaymentPending PaymentStatus = iota
	PaymentProcessing
	PaymentCompleted
	PaymentFailed
	PaymentRefunded
)

func (s PaymentStatus) String() string {
	switch s {
	case PaymentPending:
		return "pending"
	case PaymentProcessing:
		return "processing"
	case PaymentCompleted:
		return "completed"
	case PaymentFailed:
		return "failed"
	case PaymentRefunded:
		return "refunded"
	}
	return "unknown"
}

func (s PaymentStatus) Terminal() bool {
	return s == PaymentCompleted || s == PaymentFailed || s == PaymentRefunded
}

// Payment moves value between the matched parties once delivery is verified.
// At most one non-Failed, non-Refunded payment exists per order.
type Payment struct {
	ID          Hash          `json:"id"`
	OrderID     Hash          `json:"order_id"`
	Payer       AccountID     `json:"payer"`
	Payee       AccountID     `json:"payee"`
	Amount      uint64        `json:"amount"`
	Method      PaymentMethod `json:"method"`
	Status      PaymentStatus `json:"status"`
	ExternalRef string        `json:"external_ref,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}
