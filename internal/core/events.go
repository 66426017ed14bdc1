package core

import "time"

// Event is an append-only fact emitted by a lifecycle operation. Events are
// produced as an ordered list returned to the caller; the core never
// consumes its own events.
type Event interface {
	Kind() string
}

type OrderCreatedEvent struct {
	OrderID   Hash      `json:"order_id"`
	OrderType OrderType `json:"order_type"`
	Creator   AccountID `json:"creator"`
	Amount    uint64    `json:"amount"`
	Price     uint64    `json:"price"`
	Location  string    `json:"location"`
}

func (OrderCreatedEvent) Kind() string { return "order_created" }

type OrdersMatchedEvent struct {
	AskID  Hash      `json:"ask_id"`
	BidID  Hash      `json:"bid_id"`
	Seller AccountID `json:"seller"`
	Buyer  AccountID `json:"buyer"`
	Amount uint64    `json:"amount"`
	Price  uint64    `json:"price"` // total price of the trade
}

func (OrdersMatchedEvent) Kind() string { return "orders_matched" }

type TransferStartedEvent struct {
	OrderID   Hash      `json:"order_id"`
	StartTime time.Time `json:"start_time"`
}

func (TransferStartedEvent) Kind() string { return "transfer_started" }

type MeasurementRecordedEvent struct {
	OrderID     Hash  `json:"order_id"`
	DeviceID    Hash  `json:"device_id"`
	EnergyDelta int64 `json:"energy_delta"`
}

func (MeasurementRecordedEvent) Kind() string { return "measurement_recorded" }

type TransferCompletedEvent struct {
	OrderID     Hash   `json:"order_id"`
	TotalEnergy uint64 `json:"total_energy"`
}

func (TransferCompletedEvent) Kind() string { return "transfer_completed" }

type TransferFailedEvent struct {
	OrderID Hash   `json:"order_id"`
	Reason  string `json:"reason"`
}

func (TransferFailedEvent) Kind() string { return "transfer_failed" }

type PaymentCreatedEvent struct {
	PaymentID Hash          `json:"payment_id"`
	OrderID   Hash          `json:"order_id"`
	Amount    uint64        `json:"amount"`
	Method    PaymentMethod `json:"method"`
}

func (PaymentCreatedEvent) Kind() string { return "payment_created" }

type PaymentCompletedEvent struct {
	PaymentID Hash `json:"payment_id"`
	OrderID   Hash `json:"order_id"`
}

func (PaymentCompletedEvent) Kind() string { return "payment_completed" }

type PaymentFailedEvent struct {
	PaymentID Hash   `json:"payment_id"`
	OrderID   Hash   `json:"order_id"`
	Reason    string `json:"reason"`
}

func (PaymentFailedEvent) Kind() string { return "payment_failed" }

type OrderCompletedEvent struct {
	OrderID Hash      `json:"order_id"`
	Seller  AccountID `json:"seller"`
	Buyer   AccountID `json:"buyer"`
	Amount  uint64    `json:"amount"`
	Price   uint64    `json:"price"`
}

func (OrderCompletedEvent) Kind() string { return "order_completed" }

type OrderCancelledEvent struct {
	OrderID Hash `json:"order_id"`
}

func (OrderCancelledEvent) Kind() string { return "order_cancelled" }

type OrderFailedEvent struct {
	OrderID Hash   `json:"order_id"`
	Reason  string `json:"reason"`
}

func (OrderFailedEvent) Kind() string { return "order_failed" }
