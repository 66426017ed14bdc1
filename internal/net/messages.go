package net

import (
	"errors"
	"time"

	"ampere/internal/book"
	"ampere/internal/core"
	"ampere/internal/identity"
)

var ErrUnknownRequest = errors.New("unknown request type")

// Request is one JSON line from a client. Type selects the operation; the
// remaining fields are read as that operation needs them. Times are unix
// milliseconds.
type Request struct {
	Type string `json:"type"`

	Account  string `json:"account,omitempty"`
	OrderID  string `json:"order_id,omitempty"`
	AskID    string `json:"ask_id,omitempty"`
	BidID    string `json:"bid_id,omitempty"`
	Amount   uint64 `json:"amount,omitempty"`
	Price    uint64 `json:"price,omitempty"`
	Location string `json:"location,omitempty"`
	Method   string `json:"method,omitempty"`

	DeviceID      string `json:"device_id,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"`
	EnergyDelta   int64  `json:"energy_delta,omitempty"`
	GridFrequency uint32 `json:"grid_frequency,omitempty"`
	Voltage       uint32 `json:"voltage,omitempty"`

	PaymentID string `json:"payment_id,omitempty"`
	Proof     string `json:"proof,omitempty"`
	Reason    string `json:"reason,omitempty"`

	Role       string `json:"role,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
	Capacity   uint32 `json:"capacity,omitempty"`
}

// Response is the JSON line written back for each request.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`

	OrderID  string               `json:"order_id,omitempty"`
	DeviceID string               `json:"device_id,omitempty"`
	Balance  uint64               `json:"balance,omitempty"`
	Order    *core.Order          `json:"order,omitempty"`
	Delivery *core.DeliveryRecord `json:"delivery,omitempty"`
	Payment  *core.Payment        `json:"payment,omitempty"`
	Orders   []string             `json:"orders,omitempty"`
	Asks     []book.PriceLevel    `json:"asks,omitempty"`
	Bids     []book.PriceLevel    `json:"bids,omitempty"`
}

func fail(err error) Response {
	return Response{Error: err.Error()}
}

func parseMethod(s string) (core.PaymentMethod, error) {
	switch s {
	case "", "native":
		return core.Native, nil
	case "fiat":
		return core.Fiat, nil
	case "stablecoin":
		return core.Stablecoin, nil
	case "external_token":
		return core.ExternalToken, nil
	}
	return core.Native, core.ErrMethodNotSupported
}

func (r Request) measurement() (core.Measurement, error) {
	deviceID, err := core.ParseHash(r.DeviceID)
	if err != nil {
		return core.Measurement{}, err
	}
	return core.Measurement{
		DeviceID:      deviceID,
		Timestamp:     time.UnixMilli(r.Timestamp),
		EnergyDelta:   r.EnergyDelta,
		GridFrequency: r.GridFrequency,
		Voltage:       r.Voltage,
	}, nil
}

func parseRole(s string) (identity.Role, error) {
	switch s {
	case "", "consumer":
		return identity.Consumer, nil
	case "prosumer":
		return identity.Prosumer, nil
	case "grid_operator":
		return identity.GridOperator, nil
	case "admin":
		return identity.Admin, nil
	}
	return identity.Consumer, identity.ErrUnauthorized
}

func parseDeviceType(s string) identity.DeviceType {
	switch s {
	case "solar_panel":
		return identity.SolarPanel
	case "battery":
		return identity.Battery
	case "smart_meter":
		return identity.SmartMeter
	}
	return identity.OtherDevice
}

// dispatch maps one request onto the coordinator, registry or ledger and
// returns the response together with the events the operation emitted.
func (s *Server) dispatch(req Request) (Response, []core.Event) {
	coord := s.coord
	switch req.Type {
	case "create_ask":
		id, events, err := coord.CreateAsk(core.AccountID(req.Account), req.Amount, req.Price, req.Location)
		if err != nil {
			return fail(err), nil
		}
		return Response{OK: true, OrderID: id.String()}, events

	case "create_bid":
		method, err := parseMethod(req.Method)
		if err != nil {
			return fail(err), nil
		}
		id, events, err := coord.CreateBid(core.AccountID(req.Account), req.Amount, req.Price, req.Location, method)
		if err != nil {
			return fail(err), nil
		}
		return Response{OK: true, OrderID: id.String()}, events

	case "match":
		askID, err := core.ParseHash(req.AskID)
		if err != nil {
			return fail(err), nil
		}
		bidID, err := core.ParseHash(req.BidID)
		if err != nil {
			return fail(err), nil
		}
		events, err := coord.Match(askID, bidID, core.AccountID(req.Account))
		if err != nil {
			return fail(err), nil
		}
		return Response{OK: true}, events

	case "cancel":
		id, err := core.ParseHash(req.OrderID)
		if err != nil {
			return fail(err), nil
		}
		events, err := coord.Cancel(id, core.AccountID(req.Account))
		if err != nil {
			return fail(err), nil
		}
		return Response{OK: true}, events

	case "start_transfer":
		id, err := core.ParseHash(req.OrderID)
		if err != nil {
			return fail(err), nil
		}
		events, err := coord.StartTransfer(id, time.UnixMilli(req.Timestamp))
		if err != nil {
			return fail(err), nil
		}
		return Response{OK: true}, events

	case "record_measurement":
		id, err := core.ParseHash(req.OrderID)
		if err != nil {
			return fail(err), nil
		}
		m, err := req.measurement()
		if err != nil {
			return fail(err), nil
		}
		events, err := coord.RecordMeasurement(id, m)
		if err != nil {
			return fail(err), nil
		}
		return Response{OK: true}, events

	case "complete_transfer":
		id, err := core.ParseHash(req.OrderID)
		if err != nil {
			return fail(err), nil
		}
		m, err := req.measurement()
		if err != nil {
			return fail(err), nil
		}
		events, err := coord.CompleteTransfer(id, time.UnixMilli(req.Timestamp), m)
		if err != nil && len(events) == 0 {
			return fail(err), nil
		}
		resp := Response{OK: err == nil}
		if err != nil {
			resp.Error = err.Error()
		}
		return resp, events

	case "report_failure":
		id, err := core.ParseHash(req.OrderID)
		if err != nil {
			return fail(err), nil
		}
		events, err := coord.ReportFailure(id, req.Reason)
		if err != nil {
			return fail(err), nil
		}
		return Response{OK: true}, events

	case "process_payment":
		id, err := core.ParseHash(req.PaymentID)
		if err != nil {
			return fail(err), nil
		}
		events, err := coord.ProcessExternalPayment(id, []byte(req.Proof))
		if err != nil && len(events) == 0 {
			return fail(err), nil
		}
		resp := Response{OK: err == nil}
		if err != nil {
			resp.Error = err.Error()
		}
		return resp, events

	case "get_order":
		id, err := core.ParseHash(req.OrderID)
		if err != nil {
			return fail(err), nil
		}
		o, err := coord.Order(id)
		if err != nil {
			return fail(err), nil
		}
		return Response{OK: true, Order: o}, nil

	case "get_delivery":
		id, err := core.ParseHash(req.OrderID)
		if err != nil {
			return fail(err), nil
		}
		d, err := coord.Delivery(id)
		if err != nil {
			return fail(err), nil
		}
		return Response{OK: true, Delivery: d}, nil

	case "get_payment":
		id, err := core.ParseHash(req.OrderID)
		if err != nil {
			return fail(err), nil
		}
		p, err := coord.Payment(id)
		if err != nil {
			return fail(err), nil
		}
		return Response{OK: true, Payment: p}, nil

	case "orders_by_account":
		ids, err := coord.OrdersByAccount(core.AccountID(req.Account))
		if err != nil {
			return fail(err), nil
		}
		out := make([]string, len(ids))
		for i, id := range ids {
			out[i] = id.String()
		}
		return Response{OK: true, Orders: out}, nil

	case "open_asks":
		return Response{OK: true, Asks: coord.OpenAsks()}, nil

	case "open_bids":
		return Response{OK: true, Bids: coord.OpenBids()}, nil

	case "register_user":
		role, err := parseRole(req.Role)
		if err != nil {
			return fail(err), nil
		}
		if err := s.registry.RegisterUser(core.AccountID(req.Account), role); err != nil {
			return fail(err), nil
		}
		return Response{OK: true}, nil

	case "register_device":
		id, err := s.registry.RegisterDevice(
			core.AccountID(req.Account),
			parseDeviceType(req.DeviceType),
			req.Capacity,
		)
		if err != nil {
			return fail(err), nil
		}
		return Response{OK: true, DeviceID: id.String()}, nil

	case "mint":
		if err := s.tokens.Mint(core.AccountID(req.Account), req.Amount); err != nil {
			return fail(err), nil
		}
		return Response{OK: true}, nil

	case "balance":
		return Response{OK: true, Balance: s.tokens.Balance(core.AccountID(req.Account))}, nil
	}

	return fail(ErrUnknownRequest), nil
}
