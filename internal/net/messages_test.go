package net

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/internal/book"
	"ampere/internal/config"
	"ampere/internal/core"
	"ampere/internal/delivery"
	"ampere/internal/events"
	"ampere/internal/identity"
	"ampere/internal/ledger"
	"ampere/internal/settle"
	"ampere/internal/store"
	"ampere/internal/trade"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	st := store.NewMemory()
	tokens := ledger.NewMemory()
	registry := identity.NewRegistry()

	cfg := config.Default()
	verifier := delivery.NewVerifier(st, registry, cfg.Tolerance, cfg.Bounds)
	engine := settle.New(st, tokens, cfg.EscrowAtMatch)
	coord := trade.NewCoordinator(st, book.New(tokens), verifier, engine, registry)

	return New("127.0.0.1", 0, coord, registry, tokens, events.Log{})
}

func TestDispatch_RegisterMintAndTrade(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.dispatch(Request{Type: "register_user", Account: "seller", Role: "prosumer"})
	require.True(t, resp.OK, resp.Error)
	resp, _ = s.dispatch(Request{Type: "register_user", Account: "buyer", Role: "consumer"})
	require.True(t, resp.OK, resp.Error)
	resp, _ = s.dispatch(Request{Type: "register_user", Account: "op", Role: "grid_operator"})
	require.True(t, resp.OK, resp.Error)

	resp, _ = s.dispatch(Request{Type: "mint", Account: "buyer", Amount: 2000})
	require.True(t, resp.OK, resp.Error)
	resp, _ = s.dispatch(Request{Type: "balance", Account: "buyer"})
	require.True(t, resp.OK)
	assert.Equal(t, uint64(2000), resp.Balance)

	resp, evs := s.dispatch(Request{
		Type: "create_ask", Account: "seller", Amount: 100, Price: 10, Location: "loc1",
	})
	require.True(t, resp.OK, resp.Error)
	require.Len(t, evs, 1)
	askID := resp.OrderID

	resp, _ = s.dispatch(Request{
		Type: "create_bid", Account: "buyer", Amount: 100, Price: 10, Location: "loc1",
	})
	require.True(t, resp.OK, resp.Error)
	bidID := resp.OrderID

	resp, evs = s.dispatch(Request{Type: "match", Account: "op", AskID: askID, BidID: bidID})
	require.True(t, resp.OK, resp.Error)
	require.Len(t, evs, 1)
	assert.Equal(t, "orders_matched", evs[0].Kind())

	resp, _ = s.dispatch(Request{Type: "get_order", OrderID: askID})
	require.True(t, resp.OK, resp.Error)
	require.NotNil(t, resp.Order)
	assert.Equal(t, core.Matched, resp.Order.Status)

	resp, _ = s.dispatch(Request{Type: "orders_by_account", Account: "seller"})
	require.True(t, resp.OK)
	assert.Equal(t, []string{askID}, resp.Orders)
}

func TestDispatch_Errors(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.dispatch(Request{Type: "no_such_op"})
	assert.False(t, resp.OK)
	assert.Equal(t, ErrUnknownRequest.Error(), resp.Error)

	resp, _ = s.dispatch(Request{Type: "get_order", OrderID: "not-hex"})
	assert.False(t, resp.OK)
	assert.Equal(t, core.ErrInvalidHash.Error(), resp.Error)

	resp, _ = s.dispatch(Request{Type: "create_bid", Account: "nobody", Method: "barter"})
	assert.False(t, resp.OK)
	assert.Equal(t, core.ErrMethodNotSupported.Error(), resp.Error)

	resp, _ = s.dispatch(Request{Type: "register_user", Account: "x", Role: "overlord"})
	assert.False(t, resp.OK)
}

func TestDispatch_RegisterDevice(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.dispatch(Request{Type: "register_user", Account: "seller", Role: "prosumer"})
	require.True(t, resp.OK, resp.Error)

	resp, _ = s.dispatch(Request{
		Type: "register_device", Account: "seller", DeviceType: "smart_meter", Capacity: 500,
	})
	require.True(t, resp.OK, resp.Error)
	assert.NotEmpty(t, resp.DeviceID)

	_, err := core.ParseHash(resp.DeviceID)
	assert.NoError(t, err)
}

func TestParseMethod(t *testing.T) {
	m, err := parseMethod("")
	require.NoError(t, err)
	assert.Equal(t, core.Native, m)

	m, err = parseMethod("stablecoin")
	require.NoError(t, err)
	assert.Equal(t, core.Stablecoin, m)

	_, err = parseMethod("gold")
	assert.ErrorIs(t, err, core.ErrMethodNotSupported)
}
