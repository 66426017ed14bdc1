package ledger_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/internal/ledger"
)

func TestCreditDebit(t *testing.T) {
	l := ledger.NewMemory()

	assert.Equal(t, uint64(0), l.Balance("alice"))
	require.NoError(t, l.Credit("alice", 100))
	require.NoError(t, l.Debit("alice", 30))
	assert.Equal(t, uint64(70), l.Balance("alice"))

	// Accounts are independent.
	assert.Equal(t, uint64(0), l.Balance("bob"))
}

func TestDebit_Insufficient(t *testing.T) {
	l := ledger.NewMemory()
	require.NoError(t, l.Credit("alice", 50))

	err := l.Debit("alice", 51)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	assert.Equal(t, uint64(50), l.Balance("alice"))
}

func TestCredit_Overflow(t *testing.T) {
	l := ledger.NewMemory()
	require.NoError(t, l.Credit("alice", math.MaxUint64))

	err := l.Credit("alice", 1)
	assert.ErrorIs(t, err, ledger.ErrOverflow)
	assert.Equal(t, uint64(math.MaxUint64), l.Balance("alice"))
}

func TestMint(t *testing.T) {
	l := ledger.NewMemory()
	require.NoError(t, l.Mint("treasury", 1_000_000))
	assert.Equal(t, uint64(1_000_000), l.Balance("treasury"))
}
