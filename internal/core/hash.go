package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
)

// Hash is the fixed-width content-derived identifier used for orders,
// payments and devices.
type Hash [32]byte

var ZeroHash Hash

var ErrInvalidHash = errors.New("invalid hash encoding")

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// MarshalText implements encoding.TextMarshaler so hashes serialize as hex.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hash) UnmarshalText(b []byte) error {
	parsed, err := ParseHash(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// ParseHash decodes a 64 character hex string into a Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(h) {
		return ZeroHash, ErrInvalidHash
	}
	copy(h[:], b)
	return h, nil
}

// HashOf derives an identifier from the given byte fields. Fields are
// length-prefixed so that no two distinct field sequences collide.
func HashOf(fields ...[]byte) Hash {
	d := sha256.New()
	var n [8]byte
	for _, f := range fields {
		binary.BigEndian.PutUint64(n[:], uint64(len(f)))
		d.Write(n[:])
		d.Write(f)
	}
	var h Hash
	copy(h[:], d.Sum(nil))
	return h
}

func u64bytes(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// OrderIDOf derives an order identifier from the creator, a per-order
// nonce and the creation timestamp.
func OrderIDOf(creator AccountID, nonce string, createdAt int64) Hash {
	return HashOf([]byte("order"), []byte(creator), []byte(nonce), u64bytes(uint64(createdAt)))
}

// DeliveryRefOf derives the audit reference for a verified delivery from
// the order and the accepted evidence.
func DeliveryRefOf(orderID Hash, energyDelivered uint64, endUnixNano int64) Hash {
	return HashOf([]byte("delivery"), orderID[:], u64bytes(energyDelivered), u64bytes(uint64(endUnixNano)))
}

// PaymentIDOf derives a payment identifier from its order and parties.
func PaymentIDOf(orderID Hash, payer, payee AccountID, amount uint64) Hash {
	return HashOf([]byte("payment"), orderID[:], []byte(payer), []byte(payee), u64bytes(amount))
}
