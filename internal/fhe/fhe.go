// Package fhe defines the homomorphic value capability consumed by the
// ledger engine. The capability is an external service: the engine only ever
// sees opaque ciphertext handles and the operations declared here. Two
// implementations exist in subpackages: sim (a plaintext-simulating backend
// for tests and local development) and gateway (a REST adapter for a real
// coprocessor deployment).
package fhe

import (
	"context"
	"errors"
)

var (
	// ErrDenied is returned when a principal attempts to decrypt a
	// ciphertext it holds no grant for, or presents a bad credential.
	ErrDenied = errors.New("decrypt denied")

	// ErrUnknownHandle is returned when an operation references a handle the
	// backend has no ciphertext for.
	ErrUnknownHandle = errors.New("unknown ciphertext handle")

	// ErrUnavailable is returned when the backend cannot be reached or
	// refuses service for reasons unrelated to a specific handle.
	ErrUnavailable = errors.New("capability backend unavailable")
)

// Handle is an opaque reference to a ciphertext held by the capability
// backend. Handles are identity, not value: every operation that produces a
// ciphertext produces a new handle with an empty grant set, even when the
// underlying plaintext is unchanged.
type Handle string

// IsZero reports whether the handle is unset.
func (h Handle) IsZero() bool { return h == "" }

// Plain enumerates the plaintext types the capability can encrypt.
type Plain interface {
	~bool | ~uint32
}

// Cipher is a typed wrapper around a Handle. The type parameter records the
// plaintext type the handle encrypts, so boolean comparison results and
// integer counters cannot be mixed up at compile time. The wrapper carries
// no cryptographic material.
type Cipher[T Plain] struct {
	handle Handle
}

// NewCipher wraps a raw handle. Used when rehydrating ciphertext references
// from storage or the wire.
func NewCipher[T Plain](h Handle) Cipher[T] {
	return Cipher[T]{handle: h}
}

// Handle returns the opaque backend reference.
func (c Cipher[T]) Handle() Handle { return c.handle }

// IsZero reports whether the cipher references no ciphertext.
func (c Cipher[T]) IsZero() bool { return c.handle.IsZero() }

// Service is the operation surface of the homomorphic value capability.
//
// All methods are synchronous but potentially slow (the real backend is a
// network service); callers must not hold locks over unrelated state while
// invoking them. Principals and credentials are opaque strings owned by the
// host identity substrate.
type Service interface {
	// EncryptUint32 encrypts a plaintext value and returns a fresh
	// ciphertext. The new handle carries no decrypt grants.
	EncryptUint32(ctx context.Context, value uint32) (Cipher[uint32], error)

	// Eq compares two encrypted values and returns an encrypted boolean.
	Eq(ctx context.Context, a, b Cipher[uint32]) (Cipher[bool], error)

	// Select returns ifTrue when cond holds, ifFalse otherwise, without
	// revealing which branch was taken.
	Select(ctx context.Context, cond Cipher[bool], ifTrue, ifFalse Cipher[uint32]) (Cipher[uint32], error)

	// Add returns the encrypted sum of two encrypted values.
	Add(ctx context.Context, a, b Cipher[uint32]) (Cipher[uint32], error)

	// Allow marks principal as an authorized decryptor of the ciphertext
	// behind h. Grants are additive and never revoked; granting an already
	// granted principal is a no-op.
	Allow(ctx context.Context, h Handle, principal string) error

	// DecryptUint32 recovers the plaintext behind c for an authorized
	// principal. Returns ErrDenied when the principal holds no grant or the
	// credential does not check out.
	DecryptUint32(ctx context.Context, c Cipher[uint32], principal, credential string) (uint32, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Name identifies the backend implementation, e.g. "sim" or "gateway".
	Name() string
}
