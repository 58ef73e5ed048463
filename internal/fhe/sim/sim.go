// Package sim implements fhe.Service with plaintext arithmetic. It exists so
// the engine and its callers can run without a coprocessor: values are stored
// in process memory, but the access-control contract is enforced exactly as a
// real backend would, including the rule that every operation yields a fresh
// handle with an empty grant set.
package sim

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/veilmarket/veilmarket/internal/fhe"
)

type entry struct {
	value  uint64
	grants map[string]struct{}
}

// Service is the in-memory capability backend. Safe for concurrent use.
type Service struct {
	mu      sync.RWMutex
	entries map[fhe.Handle]*entry
	creds   map[string]string
}

// New creates an empty simulator.
func New() *Service {
	return &Service{
		entries: make(map[fhe.Handle]*entry),
		creds:   make(map[string]string),
	}
}

// SetCredential registers the decrypt credential for a principal. The real
// backend owns credential issuance; the simulator needs them handed in.
func (s *Service) SetCredential(principal, credential string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[principal] = credential
}

func (s *Service) newEntry(value uint64) fhe.Handle {
	h := fhe.Handle(uuid.New().String())
	s.entries[h] = &entry{
		value:  value,
		grants: make(map[string]struct{}),
	}
	return h
}

func (s *Service) lookup(h fhe.Handle) (*entry, error) {
	e, ok := s.entries[h]
	if !ok {
		return nil, fmt.Errorf("sim: handle %s: %w", h, fhe.ErrUnknownHandle)
	}
	return e, nil
}

// EncryptUint32 stores the value under a fresh handle with no grants.
func (s *Service) EncryptUint32(ctx context.Context, value uint32) (fhe.Cipher[uint32], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fhe.NewCipher[uint32](s.newEntry(uint64(value))), nil
}

// Eq compares the plaintexts behind a and b into a fresh boolean ciphertext.
func (s *Service) Eq(ctx context.Context, a, b fhe.Cipher[uint32]) (fhe.Cipher[bool], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ea, err := s.lookup(a.Handle())
	if err != nil {
		return fhe.Cipher[bool]{}, err
	}
	eb, err := s.lookup(b.Handle())
	if err != nil {
		return fhe.Cipher[bool]{}, err
	}

	var v uint64
	if ea.value == eb.value {
		v = 1
	}
	return fhe.NewCipher[bool](s.newEntry(v)), nil
}

// Select returns a fresh ciphertext holding ifTrue's value when cond is an
// encrypted true, ifFalse's otherwise.
func (s *Service) Select(ctx context.Context, cond fhe.Cipher[bool], ifTrue, ifFalse fhe.Cipher[uint32]) (fhe.Cipher[uint32], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ec, err := s.lookup(cond.Handle())
	if err != nil {
		return fhe.Cipher[uint32]{}, err
	}
	et, err := s.lookup(ifTrue.Handle())
	if err != nil {
		return fhe.Cipher[uint32]{}, err
	}
	ef, err := s.lookup(ifFalse.Handle())
	if err != nil {
		return fhe.Cipher[uint32]{}, err
	}

	v := ef.value
	if ec.value != 0 {
		v = et.value
	}
	return fhe.NewCipher[uint32](s.newEntry(v)), nil
}

// Add sums the plaintexts behind a and b into a fresh ciphertext, wrapping
// at 32 bits like the coprocessor's uint32 arithmetic.
func (s *Service) Add(ctx context.Context, a, b fhe.Cipher[uint32]) (fhe.Cipher[uint32], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ea, err := s.lookup(a.Handle())
	if err != nil {
		return fhe.Cipher[uint32]{}, err
	}
	eb, err := s.lookup(b.Handle())
	if err != nil {
		return fhe.Cipher[uint32]{}, err
	}

	v := uint64(uint32(ea.value) + uint32(eb.value))
	return fhe.NewCipher[uint32](s.newEntry(v)), nil
}

// Allow adds principal to the handle's grant set. Idempotent.
func (s *Service) Allow(ctx context.Context, h fhe.Handle, principal string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, err := s.lookup(h)
	if err != nil {
		return fmt.Errorf("sim: allow: %w", err)
	}
	e.grants[principal] = struct{}{}
	return nil
}

// DecryptUint32 returns the plaintext when principal holds a grant on the
// handle and presents its registered credential. Everything else is Denied;
// the simulator does not distinguish "no grant" from "bad credential" so the
// error reveals nothing about grant membership.
func (s *Service) DecryptUint32(ctx context.Context, c fhe.Cipher[uint32], principal, credential string) (uint32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[c.Handle()]
	if !ok {
		return 0, fmt.Errorf("sim: decrypt handle %s: %w", c.Handle(), fhe.ErrUnknownHandle)
	}

	if _, granted := e.grants[principal]; !granted {
		return 0, fmt.Errorf("sim: decrypt by %s: %w", principal, fhe.ErrDenied)
	}
	want, ok := s.creds[principal]
	if !ok || subtle.ConstantTimeCompare([]byte(want), []byte(credential)) != 1 {
		return 0, fmt.Errorf("sim: decrypt by %s: %w", principal, fhe.ErrDenied)
	}

	return uint32(e.value), nil
}

// Ping always succeeds; the simulator lives in process.
func (s *Service) Ping(ctx context.Context) error { return nil }

// Name identifies the backend.
func (s *Service) Name() string { return "sim" }

// Grants returns the sorted principals granted on a handle. Test hook.
func (s *Service) Grants(h fhe.Handle) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[h]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(e.grants))
	for p := range e.grants {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// HandleCount returns the number of ciphertexts the backend holds. Test hook.
func (s *Service) HandleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Compile-time interface check.
var _ fhe.Service = (*Service)(nil)
