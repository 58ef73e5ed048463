package engine

import (
	"context"
	"fmt"

	"github.com/veilmarket/veilmarket/internal/fhe"
)

// selfGrant re-establishes the ledger's standing decrypt grant on a fresh
// handle. Every capability operation yields a new handle with an empty grant
// set, so this runs for each ciphertext the engine creates.
func (e *Engine) selfGrant(ctx context.Context, h fhe.Handle) error {
	if err := e.svc.Allow(ctx, h, e.self.String()); err != nil {
		return fmt.Errorf("engine: standing grant on %s: %w", h, err)
	}
	return nil
}

// incrementTallies runs the oblivious update for one bet. For every option
// index i it compares the choice against enc(i), selects an encrypted one or
// zero, and adds the delta to that option's counter. Every branch runs on
// every bet regardless of the choice, so access patterns, cost, and
// intermediate state never reveal which counter changed. A choice matching
// no index adds zero everywhere; the handles are still replaced.
func (e *Engine) incrementTallies(ctx context.Context, tallies []fhe.Cipher[uint32], choice fhe.Cipher[uint32]) ([]fhe.Cipher[uint32], error) {
	one, err := e.svc.EncryptUint32(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("engine: encrypt increment unit: %w", err)
	}
	zero, err := e.svc.EncryptUint32(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("engine: encrypt increment zero: %w", err)
	}

	next := make([]fhe.Cipher[uint32], len(tallies))
	for i, c := range tallies {
		idx, err := e.svc.EncryptUint32(ctx, uint32(i))
		if err != nil {
			return nil, fmt.Errorf("engine: encrypt option index %d: %w", i, err)
		}
		matched, err := e.svc.Eq(ctx, choice, idx)
		if err != nil {
			return nil, fmt.Errorf("engine: compare choice to option %d: %w", i, err)
		}
		delta, err := e.svc.Select(ctx, matched, one, zero)
		if err != nil {
			return nil, fmt.Errorf("engine: select delta for option %d: %w", i, err)
		}
		updated, err := e.svc.Add(ctx, c, delta)
		if err != nil {
			return nil, fmt.Errorf("engine: add delta to option %d: %w", i, err)
		}
		if err := e.selfGrant(ctx, updated.Handle()); err != nil {
			return nil, err
		}
		next[i] = updated
	}
	return next, nil
}

// Tallies returns the market's current tally ciphertext handles in option
// order. No decryption happens here and no capability is checked; holders of
// a grant decrypt through the capability service directly.
func (e *Engine) Tallies(ctx context.Context, marketID uint64) ([]fhe.Handle, error) {
	m, err := e.markets.Get(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("engine: tallies for market %d: %w", marketID, err)
	}
	return m.TallyHandles(), nil
}
