package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmarket/veilmarket/internal/domain"
	"github.com/veilmarket/veilmarket/internal/fhe"
	"github.com/veilmarket/veilmarket/internal/fhe/sim"
	"github.com/veilmarket/veilmarket/internal/store/memory"
)

const (
	ledgerAddr = "0x9999999999999999999999999999999999999999"
	aliceAddr  = "0x1111111111111111111111111111111111111111"
	bobAddr    = "0x2222222222222222222222222222222222222222"
	carolAddr  = "0x3333333333333333333333333333333333333333"

	aliceCred = "alice-cred"
	bobCred   = "bob-cred"
)

// captureSink records delivered events for assertions.
type captureSink struct {
	mu  sync.Mutex
	evs []domain.Event
}

func (c *captureSink) Deliver(ctx context.Context, ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evs = append(c.evs, ev)
	return nil
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) kinds() []domain.EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.EventKind, len(c.evs))
	for i, ev := range c.evs {
		out[i] = ev.Kind
	}
	return out
}

type testWorld struct {
	engine *Engine
	svc    *sim.Service
	sink   *captureSink
	self   domain.Principal
}

func newTestWorld(t *testing.T) *testWorld {
	t.Helper()

	svc := sim.New()
	svc.SetCredential(aliceAddr, aliceCred)
	svc.SetCredential(bobAddr, bobCred)

	self, err := domain.ParsePrincipal(ledgerAddr)
	require.NoError(t, err)

	st := memory.New()
	sink := &captureSink{}
	e := New(Deps{
		Markets: st.Markets,
		Bets:    st.Bets,
		Events:  st.Events,
		FHE:     svc,
		Sinks:   []domain.EventSink{sink},
		Self:    self,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return &testWorld{engine: e, svc: svc, sink: sink, self: self}
}

func (w *testWorld) principal(t *testing.T, hex string) domain.Principal {
	t.Helper()
	p, err := domain.ParsePrincipal(hex)
	require.NoError(t, err)
	return p
}

func (w *testWorld) encrypt(t *testing.T, v uint32) fhe.Cipher[uint32] {
	t.Helper()
	c, err := w.svc.EncryptUint32(context.Background(), v)
	require.NoError(t, err)
	return c
}

// decryptTallies reads the market's tally handles and decrypts each one as
// the given principal.
func (w *testWorld) decryptTallies(t *testing.T, marketID uint64, principalHex, cred string) []uint32 {
	t.Helper()
	ctx := context.Background()

	handles, err := w.engine.Tallies(ctx, marketID)
	require.NoError(t, err)

	out := make([]uint32, len(handles))
	for i, h := range handles {
		v, err := w.svc.DecryptUint32(ctx, fhe.NewCipher[uint32](h), principalHex, cred)
		require.NoError(t, err, "tally %d should decrypt", i)
		out[i] = v
	}
	return out
}

func TestCreateMarketInitialTalliesDecryptToZero(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t)
	alice := w.principal(t, aliceAddr)

	v, err := w.engine.CreateMarket(ctx, alice, "Weather tomorrow", []string{"sunny", "rainy", "snow"})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v.ID)
	assert.Equal(t, domain.MarketStatusActive, v.Status)
	assert.Equal(t, uint64(0), v.TotalStake)
	assert.Equal(t, uint64(0), v.ParticipantCount)
	assert.Nil(t, v.Result)
	assert.Equal(t, alice, v.Creator)

	require.NoError(t, w.engine.GrantTallyAccess(ctx, 0, alice))
	assert.Equal(t, []uint32{0, 0, 0}, w.decryptTallies(t, 0, aliceAddr, aliceCred))
}

func TestCreateMarketValidation(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t)
	alice := w.principal(t, aliceAddr)

	tests := []struct {
		name    string
		title   string
		options []string
		wantErr error
	}{
		{"empty title", "   ", []string{"a", "b"}, domain.ErrInvalidArgument},
		{"one option", "m", []string{"only"}, domain.ErrInvalidArgument},
		{"five options", "m", []string{"a", "b", "c", "d", "e"}, domain.ErrInvalidArgument},
		{"empty option", "m", []string{"a", " "}, domain.ErrInvalidArgument},
		{"two options", "m", []string{"a", "b"}, nil},
		{"four options", "m", []string{"a", "b", "c", "d"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.engine.CreateMarket(ctx, alice, tt.title, tt.options)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}

	// Only the two valid creates landed, with dense ids.
	count, err := w.engine.CountMarkets(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), count)

	views, err := w.engine.ListMarkets(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, uint64(0), views[0].ID)
	assert.Equal(t, uint64(1), views[1].ID)
}

func TestWeatherScenario(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t)
	alice := w.principal(t, aliceAddr)
	bob := w.principal(t, bobAddr)

	v, err := w.engine.CreateMarket(ctx, alice, "Weather", []string{"Sunny", "Rainy", "Snow"})
	require.NoError(t, err)
	require.Equal(t, uint64(0), v.ID)

	_, err = w.engine.PlaceBet(ctx, 0, alice, w.encrypt(t, 1), 100)
	require.NoError(t, err)

	v, err = w.engine.GetMarket(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), v.TotalStake)
	assert.Equal(t, uint64(1), v.ParticipantCount)

	require.NoError(t, w.engine.GrantTallyAccess(ctx, 0, alice))
	assert.Equal(t, []uint32{0, 1, 0}, w.decryptTallies(t, 0, aliceAddr, aliceCred))

	closed, err := w.engine.CloseMarket(ctx, 0, 1, bob)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusClosed, closed.Status)
	require.NotNil(t, closed.Result)
	assert.Equal(t, uint32(1), *closed.Result)

	_, err = w.engine.PlaceBet(ctx, 0, bob, w.encrypt(t, 0), 50)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestTallyCounting(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t)
	alice := w.principal(t, aliceAddr)

	_, err := w.engine.CreateMarket(ctx, alice, "counting", []string{"a", "b", "c", "d"})
	require.NoError(t, err)

	choices := []uint32{0, 1, 1, 3, 1, 0, 3, 2}
	for i, c := range choices {
		p := w.principal(t, fmt.Sprintf("0x%040d", i+1))
		_, err := w.engine.PlaceBet(ctx, 0, p, w.encrypt(t, c), 10)
		require.NoError(t, err)
	}

	require.NoError(t, w.engine.GrantTallyAccess(ctx, 0, alice))
	got := w.decryptTallies(t, 0, aliceAddr, aliceCred)
	assert.Equal(t, []uint32{2, 3, 1, 2}, got)

	var sum uint32
	for _, v := range got {
		sum += v
	}
	v, err := w.engine.GetMarket(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(sum), v.ParticipantCount, "tallies sum to the participant count")
	assert.Equal(t, uint64(len(choices)*10), v.TotalStake)
}

func TestTwoBetsSameChoiceAccumulate(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t)
	alice := w.principal(t, aliceAddr)
	bob := w.principal(t, bobAddr)

	_, err := w.engine.CreateMarket(ctx, alice, "same slot", []string{"yes", "no"})
	require.NoError(t, err)

	_, err = w.engine.PlaceBet(ctx, 0, alice, w.encrypt(t, 1), 30)
	require.NoError(t, err)
	_, err = w.engine.PlaceBet(ctx, 0, bob, w.encrypt(t, 1), 70)
	require.NoError(t, err)

	require.NoError(t, w.engine.GrantTallyAccess(ctx, 0, alice))
	assert.Equal(t, []uint32{0, 2}, w.decryptTallies(t, 0, aliceAddr, aliceCred))
}

func TestPlaceBetErrors(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t)
	alice := w.principal(t, aliceAddr)
	bob := w.principal(t, bobAddr)

	_, err := w.engine.CreateMarket(ctx, alice, "m", []string{"yes", "no"})
	require.NoError(t, err)
	_, err = w.engine.PlaceBet(ctx, 0, alice, w.encrypt(t, 0), 10)
	require.NoError(t, err)

	closedID := uint64(1)
	_, err = w.engine.CreateMarket(ctx, alice, "closed", []string{"yes", "no"})
	require.NoError(t, err)
	_, err = w.engine.CloseMarket(ctx, closedID, 0, alice)
	require.NoError(t, err)

	tests := []struct {
		name        string
		marketID    uint64
		participant domain.Principal
		choice      fhe.Cipher[uint32]
		amount      uint64
		wantErr     error
	}{
		{"unknown market", 42, bob, w.encrypt(t, 0), 10, domain.ErrNotFound},
		{"closed market", closedID, bob, w.encrypt(t, 0), 10, domain.ErrInvalidState},
		{"zero amount", 0, bob, w.encrypt(t, 0), 0, domain.ErrInvalidArgument},
		{"missing ciphertext", 0, bob, fhe.Cipher[uint32]{}, 10, domain.ErrInvalidArgument},
		{"duplicate bet", 0, alice, w.encrypt(t, 1), 10, domain.ErrAlreadyExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.engine.PlaceBet(ctx, tt.marketID, tt.participant, tt.choice, tt.amount)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// Rejections mutated nothing on the open market.
	v, err := w.engine.GetMarket(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), v.TotalStake)
	assert.Equal(t, uint64(1), v.ParticipantCount)
}

func TestGrantTallyAccessIdempotent(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t)
	alice := w.principal(t, aliceAddr)

	_, err := w.engine.CreateMarket(ctx, alice, "m", []string{"yes", "no"})
	require.NoError(t, err)

	require.NoError(t, w.engine.GrantTallyAccess(ctx, 0, alice))
	require.NoError(t, w.engine.GrantTallyAccess(ctx, 0, alice))

	handles, err := w.engine.Tallies(ctx, 0)
	require.NoError(t, err)
	for _, h := range handles {
		assert.ElementsMatch(t, []string{ledgerAddr, w.principal(t, aliceAddr).String()}, w.svc.Grants(h),
			"second grant adds no principal")
	}

	assert.ErrorIs(t, w.engine.GrantTallyAccess(ctx, 42, alice), domain.ErrNotFound)
}

func TestGrantsDoNotSurviveTallyReplacement(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t)
	alice := w.principal(t, aliceAddr)
	bob := w.principal(t, bobAddr)

	_, err := w.engine.CreateMarket(ctx, alice, "m", []string{"yes", "no"})
	require.NoError(t, err)
	require.NoError(t, w.engine.GrantTallyAccess(ctx, 0, alice))

	before, err := w.engine.Tallies(ctx, 0)
	require.NoError(t, err)

	_, err = w.engine.PlaceBet(ctx, 0, bob, w.encrypt(t, 0), 10)
	require.NoError(t, err)

	after, err := w.engine.Tallies(ctx, 0)
	require.NoError(t, err)
	for i := range after {
		assert.NotEqual(t, before[i], after[i], "bet replaces every tally handle")
	}

	// Alice's grant was on the old handles; the fresh ones deny her until
	// access is granted again.
	_, err = w.svc.DecryptUint32(ctx, fhe.NewCipher[uint32](after[0]), aliceAddr, aliceCred)
	assert.ErrorIs(t, err, fhe.ErrDenied)

	require.NoError(t, w.engine.GrantTallyAccess(ctx, 0, alice))
	assert.Equal(t, []uint32{1, 0}, w.decryptTallies(t, 0, aliceAddr, aliceCred))
}

func TestLedgerKeepsStandingGrant(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t)
	alice := w.principal(t, aliceAddr)

	_, err := w.engine.CreateMarket(ctx, alice, "m", []string{"yes", "no"})
	require.NoError(t, err)
	_, err = w.engine.PlaceBet(ctx, 0, alice, w.encrypt(t, 1), 10)
	require.NoError(t, err)

	handles, err := w.engine.Tallies(ctx, 0)
	require.NoError(t, err)
	for _, h := range handles {
		assert.Contains(t, w.svc.Grants(h), ledgerAddr,
			"engine re-establishes its own grant on every replacement handle")
	}
}

func TestBetRoundTrip(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t)
	alice := w.principal(t, aliceAddr)
	bob := w.principal(t, bobAddr)

	_, err := w.engine.CreateMarket(ctx, alice, "m", []string{"a", "b", "c"})
	require.NoError(t, err)
	_, err = w.engine.PlaceBet(ctx, 0, alice, w.encrypt(t, 2), 10)
	require.NoError(t, err)

	bet, err := w.engine.GetBet(ctx, 0, alice)
	require.NoError(t, err)
	require.False(t, bet.ChoiceHandle.IsZero())

	// Without a grant even the bettor is denied.
	_, err = w.svc.DecryptUint32(ctx, fhe.NewCipher[uint32](bet.ChoiceHandle), aliceAddr, aliceCred)
	assert.ErrorIs(t, err, fhe.ErrDenied)

	require.NoError(t, w.engine.GrantBetAccess(ctx, 0, alice))

	got, err := w.svc.DecryptUint32(ctx, fhe.NewCipher[uint32](bet.ChoiceHandle), aliceAddr, aliceCred)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), got)

	// The grant names alice only; bob stays denied.
	_, err = w.svc.DecryptUint32(ctx, fhe.NewCipher[uint32](bet.ChoiceHandle), bobAddr, bobCred)
	assert.ErrorIs(t, err, fhe.ErrDenied)

	// No bet, no grant.
	assert.ErrorIs(t, w.engine.GrantBetAccess(ctx, 0, bob), domain.ErrNotFound)
	assert.ErrorIs(t, w.engine.GrantBetAccess(ctx, 42, bob), domain.ErrNotFound)
}

func TestOutOfRangeChoiceAbsorbed(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t)
	alice := w.principal(t, aliceAddr)
	bob := w.principal(t, bobAddr)

	_, err := w.engine.CreateMarket(ctx, alice, "m", []string{"yes", "no"})
	require.NoError(t, err)

	before, err := w.engine.Tallies(ctx, 0)
	require.NoError(t, err)

	// Choice 9 matches no option: the bet is accepted, the stake counts,
	// and every counter keeps its value.
	_, err = w.engine.PlaceBet(ctx, 0, bob, w.encrypt(t, 9), 25)
	require.NoError(t, err)

	v, err := w.engine.GetMarket(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(25), v.TotalStake)
	assert.Equal(t, uint64(1), v.ParticipantCount)

	after, err := w.engine.Tallies(ctx, 0)
	require.NoError(t, err)
	for i := range after {
		assert.NotEqual(t, before[i], after[i], "handles are replaced even when no counter changes value")
	}

	require.NoError(t, w.engine.GrantTallyAccess(ctx, 0, alice))
	assert.Equal(t, []uint32{0, 0}, w.decryptTallies(t, 0, aliceAddr, aliceCred))
}

func TestCloseMarketErrors(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t)
	alice := w.principal(t, aliceAddr)
	bob := w.principal(t, bobAddr)

	_, err := w.engine.CreateMarket(ctx, alice, "m", []string{"yes", "no"})
	require.NoError(t, err)

	_, err = w.engine.CloseMarket(ctx, 42, 0, alice)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = w.engine.CloseMarket(ctx, 0, 2, alice)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	// Close authority is permissionless: bob never created or bet here.
	_, err = w.engine.CloseMarket(ctx, 0, 1, bob)
	require.NoError(t, err)

	_, err = w.engine.CloseMarket(ctx, 0, 0, alice)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestEventJournal(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t)
	alice := w.principal(t, aliceAddr)
	bob := w.principal(t, bobAddr)

	_, err := w.engine.CreateMarket(ctx, alice, "Weather", []string{"Sunny", "Rainy"})
	require.NoError(t, err)
	_, err = w.engine.PlaceBet(ctx, 0, bob, w.encrypt(t, 1), 100)
	require.NoError(t, err)
	require.NoError(t, w.engine.GrantTallyAccess(ctx, 0, alice))
	require.NoError(t, w.engine.GrantBetAccess(ctx, 0, bob))
	_, err = w.engine.CloseMarket(ctx, 0, 1, alice)
	require.NoError(t, err)

	wantKinds := []domain.EventKind{
		domain.EventMarketCreated,
		domain.EventBetPlaced,
		domain.EventOptionCountAccessGrant,
		domain.EventBetAccessGrant,
		domain.EventPredictionClosed,
	}

	evs, err := w.engine.ListEvents(ctx, domain.EventListOpts{})
	require.NoError(t, err)
	require.Len(t, evs, len(wantKinds))
	for i, ev := range evs {
		assert.Equal(t, wantKinds[i], ev.Kind)
		assert.Equal(t, uint64(i+1), ev.Seq, "journal order is the emission order")
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.At.IsZero())
	}

	// One mutating operation, one event; each carries identifiers only. The
	// bet event has the public amount and no choice in any form.
	assert.Equal(t, "Weather", evs[0].Title)
	assert.Equal(t, alice, evs[0].Principal)
	assert.Equal(t, uint64(100), evs[1].Amount)
	assert.Equal(t, bob, evs[1].Principal)
	assert.Nil(t, evs[1].Option)
	require.NotNil(t, evs[4].Option)
	assert.Equal(t, uint32(1), *evs[4].Option)

	// The sink saw the same events in the same order.
	assert.Equal(t, wantKinds, w.sink.kinds())
}

func TestEventFilterByMarket(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t)
	alice := w.principal(t, aliceAddr)

	for i := 0; i < 2; i++ {
		_, err := w.engine.CreateMarket(ctx, alice, fmt.Sprintf("m%d", i), []string{"yes", "no"})
		require.NoError(t, err)
	}
	_, err := w.engine.PlaceBet(ctx, 1, alice, w.encrypt(t, 0), 10)
	require.NoError(t, err)

	marketID := uint64(1)
	evs, err := w.engine.ListEvents(ctx, domain.EventListOpts{MarketID: &marketID})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, domain.EventMarketCreated, evs[0].Kind)
	assert.Equal(t, domain.EventBetPlaced, evs[1].Kind)
}

func TestConcurrentBetsOneMarket(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t)
	alice := w.principal(t, aliceAddr)

	_, err := w.engine.CreateMarket(ctx, alice, "busy", []string{"a", "b", "c"})
	require.NoError(t, err)

	const bettors = 9
	var wg sync.WaitGroup
	errs := make([]error, bettors)
	for i := 0; i < bettors; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := domain.ParsePrincipal(fmt.Sprintf("0x%040d", i+1))
			if err != nil {
				errs[i] = err
				return
			}
			choice, err := w.svc.EncryptUint32(ctx, uint32(i%3))
			if err != nil {
				errs[i] = err
				return
			}
			_, errs[i] = w.engine.PlaceBet(ctx, 0, p, choice, 5)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "bettor %d", i)
	}

	v, err := w.engine.GetMarket(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(bettors*5), v.TotalStake)
	assert.Equal(t, uint64(bettors), v.ParticipantCount)

	require.NoError(t, w.engine.GrantTallyAccess(ctx, 0, alice))
	assert.Equal(t, []uint32{3, 3, 3}, w.decryptTallies(t, 0, aliceAddr, aliceCred))
}

func TestConcurrentCreatesAssignDenseIDs(t *testing.T) {
	ctx := context.Background()
	w := newTestWorld(t)
	alice := w.principal(t, aliceAddr)

	const n = 8
	var wg sync.WaitGroup
	ids := make([]uint64, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := w.engine.CreateMarket(ctx, alice, fmt.Sprintf("m%d", i), []string{"yes", "no"})
			if err != nil {
				errs[i] = err
				return
			}
			ids[i] = v.ID
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		require.NoError(t, err, "create %d", i)
	}

	seen := make(map[uint64]bool, n)
	for _, id := range ids {
		assert.Less(t, id, uint64(n))
		assert.False(t, seen[id], "id %d assigned twice", id)
		seen[id] = true
	}
}

type fakeCache struct {
	mu            sync.Mutex
	m             map[uint64]domain.MarketView
	invalidations int
}

func newFakeCache() *fakeCache {
	return &fakeCache{m: make(map[uint64]domain.MarketView)}
}

func (f *fakeCache) Set(ctx context.Context, v domain.MarketView) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.m[v.ID] = v
	return nil
}

func (f *fakeCache) Get(ctx context.Context, id uint64) (domain.MarketView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.m[id]
	if !ok {
		return domain.MarketView{}, domain.ErrNotFound
	}
	return v, nil
}

func (f *fakeCache) Invalidate(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.m, id)
	f.invalidations++
	return nil
}

func TestMutationsInvalidateCache(t *testing.T) {
	ctx := context.Background()

	svc := sim.New()
	self, err := domain.ParsePrincipal(ledgerAddr)
	require.NoError(t, err)
	st := memory.New()
	cache := newFakeCache()
	e := New(Deps{
		Markets: st.Markets,
		Bets:    st.Bets,
		Events:  st.Events,
		FHE:     svc,
		Cache:   cache,
		Self:    self,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	alice, err := domain.ParsePrincipal(aliceAddr)
	require.NoError(t, err)

	_, err = e.CreateMarket(ctx, alice, "cached", []string{"yes", "no"})
	require.NoError(t, err)

	// Create primed the cache; a bet must evict the stale view so reads see
	// the new aggregates.
	choice, err := svc.EncryptUint32(ctx, 0)
	require.NoError(t, err)
	_, err = e.PlaceBet(ctx, 0, alice, choice, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.invalidations)

	v, err := e.GetMarket(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), v.TotalStake)

	_, err = e.CloseMarket(ctx, 0, 0, alice)
	require.NoError(t, err)
	assert.Equal(t, 2, cache.invalidations)

	v, err = e.GetMarket(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusClosed, v.Status)
}
