package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmarket/veilmarket/internal/domain"
	"github.com/veilmarket/veilmarket/internal/fhe"
)

func principal(t *testing.T, hex string) domain.Principal {
	t.Helper()
	p, err := domain.ParsePrincipal(hex)
	require.NoError(t, err)
	return p
}

func activeMarket(creator domain.Principal, options ...string) domain.Market {
	tallies := make([]fhe.Cipher[uint32], len(options))
	for i := range options {
		tallies[i] = fhe.NewCipher[uint32](fhe.Handle("tally-" + options[i]))
	}
	return domain.Market{
		Title:     "test market",
		Options:   options,
		Status:    domain.MarketStatusActive,
		Creator:   creator,
		Tallies:   tallies,
		CreatedAt: time.Now().UTC(),
	}
}

func TestMarketAppendAssignsDenseIDs(t *testing.T) {
	ctx := context.Background()
	st := New()
	alice := principal(t, "0x1111111111111111111111111111111111111111")

	for want := uint64(0); want < 3; want++ {
		m := activeMarket(alice, "yes", "no")
		id, err := st.Markets.Append(ctx, m, domain.NewMarketCreated(0, alice, m.Title))
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}

	n, err := st.Markets.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), n)

	// Each append journaled one creation event under the assigned id.
	evs, err := st.Events.List(ctx, domain.EventListOpts{})
	require.NoError(t, err)
	require.Len(t, evs, 3)
	for i, ev := range evs {
		assert.Equal(t, domain.EventMarketCreated, ev.Kind)
		assert.Equal(t, uint64(i), ev.MarketID)
	}
}

func TestMarketGetNotFound(t *testing.T) {
	st := New()
	_, err := st.Markets.Get(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarketListPagination(t *testing.T) {
	ctx := context.Background()
	st := New()
	alice := principal(t, "0x1111111111111111111111111111111111111111")
	for i := 0; i < 5; i++ {
		m := activeMarket(alice, "yes", "no")
		_, err := st.Markets.Append(ctx, m, domain.NewMarketCreated(0, alice, m.Title))
		require.NoError(t, err)
	}

	tests := []struct {
		name    string
		opts    domain.ListOpts
		wantIDs []uint64
	}{
		{"all", domain.ListOpts{}, []uint64{0, 1, 2, 3, 4}},
		{"limit", domain.ListOpts{Limit: 2}, []uint64{0, 1}},
		{"offset", domain.ListOpts{Offset: 3}, []uint64{3, 4}},
		{"window", domain.ListOpts{Limit: 2, Offset: 1}, []uint64{1, 2}},
		{"past end", domain.ListOpts{Offset: 9}, []uint64{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ms, err := st.Markets.List(ctx, tt.opts)
			require.NoError(t, err)
			ids := make([]uint64, 0, len(ms))
			for _, m := range ms {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestMarketCloneIsolation(t *testing.T) {
	ctx := context.Background()
	st := New()
	alice := principal(t, "0x1111111111111111111111111111111111111111")
	m := activeMarket(alice, "yes", "no")
	id, err := st.Markets.Append(ctx, m, domain.NewMarketCreated(0, alice, m.Title))
	require.NoError(t, err)

	got, err := st.Markets.Get(ctx, id)
	require.NoError(t, err)
	got.Options[0] = "mutated"
	got.Tallies[0] = fhe.NewCipher[uint32]("mutated")

	again, err := st.Markets.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "yes", again.Options[0])
	assert.Equal(t, fhe.Handle("tally-yes"), again.Tallies[0].Handle())
}

func TestBetRecordUpdatesMarket(t *testing.T) {
	ctx := context.Background()
	st := New()
	alice := principal(t, "0x1111111111111111111111111111111111111111")
	bob := principal(t, "0x2222222222222222222222222222222222222222")

	m := activeMarket(alice, "yes", "no")
	id, err := st.Markets.Append(ctx, m, domain.NewMarketCreated(0, alice, m.Title))
	require.NoError(t, err)

	bet := domain.Bet{
		MarketID:    id,
		Participant: bob,
		Choice:      fhe.NewCipher[uint32]("choice-1"),
		Amount:      250,
		PlacedAt:    time.Now().UTC(),
	}
	fresh := []fhe.Cipher[uint32]{
		fhe.NewCipher[uint32]("tally-yes-2"),
		fhe.NewCipher[uint32]("tally-no-2"),
	}
	require.NoError(t, st.Bets.Record(ctx, bet, fresh, domain.NewBetPlaced(id, bob, bet.Amount)))

	got, err := st.Markets.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(250), got.TotalStake)
	assert.Equal(t, uint64(1), got.ParticipantCount)
	assert.Equal(t, fhe.Handle("tally-yes-2"), got.Tallies[0].Handle())
	assert.Equal(t, fhe.Handle("tally-no-2"), got.Tallies[1].Handle())

	stored, err := st.Bets.Get(ctx, id, bob)
	require.NoError(t, err)
	assert.Equal(t, fhe.Handle("choice-1"), stored.Choice.Handle())

	evs, err := st.Events.List(ctx, domain.EventListOpts{})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, domain.EventBetPlaced, evs[1].Kind)
	assert.Equal(t, uint64(250), evs[1].Amount)
}

func TestBetRecordErrors(t *testing.T) {
	ctx := context.Background()
	st := New()
	alice := principal(t, "0x1111111111111111111111111111111111111111")
	bob := principal(t, "0x2222222222222222222222222222222222222222")

	m := activeMarket(alice, "yes", "no")
	id, err := st.Markets.Append(ctx, m, domain.NewMarketCreated(0, alice, m.Title))
	require.NoError(t, err)

	bet := domain.Bet{MarketID: id, Participant: bob, Choice: fhe.NewCipher[uint32]("c"), Amount: 10}

	t.Run("unknown market", func(t *testing.T) {
		missing := bet
		missing.MarketID = 99
		err := st.Bets.Record(ctx, missing, nil, domain.NewBetPlaced(99, bob, 10))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("duplicate participant", func(t *testing.T) {
		require.NoError(t, st.Bets.Record(ctx, bet, m.Tallies, domain.NewBetPlaced(id, bob, 10)))
		err := st.Bets.Record(ctx, bet, m.Tallies, domain.NewBetPlaced(id, bob, 10))
		assert.ErrorIs(t, err, domain.ErrAlreadyExists)
	})

	t.Run("failed record journals nothing", func(t *testing.T) {
		evs, err := st.Events.List(ctx, domain.EventListOpts{})
		require.NoError(t, err)
		assert.Len(t, evs, 2) // creation + the one successful bet
	})
}

func TestBetGetNotFound(t *testing.T) {
	st := New()
	bob := principal(t, "0x2222222222222222222222222222222222222222")
	_, err := st.Bets.Get(context.Background(), 0, bob)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMarketClose(t *testing.T) {
	ctx := context.Background()
	st := New()
	alice := principal(t, "0x1111111111111111111111111111111111111111")
	m := activeMarket(alice, "yes", "no")
	id, err := st.Markets.Append(ctx, m, domain.NewMarketCreated(0, alice, m.Title))
	require.NoError(t, err)

	closedAt := time.Now().UTC()
	require.NoError(t, st.Markets.Close(ctx, id, 1, closedAt, domain.NewPredictionClosed(id, 1, alice)))

	got, err := st.Markets.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusClosed, got.Status)
	require.NotNil(t, got.Result)
	assert.Equal(t, uint32(1), *got.Result)
	require.NotNil(t, got.ClosedAt)
	assert.Equal(t, closedAt, *got.ClosedAt)

	// Closing twice is rejected and journals nothing.
	err = st.Markets.Close(ctx, id, 0, time.Now().UTC(), domain.NewPredictionClosed(id, 0, alice))
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	err = st.Markets.Close(ctx, 42, 0, time.Now().UTC(), domain.NewPredictionClosed(42, 0, alice))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	evs, err := st.Events.List(ctx, domain.EventListOpts{})
	require.NoError(t, err)
	require.Len(t, evs, 2)
	assert.Equal(t, domain.EventPredictionClosed, evs[1].Kind)
}

func TestEventListSeqAndFilters(t *testing.T) {
	ctx := context.Background()
	st := New()
	alice := principal(t, "0x1111111111111111111111111111111111111111")

	base := time.Now().UTC()
	for i := 0; i < 4; i++ {
		ev := domain.NewOptionCountAccessGranted(uint64(i%2), alice)
		ev.At = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, st.Events.Append(ctx, ev))
	}

	all, err := st.Events.List(ctx, domain.EventListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i, ev := range all {
		assert.Equal(t, uint64(i+1), ev.Seq, "sequence numbers follow append order")
	}

	marketID := uint64(1)
	filtered, err := st.Events.List(ctx, domain.EventListOpts{MarketID: &marketID})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, uint64(2), filtered[0].Seq)
	assert.Equal(t, uint64(4), filtered[1].Seq)

	cutoff := base.Add(2 * time.Minute)
	early, err := st.Events.List(ctx, domain.EventListOpts{Before: &cutoff})
	require.NoError(t, err)
	assert.Len(t, early, 2)

	window, err := st.Events.List(ctx, domain.EventListOpts{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, uint64(2), window[0].Seq)
	assert.Equal(t, uint64(3), window[1].Seq)
}
