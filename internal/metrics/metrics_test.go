package metrics

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmarket/veilmarket/internal/domain"
	"github.com/veilmarket/veilmarket/internal/fhe"
)

// stubFHE satisfies fhe.Service with canned results and an optional error.
type stubFHE struct {
	err error
}

func (s *stubFHE) EncryptUint32(context.Context, uint32) (fhe.Cipher[uint32], error) {
	return fhe.NewCipher[uint32]("ct-enc"), s.err
}

func (s *stubFHE) Eq(context.Context, fhe.Cipher[uint32], fhe.Cipher[uint32]) (fhe.Cipher[bool], error) {
	return fhe.NewCipher[bool]("ct-eq"), s.err
}

func (s *stubFHE) Select(context.Context, fhe.Cipher[bool], fhe.Cipher[uint32], fhe.Cipher[uint32]) (fhe.Cipher[uint32], error) {
	return fhe.NewCipher[uint32]("ct-sel"), s.err
}

func (s *stubFHE) Add(context.Context, fhe.Cipher[uint32], fhe.Cipher[uint32]) (fhe.Cipher[uint32], error) {
	return fhe.NewCipher[uint32]("ct-add"), s.err
}

func (s *stubFHE) Allow(context.Context, fhe.Handle, string) error { return s.err }

func (s *stubFHE) DecryptUint32(context.Context, fhe.Cipher[uint32], string, string) (uint32, error) {
	return 42, s.err
}

func (s *stubFHE) Ping(context.Context) error { return s.err }

func (s *stubFHE) Name() string { return "stub" }

func TestInstrumentedFHECountsCalls(t *testing.T) {
	m := NewWith(prometheus.NewRegistry())
	svc := InstrumentFHE(&stubFHE{}, m)
	ctx := context.Background()

	_, err := svc.EncryptUint32(ctx, 7)
	require.NoError(t, err)
	_, err = svc.Add(ctx, fhe.NewCipher[uint32]("a"), fhe.NewCipher[uint32]("b"))
	require.NoError(t, err)
	_, err = svc.Add(ctx, fhe.NewCipher[uint32]("a"), fhe.NewCipher[uint32]("b"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FHECalls.WithLabelValues("encrypt", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FHECalls.WithLabelValues("add", "ok")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FHECalls.WithLabelValues("add", "error")))
}

func TestInstrumentedFHERecordsErrors(t *testing.T) {
	m := NewWith(prometheus.NewRegistry())
	svc := InstrumentFHE(&stubFHE{err: assert.AnError}, m)

	_, err := svc.DecryptUint32(context.Background(), fhe.NewCipher[uint32]("ct"), "0xabc", "sig")
	require.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FHECalls.WithLabelValues("decrypt", "error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FHECalls.WithLabelValues("decrypt", "ok")))
}

func TestInstrumentedFHEForwardsResults(t *testing.T) {
	m := NewWith(prometheus.NewRegistry())
	svc := InstrumentFHE(&stubFHE{}, m)
	ctx := context.Background()

	c, err := svc.EncryptUint32(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, fhe.Handle("ct-enc"), c.Handle())

	v, err := svc.DecryptUint32(ctx, fhe.NewCipher[uint32]("ct"), "0xabc", "sig")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), v)

	assert.Equal(t, "stub", svc.Name())
}

func TestEventSinkCountsByKind(t *testing.T) {
	m := NewWith(prometheus.NewRegistry())
	sink := NewEventSink(m)
	ctx := context.Background()

	prin, err := domain.ParsePrincipal("0x1111111111111111111111111111111111111111")
	require.NoError(t, err)

	require.NoError(t, sink.Deliver(ctx, domain.NewBetPlaced(1, prin, 100)))
	require.NoError(t, sink.Deliver(ctx, domain.NewBetPlaced(1, prin, 250)))
	require.NoError(t, sink.Deliver(ctx, domain.NewMarketCreated(2, prin, "rain tomorrow")))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Events.WithLabelValues(string(domain.EventBetPlaced))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues(string(domain.EventMarketCreated))))
	assert.Equal(t, "metrics", sink.Name())
}
