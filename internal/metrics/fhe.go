package metrics

import (
	"context"
	"time"

	"github.com/veilmarket/veilmarket/internal/fhe"
)

// InstrumentedFHE wraps an fhe.Service and records per-operation call counts
// and latencies. It forwards results untouched.
type InstrumentedFHE struct {
	svc fhe.Service
	m   *Metrics
}

// InstrumentFHE decorates svc with the given instruments.
func InstrumentFHE(svc fhe.Service, m *Metrics) *InstrumentedFHE {
	return &InstrumentedFHE{svc: svc, m: m}
}

var _ fhe.Service = (*InstrumentedFHE)(nil)

func (f *InstrumentedFHE) EncryptUint32(ctx context.Context, value uint32) (fhe.Cipher[uint32], error) {
	start := time.Now()
	c, err := f.svc.EncryptUint32(ctx, value)
	f.observe("encrypt", start, err)
	return c, err
}

func (f *InstrumentedFHE) Eq(ctx context.Context, a, b fhe.Cipher[uint32]) (fhe.Cipher[bool], error) {
	start := time.Now()
	c, err := f.svc.Eq(ctx, a, b)
	f.observe("eq", start, err)
	return c, err
}

func (f *InstrumentedFHE) Select(ctx context.Context, cond fhe.Cipher[bool], ifTrue, ifFalse fhe.Cipher[uint32]) (fhe.Cipher[uint32], error) {
	start := time.Now()
	c, err := f.svc.Select(ctx, cond, ifTrue, ifFalse)
	f.observe("select", start, err)
	return c, err
}

func (f *InstrumentedFHE) Add(ctx context.Context, a, b fhe.Cipher[uint32]) (fhe.Cipher[uint32], error) {
	start := time.Now()
	c, err := f.svc.Add(ctx, a, b)
	f.observe("add", start, err)
	return c, err
}

func (f *InstrumentedFHE) Allow(ctx context.Context, h fhe.Handle, principal string) error {
	start := time.Now()
	err := f.svc.Allow(ctx, h, principal)
	f.observe("allow", start, err)
	return err
}

func (f *InstrumentedFHE) DecryptUint32(ctx context.Context, c fhe.Cipher[uint32], principal, credential string) (uint32, error) {
	start := time.Now()
	v, err := f.svc.DecryptUint32(ctx, c, principal, credential)
	f.observe("decrypt", start, err)
	return v, err
}

func (f *InstrumentedFHE) Ping(ctx context.Context) error {
	start := time.Now()
	err := f.svc.Ping(ctx)
	f.observe("ping", start, err)
	return err
}

func (f *InstrumentedFHE) Name() string {
	return f.svc.Name()
}

func (f *InstrumentedFHE) observe(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	f.m.FHECalls.WithLabelValues(op, outcome).Inc()
	f.m.FHEDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
