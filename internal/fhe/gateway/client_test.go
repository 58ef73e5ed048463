package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmarket/veilmarket/internal/crypto"
	"github.com/veilmarket/veilmarket/internal/fhe"
)

const stubSecret = "stub-secret"

// withAuthCheck verifies the HMAC headers the way the real coprocessor does
// before handing the request to the scenario handler.
func withAuthCheck(t *testing.T, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		r.Body = io.NopCloser(bytes.NewReader(body))

		ts := r.Header.Get(crypto.HeaderGatewayTimestamp)
		want := crypto.GatewaySignature(stubSecret, ts, r.Method, r.URL.Path, string(body))
		if r.Header.Get(crypto.HeaderGatewayKey) != "key-1" ||
			r.Header.Get(crypto.HeaderGatewaySignature) != want {
			t.Errorf("bad auth headers on %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func newTestClient(t *testing.T, srv *httptest.Server, attempts uint) *Client {
	t.Helper()
	return New(Config{
		BaseURL:  srv.URL,
		Auth:     &crypto.GatewayAuth{KeyID: "key-1", Secret: stubSecret},
		Attempts: attempts,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestEncryptReturnsFreshHandle(t *testing.T) {
	srv := httptest.NewServer(withAuthCheck(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/encrypt", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req encryptRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, uint32(7), req.Value)

		json.NewEncoder(w).Encode(handleResponse{Handle: "h-enc-1"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 1)
	got, err := c.EncryptUint32(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, fhe.Handle("h-enc-1"), got.Handle())
}

func TestArithmeticOpsPostHandles(t *testing.T) {
	var lastPath string
	var lastBody []byte
	srv := httptest.NewServer(withAuthCheck(t, func(w http.ResponseWriter, r *http.Request) {
		lastPath = r.URL.Path
		lastBody, _ = io.ReadAll(r.Body)
		json.NewEncoder(w).Encode(handleResponse{Handle: "h-out"})
	}))
	defer srv.Close()

	ctx := context.Background()
	c := newTestClient(t, srv, 1)

	a := fhe.NewCipher[uint32]("h-a")
	b := fhe.NewCipher[uint32]("h-b")

	_, err := c.Eq(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, "/v1/eq", lastPath)
	assert.JSONEq(t, `{"a":"h-a","b":"h-b"}`, string(lastBody))

	_, err = c.Add(ctx, a, b)
	require.NoError(t, err)
	assert.Equal(t, "/v1/add", lastPath)

	cond := fhe.NewCipher[bool]("h-cond")
	_, err = c.Select(ctx, cond, a, b)
	require.NoError(t, err)
	assert.Equal(t, "/v1/select", lastPath)
	assert.JSONEq(t, `{"cond":"h-cond","if_true":"h-a","if_false":"h-b"}`, string(lastBody))
}

func TestAllowSendsPrincipal(t *testing.T) {
	srv := httptest.NewServer(withAuthCheck(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/allow", r.URL.Path)
		var req allowRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "h-tally", req.Handle)
		assert.Equal(t, "0x1111111111111111111111111111111111111111", req.Principal)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 1)
	err := c.Allow(context.Background(), "h-tally", "0x1111111111111111111111111111111111111111")
	assert.NoError(t, err)
}

func TestDecryptMapsDenied(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(withAuthCheck(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(errorResponse{Code: "denied", Message: "principal holds no grant"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 3)
	_, err := c.DecryptUint32(context.Background(), fhe.NewCipher[uint32]("h-1"), "0xabc", "cred")
	assert.ErrorIs(t, err, fhe.ErrDenied)
	assert.Equal(t, int32(1), calls.Load(), "denials are permanent, not retried")
}

func TestUnknownHandleMapsNotFound(t *testing.T) {
	srv := httptest.NewServer(withAuthCheck(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errorResponse{Code: "unknown_handle", Message: "no such ciphertext"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 1)
	_, err := c.Add(context.Background(), fhe.NewCipher[uint32]("gone"), fhe.NewCipher[uint32]("gone"))
	assert.ErrorIs(t, err, fhe.ErrUnknownHandle)
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(withAuthCheck(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(handleResponse{Handle: "h-after-retry"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 3)
	got, err := c.EncryptUint32(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, fhe.Handle("h-after-retry"), got.Handle())
	assert.Equal(t, int32(3), calls.Load())
}

func TestGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(withAuthCheck(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 2)
	_, err := c.EncryptUint32(context.Background(), 1)
	assert.ErrorIs(t, err, fhe.ErrUnavailable)
	assert.Equal(t, int32(2), calls.Load())
}

func TestPing(t *testing.T) {
	status := "ok"
	srv := httptest.NewServer(withAuthCheck(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/health", r.URL.Path)
		json.NewEncoder(w).Encode(healthResponse{Status: status})
	}))
	defer srv.Close()

	c := newTestClient(t, srv, 1)
	assert.NoError(t, c.Ping(context.Background()))

	status = "degraded"
	assert.ErrorIs(t, c.Ping(context.Background()), fhe.ErrUnavailable)
}
