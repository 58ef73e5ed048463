package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/veilmarket/veilmarket/internal/crypto"
	"github.com/veilmarket/veilmarket/internal/domain"
)

// Headers of the signature identity scheme.
const (
	HeaderPrincipal = "X-Veil-Principal"
	HeaderSignature = "X-Veil-Signature"
	HeaderTimestamp = "X-Veil-Timestamp"
)

// signatureWindow bounds how far a signed timestamp may drift from server
// time before the signature is considered stale.
const signatureWindow = 5 * time.Minute

// maxSignedBody bounds how much request body is buffered for digest
// verification.
const maxSignedBody = 1 << 20

type principalCtxKey struct{}

// WithPrincipal returns a context carrying the resolved principal.
func WithPrincipal(ctx context.Context, p domain.Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

// PrincipalFrom extracts the principal the Identity middleware resolved for
// this request, if any.
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(domain.Principal)
	return p, ok
}

// Identity returns middleware that resolves the caller's principal and
// stores it in the request context.
//
// A request carrying X-Veil-Signature has its principal recovered from the
// secp256k1 signature over timestamp, method, path, and body hash; a
// declared X-Veil-Principal must then match the recovered address. When
// requireSignature is false, a bare X-Veil-Principal is accepted as a
// declared identity.
//
// Identity authenticates, it never authorizes: the ledger is permissionless
// and a principal only says who the caller is. Requests that resolve to no
// principal pass through; handlers that need one reject them.
func Identity(requireSignature bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			declared := r.Header.Get(HeaderPrincipal)
			sigHex := r.Header.Get(HeaderSignature)

			if sigHex == "" {
				if declared != "" && !requireSignature {
					p, err := domain.ParsePrincipal(declared)
					if err != nil {
						writeUnauthorized(w, "malformed principal header")
						return
					}
					r = r.WithContext(WithPrincipal(r.Context(), p))
				}
				next.ServeHTTP(w, r)
				return
			}

			ts := r.Header.Get(HeaderTimestamp)
			if !timestampFresh(ts, time.Now()) {
				writeUnauthorized(w, "missing or stale signature timestamp")
				return
			}

			body, err := bufferBody(r)
			if err != nil {
				writeUnauthorized(w, "request body too large to verify")
				return
			}

			recovered, err := crypto.RecoverSigner(ts, r.Method, r.URL.Path, body, sigHex)
			if err != nil {
				writeUnauthorized(w, "invalid request signature")
				return
			}
			if declared != "" {
				p, err := domain.ParsePrincipal(declared)
				if err != nil || common.Address(p) != recovered {
					writeUnauthorized(w, "signature does not match declared principal")
					return
				}
			}

			r = r.WithContext(WithPrincipal(r.Context(), domain.Principal(recovered)))
			next.ServeHTTP(w, r)
		})
	}
}

// timestampFresh reports whether ts is a unix-seconds value within the
// signature window of now.
func timestampFresh(ts string, now time.Time) bool {
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	drift := now.Sub(time.Unix(unix, 0))
	if drift < 0 {
		drift = -drift
	}
	return drift <= signatureWindow
}

// bufferBody reads the request body into memory so it can be hashed for
// verification and still be consumed by the handler.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSignedBody+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxSignedBody {
		return nil, io.ErrShortBuffer
	}
	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}
