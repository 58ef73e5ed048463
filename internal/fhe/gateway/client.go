// Package gateway implements fhe.Service against a remote coprocessor over
// REST. Requests are HMAC-authenticated; transient failures are retried with
// backoff, while capability denials and unknown handles surface immediately
// as their fhe sentinel errors.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/avast/retry-go"

	"github.com/veilmarket/veilmarket/internal/crypto"
	"github.com/veilmarket/veilmarket/internal/fhe"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultAttempts = 3
	defaultDelay    = 200 * time.Millisecond
)

// Coprocessor API paths. The HMAC signature covers the path as the server
// sees it, so these carry the version prefix.
const (
	pathEncrypt = "/v1/encrypt"
	pathEq      = "/v1/eq"
	pathSelect  = "/v1/select"
	pathAdd     = "/v1/add"
	pathAllow   = "/v1/allow"
	pathDecrypt = "/v1/decrypt"
	pathHealth  = "/v1/health"
)

// Config carries the settings for a gateway client.
type Config struct {
	// BaseURL is the coprocessor root, e.g. "https://fhe.example.com".
	BaseURL string
	// Auth signs every request; required by real deployments.
	Auth *crypto.GatewayAuth
	// Timeout bounds a single HTTP attempt. Zero means 30s.
	Timeout time.Duration
	// Attempts is the total number of tries per operation. Zero means 3.
	Attempts uint
	Logger   *slog.Logger
}

// Client is the REST adapter for the capability service.
type Client struct {
	baseURL    string
	auth       *crypto.GatewayAuth
	httpClient *http.Client
	attempts   uint
	logger     *slog.Logger
}

// New creates a gateway client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	attempts := cfg.Attempts
	if attempts == 0 {
		attempts = defaultAttempts
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		auth:       cfg.Auth,
		httpClient: &http.Client{Timeout: timeout},
		attempts:   attempts,
		logger:     logger.With(slog.String("component", "fhe_gateway")),
	}
}

// EncryptUint32 asks the coprocessor to encrypt a plaintext value.
func (c *Client) EncryptUint32(ctx context.Context, value uint32) (fhe.Cipher[uint32], error) {
	h, err := c.handleOp(ctx, pathEncrypt, encryptRequest{Value: value})
	if err != nil {
		return fhe.Cipher[uint32]{}, fmt.Errorf("gateway: encrypt: %w", err)
	}
	return fhe.NewCipher[uint32](h), nil
}

// Eq compares two ciphertexts into a fresh encrypted boolean.
func (c *Client) Eq(ctx context.Context, a, b fhe.Cipher[uint32]) (fhe.Cipher[bool], error) {
	h, err := c.handleOp(ctx, pathEq, binaryOpRequest{A: string(a.Handle()), B: string(b.Handle())})
	if err != nil {
		return fhe.Cipher[bool]{}, fmt.Errorf("gateway: eq: %w", err)
	}
	return fhe.NewCipher[bool](h), nil
}

// Select branches between two ciphertexts on an encrypted condition.
func (c *Client) Select(ctx context.Context, cond fhe.Cipher[bool], ifTrue, ifFalse fhe.Cipher[uint32]) (fhe.Cipher[uint32], error) {
	h, err := c.handleOp(ctx, pathSelect, selectRequest{
		Cond:    string(cond.Handle()),
		IfTrue:  string(ifTrue.Handle()),
		IfFalse: string(ifFalse.Handle()),
	})
	if err != nil {
		return fhe.Cipher[uint32]{}, fmt.Errorf("gateway: select: %w", err)
	}
	return fhe.NewCipher[uint32](h), nil
}

// Add sums two ciphertexts into a fresh ciphertext.
func (c *Client) Add(ctx context.Context, a, b fhe.Cipher[uint32]) (fhe.Cipher[uint32], error) {
	h, err := c.handleOp(ctx, pathAdd, binaryOpRequest{A: string(a.Handle()), B: string(b.Handle())})
	if err != nil {
		return fhe.Cipher[uint32]{}, fmt.Errorf("gateway: add: %w", err)
	}
	return fhe.NewCipher[uint32](h), nil
}

// Allow marks principal as an authorized decryptor of the handle.
func (c *Client) Allow(ctx context.Context, h fhe.Handle, principal string) error {
	_, err := c.do(ctx, http.MethodPost, pathAllow, allowRequest{Handle: string(h), Principal: principal})
	if err != nil {
		return fmt.Errorf("gateway: allow: %w", err)
	}
	return nil
}

// DecryptUint32 recovers a plaintext for a granted principal presenting its
// credential.
func (c *Client) DecryptUint32(ctx context.Context, cipher fhe.Cipher[uint32], principal, credential string) (uint32, error) {
	body, err := c.do(ctx, http.MethodPost, pathDecrypt, decryptRequest{
		Handle:     string(cipher.Handle()),
		Principal:  principal,
		Credential: credential,
	})
	if err != nil {
		return 0, fmt.Errorf("gateway: decrypt: %w", err)
	}

	var resp decryptResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("gateway: decode decrypt response: %w", err)
	}
	return resp.Value, nil
}

// Ping checks coprocessor reachability.
func (c *Client) Ping(ctx context.Context) error {
	body, err := c.do(ctx, http.MethodGet, pathHealth, nil)
	if err != nil {
		return fmt.Errorf("gateway: ping: %w", err)
	}

	var resp healthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("gateway: decode health response: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("gateway: coprocessor reports %q: %w", resp.Status, fhe.ErrUnavailable)
	}
	return nil
}

// Name identifies the backend in status output.
func (c *Client) Name() string { return "gateway" }

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// handleOp posts a ciphertext-producing operation and decodes the fresh
// handle.
func (c *Client) handleOp(ctx context.Context, path string, reqBody any) (fhe.Handle, error) {
	body, err := c.do(ctx, http.MethodPost, path, reqBody)
	if err != nil {
		return "", err
	}

	var resp handleResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode handle response: %w", err)
	}
	if resp.Handle == "" {
		return "", errors.New("coprocessor returned an empty handle")
	}
	return fhe.Handle(resp.Handle), nil
}

// do builds, signs, and sends a request, retrying transient failures. The
// error from the final attempt is returned.
func (c *Client) do(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	var payload []byte
	if reqBody != nil {
		var err error
		payload, err = json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
	}

	var respBody []byte
	err := retry.Do(
		func() error {
			var err error
			respBody, err = c.once(ctx, method, path, payload)
			return err
		},
		retry.Attempts(c.attempts),
		retry.Delay(defaultDelay),
		retry.LastErrorOnly(true),
		retry.Context(ctx),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, fhe.ErrUnavailable)
		}),
		retry.OnRetry(func(n uint, err error) {
			c.logger.WarnContext(ctx, "gateway: retrying request",
				slog.String("path", path),
				slog.Uint64("attempt", uint64(n+1)),
				slog.String("error", err.Error()),
			)
		}),
	)
	if err != nil {
		return nil, err
	}
	return respBody, nil
}

// once performs a single signed HTTP attempt.
func (c *Client) once(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	if c.auth != nil {
		for k, v := range c.auth.Headers(method, path, string(payload)) {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failures are worth another attempt.
		return nil, fmt.Errorf("http request: %v: %w", err, fhe.ErrUnavailable)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %v: %w", err, fhe.ErrUnavailable)
	}

	if err := checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkStatus maps non-2xx responses onto the capability error taxonomy.
// Only 429 and 5xx are retryable.
func checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("coprocessor denied: %s (%s): %w", apiErr.Message, apiErr.Code, fhe.ErrDenied)
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("coprocessor: %s (%s): %w", apiErr.Message, apiErr.Code, fhe.ErrUnknownHandle)
	case statusCode == http.StatusTooManyRequests || statusCode >= 500:
		return fmt.Errorf("coprocessor HTTP %d: %s (%s): %w", statusCode, apiErr.Message, apiErr.Code, fhe.ErrUnavailable)
	default:
		return fmt.Errorf("coprocessor HTTP %d: %s (%s)", statusCode, apiErr.Message, apiErr.Code)
	}
}

var _ fhe.Service = (*Client)(nil)
