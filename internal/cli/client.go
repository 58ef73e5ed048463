package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/veilmarket/veilmarket/internal/crypto"
	"github.com/veilmarket/veilmarket/internal/domain"
	"github.com/veilmarket/veilmarket/internal/server/middleware"
)

// clientOpts carries the persistent flags shared by every API command.
type clientOpts struct {
	api       string
	principal string
	key       string
	keyfile   string
	password  string
	timeout   time.Duration
}

// apiClient issues requests against the daemon. With key material it signs
// each request so the server recovers the principal; otherwise it declares
// the principal by header, which the server accepts unless it requires
// signatures.
type apiClient struct {
	base       string
	httpClient *http.Client
	identity   *crypto.Identity
	principal  string
}

// newClient resolves the caller identity from the persistent flags.
func (o *clientOpts) newClient() (*apiClient, error) {
	c := &apiClient{
		base:       strings.TrimRight(o.api, "/"),
		httpClient: &http.Client{Timeout: o.timeout},
	}

	if o.key != "" || o.keyfile != "" {
		keyHex, err := crypto.ResolveKey(crypto.KeySource{
			RawHex:      o.key,
			KeyfilePath: o.keyfile,
			Password:    o.password,
		})
		if err != nil {
			return nil, fmt.Errorf("cli: resolve key: %w", err)
		}
		id, err := crypto.NewIdentity(keyHex)
		if err != nil {
			return nil, fmt.Errorf("cli: load identity: %w", err)
		}
		c.identity = id
		c.principal = id.Address().Hex()
		return c, nil
	}

	if o.principal != "" {
		p, err := domain.ParsePrincipal(o.principal)
		if err != nil {
			return nil, fmt.Errorf("cli: %w", err)
		}
		c.principal = p.String()
	}
	return c, nil
}

// do sends one request and decodes the JSON response into out (when out is
// non-nil). The signature covers the path without the query string, matching
// what the server verifies.
func (c *apiClient) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("cli: marshal request: %w", err)
		}
	}

	target := c.base + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("cli: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.identity != nil {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		sig, err := c.identity.SignRequest(ts, method, path, payload)
		if err != nil {
			return fmt.Errorf("cli: sign request: %w", err)
		}
		req.Header.Set(middleware.HeaderTimestamp, ts)
		req.Header.Set(middleware.HeaderSignature, sig)
		req.Header.Set(middleware.HeaderPrincipal, c.principal)
	} else if c.principal != "" {
		req.Header.Set(middleware.HeaderPrincipal, c.principal)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cli: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("cli: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("api: %s (status %d)", apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("api: unexpected status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("cli: decode response: %w", err)
		}
	}
	return nil
}

// requireIdentity fails early for mutating commands, which the server
// rejects without a resolved principal.
func (c *apiClient) requireIdentity() error {
	if c.principal == "" {
		return fmt.Errorf("cli: this command needs a caller identity; pass --principal, --key, or --keyfile")
	}
	return nil
}

// parseID parses a positional market id argument.
func parseID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cli: market id %q is not a non-negative integer", arg)
	}
	return id, nil
}
