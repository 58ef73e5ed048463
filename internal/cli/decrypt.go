package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/veilmarket/veilmarket/internal/crypto"
	"github.com/veilmarket/veilmarket/internal/fhe"
	"github.com/veilmarket/veilmarket/internal/fhe/gateway"
)

// newDecryptCmd recovers a plaintext from a ciphertext handle by calling the
// capability gateway directly. The ledger is not involved: it only grants
// who may ask, the gateway checks the grant and the credential.
func newDecryptCmd(opts *clientOpts) *cobra.Command {
	var (
		handle     string
		gatewayURL string
		keyID      string
		secret     string
		credential string
	)

	cmd := &cobra.Command{
		Use:   "decrypt",
		Short: "Decrypt a granted ciphertext handle against the capability gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			if err := c.requireIdentity(); err != nil {
				return err
			}

			var auth *crypto.GatewayAuth
			if keyID != "" || secret != "" {
				auth = &crypto.GatewayAuth{KeyID: keyID, Secret: secret}
			}
			gw := gateway.New(gateway.Config{
				BaseURL: gatewayURL,
				Auth:    auth,
				Timeout: opts.timeout,
			})

			value, err := gw.DecryptUint32(cmd.Context(),
				fhe.NewCipher[uint32](fhe.Handle(handle)), c.principal, credential)
			if err != nil {
				return fmt.Errorf("decrypt: %w", err)
			}

			return printJSON(map[string]any{
				"handle":    handle,
				"principal": c.principal,
				"value":     value,
			})
		},
	}

	cmd.Flags().StringVar(&handle, "handle", "", "ciphertext handle to decrypt")
	cmd.Flags().StringVar(&gatewayURL, "gateway-url", "", "capability gateway base URL")
	cmd.Flags().StringVar(&keyID, "gateway-key", os.Getenv("VEILCTL_GATEWAY_KEY"), "gateway API key id (defaults to $VEILCTL_GATEWAY_KEY)")
	cmd.Flags().StringVar(&secret, "gateway-secret", os.Getenv("VEILCTL_GATEWAY_SECRET"), "gateway HMAC secret (defaults to $VEILCTL_GATEWAY_SECRET)")
	cmd.Flags().StringVar(&credential, "credential", os.Getenv("VEILCTL_CREDENTIAL"), "decrypt credential (defaults to $VEILCTL_CREDENTIAL)")
	_ = cmd.MarkFlagRequired("handle")
	_ = cmd.MarkFlagRequired("gateway-url")

	return cmd
}
