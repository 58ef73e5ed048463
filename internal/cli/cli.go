// Package cli implements the veilctl operator command set. Every command is
// a thin shell over the daemon's HTTP API, except decrypt (which talks to
// the capability gateway directly, since decryption never passes through
// the ledger) and key management (local keyfile operations).
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// Root assembles the veilctl command tree.
func Root() *cobra.Command {
	opts := &clientOpts{}

	rootCmd := &cobra.Command{
		Use:           "veilctl",
		Short:         "Operator CLI for the veilmarket ledger",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.api, "api", "http://localhost:8080", "base URL of the ledger API")
	pf.StringVar(&opts.principal, "principal", "", "caller principal address (declared identity)")
	pf.StringVar(&opts.key, "key", "", "hex private key; requests are signed when set")
	pf.StringVar(&opts.keyfile, "keyfile", "", "path to an encrypted keyfile; requests are signed when set")
	pf.StringVar(&opts.password, "password", os.Getenv("VEILCTL_PASSWORD"), "keyfile password (defaults to $VEILCTL_PASSWORD)")
	pf.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")

	rootCmd.AddCommand(newMarketCmd(opts))
	rootCmd.AddCommand(newBetCmd(opts))
	rootCmd.AddCommand(newGrantCmd(opts))
	rootCmd.AddCommand(newTalliesCmd(opts))
	rootCmd.AddCommand(newEventsCmd(opts))
	rootCmd.AddCommand(newDecryptCmd(opts))
	rootCmd.AddCommand(newKeyCmd())

	return rootCmd
}

// printJSON renders a response for the operator.
func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("cli: render response: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
