// Command veilctl is the operator CLI for the veilmarket ledger. It drives
// the daemon's HTTP API, decrypts granted ciphertexts against the capability
// gateway, and manages encrypted identity keyfiles.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/veilmarket/veilmarket/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.Root().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
