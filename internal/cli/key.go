package cli

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github.com/veilmarket/veilmarket/internal/crypto"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage encrypted identity keyfiles",
	}
	cmd.AddCommand(newKeyInitCmd())
	cmd.AddCommand(newKeyShowCmd())
	return cmd
}

func newKeyInitCmd() *cobra.Command {
	var (
		path     string
		password string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Generate a new identity key and write it as an encrypted keyfile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if password == "" {
				return errors.New("cli: a keyfile password is required; pass --password or set $VEILCTL_PASSWORD")
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("cli: %s already exists, refusing to overwrite", path)
			}

			pk, err := ethcrypto.GenerateKey()
			if err != nil {
				return fmt.Errorf("cli: generate key: %w", err)
			}
			keyHex := hex.EncodeToString(ethcrypto.FromECDSA(pk))

			if err := crypto.WriteKeyfile(path, keyHex, password); err != nil {
				return err
			}

			return printJSON(map[string]string{
				"keyfile": path,
				"address": ethcrypto.PubkeyToAddress(pk.PublicKey).Hex(),
			})
		},
	}

	cmd.Flags().StringVar(&path, "path", "veil-key.json", "keyfile output path")
	cmd.Flags().StringVar(&password, "password", os.Getenv("VEILCTL_PASSWORD"), "keyfile password (defaults to $VEILCTL_PASSWORD)")

	return cmd
}

func newKeyShowCmd() *cobra.Command {
	var (
		path     string
		password string
	)

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the principal address of an encrypted keyfile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			keyHex, err := crypto.ResolveKey(crypto.KeySource{
				KeyfilePath: path,
				Password:    password,
			})
			if err != nil {
				return err
			}
			id, err := crypto.NewIdentity(keyHex)
			if err != nil {
				return err
			}

			return printJSON(map[string]string{
				"keyfile": path,
				"address": id.Address().Hex(),
			})
		},
	}

	cmd.Flags().StringVar(&path, "path", "veil-key.json", "keyfile path")
	cmd.Flags().StringVar(&password, "password", os.Getenv("VEILCTL_PASSWORD"), "keyfile password (defaults to $VEILCTL_PASSWORD)")

	return cmd
}
