package cli

import (
	"net/http"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/veilmarket/veilmarket/internal/domain"
)

func newBetCmd(opts *clientOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bet",
		Short: "Place and inspect bets",
	}
	cmd.AddCommand(newBetPlaceCmd(opts))
	cmd.AddCommand(newBetShowCmd(opts))
	return cmd
}

func newBetPlaceCmd(opts *clientOpts) *cobra.Command {
	var (
		amount       uint64
		choice       uint32
		choiceHandle string
	)

	cmd := &cobra.Command{
		Use:   "place <market-id>",
		Short: "Stake an amount on an encrypted outcome choice",
		Long: "Place a bet. Pass --choice-handle with a ciphertext encrypted against the\n" +
			"capability gateway, or --choice with a plaintext index to let the daemon\n" +
			"encrypt it server-side (sim backend and local development only).",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			if err := c.requireIdentity(); err != nil {
				return err
			}

			body := map[string]any{"amount": amount}
			if choiceHandle != "" {
				body["choice_handle"] = choiceHandle
			} else if cmd.Flags().Changed("choice") {
				body["choice"] = choice
			}

			var view domain.BetView
			path := "/api/markets/" + strconv.FormatUint(id, 10) + "/bets"
			if err := c.do(cmd.Context(), http.MethodPost, path, nil, body, &view); err != nil {
				return err
			}
			return printJSON(view)
		},
	}

	cmd.Flags().Uint64Var(&amount, "amount", 0, "stake amount (must be > 0)")
	cmd.Flags().Uint32Var(&choice, "choice", 0, "plaintext option index, encrypted server-side")
	cmd.Flags().StringVar(&choiceHandle, "choice-handle", "", "pre-encrypted choice ciphertext handle")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func newBetShowCmd(opts *clientOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "show <market-id> <participant>",
		Short: "Show a participant's bet (ciphertext handle only)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			participant, err := domain.ParsePrincipal(args[1])
			if err != nil {
				return err
			}
			c, err := opts.newClient()
			if err != nil {
				return err
			}

			var view domain.BetView
			path := "/api/markets/" + strconv.FormatUint(id, 10) + "/bets/" + participant.String()
			if err := c.do(cmd.Context(), http.MethodGet, path, nil, nil, &view); err != nil {
				return err
			}
			return printJSON(view)
		},
	}
}
