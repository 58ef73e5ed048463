package cli

import (
	"net/http"
	"strconv"

	"github.com/spf13/cobra"
)

func newGrantCmd(opts *clientOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Issue decrypt-capability grants",
	}
	cmd.AddCommand(newGrantTallyCmd(opts))
	cmd.AddCommand(newGrantBetCmd(opts))
	return cmd
}

func newGrantTallyCmd(opts *clientOpts) *cobra.Command {
	var grantee string

	cmd := &cobra.Command{
		Use:   "tally <market-id>",
		Short: "Grant decrypt access to a market's current tally ciphertexts",
		Long: "Grant tally access. Grants attach to the current ciphertext handles; a\n" +
			"later bet replaces them, so re-grant after betting resumes.",
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

			body := map[string]any{}
			if grantee != "" {
				body["grantee"] = grantee
			}

			var out map[string]any
			path := "/api/markets/" + strconv.FormatUint(id, 10) + "/grants/tally"
			if err := c.do(cmd.Context(), http.MethodPost, path, nil, body, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&grantee, "grantee", "", "principal to grant (defaults to the caller)")

	return cmd
}

func newGrantBetCmd(opts *clientOpts) *cobra.Command {
	var participant string

	cmd := &cobra.Command{
		Use:   "bet <market-id>",
		Short: "Grant a participant decrypt access to their own bet choice",
		Args:  cobra.ExactArgs(1),
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

			body := map[string]any{}
			if participant != "" {
				body["participant"] = participant
			}

			var out map[string]any
			path := "/api/markets/" + strconv.FormatUint(id, 10) + "/grants/bet"
			if err := c.do(cmd.Context(), http.MethodPost, path, nil, body, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().StringVar(&participant, "participant", "", "bettor whose own choice becomes decryptable (defaults to the caller)")

	return cmd
}
