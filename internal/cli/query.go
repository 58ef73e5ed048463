package cli

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/veilmarket/veilmarket/internal/domain"
	"github.com/veilmarket/veilmarket/internal/fhe"
)

func newTalliesCmd(opts *clientOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "tallies <market-id>",
		Short: "Show a market's current tally ciphertext handles",
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

			var out struct {
				MarketID     uint64       `json:"market_id"`
				TallyHandles []fhe.Handle `json:"tally_handles"`
			}
			path := "/api/markets/" + strconv.FormatUint(id, 10) + "/tallies"
			if err := c.do(cmd.Context(), http.MethodGet, path, nil, nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}
}

func newEventsCmd(opts *clientOpts) *cobra.Command {
	var (
		marketID int64
		afterSeq uint64
		limit    int
		offset   int
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Read the journal in append order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.newClient()
			if err != nil {
				return err
			}

			query := url.Values{}
			query.Set("limit", strconv.Itoa(limit))
			query.Set("offset", strconv.Itoa(offset))
			if marketID >= 0 {
				query.Set("market_id", strconv.FormatInt(marketID, 10))
			}
			if cmd.Flags().Changed("after-seq") {
				query.Set("after_seq", strconv.FormatUint(afterSeq, 10))
			}

			var out struct {
				Events []domain.Event `json:"events"`
			}
			if err := c.do(cmd.Context(), http.MethodGet, "/api/events", query, nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().Int64Var(&marketID, "market-id", -1, "restrict to one market (-1 for all)")
	cmd.Flags().Uint64Var(&afterSeq, "after-seq", 0, "only events past this journal position")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of events to skip")

	return cmd
}
