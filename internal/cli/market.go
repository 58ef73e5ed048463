package cli

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/veilmarket/veilmarket/internal/domain"
)

func newMarketCmd(opts *clientOpts) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "market",
		Short: "Create, inspect, and close markets",
	}
	cmd.AddCommand(newMarketCreateCmd(opts))
	cmd.AddCommand(newMarketListCmd(opts))
	cmd.AddCommand(newMarketGetCmd(opts))
	cmd.AddCommand(newMarketCloseCmd(opts))
	return cmd
}

func newMarketCreateCmd(opts *clientOpts) *cobra.Command {
	var (
		title   string
		options []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a market with 2-4 named outcomes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.newClient()
			if err != nil {
				return err
			}
			if err := c.requireIdentity(); err != nil {
				return err
			}

			body := map[string]any{"title": title, "options": options}
			var view domain.MarketView
			if err := c.do(cmd.Context(), http.MethodPost, "/api/markets", nil, body, &view); err != nil {
				return err
			}
			return printJSON(view)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "market title")
	cmd.Flags().StringArrayVar(&options, "option", nil, "outcome name (repeat 2-4 times)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("option")

	return cmd
}

func newMarketListCmd(opts *clientOpts) *cobra.Command {
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List markets",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := opts.newClient()
			if err != nil {
				return err
			}

			query := url.Values{}
			query.Set("limit", strconv.Itoa(limit))
			query.Set("offset", strconv.Itoa(offset))

			var out struct {
				Markets []domain.MarketView `json:"markets"`
				Total   uint64              `json:"total"`
			}
			if err := c.do(cmd.Context(), http.MethodGet, "/api/markets", query, nil, &out); err != nil {
				return err
			}
			return printJSON(out)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum markets to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of markets to skip")

	return cmd
}

func newMarketGetCmd(opts *clientOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "get <market-id>",
		Short: "Show one market",
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

			var view domain.MarketView
			path := "/api/markets/" + strconv.FormatUint(id, 10)
			if err := c.do(cmd.Context(), http.MethodGet, path, nil, nil, &view); err != nil {
				return err
			}
			return printJSON(view)
		},
	}
}

func newMarketCloseCmd(opts *clientOpts) *cobra.Command {
	var winning uint32

	cmd := &cobra.Command{
		Use:   "close <market-id>",
		Short: "Close a market with a winning option index",
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

			body := map[string]any{"winning_option": winning}
			var view domain.MarketView
			path := "/api/markets/" + strconv.FormatUint(id, 10) + "/close"
			if err := c.do(cmd.Context(), http.MethodPost, path, nil, body, &view); err != nil {
				return err
			}
			return printJSON(view)
		},
	}

	cmd.Flags().Uint32Var(&winning, "winning", 0, "winning option index")
	_ = cmd.MarkFlagRequired("winning")

	return cmd
}
