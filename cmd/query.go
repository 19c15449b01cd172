package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/Shugur-Network/torstatus/internal/application"
	"github.com/Shugur-Network/torstatus/internal/models"
	"github.com/Shugur-Network/torstatus/internal/query"
	"github.com/Shugur-Network/torstatus/internal/report"
)

// parseOptions turns repeated key=value flags into query options.
func parseOptions(pairs []string) (query.Options, error) {
	opts := query.Options{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("option %q is not key=value", p)
		}
		opts[k] = v
	}
	return opts, nil
}

// selectColumns returns the requested columns, or the configured defaults.
func selectColumns(names []string) ([]string, error) {
	if len(names) == 0 {
		return cfg.Web.DefaultColumns, nil
	}
	for _, n := range names {
		if !report.IsColumn(n) {
			return nil, fmt.Errorf("%q is not a recognised column", n)
		}
	}
	return names, nil
}

// runQuery compiles the options and reads the matching relays.
func runQuery(cmd *cobra.Command, optFlags []string) ([]models.Relay, error) {
	opts, err := parseOptions(optFlags)
	if err != nil {
		return nil, err
	}
	spec, err := query.Compile(opts)
	if err != nil {
		return nil, err
	}

	store, err := application.OpenStore(cmd.Context(), cfg.Database)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.CurrentRelays(cmd.Context(), spec)
}

func writeTable(w io.Writer, relays []models.Relay, current []string) {
	cols := report.CSVColumns(current)
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(true)
	table.SetHeader(cols)
	for i := range relays {
		table.Append(report.CSVValues(&relays[i], cols))
	}
	table.Render()
}

func newQueryCmd() *cobra.Command {
	var (
		optFlags []string
		cols     []string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Print the current relays matching query options",
		Example: `  torstatus query --opt isexit=yes --opt sortListings=bandwidthobserved --opt sortOrder=descending
  torstatus query --opt searchValue=10 --opt criteria=uptime --opt boolLogic=greater --columns "Router Name,Uptime"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return errors.New("--limit must not be negative")
			}
			current, err := selectColumns(cols)
			if err != nil {
				return err
			}
			relays, err := runQuery(cmd, optFlags)
			if err != nil {
				return err
			}
			if limit > 0 && len(relays) > limit {
				relays = relays[:limit]
			}
			writeTable(cmd.OutOrStdout(), relays, current)
			fmt.Fprintf(cmd.OutOrStdout(), "%d relays\n", len(relays))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&optFlags, "opt", nil, "Query option as key=value (repeatable)")
	cmd.Flags().StringSliceVar(&cols, "columns", nil, "Comma-separated display columns (default: configured columns)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Print at most this many relays (0 for all)")
	return cmd
}
