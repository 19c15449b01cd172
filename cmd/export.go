package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Shugur-Network/torstatus/internal/export"
	"github.com/Shugur-Network/torstatus/internal/models"
)

func newExportCmd() *cobra.Command {
	var (
		optFlags []string
		cols     []string
		out      string
	)
	cmd := &cobra.Command{
		Use:       "export <report|ips|exit-ips>",
		Short:     "Write a CSV export of the current snapshot",
		Long:      "Write current_results.csv (filtered by --opt), all_ips.csv or all_exit_ips.csv. Use --out - for stdout.",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(export.KindReport), string(export.KindAllIPs), string(export.KindExitIPs)},
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := export.Kind(args[0])

			var (
				relays []models.Relay
				err    error
			)
			if kind == export.KindReport {
				relays, err = runQuery(cmd, optFlags)
			} else {
				relays, err = runQuery(cmd, nil)
			}
			if err != nil {
				return err
			}

			var dl *export.Download
			switch kind {
			case export.KindReport:
				current, err := selectColumns(cols)
				if err != nil {
					return err
				}
				dl, err = export.ReportFromSpec(relays, current)
				if err != nil {
					return err
				}
			default:
				dl, err = export.AddressList(relays, kind == export.KindExitIPs)
				if err != nil {
					return err
				}
			}

			if out == "-" {
				_, err = cmd.OutOrStdout().Write(dl.Body)
				return err
			}
			if out == "" {
				out = dl.Filename
			}
			if err := os.WriteFile(out, dl.Body, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", out, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d rows to %s\n", dl.Rows, out)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&optFlags, "opt", nil, "Query option as key=value (report only, repeatable)")
	cmd.Flags().StringSliceVar(&cols, "columns", nil, "Comma-separated columns (report only)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default: the download file name)")
	return cmd
}
