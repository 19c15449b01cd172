package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Shugur-Network/torstatus/internal/application"
	"github.com/Shugur-Network/torstatus/internal/geo"
	"github.com/Shugur-Network/torstatus/internal/importer"
	"github.com/Shugur-Network/torstatus/internal/logger"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <snapshot.json>",
		Short: "Import a relay snapshot",
		Long:  "Validate a JSON relay snapshot, fill in missing locations from GeoIP when configured, and store it as the current snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := application.OpenStore(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			var resolver geo.Resolver
			if cfg.GeoIP.CityDB != "" {
				city, err := geo.Open(cfg.GeoIP.CityDB)
				if err != nil {
					return err
				}
				defer city.Close()
				resolver = city
			}

			res, err := importer.New(store, resolver, cfg.GeoIP.Workers).ImportFile(ctx, args[0])
			if err != nil {
				return fmt.Errorf("importing %s: %w", args[0], err)
			}

			logger.Info("Snapshot imported",
				zap.Time("valid_after", res.ValidAfter),
				zap.Int("imported", res.Imported),
				zap.Int("rejected", res.Rejected),
				zap.Int("enriched", res.Enriched))
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d relays (%d rejected, %d enriched) valid after %s\n",
				res.Imported, res.Rejected, res.Enriched, res.ValidAfter.UTC().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}
