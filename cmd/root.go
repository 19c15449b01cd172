package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Shugur-Network/torstatus/internal/config"
	"github.com/Shugur-Network/torstatus/internal/logger"
)

var (
	cfgFile string         // Path to custom config file (optional)
	cfg     *config.Config // Global reference to loaded configuration
)

// rootCmd defines the main CLI command for torstatus
var rootCmd = &cobra.Command{
	Use:   "torstatus",
	Short: "TorStatus serves filterable reports of the Tor relay network",
	Long:  `TorStatus imports network-status snapshots and serves a sortable, filterable relay report with CSV exports.`,
	Example: `
  torstatus start --db-driver sqlite --listen :8080
  torstatus import consensus.json
  torstatus query --opt searchValue=moria --opt criteria=nickname
  torstatus export exit-ips --out exits.csv`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}

		if cfgFile != "" {
			absPath, err := filepath.Abs(cfgFile)
			if err != nil {
				return fmt.Errorf("resolving config path: %w", err)
			}
			cfgFile = absPath
		}

		var err error
		cfg, err = config.Load(cfgFile, nil)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %v", err)
		}
		if err := applyFlags(cmd, cfg); err != nil {
			return err
		}
		return config.Validate(cfg)
	},
	Run: func(cmd *cobra.Command, args []string) {
		if err := cmd.Help(); err != nil {
			fmt.Fprintf(os.Stderr, "Error displaying help: %v\n", err)
		}
	},
}

// applyFlags overrides configuration with the flags given on the command
// line.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("db-driver") {
		c.Database.Driver, _ = flags.GetString("db-driver")
	}
	if flags.Changed("db-url") {
		c.Database.URL, _ = flags.GetString("db-url")
	}
	if flags.Changed("sqlite-path") {
		c.Database.SQLitePath, _ = flags.GetString("sqlite-path")
	}
	if flags.Changed("listen") {
		c.Web.ListenAddr, _ = flags.GetString("listen")
	}
	if flags.Changed("metrics-port") {
		c.Metrics.Port, _ = flags.GetInt("metrics-port")
	}
	if flags.Changed("geoip-db") {
		c.GeoIP.CityDB, _ = flags.GetString("geoip-db")
	}
	if flags.Changed("log-level") {
		c.Logging.Level, _ = flags.GetString("log-level")
		if err := logger.UpdateLevel(c.Logging.Level); err != nil {
			return fmt.Errorf("setting log level: %w", err)
		}
	}
	return nil
}

// Execute runs the root command with the provided context
func Execute(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "Path to custom config file (optional)")
	pf.String("db-driver", "sqlite", "Database backend (sqlite or postgres)")
	pf.String("db-url", "", "PostgreSQL connection URL")
	pf.String("sqlite-path", "", "Path of the SQLite database file")
	pf.String("listen", ":8080", "Address the report server listens on")
	pf.Int("metrics-port", 2112, "Port for Prometheus metrics server")
	pf.String("geoip-db", "", "Path of a GeoLite2/GeoIP2 City database for import enrichment")
	pf.String("log-level", "info", "Logging level (debug, info, warn, error, fatal)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newStartCmd(),
		newImportCmd(),
		newQueryCmd(),
		newExportCmd(),
	)
}
