package main

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/steveyegge/graphd/internal/config"
)

var configInitOut string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and scaffold graphd configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default graphd.toml to --out",
	Long: `Writes graphd's built-in defaults out as a TOML file, as a starting
point for an operator to edit rather than hand-assembling one field at a
time from the environment variable reference.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load("")
		if err != nil {
			return fmt.Errorf("config init: %w", err)
		}

		f, err := os.Create(configInitOut)
		if err != nil {
			return fmt.Errorf("config init: %w", err)
		}
		defer f.Close()

		// BurntSushi/toml has no native time.Duration encoding, so the
		// field is written out as the same duration string
		// mapstructure.StringToTimeDurationHookFunc parses back on Load.
		out := struct {
			DatabaseURL       string `toml:"database_url"`
			RedisURL          string `toml:"redis_url"`
			NatsURL           string `toml:"nats_url"`
			HTTPAddr          string `toml:"http_addr"`
			JobLeaseSeconds   int    `toml:"job_lease_seconds"`
			JobReclaimWorkers int    `toml:"job_reclaim_workers"`
			OTelExporter      string `toml:"otel_exporter"`
			OTelEndpoint      string `toml:"otel_endpoint"`
			TokenBlacklistTTL string `toml:"token_blacklist_ttl"`
		}{
			DatabaseURL:       cfg.DatabaseURL,
			RedisURL:          cfg.RedisURL,
			NatsURL:           cfg.NatsURL,
			HTTPAddr:          cfg.HTTPAddr,
			JobLeaseSeconds:   cfg.JobLeaseSeconds,
			JobReclaimWorkers: cfg.JobReclaimWorkers,
			OTelExporter:      cfg.OTelExporter,
			OTelEndpoint:      cfg.OTelEndpoint,
			TokenBlacklistTTL: cfg.TokenBlacklistTTL.String(),
		}

		enc := toml.NewEncoder(f)
		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("config init: encode: %w", err)
		}
		fmt.Fprintf(os.Stdout, "wrote %s\n", configInitOut)
		return nil
	},
}

func init() {
	configInitCmd.Flags().StringVar(&configInitOut, "out", "graphd.toml", "path to write the scaffolded config file")
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
