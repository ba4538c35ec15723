// portalctl is the operator CLI for the PCL portal
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/asjpl/pcl-portal/internal/app"
	"github.com/asjpl/pcl-portal/internal/config"
)

var Version = "dev"

func main() {
	var databaseURL string

	rootCmd := &cobra.Command{
		Use:           "portalctl",
		Short:         "portalctl - operator tasks for the PCL portal",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database", "", "SQLite database path (overrides PCL_DATABASE_URL)")

	open := func() (*app.App, error) {
		cfg := config.Load()
		if databaseURL != "" {
			cfg.DatabaseURL = databaseURL
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		return app.New(cfg)
	}

	rootCmd.AddCommand(seedCmd(open))
	rootCmd.AddCommand(accrueFeesCmd(open))
	rootCmd.AddCommand(markOverdueCmd(open))
	rootCmd.AddCommand(issueTempPasswordCmd(open))
	rootCmd.AddCommand(pruneSessionsCmd(open))

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
