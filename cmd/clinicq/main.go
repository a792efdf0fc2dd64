// Command clinicq runs the clinic patient queue: the HTTP API, the periodic
// priority sweeper, and a few maintenance commands.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-clinic-queue/internal/config"
	"github.com/tbourn/go-clinic-queue/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// @title        Clinic Queue API
// @version      1.0
// @description  Ticket queue, consultation slots and urgency intake for a clinic.
// @BasePath     /api/v1
func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "clinicq",
		Short:         "Clinic patient queue server",
		Version:       sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(doctorCmd())
	return root
}

// bootstrap loads configuration and installs the global logger.
func bootstrap() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	l := sysutil.ConfigureLogger(os.Stdout, cfg.LogLevel, cfg.LogPretty, cfg.OTEL.ServiceName)
	return cfg, l, nil
}
