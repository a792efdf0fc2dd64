package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-clinic-queue/internal/config"
	"github.com/tbourn/go-clinic-queue/internal/repo"
	"github.com/tbourn/go-clinic-queue/internal/services"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer closeDB(db)
			logger.Info().Str("driver", cfg.DB.Driver).Msg("schema up to date")
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Recompute priority scores for every active ticket once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			ctx := logger.WithContext(cmd.Context())
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close(context.Background()) }()

			rep, err := a.priority.Sweep(ctx)
			if err != nil {
				return err
			}
			return printSweep(cmd.OutOrStdout(), rep)
		},
	}
}

func doctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Manage the doctor registry",
	}

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a doctor or update an existing one",
		RunE: func(cmd *cobra.Command, args []string) error {
			id, _ := cmd.Flags().GetString("id")
			name, _ := cmd.Flags().GetString("name")
			inactive, _ := cmd.Flags().GetBool("inactive")
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			return withDoctors(cmd, func(ctx context.Context, ds *services.DoctorService) error {
				d, err := ds.Upsert(ctx, id, name, !inactive)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%s) active=%t\n", d.ID, d.Name, d.Active)
				return err
			})
		},
	}
	addCmd.Flags().String("id", "", "Doctor identifier used in routes")
	addCmd.Flags().String("name", "", "Display name (defaults to the id)")
	addCmd.Flags().Bool("inactive", false, "Register the doctor as not accepting patients")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered doctors",
		RunE: func(cmd *cobra.Command, args []string) error {
			activeOnly, _ := cmd.Flags().GetBool("active")
			return withDoctors(cmd, func(ctx context.Context, ds *services.DoctorService) error {
				docs, err := ds.List(ctx, activeOnly)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tACTIVE")
				for _, d := range docs {
					fmt.Fprintf(tw, "%s\t%s\t%t\n", d.ID, d.Name, d.Active)
				}
				return tw.Flush()
			})
		},
	}
	listCmd.Flags().Bool("active", false, "Only doctors accepting patients")

	cmd.AddCommand(addCmd, listCmd)
	return cmd
}

func withDoctors(cmd *cobra.Command, fn func(context.Context, *services.DoctorService) error) error {
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer closeDB(db)
	return fn(logger.WithContext(cmd.Context()), &services.DoctorService{DB: db})
}

// openDB opens the configured database and applies the schema.
func openDB(cfg config.Config) (*gorm.DB, error) {
	db, err := repo.Open(cfg.DB, false)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func printSweep(w io.Writer, rep services.SweepReport) error {
	_, err := fmt.Fprintf(w, "scanned=%d updated=%d failed=%d duration=%s\n",
		rep.Scanned, rep.Updated, rep.Failed, rep.Duration)
	return err
}
