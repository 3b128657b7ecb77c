package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"agri-yield-platform/internal/cli"
	"agri-yield-platform/internal/repository"
	"agri-yield-platform/pkg/logging"
)

const version = "1.0.0"

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:          "migrate",
	Short:        "Manage the crop_yields schema",
	SilenceUsage: true,
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Create the crop_yields table and index when missing",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(cmd.Context(), "up", func(ctx context.Context, repo repository.CropRepository) error {
			if err := repo.EnsureSchema(ctx); err != nil {
				return err
			}
			fmt.Println("Migration completed successfully")
			return nil
		})
	},
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Drop the crop_yields table",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(cmd.Context(), "down", func(ctx context.Context, repo repository.CropRepository) error {
			if err := repo.DropSchema(ctx); err != nil {
				return err
			}
			fmt.Println("Schema dropped")
			return nil
		})
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the number of stored records",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRepository(cmd.Context(), "status", func(ctx context.Context, repo repository.CropRepository) error {
			count, err := repo.Count(ctx)
			if err != nil {
				return fmt.Errorf("schema missing or unreadable (run `migrate up`): %w", err)
			}
			fmt.Printf("crop_yields: %d records\n", count)
			return nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $AGRI_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(upCmd, downCmd, statusCmd)
}

func withRepository(ctx context.Context, direction string, run func(context.Context, repository.CropRepository) error) error {
	env, err := cli.Setup(cfgFile, "agri-yield-migrate", version, debug)
	if err != nil {
		return err
	}
	defer env.Logger.Sync()

	repo, closeDB, err := env.OpenRepository(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	fmt.Printf("Connected to %s database\n", env.Config.Database.Driver)
	if err := run(ctx, repo); err != nil {
		env.Logger.Error(ctx, "[MIGRATE_ERROR] Migration failed", logging.Fields{
			"direction": direction,
		}, err)
		return err
	}
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
