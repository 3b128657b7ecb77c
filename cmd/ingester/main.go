package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"agri-yield-platform/internal/cli"
	"agri-yield-platform/internal/dataset"
	"agri-yield-platform/internal/services"
	"agri-yield-platform/pkg/logging"
)

const version = "1.0.0"

var (
	cfgFile   string
	debug     bool
	batchSize int
	replace   bool

	sampleSeed    int64
	sampleRowsPer int
)

var rootCmd = &cobra.Command{
	Use:   "ingester",
	Short: "Load crop yield records into the record store",
	Long: `ingester writes crop yield observations into the configured database so the
API server can start with data.source=database.`,
	SilenceUsage: true,
}

var csvCmd = &cobra.Command{
	Use:   "csv [path]",
	Short: "Ingest a crop yield CSV file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIngestion(cmd.Context(), func(ctx context.Context, env *cli.Env, svc *services.IngestionService) (*services.IngestionResult, error) {
			path := env.Config.Data.CSVPath
			if len(args) == 1 {
				path = args[0]
			}
			return svc.IngestCSV(ctx, path, batchSize, replace)
		})
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Ingest a deterministic synthetic dataset",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withIngestion(cmd.Context(), func(ctx context.Context, env *cli.Env, svc *services.IngestionService) (*services.IngestionResult, error) {
			opts := dataset.SampleOptions{
				Seed:               env.Config.Data.SampleSeed,
				RowsPerCombination: env.Config.Data.SampleRowsPerCombination,
			}
			if cmd.Flags().Changed("seed") {
				opts.Seed = sampleSeed
			}
			if cmd.Flags().Changed("rows-per-combination") {
				opts.RowsPerCombination = sampleRowsPer
			}

			table := dataset.GenerateSample(opts)
			if replace {
				if err := svc.Reset(ctx); err != nil {
					return nil, err
				}
			}
			result, err := svc.IngestRecords(ctx, table.Records(), batchSize)
			if err != nil {
				return nil, err
			}
			result.Source = table.Source()
			return result, nil
		})
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $AGRI_CONFIG)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", services.DefaultBatchSize, "records per insert transaction")
	rootCmd.PersistentFlags().BoolVar(&replace, "replace", false, "delete stored records before ingesting")

	generateCmd.Flags().Int64Var(&sampleSeed, "seed", 0, "random seed (overrides data.sample_seed)")
	generateCmd.Flags().IntVar(&sampleRowsPer, "rows-per-combination", 0, "rows per (region, crop, year) (overrides config)")

	rootCmd.AddCommand(csvCmd, generateCmd)
}

type ingestFunc func(ctx context.Context, env *cli.Env, svc *services.IngestionService) (*services.IngestionResult, error)

func withIngestion(ctx context.Context, run ingestFunc) error {
	env, err := cli.Setup(cfgFile, "agri-yield-ingester", version, debug)
	if err != nil {
		return err
	}
	defer env.Logger.Sync()

	env.Logger.Info(ctx, "[INGESTER_START] Starting crop yield ingestion", logging.Fields{
		"version":    version,
		"driver":     env.Config.Database.Driver,
		"batch_size": batchSize,
		"replace":    replace,
	})

	repo, closeDB, err := env.OpenRepository(ctx)
	if err != nil {
		return err
	}
	defer closeDB()

	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}

	svc := services.NewIngestionService(repo, env.Logger, env.Metrics)
	result, err := run(ctx, env, svc)
	if err != nil {
		env.Logger.Error(ctx, "[INGESTER_ERROR] Ingestion failed", logging.Fields{}, err)
		return err
	}

	printResult(result)

	env.Logger.Info(ctx, "[INGESTER_COMPLETE] Ingestion completed successfully", logging.Fields{
		"source":             result.Source,
		"total_records":      result.TotalRecords,
		"successful_records": result.SuccessfulRecords,
		"failed_records":     result.FailedRecords,
		"duration_seconds":   result.Duration.Seconds(),
	})
	return nil
}

func printResult(result *services.IngestionResult) {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Println("INGESTION COMPLETE")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Source:             %s\n", result.Source)
	fmt.Printf("Total Records:      %d\n", result.TotalRecords)
	fmt.Printf("Successful Records: %d\n", result.SuccessfulRecords)
	fmt.Printf("Failed Records:     %d\n", result.FailedRecords)
	fmt.Printf("Batches:            %d\n", result.Batches)
	fmt.Printf("Duration:           %v\n", result.Duration)
	if secs := result.Duration.Seconds(); secs > 0 {
		fmt.Printf("Records/Second:     %.2f\n", float64(result.SuccessfulRecords)/secs)
	}
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
