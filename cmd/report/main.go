package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"agri-yield-platform/internal/cli"
	"agri-yield-platform/internal/config"
	"agri-yield-platform/internal/dataset"
	"agri-yield-platform/internal/models"
	"agri-yield-platform/internal/services"
)

const version = "1.0.0"

var (
	cfgFile string
	debug   bool
	source  string
	csvPath string
	region  string
	crop    string
)

var rootCmd = &cobra.Command{
	Use:   "report",
	Short: "Print a yield analytics report without starting the API",
	Long: `report loads the crop yield table the same way the API server does and prints
yield by region, the yearly trend, factor impact and, for --region/--crop,
the narrative insights.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd)
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $AGRI_CONFIG)")
	f.BoolVar(&debug, "debug", false, "enable debug logging")
	f.StringVar(&source, "source", "", "data source: csv, sample or database (overrides data.source)")
	f.StringVar(&csvPath, "csv", "", "CSV path (overrides data.csv_path)")
	f.StringVar(&region, "region", "", "restrict the report to a region")
	f.StringVar(&crop, "crop", "", "restrict the report to a crop")
}

func run(cmd *cobra.Command) error {
	ctx := cmd.Context()

	env, err := cli.Setup(cfgFile, "agri-yield-report", version, debug)
	if err != nil {
		return err
	}
	defer env.Logger.Sync()

	if cmd.Flags().Changed("source") {
		env.Config.Data.Source = source
	}
	if cmd.Flags().Changed("csv") {
		env.Config.Data.CSVPath = csvPath
	}

	var store dataset.RecordSource
	if env.Config.Data.Source == config.SourceDatabase {
		repo, closeDB, err := env.OpenRepository(ctx)
		if err != nil {
			return err
		}
		defer closeDB()
		store = repo
	}

	table, err := dataset.NewLoader(store, env.Logger, env.Metrics).Load(ctx, env.Config.Data)
	if err != nil {
		return err
	}

	catalog, err := services.DefaultCatalog()
	if err != nil {
		return err
	}
	agg := services.NewAggregationService(table, env.Logger, env.Metrics)
	predictor := services.NewPredictionService(table, env.Config.Model, env.Logger, env.Metrics)
	insights := services.NewInsightService(agg, predictor, catalog, env.Config.Insights, env.Logger, env.Metrics)

	banner("CROP YIELD REPORT")
	fmt.Printf("Source: %s\n", table.Source())
	fmt.Printf("Rows:   %d\n", table.Len())
	fmt.Printf("Scope:  region=%s crop=%s\n", labelOr(region, "all"), labelOr(crop, "all"))

	section("YIELD BY REGION")
	for _, g := range agg.YieldByRegion(ctx, crop) {
		fmt.Printf("  %-20s mean %-8s std %-8s n=%d\n", g.Region, formatNull(g.Mean), formatNull(g.Std), g.Count)
	}

	section("YIELD TREND")
	for _, y := range agg.YieldTrend(ctx, region, crop) {
		fmt.Printf("  %d  mean %-8s n=%d\n", y.Year, formatNull(y.Mean), y.Count)
	}

	section("FACTOR IMPACT")
	impact, err := agg.FactorImpact(ctx, region, crop)
	if err != nil {
		return err
	}
	if len(impact) == 0 {
		fmt.Println("  (not enough rows)")
	}
	for _, f := range impact.Dominant() {
		fmt.Printf("  %-12s %5.1f%%\n", f, impact[f])
	}

	if region != "" {
		ri, err := insights.RegionInsights(ctx, region, crop)
		if err != nil {
			return err
		}
		section("REGIONAL INSIGHTS")
		printLines(ri.Summary, ri.Recommendations)
	}
	if crop != "" {
		ci, err := insights.CropInsights(ctx, crop, region)
		if err != nil {
			return err
		}
		section("CROP INSIGHTS")
		printLines(ci.Summary, ci.Recommendations)
	}
	if region != "" && crop != "" {
		blocks, err := insights.ImprovementStrategies(ctx, region, crop)
		if err != nil {
			return err
		}
		section("IMPROVEMENT STRATEGIES")
		for _, b := range blocks {
			fmt.Printf("  %s (%s)\n", b.Factor, b.Impact)
			for _, s := range b.Strategies {
				fmt.Printf("    - %s\n", s)
			}
		}
	}
	return nil
}

func banner(title string) {
	fmt.Println(strings.Repeat("=", 64))
	fmt.Println(title)
	fmt.Println(strings.Repeat("=", 64))
}

func section(title string) {
	fmt.Println()
	fmt.Println(title)
	fmt.Println(strings.Repeat("-", 64))
}

func printLines(summary, recs []string) {
	for _, s := range summary {
		fmt.Printf("  * %s\n", s)
	}
	for _, r := range recs {
		fmt.Printf("  > %s\n", r)
	}
}

func formatNull(f models.NullFloat) string {
	if !f.Valid() {
		return "-"
	}
	return fmt.Sprintf("%.2f", float64(f))
}

func labelOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
