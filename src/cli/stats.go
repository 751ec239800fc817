package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print the full stats as JSON")
	rootCmd.AddCommand(statsCmd)
}

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show performance stats of the recorded operations",
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	stats := a.monitor.Stats()
	if statsJSON {
		return printJSON(os.Stdout, stats)
	}

	fmt.Printf("Queries (24h): %d   avg: %.2fms   slow: %d   fast: %d\n",
		stats.TotalQueries, stats.AverageQueryTime, len(stats.SlowQueries), len(stats.FastQueries))
	fmt.Printf("This week avg: %.2fms   last week avg: %.2fms   improvement: %.1f%%\n\n",
		stats.PerformanceTrends.ThisWeekAvg, stats.PerformanceTrends.LastWeekAvg,
		stats.PerformanceTrends.ImprovementSinceLastWeek)

	if len(stats.SlowestOperations) == 0 {
		fmt.Println("No operations recorded in the last 7 days.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "OPERATION\tTABLE\tCOUNT\tAVG MS")
	for _, op := range stats.SlowestOperations {
		fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\n", op.Operation, op.Table, op.Count, op.AvgTime)
	}
	return w.Flush()
}
