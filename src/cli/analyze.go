package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeJSON, "json", false, "Print the analysis as JSON")
	rootCmd.AddCommand(analyzeCmd)
}

var analyzeJSON bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Recommend secondary indexes for the store",
	RunE:  runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.monitor.AnalyzeAndRecommend(context.Background())
	if err != nil {
		return err
	}
	if analyzeJSON {
		return printJSON(os.Stdout, result)
	}

	fmt.Printf("Patterns analyzed: %d   estimated gain: %.1f%%   confidence: %.2f\n\n",
		result.TotalPatternsAnalyzed, result.PerformanceGainEstimate, result.Confidence)
	if len(result.Recommendations) == 0 {
		fmt.Println("No index recommendations.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "PRIORITY\tINDEX\tTABLE\tCOLUMNS\tTYPE\tIMPROVEMENT")
	for _, r := range result.Recommendations {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%.1f%%\n",
			r.Priority, r.IndexName, r.Table, strings.Join(r.Columns, ","), r.Type, r.EstimatedImprovementPct)
	}
	return w.Flush()
}
