package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func init() {
	alertsCmd.Flags().BoolVar(&alertsAll, "all", false, "Include resolved alerts")
	alertsCmd.AddCommand(alertsResolveCmd, alertsClearCmd)
	rootCmd.AddCommand(alertsCmd)
}

var alertsAll bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List alerts",
	RunE:  runAlerts,
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve <id>",
	Short: "Mark an alert as resolved",
	Args:  cobra.ExactArgs(1),
	RunE:  runAlertsResolve,
}

var alertsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop resolved alerts",
	RunE:  runAlertsClear,
}

func runAlerts(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSEVERITY\tRAISED\tRESOLVED\tMESSAGE")
	shown := 0
	for _, alert := range a.monitor.Alerts() {
		if alert.Resolved && !alertsAll {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\n", alert.ID, alert.Type, alert.Severity,
			alert.Timestamp.Format("2006-01-02 15:04:05"), alert.Resolved, alert.Message)
		shown++
	}
	if shown == 0 {
		fmt.Println("No alerts.")
		return nil
	}
	return w.Flush()
}

func runAlertsResolve(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.monitor.ResolveAlert(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Resolved %s\n", args[0])
	return nil
}

func runAlertsClear(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	n := a.monitor.ClearResolvedAlerts(context.Background())
	fmt.Printf("Cleared %d resolved alerts\n", n)
	return nil
}
