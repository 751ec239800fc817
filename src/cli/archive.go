package cli

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	archiveCmd.AddCommand(archiveStatusCmd)
	rootCmd.AddCommand(archiveCmd)
}

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Run one smart archiving pass",
	RunE:  runArchive,
}

var archiveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the smart archiving status",
	RunE:  runArchiveStatus,
}

func runArchive(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.monitor.PerformSmartArchiving(context.Background())
	if err != nil {
		return err
	}
	return printJSON(os.Stdout, result)
}

func runArchiveStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(context.Background(), true)
	if err != nil {
		return err
	}
	defer a.Close()

	return printJSON(os.Stdout, a.monitor.SmartArchivingStatus())
}
