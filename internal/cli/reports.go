package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"pneumoscan/internal/infrastructure/storage"
)

var reportsLimit int

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List the most recent diagnostic reports from the index",
	Args:  cobra.NoArgs,
	RunE:  runReports,
}

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.Flags().IntVarP(&reportsLimit, "limit", "n", 20, "Number of reports to show")
}

func runReports(cmd *cobra.Command, args []string) error {
	if reportsLimit < 1 {
		return fmt.Errorf("limit must be positive, got %d", reportsLimit)
	}

	// Моделям здесь делать нечего, открываем только индекс
	store, err := storage.NewFileReportStore(cfg.DataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	reports, err := store.Recent(cmd.Context(), reportsLimit)
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), reports)
}
