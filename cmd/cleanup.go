package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "delete blobs of deleted and abandoned instances once",
	Long: `cleanup removes Creating instances older than store.stale_creating_after
from the index and then deletes the content of every due deleted instance.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, closeApp, err := setup(ctx)
		if err != nil {
			return err
		}
		defer closeApp()

		stale, err := a.Delete.CleanupStaleCreatingInstances(ctx, a.Config.Store.StaleCreatingAfter)
		if err != nil {
			return err
		}

		var total int
		for {
			cleaned, err := a.Delete.CleanupDeletedInstances(ctx)
			if err != nil {
				return err
			}
			total += cleaned
			if cleaned < a.Config.Delete.BatchSize {
				break
			}
		}

		a.Logger.WithField("stale", stale).WithField("cleaned", total).Info("cleanup completed")
		return nil
	},
}

func init() {
	RootCmd.AddCommand(cleanupCmd)
}
