package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var operationID string

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "index existing instances for newly added extended query tags",
	Long: `reindex assigns every extended query tag in the Adding status to a new
operation and indexes all stored instances for it. --operation resumes an
operation that was interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		a, closeApp, err := setup(ctx)
		if err != nil {
			return err
		}
		defer closeApp()

		if operationID != "" {
			return a.Reindexer.Resume(ctx, operationID)
		}
		id, err := a.Reindexer.Run(ctx)
		if err != nil {
			return err
		}
		if id != "" {
			a.Logger.WithField("operation_id", id).Info("reindex completed")
		}
		return nil
	},
}

func init() {
	RootCmd.AddCommand(reindexCmd)
	reindexCmd.Flags().StringVar(&operationID, "operation", "", "resume the given reindex operation")
}
