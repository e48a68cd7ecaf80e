package loom

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSyncCmd creates the sync command: one reconciliation pass and exit.
func NewSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Reconcile local state with the backend once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.Syncer.Run(cmd.Context()); err != nil {
				fmt.Printf("sync finished with degraded collections: %v\n", err)
				return nil
			}
			fmt.Println("sync complete")
			return nil
		},
	}
}
