package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memod-dev/memod/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the active backend and sync state",
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp()
		if err != nil {
			fail("%v", err)
		}
		defer app.Close()

		fmt.Printf("Mode:      %s (preference: %s)\n", app.mode, app.settings.Mode)

		ctx := context.Background()

		switch app.mode {
		case config.ModeLocal:
			fmt.Printf("Database:  %s\n", app.store.Path())
			memoCount, err := app.store.CountMemos(ctx)
			if err != nil {
				fail("%v", err)
			}
			planCount, err := app.store.CountPlans(ctx)
			if err != nil {
				fail("%v", err)
			}
			fmt.Printf("Memos:     %d (archived included)\n", memoCount)
			fmt.Printf("Plans:     %d\n", planCount)

		case config.ModeCloud:
			fmt.Printf("Cloud URL: %s\n", app.settings.CloudURL)

			orch, err := app.newOrchestrator(ctx, today())
			if err != nil {
				fail("%v", err)
			}
			status := orch.Status()
			fmt.Printf("Memos:     %d loaded\n", len(orch.Memos()))
			fmt.Printf("Pending:   %d operations\n", status.Pending)
			if status.LastError != "" {
				fmt.Printf("Last err:  %s\n", status.LastError)
			}
			if !status.LastSyncedAt.IsZero() {
				fmt.Printf("Synced at: %s\n", status.LastSyncedAt.Format("2006-01-02 15:04:05"))
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
