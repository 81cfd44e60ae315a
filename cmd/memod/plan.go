package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show daily plans for a date",
	Run: func(cmd *cobra.Command, args []string) {
		date, _ := cmd.Flags().GetString("date")
		if date == "" {
			date = today()
		}

		app, err := openApp()
		if err != nil {
			fail("%v", err)
		}
		defer app.Close()

		ctx := context.Background()
		orch, err := app.newOrchestrator(ctx, date)
		if err != nil {
			fail("%v", err)
		}

		plans := orch.Plans()
		if len(plans) == 0 {
			fmt.Printf("No plans for %s.\n", date)
			return
		}

		fmt.Printf("Plans for %s:\n", date)
		for _, plan := range plans {
			mark := "[ ]"
			if plan.Completed {
				mark = "[x]"
			}
			fmt.Printf("%s %6d  p%-2d %-9s %s", mark, plan.ID, plan.Priority, plan.Category, plan.Title)
			if plan.Description != "" {
				fmt.Printf("  (%s)", plan.Description)
			}
			fmt.Println()
		}
	},
}

func init() {
	planCmd.Flags().String("date", "", "plan date (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(planCmd)
}
