package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memod-dev/memod/internal/config"
)

var modeCmd = &cobra.Command{
	Use:   "mode [auto|local|cloud]",
	Short: "Show or set the persisted backend preference",
	Long: `Without an argument, prints the persisted preference. With one,
writes it to the config file. A running watch session keeps its current
backend; the new preference takes effect on the next start.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path, err := configPath()
		if err != nil {
			fail("%v", err)
		}

		if len(args) == 0 {
			settings, err := config.Load(path)
			if err != nil {
				fail("%v", err)
			}
			fmt.Printf("Preference: %s\n", settings.Mode)
			return
		}

		mode, err := config.ParseMode(args[0])
		if err != nil {
			fail("%v", err)
		}
		if err := config.SetMode(path, mode); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Preference set to %s (takes effect on next start)\n", mode)
	},
}

func init() {
	rootCmd.AddCommand(modeCmd)
}
