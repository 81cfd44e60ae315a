package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memod-dev/memod/internal/backend/cloud"
	"github.com/memod-dev/memod/internal/backend/local"
	"github.com/memod-dev/memod/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy the local store to the cloud store",
	Long: `Copies memos and daily plans from the embedded database to the
hosted store. Memos already present remotely (matched by uid) are
skipped, so the command is safe to re-run. Plans are only written when
the hosted plan table is empty.

--dry-run validates connectivity and prints what would happen.
--export-only writes memo.migration.jsonl and daily_plan.migration.json
instead of touching the hosted store.`,
	Run: func(cmd *cobra.Command, args []string) {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		exportOnly, _ := cmd.Flags().GetBool("export-only")
		exportDir, _ := cmd.Flags().GetString("export-dir")
		batchSize, _ := cmd.Flags().GetInt("batch-size")

		settings, err := loadSettings()
		if err != nil {
			fail("%v", err)
		}
		logger := newLogger(settings)

		store, err := local.Open(settings.LocalPath)
		if err != nil {
			fail("%v", err)
		}
		defer store.Close()
		if err := store.InitSchema(); err != nil {
			fail("%v", err)
		}

		var cloudClient *cloud.Client
		if !exportOnly {
			cloudClient, err = cloud.New(cloud.Config{
				BaseURL: settings.CloudURL,
				APIKey:  settings.CloudAPIKey,
				Logger:  logger,
			})
			if err != nil {
				fail("%v", err)
			}
		}

		migrator, err := migrate.New(store, cloudClient, migrate.Options{
			DryRun:     dryRun,
			ExportOnly: exportOnly,
			ExportDir:  exportDir,
			BatchSize:  batchSize,
			Logger:     logger,
		})
		if err != nil {
			fail("%v", err)
		}

		result, err := migrator.Run(context.Background())
		if err != nil {
			fail("%v", err)
		}

		fmt.Printf("Local store:   %d memos, %d plans\n", result.LocalMemos, result.LocalPlans)
		switch {
		case exportOnly:
			for _, file := range result.ExportedFiles {
				fmt.Printf("Exported:      %s\n", file)
			}
		case dryRun:
			fmt.Printf("Would insert:  %d memos (%d already present)\n", result.MemosToSend, result.MemosSkipped)
			if result.PlansSkipped {
				fmt.Println("Plans:         skipped, remote table is not empty")
			} else {
				fmt.Printf("Would insert:  %d plans\n", result.LocalPlans)
			}
		default:
			fmt.Printf("Inserted:      %d memos (%d already present)\n", result.MemosInserted, result.MemosSkipped)
			if result.PlansSkipped {
				fmt.Println("Plans:         skipped, remote table is not empty")
			} else {
				fmt.Printf("Inserted:      %d plans\n", result.PlansInserted)
			}
		}
	},
}

func init() {
	migrateCmd.Flags().Bool("dry-run", false, "validate and count without writing")
	migrateCmd.Flags().Bool("export-only", false, "serialize local rows to files instead of inserting")
	migrateCmd.Flags().String("export-dir", ".", "directory for export files")
	migrateCmd.Flags().Int("batch-size", 0, "rows per insert request (default 5)")
	rootCmd.AddCommand(migrateCmd)
}
