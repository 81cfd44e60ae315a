package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/memod-dev/memod/internal/config"
	"github.com/memod-dev/memod/internal/notify"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the memo list, refreshing on upstream changes",
	Long: `Runs in the foreground and re-renders the memo list whenever the
backend reports a change: on a fixed poll interval and database-file
writes in local mode, or via the realtime push stream in cloud mode.
Press Enter to force a refresh, Ctrl-C to stop.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp()
		if err != nil {
			fail("%v", err)
		}
		defer app.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		orch, err := app.newOrchestrator(ctx, today())
		if err != nil {
			fail("%v", err)
		}

		render := func() {
			memos := orch.Memos()
			status := orch.Status()

			fmt.Printf("\n-- %d memos", len(memos))
			if status.Pending > 0 {
				fmt.Printf(", %d pending", status.Pending)
			}
			if status.LastError != "" {
				fmt.Printf(", last error: %s", status.LastError)
			}
			fmt.Println(" --")
			for _, memo := range memos {
				fmt.Println(formatMemoLine(memo.ID, memo.Pinned, string(memo.CompletionStatus), memo.Category, memo.Content))
			}
		}
		render()

		refresh := func() {
			if err := orch.RefreshAll(ctx); err != nil {
				// Keep the previous view; the error is already logged.
				return
			}
			render()
		}

		notifier, poller, err := newNotifier(app, refresh)
		if err != nil {
			fail("%v", err)
		}
		if err := notifier.Start(ctx); err != nil {
			fail("%v", err)
		}
		defer notifier.Stop()

		// Enter forces a refresh, the CLI stand-in for regaining
		// focus.
		go func() {
			reader := bufio.NewReader(os.Stdin)
			for {
				if _, err := reader.ReadString('\n'); err != nil {
					return
				}
				if poller != nil {
					poller.Wake()
				} else {
					refresh()
				}
			}
		}()

		<-ctx.Done()
		fmt.Println("\nStopping.")
	},
}

// newNotifier picks the strategy for the active mode. The poller is
// returned separately so the input loop can wake it.
func newNotifier(app *appContext, refresh func()) (notify.Notifier, *notify.Poller, error) {
	switch app.mode {
	case config.ModeCloud:
		push, err := notify.NewPush(refresh, &notify.PushConfig{
			BaseURL: app.settings.CloudURL,
			APIKey:  app.settings.CloudAPIKey,
			Logger:  app.logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return push, nil, nil

	default:
		poller, err := notify.NewPoller(refresh, &notify.PollerConfig{
			Interval:  app.settings.PollInterval,
			WatchPath: app.store.Path(),
			Logger:    app.logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return poller, poller, nil
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
