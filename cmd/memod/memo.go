package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/memod-dev/memod/internal/backend"
	"github.com/memod-dev/memod/internal/model"
)

var addCmd = &cobra.Command{
	Use:   "add <content>...",
	Short: "Add a memo",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		category, _ := cmd.Flags().GetString("category")
		targetDate, _ := cmd.Flags().GetString("date")

		app, err := openApp()
		if err != nil {
			fail("%v", err)
		}
		defer app.Close()

		ctx := context.Background()
		orch, err := app.newOrchestrator(ctx, today())
		if err != nil {
			fail("%v", err)
		}

		params := backend.CreateMemoParams{
			Content:  strings.Join(args, " "),
			Category: category,
		}
		if targetDate != "" {
			params.TargetDate = &targetDate
		}

		if _, err := orch.CreateMemo(ctx, params); err != nil {
			fail("%v", err)
		}
		if err := flushOrchestrator(ctx, orch); err != nil {
			fail("%v", err)
		}
		if status := orch.Status(); status.LastError != "" {
			fail("%s", status.LastError)
		}

		created := orch.Memos()[0]
		fmt.Printf("Added memo %d (%s)\n", created.ID, created.Category)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List memos, pinned first then newest first",
	Run: func(cmd *cobra.Command, args []string) {
		category, _ := cmd.Flags().GetString("category")
		limit, _ := cmd.Flags().GetInt("limit")
		date, _ := cmd.Flags().GetString("date")

		app, err := openApp()
		if err != nil {
			fail("%v", err)
		}
		defer app.Close()

		memos, err := listMemos(context.Background(), app, category, limit, date)
		if err != nil {
			fail("%v", err)
		}

		if len(memos) == 0 {
			fmt.Println("No memos.")
			return
		}
		for _, memo := range memos {
			fmt.Println(formatMemoLine(memo.ID, memo.Pinned, string(memo.CompletionStatus), memo.Category, memo.Content))
		}
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search memo content",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		app, err := openApp()
		if err != nil {
			fail("%v", err)
		}
		defer app.Close()

		memos, err := searchMemos(context.Background(), app, args[0])
		if err != nil {
			fail("%v", err)
		}

		if len(memos) == 0 {
			fmt.Println("No matches.")
			return
		}
		for _, memo := range memos {
			fmt.Println(formatMemoLine(memo.ID, memo.Pinned, string(memo.CompletionStatus), memo.Category, memo.Content))
		}
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <id> [content]...",
	Short: "Edit a memo's content, category or target date",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		category, _ := cmd.Flags().GetString("category")
		targetDate, _ := cmd.Flags().GetString("date")

		params := backend.UpdateMemoParams{}
		if len(args) > 1 {
			content := strings.Join(args[1:], " ")
			params.Content = &content
		}
		if category != "" {
			params.Category = &category
		}
		if targetDate != "" {
			params.TargetDate = &targetDate
		}
		if params.Content == nil && params.Category == nil && params.TargetDate == nil {
			fail("nothing to change: pass new content, --category or --date")
		}

		runMemoMutation("Updated memo %d\n", id, func(ctx context.Context, orch memoMutator) error {
			return orch.UpdateMemo(ctx, id, params)
		})
	},
}

var toggleCmd = &cobra.Command{
	Use:   "toggle <id>",
	Short: "Advance completion status (pending → completed → incomplete)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		runMemoMutation("Toggled memo %d\n", id, func(ctx context.Context, orch memoMutator) error {
			return orch.ToggleMemo(ctx, id)
		})
	},
}

var pinCmd = &cobra.Command{
	Use:   "pin <id>",
	Short: "Pin or unpin a memo",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		runMemoMutation("Pinned/unpinned memo %d\n", id, func(ctx context.Context, orch memoMutator) error {
			return orch.TogglePin(ctx, id)
		})
	},
}

var archiveCmd = &cobra.Command{
	Use:   "archive <id>",
	Short: "Archive a memo (hidden from lists, kept in the store)",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		runMemoMutation("Archived memo %d\n", id, func(ctx context.Context, orch memoMutator) error {
			return orch.ArchiveMemo(ctx, id)
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a memo after a short undo window",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := parseID(args[0])
		now, _ := cmd.Flags().GetBool("now")

		app, err := openApp()
		if err != nil {
			fail("%v", err)
		}
		defer app.Close()

		ctx := context.Background()
		orch, err := app.newOrchestrator(ctx, today())
		if err != nil {
			fail("%v", err)
		}

		if now {
			if err := orch.DeleteNow(ctx, id); err != nil {
				fail("%v", err)
			}
			fmt.Printf("Deleted memo %d\n", id)
			return
		}

		if err := orch.DeleteMemo(ctx, id); err != nil {
			fail("%v", err)
		}

		grace := 3500 * time.Millisecond
		fmt.Printf("Deleting memo %d... press Enter within %.1fs to undo\n", id, grace.Seconds())

		pressed := make(chan struct{})
		go func() {
			if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err == nil {
				close(pressed)
			}
		}()

		select {
		case <-pressed:
			if orch.UndoDelete(id) {
				fmt.Printf("Restored memo %d\n", id)
				return
			}
			// Window already elapsed; fall through to the commit.
		case <-time.After(grace):
		}

		// Idempotent when the timer already committed.
		if err := orch.DeleteNow(ctx, id); err != nil {
			fail("%v", err)
		}
		fmt.Printf("Deleted memo %d\n", id)
	},
}

// memoMutator is the slice of the orchestrator the shared mutation
// runner needs.
type memoMutator interface {
	UpdateMemo(ctx context.Context, id int64, params backend.UpdateMemoParams) error
	ToggleMemo(ctx context.Context, id int64) error
	TogglePin(ctx context.Context, id int64) error
	ArchiveMemo(ctx context.Context, id int64) error
}

// runMemoMutation opens the app, syncs, applies one mutation, flushes
// and reports.
func runMemoMutation(doneFormat string, id int64, mutate func(context.Context, memoMutator) error) {
	app, err := openApp()
	if err != nil {
		fail("%v", err)
	}
	defer app.Close()

	ctx := context.Background()
	orch, err := app.newOrchestrator(ctx, today())
	if err != nil {
		fail("%v", err)
	}

	if err := mutate(ctx, orch); err != nil {
		fail("%v", err)
	}
	if err := flushOrchestrator(ctx, orch); err != nil {
		fail("%v", err)
	}
	if status := orch.Status(); status.LastError != "" {
		fail("%s", status.LastError)
	}
	fmt.Printf(doneFormat, id)
}

// listMemos fetches the visible page; with --date it narrows to memos
// targeting (or created on) that day, using the store's date query in
// local mode and a client-side filter otherwise.
func listMemos(ctx context.Context, app *appContext, category string, limit int, date string) ([]model.Memo, error) {
	if date == "" {
		return app.client.ListMemos(ctx, backend.ListMemosOptions{
			Limit:    limit,
			Category: category,
		})
	}

	var memos []model.Memo
	var err error
	if app.store != nil {
		memos, err = app.store.ListMemosByDate(ctx, date)
	} else {
		memos, err = app.client.ListMemos(ctx, backend.ListMemosOptions{Limit: limit})
		if err == nil {
			filtered := memos[:0:0]
			for _, memo := range memos {
				if memoMatchesDate(memo, date) {
					filtered = append(filtered, memo)
				}
			}
			memos = filtered
		}
	}
	if err != nil {
		return nil, err
	}

	if category == "" {
		return memos, nil
	}
	filtered := memos[:0:0]
	for _, memo := range memos {
		if memo.Category == category {
			filtered = append(filtered, memo)
		}
	}
	return filtered, nil
}

// memoMatchesDate mirrors the local store's day view: a memo belongs
// to a day when it targets it or was created on it (local time).
func memoMatchesDate(memo model.Memo, date string) bool {
	if memo.TargetDate != nil && *memo.TargetDate == date {
		return true
	}
	return time.Unix(memo.CreatedTS, 0).Format(model.DateFormat) == date
}

// searchMemos uses the embedded store's indexed search in local mode
// and filters the fetched page otherwise.
func searchMemos(ctx context.Context, app *appContext, query string) ([]model.Memo, error) {
	if app.store != nil {
		return app.store.SearchMemos(ctx, query)
	}

	memos, err := app.client.ListMemos(ctx, backend.ListMemosOptions{})
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	matches := memos[:0:0]
	for _, memo := range memos {
		if strings.Contains(strings.ToLower(memo.Content), needle) {
			matches = append(matches, memo)
		}
	}
	return matches, nil
}

func parseID(arg string) int64 {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		fail("invalid memo id %q", arg)
	}
	return id
}

func today() string {
	return time.Now().Format(model.DateFormat)
}

func init() {
	addCmd.Flags().String("category", "", "memo category (default daily)")
	addCmd.Flags().String("date", "", "target date (YYYY-MM-DD)")

	listCmd.Flags().String("category", "", "filter by category")
	listCmd.Flags().Int("limit", 0, "page size (default 100)")
	listCmd.Flags().String("date", "", "only memos targeting or created on this day (YYYY-MM-DD)")

	editCmd.Flags().String("category", "", "new category")
	editCmd.Flags().String("date", "", "new target date (YYYY-MM-DD)")

	rmCmd.Flags().Bool("now", false, "delete immediately without the undo window")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(toggleCmd)
	rootCmd.AddCommand(pinCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(rmCmd)
}
