package local

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/memod-dev/memod/internal/backend"
	"github.com/memod-dev/memod/internal/model"
)

// openTestStore creates a fresh database under a temp directory.
func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "memod.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.InitSchema(); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}

	return store
}

// TestCreateMemoDefaults verifies backend-assigned fields and defaults.
func TestCreateMemoDefaults(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	memo, err := store.CreateMemo(ctx, backend.CreateMemoParams{Content: "buy milk"})
	if err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}

	if memo.ID <= 0 {
		t.Errorf("expected positive id, got %d", memo.ID)
	}
	if memo.UID == "" {
		t.Error("expected non-empty uid")
	}
	if memo.Category != "daily" {
		t.Errorf("category = %q, want daily", memo.Category)
	}
	if memo.CompletionStatus != model.StatusPending {
		t.Errorf("completion_status = %q, want pending", memo.CompletionStatus)
	}
	if memo.Pinned {
		t.Error("new memo should not be pinned")
	}
	if memo.CreatedTS == 0 || memo.UpdatedTS == 0 {
		t.Error("timestamps should be set")
	}
}

// TestCreateMemoValidation verifies blank content is rejected.
func TestCreateMemoValidation(t *testing.T) {
	store := openTestStore(t)

	_, err := store.CreateMemo(context.Background(), backend.CreateMemoParams{Content: "   "})
	if !errors.Is(err, backend.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

// TestListMemosOrdering verifies pinned-first then newest-first ordering
// and that archived memos are excluded.
func TestListMemosOrdering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.CreateMemo(ctx, backend.CreateMemoParams{Content: "first"})
	if err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}
	second, err := store.CreateMemo(ctx, backend.CreateMemoParams{Content: "second"})
	if err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}
	archived, err := store.CreateMemo(ctx, backend.CreateMemoParams{Content: "archived"})
	if err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}

	pinned := true
	if _, err := store.UpdateMemo(ctx, first.ID, backend.UpdateMemoParams{Pinned: &pinned}); err != nil {
		t.Fatalf("UpdateMemo(pin) failed: %v", err)
	}
	hide := true
	if _, err := store.UpdateMemo(ctx, archived.ID, backend.UpdateMemoParams{Archived: &hide}); err != nil {
		t.Fatalf("UpdateMemo(archive) failed: %v", err)
	}

	memos, err := store.ListMemos(ctx, backend.ListMemosOptions{})
	if err != nil {
		t.Fatalf("ListMemos() failed: %v", err)
	}

	if len(memos) != 2 {
		t.Fatalf("expected 2 visible memos, got %d", len(memos))
	}
	if memos[0].ID != first.ID {
		t.Errorf("pinned memo should sort first, got id %d", memos[0].ID)
	}
	if memos[1].ID != second.ID {
		t.Errorf("expected second memo after pinned, got id %d", memos[1].ID)
	}
}

// TestListMemosCategoryFilter verifies the category filter.
func TestListMemosCategoryFilter(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateMemo(ctx, backend.CreateMemoParams{Content: "w", Category: "work"}); err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}
	if _, err := store.CreateMemo(ctx, backend.CreateMemoParams{Content: "d"}); err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}

	memos, err := store.ListMemos(ctx, backend.ListMemosOptions{Category: "work"})
	if err != nil {
		t.Fatalf("ListMemos() failed: %v", err)
	}
	if len(memos) != 1 || memos[0].Category != "work" {
		t.Fatalf("expected exactly the work memo, got %+v", memos)
	}
}

// TestUpdateMemoPartial verifies only provided fields change and
// updated_ts is refreshed.
func TestUpdateMemoPartial(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	memo, err := store.CreateMemo(ctx, backend.CreateMemoParams{Content: "A", Category: "work"})
	if err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}

	content := "B"
	updated, err := store.UpdateMemo(ctx, memo.ID, backend.UpdateMemoParams{Content: &content})
	if err != nil {
		t.Fatalf("UpdateMemo() failed: %v", err)
	}

	if updated.Content != "B" {
		t.Errorf("content = %q, want B", updated.Content)
	}
	if updated.Category != "work" {
		t.Errorf("category changed unexpectedly: %q", updated.Category)
	}
	if updated.UID != memo.UID {
		t.Error("uid must be immutable")
	}
}

// TestUpdateMemoNotFound verifies the missing-id error.
func TestUpdateMemoNotFound(t *testing.T) {
	store := openTestStore(t)

	content := "x"
	_, err := store.UpdateMemo(context.Background(), 9999, backend.UpdateMemoParams{Content: &content})
	if !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestToggleMemoStatusCycle verifies toggling walks the 3-cycle.
func TestToggleMemoStatusCycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	memo, err := store.CreateMemo(ctx, backend.CreateMemoParams{Content: "cycle"})
	if err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}

	want := []model.CompletionStatus{model.StatusCompleted, model.StatusIncomplete, model.StatusPending}
	for i, expected := range want {
		toggled, err := store.ToggleMemoStatus(ctx, memo.ID)
		if err != nil {
			t.Fatalf("ToggleMemoStatus() #%d failed: %v", i+1, err)
		}
		if toggled.CompletionStatus != expected {
			t.Errorf("toggle #%d = %q, want %q", i+1, toggled.CompletionStatus, expected)
		}
	}
}

// TestDeleteMemoIdempotent verifies repeated deletes do not error.
func TestDeleteMemoIdempotent(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	memo, err := store.CreateMemo(ctx, backend.CreateMemoParams{Content: "gone"})
	if err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}

	if err := store.DeleteMemo(ctx, memo.ID); err != nil {
		t.Fatalf("first DeleteMemo() failed: %v", err)
	}
	if err := store.DeleteMemo(ctx, memo.ID); err != nil {
		t.Fatalf("second DeleteMemo() failed: %v", err)
	}

	memos, err := store.ListMemos(ctx, backend.ListMemosOptions{})
	if err != nil {
		t.Fatalf("ListMemos() failed: %v", err)
	}
	if len(memos) != 0 {
		t.Fatalf("expected empty list, got %d memos", len(memos))
	}
}

// TestListPlansByDateOrdering verifies priority-desc, created-asc order.
func TestListPlansByDateOrdering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	low, err := store.CreatePlan(ctx, CreatePlanParams{PlanDate: "2026-01-10", Title: "low", Priority: 1})
	if err != nil {
		t.Fatalf("CreatePlan() failed: %v", err)
	}
	high, err := store.CreatePlan(ctx, CreatePlanParams{PlanDate: "2026-01-10", Title: "high", Priority: 5})
	if err != nil {
		t.Fatalf("CreatePlan() failed: %v", err)
	}
	if _, err := store.CreatePlan(ctx, CreatePlanParams{PlanDate: "2026-01-11", Title: "other day"}); err != nil {
		t.Fatalf("CreatePlan() failed: %v", err)
	}

	plans, err := store.ListPlansByDate(ctx, "2026-01-10")
	if err != nil {
		t.Fatalf("ListPlansByDate() failed: %v", err)
	}

	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %d", len(plans))
	}
	if plans[0].ID != high.ID || plans[1].ID != low.ID {
		t.Errorf("unexpected order: got %q then %q", plans[0].Title, plans[1].Title)
	}
}

// TestSearchMemos verifies content matching and that archived rows are
// excluded.
func TestSearchMemos(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.CreateMemo(ctx, backend.CreateMemoParams{Content: "grocery run"}); err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}
	if _, err := store.CreateMemo(ctx, backend.CreateMemoParams{Content: "call dentist"}); err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}

	memos, err := store.SearchMemos(ctx, "grocery")
	if err != nil {
		t.Fatalf("SearchMemos() failed: %v", err)
	}
	if len(memos) != 1 || memos[0].Content != "grocery run" {
		t.Fatalf("unexpected search result: %+v", memos)
	}
}

// TestListMemosByDate verifies the day view matches on target_date and
// falls back to the creation day.
func TestListMemosByDate(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	targetDate := "2031-06-01"
	targeted, err := store.CreateMemo(ctx, backend.CreateMemoParams{Content: "future", TargetDate: &targetDate})
	if err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}
	createdToday, err := store.CreateMemo(ctx, backend.CreateMemoParams{Content: "today"})
	if err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}

	future, err := store.ListMemosByDate(ctx, targetDate)
	if err != nil {
		t.Fatalf("ListMemosByDate() failed: %v", err)
	}
	if len(future) != 1 || future[0].ID != targeted.ID {
		t.Fatalf("expected only the targeted memo, got %+v", future)
	}

	today := time.Now().Format(model.DateFormat)
	todays, err := store.ListMemosByDate(ctx, today)
	if err != nil {
		t.Fatalf("ListMemosByDate() failed: %v", err)
	}
	found := false
	for _, memo := range todays {
		if memo.ID == createdToday.ID {
			found = true
		}
	}
	if !found {
		t.Errorf("memo created today missing from today's view: %+v", todays)
	}
}

// TestListAllMemosIncludesArchived verifies the migration read path
// carries archived rows in creation order.
func TestListAllMemosIncludesArchived(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	memo, err := store.CreateMemo(ctx, backend.CreateMemoParams{Content: "keep"})
	if err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}
	hide := true
	if _, err := store.UpdateMemo(ctx, memo.ID, backend.UpdateMemoParams{Archived: &hide}); err != nil {
		t.Fatalf("UpdateMemo(archive) failed: %v", err)
	}

	all, err := store.ListAllMemos(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListAllMemos() failed: %v", err)
	}
	if len(all) != 1 || !all[0].Archived {
		t.Fatalf("expected the archived row, got %+v", all)
	}

	count, err := store.CountMemos(ctx)
	if err != nil {
		t.Fatalf("CountMemos() failed: %v", err)
	}
	if count != 1 {
		t.Errorf("CountMemos() = %d, want 1", count)
	}
}
