package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/memod-dev/memod/internal/backend"
	"github.com/memod-dev/memod/internal/model"
)

// fakeClient is a canned-response backend for orchestrator tests. An
// optional gate holds mutation calls open so tests can observe
// optimistic state before reconciliation.
type fakeClient struct {
	mu sync.Mutex

	listMemos []model.Memo
	listPlans []model.DailyPlan

	listErr   error
	createErr error
	updateErr error
	toggleErr error
	deleteErr error

	nextID  int64
	deleted []int64

	gate chan struct{}
}

var _ backend.Client = (*fakeClient)(nil)

func (f *fakeClient) hold() {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
}

func (f *fakeClient) find(id int64) (model.Memo, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, memo := range f.listMemos {
		if memo.ID == id {
			return memo, true
		}
	}
	return model.Memo{}, false
}

func (f *fakeClient) ListMemos(ctx context.Context, opts backend.ListMemosOptions) ([]model.Memo, error) {
	f.hold()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	memos := make([]model.Memo, len(f.listMemos))
	copy(memos, f.listMemos)
	return memos, nil
}

func (f *fakeClient) CreateMemo(ctx context.Context, params backend.CreateMemoParams) (*model.Memo, error) {
	f.hold()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	category := params.Category
	if category == "" {
		category = model.DefaultCategory
	}
	return &model.Memo{
		ID:               f.nextID,
		UID:              fmt.Sprintf("uid-%d", f.nextID),
		Category:         category,
		CompletionStatus: model.StatusPending,
		Content:          params.Content,
	}, nil
}

func (f *fakeClient) UpdateMemo(ctx context.Context, id int64, params backend.UpdateMemoParams) (*model.Memo, error) {
	f.hold()
	f.mu.Lock()
	updateErr := f.updateErr
	f.mu.Unlock()
	if updateErr != nil {
		return nil, updateErr
	}

	memo, ok := f.find(id)
	if !ok {
		return nil, fmt.Errorf("memo %d: %w", id, backend.ErrNotFound)
	}
	if params.Content != nil {
		memo.Content = *params.Content
	}
	if params.Pinned != nil {
		memo.Pinned = *params.Pinned
	}
	if params.Archived != nil {
		memo.Archived = *params.Archived
	}
	return &memo, nil
}

func (f *fakeClient) DeleteMemo(ctx context.Context, id int64) error {
	f.hold()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeClient) ToggleMemoStatus(ctx context.Context, id int64) (*model.Memo, error) {
	f.hold()
	f.mu.Lock()
	toggleErr := f.toggleErr
	f.mu.Unlock()
	if toggleErr != nil {
		return nil, toggleErr
	}

	memo, ok := f.find(id)
	if !ok {
		return nil, fmt.Errorf("memo %d: %w", id, backend.ErrNotFound)
	}
	memo.CompletionStatus = memo.CompletionStatus.Next()
	return &memo, nil
}

func (f *fakeClient) ListPlansByDate(ctx context.Context, date string) ([]model.DailyPlan, error) {
	f.hold()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	plans := make([]model.DailyPlan, len(f.listPlans))
	copy(plans, f.listPlans)
	return plans, nil
}

func (f *fakeClient) deletedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, len(f.deleted))
	copy(ids, f.deleted)
	return ids
}

// newTestOrchestrator seeds the in-memory state from the fake's canned
// list via an initial refresh.
func newTestOrchestrator(t *testing.T, fake *fakeClient, config *Config) *Orchestrator {
	t.Helper()

	orch, err := New(fake, config)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := orch.RefreshAll(context.Background()); err != nil {
		t.Fatalf("initial RefreshAll() failed: %v", err)
	}
	return orch
}

func flush(t *testing.T, orch *Orchestrator) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := orch.Flush(ctx); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}
}

func memoIDs(memos []model.Memo) []int64 {
	ids := make([]int64, len(memos))
	for i, memo := range memos {
		ids[i] = memo.ID
	}
	return ids
}

// TestCreateMemoOptimistic verifies the placeholder appears first with
// a temporary negative id and is swapped in place for the backend row.
func TestCreateMemoOptimistic(t *testing.T) {
	fake := &fakeClient{
		listMemos: []model.Memo{{ID: 1, Content: "existing"}},
	}
	orch := newTestOrchestrator(t, fake, nil)

	gate := make(chan struct{})
	fake.mu.Lock()
	fake.gate = gate
	fake.mu.Unlock()

	placeholder, err := orch.CreateMemo(context.Background(), backend.CreateMemoParams{Content: "new"})
	if err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}
	if placeholder.ID >= 0 {
		t.Errorf("placeholder id = %d, want negative", placeholder.ID)
	}

	memos := orch.Memos()
	if len(memos) != 2 || memos[0].ID != placeholder.ID {
		t.Fatalf("expected placeholder first, got ids %v", memoIDs(memos))
	}

	close(gate)
	flush(t, orch)

	memos = orch.Memos()
	if len(memos) != 2 {
		t.Fatalf("expected 2 memos after reconcile, got %d", len(memos))
	}
	if memos[0].ID <= 0 {
		t.Errorf("reconciled id = %d, want the backend-assigned id", memos[0].ID)
	}
	if memos[0].UID == "" {
		t.Error("reconciled memo should carry the backend uid")
	}
	if memos[1].ID != 1 {
		t.Errorf("existing memo moved: ids %v", memoIDs(memos))
	}
}

// TestCreateMemoRollback verifies a failed create drops the
// placeholder and surfaces the error.
func TestCreateMemoRollback(t *testing.T) {
	fake := &fakeClient{createErr: fmt.Errorf("%w: connection refused", backend.ErrUnavailable)}

	var reported error
	var reportedMu sync.Mutex
	orch, err := New(fake, &Config{
		OnError: func(op string, err error) {
			reportedMu.Lock()
			reported = err
			reportedMu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := orch.CreateMemo(context.Background(), backend.CreateMemoParams{Content: "doomed"}); err != nil {
		t.Fatalf("CreateMemo() failed synchronously: %v", err)
	}
	flush(t, orch)

	if got := orch.Memos(); len(got) != 0 {
		t.Fatalf("placeholder survived rollback: %v", memoIDs(got))
	}
	if orch.Status().LastError == "" {
		t.Error("expected LastError to be set")
	}
	reportedMu.Lock()
	defer reportedMu.Unlock()
	if !errors.Is(reported, backend.ErrUnavailable) {
		t.Errorf("OnError got %v, want ErrUnavailable", reported)
	}
}

// TestCreateMemoValidationSynchronous verifies bad input is rejected
// before any optimistic apply.
func TestCreateMemoValidationSynchronous(t *testing.T) {
	orch := newTestOrchestrator(t, &fakeClient{}, nil)

	_, err := orch.CreateMemo(context.Background(), backend.CreateMemoParams{Content: " "})
	if !errors.Is(err, backend.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if got := orch.Memos(); len(got) != 0 {
		t.Fatalf("rejected create left state behind: %v", memoIDs(got))
	}
}

// TestUpdateMemoRollback verifies a failed update restores the
// pre-mutation snapshot.
func TestUpdateMemoRollback(t *testing.T) {
	fake := &fakeClient{
		listMemos: []model.Memo{{ID: 1, Content: "original", Category: "work"}},
		updateErr: fmt.Errorf("%w: timeout", backend.ErrUnavailable),
	}
	orch := newTestOrchestrator(t, fake, nil)

	content := "edited"
	if err := orch.UpdateMemo(context.Background(), 1, backend.UpdateMemoParams{Content: &content}); err != nil {
		t.Fatalf("UpdateMemo() failed synchronously: %v", err)
	}

	// Optimistic state is visible immediately.
	if got := orch.Memos()[0].Content; got != "edited" {
		t.Errorf("optimistic content = %q, want edited", got)
	}

	flush(t, orch)

	memo := orch.Memos()[0]
	if memo.Content != "original" || memo.Category != "work" {
		t.Errorf("rollback incomplete: %+v", memo)
	}
}

// TestToggleMemoReconciles verifies the optimistic one-step advance and
// the authoritative replacement.
func TestToggleMemoReconciles(t *testing.T) {
	fake := &fakeClient{
		listMemos: []model.Memo{{ID: 1, CompletionStatus: model.StatusPending}},
	}
	orch := newTestOrchestrator(t, fake, nil)

	if err := orch.ToggleMemo(context.Background(), 1); err != nil {
		t.Fatalf("ToggleMemo() failed: %v", err)
	}
	if got := orch.Memos()[0].CompletionStatus; got != model.StatusCompleted {
		t.Errorf("optimistic status = %q, want completed", got)
	}

	flush(t, orch)
	if got := orch.Memos()[0].CompletionStatus; got != model.StatusCompleted {
		t.Errorf("reconciled status = %q, want completed", got)
	}
}

// TestTogglePinReorders verifies pinning floats the entry to the top.
func TestTogglePinReorders(t *testing.T) {
	fake := &fakeClient{
		listMemos: []model.Memo{{ID: 1}, {ID: 2}, {ID: 3}},
	}
	orch := newTestOrchestrator(t, fake, nil)

	if err := orch.TogglePin(context.Background(), 3); err != nil {
		t.Fatalf("TogglePin() failed: %v", err)
	}

	want := []int64{3, 1, 2}
	if diff := cmp.Diff(want, memoIDs(orch.Memos())); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	flush(t, orch)
	if diff := cmp.Diff(want, memoIDs(orch.Memos())); diff != "" {
		t.Errorf("order mismatch after reconcile (-want +got):\n%s", diff)
	}
}

// TestArchiveMemoRollback verifies a failed archive restores the entry
// at its original index.
func TestArchiveMemoRollback(t *testing.T) {
	fake := &fakeClient{
		listMemos: []model.Memo{{ID: 1}, {ID: 2}, {ID: 3}},
		updateErr: fmt.Errorf("%w: boom", backend.ErrUnavailable),
	}
	orch := newTestOrchestrator(t, fake, nil)

	if err := orch.ArchiveMemo(context.Background(), 2); err != nil {
		t.Fatalf("ArchiveMemo() failed synchronously: %v", err)
	}
	if diff := cmp.Diff([]int64{1, 3}, memoIDs(orch.Memos())); diff != "" {
		t.Errorf("optimistic hide mismatch (-want +got):\n%s", diff)
	}

	flush(t, orch)
	if diff := cmp.Diff([]int64{1, 2, 3}, memoIDs(orch.Memos())); diff != "" {
		t.Errorf("rollback mismatch (-want +got):\n%s", diff)
	}
}

// TestRefreshAllFailureKeepsState verifies a failed refresh never
// clears displayed data.
func TestRefreshAllFailureKeepsState(t *testing.T) {
	fake := &fakeClient{
		listMemos: []model.Memo{{ID: 1, Content: "keep me"}},
	}
	orch := newTestOrchestrator(t, fake, nil)

	fake.mu.Lock()
	fake.listErr = fmt.Errorf("%w: network down", backend.ErrUnavailable)
	fake.mu.Unlock()

	if err := orch.RefreshAll(context.Background()); err == nil {
		t.Fatal("expected refresh to fail")
	}

	memos := orch.Memos()
	if len(memos) != 1 || memos[0].Content != "keep me" {
		t.Fatalf("failed refresh disturbed state: %+v", memos)
	}
	if orch.Status().LastError == "" {
		t.Error("expected LastError after failed refresh")
	}
}

// TestRefreshAllMarksInitialLoad verifies only the first refresh flips
// the initial-load flag.
func TestRefreshAllMarksInitialLoad(t *testing.T) {
	fake := &fakeClient{}
	orch, err := New(fake, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if orch.Status().InitialLoadDone {
		t.Error("InitialLoadDone should start false")
	}
	if err := orch.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll() failed: %v", err)
	}
	if !orch.Status().InitialLoadDone {
		t.Error("InitialLoadDone should be set after the first refresh")
	}
}

// TestRefreshAllLoadsPlans verifies plans for the selected date come
// along with the memo page.
func TestRefreshAllLoadsPlans(t *testing.T) {
	fake := &fakeClient{
		listPlans: []model.DailyPlan{{ID: 1, Title: "gym", PlanDate: "2026-03-01"}},
	}
	orch, err := New(fake, &Config{PlanDate: "2026-03-01"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if err := orch.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll() failed: %v", err)
	}

	plans := orch.Plans()
	if len(plans) != 1 || plans[0].Title != "gym" {
		t.Fatalf("unexpected plans: %+v", plans)
	}
}

// TestRefreshAllIdempotent verifies back-to-back refreshes against an
// unchanged backend yield identical visible lists.
func TestRefreshAllIdempotent(t *testing.T) {
	fake := &fakeClient{
		listMemos: []model.Memo{
			{ID: 2, Content: "pinned", Pinned: true},
			{ID: 1, Content: "plain"},
		},
		listPlans: []model.DailyPlan{{ID: 1, Title: "gym", PlanDate: "2026-03-01"}},
	}
	orch, err := New(fake, &Config{PlanDate: "2026-03-01"})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if err := orch.RefreshAll(context.Background()); err != nil {
		t.Fatalf("first RefreshAll() failed: %v", err)
	}
	firstMemos := orch.Memos()
	firstPlans := orch.Plans()

	if err := orch.RefreshAll(context.Background()); err != nil {
		t.Fatalf("second RefreshAll() failed: %v", err)
	}

	if diff := cmp.Diff(firstMemos, orch.Memos()); diff != "" {
		t.Errorf("memo list changed across refreshes (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(firstPlans, orch.Plans()); diff != "" {
		t.Errorf("plan list changed across refreshes (-first +second):\n%s", diff)
	}
}

// TestSyncTracking verifies the pending counter moves only when
// tracking is enabled.
func TestSyncTracking(t *testing.T) {
	gate := make(chan struct{})
	fake := &fakeClient{gate: gate}
	orch, err := New(fake, &Config{TrackSync: true})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := orch.CreateMemo(context.Background(), backend.CreateMemoParams{Content: "tracked"}); err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}
	if got := orch.Status().Pending; got != 1 {
		t.Errorf("pending = %d while call in flight, want 1", got)
	}

	close(gate)
	flush(t, orch)

	status := orch.Status()
	if status.Pending != 0 {
		t.Errorf("pending = %d after completion, want 0", status.Pending)
	}
	if status.LastSyncedAt.IsZero() {
		t.Error("LastSyncedAt should be set after a tracked success")
	}
}

// TestNewSessionStartsWithZeroPending verifies the pending counter is
// per-instance: a fresh orchestrator starts at zero even while another
// instance has a tracked call in flight.
func TestNewSessionStartsWithZeroPending(t *testing.T) {
	gate := make(chan struct{})
	fake := &fakeClient{gate: gate}
	busy, err := New(fake, &Config{TrackSync: true})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := busy.CreateMemo(context.Background(), backend.CreateMemoParams{Content: "in flight"}); err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}
	if got := busy.Status().Pending; got != 1 {
		t.Fatalf("busy instance pending = %d, want 1", got)
	}

	fresh, err := New(fake, &Config{TrackSync: true})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if got := fresh.Status().Pending; got != 0 {
		t.Errorf("fresh instance pending = %d, want 0", got)
	}

	close(gate)
	flush(t, busy)
}

// TestUntrackedModeSkipsCounter verifies local-style operation leaves
// the counter alone.
func TestUntrackedModeSkipsCounter(t *testing.T) {
	gate := make(chan struct{})
	fake := &fakeClient{gate: gate}
	orch, err := New(fake, &Config{TrackSync: false})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if _, err := orch.CreateMemo(context.Background(), backend.CreateMemoParams{Content: "untracked"}); err != nil {
		t.Fatalf("CreateMemo() failed: %v", err)
	}
	if got := orch.Status().Pending; got != 0 {
		t.Errorf("pending = %d in untracked mode, want 0", got)
	}

	close(gate)
	flush(t, orch)
}
