// Package orchestrator owns the in-memory view of memos and daily
// plans and keeps it reconciled with the active backend.
//
// Every mutation follows the same protocol: apply the intended end
// state to the in-memory list immediately, dispatch the backend call
// in the background, then reconcile: replace the optimistic entry
// with the authoritative row on success, or roll the list back and
// surface the error on failure. Reads never block on the network.
//
// Reconciliation applies against the state current at completion time,
// not a stale copy, so overlapping operations resolve last-writer-wins
// per field. That is the accepted consistency model for a single-user
// tool; edits from two devices racing on the same memo are not
// serialized.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/memod-dev/memod/internal/backend"
	"github.com/memod-dev/memod/internal/model"
)

// Config holds configuration for the orchestrator.
type Config struct {
	// PlanDate selects which day's plans are loaded. Defaults to
	// today.
	PlanDate string

	// DeleteGrace is the undo window before a delete reaches the
	// backend.
	DeleteGrace time.Duration

	// ListLimit bounds the memo page fetched by RefreshAll.
	ListLimit int

	// TrackSync enables the pending-operation counter and last-error
	// bookkeeping. Enabled for the cloud backend; local calls are fast
	// and are not tracked.
	TrackSync bool

	// OnError receives every backend failure after rollback. Optional.
	OnError func(op string, err error)

	// Logger for orchestrator activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		PlanDate:    time.Now().Format(model.DateFormat),
		DeleteGrace: 3500 * time.Millisecond,
		ListLimit:   backend.DefaultListLimit,
		Logger:      log.New(os.Stderr, "[sync] ", log.LstdFlags),
	}
}

// SyncStatus is a snapshot of the orchestrator's sync bookkeeping.
type SyncStatus struct {
	// Pending is the number of tracked backend calls in flight.
	Pending int

	// LastError is the most recent backend failure, cleared when a
	// new tracked operation starts.
	LastError string

	// LastSyncedAt is the completion time of the last successful
	// backend operation.
	LastSyncedAt time.Time

	// InitialLoadDone reports whether the first refresh has
	// completed. Only the first load may show a blocking placeholder;
	// later refreshes apply silently.
	InitialLoadDone bool
}

// Orchestrator coordinates optimistic mutations against one backend.
type Orchestrator struct {
	client backend.Client
	config *Config

	mu              sync.Mutex
	memos           []model.Memo
	plans           []model.DailyPlan
	planDate        string
	pending         int
	lastError       string
	lastSyncedAt    time.Time
	initialLoadDone bool
	pendingDeletes  map[int64]*pendingDelete

	inflight sync.WaitGroup
}

// New creates an orchestrator bound to one backend client.
func New(client backend.Client, config *Config) (*Orchestrator, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()
	if config.PlanDate == "" {
		config.PlanDate = defaults.PlanDate
	}
	if config.DeleteGrace <= 0 {
		config.DeleteGrace = defaults.DeleteGrace
	}
	if config.ListLimit <= 0 {
		config.ListLimit = defaults.ListLimit
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	return &Orchestrator{
		client:         client,
		config:         config,
		planDate:       config.PlanDate,
		pendingDeletes: make(map[int64]*pendingDelete),
	}, nil
}

// Memos returns a copy of the visible in-memory memo list.
func (o *Orchestrator) Memos() []model.Memo {
	o.mu.Lock()
	defer o.mu.Unlock()

	memos := make([]model.Memo, len(o.memos))
	copy(memos, o.memos)
	return memos
}

// Plans returns a copy of the loaded plans for the selected date.
func (o *Orchestrator) Plans() []model.DailyPlan {
	o.mu.Lock()
	defer o.mu.Unlock()

	plans := make([]model.DailyPlan, len(o.plans))
	copy(plans, o.plans)
	return plans
}

// PlanDate returns the currently selected plan date.
func (o *Orchestrator) PlanDate() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.planDate
}

// SetPlanDate switches the selected date. The caller refreshes to load
// the new day's plans.
func (o *Orchestrator) SetPlanDate(date string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.planDate = date
}

// Status returns a snapshot of the sync bookkeeping.
func (o *Orchestrator) Status() SyncStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	return SyncStatus{
		Pending:         o.pending,
		LastError:       o.lastError,
		LastSyncedAt:    o.lastSyncedAt,
		InitialLoadDone: o.initialLoadDone,
	}
}

// Flush blocks until every dispatched backend call has completed.
// Deletes still inside their grace window are not waited for; use
// DeleteNow to force them.
func (o *Orchestrator) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CreateMemo inserts an optimistic placeholder with a temporary
// negative id and dispatches the create. The placeholder is returned
// immediately; the backend row replaces it in place on success.
func (o *Orchestrator) CreateMemo(ctx context.Context, params backend.CreateMemoParams) (model.Memo, error) {
	if err := params.Validate(); err != nil {
		return model.Memo{}, err
	}

	category := params.Category
	if category == "" {
		category = model.DefaultCategory
	}
	now := time.Now().Unix()

	placeholder := model.Memo{
		ID:               -time.Now().UnixNano(),
		CreatedTS:        now,
		UpdatedTS:        now,
		Category:         category,
		TargetDate:       params.TargetDate,
		CompletionStatus: model.StatusPending,
		Content:          params.Content,
	}

	o.mu.Lock()
	o.memos = append([]model.Memo{placeholder}, o.memos...)
	o.trackBeginLocked()
	o.mu.Unlock()

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()

		created, err := o.client.CreateMemo(ctx, params)

		o.mu.Lock()
		if err != nil {
			o.removeMemoLocked(placeholder.ID)
			o.trackFailureLocked(err)
		} else {
			o.replaceMemoLocked(placeholder.ID, *created)
			o.trackSuccessLocked()
		}
		o.mu.Unlock()

		if err != nil {
			o.reportError("create memo", err)
		}
	}()

	return placeholder, nil
}

// UpdateMemo applies a partial update optimistically and dispatches
// it. On failure the pre-mutation snapshot of the entry is restored.
func (o *Orchestrator) UpdateMemo(ctx context.Context, id int64, params backend.UpdateMemoParams) error {
	o.mu.Lock()
	idx := o.indexOfLocked(id)
	if idx < 0 {
		o.mu.Unlock()
		return fmt.Errorf("memo %d: %w", id, backend.ErrNotFound)
	}
	snapshot := o.memos[idx]
	o.memos[idx] = applyOptimisticUpdate(snapshot, params)
	o.trackBeginLocked()
	o.mu.Unlock()

	o.dispatchEntityOp(ctx, "update memo", id, snapshot, func(callCtx context.Context) (*model.Memo, error) {
		return o.client.UpdateMemo(callCtx, id, params)
	})
	return nil
}

// ToggleMemo advances the completion status one step optimistically
// and dispatches the toggle.
func (o *Orchestrator) ToggleMemo(ctx context.Context, id int64) error {
	o.mu.Lock()
	idx := o.indexOfLocked(id)
	if idx < 0 {
		o.mu.Unlock()
		return fmt.Errorf("memo %d: %w", id, backend.ErrNotFound)
	}
	snapshot := o.memos[idx]
	o.memos[idx].CompletionStatus = snapshot.CompletionStatus.Next()
	o.memos[idx].UpdatedTS = time.Now().Unix()
	o.trackBeginLocked()
	o.mu.Unlock()

	o.dispatchEntityOp(ctx, "toggle memo", id, snapshot, func(callCtx context.Context) (*model.Memo, error) {
		return o.client.ToggleMemoStatus(callCtx, id)
	})
	return nil
}

// TogglePin flips the pinned flag optimistically, re-sorting so pinned
// memos lead the list, and dispatches the update.
func (o *Orchestrator) TogglePin(ctx context.Context, id int64) error {
	o.mu.Lock()
	idx := o.indexOfLocked(id)
	if idx < 0 {
		o.mu.Unlock()
		return fmt.Errorf("memo %d: %w", id, backend.ErrNotFound)
	}
	snapshot := o.memos[idx]
	pinned := !snapshot.Pinned
	o.memos[idx].Pinned = pinned
	o.memos[idx].UpdatedTS = time.Now().Unix()
	o.sortMemosLocked()
	o.trackBeginLocked()
	o.mu.Unlock()

	o.dispatchEntityOp(ctx, "pin memo", id, snapshot, func(callCtx context.Context) (*model.Memo, error) {
		return o.client.UpdateMemo(callCtx, id, backend.UpdateMemoParams{Pinned: &pinned})
	})
	return nil
}

// ArchiveMemo hides the memo optimistically and dispatches the archive
// update. On failure the entry returns to its original position.
func (o *Orchestrator) ArchiveMemo(ctx context.Context, id int64) error {
	o.mu.Lock()
	memo, idx, ok := o.removeMemoLocked(id)
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("memo %d: %w", id, backend.ErrNotFound)
	}
	o.trackBeginLocked()
	o.mu.Unlock()

	archived := true

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()

		_, err := o.client.UpdateMemo(ctx, id, backend.UpdateMemoParams{Archived: &archived})

		o.mu.Lock()
		if err != nil {
			o.insertMemoAtLocked(memo, idx)
			o.trackFailureLocked(err)
		} else {
			o.trackSuccessLocked()
		}
		o.mu.Unlock()

		if err != nil {
			o.reportError("archive memo", err)
		}
	}()
	return nil
}

// RefreshAll fetches the authoritative memo page and the selected
// day's plans in parallel and replaces the in-memory state wholesale.
// Entries awaiting deferred deletion stay hidden even though the
// backend still reports them. A failed refresh keeps the previous
// state untouched.
func (o *Orchestrator) RefreshAll(ctx context.Context) error {
	o.mu.Lock()
	date := o.planDate
	limit := o.config.ListLimit
	o.mu.Unlock()

	var memos []model.Memo
	var plans []model.DailyPlan

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fetched, err := o.client.ListMemos(gctx, backend.ListMemosOptions{Limit: limit})
		if err != nil {
			return err
		}
		memos = fetched
		return nil
	})
	g.Go(func() error {
		fetched, err := o.client.ListPlansByDate(gctx, date)
		if err != nil {
			return err
		}
		plans = fetched
		return nil
	})

	if err := g.Wait(); err != nil {
		o.mu.Lock()
		o.lastError = err.Error()
		o.mu.Unlock()
		o.reportError("refresh", err)
		return fmt.Errorf("refresh failed: %w", err)
	}

	o.mu.Lock()
	visible := memos[:0:0]
	for _, memo := range memos {
		if _, deleting := o.pendingDeletes[memo.ID]; deleting {
			continue
		}
		visible = append(visible, memo)
	}
	o.memos = visible
	if o.planDate == date {
		o.plans = plans
	}
	o.lastSyncedAt = time.Now()
	o.initialLoadDone = true
	o.mu.Unlock()

	return nil
}

// dispatchEntityOp runs a backend call that returns an authoritative
// memo row, replacing the optimistic entry on success and restoring
// the snapshot on failure.
func (o *Orchestrator) dispatchEntityOp(ctx context.Context, op string, id int64, snapshot model.Memo, call func(context.Context) (*model.Memo, error)) {
	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()

		updated, err := call(ctx)

		o.mu.Lock()
		if err != nil {
			if idx := o.indexOfLocked(id); idx >= 0 {
				o.memos[idx] = snapshot
				o.sortMemosLocked()
			}
			o.trackFailureLocked(err)
		} else {
			o.replaceMemoLocked(id, *updated)
			o.sortMemosLocked()
			o.trackSuccessLocked()
		}
		o.mu.Unlock()

		if err != nil {
			o.reportError(op, err)
		}
	}()
}

// trackBeginLocked starts tracking one backend call. Local-mode
// operations skip the counter but still clear stale errors.
func (o *Orchestrator) trackBeginLocked() {
	if o.config.TrackSync {
		o.pending++
	}
	o.lastError = ""
}

func (o *Orchestrator) trackSuccessLocked() {
	if o.config.TrackSync {
		o.pending--
	}
	o.lastSyncedAt = time.Now()
}

func (o *Orchestrator) trackFailureLocked(err error) {
	if o.config.TrackSync {
		o.pending--
	}
	o.lastError = err.Error()
}

// reportError surfaces a reconciled failure. Never called while
// holding the state lock.
func (o *Orchestrator) reportError(op string, err error) {
	o.config.Logger.Printf("%s failed: %v", op, err)
	if o.config.OnError != nil {
		o.config.OnError(op, err)
	}
}

func (o *Orchestrator) indexOfLocked(id int64) int {
	for i := range o.memos {
		if o.memos[i].ID == id {
			return i
		}
	}
	return -1
}

// removeMemoLocked takes the entry out of the list, returning it with
// its original index for a later rollback or reinsert.
func (o *Orchestrator) removeMemoLocked(id int64) (model.Memo, int, bool) {
	idx := o.indexOfLocked(id)
	if idx < 0 {
		return model.Memo{}, 0, false
	}
	memo := o.memos[idx]
	o.memos = append(o.memos[:idx], o.memos[idx+1:]...)
	return memo, idx, true
}

// insertMemoAtLocked restores an entry at its remembered index,
// clamped to the current list length.
func (o *Orchestrator) insertMemoAtLocked(memo model.Memo, idx int) {
	if idx > len(o.memos) {
		idx = len(o.memos)
	}
	o.memos = append(o.memos, model.Memo{})
	copy(o.memos[idx+1:], o.memos[idx:])
	o.memos[idx] = memo
}

// replaceMemoLocked swaps the entry with the given id for the
// authoritative row, preserving list position. If the entry vanished
// (e.g. a wholesale refresh raced the reconcile) the row is prepended
// unless its authoritative id is already present.
func (o *Orchestrator) replaceMemoLocked(id int64, authoritative model.Memo) {
	if idx := o.indexOfLocked(id); idx >= 0 {
		o.memos[idx] = authoritative
		return
	}
	if o.indexOfLocked(authoritative.ID) >= 0 {
		return
	}
	o.memos = append([]model.Memo{authoritative}, o.memos...)
}

// sortMemosLocked restores the pinned-first invariant without
// disturbing relative order otherwise.
func (o *Orchestrator) sortMemosLocked() {
	pinned := make([]model.Memo, 0, len(o.memos))
	rest := make([]model.Memo, 0, len(o.memos))
	for _, memo := range o.memos {
		if memo.Pinned {
			pinned = append(pinned, memo)
		} else {
			rest = append(rest, memo)
		}
	}
	o.memos = append(pinned, rest...)
}

// applyOptimisticUpdate merges a partial update into a snapshot the
// same way the backend will.
func applyOptimisticUpdate(memo model.Memo, params backend.UpdateMemoParams) model.Memo {
	if params.Content != nil {
		memo.Content = *params.Content
	}
	if params.Category != nil {
		memo.Category = *params.Category
	}
	if params.TargetDate != nil {
		memo.TargetDate = params.TargetDate
	}
	if params.CompletionStatus != nil {
		memo.CompletionStatus = *params.CompletionStatus
	}
	if params.Pinned != nil {
		memo.Pinned = *params.Pinned
	}
	if params.Archived != nil {
		memo.Archived = *params.Archived
	}
	memo.UpdatedTS = time.Now().Unix()
	return memo
}
