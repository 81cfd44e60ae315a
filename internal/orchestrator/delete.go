package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/memod-dev/memod/internal/backend"
	"github.com/memod-dev/memod/internal/model"
)

// Deferred delete: removing a memo hides it immediately but the
// backend call waits out a grace window so the user can undo. The
// pending-deletion mapping is owned here; refreshes consult it to keep
// hidden entries hidden, and at most one backend delete is ever issued
// per entry.

type pendingDelete struct {
	memo  model.Memo
	index int
	timer *time.Timer
}

// DeleteMemo hides the memo and schedules the backend delete after the
// grace window. Deleting an entry already awaiting deletion restarts
// its window.
func (o *Orchestrator) DeleteMemo(ctx context.Context, id int64) error {
	o.mu.Lock()

	if p, ok := o.pendingDeletes[id]; ok {
		// Restart the grace window. A Stop that returns false means
		// the commit already fired; nothing left to schedule.
		if p.timer.Stop() {
			p.timer.Reset(o.config.DeleteGrace)
		}
		o.mu.Unlock()
		return nil
	}

	memo, idx, ok := o.removeMemoLocked(id)
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("memo %d: %w", id, backend.ErrNotFound)
	}

	p := &pendingDelete{memo: memo, index: idx}
	p.timer = time.AfterFunc(o.config.DeleteGrace, func() {
		_ = o.commitDelete(context.Background(), id)
	})
	o.pendingDeletes[id] = p

	o.mu.Unlock()
	return nil
}

// UndoDelete cancels a scheduled delete and restores the entry at its
// original position (clamped to the current list length). No backend
// call is made. Returns false when the grace window already elapsed or
// no delete was pending; cancelling twice is a safe no-op.
func (o *Orchestrator) UndoDelete(id int64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	p, ok := o.pendingDeletes[id]
	if !ok {
		return false
	}
	if !p.timer.Stop() {
		// Timer fired; the commit owns the entry now.
		return false
	}

	delete(o.pendingDeletes, id)
	o.insertMemoAtLocked(p.memo, p.index)
	return true
}

// DeleteNow bypasses the grace window: a scheduled delete is committed
// immediately, an unscheduled one is hidden and committed in one step.
func (o *Orchestrator) DeleteNow(ctx context.Context, id int64) error {
	o.mu.Lock()

	if p, ok := o.pendingDeletes[id]; ok {
		if !p.timer.Stop() {
			// Commit already in flight.
			o.mu.Unlock()
			return nil
		}
		o.mu.Unlock()
		return o.commitDelete(ctx, id)
	}

	memo, idx, ok := o.removeMemoLocked(id)
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("memo %d: %w", id, backend.ErrNotFound)
	}
	o.pendingDeletes[id] = &pendingDelete{memo: memo, index: idx, timer: time.NewTimer(0)}
	if !o.pendingDeletes[id].timer.Stop() {
		<-o.pendingDeletes[id].timer.C
	}
	o.mu.Unlock()

	return o.commitDelete(ctx, id)
}

// commitDelete issues the backend delete for a pending entry. NotFound
// from the backend is treated as success; any other failure restores
// the entry at its remembered position.
func (o *Orchestrator) commitDelete(ctx context.Context, id int64) error {
	o.inflight.Add(1)
	defer o.inflight.Done()

	o.mu.Lock()
	p, ok := o.pendingDeletes[id]
	if !ok {
		o.mu.Unlock()
		return nil
	}
	o.trackBeginLocked()
	o.mu.Unlock()

	err := o.client.DeleteMemo(ctx, id)
	if err != nil && errors.Is(err, backend.ErrNotFound) {
		// Already gone at the backend; the end state matches intent.
		err = nil
	}

	o.mu.Lock()
	delete(o.pendingDeletes, id)
	if err != nil {
		o.insertMemoAtLocked(p.memo, p.index)
		o.trackFailureLocked(err)
	} else {
		o.trackSuccessLocked()
	}
	o.mu.Unlock()

	if err != nil {
		o.reportError("delete memo", err)
		return fmt.Errorf("failed to delete memo %d: %w", id, err)
	}
	return nil
}
