// Package backend defines the contract shared by the local (embedded
// SQLite) and cloud (hosted table-REST) stores.
//
// Both implementations expose the same operation set so the rest of the
// program can be handed a single Client at startup and never branch on
// the active mode. Ordering and defaulting rules are part of the
// contract and are identical on both sides:
//
//   - Memo listings exclude archived rows and sort pinned-first, then
//     created_ts descending.
//   - Plan listings sort priority descending, then created_ts ascending.
//   - Category defaults to "daily" on create.
//   - updated_ts is refreshed on every mutation.
package backend

import (
	"context"
	"strings"

	"github.com/memod-dev/memod/internal/model"
)

// DefaultListLimit is used when ListMemosOptions.Limit is zero.
const DefaultListLimit = 100

// ListMemosOptions configures ListMemos.
type ListMemosOptions struct {
	// Limit restricts the number of results (0 = DefaultListLimit).
	Limit int
	// Offset skips the first N results (for pagination).
	Offset int
	// Category filters to a single category (empty = all).
	Category string
}

// CreateMemoParams carries the fields the client supplies on create.
// The backend assigns id, uid and both timestamps.
type CreateMemoParams struct {
	Content    string
	Category   string
	TargetDate *string
}

// Validate rejects parameters that must never reach a backend.
// Blank content is refused before any optimistic state change.
func (p CreateMemoParams) Validate() error {
	if strings.TrimSpace(p.Content) == "" {
		return wrapf(ErrValidation, "memo content is empty")
	}
	if p.Category != "" && !model.ValidCategory(p.Category) {
		return wrapf(ErrValidation, "unknown category %q", p.Category)
	}
	return nil
}

// UpdateMemoParams is a partial update: only non-nil fields change.
type UpdateMemoParams struct {
	Content          *string
	Category         *string
	TargetDate       *string
	CompletionStatus *model.CompletionStatus
	Pinned           *bool
	Archived         *bool
}

// Client is the operation contract implemented by both stores.
//
// Implementations must tolerate overlapping reads (refreshes are not
// deduplicated upstream) and must make ToggleMemoStatus atomic from the
// caller's perspective even when it is composed of a read and a write.
type Client interface {
	// ListMemos returns non-archived memos, pinned-first then newest-first.
	ListMemos(ctx context.Context, opts ListMemosOptions) ([]model.Memo, error)

	// CreateMemo stores a new memo and returns the authoritative row,
	// including the backend-assigned id and uid.
	CreateMemo(ctx context.Context, params CreateMemoParams) (*model.Memo, error)

	// UpdateMemo applies a partial update and returns the resulting row.
	// Returns ErrNotFound if no memo has the given id.
	UpdateMemo(ctx context.Context, id int64, params UpdateMemoParams) (*model.Memo, error)

	// DeleteMemo removes a memo. Deleting an id that no longer exists is
	// not an error for callers; adapters may surface ErrNotFound and the
	// orchestrator treats it as success.
	DeleteMemo(ctx context.Context, id int64) error

	// ToggleMemoStatus advances the memo's completion status one step
	// along the pending -> completed -> incomplete cycle and returns the
	// resulting row. Returns ErrNotFound if no memo has the given id.
	ToggleMemoStatus(ctx context.Context, id int64) (*model.Memo, error)

	// ListPlansByDate returns the plans for a calendar date (YYYY-MM-DD),
	// highest priority first, then oldest-first.
	ListPlansByDate(ctx context.Context, date string) ([]model.DailyPlan, error)
}
