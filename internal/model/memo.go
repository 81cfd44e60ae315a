// Package model defines the shared entity types for memod.
//
// Memos and daily plans use the same wire shape across both backends:
// integer ids assigned by whichever store owns the row, a client-stable
// uid for cross-backend identity, and unix-second timestamps.
package model

import "time"

// CompletionStatus is the tri-state completion marker on a memo.
type CompletionStatus string

const (
	// StatusPending means the memo has not been acted on yet.
	StatusPending CompletionStatus = "pending"
	// StatusCompleted means the memo was done.
	StatusCompleted CompletionStatus = "completed"
	// StatusIncomplete means the memo was attempted but not finished.
	StatusIncomplete CompletionStatus = "incomplete"
)

// Next returns the successor in the fixed status cycle:
// pending -> completed -> incomplete -> pending.
//
// Unknown values re-enter the cycle at pending, matching the behavior
// of the original desktop store.
func (s CompletionStatus) Next() CompletionStatus {
	switch s {
	case StatusPending:
		return StatusCompleted
	case StatusCompleted:
		return StatusIncomplete
	default:
		return StatusPending
	}
}

// Valid reports whether s is one of the three known statuses.
func (s CompletionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusIncomplete:
		return true
	}
	return false
}

// DefaultCategory is assigned when a memo is created without a category.
const DefaultCategory = "daily"

// Categories is the fixed category set, in display order.
var Categories = []string{
	"work",
	"study",
	"project",
	"fitness",
	"media",
	"daily",
	"idea",
	"finance",
	"planning",
}

// ValidCategory reports whether name is a member of the category set.
func ValidCategory(name string) bool {
	for _, c := range Categories {
		if c == name {
			return true
		}
	}
	return false
}

// Memo is a timestamped note.
//
// ID is assigned by the backend that stores the row and is only
// meaningful within that backend; local and cloud ids are separate
// numbering spaces and must never be compared. UID is generated once at
// creation and is stable across backends - it is the dedup key during
// migration.
type Memo struct {
	ID               int64            `json:"id"`
	UID              string           `json:"uid"`
	CreatedTS        int64            `json:"created_ts"`
	UpdatedTS        int64            `json:"updated_ts"`
	Category         string           `json:"category"`
	TargetDate       *string          `json:"target_date,omitempty"`
	CompletionStatus CompletionStatus `json:"completion_status"`
	Content          string           `json:"content"`
	Pinned           bool             `json:"pinned"`
	Archived         bool             `json:"archived"`
}

// CreatedAt returns the creation timestamp as a time.Time.
func (m *Memo) CreatedAt() time.Time {
	return time.Unix(m.CreatedTS, 0)
}

// DailyPlan is a scheduled task bound to a calendar date (YYYY-MM-DD).
//
// Plans are read-mostly in the live client: they are populated by
// migration or import and listed per selected date.
type DailyPlan struct {
	ID          int64  `json:"id"`
	PlanDate    string `json:"plan_date"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	Completed   bool   `json:"completed"`
	Priority    int64  `json:"priority"`
	CreatedTS   int64  `json:"created_ts"`
	UpdatedTS   int64  `json:"updated_ts"`
	CompletedTS *int64 `json:"completed_ts,omitempty"`
}

// DateFormat is the calendar date layout used for target_date and plan_date.
const DateFormat = "2006-01-02"
