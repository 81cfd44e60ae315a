package cloud

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/memod-dev/memod/internal/model"
)

// The methods below serve the migration tool; they are not part of the
// backend contract.

// MemoRow is the insert shape for migrated memos: everything except the
// server-assigned id. The uid carries cross-backend identity.
type MemoRow struct {
	UID              string  `json:"uid"`
	CreatedTS        int64   `json:"created_ts"`
	UpdatedTS        int64   `json:"updated_ts"`
	Category         string  `json:"category"`
	TargetDate       *string `json:"target_date"`
	CompletionStatus string  `json:"completion_status"`
	Content          string  `json:"content"`
	Pinned           bool    `json:"pinned"`
	Archived         bool    `json:"archived"`
}

// PlanRow is the insert shape for migrated daily plans.
type PlanRow struct {
	PlanDate    string `json:"plan_date"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Completed   bool   `json:"completed"`
	Priority    int64  `json:"priority"`
	CreatedTS   int64  `json:"created_ts"`
	UpdatedTS   int64  `json:"updated_ts"`
	CompletedTS *int64 `json:"completed_ts"`
}

// MemoRowFromModel converts a local row to its insert shape.
func MemoRowFromModel(m model.Memo) MemoRow {
	category := m.Category
	if category == "" {
		category = model.DefaultCategory
	}
	status := string(m.CompletionStatus)
	if status == "" {
		status = string(model.StatusPending)
	}
	return MemoRow{
		UID:              m.UID,
		CreatedTS:        m.CreatedTS,
		UpdatedTS:        m.UpdatedTS,
		Category:         category,
		TargetDate:       m.TargetDate,
		CompletionStatus: status,
		Content:          m.Content,
		Pinned:           m.Pinned,
		Archived:         m.Archived,
	}
}

// PlanRowFromModel converts a local plan to its insert shape.
func PlanRowFromModel(p model.DailyPlan) PlanRow {
	category := p.Category
	if category == "" {
		category = model.DefaultCategory
	}
	return PlanRow{
		PlanDate:    p.PlanDate,
		Title:       p.Title,
		Description: p.Description,
		Category:    category,
		Completed:   p.Completed,
		Priority:    p.Priority,
		CreatedTS:   p.CreatedTS,
		UpdatedTS:   p.UpdatedTS,
		CompletedTS: p.CompletedTS,
	}
}

// Ping verifies the hosted store is reachable and the key is accepted.
func (c *Client) Ping(ctx context.Context) error {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")

	var rows []struct {
		ID int64 `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "memo", q, nil, "", &rows); err != nil {
		return fmt.Errorf("cloud connectivity check failed: %w", err)
	}
	return nil
}

// MemoUIDs returns the set of uids already present remotely.
func (c *Client) MemoUIDs(ctx context.Context) (map[string]bool, error) {
	q := url.Values{}
	q.Set("select", "uid")

	var rows []struct {
		UID string `json:"uid"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "memo", q, nil, "", &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch remote uids: %w", err)
	}

	uids := make(map[string]bool, len(rows))
	for _, row := range rows {
		if row.UID != "" {
			uids[row.UID] = true
		}
	}
	return uids, nil
}

// HasPlans reports whether the remote plan table has any rows.
func (c *Client) HasPlans(ctx context.Context) (bool, error) {
	q := url.Values{}
	q.Set("select", "id")
	q.Set("limit", "1")

	var rows []struct {
		ID int64 `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "daily_plan", q, nil, "", &rows); err != nil {
		return false, fmt.Errorf("failed to probe remote plans: %w", err)
	}
	return len(rows) > 0, nil
}

// InsertMemoRows bulk-inserts memo rows. The server response body is
// not needed, so the request asks for the minimal representation.
func (c *Client) InsertMemoRows(ctx context.Context, rows []MemoRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := c.doJSON(ctx, http.MethodPost, "memo", nil, rows, "return=minimal", nil); err != nil {
		return fmt.Errorf("failed to insert %d memo rows: %w", len(rows), err)
	}
	return nil
}

// InsertPlanRows bulk-inserts plan rows.
func (c *Client) InsertPlanRows(ctx context.Context, rows []PlanRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := c.doJSON(ctx, http.MethodPost, "daily_plan", nil, rows, "return=minimal", nil); err != nil {
		return fmt.Errorf("failed to insert %d plan rows: %w", len(rows), err)
	}
	return nil
}
