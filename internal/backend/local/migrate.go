package local

import (
	"context"
	"fmt"
	"time"

	"github.com/memod-dev/memod/internal/model"
)

// The methods below exist for the migration tool and plan import; they
// are not part of the backend contract. They read archived rows too,
// since migration must carry the whole store.

// CountMemos returns the total number of memo rows, archived included.
func (s *Store) CountMemos(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM memo`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count memos: %w", err)
	}
	return count, nil
}

// CountPlans returns the total number of daily_plan rows.
func (s *Store) CountPlans(ctx context.Context) (int, error) {
	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM daily_plan`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count plans: %w", err)
	}
	return count, nil
}

// ListAllMemos returns a batch of memo rows ordered by creation time
// ascending, archived rows included. This is the migration read path.
func (s *Store) ListAllMemos(ctx context.Context, limit, offset int) ([]model.Memo, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT `+memoColumns+` FROM memo
		ORDER BY created_ts ASC
		LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list all memos: %w", err)
	}
	defer rows.Close()

	return scanMemos(rows)
}

// ListAllPlans returns every daily_plan row ordered by creation time
// ascending.
func (s *Store) ListAllPlans(ctx context.Context) ([]model.DailyPlan, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, plan_date, title, description, category, completed, priority,
			created_ts, updated_ts, completed_ts
		FROM daily_plan
		ORDER BY created_ts ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list all plans: %w", err)
	}
	defer rows.Close()

	return scanPlans(rows)
}

// CreatePlanParams carries the fields supplied when importing a plan.
type CreatePlanParams struct {
	PlanDate    string
	Title       string
	Description string
	Category    string
	Priority    int64
}

// CreatePlan inserts a daily plan and returns the stored row.
func (s *Store) CreatePlan(ctx context.Context, params CreatePlanParams) (*model.DailyPlan, error) {
	category := params.Category
	if category == "" {
		category = model.DefaultCategory
	}
	now := time.Now().Unix()

	res, err := s.conn.ExecContext(ctx, `
		INSERT INTO daily_plan (plan_date, title, description, category, priority, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		params.PlanDate, params.Title, params.Description, category, params.Priority, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert plan: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read inserted plan id: %w", err)
	}

	return &model.DailyPlan{
		ID:          id,
		PlanDate:    params.PlanDate,
		Title:       params.Title,
		Description: params.Description,
		Category:    category,
		Priority:    params.Priority,
		CreatedTS:   now,
		UpdatedTS:   now,
	}, nil
}
