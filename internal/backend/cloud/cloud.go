// Package cloud implements the backend contract against a hosted
// table-oriented REST backend (PostgREST-style).
//
// Every request is authenticated with a static key sent as both the
// apikey header and a bearer token. Filters, ordering and pagination
// ride in the query string; writes ask the server to return the
// affected rows so the authoritative result can replace optimistic
// client state without a second round trip.
//
// No client-side timeout is imposed beyond the transport's own; the
// backend's error surfacing is authoritative.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/memod-dev/memod/internal/backend"
	"github.com/memod-dev/memod/internal/model"
)

// toggleAttempts bounds the conditional-update retry loop in
// ToggleMemoStatus.
const toggleAttempts = 3

// Config holds connection settings for the hosted backend.
type Config struct {
	// BaseURL is the project root, e.g. https://xyz.example.co
	// (the /rest/v1/ prefix is appended by the client).
	BaseURL string

	// APIKey is the static key sent as apikey and bearer token.
	APIKey string

	// HTTPClient overrides the transport (nil = http.DefaultClient).
	HTTPClient *http.Client

	// Logger for request failures (nil = stderr logger).
	Logger *log.Logger
}

// Client is the hosted-store implementation of backend.Client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *log.Logger
}

var _ backend.Client = (*Client)(nil)

// New creates a cloud client. Returns ErrConfiguration if the URL or
// key is missing.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" || config.APIKey == "" {
		return nil, backend.WrapConfiguration("cloud backend requires cloud.url and cloud.api_key")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[cloud] ", log.LstdFlags)
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		http:    httpClient,
		logger:  logger,
	}, nil
}

// ListMemos implements backend.Client.
func (c *Client) ListMemos(ctx context.Context, opts backend.ListMemosOptions) ([]model.Memo, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = backend.DefaultListLimit
	}

	q := url.Values{}
	q.Set("select", "*")
	q.Set("archived", "eq.false")
	q.Set("order", "pinned.desc,created_ts.desc")
	q.Set("limit", fmt.Sprint(limit))
	q.Set("offset", fmt.Sprint(opts.Offset))
	if opts.Category != "" {
		q.Set("category", "eq."+opts.Category)
	}

	var memos []model.Memo
	if err := c.doJSON(ctx, http.MethodGet, "memo", q, nil, "", &memos); err != nil {
		return nil, fmt.Errorf("failed to list memos: %w", err)
	}
	return memos, nil
}

// CreateMemo implements backend.Client. Timestamps are set client-side
// the way the hosted schema expects; id and uid come back from the
// server.
func (c *Client) CreateMemo(ctx context.Context, params backend.CreateMemoParams) (*model.Memo, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	category := params.Category
	if category == "" {
		category = model.DefaultCategory
	}
	now := time.Now().Unix()

	payload := map[string]interface{}{
		"created_ts":  now,
		"updated_ts":  now,
		"category":    category,
		"target_date": params.TargetDate,
		"content":     params.Content,
	}

	var rows []model.Memo
	if err := c.doJSON(ctx, http.MethodPost, "memo", nil, payload, "return=representation", &rows); err != nil {
		return nil, fmt.Errorf("failed to create memo: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("create memo: backend returned no row")
	}
	return &rows[0], nil
}

// UpdateMemo implements backend.Client.
func (c *Client) UpdateMemo(ctx context.Context, id int64, params backend.UpdateMemoParams) (*model.Memo, error) {
	q := url.Values{}
	q.Set("id", fmt.Sprintf("eq.%d", id))

	rows, err := c.patchMemo(ctx, q, updatePayload(params))
	if err != nil {
		return nil, fmt.Errorf("failed to update memo %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("memo %d: %w", id, backend.ErrNotFound)
	}
	return &rows[0], nil
}

// DeleteMemo implements backend.Client.
func (c *Client) DeleteMemo(ctx context.Context, id int64) error {
	q := url.Values{}
	q.Set("id", fmt.Sprintf("eq.%d", id))

	if err := c.doJSON(ctx, http.MethodDelete, "memo", q, nil, "", nil); err != nil {
		return fmt.Errorf("failed to delete memo %d: %w", id, err)
	}
	return nil
}

// ToggleMemoStatus implements backend.Client.
//
// The hosted backend has no single toggle verb, so this reads the
// current status and issues a conditional update filtered on both id
// and the status it just read. A racing writer makes the update match
// zero rows, in which case the loop retries from a fresh read. The
// caller observes an atomic one-step advance or an error.
func (c *Client) ToggleMemoStatus(ctx context.Context, id int64) (*model.Memo, error) {
	for attempt := 0; attempt < toggleAttempts; attempt++ {
		current, err := c.getMemoByID(ctx, id)
		if err != nil {
			return nil, err
		}

		next := current.CompletionStatus.Next()

		q := url.Values{}
		q.Set("id", fmt.Sprintf("eq.%d", id))
		q.Set("completion_status", "eq."+string(current.CompletionStatus))

		rows, err := c.patchMemo(ctx, q, map[string]interface{}{
			"completion_status": string(next),
			"updated_ts":        time.Now().Unix(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to toggle memo %d: %w", id, err)
		}
		if len(rows) > 0 {
			return &rows[0], nil
		}

		// Lost the race; re-read and try again.
		c.logger.Printf("toggle memo %d: concurrent update detected, retrying", id)
	}

	return nil, fmt.Errorf("toggle memo %d: too many concurrent updates", id)
}

// ListPlansByDate implements backend.Client.
func (c *Client) ListPlansByDate(ctx context.Context, date string) ([]model.DailyPlan, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("plan_date", "eq."+date)
	q.Set("order", "priority.desc,created_ts.asc")

	var plans []model.DailyPlan
	if err := c.doJSON(ctx, http.MethodGet, "daily_plan", q, nil, "", &plans); err != nil {
		return nil, fmt.Errorf("failed to list plans for %s: %w", date, err)
	}
	return plans, nil
}

// getMemoByID reads a single memo row.
func (c *Client) getMemoByID(ctx context.Context, id int64) (*model.Memo, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("id", fmt.Sprintf("eq.%d", id))
	q.Set("limit", "1")

	var rows []model.Memo
	if err := c.doJSON(ctx, http.MethodGet, "memo", q, nil, "", &rows); err != nil {
		return nil, fmt.Errorf("failed to fetch memo %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("memo %d: %w", id, backend.ErrNotFound)
	}
	return &rows[0], nil
}

func (c *Client) patchMemo(ctx context.Context, q url.Values, payload map[string]interface{}) ([]model.Memo, error) {
	var rows []model.Memo
	if err := c.doJSON(ctx, http.MethodPatch, "memo", q, payload, "return=representation", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// updatePayload builds the partial-update body; updated_ts is always
// refreshed.
func updatePayload(params backend.UpdateMemoParams) map[string]interface{} {
	payload := map[string]interface{}{
		"updated_ts": time.Now().Unix(),
	}
	if params.Content != nil {
		payload["content"] = *params.Content
	}
	if params.Category != nil {
		payload["category"] = *params.Category
	}
	if params.TargetDate != nil {
		payload["target_date"] = *params.TargetDate
	}
	if params.CompletionStatus != nil {
		payload["completion_status"] = string(*params.CompletionStatus)
	}
	if params.Pinned != nil {
		payload["pinned"] = *params.Pinned
	}
	if params.Archived != nil {
		payload["archived"] = *params.Archived
	}
	return payload
}

// doJSON issues one REST request and decodes the response into out
// (skipped when out is nil). prefer, when non-empty, is sent as the
// Prefer header.
func (c *Client) doJSON(ctx context.Context, method, table string, q url.Values, body interface{}, prefer string, out interface{}) error {
	endpoint := c.baseURL + "/rest/v1/" + table
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return backend.WrapUnavailable(err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// checkStatus maps HTTP failures onto the backend error taxonomy.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", backend.ErrUnauthorized, resp.StatusCode, snippet)
	case http.StatusNotFound:
		return fmt.Errorf("%w: HTTP %d: %s", backend.ErrNotFound, resp.StatusCode, snippet)
	default:
		return fmt.Errorf("backend returned HTTP %d: %s", resp.StatusCode, snippet)
	}
}
