// Package migrate copies rows from the embedded store to the hosted
// store, one-shot and offline.
//
// The uid is the dedup key: rows whose uid already exists remotely are
// skipped, so re-running a partially failed migration is safe. Plans
// are only written when the hosted plan table is empty; existing
// hosted plans are never overwritten. A dry run validates connectivity
// and reports counts without writing; export-only serializes the local
// rows to files without touching the hosted store at all.
package migrate

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/memod-dev/memod/internal/backend/cloud"
	"github.com/memod-dev/memod/internal/backend/local"
	"github.com/memod-dev/memod/internal/model"
)

// DefaultBatchSize is the insert batch size. Small on purpose: the
// hosted endpoint rejects oversized payloads long before throughput
// matters for a personal store.
const DefaultBatchSize = 5

// Options contains configuration for the migration.
type Options struct {
	// DryRun validates connectivity and counts without writing.
	DryRun bool

	// ExportOnly serializes local rows to files instead of inserting.
	ExportOnly bool

	// ExportDir is where export files land. Defaults to the current
	// directory.
	ExportDir string

	// BatchSize is rows per insert request.
	BatchSize int

	// Logger for migration progress.
	Logger *log.Logger
}

// Result contains statistics about the migration.
type Result struct {
	LocalMemos  int
	LocalPlans  int
	RemoteUIDs  int
	MemosToSend int

	MemosInserted int
	MemosSkipped  int

	PlansInserted int
	PlansSkipped  bool

	ExportedFiles []string
}

// Migrator copies rows from a local store to a cloud client.
type Migrator struct {
	store  *local.Store
	cloud  *cloud.Client
	opts   Options
	logger *log.Logger
}

// New creates a migrator. The cloud client may be nil in export-only
// mode.
func New(store *local.Store, cloudClient *cloud.Client, opts Options) (*Migrator, error) {
	if store == nil {
		return nil, fmt.Errorf("local store cannot be nil")
	}
	if cloudClient == nil && !opts.ExportOnly {
		return nil, fmt.Errorf("cloud client required unless exporting only")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[migrate] ", log.LstdFlags)
	}

	return &Migrator{store: store, cloud: cloudClient, opts: opts, logger: logger}, nil
}

// Run executes the migration and returns its statistics.
func (m *Migrator) Run(ctx context.Context) (*Result, error) {
	result := &Result{}

	memoCount, err := m.store.CountMemos(ctx)
	if err != nil {
		return nil, err
	}
	planCount, err := m.store.CountPlans(ctx)
	if err != nil {
		return nil, err
	}
	result.LocalMemos = memoCount
	result.LocalPlans = planCount
	m.logger.Printf("Local store: %d memos, %d plans", memoCount, planCount)

	if m.opts.ExportOnly {
		if err := m.export(ctx, result); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := m.cloud.Ping(ctx); err != nil {
		return nil, err
	}

	remoteUIDs, err := m.cloud.MemoUIDs(ctx)
	if err != nil {
		return nil, err
	}
	result.RemoteUIDs = len(remoteUIDs)

	hasPlans, err := m.cloud.HasPlans(ctx)
	if err != nil {
		return nil, err
	}
	result.PlansSkipped = hasPlans

	if err := m.migrateMemos(ctx, remoteUIDs, result); err != nil {
		return nil, err
	}

	if hasPlans {
		m.logger.Println("Remote plan table is not empty, leaving it untouched")
	} else if err := m.migratePlans(ctx, result); err != nil {
		return nil, err
	}

	return result, nil
}

// migrateMemos walks the local store in creation order and inserts the
// rows whose uid is missing remotely.
func (m *Migrator) migrateMemos(ctx context.Context, remoteUIDs map[string]bool, result *Result) error {
	var pending []cloud.MemoRow

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if !m.opts.DryRun {
			if err := m.cloud.InsertMemoRows(ctx, pending); err != nil {
				return err
			}
		}
		result.MemosInserted += len(pending)
		pending = pending[:0]
		return nil
	}

	for offset := 0; ; offset += m.opts.BatchSize {
		memos, err := m.store.ListAllMemos(ctx, m.opts.BatchSize, offset)
		if err != nil {
			return err
		}
		if len(memos) == 0 {
			break
		}

		for _, memo := range memos {
			if memo.UID == "" || remoteUIDs[memo.UID] {
				result.MemosSkipped++
				continue
			}
			result.MemosToSend++
			pending = append(pending, cloud.MemoRowFromModel(memo))
			if len(pending) >= m.opts.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	if m.opts.DryRun {
		m.logger.Printf("Dry run: would insert %d memos, skip %d", result.MemosInserted, result.MemosSkipped)
		result.MemosInserted = 0
	} else {
		m.logger.Printf("Inserted %d memos, skipped %d already present", result.MemosInserted, result.MemosSkipped)
	}
	return nil
}

func (m *Migrator) migratePlans(ctx context.Context, result *Result) error {
	plans, err := m.store.ListAllPlans(ctx)
	if err != nil {
		return err
	}

	for start := 0; start < len(plans); start += m.opts.BatchSize {
		end := start + m.opts.BatchSize
		if end > len(plans) {
			end = len(plans)
		}

		batch := make([]cloud.PlanRow, 0, end-start)
		for _, plan := range plans[start:end] {
			batch = append(batch, cloud.PlanRowFromModel(plan))
		}

		if !m.opts.DryRun {
			if err := m.cloud.InsertPlanRows(ctx, batch); err != nil {
				return err
			}
		}
		result.PlansInserted += len(batch)
	}

	if m.opts.DryRun {
		m.logger.Printf("Dry run: would insert %d plans", result.PlansInserted)
		result.PlansInserted = 0
	} else {
		m.logger.Printf("Inserted %d plans", result.PlansInserted)
	}
	return nil
}

// export writes the local rows to memo.migration.jsonl (one JSON
// object per line) and daily_plan.migration.json (pretty-printed
// array) in the export directory.
func (m *Migrator) export(ctx context.Context, result *Result) error {
	dir := m.opts.ExportDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	memoPath := filepath.Join(dir, "memo.migration.jsonl")
	if err := m.exportMemos(ctx, memoPath); err != nil {
		return err
	}
	result.ExportedFiles = append(result.ExportedFiles, memoPath)

	planPath := filepath.Join(dir, "daily_plan.migration.json")
	if err := m.exportPlans(ctx, planPath); err != nil {
		return err
	}
	result.ExportedFiles = append(result.ExportedFiles, planPath)

	m.logger.Printf("Exported %s and %s", memoPath, planPath)
	return nil
}

func (m *Migrator) exportMemos(ctx context.Context, path string) error {
	var all []model.Memo
	for offset := 0; ; offset += m.opts.BatchSize {
		memos, err := m.store.ListAllMemos(ctx, m.opts.BatchSize, offset)
		if err != nil {
			return err
		}
		if len(memos) == 0 {
			break
		}
		all = append(all, memos...)
	}

	return writeAtomic(path, func(f *os.File) error {
		encoder := json.NewEncoder(f)
		for _, memo := range all {
			if err := encoder.Encode(memo); err != nil {
				return fmt.Errorf("failed to encode memo %d: %w", memo.ID, err)
			}
		}
		return nil
	})
}

func (m *Migrator) exportPlans(ctx context.Context, path string) error {
	plans, err := m.store.ListAllPlans(ctx)
	if err != nil {
		return err
	}
	if plans == nil {
		plans = []model.DailyPlan{}
	}

	data, err := json.MarshalIndent(plans, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal plans: %w", err)
	}

	return writeAtomic(path, func(f *os.File) error {
		_, err := f.Write(append(data, '\n'))
		return err
	})
}

// writeAtomic writes through a temp file and renames, so a failed
// export never leaves a truncated file behind.
func writeAtomic(path string, fill func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", path, err)
	}
	return nil
}
