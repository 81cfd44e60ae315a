package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/memod-dev/memod/internal/backend"
	"github.com/memod-dev/memod/internal/backend/cloud"
	"github.com/memod-dev/memod/internal/backend/local"
	"github.com/memod-dev/memod/internal/config"
	"github.com/memod-dev/memod/internal/orchestrator"
)

var (
	cfgFile  string
	modeFlag string
)

var rootCmd = &cobra.Command{
	Use:   "memod",
	Short: "Personal memos and daily plans, local or cloud",
	Long: `memod keeps timestamped memos and daily plans in an embedded SQLite
database, or in a hosted cloud store, behind one identical interface.

Mutations apply optimistically and reconcile with the backend in the
background; deletes wait out a short grace window so they can be
undone. The migrate command copies a local store to the cloud with
uid-based dedup.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/memod/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&modeFlag, "mode", "", "backend mode override: auto, local or cloud")
}

// appContext bundles everything a command needs after startup.
type appContext struct {
	settings *config.Settings
	mode     config.Mode
	client   backend.Client
	store    *local.Store // non-nil only in local mode
	logger   *log.Logger
}

func (a *appContext) Close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}

// configPath resolves the settings file location from the flag or the
// default.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultPath()
}

// loadSettings reads the settings file and applies the --mode flag.
func loadSettings() (*config.Settings, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	settings, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if modeFlag != "" {
		mode, err := config.ParseMode(modeFlag)
		if err != nil {
			return nil, err
		}
		settings.Mode = mode
	}
	return settings, nil
}

// newLogger routes logs to a rotated file when configured, stderr
// otherwise.
func newLogger(settings *config.Settings) *log.Logger {
	var out io.Writer = os.Stderr
	if settings.LogFile != "" {
		out = &lumberjack.Logger{
			Filename:   settings.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
	}
	return log.New(out, "[memod] ", log.LstdFlags)
}

// openApp resolves the backend mode and opens the matching client.
func openApp() (*appContext, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	logger := newLogger(settings)

	// Probe local availability by actually opening the store; a path
	// that cannot be opened or initialized means local is unusable.
	var store *local.Store
	if s, err := local.Open(settings.LocalPath); err == nil {
		if err := s.InitSchema(); err == nil {
			store = s
		} else {
			logger.Printf("Local store unusable: %v", err)
			_ = s.Close()
		}
	} else {
		logger.Printf("Local store unusable: %v", err)
	}

	mode, err := config.Resolve(settings.Mode, store != nil)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	app := &appContext{settings: settings, mode: mode, logger: logger}

	switch mode {
	case config.ModeLocal:
		app.store = store
		app.client = store
	case config.ModeCloud:
		if store != nil {
			_ = store.Close()
		}
		client, err := cloud.New(cloud.Config{
			BaseURL: settings.CloudURL,
			APIKey:  settings.CloudAPIKey,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		app.client = client
	}

	return app, nil
}

// newOrchestrator builds a synced orchestrator for CLI use: state is
// loaded before the command acts on it.
func (a *appContext) newOrchestrator(ctx context.Context, planDate string) (*orchestrator.Orchestrator, error) {
	orch, err := orchestrator.New(a.client, &orchestrator.Config{
		PlanDate:  planDate,
		TrackSync: a.mode == config.ModeCloud,
		Logger:    a.logger,
	})
	if err != nil {
		return nil, err
	}
	if err := orch.RefreshAll(ctx); err != nil {
		return nil, err
	}
	return orch, nil
}

// flushOrchestrator waits for in-flight backend calls before the
// process exits.
func flushOrchestrator(ctx context.Context, orch *orchestrator.Orchestrator) error {
	flushCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return orch.Flush(flushCtx)
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// formatMemoLine renders one memo for list output.
func formatMemoLine(id int64, pinned bool, status, category, content string) string {
	marker := " "
	if pinned {
		marker = "*"
	}
	statusMark := map[string]string{
		"pending":    "[ ]",
		"completed":  "[x]",
		"incomplete": "[-]",
	}[status]
	if statusMark == "" {
		statusMark = "[?]"
	}

	content = strings.ReplaceAll(content, "\n", " ")
	if runes := []rune(content); len(runes) > 72 {
		content = string(runes[:69]) + "..."
	}
	return fmt.Sprintf("%s %s %6d  %-9s %s", marker, statusMark, id, category, content)
}
