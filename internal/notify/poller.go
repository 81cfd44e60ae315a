package notify

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PollerConfig holds configuration for the polling notifier.
type PollerConfig struct {
	// Interval is the fixed refresh cadence.
	Interval time.Duration

	// WatchPath, when set, is a database file to watch for writes.
	// Writes from another process fire a signal without waiting for
	// the next tick.
	WatchPath string

	// DebounceInterval batches rapid file events together.
	DebounceInterval time.Duration

	// Logger for notifier activity.
	Logger *log.Logger
}

// DefaultPollerConfig returns sensible defaults.
func DefaultPollerConfig() *PollerConfig {
	return &PollerConfig{
		Interval:         15 * time.Second,
		DebounceInterval: 100 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[notify] ", log.LstdFlags),
	}
}

// Poller fires the callback on a fixed interval, on Wake, and on
// writes to the watched database file.
type Poller struct {
	callback func()
	config   *PollerConfig

	watcher *fsnotify.Watcher
	wake    chan struct{}

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

var _ Notifier = (*Poller)(nil)

// NewPoller creates a polling notifier. The callback fires from a
// single background goroutine.
func NewPoller(callback func(), config *PollerConfig) (*Poller, error) {
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}
	if config == nil {
		config = DefaultPollerConfig()
	}
	if config.Interval <= 0 {
		config.Interval = DefaultPollerConfig().Interval
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultPollerConfig().DebounceInterval
	}
	if config.Logger == nil {
		config.Logger = DefaultPollerConfig().Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Poller{
		callback: callback,
		config:   config,
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start begins polling. A missing watch directory disables the file
// watch but does not fail the poller; the interval still applies.
func (p *Poller) Start(ctx context.Context) error {
	if p.config.WatchPath != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		if err := watcher.Add(filepath.Dir(p.config.WatchPath)); err != nil {
			p.config.Logger.Printf("File watch disabled: %v", err)
			_ = watcher.Close()
		} else {
			p.watcher = watcher
		}
	}

	p.wg.Add(1)
	go p.run(ctx)
	return nil
}

// Stop tears down the ticker and watcher. Safe to call repeatedly.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		if p.watcher != nil {
			_ = p.watcher.Close()
		}
		p.wg.Wait()
	})
}

// Wake requests an immediate signal, e.g. when the application regains
// focus. Non-blocking; a wake already queued is enough.
func (p *Poller) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Poller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	debounce := time.NewTimer(p.config.DebounceInterval)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	events, errors := p.watchChannels()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.ctx.Done():
			return

		case <-ticker.C:
			p.callback()

		case <-p.wake:
			p.callback()

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !p.matchesWatchPath(event) {
				continue
			}
			// Batch the burst of events one write produces.
			debounce.Reset(p.config.DebounceInterval)

		case <-debounce.C:
			p.callback()

		case err, ok := <-errors:
			if !ok {
				errors = nil
				continue
			}
			p.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// watchChannels returns the watcher channels, or nil channels when the
// file watch is disabled (nil channels block forever in select).
func (p *Poller) watchChannels() (chan fsnotify.Event, chan error) {
	if p.watcher == nil {
		return nil, nil
	}
	return p.watcher.Events, p.watcher.Errors
}

// matchesWatchPath reports whether an event concerns the watched
// database file, including its WAL and journal side files.
func (p *Poller) matchesWatchPath(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
		return false
	}
	return strings.HasPrefix(filepath.Base(event.Name), filepath.Base(p.config.WatchPath))
}
