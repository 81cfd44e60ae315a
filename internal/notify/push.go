package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/memod-dev/memod/internal/backend"
)

// PushConfig holds configuration for the realtime push notifier.
type PushConfig struct {
	// BaseURL is the hosted project root (http/https); the realtime
	// websocket path is appended by the notifier.
	BaseURL string

	// APIKey authenticates the websocket, passed as a query parameter.
	APIKey string

	// Tables to subscribe to. Defaults to memo and daily_plan.
	Tables []string

	// HeartbeatInterval keeps the connection alive.
	HeartbeatInterval time.Duration

	// MaxBackoff caps the redial delay after a dropped connection.
	MaxBackoff time.Duration

	// Logger for connection lifecycle events.
	Logger *log.Logger
}

// DefaultPushConfig returns sensible defaults.
func DefaultPushConfig() *PushConfig {
	return &PushConfig{
		Tables:            []string{"memo", "daily_plan"},
		HeartbeatInterval: 30 * time.Second,
		MaxBackoff:        30 * time.Second,
		Logger:            log.New(os.Stderr, "[push] ", log.LstdFlags),
	}
}

// Push subscribes to the hosted backend's change-event stream and
// fires the callback on any insert, update or delete for the watched
// tables. Dropped connections are redialed with capped backoff.
type Push struct {
	callback func()
	config   *PushConfig

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

var _ Notifier = (*Push)(nil)

// realtimeMessage is the channel-protocol frame used by the hosted
// realtime endpoint: topic-scoped events with a client-chosen ref.
type realtimeMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref"`
}

// NewPush creates a push notifier. Returns ErrConfiguration when the
// URL or key is missing.
func NewPush(callback func(), config *PushConfig) (*Push, error) {
	if callback == nil {
		return nil, fmt.Errorf("callback cannot be nil")
	}
	if config == nil {
		config = DefaultPushConfig()
	}
	if config.BaseURL == "" || config.APIKey == "" {
		return nil, backend.WrapConfiguration("push notifier requires cloud.url and cloud.api_key")
	}
	defaults := DefaultPushConfig()
	if len(config.Tables) == 0 {
		config.Tables = defaults.Tables
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Push{
		callback: callback,
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Start dials the realtime endpoint in the background and keeps the
// subscription alive until ctx is cancelled or Stop is called.
func (p *Push) Start(ctx context.Context) error {
	p.wg.Add(1)
	go p.run(ctx)
	return nil
}

// Stop closes the subscription. Safe to call repeatedly.
func (p *Push) Stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		p.wg.Wait()
	})
}

func (p *Push) run(ctx context.Context) {
	defer p.wg.Done()

	// Fold Stop into the caller's context so an in-progress dial is
	// interrupted too.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.ctx.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()
	ctx = runCtx

	backoff := time.Second

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := p.connect(ctx)
		if err != nil {
			p.config.Logger.Printf("Realtime connect failed: %v (retrying in %v)", err, backoff)
			if !p.sleep(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > p.config.MaxBackoff {
				backoff = p.config.MaxBackoff
			}
			continue
		}

		backoff = time.Second
		p.session(ctx, conn)
	}
}

// sleep waits for d unless the notifier shuts down first.
func (p *Push) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-p.ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// connect dials the websocket and joins one topic per watched table.
func (p *Push) connect(ctx context.Context) (*websocket.Conn, error) {
	endpoint := websocketURL(p.config.BaseURL) +
		"/realtime/v1/websocket?apikey=" + p.config.APIKey + "&vsn=1.0.0"

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial realtime endpoint: %w", err)
	}

	for i, table := range p.config.Tables {
		join := realtimeMessage{
			Topic:   "realtime:public:" + table,
			Event:   "phx_join",
			Payload: json.RawMessage(`{}`),
			Ref:     fmt.Sprint(i + 1),
		}
		if err := p.send(ctx, conn, join); err != nil {
			_ = conn.Close(websocket.StatusInternalError, "join failed")
			return nil, fmt.Errorf("failed to join %s channel: %w", table, err)
		}
	}

	return conn, nil
}

// session reads events until the connection drops or the notifier
// shuts down. A heartbeat goroutine keeps the channel open.
func (p *Push) session(ctx context.Context, conn *websocket.Conn) {
	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go p.heartbeatLoop(sessionCtx, conn)

	defer conn.Close(websocket.StatusNormalClosure, "")

	for {
		_, data, err := conn.Read(sessionCtx)
		if err != nil {
			if sessionCtx.Err() == nil {
				p.config.Logger.Printf("Realtime connection lost: %v", err)
			}
			return
		}

		var msg realtimeMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			p.config.Logger.Printf("Discarding malformed realtime frame: %v", err)
			continue
		}

		switch msg.Event {
		case "INSERT", "UPDATE", "DELETE":
			p.callback()
		case "phx_error":
			p.config.Logger.Printf("Channel error on %s, reconnecting", msg.Topic)
			return
		}
	}
}

func (p *Push) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(p.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			beat := realtimeMessage{
				Topic:   "phoenix",
				Event:   "heartbeat",
				Payload: json.RawMessage(`{}`),
				Ref:     "heartbeat",
			}
			if err := p.send(ctx, conn, beat); err != nil {
				if ctx.Err() == nil {
					p.config.Logger.Printf("Heartbeat failed: %v", err)
				}
				return
			}
		}
	}
}

func (p *Push) send(ctx context.Context, conn *websocket.Conn, msg realtimeMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// websocketURL rewrites an http(s) base URL to its ws(s) equivalent.
func websocketURL(base string) string {
	base = strings.TrimRight(base, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
