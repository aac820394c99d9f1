package lifecycle

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type EventType string

const (
	EventWillSuspend EventType = "will_suspend"
	EventDidResume   EventType = "did_resume"
	EventTaskExpired EventType = "task_expired"
)

// Event is one frame of the supervisor's lifecycle stream.
type Event struct {
	Type   EventType `json:"type"`
	TaskID string    `json:"task_id,omitempty"`
	At     time.Time `json:"at,omitempty"`
}

type FeedState int

const (
	FeedDisconnected FeedState = iota
	FeedConnecting
	FeedConnected
	FeedReconnecting
	FeedFailed
)

func (s FeedState) String() string {
	switch s {
	case FeedDisconnected:
		return "disconnected"
	case FeedConnecting:
		return "connecting"
	case FeedConnected:
		return "connected"
	case FeedReconnecting:
		return "reconnecting"
	case FeedFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type EventCallback func(ev Event)

type StateCallback func(state FeedState)

type callbackEntry struct {
	id       int
	callback EventCallback
}

type stateCallbackEntry struct {
	id       int
	callback StateCallback
}

// EventFeed subscribes to the supervisor's lifecycle events over a websocket
// and reconnects with backoff when the connection drops.
type EventFeed struct {
	wsURL  string
	logger *zap.Logger

	connM sync.Mutex
	conn  *websocket.Conn

	state  FeedState
	stateM sync.RWMutex

	evCbs    []callbackEntry
	stateCbs []stateCallbackEntry
	nextCbID int
	cbM      sync.RWMutex

	maxReconnectAttempts int
	pingInterval         time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	headerProvider HeaderProvider
}

func NewEventFeed(wsURL string, maxReconnectAttempts int, logger *zap.Logger) *EventFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EventFeed{
		wsURL:                wsURL,
		logger:               logger,
		state:                FeedDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		pingInterval:         30 * time.Second,
		stopCh:               make(chan struct{}),
		rootCtx:              ctx,
		rootCancel:           cancel,
	}
}

// SetHeaderProvider injects headers into the handshake.
func (f *EventFeed) SetHeaderProvider(h HeaderProvider) { f.headerProvider = h }

// SetPingInterval must be called before Connect.
func (f *EventFeed) SetPingInterval(d time.Duration) { f.pingInterval = d }

func (f *EventFeed) State() FeedState {
	f.stateM.RLock()
	defer f.stateM.RUnlock()
	return f.state
}

func (f *EventFeed) Connect(ctx context.Context) error {
	f.stateM.Lock()
	if f.state == FeedConnected || f.state == FeedConnecting {
		f.stateM.Unlock()
		return nil
	}
	f.stateM.Unlock()
	f.setState(FeedConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := f.dial(dialCtx)
	if err != nil {
		f.setState(FeedFailed)
		f.logger.Warn("event_feed_dial_failed", zap.String("url", f.wsURL), zap.Error(err))
		f.scheduleReconnect()
		return err
	}
	f.attach(conn)
	return nil
}

func (f *EventFeed) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, f.wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      f.buildHeaders(),
	})
	return conn, err
}

func (f *EventFeed) attach(conn *websocket.Conn) {
	f.connM.Lock()
	f.conn = conn
	f.connM.Unlock()
	f.setState(FeedConnected)
	f.logger.Info("event_feed_connected", zap.String("url", f.wsURL))

	f.wg.Add(2)
	go f.listen(conn)
	go f.pingLoop(conn)
}

func (f *EventFeed) listen(conn *websocket.Conn) {
	defer f.wg.Done()
	for {
		var ev Event
		if err := wsjson.Read(f.rootCtx, conn, &ev); err != nil {
			if f.isStopping() {
				return
			}
			f.logger.Warn("event_feed_read_failed", zap.Error(err))
			f.dropConn(conn, websocket.StatusGoingAway, "reconnect")
			return
		}

		f.cbM.RLock()
		callbacks := make([]callbackEntry, len(f.evCbs))
		copy(callbacks, f.evCbs)
		f.cbM.RUnlock()
		for _, entry := range callbacks {
			if entry.callback != nil {
				entry.callback(ev)
			}
		}
	}
}

func (f *EventFeed) pingLoop(conn *websocket.Conn) {
	defer f.wg.Done()
	t := time.NewTicker(f.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-f.stopCh:
			return
		case <-t.C:
			if !f.isCurrent(conn) {
				return
			}
			ctx, cancel := context.WithTimeout(f.rootCtx, 3*time.Second)
			err := conn.Ping(ctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				if f.isStopping() {
					return
				}
				f.dropConn(conn, websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

// dropConn closes conn and reconnects, once per connection.
func (f *EventFeed) dropConn(conn *websocket.Conn, code websocket.StatusCode, reason string) {
	f.connM.Lock()
	if f.conn != conn {
		f.connM.Unlock()
		return
	}
	f.conn = nil
	f.connM.Unlock()
	_ = conn.Close(code, reason)
	f.setState(FeedDisconnected)
	f.scheduleReconnect()
}

func (f *EventFeed) isCurrent(conn *websocket.Conn) bool {
	f.connM.Lock()
	defer f.connM.Unlock()
	return f.conn == conn
}

func (f *EventFeed) scheduleReconnect() {
	if f.maxReconnectAttempts <= 0 || f.isStopping() {
		return
	}
	f.setState(FeedReconnecting)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for attempt := 1; attempt <= f.maxReconnectAttempts; attempt++ {
			select {
			case <-f.stopCh:
				return
			case <-time.After(backoffDuration(attempt)):
			}

			dialCtx, cancel := context.WithTimeout(f.rootCtx, 10*time.Second)
			conn, err := f.dial(dialCtx)
			cancel()
			if err != nil {
				continue
			}
			if f.isStopping() {
				_ = conn.Close(websocket.StatusNormalClosure, "close")
				return
			}
			f.attach(conn)
			return
		}
		f.setState(FeedFailed)
		f.logger.Error("event_feed_gave_up", zap.Int("attempts", f.maxReconnectAttempts))
	}()
}

func (f *EventFeed) OnEvent(cb EventCallback) int {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	f.nextCbID++
	f.evCbs = append(f.evCbs, callbackEntry{id: f.nextCbID, callback: cb})
	return f.nextCbID
}

func (f *EventFeed) RemoveEventCallback(id int) {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	for i, cb := range f.evCbs {
		if cb.id == id {
			f.evCbs = append(f.evCbs[:i], f.evCbs[i+1:]...)
			break
		}
	}
}

func (f *EventFeed) OnStateChange(cb StateCallback) int {
	f.cbM.Lock()
	defer f.cbM.Unlock()
	f.nextCbID++
	f.stateCbs = append(f.stateCbs, stateCallbackEntry{id: f.nextCbID, callback: cb})
	return f.nextCbID
}

func (f *EventFeed) setState(state FeedState) {
	f.stateM.Lock()
	f.state = state
	f.stateM.Unlock()

	f.cbM.RLock()
	callbacks := make([]stateCallbackEntry, len(f.stateCbs))
	copy(callbacks, f.stateCbs)
	f.cbM.RUnlock()
	for _, entry := range callbacks {
		if entry.callback != nil {
			entry.callback(state)
		}
	}
}

func (f *EventFeed) Close(ctx context.Context) error {
	f.stopOnce.Do(func() { close(f.stopCh) })
	f.connM.Lock()
	conn := f.conn
	f.conn = nil
	f.connM.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}
	f.rootCancel()

	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		f.setState(FeedDisconnected)
		return nil
	}
}

func (f *EventFeed) isStopping() bool {
	select {
	case <-f.stopCh:
		return true
	default:
		return false
	}
}

func (f *EventFeed) buildHeaders() http.Header {
	hdr := http.Header{}
	if f.headerProvider == nil {
		return hdr
	}
	for k, v := range f.headerProvider() {
		if strings.TrimSpace(k) == "" || strings.TrimSpace(v) == "" {
			continue
		}
		hdr.Set(k, v)
	}
	return hdr
}
