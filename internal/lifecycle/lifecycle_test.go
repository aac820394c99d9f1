package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/park285/goban-state/internal/savepoint"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

func TestLocalGranterExpires(t *testing.T) {
	g := NewLocalGranter(20*time.Millisecond, nil)
	expired := make(chan struct{})
	id, err := g.BeginBackgroundTask("save", func() { close(expired) })
	if err != nil || id == "" {
		t.Fatalf("BeginBackgroundTask = %q, %v", id, err)
	}
	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatalf("expiry not reported")
	}
	if g.Outstanding() != 0 {
		t.Fatalf("Outstanding = %d", g.Outstanding())
	}
	// Ending after expiry is harmless.
	g.EndBackgroundTask(id)
}

func TestLocalGranterEndStopsTimer(t *testing.T) {
	g := NewLocalGranter(30*time.Millisecond, nil)
	var fired atomic.Bool
	id, err := g.BeginBackgroundTask("save", func() { fired.Store(true) })
	if err != nil {
		t.Fatalf("BeginBackgroundTask: %v", err)
	}
	g.EndBackgroundTask(id)
	time.Sleep(60 * time.Millisecond)
	if fired.Load() {
		t.Fatalf("expired after End")
	}
}

func TestLocalGranterDisabled(t *testing.T) {
	if _, err := NewLocalGranter(0, nil).BeginBackgroundTask("save", nil); !errors.Is(err, ErrGraceDisabled) {
		t.Fatalf("err = %v", err)
	}
}

// fakeSupervisor serves the supervisor API from an in-memory listener.
type fakeSupervisor struct {
	mu          sync.Mutex
	configCalls int
	begun       []string
	ended       []string
	grace       int
}

func (f *fakeSupervisor) handler(ctx *fasthttp.RequestCtx) {
	f.mu.Lock()
	defer f.mu.Unlock()
	path := string(ctx.Path())
	switch {
	case path == "/config" && ctx.IsGet():
		f.configCalls++
		if f.configCalls == 1 {
			ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
			return
		}
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"grace_seconds":30,"events_url":"ws://supervisor/events"}`)
	case path == "/background-tasks" && ctx.IsPost():
		var req beginTaskRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil || req.Name == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			return
		}
		id := "task-" + req.Name
		f.begun = append(f.begun, id)
		ctx.SetContentType("application/json")
		body, _ := json.Marshal(TaskGrant{ID: id, GraceSeconds: f.grace})
		ctx.SetBody(body)
	case strings.HasPrefix(path, "/background-tasks/") && ctx.IsDelete():
		id := strings.TrimPrefix(path, "/background-tasks/")
		if id == "unknown" {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			return
		}
		f.ended = append(f.ended, id)
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotFound)
	}
}

func (f *fakeSupervisor) endedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ended...)
}

func newSupervisor(t *testing.T) (*fakeSupervisor, *SupervisorClient) {
	t.Helper()
	f := &fakeSupervisor{}
	ln := fasthttputil.NewInmemoryListener()
	srv := &fasthttp.Server{Handler: f.handler}
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	c := NewSupervisorClient("http://supervisor",
		WithDial(func(string) (net.Conn, error) { return ln.Dial() }),
		WithTimeout(time.Second),
	)
	return f, c
}

func TestSupervisorClient(t *testing.T) {
	f, c := newSupervisor(t)
	ctx := context.Background()

	cfg, err := c.GetConfig(ctx)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	f.mu.Lock()
	calls := f.configCalls
	f.mu.Unlock()
	if cfg.GraceSeconds != 30 || calls != 2 {
		t.Fatalf("cfg = %+v after %d calls", cfg, calls)
	}

	grant, err := c.BeginTask(ctx, "save")
	if err != nil || grant.ID != "task-save" {
		t.Fatalf("BeginTask = %+v, %v", grant, err)
	}
	if err := c.EndTask(ctx, grant.ID); err != nil {
		t.Fatalf("EndTask: %v", err)
	}
	if err := c.EndTask(ctx, "unknown"); err != nil {
		t.Fatalf("EndTask(unknown): %v", err)
	}
	if got := f.endedIDs(); len(got) != 1 || got[0] != "task-save" {
		t.Fatalf("ended = %v", got)
	}
}

func TestSupervisorGranter(t *testing.T) {
	f, c := newSupervisor(t)
	g := NewSupervisorGranter(c, nil)

	var expiredCalls atomic.Int32
	id, err := g.BeginBackgroundTask("save", func() { expiredCalls.Add(1) })
	if err != nil {
		t.Fatalf("BeginBackgroundTask: %v", err)
	}
	g.Expire(id)
	g.Expire(id)
	g.EndBackgroundTask(id)
	if expiredCalls.Load() != 1 {
		t.Fatalf("expired called %d times", expiredCalls.Load())
	}
	// An expired task is gone on the supervisor side already.
	if got := f.endedIDs(); len(got) != 0 {
		t.Fatalf("ended = %v", got)
	}

	id, err = g.BeginBackgroundTask("other", func() { expiredCalls.Add(1) })
	if err != nil {
		t.Fatalf("BeginBackgroundTask: %v", err)
	}
	g.EndBackgroundTask(id)
	if got := f.endedIDs(); len(got) != 1 || got[0] != "task-other" {
		t.Fatalf("ended = %v", got)
	}
}

func TestSupervisorGranterGraceElapsed(t *testing.T) {
	f, c := newSupervisor(t)
	f.mu.Lock()
	f.grace = 1
	f.mu.Unlock()
	g := NewSupervisorGranter(c, nil)

	expired := make(chan struct{})
	id, err := g.BeginBackgroundTask("save", func() { close(expired) })
	if err != nil {
		t.Fatalf("BeginBackgroundTask: %v", err)
	}
	select {
	case <-expired:
	case <-time.After(3 * time.Second):
		t.Fatalf("grace timer never fired")
	}
	if got := f.endedIDs(); len(got) != 1 || got[0] != id {
		t.Fatalf("ended = %v, want [%s]", got, id)
	}

	// The task is gone locally: neither a late event nor a late end repeats it.
	g.Expire(id)
	g.EndBackgroundTask(id)
	if got := f.endedIDs(); len(got) != 1 {
		t.Fatalf("ended = %v", got)
	}
}

type fakeSuspender struct {
	mu       sync.Mutex
	token    *savepoint.SuspendToken
	suspends int
	resumes  int
}

func (f *fakeSuspender) OnAppSuspending(context.Context) (*savepoint.SuspendToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.suspends++
	f.token = &savepoint.SuspendToken{}
	return f.token, nil
}

func (f *fakeSuspender) OnAppResuming(token *savepoint.SuspendToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if token != f.token {
		return errors.New("foreign token")
	}
	f.resumes++
	return nil
}

func (f *fakeSuspender) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suspends, f.resumes
}

func TestBridgeFoldsRepeats(t *testing.T) {
	s := &fakeSuspender{}
	b := NewBridge(s, nil)
	ctx := context.Background()

	if err := b.Resume("test"); err != nil {
		t.Fatalf("Resume before Suspend: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := b.Suspend(ctx, "test"); err != nil {
			t.Fatalf("Suspend: %v", err)
		}
	}
	if !b.Suspended() {
		t.Fatalf("not suspended")
	}
	for i := 0; i < 2; i++ {
		if err := b.Resume("test"); err != nil {
			t.Fatalf("Resume: %v", err)
		}
	}
	if su, re := s.counts(); su != 1 || re != 1 {
		t.Fatalf("suspends=%d resumes=%d", su, re)
	}
}

func TestBridgeHandleEvent(t *testing.T) {
	s := &fakeSuspender{}
	b := NewBridge(s, nil)
	ctx := context.Background()
	var expired []string
	expire := func(id string) { expired = append(expired, id) }

	b.HandleEvent(ctx, Event{Type: EventWillSuspend}, expire)
	b.HandleEvent(ctx, Event{Type: EventTaskExpired, TaskID: "t1"}, expire)
	b.HandleEvent(ctx, Event{Type: "unknown"}, expire)
	b.HandleEvent(ctx, Event{Type: EventDidResume}, expire)

	if su, re := s.counts(); su != 1 || re != 1 {
		t.Fatalf("suspends=%d resumes=%d", su, re)
	}
	if len(expired) != 1 || expired[0] != "t1" {
		t.Fatalf("expired = %v", expired)
	}
}

func TestSignalSource(t *testing.T) {
	s := &fakeSuspender{}
	src := NewSignalSource(NewBridge(s, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal)
	done := make(chan struct{})
	go func() {
		src.run(ctx, ch)
		close(done)
	}()
	ch <- syscall.SIGUSR1
	ch <- syscall.SIGUSR2
	ch <- syscall.SIGUSR1
	cancel()
	<-done
	if su, re := s.counts(); su != 2 || re != 1 {
		t.Fatalf("suspends=%d resumes=%d", su, re)
	}
}

func TestEventFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		ctx := r.Context()
		_ = wsjson.Write(ctx, conn, Event{Type: EventWillSuspend})
		_ = wsjson.Write(ctx, conn, Event{Type: EventTaskExpired, TaskID: "t9"})
		// Keep the connection open until the client leaves.
		_, _, _ = conn.Read(ctx)
	}))
	t.Cleanup(srv.Close)

	feed := NewEventFeed("ws"+strings.TrimPrefix(srv.URL, "http"), 0, nil)
	got := make(chan Event, 2)
	feed.OnEvent(func(ev Event) { got <- ev })
	if err := feed.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if feed.State() != FeedConnected {
		t.Fatalf("State = %v", feed.State())
	}

	for _, want := range []Event{{Type: EventWillSuspend}, {Type: EventTaskExpired, TaskID: "t9"}} {
		select {
		case ev := <-got:
			if ev.Type != want.Type || ev.TaskID != want.TaskID {
				t.Fatalf("event = %+v, want %+v", ev, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("no event %s", want.Type)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := feed.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
