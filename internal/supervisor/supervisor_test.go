package supervisor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/elm-pilot/elm-pilot/internal/install"
)

type fakeConn struct {
	disconnect chan struct{}
	closeOnce  sync.Once
	shutdowns  int32
}

func newFakeConn() *fakeConn {
	return &fakeConn{disconnect: make(chan struct{})}
}

func (c *fakeConn) Shutdown(ctx context.Context) error {
	atomic.AddInt32(&c.shutdowns, 1)
	c.Close()
	return nil
}

func (c *fakeConn) Close() {
	c.closeOnce.Do(func() { close(c.disconnect) })
}

func (c *fakeConn) DisconnectNotify() <-chan struct{} {
	return c.disconnect
}

type fixture struct {
	sup     *Supervisor
	started int32
	conns   chan *fakeConn
	found   bool
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		conns: make(chan *fakeConn, 16),
		found: true,
	}
	locate := func() (install.Location, bool) {
		return install.Location{Path: "/usr/bin/elm-analyzer", Source: install.SourceInstalled}, f.found
	}
	start := func(ctx context.Context, path string) (Connection, error) {
		atomic.AddInt32(&f.started, 1)
		c := newFakeConn()
		f.conns <- c
		return c, nil
	}
	f.sup = New(locate, start, zerolog.Nop())
	return f
}

func TestStartStop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if _, err := f.sup.Conn(); err != ErrNotRunning {
		t.Fatalf("Conn on a stopped supervisor returned %v; expected ErrNotRunning", err)
	}

	if err := f.sup.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if state := f.sup.State(); state != Running {
		t.Fatalf("state is %v; expected running", state)
	}
	conn, err := f.sup.Conn()
	if err != nil {
		t.Fatalf("Conn failed: %v", err)
	}

	if err := f.sup.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if state := f.sup.State(); state != Stopped {
		t.Fatalf("state is %v; expected stopped", state)
	}
	if n := atomic.LoadInt32(&conn.(*fakeConn).shutdowns); n != 1 {
		t.Errorf("connection shut down %v times; expected 1", n)
	}

	// idempotent
	if err := f.sup.Stop(ctx); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}

	// a graceful stop is not an unexpected closure
	select {
	case ev := <-f.sup.Events():
		t.Errorf("unexpected event after graceful stop: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStartBinaryNotFound(t *testing.T) {
	f := newFixture(t)
	f.found = false

	err := f.sup.Start(context.Background())
	if err != ErrBinaryNotFound {
		t.Fatalf("Start returned %v; expected ErrBinaryNotFound", err)
	}
	if state := f.sup.State(); state != Stopped {
		t.Fatalf("state is %v; expected stopped", state)
	}
}

func TestRestartReplacesConnection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.sup.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	first, _ := f.sup.Conn()

	if err := f.sup.Restart(ctx); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	second, err := f.sup.Conn()
	if err != nil {
		t.Fatalf("Conn after restart failed: %v", err)
	}
	if first == second {
		t.Fatalf("restart did not replace the connection")
	}
	if n := atomic.LoadInt32(&f.started); n != 2 {
		t.Errorf("started %v connections; expected 2", n)
	}
}

func TestRestartReentrancy(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	release := make(chan struct{})
	var started int32
	f.sup = New(
		func() (install.Location, bool) {
			return install.Location{Path: "/usr/bin/elm-analyzer"}, true
		},
		func(ctx context.Context, path string) (Connection, error) {
			atomic.AddInt32(&started, 1)
			<-release
			return newFakeConn(), nil
		},
		zerolog.Nop(),
	)

	firstErr := make(chan error, 1)
	go func() { firstErr <- f.sup.Restart(ctx) }()

	// wait for the first restart to reach the blocked start
	for atomic.LoadInt32(&started) == 0 {
		time.Sleep(time.Millisecond)
	}

	if err := f.sup.Restart(ctx); err != ErrAlreadyRestarting {
		t.Fatalf("concurrent Restart returned %v; expected ErrAlreadyRestarting", err)
	}

	close(release)
	if err := <-firstErr; err != nil {
		t.Fatalf("first Restart failed: %v", err)
	}
	if n := atomic.LoadInt32(&started); n != 1 {
		t.Fatalf("started %v connections; expected exactly 1", n)
	}
	if _, err := f.sup.Conn(); err != nil {
		t.Fatalf("Conn after restart failed: %v", err)
	}
}

func TestUnexpectedCloseSurfacesEvent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.sup.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	conn := <-f.conns

	// server dies on its own
	conn.Close()

	select {
	case ev := <-f.sup.Events():
		if ev.Kind != EventUnexpectedClose {
			t.Fatalf("event kind is %v; expected EventUnexpectedClose", ev.Kind)
		}
	case <-time.After(time.Second):
		t.Fatal("no event after unexpected close")
	}

	// no auto-restart
	if n := atomic.LoadInt32(&f.started); n != 1 {
		t.Fatalf("started %v connections; expected 1 (no auto-restart)", n)
	}
	if _, err := f.sup.Conn(); err != ErrNotRunning {
		t.Fatalf("Conn returned %v; expected ErrNotRunning after unexpected close", err)
	}
}
