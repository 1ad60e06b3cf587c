// Package supervisor owns the lifecycle of the single live connection
// to the elm-analyzer server: start, graceful stop, and
// reentrancy-guarded restart.
package supervisor

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/elm-pilot/elm-pilot/internal/install"
)

// State is the lifecycle state of the supervised connection.
type State int

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return "unknown"
}

var (
	// ErrBinaryNotFound is returned by Start when no server binary
	// could be located. It is not a failure of the supervisor: the
	// caller decides whether to prompt for installation.
	ErrBinaryNotFound = errors.New("no elm-analyzer binary found")

	// ErrAlreadyRestarting is returned when a restart is requested
	// while another one is in flight. Concurrent restarts are
	// rejected, not queued.
	ErrAlreadyRestarting = errors.New("server is already restarting")

	// ErrNotRunning is returned by Conn when there is no live
	// connection.
	ErrNotRunning = errors.New("language server is not running")
)

// Event is a lifecycle notification the supervisor surfaces to its
// owner.
type Event struct {
	Kind EventKind
}

type EventKind int

const (
	// EventUnexpectedClose reports that the transport closed without a
	// stop having been requested. The supervisor never restarts on its
	// own; the user must invoke restart explicitly so a persistently
	// broken binary is not masked by silent respawning.
	EventUnexpectedClose EventKind = iota
)

// Connection is the per-process server handle the supervisor manages.
type Connection interface {
	Shutdown(ctx context.Context) error
	Close()
	DisconnectNotify() <-chan struct{}
}

// StartFunc spawns a server from the executable at path.
type StartFunc func(ctx context.Context, path string) (Connection, error)

// LocateFunc resolves the server binary. It is called fresh on every
// start so configuration or installed-state changes take effect on
// restart.
type LocateFunc func() (install.Location, bool)

// Supervisor owns the single live server connection. Dependents must
// obtain the connection through Conn at call time rather than holding
// on to it, because a restart replaces it.
type Supervisor struct {
	locate LocateFunc
	start  StartFunc
	log    zerolog.Logger
	events chan Event

	mu         sync.Mutex
	state      State
	conn       Connection
	gen        uint64 // increments per started connection
	restarting bool
}

func New(locate LocateFunc, start StartFunc, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		locate: locate,
		start:  start,
		log:    log,
		events: make(chan Event, 8),
	}
}

// Events delivers lifecycle notifications. The channel is buffered;
// events are dropped rather than blocking the supervisor if the owner
// stops reading.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Conn returns the current live connection. The result must not be
// retained across suspension points; re-read it before every use.
func (s *Supervisor) Conn() (Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Running || s.conn == nil {
		return nil, ErrNotRunning
	}
	return s.conn, nil
}

// Start resolves the binary location and spawns a new connection.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Stopped {
		state := s.state
		s.mu.Unlock()
		return errors.Errorf("cannot start: server is %v", state)
	}
	s.state = Starting
	s.mu.Unlock()

	loc, ok := s.locate()
	if !ok {
		s.setStopped()
		return ErrBinaryNotFound
	}
	s.log.Info().Str("path", loc.Path).Stringer("source", loc.Source).Msg("starting elm-analyzer")

	conn, err := s.start(ctx, loc.Path)
	if err != nil {
		s.setStopped()
		return errors.Wrap(err, "failed to start language server")
	}

	s.mu.Lock()
	s.conn = conn
	s.gen++
	gen := s.gen
	s.state = Running
	s.mu.Unlock()

	go s.watch(conn, gen)
	return nil
}

// Stop gracefully shuts down the active connection. It is idempotent:
// stopping a stopped supervisor is a no-op.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Running || s.conn == nil {
		s.mu.Unlock()
		return nil
	}
	s.state = Stopping
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	err := conn.Shutdown(ctx)
	s.setStopped()
	if err != nil {
		s.log.Warn().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}

// Restart stops the running connection, re-resolves the binary
// location, and starts a new one. A restart requested while another is
// in flight is rejected with ErrAlreadyRestarting.
func (s *Supervisor) Restart(ctx context.Context) error {
	s.mu.Lock()
	if s.restarting {
		s.mu.Unlock()
		return ErrAlreadyRestarting
	}
	s.restarting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.restarting = false
		s.mu.Unlock()
	}()

	if err := s.Stop(ctx); err != nil {
		return err
	}
	return s.Start(ctx)
}

func (s *Supervisor) setStopped() {
	s.mu.Lock()
	s.state = Stopped
	s.mu.Unlock()
}

// watch waits for the transport to close. A closure that was not
// initiated through Stop is surfaced as an event; the connection is
// not respawned.
func (s *Supervisor) watch(conn Connection, gen uint64) {
	<-conn.DisconnectNotify()

	s.mu.Lock()
	unexpected := s.gen == gen && s.state == Running && s.conn == conn
	if unexpected {
		s.conn = nil
		s.state = Stopped
	}
	s.mu.Unlock()

	if !unexpected {
		return
	}
	s.log.Warn().Msg("language server connection closed unexpectedly; restart it manually")
	conn.Close()
	select {
	case s.events <- Event{Kind: EventUnexpectedClose}:
	default:
	}
}
