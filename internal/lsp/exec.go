package lsp

import (
	"context"
	"net"
	"os"
	"os/exec"

	"github.com/pkg/errors"
)

// Server is a language server process spoken to over its standard
// input/output.
type Server struct {
	cmd      *exec.Cmd
	protocol net.Conn
	Conn     *Conn
}

// Close tears the connection down without the shutdown handshake.
func (s *Server) Close() {
	if s != nil {
		s.Conn.Close()
		s.protocol.Close()
	}
}

// DisconnectNotify returns a channel that is closed when the
// connection goes away.
func (s *Server) DisconnectNotify() <-chan struct{} {
	return s.Conn.DisconnectNotify()
}

// Shutdown asks the server to exit gracefully and closes the transport.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	err := s.Conn.Shutdown(ctx)
	s.protocol.Close()
	return err
}

// StartServer spawns the executable at path and connects to it over
// stdin/stdout.
func StartServer(ctx context.Context, path string, cfg ClientConfig) (*Server, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, "invalid server binary path %q", path)
	}

	p0, p1 := net.Pipe()
	cmd := exec.Command(path)
	cmd.Stdin = p0
	cmd.Stdout = p0
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		p0.Close()
		p1.Close()
		return nil, errors.Wrapf(err, "failed to execute language server %q", path)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			cfg.Log.Debug().Err(err).Str("path", path).Msg("language server exited")
		}
		// Unblock any pending transport reads once the process is gone.
		p0.Close()
	}()

	conn, err := New(ctx, p1, cfg)
	if err != nil {
		cmd.Process.Kill()
		return nil, errors.Wrapf(err, "failed to connect to language server %q", path)
	}
	return &Server{
		cmd:      cmd,
		protocol: p1,
		Conn:     conn,
	}, nil
}
