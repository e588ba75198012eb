// Package server wires the transports to the session engine: a TCP accept
// loop (and optionally a WebSocket endpoint) spawning one session goroutine
// per connection, plus the online-user registry used to route pushes.
package server

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"

	"chatterserver/internal/directory"
	"chatterserver/internal/messaging"
	"chatterserver/internal/social"
	"chatterserver/internal/store"
)

const writeWait = 10 * time.Second

// Deps carries the shared state every session operates on.
type Deps struct {
	Logger    *slog.Logger
	Directory *directory.Directory
	Graph     *social.Graph
	Messages  *messaging.Store
	Registry  *Registry
	Saver     *store.Saver
}

type Server struct {
	logger    *slog.Logger
	directory *directory.Directory
	graph     *social.Graph
	messages  *messaging.Store
	registry  *Registry
	saver     *store.Saver

	mu       sync.Mutex
	listener net.Listener
	sessions map[*Session]struct{}
	closed   bool

	wg sync.WaitGroup
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := deps.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Server{
		logger:    logger,
		directory: deps.Directory,
		graph:     deps.Graph,
		messages:  deps.Messages,
		registry:  registry,
		saver:     deps.Saver,
		sessions:  make(map[*Session]struct{}),
	}
}

func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections until the listener is closed. Session failures
// never propagate here; each connection's faults stay on its own goroutine.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return errors.New("server is shut down")
	}
	s.listener = l
	s.mu.Unlock()

	s.logger.Info("server listening", "addr", l.Addr().String())
	for {
		conn, err := l.Accept()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil
			}
			return err
		}
		s.logger.Debug("client connected", "remote", conn.RemoteAddr().String())
		s.startSession(newNetLineConn(conn))
	}
}

// startSession runs the protocol engine for one connection on its own
// goroutine.
func (s *Server) startSession(conn lineConn) {
	sess := &Session{id: xid.New().String(), conn: conn, srv: s}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		sess.run()
	}()
}

// runSession is startSession for transports that already own a goroutine
// (the WebSocket handler); it blocks until the session ends.
func (s *Server) runSession(conn lineConn) {
	sess := &Session{id: xid.New().String(), conn: conn, srv: s}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	s.wg.Add(1)
	defer s.wg.Done()
	sess.run()
}

// persist writes a snapshot after a mutating command. A nil saver (tests,
// ephemeral servers) makes this a no-op.
func (s *Server) persist() {
	if s.saver != nil {
		s.saver.Persist()
	}
}

func (s *Server) dropSession(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// Shutdown announces the stop to online users, closes the listener and all
// live connections, and waits for session goroutines to finish or the
// context to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	l := s.listener
	open := make([]*Session, 0, len(s.sessions))
	for sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	s.registry.Broadcast("SERVER_SHUTDOWN")

	if l != nil {
		l.Close()
	}
	for _, sess := range open {
		sess.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// netLineConn frames a net.Conn as newline-terminated lines. Writes are
// serialized so pushes routed from other sessions cannot interleave with
// replies.
type netLineConn struct {
	conn    net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex
}

func newNetLineConn(conn net.Conn) *netLineConn {
	return &netLineConn{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *netLineConn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (c *netLineConn) WriteLine(line string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	_, err := c.conn.Write([]byte(line + "\n"))
	return err
}

func (c *netLineConn) Close() error { return c.conn.Close() }

func (c *netLineConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }
