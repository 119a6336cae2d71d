// Package server serves repositories over the pkt-line transport: one
// goroutine per accepted connection, each running a single upload-pack or
// receive-pack conversation.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/odvcencio/gitcore/pkg/pktline"
	"github.com/odvcencio/gitcore/pkg/remote"
	"github.com/odvcencio/gitcore/pkg/repo"
)

// DefaultMaxPackBytes bounds the size of a pushed pack.
const DefaultMaxPackBytes = 1 << 30

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("server closed")

// Server accepts transport connections.
type Server struct {
	Loader       Loader
	Logger       *slog.Logger // nil discards
	MaxPackBytes int64        // zero means DefaultMaxPackBytes

	locks lockTable

	mu        sync.Mutex
	closed    bool
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	active    sync.WaitGroup
}

// New returns a Server for loader.
func New(loader Loader, logger *slog.Logger) *Server {
	return &Server{Loader: loader, Logger: logger}
}

func (s *Server) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s.Logger
}

func (s *Server) maxPackBytes() int64 {
	if s.MaxPackBytes <= 0 {
		return DefaultMaxPackBytes
	}
	return s.MaxPackBytes
}

// ListenAndServe listens on the TCP address addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done or Close is called,
// then waits for in-flight connections to finish. It always closes ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if !s.trackListener(ln, true) {
		ln.Close()
		return ErrServerClosed
	}
	defer s.trackListener(ln, false)

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	log := s.logger()
	log.Info("serving repositories", "addr", ln.Addr().String())

	var err error
accept:
	for {
		conn, acceptErr := ln.Accept()
		if acceptErr != nil {
			switch {
			case ctx.Err() != nil:
			case s.isClosed():
				err = ErrServerClosed
			case errors.Is(acceptErr, net.ErrClosed):
			default:
				var ne net.Error
				if errors.As(acceptErr, &ne) && ne.Timeout() {
					log.Warn("accept failed", "error", acceptErr)
					time.Sleep(5 * time.Millisecond)
					continue
				}
				err = acceptErr
			}
			break accept
		}
		if !s.trackConn(conn, true) {
			conn.Close()
			continue
		}
		s.active.Add(1)
		go func() {
			defer s.active.Done()
			defer s.trackConn(conn, false)
			defer conn.Close()
			s.handleConn(ctx, conn)
		}()
	}
	ln.Close()
	s.active.Wait()
	return err
}

// Close stops every listener and closes active connections.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	var errs []error
	for ln := range s.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()
	return errors.Join(errs...)
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) trackListener(ln net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closed {
			return false
		}
		if s.listeners == nil {
			s.listeners = make(map[net.Listener]struct{})
		}
		s.listeners[ln] = struct{}{}
	} else {
		delete(s.listeners, ln)
	}
	return true
}

func (s *Server) trackConn(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		if s.closed {
			return false
		}
		if s.conns == nil {
			s.conns = make(map[net.Conn]struct{})
		}
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
	}
	return true
}

// conn is the state of one connection.
type conn struct {
	net.Conn
	pr   *pktline.Reader
	pw   *pktline.Writer
	repo *repo.Repo
	name string
	log  *slog.Logger
}

func (s *Server) handleConn(ctx context.Context, nc net.Conn) {
	c := &conn{
		Conn: nc,
		pr:   pktline.NewReader(nc),
		pw:   pktline.NewWriter(nc),
		log:  s.logger().With("remote", nc.RemoteAddr().String()),
	}

	_, line, err := c.pr.ReadPacket()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			c.log.Debug("read request failed", "error", err)
		}
		return
	}
	if c.pr.Type() == pktline.Flush {
		c.fail(pktline.Errorf("expected request, got flush"))
		return
	}
	req, err := remote.ParseRequest(line)
	if err != nil {
		c.fail(err)
		return
	}
	c.log = c.log.With("service", req.Service, "repo", req.Repo)
	c.log.Info("connection accepted")

	r, err := s.Loader.Load(req.Repo)
	if err != nil {
		c.fail(err)
		return
	}
	c.repo = r
	c.name = req.Repo

	start := time.Now()
	switch req.Service {
	case remote.UploadPackService:
		err = s.uploadPack(ctx, c)
	case remote.ReceivePackService:
		err = s.receivePack(ctx, c)
	}
	if err != nil {
		c.fail(err)
		return
	}
	c.log.Debug("connection finished", "duration", time.Since(start))
}

// fail reports err to the peer as an ERR packet and logs it.
func (c *conn) fail(err error) {
	c.log.Warn("request rejected", "error", err)
	if werr := c.pw.WriteError(err.Error()); werr != nil {
		c.log.Debug("write ERR failed", "error", werr)
	}
}
