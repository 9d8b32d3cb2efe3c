package uds

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
)

// sendQueueSize is how many outbound lines a client may have pending. A
// client that falls this far behind is disconnected rather than allowed to
// stall Broadcast.
const sendQueueSize = 1024

// HandlerFunc processes a request and returns a response payload or error.
type HandlerFunc func(ctx context.Context, req Message) (any, error)

// Server listens on a Unix domain socket and dispatches NDJSON requests.
type Server struct {
	socketPath string
	listener   net.Listener
	handlers   map[string]HandlerFunc
	clients    map[*clientConn]struct{}
	ready      chan struct{}
	mu         sync.RWMutex
	logger     *slog.Logger
}

// clientConn owns one connection. All writes go through send and are
// performed by writeLoop, so neither handlers nor Broadcast ever block on
// the socket.
type clientConn struct {
	net.Conn
	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newClientConn(conn net.Conn) *clientConn {
	return &clientConn{
		Conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		closed: make(chan struct{}),
	}
}

func (c *clientConn) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.Conn.Close()
	})
}

// offer queues line without blocking. It reports false when the queue is full.
func (c *clientConn) offer(line []byte) bool {
	select {
	case <-c.closed:
		return true
	default:
	}
	select {
	case c.send <- line:
		return true
	default:
		return false
	}
}

// push queues line, waiting for room. Responses use it so a reply is never
// dropped in favour of an event.
func (c *clientConn) push(line []byte) error {
	select {
	case c.send <- line:
		return nil
	case <-c.closed:
		return net.ErrClosed
	}
}

func (c *clientConn) writeLoop(logger *slog.Logger) {
	for {
		select {
		case line := <-c.send:
			if _, err := c.Write(line); err != nil {
				logger.Debug("client write error", "err", err)
				c.close()
				return
			}
		case <-c.closed:
			return
		}
	}
}

// NewServer creates a new UDS server.
func NewServer(socketPath string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		handlers:   make(map[string]HandlerFunc),
		clients:    make(map[*clientConn]struct{}),
		ready:      make(chan struct{}),
		logger:     logger,
	}
}

// Handle registers a handler for a method. Call before Start.
func (s *Server) Handle(method string, h HandlerFunc) {
	s.handlers[method] = h
}

// Ready is closed once the socket is accepting connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Start listens until ctx is cancelled. A stale socket file is removed first.
func (s *Server) Start(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.socketPath, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.ready)
	s.logger.Info("server listening", "socket", s.socketPath)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Error("accept error", "err", err)
			continue
		}
		c := newClientConn(conn)
		s.mu.Lock()
		s.clients[c] = struct{}{}
		s.mu.Unlock()
		go c.writeLoop(s.logger)
		go s.handleConn(ctx, c)
	}
}

// Broadcast queues an event for every connected client and never blocks.
// Clients whose queue is full are disconnected.
func (s *Server) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("broadcast marshal error", "err", err)
		return
	}
	line := append(data, '\n')

	var slow []*clientConn
	s.mu.RLock()
	for c := range s.clients {
		if !c.offer(line) {
			slow = append(slow, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range slow {
		s.logger.Warn("disconnecting client that stopped reading", "pending", len(c.send))
		c.close()
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Shutdown closes the listener and all clients and removes the socket file.
func (s *Server) Shutdown() {
	s.mu.Lock()
	if s.listener != nil {
		s.listener.Close()
	}
	for c := range s.clients {
		c.close()
	}
	s.mu.Unlock()
	os.Remove(s.socketPath)
}

func (s *Server) handleConn(ctx context.Context, c *clientConn) {
	defer func() {
		c.close()
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
	}()

	scanner := bufio.NewScanner(c)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		var msg Message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			s.logger.Warn("invalid message", "err", err)
			continue
		}
		if msg.Type != MsgTypeReq {
			continue
		}

		var resp Message
		handler, ok := s.handlers[msg.Method]
		if !ok {
			resp = NewErrorResponse(msg.ID, msg.Method, fmt.Sprintf("unknown method: %s", msg.Method))
		} else if result, err := handler(ctx, msg); err != nil {
			resp = NewErrorResponse(msg.ID, msg.Method, err.Error())
		} else if resp, err = NewResponse(msg.ID, msg.Method, result); err != nil {
			resp = NewErrorResponse(msg.ID, msg.Method, err.Error())
		}
		s.writeMessage(c, resp)
	}
}

func (s *Server) writeMessage(c *clientConn, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("marshal response error", "err", err)
		return
	}
	if err := c.push(append(data, '\n')); err != nil {
		s.logger.Debug("write response error", "err", err)
	}
}
