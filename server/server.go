package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/nixxel-company-limited/todo-receipts/adapter"
	"github.com/nixxel-company-limited/todo-receipts/logger"
	"go.uber.org/zap"
)

const (
	// MaxJobSize bounds a single relayed job.
	MaxJobSize = 16 << 20

	// ReadTimeout bounds how long a client may take to send its job.
	ReadTimeout = 30 * time.Second

	// DeliverTimeout bounds forwarding one job to the printer.
	DeliverTimeout = 60 * time.Second
)

// Server is a raw TCP print relay. Each client connection carries one job,
// terminated by the client closing its write side, which is forwarded to
// the transport once the whole job has arrived. Jobs are delivered one at a
// time.
type Server struct {
	transport adapter.Transport
	listener  net.Listener
	address   string
	mu        sync.Mutex
	running   bool
	conns     map[net.Conn]struct{}
	deliverMu sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	logger    *zap.Logger
}

// New creates a new server instance
func New(transport adapter.Transport, address string) *Server {
	return NewWithLogger(transport, address, logger.Named("relay"))
}

// NewWithLogger creates a new server instance with a custom logger
func NewWithLogger(transport adapter.Transport, address string, logger *zap.Logger) *Server {
	return &Server{
		transport: transport,
		address:   address,
		conns:     make(map[net.Conn]struct{}),
		logger:    logger,
	}
}

// Start starts the TCP server and blocks until Stop is called
func (s *Server) Start() error {
	if err := s.listen("blocking"); err != nil {
		return err
	}

	s.wg.Add(1)
	s.acceptConnections()
	return nil
}

// StartAsync starts the TCP server in a goroutine (non-blocking)
func (s *Server) StartAsync() error {
	if err := s.listen("async"); err != nil {
		return err
	}

	s.wg.Add(1)
	go s.acceptConnections()
	s.logger.Info("Server started in background, ready to accept connections")
	return nil
}

func (s *Server) listen(mode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Starting server",
		zap.String("address", s.address),
		zap.String("mode", mode),
		zap.Stringer("printer", s.transport))

	if s.running {
		s.logger.Error("Server already running")
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		s.logger.Error("Failed to start server", zap.Error(err))
		return fmt.Errorf("failed to start server: %w", err)
	}

	s.listener = listener
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.running = true
	s.logger.Info("Server listening", zap.Stringer("address", listener.Addr()))
	return nil
}

// acceptConnections handles incoming client connections
func (s *Server) acceptConnections() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.IsRunning() {
				s.logger.Debug("Server shutting down, stopping accept loop")
				return
			}
			s.logger.Warn("Error accepting connection", zap.Error(err))
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return
		}
		s.logger.Debug("Client connected", zap.Stringer("client", conn.RemoteAddr()))
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
}

// handleConnection reads one job from conn and forwards it
func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer conn.Close()

	client := conn.RemoteAddr().String()
	log := s.logger.With(zap.String("client", client))

	if err := conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		log.Debug("Failed to set read deadline", zap.Error(err))
	}

	job, err := io.ReadAll(io.LimitReader(conn, MaxJobSize+1))
	if err != nil {
		log.Warn("Error reading from client", zap.Error(err))
		return
	}
	if len(job) == 0 {
		log.Debug("Client closed connection without sending data")
		return
	}
	if len(job) > MaxJobSize {
		log.Warn("Job too large, dropped", zap.Int("limit", MaxJobSize))
		return
	}

	log.Info("Received job", zap.Int("bytes", len(job)))
	if err := s.deliver(job); err != nil {
		log.Error("Error forwarding job to printer", zap.Error(err))
		return
	}
	log.Info("Job printed", zap.Int("bytes", len(job)))
}

func (s *Server) deliver(job []byte) error {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, DeliverTimeout)
	defer cancel()
	return s.transport.Deliver(ctx, job)
}

// Stop stops the TCP server
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		s.logger.Debug("Stop called but server is not running")
		return nil
	}

	s.logger.Info("Stopping server...")
	s.running = false
	listener := s.listener
	for conn := range s.conns {
		conn.Close()
	}
	s.cancel()
	s.mu.Unlock()

	if err := listener.Close(); err != nil {
		s.logger.Debug("Error closing listener", zap.Error(err))
	}

	s.wg.Wait()
	s.logger.Info("Server stopped successfully")
	return nil
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Address returns the configured listen address
func (s *Server) Address() string {
	return s.address
}

// Addr returns the bound listener address, or nil before the server starts
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// GetTransport returns the underlying transport
func (s *Server) GetTransport() adapter.Transport {
	return s.transport
}
