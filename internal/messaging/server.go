package messaging

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultPort is the default TCP port for direct messages
	DefaultPort = 37221
	// DefaultReadTimeout drops a connection that stays idle this long
	DefaultReadTimeout = 30 * time.Second
	// DefaultMaxMessageSize caps the body of one connection
	DefaultMaxMessageSize = 32 << 20

	readChunkSize = 32 * 1024
)

var errMessageTooLarge = errors.New("message exceeds size limit")

// Handler receives decoded envelopes.
// Calls arrive from connection goroutines and may be concurrent.
type Handler interface {
	OnMessageReceived(m Mail)
	OnShutdownRequested()
}

// ServerOptions tunes connection limits
type ServerOptions struct {
	ReadTimeout    time.Duration
	MaxMessageSize int
}

// receivingConnection is one inbound stream and the bytes read from it so far
type receivingConnection struct {
	id     uuid.UUID
	conn   net.Conn
	buffer bytes.Buffer
}

// Server accepts inbound mail connections
type Server struct {
	addr    string
	handler Handler
	opts    ServerOptions

	ln net.Listener

	mu      sync.Mutex
	open    map[uuid.UUID]*receivingConnection
	stopped bool

	wg sync.WaitGroup
}

// NewServer creates a server that will listen on addr (e.g. ":37221")
func NewServer(addr string, handler Handler, opts ServerOptions) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = DefaultMaxMessageSize
	}
	return &Server{
		addr:    addr,
		handler: handler,
		opts:    opts,
		open:    make(map[uuid.UUID]*receivingConnection),
	}
}

// Start binds the listener and begins accepting connections
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.ln = ln

	s.wg.Add(1)
	go s.acceptLoop()

	log.Printf("[INFO] messaging: listening on %s", ln.Addr())
	return nil
}

// Stop closes the listener and every open connection, then waits for handlers to finish
func (s *Server) Stop() error {
	s.mu.Lock()
	s.stopped = true
	for _, rc := range s.open {
		rc.conn.Close()
	}
	s.mu.Unlock()

	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}
	s.wg.Wait()
	log.Printf("[INFO] messaging: server stopped")
	return err
}

// Addr returns the bound address, nil before Start
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// OpenConnections returns the number of connections still receiving
func (s *Server) OpenConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.open)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[WARN] messaging: accept error: %v", err)
			continue
		}

		rc := &receivingConnection{id: uuid.New(), conn: conn}
		if !s.track(rc) {
			conn.Close()
			return
		}

		s.wg.Add(1)
		go s.receive(rc)
	}
}

func (s *Server) track(rc *receivingConnection) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.open[rc.id] = rc
	return true
}

func (s *Server) untrack(rc *receivingConnection) {
	s.mu.Lock()
	delete(s.open, rc.id)
	s.mu.Unlock()
	rc.conn.Close()
}

// receive accumulates the stream until EOF, then decodes it once
func (s *Server) receive(rc *receivingConnection) {
	defer s.wg.Done()
	defer s.untrack(rc)

	if err := s.readAll(rc); err != nil {
		log.Printf("[DEBUG] messaging: dropped connection %s from %s: %v",
			rc.id, rc.conn.RemoteAddr(), err)
		return
	}

	env, err := DecodeEnvelope(rc.buffer.Bytes())
	if err != nil {
		log.Printf("[DEBUG] messaging: dropped connection %s from %s: %v",
			rc.id, rc.conn.RemoteAddr(), err)
		return
	}

	switch env.Type {
	case EnvelopeShutdown:
		log.Printf("[INFO] messaging: shutdown requested by %s", rc.conn.RemoteAddr())
		s.handler.OnShutdownRequested()
	case EnvelopeMail:
		log.Printf("[INFO] messaging: mail from %q (%s)", env.Mail.SenderName, rc.conn.RemoteAddr())
		s.handler.OnMessageReceived(*env.Mail)
	}
}

func (s *Server) readAll(rc *receivingConnection) error {
	chunk := make([]byte, readChunkSize)
	for {
		rc.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))

		n, err := rc.conn.Read(chunk)
		if n > 0 {
			if rc.buffer.Len()+n > s.opts.MaxMessageSize {
				return fmt.Errorf("%w: %w", ErrMalformedMessage, errMessageTooLarge)
			}
			rc.buffer.Write(chunk[:n])
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
