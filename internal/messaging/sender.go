package messaging

import (
	"context"
	"log"
	"net"
	"strconv"
	"time"
)

const (
	// DefaultConnectTimeout bounds the outbound connect
	DefaultConnectTimeout = 500 * time.Millisecond
	// DefaultWriteTimeout bounds writing one envelope
	DefaultWriteTimeout = 10 * time.Second
)

// Sender opens one short-lived connection per message
type Sender struct {
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
}

// NewSender creates a sender with the given connect timeout
func NewSender(connectTimeout time.Duration) *Sender {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Sender{
		ConnectTimeout: connectTimeout,
		WriteTimeout:   DefaultWriteTimeout,
	}
}

// SendMail delivers m to host:port.
// Failures are returned as *ConnectionError.
func (s *Sender) SendMail(ctx context.Context, m Mail, host string, port int) error {
	payload, err := EncodeMail(m)
	if err != nil {
		return err
	}
	return s.send(ctx, payload, net.JoinHostPort(host, strconv.Itoa(port)))
}

// SendShutdown asks the instance listening on localhost:port to exit.
// Errors are only logged since there may be no instance running.
func (s *Sender) SendShutdown(ctx context.Context, port int) {
	addr := net.JoinHostPort("localhost", strconv.Itoa(port))
	if err := s.send(ctx, EncodeShutdown(), addr); err != nil {
		log.Printf("[DEBUG] messaging: shutdown signal not delivered: %v", err)
	}
}

func (s *Sender) send(ctx context.Context, payload []byte, addr string) error {
	dialer := net.Dialer{Timeout: s.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &ConnectionError{Addr: addr, Reason: ReasonUnreachable, Err: err}
	}
	defer conn.Close()

	if s.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout))
	}
	if _, err := conn.Write(payload); err != nil {
		return &ConnectionError{Addr: addr, Reason: ReasonWriteFailed, Err: err}
	}

	// Half-close so the receiver sees EOF and decodes the body
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			return &ConnectionError{Addr: addr, Reason: ReasonWriteFailed, Err: err}
		}
	}

	log.Printf("[DEBUG] messaging: sent %d bytes to %s", len(payload), addr)
	return nil
}
