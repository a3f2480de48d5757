// Package discovery announces this instance on the LAN over UDP broadcast
// and reports announcements from other instances.
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"
)

const (
	// DefaultPort is the default UDP port for presence broadcasts
	DefaultPort = 37220
	// BroadcastInterval is how often to broadcast presence
	BroadcastInterval = 2 * time.Second
)

// Config configures a discovery Service
type Config struct {
	// Port to bind and broadcast to. Zero binds an ephemeral port and
	// broadcasts to it, which is only useful in tests.
	Port     int
	Name     string
	Interval time.Duration
	// BroadcastIP defaults to 255.255.255.255
	BroadcastIP net.IP
}

// Service owns the discovery socket and runs the broadcaster and listener on it
type Service struct {
	cfg     Config
	local   AddressSet
	handler ObservationHandler

	conn        net.PacketConn
	broadcaster *Broadcaster
	listener    *Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewService creates a new discovery service
func NewService(cfg Config, local AddressSet, handler ObservationHandler) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = BroadcastInterval
	}
	if cfg.BroadcastIP == nil {
		cfg.BroadcastIP = net.IPv4bcast
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:     cfg,
		local:   local,
		handler: handler,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start binds the socket and starts the broadcast and listen goroutines
func (s *Service) Start() error {
	lc := net.ListenConfig{Control: controlSocket}
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(s.cfg.Port))
	conn, err := lc.ListenPacket(s.ctx, "udp4", addr)
	if err != nil {
		return fmt.Errorf("failed to bind UDP port %d: %w", s.cfg.Port, err)
	}
	s.conn = conn

	port := conn.LocalAddr().(*net.UDPAddr).Port
	dest := &net.UDPAddr{IP: s.cfg.BroadcastIP, Port: port}

	s.broadcaster = NewBroadcaster(conn, dest, s.cfg.Name, s.cfg.Interval)
	s.listener = NewListener(s.local, s.handler)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.listener.Serve(s.ctx, conn)
	}()
	go func() {
		defer s.wg.Done()
		s.broadcaster.Run(s.ctx)
	}()

	log.Printf("[INFO] discovery: service started on UDP port %d as %q", port, s.cfg.Name)
	return nil
}

// Stop shuts down both goroutines and closes the socket
func (s *Service) Stop() {
	s.cancel()
	if s.conn != nil {
		s.conn.Close()
	}
	s.wg.Wait()
	log.Printf("[INFO] discovery: service stopped")
}

// SetName changes the announced name
func (s *Service) SetName(name string) {
	if s.broadcaster != nil {
		s.broadcaster.SetName(name)
	}
	s.cfg.Name = name
}

// Port returns the bound UDP port, or the configured port before Start
func (s *Service) Port() int {
	if s.conn == nil {
		return s.cfg.Port
	}
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}
