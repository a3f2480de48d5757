// Package node runs one nodemailer instance: discovery, the peer registry and
// the mail server, all driven by a single reactor goroutine.
//
// The reactor is the only goroutine that touches the registry. Socket
// goroutines hand their results to it over channels, and public methods
// submit closures that run on it.
package node

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nodemailer/nodemailer/internal/config"
	"github.com/nodemailer/nodemailer/internal/discovery"
	"github.com/nodemailer/nodemailer/internal/messaging"
	"github.com/nodemailer/nodemailer/internal/registry"
)

// ErrStopped is returned by calls made after the reactor has exited
var ErrStopped = errors.New("node stopped")

// Config holds the runtime settings of a node
type Config struct {
	Name string

	BroadcastPort int
	// BroadcastIP defaults to 255.255.255.255
	BroadcastIP net.IP
	// MessagingAddr is the listen address of the mail server
	MessagingAddr string
	// MessagingPort is the port mail is sent to on peers
	MessagingPort int

	BroadcastInterval time.Duration
	StaleAfter        time.Duration
	SweepInterval     time.Duration
	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	MaxMessageBytes   int
}

// ConfigFrom converts the file configuration into node settings
func ConfigFrom(c *config.Config, name string) Config {
	return Config{
		Name:              name,
		BroadcastPort:     c.BroadcastPort,
		MessagingAddr:     net.JoinHostPort("0.0.0.0", strconv.Itoa(c.MessagingPort)),
		MessagingPort:     c.MessagingPort,
		BroadcastInterval: c.BroadcastInterval(),
		StaleAfter:        c.StaleAfter(),
		SweepInterval:     c.SweepInterval(),
		ConnectTimeout:    c.ConnectTimeout(),
		ReadTimeout:       c.ReadTimeout(),
		MaxMessageBytes:   c.MaxMessageBytes,
	}
}

// MailSender delivers one mail to host:port
type MailSender interface {
	SendMail(ctx context.Context, m messaging.Mail, host string, port int) error
}

// Deps are the collaborators of a node. Zero values get defaults.
type Deps struct {
	Favorites registry.FavoritesStore
	// LocalAddrs is computed from the interfaces when nil
	LocalAddrs discovery.AddressSet
	Sender     MailSender
	Clock      func() time.Time
}

// Status is a snapshot of the running node
type Status struct {
	Name          string
	Peers         int
	Favorites     int
	BroadcastPort int
	MessagingAddr string
	StartedAt     time.Time
}

// Node is one running instance
type Node struct {
	cfg      Config
	registry *registry.Registry
	sender   MailSender
	now      func() time.Time
	local    discovery.AddressSet

	discovery *discovery.Service
	server    *messaging.Server

	observations chan discovery.Observation
	mail         chan messaging.Mail
	shutdown     chan struct{}
	calls        chan func()
	events       chan Event
	queue        *eventQueue

	mu        sync.RWMutex
	name      string
	startedAt time.Time

	ready    chan struct{}
	done     chan struct{}
	runOnce  sync.Once
	stopOnce sync.Once
}

// New creates a node; nothing is bound until Run
func New(cfg Config, deps Deps) (*Node, error) {
	if cfg.Name == "" {
		return nil, errors.New("node name is required")
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = registry.StaleThreshold
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = registry.StaleThreshold
	}
	if cfg.MessagingAddr == "" {
		cfg.MessagingAddr = net.JoinHostPort("0.0.0.0", strconv.Itoa(messaging.DefaultPort))
	}
	if cfg.MessagingPort == 0 {
		cfg.MessagingPort = messaging.DefaultPort
	}

	local := deps.LocalAddrs
	if local == nil {
		addrs, err := discovery.LocalAddresses()
		if err != nil {
			return nil, err
		}
		local = addrs
	}

	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	sender := deps.Sender
	if sender == nil {
		sender = messaging.NewSender(cfg.ConnectTimeout)
	}

	n := &Node{
		cfg:          cfg,
		registry:     registry.New(deps.Favorites, registry.WithClock(now)),
		sender:       sender,
		now:          now,
		local:        local,
		observations: make(chan discovery.Observation, 64),
		mail:         make(chan messaging.Mail),
		shutdown:     make(chan struct{}, 1),
		calls:        make(chan func()),
		events:       make(chan Event, eventBuffer),
		queue:        newEventQueue(),
		name:         cfg.Name,
		ready:        make(chan struct{}),
		done:         make(chan struct{}),
	}
	return n, nil
}

// Events returns the event stream. It is closed when Run returns.
func (n *Node) Events() <-chan Event {
	return n.events
}

// Ready is closed once the sockets are bound
func (n *Node) Ready() <-chan struct{} {
	return n.ready
}

// Done is closed when the reactor has exited
func (n *Node) Done() <-chan struct{} {
	return n.done
}

// Run binds the sockets and runs the reactor until ctx is cancelled.
// A node can only be run once.
func (n *Node) Run(ctx context.Context) error {
	err := errors.New("node already started")
	n.runOnce.Do(func() {
		err = n.run(ctx)
	})
	return err
}

func (n *Node) run(ctx context.Context) error {
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		n.forward()
	}()
	defer func() { <-forwarded }()
	defer n.stopOnce.Do(func() { close(n.done) })

	server := messaging.NewServer(n.cfg.MessagingAddr, n, messaging.ServerOptions{
		ReadTimeout:    n.cfg.ReadTimeout,
		MaxMessageSize: n.cfg.MaxMessageBytes,
	})
	if err := server.Start(); err != nil {
		return err
	}

	// Hold the lock so a concurrent SetName lands either before or after the bind
	n.mu.Lock()
	disc := discovery.NewService(discovery.Config{
		Port:        n.cfg.BroadcastPort,
		Name:        n.name,
		Interval:    n.cfg.BroadcastInterval,
		BroadcastIP: n.cfg.BroadcastIP,
	}, n.local, n.observe)
	if err := disc.Start(); err != nil {
		n.mu.Unlock()
		server.Stop()
		return err
	}
	n.server = server
	n.discovery = disc
	n.startedAt = n.now()
	n.mu.Unlock()
	close(n.ready)

	log.Printf("[INFO] node: %q running (%d local addresses)", n.Name(), len(n.local))
	n.loop(ctx)

	// Unblock socket goroutines waiting on the reactor before stopping them
	n.stopOnce.Do(func() { close(n.done) })
	disc.Stop()
	server.Stop()
	log.Printf("[INFO] node: stopped")
	return nil
}

func (n *Node) loop(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case o := <-n.observations:
			n.handleObservation(o)

		case m := <-n.mail:
			n.emit(Event{Type: EventMessageReceived, Mail: m})

		case <-n.shutdown:
			n.emit(Event{Type: EventShutdownRequested})

		case <-ticker.C:
			n.sweep()

		case fn := <-n.calls:
			fn()
		}
	}
}

func (n *Node) handleObservation(o discovery.Observation) {
	prev, known := n.registry.Find(o.Name)
	p, created := n.registry.Upsert(o.Name, o.Address)
	switch {
	case created:
		log.Printf("[INFO] node: discovered peer %q at %s", p.Name, p.Address)
	case known && prev.Address != p.Address:
		log.Printf("[INFO] node: peer %q moved %s -> %s", p.Name, prev.Address, p.Address)
	default:
		return
	}
	n.emitPeers()
}

func (n *Node) sweep() []registry.Peer {
	removed := n.registry.RemoveStale(n.now(), n.cfg.StaleAfter)
	if len(removed) == 0 {
		return nil
	}
	for _, p := range removed {
		log.Printf("[INFO] node: peer %q marked stale (no broadcast for %v)", p.Name, n.cfg.StaleAfter)
	}
	n.emitPeers()
	return removed
}

// observe is the discovery handler; it runs on the listener goroutine
func (n *Node) observe(o discovery.Observation) {
	select {
	case n.observations <- o:
	case <-n.done:
	}
}

// OnMessageReceived implements messaging.Handler
func (n *Node) OnMessageReceived(m messaging.Mail) {
	select {
	case n.mail <- m:
	case <-n.done:
	}
}

// OnShutdownRequested implements messaging.Handler
func (n *Node) OnShutdownRequested() {
	select {
	case n.shutdown <- struct{}{}:
	default:
		// one pending request is enough
	}
}

// do runs fn on the reactor goroutine and waits for it to finish
func (n *Node) do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	call := func() {
		defer close(finished)
		fn()
	}

	select {
	case n.calls <- call:
	case <-ctx.Done():
		return ctx.Err()
	case <-n.done:
		return ErrStopped
	}

	// Once accepted the call always runs to completion
	<-finished
	return nil
}

// Peers returns the known peers in display order
func (n *Node) Peers(ctx context.Context) ([]registry.Peer, error) {
	var peers []registry.Peer
	err := n.do(ctx, func() {
		peers = n.registry.Peers()
	})
	return peers, err
}

// FindPeer looks up a peer by exact name
func (n *Node) FindPeer(ctx context.Context, name string) (registry.Peer, error) {
	var (
		p  registry.Peer
		ok bool
	)
	if err := n.do(ctx, func() {
		p, ok = n.registry.Find(name)
	}); err != nil {
		return registry.Peer{}, err
	}
	if !ok {
		return registry.Peer{}, fmt.Errorf("%w: %s", registry.ErrPeerNotFound, name)
	}
	return p, nil
}

// ToggleFavorite flips and persists the favorite flag of a peer
func (n *Node) ToggleFavorite(ctx context.Context, name string) (registry.Peer, error) {
	var (
		p     registry.Peer
		opErr error
	)
	if err := n.do(ctx, func() {
		p, opErr = n.registry.ToggleFavorite(name)
		if opErr == nil {
			n.emitPeers()
		}
	}); err != nil {
		return registry.Peer{}, err
	}
	return p, opErr
}

// ReloadFavorites re-reads the favorites store. Returns whether any flag changed.
func (n *Node) ReloadFavorites(ctx context.Context) (bool, error) {
	var changed bool
	err := n.do(ctx, func() {
		changed = n.registry.ReloadFavorites()
		if changed {
			n.emitPeers()
		}
	})
	return changed, err
}

// Sweep removes stale peers now instead of waiting for the next tick
func (n *Node) Sweep(ctx context.Context) ([]registry.Peer, error) {
	var removed []registry.Peer
	err := n.do(ctx, func() {
		removed = n.sweep()
	})
	return removed, err
}

// SendMail sends a message to the named peer.
// The address is resolved on the reactor; the bounded connect and write run on
// the caller's goroutine.
func (n *Node) SendMail(ctx context.Context, peerName, message, nodeString string) (messaging.Mail, error) {
	p, err := n.FindPeer(ctx, peerName)
	if err != nil {
		return messaging.Mail{}, err
	}

	m := messaging.NewMail(n.Name(), message, nodeString)
	if err := n.sender.SendMail(ctx, m, p.Address, n.cfg.MessagingPort); err != nil {
		return messaging.Mail{}, err
	}
	log.Printf("[INFO] node: sent mail to %q at %s", p.Name, p.Address)
	return m, nil
}

// SetName changes the announced name
func (n *Node) SetName(name string) {
	n.mu.Lock()
	old := n.name
	n.name = name
	if n.discovery != nil {
		n.discovery.SetName(name)
	}
	n.mu.Unlock()

	if old != name {
		log.Printf("[INFO] node: renamed %q -> %q", old, name)
	}
}

// Name returns the announced name
func (n *Node) Name() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.name
}

// Status returns a snapshot for the control plane
func (n *Node) Status(ctx context.Context) (Status, error) {
	var st Status
	err := n.do(ctx, func() {
		peers := n.registry.Peers()
		st.Peers = len(peers)
		for _, p := range peers {
			if p.Favorite {
				st.Favorites++
			}
		}
	})
	if err != nil {
		return Status{}, err
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	st.Name = n.name
	st.StartedAt = n.startedAt
	if n.discovery != nil {
		st.BroadcastPort = n.discovery.Port()
	}
	if n.server != nil {
		st.MessagingAddr = n.server.Addr().String()
	}
	return st, nil
}

// MessagingAddr returns the bound mail server address, nil before Ready
func (n *Node) MessagingAddr() net.Addr {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.server == nil {
		return nil
	}
	return n.server.Addr()
}
