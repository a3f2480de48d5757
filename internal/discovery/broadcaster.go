package discovery

import (
	"context"
	"log"
	"net"
	"sync"
	"time"
)

// Broadcaster periodically announces this instance's name
type Broadcaster struct {
	conn     net.PacketConn
	dest     net.Addr
	interval time.Duration

	mu      sync.RWMutex
	name    string
	payload []byte
}

// NewBroadcaster creates a broadcaster that writes to dest through conn
func NewBroadcaster(conn net.PacketConn, dest net.Addr, name string, interval time.Duration) *Broadcaster {
	b := &Broadcaster{
		conn:     conn,
		dest:     dest,
		interval: interval,
	}
	b.SetName(name)
	return b
}

// SetName changes the announced name from the next tick on
func (b *Broadcaster) SetName(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.name = name
	b.payload = EncodeAnnouncement(name)
}

// Name returns the currently announced name
func (b *Broadcaster) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

// Announce sends one announcement
func (b *Broadcaster) Announce() error {
	b.mu.RLock()
	payload := b.payload
	b.mu.RUnlock()

	_, err := b.conn.WriteTo(payload, b.dest)
	return err
}

// Run announces immediately and then every interval until ctx is done.
// Send failures are logged and retried on the next tick.
func (b *Broadcaster) Run(ctx context.Context) {
	b.announce(ctx)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.announce(ctx)
		}
	}
}

func (b *Broadcaster) announce(ctx context.Context) {
	if err := b.Announce(); err != nil {
		// Broadcast failures are common with no network; don't spam above DEBUG
		if ctx.Err() == nil {
			log.Printf("[DEBUG] discovery: broadcast to %s failed: %v", b.dest, err)
		}
	}
}
