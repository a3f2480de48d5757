package discovery

import (
	"context"
	"errors"
	"log"
	"net"
	"time"

	"golang.org/x/net/ipv4"
)

// Observation is one decoded announcement from a remote instance
type Observation struct {
	Name    string
	Address string
}

// ObservationHandler receives observations from the listener goroutine
type ObservationHandler func(Observation)

// Listener decodes incoming announcements and filters out our own
type Listener struct {
	local   AddressSet
	handler ObservationHandler
}

// NewListener creates a listener that ignores datagrams from local addresses
func NewListener(local AddressSet, handler ObservationHandler) *Listener {
	return &Listener{local: local, handler: handler}
}

// HandleDatagram processes one datagram from src.
// Returns true if an observation was delivered to the handler.
func (l *Listener) HandleDatagram(data []byte, src net.IP) bool {
	return l.handle(data, src, nil)
}

func (l *Listener) handle(data []byte, src net.IP, cm *ipv4.ControlMessage) bool {
	a, err := DecodeAnnouncement(data)
	if err != nil {
		if cm != nil {
			log.Printf("[DEBUG] discovery: dropped datagram from %s (dst %s, ifindex %d): %v",
				src, cm.Dst, cm.IfIndex, err)
		}
		return false
	}
	if l.local.Contains(src) {
		return false
	}
	l.handler(Observation{Name: a.Name, Address: src.String()})
	return true
}

// Serve reads datagrams from conn until ctx is done or conn is closed
func (l *Listener) Serve(ctx context.Context, conn net.PacketConn) {
	p := ipv4.NewPacketConn(conn)
	if err := p.SetControlMessage(ipv4.FlagDst|ipv4.FlagInterface, true); err != nil {
		log.Printf("[DEBUG] discovery: control messages unavailable: %v", err)
	}

	buf := make([]byte, MaxDatagramSize)
	for {
		if ctx.Err() != nil {
			return
		}

		// Read deadline allows a periodic ctx check
		p.SetReadDeadline(time.Now().Add(1 * time.Second))

		n, cm, src, err := p.ReadFrom(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			log.Printf("[WARN] discovery: read error: %v", err)
			continue
		}

		udpAddr, ok := src.(*net.UDPAddr)
		if !ok {
			continue
		}

		l.handle(buf[:n], udpAddr.IP, cm)
	}
}
