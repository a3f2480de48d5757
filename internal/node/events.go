package node

import (
	"sync"

	"github.com/nodemailer/nodemailer/internal/messaging"
	"github.com/nodemailer/nodemailer/internal/registry"
)

// EventType identifies what happened
type EventType int

const (
	// EventMessageReceived carries a mail delivered by a peer
	EventMessageReceived EventType = iota
	// EventShutdownRequested means a shutdown envelope arrived on the messaging port
	EventShutdownRequested
	// EventPeerListChanged carries a snapshot of the peer list after a change
	EventPeerListChanged
)

func (t EventType) String() string {
	switch t {
	case EventMessageReceived:
		return "message_received"
	case EventShutdownRequested:
		return "shutdown_requested"
	case EventPeerListChanged:
		return "peer_list_changed"
	default:
		return "unknown"
	}
}

// Event is delivered to the application layer through Node.Events
type Event struct {
	Type EventType
	// Mail is set for EventMessageReceived
	Mail messaging.Mail
	// Peers is set for EventPeerListChanged
	Peers []registry.Peer
}

const eventBuffer = 64

// eventQueue is an unbounded FIFO between the reactor and the forwarder.
// Mail and shutdown events are never dropped; a pending peer-list event is
// replaced by a newer snapshot.
type eventQueue struct {
	mu      sync.Mutex
	pending []Event
	wake    chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{wake: make(chan struct{}, 1)}
}

// push never blocks
func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if ev.Type == EventPeerListChanged {
		for i := range q.pending {
			if q.pending[i].Type == EventPeerListChanged {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				break
			}
		}
	}
	q.pending = append(q.pending, ev)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return Event{}, false
	}
	ev := q.pending[0]
	q.pending[0] = Event{}
	q.pending = q.pending[1:]
	return ev, true
}

// emit runs on the reactor goroutine
func (n *Node) emit(ev Event) {
	n.queue.push(ev)
}

func (n *Node) emitPeers() {
	n.emit(Event{Type: EventPeerListChanged, Peers: n.registry.Peers()})
}

// forward moves queued events to the Events channel in order until the
// reactor exits, then closes the channel
func (n *Node) forward() {
	defer close(n.events)
	for {
		ev, ok := n.queue.pop()
		if !ok {
			select {
			case <-n.queue.wake:
				continue
			case <-n.done:
				return
			}
		}
		select {
		case n.events <- ev:
		case <-n.done:
			return
		}
	}
}
