// Package registry provides the in-memory set of peers discovered on the LAN
package registry

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"
)

const (
	// StaleThreshold is how long a peer may go without announcing before it is removed
	StaleThreshold = 30 * time.Second
)

// ErrPeerNotFound is returned when an operation names a peer that is not in the registry
var ErrPeerNotFound = errors.New("peer not found")

// FavoritesStore persists the set of favorited peer names
type FavoritesStore interface {
	Get() ([]string, error)
	Set(names []string) error
}

// Peer is a remote instance known to this process
type Peer struct {
	Name     string
	Address  string
	Favorite bool
	LastSeen time.Time
}

// Registry holds the known peers in display order (favorites first).
// It is not safe for concurrent use; the node reactor owns it.
type Registry struct {
	peers []*Peer
	index map[string]*Peer
	store FavoritesStore
	now   func() time.Time
}

// Option configures a Registry
type Option func(*Registry)

// WithClock overrides the time source used for LastSeen
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New creates an empty registry backed by the given favorites store
func New(store FavoritesStore, opts ...Option) *Registry {
	r := &Registry{
		index: make(map[string]*Peer),
		store: store,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upsert records a presence observation.
// An existing peer gets its address and LastSeen refreshed in place; otherwise a new
// peer is inserted. Returns the stored peer and whether it was created.
func (r *Registry) Upsert(name, address string) (Peer, bool) {
	now := r.now()

	if p, ok := r.index[name]; ok {
		p.Address = address
		p.LastSeen = now
		return *p, false
	}

	p := &Peer{
		Name:     name,
		Address:  address,
		Favorite: r.isFavorite(name),
		LastSeen: now,
	}
	r.peers = append(r.peers, p)
	r.index[name] = p
	r.sortByFavorites()
	return *p, true
}

// RemoveStale removes every peer whose last observation is at least threshold old.
// Returns the removed peers.
func (r *Registry) RemoveStale(now time.Time, threshold time.Duration) []Peer {
	var removed []Peer
	kept := r.peers[:0]
	for _, p := range r.peers {
		if now.Sub(p.LastSeen) >= threshold {
			removed = append(removed, *p)
			delete(r.index, p.Name)
			continue
		}
		kept = append(kept, p)
	}
	for i := len(kept); i < len(r.peers); i++ {
		r.peers[i] = nil
	}
	r.peers = kept
	return removed
}

// ToggleFavorite flips the favorite flag of the named peer and persists it
func (r *Registry) ToggleFavorite(name string) (Peer, error) {
	p, ok := r.index[name]
	if !ok {
		return Peer{}, fmt.Errorf("%w: %s", ErrPeerNotFound, name)
	}

	want := !p.Favorite
	if r.store != nil {
		if err := r.writeFavorite(name, want); err != nil {
			return *p, fmt.Errorf("failed to update favorites: %w", err)
		}
	}

	p.Favorite = want
	r.sortByFavorites()
	return *p, nil
}

// ReloadFavorites re-reads the store and refreshes every peer's flag.
// Returns true if any flag changed.
func (r *Registry) ReloadFavorites() bool {
	favs := r.loadFavorites()
	changed := false
	for _, p := range r.peers {
		_, fav := favs[p.Name]
		if p.Favorite != fav {
			p.Favorite = fav
			changed = true
		}
	}
	if changed {
		r.sortByFavorites()
	}
	return changed
}

// Find returns the peer with the given name
func (r *Registry) Find(name string) (Peer, bool) {
	p, ok := r.index[name]
	if !ok {
		return Peer{}, false
	}
	return *p, true
}

// Peers returns a copy of all peers in display order
func (r *Registry) Peers() []Peer {
	out := make([]Peer, len(r.peers))
	for i, p := range r.peers {
		out[i] = *p
	}
	return out
}

// Len returns the number of known peers
func (r *Registry) Len() int {
	return len(r.peers)
}

// Clear removes all peers
func (r *Registry) Clear() {
	r.peers = nil
	r.index = make(map[string]*Peer)
}

func (r *Registry) sortByFavorites() {
	sort.SliceStable(r.peers, func(i, j int) bool {
		return r.peers[i].Favorite && !r.peers[j].Favorite
	})
}

func (r *Registry) isFavorite(name string) bool {
	_, ok := r.loadFavorites()[name]
	return ok
}

func (r *Registry) loadFavorites() map[string]struct{} {
	set := make(map[string]struct{})
	if r.store == nil {
		return set
	}
	names, err := r.store.Get()
	if err != nil {
		log.Printf("[WARN] registry: failed to read favorites: %v", err)
		return set
	}
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

// writeFavorite adds or removes name in the store (read-modify-write)
func (r *Registry) writeFavorite(name string, favorite bool) error {
	names, err := r.store.Get()
	if err != nil {
		return err
	}

	out := make([]string, 0, len(names)+1)
	present := false
	for _, n := range names {
		if n == name {
			present = true
			if !favorite {
				continue
			}
		}
		out = append(out, n)
	}
	if favorite && !present {
		out = append(out, name)
	}
	return r.store.Set(out)
}
