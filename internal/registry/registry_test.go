package registry

import (
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	names  []string
	setErr error
	sets   int
}

func (f *fakeStore) Get() ([]string, error) {
	out := make([]string, len(f.names))
	copy(out, f.names)
	return out, nil
}

func (f *fakeStore) Set(names []string) error {
	if f.setErr != nil {
		return f.setErr
	}
	f.sets++
	f.names = append([]string(nil), names...)
	return nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestRegistry(store FavoritesStore) (*Registry, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	return New(store, WithClock(clock.Now)), clock
}

func names(peers []Peer) []string {
	out := make([]string, len(peers))
	for i, p := range peers {
		out[i] = p.Name
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestUpsertCreatesOnePeerPerName(t *testing.T) {
	r, clock := newTestRegistry(&fakeStore{})

	calls := []struct {
		name string
		addr string
	}{
		{"alice", "10.0.0.5"},
		{"bob", "10.0.0.6"},
		{"alice", "10.0.0.7"},
		{"carol", "10.0.0.8"},
		{"bob", "10.0.0.9"},
	}

	for _, c := range calls {
		clock.Advance(time.Second)
		r.Upsert(c.name, c.addr)
	}

	if r.Len() != 3 {
		t.Fatalf("expected 3 peers, got %d", r.Len())
	}

	alice, ok := r.Find("alice")
	if !ok {
		t.Fatal("alice not found")
	}
	if alice.Address != "10.0.0.7" {
		t.Errorf("expected alice at 10.0.0.7, got %s", alice.Address)
	}
	if !alice.LastSeen.Equal(clock.t.Add(-2 * time.Second)) {
		t.Errorf("alice LastSeen not refreshed: %v", alice.LastSeen)
	}

	bob, _ := r.Find("bob")
	if bob.Address != "10.0.0.9" || !bob.LastSeen.Equal(clock.t) {
		t.Errorf("bob not updated by latest call: %+v", bob)
	}
}

func TestUpsertReportsCreation(t *testing.T) {
	r, _ := newTestRegistry(nil)

	if _, created := r.Upsert("alice", "10.0.0.5"); !created {
		t.Error("first upsert should create")
	}
	if _, created := r.Upsert("alice", "10.0.0.5"); created {
		t.Error("second upsert should update in place")
	}
}

func TestUpsertInitialisesFavoriteFromStore(t *testing.T) {
	r, _ := newTestRegistry(&fakeStore{names: []string{"bob"}})

	r.Upsert("alice", "10.0.0.5")
	bob, _ := r.Upsert("bob", "10.0.0.6")

	if !bob.Favorite {
		t.Error("bob should be a favorite")
	}
	if got := names(r.Peers()); !equalStrings(got, []string{"bob", "alice"}) {
		t.Errorf("favorites should sort first, got %v", got)
	}
}

func TestRemoveStaleBoundary(t *testing.T) {
	r, clock := newTestRegistry(nil)
	start := clock.t

	r.Upsert("old", "10.0.0.1")
	clock.Advance(time.Millisecond)
	r.Upsert("fresh", "10.0.0.2")

	now := start.Add(StaleThreshold)
	removed := r.RemoveStale(now, StaleThreshold)

	if got := names(removed); !equalStrings(got, []string{"old"}) {
		t.Fatalf("expected only old removed at exactly 30s, got %v", got)
	}
	if _, ok := r.Find("fresh"); !ok {
		t.Error("peer seen 29.999s ago should be kept")
	}
	if _, ok := r.Find("old"); ok {
		t.Error("old should no longer be findable")
	}
}

func TestRemoveStaleKeepsOrder(t *testing.T) {
	r, clock := newTestRegistry(nil)

	r.Upsert("a", "10.0.0.1")
	r.Upsert("b", "10.0.0.2")
	r.Upsert("c", "10.0.0.3")
	clock.Advance(20 * time.Second)
	r.Upsert("a", "10.0.0.1")
	r.Upsert("c", "10.0.0.3")
	clock.Advance(15 * time.Second)

	r.RemoveStale(clock.t, StaleThreshold)

	if got := names(r.Peers()); !equalStrings(got, []string{"a", "c"}) {
		t.Errorf("expected [a c], got %v", got)
	}
}

func TestToggleFavorite(t *testing.T) {
	store := &fakeStore{}
	r, _ := newTestRegistry(store)

	r.Upsert("alice", "10.0.0.5")
	r.Upsert("bob", "10.0.0.6")
	r.Upsert("carol", "10.0.0.7")

	p, err := r.ToggleFavorite("carol")
	if err != nil {
		t.Fatalf("ToggleFavorite failed: %v", err)
	}
	if !p.Favorite {
		t.Error("carol should now be a favorite")
	}
	if !equalStrings(store.names, []string{"carol"}) {
		t.Errorf("store not updated: %v", store.names)
	}
	if got := names(r.Peers()); !equalStrings(got, []string{"carol", "alice", "bob"}) {
		t.Errorf("unexpected order after toggle: %v", got)
	}

	if _, err := r.ToggleFavorite("carol"); err != nil {
		t.Fatalf("second toggle failed: %v", err)
	}
	if len(store.names) != 0 {
		t.Errorf("store should be empty again, got %v", store.names)
	}
	// Stable sort keeps carol ahead of the others once she loses favorite status
	if got := names(r.Peers()); !equalStrings(got, []string{"carol", "alice", "bob"}) {
		t.Errorf("unexpected order after untoggle: %v", got)
	}
}

func TestToggleFavoriteUnknownPeer(t *testing.T) {
	r, _ := newTestRegistry(&fakeStore{})

	_, err := r.ToggleFavorite("nobody")
	if !errors.Is(err, ErrPeerNotFound) {
		t.Fatalf("expected ErrPeerNotFound, got %v", err)
	}
}

func TestToggleFavoriteStoreFailure(t *testing.T) {
	store := &fakeStore{setErr: errors.New("disk full")}
	r, _ := newTestRegistry(store)
	r.Upsert("alice", "10.0.0.5")

	if _, err := r.ToggleFavorite("alice"); err == nil {
		t.Fatal("expected error from failing store")
	}
	p, _ := r.Find("alice")
	if p.Favorite {
		t.Error("flag must not change when the store write fails")
	}
}

func TestSortingInvariantAfterMutations(t *testing.T) {
	store := &fakeStore{names: []string{"d"}}
	r, _ := newTestRegistry(store)

	for _, n := range []string{"a", "b", "c", "d", "e"} {
		r.Upsert(n, "10.0.0.1")
	}
	r.ToggleFavorite("b")
	r.Upsert("f", "10.0.0.1")

	peers := r.Peers()
	seenNonFavorite := false
	for _, p := range peers {
		if !p.Favorite {
			seenNonFavorite = true
			continue
		}
		if seenNonFavorite {
			t.Fatalf("favorite %s after a non-favorite: %v", p.Name, names(peers))
		}
	}
	if got := names(peers); !equalStrings(got, []string{"d", "b", "a", "c", "e", "f"}) {
		t.Errorf("unexpected order: %v", got)
	}
}

func TestReloadFavorites(t *testing.T) {
	store := &fakeStore{}
	r, _ := newTestRegistry(store)
	r.Upsert("alice", "10.0.0.5")
	r.Upsert("bob", "10.0.0.6")

	if r.ReloadFavorites() {
		t.Error("nothing changed yet")
	}

	store.names = []string{"bob"}
	if !r.ReloadFavorites() {
		t.Fatal("expected a change after the store was edited")
	}
	if got := names(r.Peers()); !equalStrings(got, []string{"bob", "alice"}) {
		t.Errorf("unexpected order: %v", got)
	}
}

func TestClear(t *testing.T) {
	r, _ := newTestRegistry(nil)
	r.Upsert("alice", "10.0.0.5")
	r.Clear()

	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
	if _, created := r.Upsert("alice", "10.0.0.5"); !created {
		t.Error("alice should be recreated after Clear")
	}
}
