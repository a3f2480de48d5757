package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/nodemailer/nodemailer/internal/config"
	"github.com/nodemailer/nodemailer/internal/favorites"
	"github.com/nodemailer/nodemailer/internal/messaging"
	"github.com/nodemailer/nodemailer/internal/node"
	"github.com/nodemailer/nodemailer/internal/registry"
	"github.com/nodemailer/nodemailer/internal/storage"
	"github.com/nodemailer/nodemailer/internal/ui"
)

func init() {
	ui.SetColorEnabled(false)
}

type fakeNode struct {
	peers []registry.Peer
	sent  []string
}

func (f *fakeNode) Peers(ctx context.Context) ([]registry.Peer, error) {
	return f.peers, nil
}

func (f *fakeNode) find(name string) (*registry.Peer, error) {
	for i := range f.peers {
		if f.peers[i].Name == name {
			return &f.peers[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", registry.ErrPeerNotFound, name)
}

func (f *fakeNode) ToggleFavorite(ctx context.Context, name string) (registry.Peer, error) {
	p, err := f.find(name)
	if err != nil {
		return registry.Peer{}, err
	}
	p.Favorite = !p.Favorite
	return *p, nil
}

func (f *fakeNode) SendMail(ctx context.Context, peerName, message, nodeString string) (messaging.Mail, error) {
	if _, err := f.find(peerName); err != nil {
		return messaging.Mail{}, err
	}
	f.sent = append(f.sent, peerName+":"+message)
	return messaging.NewMail("me", message, nodeString), nil
}

func (f *fakeNode) Name() string { return "me" }

type fakeHistory struct {
	records []storage.MailRecord
}

func (f *fakeHistory) InsertMail(m messaging.Mail, receivedAt time.Time) (storage.MailRecord, error) {
	rec := storage.MailRecord{ID: fmt.Sprintf("id-%08d", len(f.records)), Mail: m, ReceivedAt: receivedAt}
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeHistory) ListMail(limit int) ([]storage.MailRecord, error) {
	return f.records, nil
}

func newTestSession(n sessionNode, h mailHistory) (*session, *bytes.Buffer) {
	var out bytes.Buffer
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &session{
		node:    n,
		history: h,
		out:     &out,
		header:  func() string { return "HEADER\n" },
		now:     func() time.Time { return now },
	}, &out
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		line, cmd, rest string
	}{
		{"", "", ""},
		{"  peers  ", "peers", ""},
		{"send Alice  hello there ", "send", "Alice  hello there"},
		{"fav\tBob", "fav", "Bob"},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			cmd, rest := splitCommand(tt.line)
			if cmd != tt.cmd || rest != tt.rest {
				t.Errorf("splitCommand(%q) = (%q, %q), want (%q, %q)", tt.line, cmd, rest, tt.cmd, tt.rest)
			}
		})
	}
}

func TestSessionCommands(t *testing.T) {
	seen := time.Date(2024, 5, 1, 11, 59, 55, 0, time.UTC)

	tests := []struct {
		name      string
		line      string
		want      string
		keepGoing bool
	}{
		{"peers", "peers", "Alice", true},
		{"favorite", "fav Alice", "Alice added to favorites", true},
		{"favorite unknown", "fav nobody", "peer not found", true},
		{"favorite usage", "fav", "usage: fav <peer>", true},
		{"send", "send Alice hello there", "Mail sent to Alice", true},
		{"send usage", "send Alice", "usage: send <peer> <message>", true},
		{"send unknown", "send nobody hi", "peer not found", true},
		{"history", "history", "No mail received yet.", true},
		{"clear", "clear", "HEADER", true},
		{"help", "HELP", "Commands:", true},
		{"unknown", "dance", `unknown command "dance"`, true},
		{"quit", "quit", "Goodbye!", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &fakeNode{peers: []registry.Peer{{Name: "Alice", Address: "10.0.0.5", LastSeen: seen}}}
			s, out := newTestSession(n, &fakeHistory{})

			if got := s.handle(context.Background(), tt.line); got != tt.keepGoing {
				t.Errorf("handle(%q) = %v, want %v", tt.line, got, tt.keepGoing)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output of %q missing %q:\n%s", tt.line, tt.want, out.String())
			}
		})
	}
}

func TestSessionSendKeepsMessage(t *testing.T) {
	n := &fakeNode{peers: []registry.Peer{{Name: "Alice"}}}
	s, _ := newTestSession(n, nil)

	s.handle(context.Background(), "send Alice  two  spaces")
	if len(n.sent) != 1 || n.sent[0] != "Alice:two  spaces" {
		t.Errorf("unexpected sends: %v", n.sent)
	}
}

func TestSessionHistoryDisabled(t *testing.T) {
	s, out := newTestSession(&fakeNode{}, nil)
	s.handle(context.Background(), "history")
	if !strings.Contains(out.String(), "disabled") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestSessionEvents(t *testing.T) {
	h := &fakeHistory{}
	s, out := newTestSession(&fakeNode{}, h)

	m := messaging.Mail{SenderName: "bob", Message: "hi", Timestamp: 1714564800}
	if !s.onEvent(node.Event{Type: node.EventMessageReceived, Mail: m}) {
		t.Fatal("mail must not end the session")
	}
	if len(h.records) != 1 || h.records[0].Mail != m {
		t.Errorf("mail not recorded: %+v", h.records)
	}
	if !strings.Contains(out.String(), "Mail from bob") {
		t.Errorf("mail card not printed:\n%s", out.String())
	}

	if !s.onEvent(node.Event{Type: node.EventPeerListChanged}) {
		t.Error("peer list changes must not end the session")
	}
	if s.onEvent(node.Event{Type: node.EventShutdownRequested}) {
		t.Error("shutdown must end the session")
	}
}

func TestControlError(t *testing.T) {
	const addr = "127.0.0.1:37222"
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), "boom"},
		{"no instance", status.Error(codes.Unavailable, "connection error: desc = \"transport: refused\""), "no running instance at " + addr},
		{"peer unreachable", status.Error(codes.Unavailable, "could not connect to peer, is it running?"), "could not connect to peer"},
		{"not found", status.Error(codes.NotFound, "peer not found: bob"), "peer not found: bob"},
		{"timeout", status.Error(codes.DeadlineExceeded, "deadline"), "did not answer in time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := controlError(tt.err, addr)
			if tt.want == "" {
				if err != nil {
					t.Errorf("expected nil, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("controlError() = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestFavoritesStoreSelection(t *testing.T) {
	paths := config.PathsFor(t.TempDir())
	db, err := storage.Open(paths.ConfigDir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	cfg := config.Default()
	if _, ok := favoritesStore(cfg, paths, nil).(*favorites.MemoryStore); !ok {
		t.Error("no database should select the memory store")
	}
	if fs, ok := favoritesStore(cfg, paths, db).(*favorites.FileStore); !ok || fs.Path() != paths.FavoritesFile {
		t.Error("default backend should be the favorites file")
	}
	cfg.FavoritesBackend = config.BackendSQLite
	if _, ok := favoritesStore(cfg, paths, db).(*storage.DB); !ok {
		t.Error("sqlite backend should select the database")
	}
}
