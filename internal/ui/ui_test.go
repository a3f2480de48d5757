package ui

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nodemailer/nodemailer/internal/messaging"
	"github.com/nodemailer/nodemailer/internal/registry"
	"github.com/nodemailer/nodemailer/internal/storage"
)

func init() {
	SetColorEnabled(false)
}

func TestAgo(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "just now"},
		{500 * time.Millisecond, "just now"},
		{12 * time.Second, "12s ago"},
		{3 * time.Minute, "3m ago"},
		{2*time.Hour + time.Minute, "2h ago"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := Ago(now, now.Add(-tt.ago)); got != tt.want {
				t.Errorf("Ago(%v) = %q, want %q", tt.ago, got, tt.want)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  []string
	}{
		{"short", "hello", 10, []string{"hello"}},
		{"break on space", "hello there world", 11, []string{"hello there", "world"}},
		{"hard break", "abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"newlines kept", "a\n\nb", 10, []string{"a", "", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := wrap(tt.text, tt.width)
			if strings.Join(got, "|") != strings.Join(tt.want, "|") {
				t.Errorf("wrap(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
			}
		})
	}
}

func TestVisibleLength(t *testing.T) {
	SetColorEnabled(true)
	defer SetColorEnabled(false)

	if got := visibleLength(Color(Red, "héllo")); got != 5 {
		t.Errorf("expected 5 visible runes, got %d", got)
	}
}

func TestRenderMailCard(t *testing.T) {
	m := messaging.Mail{SenderName: "bob", Message: "see attached", NodeString: "eHl6", Timestamp: 1714564800}
	out := RenderMailCard(m, time.Time{})

	for _, want := range []string{"Mail from bob", "see attached", NodesMark + " nodes attached"} {
		if !strings.Contains(out, want) {
			t.Errorf("card missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Received:") {
		t.Error("zero receive time should be omitted")
	}

	// All box rows share the same visible width
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for _, line := range lines {
		if n := visibleLength(line); n != cardWidth {
			t.Errorf("line width %d, want %d: %q", n, cardWidth, line)
		}
	}
}

func TestRenderPeerList(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if out := RenderPeerList(nil, now); !strings.Contains(out, "No peers") {
		t.Errorf("empty list: %q", out)
	}

	out := RenderPeerList([]registry.Peer{
		{Name: "carol", Address: "10.0.0.7", Favorite: true, LastSeen: now.Add(-2 * time.Second)},
		{Name: "alice", Address: "10.0.0.5", LastSeen: now},
	}, now)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %q", lines)
	}
	if !strings.Contains(lines[1], FavoriteMark) || !strings.Contains(lines[1], "carol") || !strings.Contains(lines[1], "2s ago") {
		t.Errorf("unexpected favorite row: %q", lines[1])
	}
	if strings.Contains(lines[2], FavoriteMark) || !strings.Contains(lines[2], "10.0.0.5") {
		t.Errorf("unexpected row: %q", lines[2])
	}
}

func TestRenderHistory(t *testing.T) {
	received := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	out := RenderHistory([]storage.MailRecord{{
		ID:         "0123456789abcdef",
		Mail:       messaging.Mail{SenderName: "bob", Message: "first line\nsecond line"},
		ReceivedAt: received,
	}})

	if !strings.Contains(out, "01234567 ") || strings.Contains(out, "89abcdef") {
		t.Errorf("id should be shortened: %q", out)
	}
	if !strings.Contains(out, "first line …") || strings.Contains(out, "second line") {
		t.Errorf("preview should show only the first line: %q", out)
	}

	if out := RenderHistory(nil); !strings.Contains(out, "No mail") {
		t.Errorf("empty history: %q", out)
	}
}

func TestRenderError(t *testing.T) {
	if got := RenderError(errors.New("boom")); got != "Error: boom" {
		t.Errorf("got %q", got)
	}
}

func TestSpinnerWithoutTerminal(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf, "reading")
	s.animate = false

	s.Start()
	s.SetMessage("sending")
	s.Stop()
	s.Stop()

	if s.message != "sending" {
		t.Errorf("message not updated: %q", s.message)
	}
	if buf.Len() != 0 {
		t.Errorf("non-terminal spinner should write nothing, got %q", buf.String())
	}
}

func TestSpinnerAnimatesAndClears(t *testing.T) {
	var buf syncBuffer
	s := NewSpinner(&buf, "reading")
	s.animate = true
	s.interval = 5 * time.Millisecond

	s.Start()
	s.SetMessage("sending")
	time.Sleep(50 * time.Millisecond)
	s.Stop()

	out := buf.String()
	if !strings.Contains(out, "sending") {
		t.Errorf("updated message never drawn: %q", out)
	}
	if !strings.HasSuffix(out, "\r") {
		t.Errorf("line should be cleared on stop: %q", out)
	}
}

// syncBuffer is a bytes.Buffer safe for the spinner goroutine
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
