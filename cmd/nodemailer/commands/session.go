package commands

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/nodemailer/nodemailer/internal/messaging"
	"github.com/nodemailer/nodemailer/internal/node"
	"github.com/nodemailer/nodemailer/internal/registry"
	"github.com/nodemailer/nodemailer/internal/storage"
	"github.com/nodemailer/nodemailer/internal/ui"
)

// sessionNode is the part of a running node the interactive session drives
type sessionNode interface {
	Peers(ctx context.Context) ([]registry.Peer, error)
	ToggleFavorite(ctx context.Context, name string) (registry.Peer, error)
	SendMail(ctx context.Context, peerName, message, nodeString string) (messaging.Mail, error)
	Name() string
}

// mailHistory records and lists received mail; nil disables history
type mailHistory interface {
	InsertMail(m messaging.Mail, receivedAt time.Time) (storage.MailRecord, error)
	ListMail(limit int) ([]storage.MailRecord, error)
}

// session is the terminal side of `run`: it prints node events and serves
// the interactive prompt. Output from both is serialised through mu.
type session struct {
	node        sessionNode
	history     mailHistory
	out         io.Writer
	header      func() string
	interactive bool
	now         func() time.Time

	mu sync.Mutex
}

func (s *session) print(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprint(s.out, text)
}

func (s *session) println(text string) {
	s.print(text + "\n")
}

func (s *session) prompt() {
	if s.interactive {
		s.print(ui.RenderPrompt(s.node.Name()))
	}
}

// onEvent handles one event from the node. It returns false on shutdown.
func (s *session) onEvent(ev node.Event) bool {
	switch ev.Type {
	case node.EventMessageReceived:
		received := s.now()
		if s.history != nil {
			if _, err := s.history.InsertMail(ev.Mail, received); err != nil {
				s.println(ui.RenderError(fmt.Errorf("failed to record mail: %w", err)))
			}
		}
		s.print(ui.RenderMailCard(ev.Mail, received))
		s.prompt()

	case node.EventShutdownRequested:
		s.println("\n" + ui.RenderWarning("Shutdown requested, exiting"))
		return false
	}
	return true
}

// handle runs one prompt line. It returns false when the user quits.
func (s *session) handle(ctx context.Context, line string) bool {
	command, rest := splitCommand(line)

	switch strings.ToLower(command) {
	case "":
	case "quit", "exit", "q":
		s.println(ui.RenderDim("Goodbye!"))
		return false

	case "help", "?":
		s.print(ui.RenderHelpLines())

	case "clear":
		s.print("\033[H\033[2J")
		s.print(s.header())
		s.print(ui.RenderHelpLines())

	case "peers", "ls":
		peers, err := s.node.Peers(ctx)
		if err != nil {
			s.println(ui.RenderError(err))
			break
		}
		s.print(ui.RenderPeerList(peers, s.now()))

	case "fav", "favorite":
		if rest == "" {
			s.println(ui.RenderWarning("usage: fav <peer>"))
			break
		}
		p, err := s.node.ToggleFavorite(ctx, rest)
		if err != nil {
			s.println(ui.RenderError(err))
			break
		}
		s.println(favoriteMessage(p.Name, p.Favorite))

	case "send":
		peer, message := splitCommand(rest)
		if peer == "" || message == "" {
			s.println(ui.RenderWarning("usage: send <peer> <message>"))
			break
		}
		if _, err := s.node.SendMail(ctx, peer, message, ""); err != nil {
			s.println(ui.RenderError(err))
			break
		}
		s.println(ui.RenderSuccess("Mail sent to " + peer))

	case "history":
		if s.history == nil {
			s.println(ui.RenderDim("History is disabled for this session"))
			break
		}
		records, err := s.history.ListMail(10)
		if err != nil {
			s.println(ui.RenderError(err))
			break
		}
		s.print(ui.RenderHistory(records))

	default:
		s.println(ui.RenderWarning(fmt.Sprintf("unknown command %q, type help", command)))
	}
	return true
}

// splitCommand splits the first word off line and returns the trimmed rest
func splitCommand(line string) (string, string) {
	line = strings.TrimSpace(line)
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return line, ""
	}
	return line[:i], strings.TrimSpace(line[i+1:])
}
