package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nodemailer/nodemailer/internal/messaging"
	"github.com/nodemailer/nodemailer/internal/node"
	"github.com/nodemailer/nodemailer/internal/registry"
	"github.com/nodemailer/nodemailer/internal/storage"
)

const cardWidth = 64

// RenderHeader displays the session banner shown by `run`
func RenderHeader(name, version string, broadcastPort int, messagingAddr string) string {
	var sb strings.Builder

	sb.WriteString(boxTop(fmt.Sprintf(" nodemailer v%s ", version), cardWidth, Cyan))
	sb.WriteString(boxLine("", cardWidth, Cyan))
	sb.WriteString(boxLine(Color(Bold, "Announcing as "+name), cardWidth, Cyan))
	sb.WriteString(boxLine(Color(Dim, fmt.Sprintf("presence udp/%d  mail %s", broadcastPort, messagingAddr)), cardWidth, Cyan))
	sb.WriteString(boxLine("", cardWidth, Cyan))
	sb.WriteString(boxBottom(cardWidth, Cyan))

	return sb.String()
}

// RenderMailCard formats a received mail
func RenderMailCard(m messaging.Mail, received time.Time) string {
	var sb strings.Builder

	sb.WriteString("\n")
	sb.WriteString(boxTop(fmt.Sprintf(" Mail from %s ", m.SenderName), cardWidth, Magenta))
	sb.WriteString(boxLine(Color(Dim, "Sent:     ")+m.Time().Format("2006-01-02 15:04:05"), cardWidth, Magenta))
	if !received.IsZero() {
		sb.WriteString(boxLine(Color(Dim, "Received: ")+received.Format("2006-01-02 15:04:05"), cardWidth, Magenta))
	}
	sb.WriteString(boxLine("", cardWidth, Magenta))

	message := m.Message
	if message == "" {
		message = Color(Dim, "(no message)")
	}
	for _, line := range wrap(message, cardWidth-4) {
		sb.WriteString(boxLine(line, cardWidth, Magenta))
	}

	if m.HasNodes() {
		sb.WriteString(boxLine("", cardWidth, Magenta))
		sb.WriteString(boxLine(Color(Yellow, NodesMark+" nodes attached"), cardWidth, Magenta))
	}
	sb.WriteString(boxBottom(cardWidth, Magenta))

	return sb.String()
}

// RenderPeerList formats the peer list, favorites first as given
func RenderPeerList(peers []registry.Peer, now time.Time) string {
	if len(peers) == 0 {
		return Color(Dim, "No peers found yet. Other instances appear here once they announce themselves.") + "\n"
	}

	nameWidth := 4
	for _, p := range peers {
		if n := utf8.RuneCountInString(p.Name); n > nameWidth {
			nameWidth = n
		}
	}

	var sb strings.Builder
	sb.WriteString(Color(Dim, fmt.Sprintf("   %-*s  %-15s  %s", nameWidth, "NAME", "ADDRESS", "LAST SEEN")))
	sb.WriteString("\n")
	for _, p := range peers {
		mark := " "
		if p.Favorite {
			mark = Color(Yellow, FavoriteMark)
		}
		fmt.Fprintf(&sb, " %s %s  %-15s  %s\n",
			mark,
			padRight(p.Name, nameWidth),
			p.Address,
			Color(Dim, Ago(now, p.LastSeen)))
	}
	return sb.String()
}

// RenderHistory formats mail history records, one per line
func RenderHistory(records []storage.MailRecord) string {
	if len(records) == 0 {
		return Color(Dim, "No mail received yet.") + "\n"
	}

	var sb strings.Builder
	for _, r := range records {
		mark := " "
		if r.HasNodes() {
			mark = Color(Yellow, NodesMark)
		}
		fmt.Fprintf(&sb, "%s %s %s  %s  %s\n",
			Color(Dim, shortID(r.ID)),
			mark,
			r.ReceivedAt.Format("2006-01-02 15:04"),
			Color(Bold, r.SenderName),
			preview(r.Message, 40))
	}
	return sb.String()
}

// RenderStatus formats the status of a running instance
func RenderStatus(st node.Status, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s\n", Color(Dim, "Name:     "), Color(Bold, st.Name))
	fmt.Fprintf(&sb, "%s %d (%d favorites)\n", Color(Dim, "Peers:    "), st.Peers, st.Favorites)
	fmt.Fprintf(&sb, "%s udp/%d\n", Color(Dim, "Presence: "), st.BroadcastPort)
	fmt.Fprintf(&sb, "%s %s\n", Color(Dim, "Mail:     "), st.MessagingAddr)
	if !st.StartedAt.IsZero() {
		fmt.Fprintf(&sb, "%s %s\n", Color(Dim, "Uptime:   "), now.Sub(st.StartedAt).Truncate(time.Second))
	}
	return sb.String()
}

// RenderHelpLines displays the interactive commands
func RenderHelpLines() string {
	var sb strings.Builder

	sb.WriteString(Color(Dim, "  Commands: "))
	cmds := []string{"peers", "send <peer> <message>", "fav <peer>", "history", "clear", "help", "quit"}
	for i, c := range cmds {
		if i > 0 {
			sb.WriteString(Color(Dim, " | "))
		}
		sb.WriteString(c)
	}
	sb.WriteString("\n")
	sb.WriteString(Color(Dim, "  Press Ctrl+C to exit"))
	sb.WriteString("\n\n")

	return sb.String()
}

// RenderPrompt returns the styled interactive prompt
func RenderPrompt(name string) string {
	return Color(Bold+Green, name+"> ")
}

// RenderError formats an error message
func RenderError(err error) string {
	return Color(Red, fmt.Sprintf("Error: %v", err))
}

// RenderWarning formats a warning message
func RenderWarning(msg string) string {
	return Color(Yellow, msg)
}

// RenderSuccess formats a success message
func RenderSuccess(msg string) string {
	return Color(Green, msg)
}

// RenderDim formats text in dim style
func RenderDim(msg string) string {
	return Color(Dim, msg)
}

// Ago formats how long ago t was, relative to now
func Ago(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Second:
		return "just now"
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// preview returns the first line of s, truncated to max runes
func preview(s string, max int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " …"
	}
	return truncate(s, max)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}

func padRight(s string, width int) string {
	n := utf8.RuneCountInString(s)
	if n >= width {
		return s
	}
	return s + strings.Repeat(" ", width-n)
}

// wrap splits text into lines of at most width runes, breaking on spaces when possible
func wrap(text string, width int) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		runes := []rune(para)
		if len(runes) == 0 {
			lines = append(lines, "")
			continue
		}
		for len(runes) > width {
			cut := width
			for i := width; i > width/2; i-- {
				if runes[i] == ' ' {
					cut = i
					break
				}
			}
			lines = append(lines, strings.TrimRight(string(runes[:cut]), " "))
			runes = []rune(strings.TrimLeft(string(runes[cut:]), " "))
		}
		lines = append(lines, string(runes))
	}
	return lines
}

func boxTop(title string, width int, color string) string {
	titleLen := utf8.RuneCountInString(title)
	rightDashes := width - 2 - 2 - titleLen
	if rightDashes < 0 {
		rightDashes = 0
	}
	return Color(color, BoxTopLeft+strings.Repeat(BoxHorizontal, 2)) +
		Color(color+Bold, title) +
		Color(color, strings.Repeat(BoxHorizontal, rightDashes)+BoxTopRight) + "\n"
}

func boxBottom(width int, color string) string {
	return Color(color, BoxBottomLeft+strings.Repeat(BoxHorizontal, width-2)+BoxBottomRight) + "\n"
}

// boxLine left-aligns text inside the box, padding by visible width
func boxLine(text string, width int, color string) string {
	padding := width - 3 - visibleLength(text)
	if padding < 0 {
		padding = 0
	}
	return Color(color, BoxVertical) + " " + text + strings.Repeat(" ", padding) + Color(color, BoxVertical) + "\n"
}

// visibleLength returns the visible length of a string, ignoring ANSI codes
func visibleLength(s string) int {
	inEscape := false
	visible := 0
	for _, r := range s {
		if r == '\033' {
			inEscape = true
			continue
		}
		if inEscape {
			if r == 'm' {
				inEscape = false
			}
			continue
		}
		visible++
	}
	return visible
}
