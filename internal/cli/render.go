package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/chatlog-go/internal/models"
	"golang.org/x/term"
)

// Theme holds the color scheme for transcript output.
type Theme struct {
	Title     lipgloss.Color
	User      lipgloss.Color
	Assistant lipgloss.Color
	Hint      lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	Title:     lipgloss.Color("#00D787"), // green
	User:      lipgloss.Color("#5FAFD7"), // light blue
	Assistant: lipgloss.Color("#D7AF5F"), // amber
	Hint:      lipgloss.Color("#6C6C6C"), // dim gray
}

// renderer formats conversations. With styled unset it emits plain text, so
// piped output stays free of escape sequences.
type renderer struct {
	theme  Theme
	styled bool
}

func newRenderer(f *os.File) renderer {
	return renderer{theme: defaultTheme, styled: term.IsTerminal(int(f.Fd()))}
}

func (r renderer) style(color lipgloss.Color, bold bool) lipgloss.Style {
	s := lipgloss.NewStyle()
	if r.styled {
		s = s.Foreground(color).Bold(bold)
	}
	return s
}

func (r renderer) hint(s string) string {
	if !r.styled {
		return s
	}
	return lipgloss.NewStyle().Foreground(r.theme.Hint).Italic(true).Render(s)
}

// list writes one line per conversation summary.
func (r renderer) list(w io.Writer, list []models.ConversationSummary) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No conversations found.")
		return
	}

	fmt.Fprintf(w, "Conversations (%d):\n\n", len(list))
	for _, c := range list {
		fmt.Fprintf(w, "- %s  %s %s\n",
			c.ID,
			r.style(r.theme.Title, true).Render(c.Title),
			r.hint(fmt.Sprintf("(%d messages, updated %s)", c.MessageCount, c.UpdatedAt.Local().Format(time.DateTime))),
		)
	}
}

// transcript writes a conversation with each message prefixed by its log
// index, the value to pass as --at when editing from that message.
func (r renderer) transcript(w io.Writer, conv *models.Conversation) {
	fmt.Fprintln(w, r.style(r.theme.Title, true).Render(conv.Title))
	fmt.Fprintln(w, r.hint(fmt.Sprintf("%s · created %s · updated %s",
		conv.ID,
		conv.CreatedAt.Local().Format(time.DateTime),
		conv.UpdatedAt.Local().Format(time.DateTime),
	)))

	if len(conv.Log) == 0 {
		fmt.Fprintln(w, "\n"+r.hint("(empty)"))
		return
	}

	for i, m := range conv.Log {
		color := r.theme.User
		if m.Role == models.RoleAssistant {
			color = r.theme.Assistant
		}
		header := fmt.Sprintf("[%d] %s", i, m.Role)
		if m.Type != models.MessageTypeText {
			header += " (" + string(m.Type) + ")"
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, r.style(color, true).Render(header))
		fmt.Fprintln(w, indent(messageBody(m)))
	}
}

// messageBody returns the displayable text of a message. Audio shows its
// transcription and images list their references.
func messageBody(m models.Message) string {
	switch m.Type {
	case models.MessageTypeAudio:
		if m.Transcription != nil {
			return *m.Transcription
		}
		return "(audio, no transcription)"
	case models.MessageTypeImage:
		var b strings.Builder
		b.WriteString(m.Content)
		for _, img := range m.Images {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString("image: " + img)
		}
		return b.String()
	default:
		return m.Content
	}
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}
