package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"kbassist/internal/api"
	"kbassist/internal/chat"
)

const answerWidth = 96

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	userStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	botStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	citeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("179"))

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("231")).
			Background(lipgloss.Color("160")).
			Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

func errorBanner(msg string) string {
	return bannerStyle.Render("error: " + msg)
}

func heading(text string) string {
	return titleStyle.Render(text)
}

// renderAnswer renders markdown through glamour; plain mode or a renderer
// failure prints the raw text.
func renderAnswer(content string, plain bool) string {
	if plain {
		return strings.TrimSpace(content)
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(answerWidth),
	)
	if err != nil {
		return strings.TrimSpace(content)
	}
	out, err := r.Render(content)
	if err != nil {
		return strings.TrimSpace(content)
	}
	return strings.TrimRight(out, "\n")
}

func renderCitations(refs []chat.KnowledgeRef) string {
	if len(refs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(mutedStyle.Render("sources:"))
	for i, ref := range refs {
		line := fmt.Sprintf("[%d] %s", i+1, ref.Name)
		if ref.Score > 0 {
			line += fmt.Sprintf(" (%.2f)", ref.Score)
		}
		b.WriteString("\n  ")
		b.WriteString(citeStyle.Render(line))
		if snippet := strings.TrimSpace(ref.Snippet); snippet != "" {
			b.WriteString("\n      ")
			b.WriteString(mutedStyle.Render(oneLine(snippet, 120)))
		}
	}
	return b.String()
}

func renderMessage(w io.Writer, m chat.Message, plain bool) {
	if m.Role == chat.RoleUser {
		fmt.Fprintf(w, "%s %s\n", userStyle.Render("you ›"), m.Content)
		return
	}
	fmt.Fprintln(w, botStyle.Render("assistant ›"))
	fmt.Fprintln(w, renderAnswer(m.Content, plain))
	if cites := renderCitations(m.KBRefs); cites != "" {
		fmt.Fprintln(w, cites)
	}
}

func renderSessionHeader(s api.Session, kbIDs []api.ID) string {
	ids := make([]string, 0, len(kbIDs))
	for _, id := range kbIDs {
		ids = append(ids, id.String())
	}
	body := fmt.Sprintf("%s\n%s", titleStyle.Render(s.Title),
		mutedStyle.Render(fmt.Sprintf("session %s · knowledge bases %s", s.SessionID, strings.Join(ids, ","))))
	return headerStyle.Render(body)
}

func oneLine(s string, limit int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) > limit {
		return string(r[:limit]) + "…"
	}
	return s
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
