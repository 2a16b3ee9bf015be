package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"docai-cli/internal/app"
)

// renderMessage formats one transcript entry: a role header line and a
// width-wrapped body. Assistant answers go through the markdown
// renderer; user text stays verbatim.
func renderMessage(theme Theme, md *AnswerRenderer, msg app.Message, width int) string {
	var roleStyle lipgloss.Style
	var roleLabel string
	isErr := msg.Role == app.RoleAssistant && strings.HasPrefix(msg.Content, "Sorry, I encountered an error:")
	switch {
	case isErr:
		roleStyle = theme.RoleErr
		roleLabel = "AI"
	case msg.Role == app.RoleUser:
		roleStyle = theme.RoleYou
		roleLabel = "YOU"
	default:
		roleStyle = theme.RoleAI
		roleLabel = "AI"
	}

	header := roleStyle.Render(roleLabel) + " " + theme.TopBarMeta.Render(msg.CreatedAt.Format("15:04"))

	var body string
	if msg.Role == app.RoleAssistant && !isErr {
		body = md.Render(msg.Content, width)
	} else {
		body = lipgloss.NewStyle().Foreground(theme.TextPrimary).Width(width).Render(msg.Content)
	}
	return header + "\n" + body
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}

func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= maxRunes {
		return s
	}
	if maxRunes <= 1 {
		return string(r[:maxRunes])
	}
	return string(r[:maxRunes-1]) + "…"
}
