package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/johndosdos/venuechat/internal/chat"
	"github.com/johndosdos/venuechat/internal/model"
)

var (
	primaryColor = lipgloss.Color("#7C3AED")
	selfColor    = lipgloss.Color("#10B981")
	mutedColor   = lipgloss.Color("#9CA3AF")
	errorColor   = lipgloss.Color("#EF4444")
	warnColor    = lipgloss.Color("#F59E0B")

	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	selectedItemStyle = lipgloss.NewStyle().
				Foreground(primaryColor).
				Bold(true).
				Border(lipgloss.NormalBorder(), false, false, false, true).
				BorderForeground(primaryColor).
				PaddingLeft(1)

	unselectedItemStyle = lipgloss.NewStyle().PaddingLeft(2)

	chatWindowStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Padding(0, 1).
			Border(lipgloss.NormalBorder(), false, false, true, false)

	footerStyle = lipgloss.NewStyle().
			Border(lipgloss.NormalBorder(), true, false, false, false)

	ownMessageStyle   = lipgloss.NewStyle().Foreground(selfColor).Bold(true)
	otherMessageStyle = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)

	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	warningStyle = lipgloss.NewStyle().Foreground(warnColor)
	onlineStyle  = lipgloss.NewStyle().Foreground(selfColor)
)

func (a *app) View() string {
	if a.width == 0 {
		return "Loading..."
	}

	sidebarStyle = sidebarStyle.Width(a.sidebarWidth - 2).Height(a.height - 2)
	chatWidth := a.width - a.sidebarWidth - 2
	chatWindowStyle = chatWindowStyle.Width(chatWidth).Height(a.height - 2)
	headerStyle = headerStyle.Width(chatWidth - 2)
	footerStyle = footerStyle.Width(chatWidth - 2)

	return lipgloss.JoinHorizontal(lipgloss.Top, a.sidebarView(), a.chatWindowView())
}

func (a *app) sidebarView() string {
	var b strings.Builder
	b.WriteString(a.search.View() + "\n\n")

	if len(a.list) == 0 {
		b.WriteString(mutedStyle.Render("No conversations found"))
		return sidebarStyle.Render(b.String())
	}

	for i, c := range a.list {
		line := conversationLine(c, a.sidebarWidth-6)
		if i == a.cursor && a.focus != paneChat {
			b.WriteString(selectedItemStyle.Render(line))
		} else {
			b.WriteString(unselectedItemStyle.Render(line))
		}
		b.WriteString("\n")
	}
	return sidebarStyle.Render(b.String())
}

func conversationLine(c model.Conversation, width int) string {
	dot := mutedStyle.Render("○")
	if c.Online {
		dot = onlineStyle.Render("●")
	}
	name := c.Participant.Name()
	if c.Unread {
		name = lipgloss.NewStyle().Bold(true).Render(name + " •")
	}

	preview := c.LastMessage
	switch {
	case c.Typing:
		preview = "typing..."
	case preview == "":
		preview = "No messages yet"
	}
	return fmt.Sprintf("%s %s\n  %s", dot, name, mutedStyle.Render(truncate(preview, width)))
}

func (a *app) chatWindowView() string {
	snap := a.session.Store().Snapshot()

	var header string
	switch {
	case snap.Selected == nil:
		header = headerStyle.Render("Venue chat")
	case snap.Selected.Online:
		header = headerStyle.Render(snap.Selected.Participant.Name() + " " + onlineStyle.Render("online"))
	default:
		header = headerStyle.Render(snap.Selected.Participant.Name())
	}

	var body string
	switch snap.State {
	case chat.NoneSelected:
		body = mutedStyle.Render("Select a user to chat")
	case chat.Loading:
		body = mutedStyle.Render("Loading messages...")
	default:
		body = a.viewport.View()
	}

	var status []string
	if snap.IsTyping && snap.Selected != nil {
		status = append(status, mutedStyle.Render(snap.Selected.Participant.Name()+" is typing..."))
	}
	if a.session.Attached() && !snap.Connected {
		status = append(status, warningStyle.Render("Reconnecting to live chat..."))
	}
	if a.toast != nil {
		status = append(status, toastView(*a.toast))
	}

	footer := footerStyle.Render(a.input.View())
	parts := []string{header, body}
	if len(status) > 0 {
		parts = append(parts, strings.Join(status, "\n"))
	}
	parts = append(parts, footer)
	return chatWindowStyle.Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func toastView(n chat.Notification) string {
	switch n.Level {
	case chat.LevelError:
		return errorStyle.Render(n.Text)
	case chat.LevelWarning:
		return warningStyle.Render(n.Text)
	default:
		return mutedStyle.Render(n.Text)
	}
}

func (a *app) renderTranscript() string {
	snap := a.session.Store().Snapshot()
	if snap.State != chat.Ready {
		return ""
	}
	groups := chat.GroupMessages(snap.Messages, a.session.GroupThreshold())
	if len(groups) == 0 {
		return mutedStyle.Render("No messages yet. Say hello!")
	}

	me := a.session.Identity().UserID
	var b strings.Builder
	for _, g := range groups {
		first := g.First()
		name, style := "You", ownMessageStyle
		if g.SenderID != me {
			name, style = "Them", otherMessageStyle
			if snap.Selected != nil {
				name = snap.Selected.Participant.Name()
			}
		}
		b.WriteString(style.Render(name) + " " + mutedStyle.Render(first.CreatedAt.Local().Format("15:04")) + "\n")
		for _, m := range g.Messages {
			b.WriteString("  " + m.Body)
			switch m.Status {
			case model.StatusPending:
				b.WriteString(" " + mutedStyle.Render("(sending)"))
			case model.StatusFailed:
				b.WriteString(" " + errorStyle.Render("(not delivered)"))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 3 || len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
