package main

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/johndosdos/venuechat/internal/chat"
	"github.com/johndosdos/venuechat/internal/model"
)

const requestTimeout = 15 * time.Second

type pane int

const (
	paneSidebar pane = iota
	paneSearch
	paneChat
)

type (
	eventMsg         chat.Event
	conversationsMsg []model.Conversation
	doneMsg          struct{}
	clearToastMsg    struct{ at time.Time }
)

type app struct {
	session *chat.Session
	events  <-chan chat.Event
	stop    func()

	list   []model.Conversation
	cursor int
	focus  pane

	search   textinput.Model
	input    textinput.Model
	viewport viewport.Model

	toast   *chat.Notification
	toastAt time.Time

	width        int
	height       int
	sidebarWidth int
}

func newApp(s *chat.Session) *app {
	events, stop := s.Store().Subscribe()

	search := textinput.New()
	search.Placeholder = "Search..."
	search.Prompt = "/ "

	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 2000

	return &app{
		session:      s,
		events:       events,
		stop:         stop,
		search:       search,
		input:        input,
		viewport:     viewport.New(80, 20),
		sidebarWidth: 28,
	}
}

func (a *app) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, a.loadConversations(), waitForEvent(a.events))
}

func waitForEvent(events <-chan chat.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (a *app) loadConversations() tea.Cmd {
	s, q := a.session, a.search.Value()
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		return conversationsMsg(s.Conversations(ctx, q))
	}
}

func (a *app) selectConversation(id model.ID) tea.Cmd {
	s := a.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		// Failures arrive as notifications.
		_ = s.Select(ctx, id)
		return doneMsg{}
	}
}

func (a *app) send(body string) tea.Cmd {
	s := a.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_ = s.Send(ctx, body)
		_ = s.Typing(ctx, false)
		return doneMsg{}
	}
}

func (a *app) typing() tea.Cmd {
	s := a.session
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		_ = s.Typing(ctx, true)
		return nil
	}
}

func (a *app) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		return a.handleKey(msg)

	case tea.WindowSizeMsg:
		a.width, a.height = msg.Width, msg.Height
		a.sidebarWidth = max(28, a.width/4)
		chatWidth := a.width - a.sidebarWidth - 4
		a.viewport = viewport.New(max(chatWidth-2, 10), max(a.height-8, 3))
		a.input.Width = max(chatWidth-6, 10)
		a.search.Width = a.sidebarWidth - 6
		a.refreshTranscript()

	case conversationsMsg:
		a.list = msg
		a.clampCursor()

	case eventMsg:
		ev := chat.Event(msg)
		if ev.Change.Has(chat.ChangeConversations | chat.ChangePresence) {
			a.list = a.session.ConversationList(a.search.Value())
			a.clampCursor()
		}
		if ev.Change.Has(chat.ChangeSelection | chat.ChangeMessages | chat.ChangeTyping) {
			a.refreshTranscript()
		}
		if ev.Change.Has(chat.ChangeNotification) {
			n := ev.Notification
			a.toast, a.toastAt = &n, time.Now()
			at := a.toastAt
			cmds = append(cmds, tea.Tick(4*time.Second, func(time.Time) tea.Msg { return clearToastMsg{at} }))
		}
		cmds = append(cmds, waitForEvent(a.events))

	case clearToastMsg:
		if a.toastAt.Equal(msg.at) {
			a.toast = nil
		}
	}

	return a, tea.Batch(cmds...)
}

func (a *app) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		a.stop()
		return a, tea.Quit
	case "tab":
		a.setFocus((a.focus + 1) % 3)
		return a, nil
	}

	switch a.focus {
	case paneSidebar:
		switch msg.String() {
		case "q":
			a.stop()
			return a, tea.Quit
		case "up", "k":
			a.cursor--
			a.clampCursor()
		case "down", "j":
			a.cursor++
			a.clampCursor()
		case "/":
			a.setFocus(paneSearch)
		case "r":
			return a, a.loadConversations()
		case "enter":
			if len(a.list) == 0 {
				return a, nil
			}
			a.setFocus(paneChat)
			return a, a.selectConversation(a.list[a.cursor].Participant.ID)
		}
		return a, nil

	case paneSearch:
		switch msg.String() {
		case "esc", "enter":
			a.setFocus(paneSidebar)
			return a, nil
		}
		var cmd tea.Cmd
		a.search, cmd = a.search.Update(msg)
		a.list = a.session.ConversationList(a.search.Value())
		a.clampCursor()
		return a, cmd

	default:
		switch msg.String() {
		case "esc":
			a.session.Deselect()
			a.setFocus(paneSidebar)
			return a, nil
		case "enter":
			body := a.input.Value()
			a.input.SetValue("")
			return a, a.send(body)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			a.viewport, cmd = a.viewport.Update(msg)
			return a, cmd
		}
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		return a, tea.Batch(cmd, a.typing())
	}
}

func (a *app) setFocus(p pane) {
	a.focus = p
	a.search.Blur()
	a.input.Blur()
	switch p {
	case paneSearch:
		a.search.Focus()
	case paneChat:
		a.input.Focus()
	}
}

func (a *app) clampCursor() {
	if a.cursor >= len(a.list) {
		a.cursor = len(a.list) - 1
	}
	if a.cursor < 0 {
		a.cursor = 0
	}
}

func (a *app) refreshTranscript() {
	a.viewport.SetContent(a.renderTranscript())
	a.viewport.GotoBottom()
}
