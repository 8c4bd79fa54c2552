package tui

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/smartchat-ai/smartchat/internal/chat"
	"github.com/smartchat-ai/smartchat/internal/checkout"
	"github.com/smartchat-ai/smartchat/internal/localstore"
)

// opTimeout bounds the backend calls the UI dispatches directly. The chat
// coordinators own their own request lifetimes.
const opTimeout = 30 * time.Second

// ---- messages ----

// Bridge messages (delivered through Events; their handlers re-arm the
// waiter).
type (
	stateChangedMsg   struct{}
	sessionExpiredMsg struct{}
	captureTextMsg    struct{ text string }
	captureFailedMsg  struct{ err error }
)

// Command completion messages.
type (
	authDoneMsg struct {
		registered bool
		username   string
		err        error
	}
	historyLoadedMsg struct{ err error }
	refreshMsg       struct{}
	loggedOutMsg     struct{}
	paymentDoneMsg   struct {
		result checkout.Result
		err    error
	}
)

// ---- update ----

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case stateChangedMsg:
		m.refreshFromStore()
		cmds = append(cmds, waitEvent(m.events.ch))

	case captureTextMsg:
		if m.screen == screenChat && !m.expired {
			m.composer.SetValue(msg.text)
			m.composer.CursorEnd()
		}
		cmds = append(cmds, waitEvent(m.events.ch))

	case captureFailedMsg:
		// Capture died on its own; the controller has already cleared its
		// flag, so only the status line needs the truth.
		m.statusLine = "mic stopped: " + msg.err.Error()
		m.statusErr = true
		cmds = append(cmds, waitEvent(m.events.ch))

	case sessionExpiredMsg:
		m.expired = true
		m.stopVoice()
		m.statusLine = "session expired"
		m.statusErr = true
		cmds = append(cmds, waitEvent(m.events.ch))

	case authDoneMsg:
		m.authBusy = false
		switch {
		case msg.err != nil:
			m.authErr = msg.err.Error()
		case msg.registered:
			m.authErr = ""
			m.registerMode = false
			m.statusLine = "account created, sign in"
			m.password.SetValue("")
		default:
			m.authErr = ""
			m.enterChat(msg.username)
			cmds = append(cmds, m.loadHistoryCmd())
		}

	case historyLoadedMsg:
		if msg.err != nil {
			// The expiry path is handled by the guard; anything else is
			// survivable, the transcript just starts empty.
			slog.Warn("tui: history load failed", "error", msg.err)
			m.statusLine = "history unavailable"
			m.statusErr = true
		}
		m.refreshFromStore()

	case refreshMsg:
		m.refreshFromStore()

	case loggedOutMsg:
		m.resetToAuth()

	case paymentDoneMsg:
		m.paymentBusy = false
		if msg.err != nil {
			m.paymentStatus = "payment failed: " + msg.err.Error()
			break
		}
		m.paymentStatus = "payment " + msg.result.String()
		if msg.result == checkout.ResultCompleted {
			m.statusLine = "subscription active"
			m.statusErr = false
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTimeline()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		// Per-message spinners live inside the viewport content, so the
		// timeline re-renders on every frame.
		m.renderTimeline()
		cmds = append(cmds, cmd)

	case tea.MouseMsg:
		if m.screen == screenChat && !m.expired && !m.paymentOpen {
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.KeyMsg:
		return m.handleKey(msg, cmds)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) handleKey(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	// The expired modal is blocking: logout is the only way forward.
	if m.expired {
		if msg.String() == "enter" {
			return m, m.logoutCmd()
		}
		return m, tea.Batch(cmds...)
	}

	if m.quitConfirm {
		switch msg.String() {
		case "y", "Y", "enter":
			return m, tea.Quit
		case "n", "N", "esc":
			m.quitConfirm = false
			m.statusLine = "quit canceled"
		}
		return m, tea.Batch(cmds...)
	}

	if m.paymentOpen {
		return m.handlePaymentKey(msg, cmds)
	}

	switch m.screen {
	case screenAuth:
		return m.handleAuthKey(msg, cmds)
	default:
		return m.handleChatKey(msg, cmds)
	}
}

func (m Model) handleAuthKey(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		return m, tea.Quit
	case "tab", "shift+tab":
		m.authFocus = 1 - m.authFocus
		if m.authFocus == 0 {
			m.username.Focus()
			m.password.Blur()
		} else {
			m.password.Focus()
			m.username.Blur()
		}
		return m, tea.Batch(cmds...)
	case "ctrl+n":
		m.registerMode = !m.registerMode
		m.authErr = ""
		return m, tea.Batch(cmds...)
	case "enter":
		if m.authBusy {
			return m, tea.Batch(cmds...)
		}
		user := strings.TrimSpace(m.username.Value())
		pass := m.password.Value()
		if user == "" || pass == "" {
			m.authErr = "username and password are required"
			return m, tea.Batch(cmds...)
		}
		m.authBusy = true
		m.authErr = ""
		cmds = append(cmds, m.authCmd(user, pass, m.registerMode))
		return m, tea.Batch(cmds...)
	}

	var cmd tea.Cmd
	if m.authFocus == 0 {
		m.username, cmd = m.username.Update(msg)
	} else {
		m.password, cmd = m.password.Update(msg)
	}
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handleChatKey(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.quitConfirm = true
		return m, tea.Batch(cmds...)
	case "enter":
		text := strings.TrimSpace(m.composer.Value())
		if text == "" {
			return m, tea.Batch(cmds...)
		}
		// Clear immediately: sends are optimistic and concurrent sends are
		// allowed, so the composer never waits on the network.
		m.composer.SetValue("")
		if m.deps.Capture != nil {
			m.deps.Capture.Reset()
		}
		cmds = append(cmds, m.sendCmd(text))
		return m, tea.Batch(cmds...)
	case "ctrl+r":
		return m.toggleMic(cmds)
	case "ctrl+g":
		if id, ok := m.selectedUserServerID(); ok {
			cmds = append(cmds, m.grammarCmd(id))
		} else {
			m.statusLine = "select a confirmed message of yours first (ctrl+p/ctrl+n)"
			m.statusErr = false
		}
		return m, tea.Batch(cmds...)
	case "ctrl+p":
		m.moveSelection(-1)
		return m, tea.Batch(cmds...)
	case "ctrl+n":
		m.moveSelection(1)
		return m, tea.Batch(cmds...)
	case "ctrl+s":
		m.speakSelected()
		return m, tea.Batch(cmds...)
	case "ctrl+x":
		if m.deps.Playback != nil {
			m.deps.Playback.Stop()
		}
		return m, tea.Batch(cmds...)
	case "ctrl+b":
		if m.deps.Checkout != nil {
			m.paymentOpen = true
			m.paymentStatus = ""
		}
		return m, tea.Batch(cmds...)
	case "ctrl+t":
		m.dark = !m.dark
		m.theme = newTheme(m.dark)
		m.renderTimeline()
		cmds = append(cmds, m.saveThemeCmd(m.dark))
		return m, tea.Batch(cmds...)
	case "ctrl+l":
		return m, m.logoutCmd()
	case "pgup":
		m.timeline.LineUp(8)
		return m, tea.Batch(cmds...)
	case "pgdown":
		m.timeline.LineDown(8)
		return m, tea.Batch(cmds...)
	case "home":
		m.timeline.GotoTop()
		return m, tea.Batch(cmds...)
	case "end":
		m.timeline.GotoBottom()
		return m, tea.Batch(cmds...)
	case "up":
		if strings.TrimSpace(m.composer.Value()) == "" {
			m.timeline.LineUp(4)
			return m, tea.Batch(cmds...)
		}
	case "down":
		if strings.TrimSpace(m.composer.Value()) == "" {
			m.timeline.LineDown(4)
			return m, tea.Batch(cmds...)
		}
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m Model) handlePaymentKey(msg tea.KeyMsg, cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	if m.paymentBusy {
		return m, tea.Batch(cmds...)
	}
	switch msg.String() {
	case "esc", "q":
		// Dismissal never reaches the payment provider.
		m.paymentOpen = false
		m.paymentStatus = ""
	case "enter":
		m.paymentBusy = true
		m.paymentStatus = ""
		cmds = append(cmds, m.paymentCmd())
	}
	return m, tea.Batch(cmds...)
}

func (m Model) toggleMic(cmds []tea.Cmd) (tea.Model, tea.Cmd) {
	if m.deps.Capture == nil {
		m.statusLine = "voice input is not configured"
		return m, tea.Batch(cmds...)
	}
	if m.deps.Capture.Capturing() {
		m.deps.Capture.Stop()
		m.statusLine = "mic off"
		return m, tea.Batch(cmds...)
	}
	m.deps.Capture.Reset()
	if err := m.deps.Capture.Start(context.Background()); err != nil {
		m.statusLine = "mic failed: " + err.Error()
		m.statusErr = true
		return m, tea.Batch(cmds...)
	}
	m.statusLine = "listening…"
	m.statusErr = false
	return m, tea.Batch(cmds...)
}

// ---- state helpers ----

func (m *Model) refreshFromStore() {
	prev := len(m.messages)
	m.messages = m.deps.Store.Messages()
	m.renderTimeline()
	if len(m.messages) > prev {
		m.timeline.GotoBottom()
	}
}

func (m *Model) enterChat(username string) {
	m.screen = screenChat
	m.composer.Focus()
	m.username.Blur()
	m.password.Blur()
	m.statusLine = "signed in as " + username
	m.statusErr = false
}

func (m *Model) resetToAuth() {
	m.deps.Store.Hydrate(nil)
	m.messages = nil
	m.selected = noSelection
	m.expired = false
	m.paymentOpen = false
	m.paymentStatus = ""
	m.composer.SetValue("")
	m.composer.Blur()
	m.password.SetValue("")
	m.username.SetValue("")
	m.username.Focus()
	m.authFocus = 0
	m.screen = screenAuth
	m.statusLine = "signed out"
	m.statusErr = false
	m.renderTimeline()
}

func (m *Model) stopVoice() {
	if m.deps.Capture != nil && m.deps.Capture.Capturing() {
		m.deps.Capture.Stop()
	}
	if m.deps.Playback != nil {
		m.deps.Playback.Stop()
	}
}

func (m *Model) moveSelection(delta int) {
	if len(m.messages) == 0 {
		m.selected = noSelection
		return
	}
	switch {
	case m.selected == noSelection:
		m.selected = len(m.messages) - 1
	default:
		m.selected += delta
		if m.selected < 0 {
			m.selected = 0
		}
		if m.selected >= len(m.messages) {
			m.selected = len(m.messages) - 1
		}
	}
	m.renderTimeline()
}

// selectedUserServerID resolves the grammar-check target: the selected
// message if it is a confirmed user message, otherwise the most recent
// confirmed user message.
func (m *Model) selectedUserServerID() (string, bool) {
	if m.selected != noSelection && m.selected < len(m.messages) {
		msg := m.messages[m.selected]
		if msg.IsUser && msg.Confirmed() {
			return msg.ServerID, true
		}
		return "", false
	}
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].IsUser && m.messages[i].Confirmed() {
			return m.messages[i].ServerID, true
		}
	}
	return "", false
}

func (m *Model) speakSelected() {
	if m.deps.Playback == nil || m.selected == noSelection || m.selected >= len(m.messages) {
		return
	}
	msg := m.messages[m.selected]
	if msg.IsUser || msg.Text == "" {
		return
	}
	m.deps.Playback.Speak(msg.Text, m.selected)
}

// ---- commands ----

func (m *Model) authCmd(username, password string, register bool) tea.Cmd {
	account := m.deps.Account
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		if register {
			return authDoneMsg{registered: true, err: account.Register(ctx, username, password)}
		}
		session, err := account.Login(ctx, username, password)
		return authDoneMsg{username: session.Username, err: err}
	}
}

func (m *Model) loadHistoryCmd() tea.Cmd {
	account := m.deps.Account
	store := m.deps.Store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		return historyLoadedMsg{err: chat.LoadHistory(ctx, account, store)}
	}
}

func (m *Model) sendCmd(text string) tea.Cmd {
	sender := m.deps.Sender
	return func() tea.Msg {
		sender.Send(context.Background(), text)
		return refreshMsg{}
	}
}

func (m *Model) grammarCmd(serverID string) tea.Cmd {
	checker := m.deps.Grammar
	return func() tea.Msg {
		checker.Check(context.Background(), serverID)
		return refreshMsg{}
	}
}

func (m *Model) logoutCmd() tea.Cmd {
	account := m.deps.Account
	creds := m.deps.Creds
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Best effort: local teardown proceeds even when the server call
		// fails or the session is already dead.
		if err := account.Logout(ctx); err != nil {
			slog.Debug("tui: server logout failed", "error", err)
		}
		if creds != nil {
			if err := creds.Clear(); err != nil {
				slog.Warn("tui: clearing local session failed", "error", err)
			}
		}
		return loggedOutMsg{}
	}
}

func (m *Model) paymentCmd() tea.Cmd {
	account := m.deps.Account
	svc := m.deps.Checkout
	amount := m.deps.PaymentAmount
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()
		order, err := account.CreateSubscription(ctx, amount)
		if err != nil {
			return paymentDoneMsg{err: err}
		}
		result, err := svc.Purchase(ctx, order)
		return paymentDoneMsg{result: result, err: err}
	}
}

func (m *Model) saveThemeCmd(dark bool) tea.Cmd {
	store := m.deps.Local
	if store == nil {
		return nil
	}
	return func() tea.Msg {
		state, err := store.Load()
		if err != nil {
			state = &localstore.State{}
		}
		state.DarkMode = dark
		if err := store.Save(state); err != nil {
			slog.Warn("tui: saving theme preference failed", "error", err)
		}
		return nil
	}
}
