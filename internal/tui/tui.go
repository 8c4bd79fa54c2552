// Package tui implements the terminal user interface for SmartChat: a Bubble
// Tea program with a login/register screen, a scrolling transcript with
// grammar-correction highlighting, a composer fed by both the keyboard and
// live voice capture, speech playback indicators, a subscription pane, and the
// blocking session-expired modal.
//
// The UI never talks to collaborators from inside Update; all I/O runs in
// tea.Cmd closures, and collaborator callbacks re-enter the program through an
// Events bridge.
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/smartchat-ai/smartchat/internal/api"
	"github.com/smartchat-ai/smartchat/internal/auth"
	"github.com/smartchat-ai/smartchat/internal/checkout"
	"github.com/smartchat-ai/smartchat/internal/localstore"
	"github.com/smartchat-ai/smartchat/internal/transcript"
)

// Account is the slice of the backend client the UI drives directly.
// Conversation traffic goes through the coordinators instead.
type Account interface {
	Login(ctx context.Context, username, password string) (api.Session, error)
	Register(ctx context.Context, username, password string) error
	Logout(ctx context.Context) error
	History(ctx context.Context) ([]api.HistoryEntry, error)
	CreateSubscription(ctx context.Context, amount int64) (api.Order, error)
}

var _ Account = (*api.Client)(nil)

// Sender dispatches outbound chat messages.
type Sender interface {
	Send(ctx context.Context, text string) bool
	Thinking() bool
}

// GrammarChecker runs per-message grammar corrections.
type GrammarChecker interface {
	Check(ctx context.Context, serverID string) bool
	InFlight(serverID string) bool
}

// CaptureControl is the voice capture surface the mic toggle drives.
type CaptureControl interface {
	Start(ctx context.Context) error
	Stop()
	Text() string
	Reset()
	Capturing() bool
}

// PlaybackControl is the speech playback surface.
type PlaybackControl interface {
	Speak(text string, messageIndex int)
	Stop()
	SpeakingIndex() int
}

// Deps bundles everything the UI needs. Capture, Playback, Checkout, and
// Local are optional; a nil value disables the corresponding affordance.
type Deps struct {
	Account  Account
	Sender   Sender
	Grammar  GrammarChecker
	Capture  CaptureControl
	Playback PlaybackControl
	Checkout checkout.Service
	Creds    *auth.CredentialStore
	Store    *transcript.Store
	Local    localstore.Store

	// PaymentAmount is the subscription price in minor currency units,
	// forwarded to the backend when the user opens the subscription pane.
	PaymentAmount int64
}

// Events bridges collaborator callbacks into the Bubble Tea message loop.
// Pushes are non-blocking; under backpressure an event is dropped, which is
// acceptable because every event is a "re-read state" hint rather than a
// payload the UI cannot reconstruct.
type Events struct {
	ch chan tea.Msg
}

// NewEvents creates the bridge. Wire its methods as callbacks before starting
// the program.
func NewEvents() *Events {
	return &Events{ch: make(chan tea.Msg, 64)}
}

// StateChanged signals that transcript, thinking, or playback state moved.
func (e *Events) StateChanged() { e.push(stateChangedMsg{}) }

// SessionExpired signals the one-shot 401 latch; the UI raises the blocking
// modal.
func (e *Events) SessionExpired() { e.push(sessionExpiredMsg{}) }

// CaptureText delivers the live dictation string for the composer.
func (e *Events) CaptureText(text string) { e.push(captureTextMsg{text: text}) }

// CaptureFailed signals that voice capture died without the user stopping it;
// the UI drops its "listening" indicator and shows the failure.
func (e *Events) CaptureFailed(err error) { e.push(captureFailedMsg{err: err}) }

func (e *Events) push(msg tea.Msg) {
	select {
	case e.ch <- msg:
	default:
	}
}

type screen int

const (
	screenAuth screen = iota
	screenChat
)

const noSelection = -1

// Model is the Bubble Tea model for the whole client.
type Model struct {
	deps   Deps
	events *Events

	screen       screen
	registerMode bool
	authFocus    int
	authBusy     bool
	authErr      string
	username     textinput.Model
	password     textinput.Model

	messages   []transcript.Message
	selected   int
	statusLine string
	statusErr  bool

	expired     bool
	quitConfirm bool

	paymentOpen   bool
	paymentBusy   bool
	paymentStatus string

	width  int
	height int

	composer textinput.Model
	timeline viewport.Model
	spin     spinner.Model

	dark  bool
	theme theme
}

// New builds the model. dark selects the initial palette (the caller reads it
// from the persisted state). When the credential store already holds a
// restored session the UI starts on the chat screen and loads history.
func New(deps Deps, events *Events, dark bool) Model {
	username := textinput.New()
	username.Prompt = ""
	username.Placeholder = "username"
	username.CharLimit = 150
	username.Focus()

	password := textinput.New()
	password.Prompt = ""
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'
	password.CharLimit = 128

	composer := textinput.New()
	composer.Prompt = "❯ "
	composer.Placeholder = "Say something…"
	composer.CharLimit = 4000

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	m := Model{
		deps:       deps,
		events:     events,
		screen:     screenAuth,
		selected:   noSelection,
		statusLine: "welcome",
		username:   username,
		password:   password,
		composer:   composer,
		timeline:   timeline,
		spin:       sp,
		dark:       dark,
		theme:      newTheme(dark),
	}
	if deps.Creds != nil && deps.Creds.Username() != "" {
		m.screen = screenChat
		m.composer.Focus()
		m.statusLine = "signed in as " + deps.Creds.Username()
	}
	return m
}

// Init arms the event waiter and, for a restored session, kicks off the
// history load.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spin.Tick, waitEvent(m.events.ch)}
	if m.screen == screenChat {
		cmds = append(cmds, m.loadHistoryCmd())
	}
	return tea.Batch(cmds...)
}

// waitEvent blocks on the bridge channel and forwards the next event.
// Exactly one waiter is armed at a time: Init arms the first, and each
// bridge-delivered message re-arms in Update.
func waitEvent(ch chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}
