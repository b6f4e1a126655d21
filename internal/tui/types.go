package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"

	"codeberg.org/algorave/passage/internal/authstate"
	"codeberg.org/algorave/passage/internal/chat"
)

// represents the current screen of the TUI
type AppState int

const (
	StateWelcome AppState = iota
	StateLogin
	StateSignup
	StateForgot
	StateReset
	StateHome
	StateChat
)

const (
	opTimeout    = 30 * time.Second
	oauthTimeout = 3 * time.Minute
)

// main TUI application model
type Model struct {
	state  AppState
	width  int
	height int
	err    error

	store     *authstate.Store
	chat      *chat.Client
	oauthPort int

	// latest store snapshot; refreshed on every transition
	auth    authstate.State
	updates chan authstate.State

	spinner  spinner.Model
	welcome  *Welcome
	form     *Form
	home     *Home
	chatView *ChatView
}

// sent when the auth store publishes a new snapshot
type authUpdatedMsg struct {
	state authstate.State
}

// sent when a dispatched operation settles, fulfilled or rejected
type opDoneMsg struct {
	err error
}

// sent when the OAuth browser flow finishes or times out
type oauthDoneMsg struct {
	err error
}

// sent when a chat message arrives
type chatIncomingMsg struct {
	msg chat.Message
}

// sent when the chat connection drops or fails to open
type chatClosedMsg struct {
	err error
}

// sent to navigate between screens
type navigateMsg struct {
	to AppState
}

// welcome screen model
type Welcome struct {
	cursor int
	items  []MenuItem
}

// one welcome menu entry
type MenuItem struct {
	Label string
	To    AppState
	Quit  bool
	OAuth bool
}

// a labeled set of inputs with client-side validation
type Form struct {
	title      string
	fields     []textinput.Model
	labels     []string
	validators []func(string) string
	fieldErrs  []string
	focus      int
	submitting bool
	submitTo   AppState
}

// authenticated landing screen
type Home struct {
	cursor int
}

// chat widget view
type ChatView struct {
	input    textinput.Model
	viewport viewport.Model
	messages []chat.Message
	renderer *glamour.TermRenderer
	ready    bool
	sendErr  string
}
