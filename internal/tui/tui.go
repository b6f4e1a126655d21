package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"codeberg.org/algorave/passage/internal/authstate"
	"codeberg.org/algorave/passage/internal/chat"
	"codeberg.org/algorave/passage/internal/oauthcb"
)

func NewApp(store *authstate.Store, chatClient *chat.Client, oauthPort int) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := &Model{
		state:     StateWelcome,
		store:     store,
		chat:      chatClient,
		oauthPort: oauthPort,
		auth:      store.Snapshot(),
		updates:   make(chan authstate.State, 16),
		spinner:   sp,
		welcome:   NewWelcome(),
	}

	// the store pushes every transition; forced teardowns (401) reach
	// the UI through this channel even with no operation in flight
	store.Subscribe(func(st authstate.State) {
		select {
		case m.updates <- st:
		default:
		}
	})

	if m.auth.IsAuthenticated {
		m.state = StateHome
		m.home = NewHome()
	}

	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.spinner.Tick)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

		// esc on a form returns towards the entry screen; chat handles
		// its own esc so the connection gets closed
		switch m.state {
		case StateLogin, StateSignup, StateForgot, StateReset:
			if msg.String() == "esc" {
				m.navigateAfterAuthChange()
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		if m.chatView != nil {
			m.chatView.Resize(msg.Width, msg.Height)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case authUpdatedMsg:
		m.auth = msg.state

		// a session torn down underneath us forces the login entry point
		if !m.auth.IsAuthenticated && (m.state == StateHome || m.state == StateChat) {
			m.leaveChat()
			m.state = StateLogin
			m.form = NewLoginForm()
		}

		return m, m.waitForUpdate()

	case opDoneMsg:
		m.auth = m.store.Snapshot()
		if m.form != nil {
			m.form.submitting = false
		}
		if msg.err == nil {
			m.navigateAfterOp()
		}
		return m, nil

	case oauthDoneMsg:
		m.auth = m.store.Snapshot()
		if msg.err == nil {
			m.navigateAfterOp()
		}
		return m, nil

	case navigateMsg:
		m.navigate(msg.to)
		return m, nil

	case chatIncomingMsg:
		if m.chatView != nil {
			m.chatView.Append(msg.msg)
		}
		return m, m.waitForChat()

	case chatClosedMsg:
		if m.state == StateChat {
			m.state = StateHome
			if msg.err != nil {
				m.err = msg.err
			}
		}
		return m, nil
	}

	switch m.state {
	case StateWelcome:
		return m.updateWelcome(msg)

	case StateLogin, StateSignup, StateForgot, StateReset:
		return m.updateForm(msg)

	case StateHome:
		return m.updateHome(msg)

	case StateChat:
		return m.updateChat(msg)

	default:
		return m, nil
	}
}

func (m *Model) View() string {
	if m.err != nil {
		return fmt.Sprintf("\n  Error: %v\n\n  Press Ctrl+C to exit\n", m.err)
	}

	switch m.state {
	case StateWelcome:
		return m.welcome.View(m)

	case StateLogin, StateSignup, StateForgot, StateReset:
		return m.form.View(m)

	case StateHome:
		return m.home.View(m)

	case StateChat:
		return m.chatView.View(m)

	default:
		return "Unknown state"
	}
}

// --- navigation ---

func (m *Model) navigate(to AppState) {
	m.state = to

	switch to {
	case StateLogin:
		m.form = NewLoginForm()
	case StateSignup:
		m.form = NewSignupForm()
	case StateForgot:
		m.form = NewForgotForm()
	case StateReset:
		m.form = NewResetForm()
	case StateHome:
		m.home = NewHome()
	case StateWelcome:
		m.welcome = NewWelcome()
	}
}

// picks the screen after a settled operation based on where the session
// ended up
func (m *Model) navigateAfterOp() {
	if m.auth.IsAuthenticated {
		m.navigate(StateHome)
		return
	}

	// forgot/reset stay on their screen to show the message
	if m.state == StateForgot || m.state == StateReset {
		return
	}

	m.navigateAfterAuthChange()
}

func (m *Model) navigateAfterAuthChange() {
	if m.auth.IsAuthenticated {
		m.navigate(StateHome)
	} else {
		m.navigate(StateWelcome)
	}
}

func (m *Model) leaveChat() {
	if m.state == StateChat {
		m.chat.Close()
		m.chatView = nil
	}
}

// --- commands ---

// re-armed after every delivery so the subscription keeps flowing
func (m *Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		return authUpdatedMsg{state: <-m.updates}
	}
}

func (m *Model) waitForChat() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.chat.Incoming()
		if !ok {
			return chatClosedMsg{}
		}
		return chatIncomingMsg{msg: msg}
	}
}

func (m *Model) loginCmd(email, password string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		return opDoneMsg{err: m.store.Login(ctx, email, password)}
	}
}

func (m *Model) signupCmd(name, email, password string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		return opDoneMsg{err: m.store.Signup(ctx, name, email, password)}
	}
}

func (m *Model) forgotCmd(email string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		return opDoneMsg{err: m.store.ForgotPassword(ctx, email)}
	}
}

func (m *Model) resetCmd(email, otp, newPassword string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		return opDoneMsg{err: m.store.ResetPassword(ctx, email, otp, newPassword)}
	}
}

func (m *Model) listUsersCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		return opDoneMsg{err: m.store.ListUsers(ctx)}
	}
}

// runs the whole browser OAuth dance: availability check, loopback
// listener, browser launch, then waiting for the redirect
func (m *Model) googleCmd() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
		defer cancel()

		status, err := m.store.OAuthStatus(ctx)
		if err != nil {
			return oauthDoneMsg{err: err}
		}

		if !status.Enabled {
			m.store.RejectOAuth("Google sign-in is not available")
			return oauthDoneMsg{err: errors.New("oauth disabled")}
		}

		listener := oauthcb.New(m.oauthPort, m.store)
		if err := listener.Start(); err != nil {
			m.store.RejectOAuth("Could not start sign-in listener")
			return oauthDoneMsg{err: err}
		}

		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), opTimeout)
			defer scancel()
			listener.Shutdown(sctx) //nolint:errcheck
		}()

		authURL, err := oauthcb.AuthURL(status.AuthURL, listener.RedirectURI())
		if err != nil {
			m.store.RejectOAuth("Sign-in misconfigured")
			return oauthDoneMsg{err: err}
		}

		if err := oauthcb.OpenBrowser(authURL); err != nil {
			m.store.RejectOAuth("Could not open the browser")
			return oauthDoneMsg{err: err}
		}

		select {
		case result := <-listener.Result():
			return oauthDoneMsg{err: result.Err}
		case <-time.After(oauthTimeout):
			m.store.RejectOAuth("Sign-in timed out")
			return oauthDoneMsg{err: errors.New("oauth timed out")}
		}
	}
}

func (m *Model) connectChatCmd() tea.Cmd {
	return func() tea.Msg {
		if err := m.chat.Connect(); err != nil {
			return chatClosedMsg{err: err}
		}
		return chatIncomingMsg{msg: chat.Message{Type: chat.TypeUserJoined, Content: "connected"}}
	}
}
