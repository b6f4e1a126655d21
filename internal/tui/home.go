package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

func NewHome() *Home {
	return &Home{}
}

func (m *Model) updateHome(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch keyMsg.String() {
	case "c":
		m.state = StateChat
		m.chatView = NewChatView(m.width, m.height)
		return m, tea.Batch(m.connectChatCmd(), m.waitForChat())

	case "u":
		return m, m.listUsersCmd()

	case "r":
		m.navigate(StateReset)
		return m, nil

	case "l":
		m.store.Logout()
		m.auth = m.store.Snapshot()
		m.navigate(StateWelcome)
		return m, nil

	case "q":
		return m, tea.Quit
	}

	return m, nil
}

func (h *Home) View(m *Model) string {
	var b strings.Builder

	user := m.auth.User
	if user == nil {
		// transient frame while a teardown navigates away
		return "\n  signing out...\n"
	}

	b.WriteString(titleStyle.Render("Welcome, " + user.Name))
	b.WriteString("\n\n")

	b.WriteString(labelStyle.Render("email     ") + user.Email)
	if user.EmailVerified {
		b.WriteString(successStyle.Render("  (verified)"))
	}
	b.WriteString("\n")

	b.WriteString(labelStyle.Render("provider  ") + user.Provider)
	b.WriteString("\n")

	if user.PasswordUpdatedAt != nil {
		b.WriteString(labelStyle.Render("password  ") + "updated " + user.PasswordUpdatedAt.Format("2006-01-02"))
		b.WriteString("\n")
	}

	if len(m.auth.Users) > 0 {
		b.WriteString("\n" + subtitleStyle.Render(fmt.Sprintf("directory (%d users)", len(m.auth.Users))) + "\n")

		for _, u := range m.auth.Users {
			b.WriteString(menuItemStyle.Render(u.Name+" <"+u.Email+">") + "\n")
		}
	}

	if m.auth.IsLoading {
		b.WriteString("\n" + m.spinner.View() + " working...\n")
	}

	if m.auth.Error != "" {
		b.WriteString("\n" + errorStyle.Render(m.auth.Error) + "\n")
	}

	b.WriteString(helpStyle.Render("c chat · u users · r reset password · l logout · q quit"))

	return b.String()
}
