package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

func NewWelcome() *Welcome {
	return &Welcome{
		items: []MenuItem{
			{Label: "Sign in", To: StateLogin},
			{Label: "Create an account", To: StateSignup},
			{Label: "Sign in with Google", OAuth: true},
			{Label: "Forgot password", To: StateForgot},
			{Label: "Reset password with a code", To: StateReset},
			{Label: "Quit", Quit: true},
		},
	}
}

func (m *Model) updateWelcome(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	w := m.welcome

	switch keyMsg.String() {
	case "up", "k":
		if w.cursor > 0 {
			w.cursor--
		}

	case "down", "j":
		if w.cursor < len(w.items)-1 {
			w.cursor++
		}

	case "enter":
		item := w.items[w.cursor]

		if item.Quit {
			return m, tea.Quit
		}

		if item.OAuth {
			return m, m.googleCmd()
		}

		m.navigate(item.To)
	}

	return m, nil
}

func (w *Welcome) View(m *Model) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("passage"))
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render("sign in to continue"))
	b.WriteString("\n\n")

	for i, item := range w.items {
		if i == w.cursor {
			b.WriteString(menuItemSelectedStyle.Render("> " + item.Label))
		} else {
			b.WriteString(menuItemStyle.Render(item.Label))
		}
		b.WriteString("\n")
	}

	if m.auth.IsLoading {
		b.WriteString("\n" + m.spinner.View() + " working...\n")
	}

	if m.auth.Error != "" {
		b.WriteString("\n" + errorStyle.Render(m.auth.Error) + "\n")
	}

	b.WriteString(helpStyle.Render("↑/↓ move · enter select · ctrl+c quit"))

	return b.String()
}
