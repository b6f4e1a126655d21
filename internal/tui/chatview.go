package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"codeberg.org/algorave/passage/internal/chat"
)

func NewChatView(width, height int) *ChatView {
	input := textinput.New()
	input.Placeholder = "say something"
	input.CharLimit = 500
	input.Focus()

	v := &ChatView{input: input}

	if width > 0 && height > 0 {
		v.Resize(width, height)
	}

	// markdown rendering for message bodies; plain text if unavailable
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		v.renderer = renderer
	}

	return v
}

func (v *ChatView) Resize(width, height int) {
	vpHeight := height - 6
	if vpHeight < 3 {
		vpHeight = 3
	}

	if !v.ready {
		v.viewport = viewport.New(width, vpHeight)
		v.ready = true
	} else {
		v.viewport.Width = width
		v.viewport.Height = vpHeight
	}

	v.refresh()
}

func (v *ChatView) Append(msg chat.Message) {
	v.messages = append(v.messages, msg)
	v.refresh()
	v.viewport.GotoBottom()
}

func (v *ChatView) refresh() {
	if !v.ready {
		return
	}

	var b strings.Builder

	for _, msg := range v.messages {
		switch msg.Type {
		case chat.TypeChatMessage:
			b.WriteString(chatSenderStyle.Render(msg.Sender) + " " + v.renderBody(msg.Content))
		case chat.TypeUserJoined, chat.TypeUserLeft:
			b.WriteString(chatSystemStyle.Render("· " + msg.Sender + " " + msg.Content))
		case chat.TypeError:
			b.WriteString(errorStyle.Render(msg.Content))
		}
		b.WriteString("\n")
	}

	v.viewport.SetContent(b.String())
}

func (v *ChatView) renderBody(content string) string {
	if v.renderer == nil {
		return content
	}

	out, err := v.renderer.Render(content)
	if err != nil {
		return content
	}

	return strings.TrimSpace(out)
}

func (m *Model) updateChat(msg tea.Msg) (tea.Model, tea.Cmd) {
	v := m.chatView

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "enter":
			content := strings.TrimSpace(v.input.Value())
			if content == "" {
				return m, nil
			}

			if err := m.chat.Send(content); err != nil {
				v.sendErr = err.Error()
				return m, nil
			}

			v.sendErr = ""
			v.input.Reset()
			return m, nil

		case "esc":
			m.leaveChat()
			m.state = StateHome
			return m, nil

		case "pgup", "pgdown":
			var cmd tea.Cmd
			v.viewport, cmd = v.viewport.Update(msg)
			return m, cmd
		}
	}

	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)

	return m, cmd
}

func (v *ChatView) View(m *Model) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("chat"))
	b.WriteString("\n")

	if v.ready {
		b.WriteString(v.viewport.View())
	}

	b.WriteString("\n")
	b.WriteString(v.input.View())
	b.WriteString("\n")

	if v.sendErr != "" {
		b.WriteString(errorStyle.Render(v.sendErr) + "\n")
	}

	if !m.chat.IsConnected() {
		b.WriteString(chatSystemStyle.Render("connecting...") + "\n")
	}

	b.WriteString(helpStyle.Render("enter send · pgup/pgdn scroll · esc back"))

	return b.String()
}
