package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// field validators run before submission; a non-empty return blocks
// the request from ever reaching the network

func required(label string) func(string) string {
	return func(v string) string {
		if strings.TrimSpace(v) == "" {
			return label + " is required"
		}
		return ""
	}
}

func validEmail(v string) string {
	if msg := required("email")(v); msg != "" {
		return msg
	}

	if !strings.Contains(v, "@") || strings.HasPrefix(v, "@") || strings.HasSuffix(v, "@") {
		return "enter a valid email address"
	}

	return ""
}

func validPassword(v string) string {
	if msg := required("password")(v); msg != "" {
		return msg
	}

	if len(v) < 8 {
		return "password must be at least 8 characters"
	}

	return ""
}

func validOTP(v string) string {
	if msg := required("code")(v); msg != "" {
		return msg
	}

	if len(v) != 6 {
		return "the code is 6 digits"
	}

	for _, r := range v {
		if r < '0' || r > '9' {
			return "the code is 6 digits"
		}
	}

	return ""
}

func newField(placeholder string, secret bool) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = 128

	if secret {
		in.EchoMode = textinput.EchoPassword
		in.EchoCharacter = '•'
	}

	return in
}

func newForm(title string, labels []string, fields []textinput.Model, validators []func(string) string) *Form {
	f := &Form{
		title:      title,
		fields:     fields,
		labels:     labels,
		validators: validators,
		fieldErrs:  make([]string, len(fields)),
	}

	f.fields[0].Focus()

	return f
}

func NewLoginForm() *Form {
	return newForm(
		"Sign in",
		[]string{"Email", "Password"},
		[]textinput.Model{newField("you@example.com", false), newField("password", true)},
		[]func(string) string{validEmail, required("password")},
	)
}

func NewSignupForm() *Form {
	return newForm(
		"Create an account",
		[]string{"Name", "Email", "Password"},
		[]textinput.Model{newField("Ada Lovelace", false), newField("you@example.com", false), newField("min 8 characters", true)},
		[]func(string) string{required("name"), validEmail, validPassword},
	)
}

func NewForgotForm() *Form {
	return newForm(
		"Forgot password",
		[]string{"Email"},
		[]textinput.Model{newField("you@example.com", false)},
		[]func(string) string{validEmail},
	)
}

func NewResetForm() *Form {
	return newForm(
		"Reset password",
		[]string{"Email", "Code", "New password"},
		[]textinput.Model{newField("you@example.com", false), newField("6-digit code", false), newField("min 8 characters", true)},
		[]func(string) string{validEmail, validOTP, validPassword},
	)
}

// runs every validator and records per-field messages; true means the
// form may be submitted
func (f *Form) Validate() bool {
	ok := true

	for i, validate := range f.validators {
		f.fieldErrs[i] = validate(f.fields[i].Value())
		if f.fieldErrs[i] != "" {
			ok = false
		}
	}

	return ok
}

func (f *Form) values() []string {
	out := make([]string, len(f.fields))
	for i := range f.fields {
		out[i] = strings.TrimSpace(f.fields[i].Value())
	}
	return out
}

func (f *Form) focusField(i int) {
	for j := range f.fields {
		f.fields[j].Blur()
	}
	f.focus = i
	f.fields[i].Focus()
}

func (m *Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	f := m.form

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch keyMsg.String() {
		case "tab", "down":
			f.focusField((f.focus + 1) % len(f.fields))
			return m, nil

		case "shift+tab", "up":
			f.focusField((f.focus + len(f.fields) - 1) % len(f.fields))
			return m, nil

		case "enter":
			// enter advances until the last field, then submits
			if f.focus < len(f.fields)-1 {
				f.focusField(f.focus + 1)
				return m, nil
			}

			if f.submitting || !f.Validate() {
				return m, nil
			}

			f.submitting = true
			return m, m.submitForm()
		}
	}

	var cmd tea.Cmd
	f.fields[f.focus], cmd = f.fields[f.focus].Update(msg)

	return m, cmd
}

// dispatches the operation matching the current screen
func (m *Model) submitForm() tea.Cmd {
	v := m.form.values()

	switch m.state {
	case StateLogin:
		return m.loginCmd(v[0], v[1])

	case StateSignup:
		return m.signupCmd(v[0], v[1], v[2])

	case StateForgot:
		return m.forgotCmd(v[0])

	case StateReset:
		return m.resetCmd(v[0], v[1], v[2])

	default:
		return nil
	}
}

func (f *Form) View(m *Model) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(f.title))
	b.WriteString("\n\n")

	for i := range f.fields {
		b.WriteString(labelStyle.Render(f.labels[i]))
		b.WriteString("\n")
		b.WriteString(f.fields[i].View())
		b.WriteString("\n")

		if f.fieldErrs[i] != "" {
			b.WriteString(errorStyle.Render(f.fieldErrs[i]))
			b.WriteString("\n")
		}

		b.WriteString("\n")
	}

	if m.auth.IsLoading {
		b.WriteString(m.spinner.View() + " working...\n")
	}

	if m.auth.Error != "" {
		b.WriteString(errorStyle.Render(m.auth.Error) + "\n")
	}

	if m.state == StateForgot && m.auth.ForgotPasswordMessage != "" {
		b.WriteString(successStyle.Render(m.auth.ForgotPasswordMessage) + "\n")
	}

	if m.state == StateReset && m.auth.ResetPasswordMessage != "" {
		b.WriteString(successStyle.Render(m.auth.ResetPasswordMessage) + "\n")
	}

	b.WriteString(helpStyle.Render("tab next field · enter submit · esc back"))

	return b.String()
}
