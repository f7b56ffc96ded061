package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/celerix-dev/celerix-contacts/internal/i18n"
	"github.com/celerix-dev/celerix-contacts/internal/recovery"
)

// forgotState asks for the email to send a recovery link to.
type forgotState struct {
	deps  Deps
	email textinput.Model
	form  *recovery.ResetRequest
}

func newForgot(deps Deps) forgotState {
	email := textinput.New()
	email.Prompt = deps.Translator.T(i18n.LoginEmail) + ": "
	email.Placeholder = deps.Translator.T(i18n.ResetPlaceholder)
	email.Focus()
	return forgotState{
		deps:  deps,
		email: email,
		form:  recovery.NewResetRequest(deps.RecoveryRedirect),
	}
}

func (f forgotState) init() tea.Cmd {
	return textinput.Blink
}

func (f forgotState) Update(msg tea.Msg) (forgotState, tea.Cmd) {
	switch msg := msg.(type) {
	case resetResultMsg:
		f.form.Apply(msg.result)
		return f, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Cancel):
			return f, goTo(RouteLogin)
		case key.Matches(msg, keys.Submit):
			// Blank emails and repeated submits are ignored.
			job, err := f.form.Begin(f.email.Value())
			if err != nil {
				return f, nil
			}
			deps := f.deps
			return f, func() tea.Msg {
				ctx, cancel := deps.context()
				defer cancel()
				return resetResultMsg{result: job(ctx, deps.auth())}
			}
		}
	}

	var cmd tea.Cmd
	f.email, cmd = f.email.Update(msg)
	return f, cmd
}

func (f forgotState) View() string {
	tr := f.deps.Translator
	st := f.form.Status()
	submit := tr.T(i18n.ResetSubmit)
	if st.State == recovery.Submitting {
		submit = tr.T(i18n.ResetSubmitting)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(tr.T(i18n.ResetTitle)) + "\n\n")
	b.WriteString(f.email.View() + "\n")
	b.WriteString("\n[ " + submit + " ]\n")
	if st.State == recovery.Done {
		b.WriteString("\n" + message(st.Text(tr), st.Success) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render(tr.T(i18n.ResetBack)))
	return boxStyle().Render(b.String())
}
