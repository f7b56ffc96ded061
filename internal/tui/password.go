package tui

import (
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/internal/i18n"
	"github.com/celerix-dev/celerix-contacts/internal/recovery"
)

// passwordState sets a new password from a recovery session.
type passwordState struct {
	deps   Deps
	inputs [2]textinput.Model
	focus  int
	form   *recovery.PasswordUpdate
	hint   string
}

func newPassword(deps Deps) passwordState {
	tr := deps.Translator
	labels := [2]i18n.Key{i18n.PasswordNew, i18n.PasswordConfirm}
	placeholders := [2]i18n.Key{i18n.PasswordNewPlaceholder, i18n.PasswordConfirmPlaceholder}

	var inputs [2]textinput.Model
	for i := range inputs {
		in := textinput.New()
		in.Prompt = tr.T(labels[i]) + ": "
		in.Placeholder = tr.T(placeholders[i])
		in.EchoMode = textinput.EchoPassword
		in.EchoCharacter = '•'
		inputs[i] = in
	}
	inputs[0].Focus()

	return passwordState{
		deps:   deps,
		inputs: inputs,
		form:   recovery.NewPasswordUpdate(deps.MinPasswordLength),
	}
}

func (p passwordState) init() tea.Cmd {
	return textinput.Blink
}

func (p passwordState) Update(msg tea.Msg) (passwordState, tea.Cmd) {
	switch msg := msg.(type) {
	case passwordResultMsg:
		p.form.Apply(msg.result)
		if err := msg.result.Err(); err != nil {
			p.deps.Logger.Warn("Password update failed", zap.Error(err))
			return p, nil
		}
		if p.form.Status().Success {
			return p, tea.Tick(recovery.RedirectDelay, func(time.Time) tea.Msg {
				return navigateMsg{route: RouteLogin}
			})
		}
		return p, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Next):
			p = p.setFocus(p.focus + 1)
			return p, nil
		case key.Matches(msg, keys.Prev):
			p = p.setFocus(p.focus - 1)
			return p, nil
		case key.Matches(msg, keys.Submit):
			return p.submit()
		}
	}

	var cmd tea.Cmd
	p.inputs[p.focus], cmd = p.inputs[p.focus].Update(msg)
	return p, cmd
}

func (p passwordState) setFocus(i int) passwordState {
	n := len(p.inputs)
	p.focus = ((i % n) + n) % n
	for j := range p.inputs {
		if j == p.focus {
			p.inputs[j].Focus()
		} else {
			p.inputs[j].Blur()
		}
	}
	return p
}

func (p passwordState) submit() (passwordState, tea.Cmd) {
	p.hint = ""
	job, err := p.form.Begin(p.inputs[0].Value(), p.inputs[1].Value())
	switch {
	case errors.Is(err, recovery.ErrTooShort):
		p.hint = p.deps.Translator.T(i18n.PasswordMinLength, p.form.MinLength())
		return p, nil
	case err != nil:
		return p, nil
	}
	deps := p.deps
	return p, func() tea.Msg {
		ctx, cancel := deps.context()
		defer cancel()
		return passwordResultMsg{result: job(ctx, deps.auth())}
	}
}

func (p passwordState) View() string {
	tr := p.deps.Translator
	st := p.form.Status()
	submit := tr.T(i18n.PasswordSubmit)
	if st.State == recovery.Submitting {
		submit = tr.T(i18n.PasswordSubmitting)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(tr.T(i18n.PasswordTitle)) + "\n\n")
	for _, in := range p.inputs {
		b.WriteString(in.View() + "\n")
	}
	if p.hint != "" {
		b.WriteString(dimStyle.Render(p.hint) + "\n")
	}
	b.WriteString("\n[ " + submit + " ]\n")
	if st.State == recovery.Done {
		b.WriteString("\n" + message(st.Text(tr), st.Success) + "\n")
	}
	return boxStyle().Render(b.String())
}
