package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/internal/i18n"
	"github.com/celerix-dev/celerix-contacts/pkg/sdk"
)

const (
	loginEmail = iota
	loginPassword
)

// loginState is the sign-in form, which also switches to sign-up.
type loginState struct {
	deps       Deps
	inputs     [2]textinput.Model
	focus      int
	signUp     bool
	submitting bool
	status     string
	ok         bool
}

func newLogin(deps Deps) loginState {
	tr := deps.Translator
	email := textinput.New()
	email.Prompt = tr.T(i18n.LoginEmail) + ": "
	email.Placeholder = "tu@email.com"
	email.Focus()

	password := textinput.New()
	password.Prompt = tr.T(i18n.LoginPassword) + ": "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	return loginState{deps: deps, inputs: [2]textinput.Model{email, password}}
}

func (l loginState) init() tea.Cmd {
	return textinput.Blink
}

func (l loginState) Update(msg tea.Msg) (loginState, tea.Cmd) {
	switch msg := msg.(type) {
	case loginResultMsg:
		return l.applyResult(msg)

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Cancel):
			return l, tea.Quit
		case key.Matches(msg, keys.ToggleAuth):
			l.signUp = !l.signUp
			l.status = ""
			return l, nil
		case key.Matches(msg, keys.Forgot):
			return l, goTo(RouteForgotPassword)
		case key.Matches(msg, keys.Next):
			return l.setFocus(l.focus + 1), nil
		case key.Matches(msg, keys.Prev):
			return l.setFocus(l.focus - 1), nil
		case key.Matches(msg, keys.Submit):
			if l.focus == loginEmail {
				return l.setFocus(loginPassword), nil
			}
			return l.submit()
		}
	}

	var cmd tea.Cmd
	l.inputs[l.focus], cmd = l.inputs[l.focus].Update(msg)
	return l, cmd
}

func (l loginState) setFocus(i int) loginState {
	n := len(l.inputs)
	l.focus = ((i % n) + n) % n
	for j := range l.inputs {
		if j == l.focus {
			l.inputs[j].Focus()
		} else {
			l.inputs[j].Blur()
		}
	}
	return l
}

func (l loginState) submit() (loginState, tea.Cmd) {
	if l.submitting {
		return l, nil
	}
	email := strings.TrimSpace(l.inputs[loginEmail].Value())
	password := l.inputs[loginPassword].Value()
	if email == "" || password == "" {
		l.status, l.ok = l.deps.Translator.T(i18n.LoginRequired), false
		return l, nil
	}

	l.submitting = true
	l.status = ""
	deps, signUp := l.deps, l.signUp
	return l, func() tea.Msg {
		ctx, cancel := deps.context()
		defer cancel()
		var err error
		if signUp {
			_, err = deps.auth().SignUp(ctx, email, password)
		} else {
			_, err = deps.auth().SignInWithPassword(ctx, email, password)
		}
		return loginResultMsg{signUp: signUp, err: err}
	}
}

func (l loginState) applyResult(msg loginResultMsg) (loginState, tea.Cmd) {
	l.submitting = false
	tr := l.deps.Translator
	if msg.err != nil {
		l.deps.Logger.Info("Authentication failed", zap.Bool("sign_up", msg.signUp), zap.Error(msg.err))
		l.status, l.ok = sdk.Message(msg.err), false
		if l.status == "" {
			l.status = tr.T(i18n.LoginFailed)
		}
		return l, nil
	}
	if msg.signUp {
		l.signUp = false
		l.inputs[loginPassword].SetValue("")
		l.status, l.ok = tr.T(i18n.SignUpDone), true
		return l, nil
	}
	return l, goTo(RouteDashboard)
}

func (l loginState) View() string {
	tr := l.deps.Translator
	title, submit := tr.T(i18n.LoginTitle), tr.T(i18n.LoginSubmit)
	if l.signUp {
		title, submit = tr.T(i18n.SignUpTitle), tr.T(i18n.SignUpSubmit)
	}
	if l.submitting {
		submit = tr.T(i18n.LoginSubmitting)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(title) + "\n\n")
	for _, in := range l.inputs {
		b.WriteString(in.View() + "\n")
	}
	b.WriteString("\n[ " + submit + " ]\n")
	if l.status != "" {
		b.WriteString("\n" + message(l.status, l.ok) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render(tr.T(i18n.LoginToggleHint)))
	b.WriteString("\n" + dimStyle.Render(tr.T(i18n.LoginForgotHint)))
	b.WriteString("\n" + dimStyle.Render(tr.T(i18n.LoginHelp)))
	return boxStyle().Render(b.String())
}
