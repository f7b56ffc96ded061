package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/internal/i18n"
)

// gateState decides where a visitor starts: login without a session, the
// dashboard with one. It shows only a loading line while deciding.
type gateState struct {
	deps    Deps
	spinner spinner.Model
}

func newGate(deps Deps) gateState {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return gateState{deps: deps, spinner: s}
}

func (g gateState) init() tea.Cmd {
	deps := g.deps
	resolve := func() tea.Msg {
		ctx, cancel := deps.context()
		defer cancel()
		s, err := deps.Session.Current(ctx)
		return sessionResolvedMsg{session: s, err: err}
	}
	return tea.Batch(g.spinner.Tick, resolve)
}

func (g gateState) Update(msg tea.Msg) (gateState, tea.Cmd) {
	switch msg := msg.(type) {
	case sessionResolvedMsg:
		// A failed lookup counts as no session.
		if msg.err != nil {
			g.deps.Logger.Warn("Session lookup failed", zap.Error(msg.err))
		}
		switch {
		case msg.session == nil:
			return g, goTo(RouteLogin)
		case msg.session.Recovery:
			return g, goTo(RouteUpdatePassword)
		default:
			return g, goTo(RouteDashboard)
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		g.spinner, cmd = g.spinner.Update(msg)
		return g, cmd
	}
	return g, nil
}

func (g gateState) View() string {
	return g.spinner.View() + " " + g.deps.Translator.T(i18n.AppLoading)
}
