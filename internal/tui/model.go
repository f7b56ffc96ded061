// Package tui is the terminal front end of the contacts application.
// Each route is a screen with its own state; the root Model switches between
// them and hosts the navigation bar.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/internal/contacts"
	"github.com/celerix-dev/celerix-contacts/internal/i18n"
	"github.com/celerix-dev/celerix-contacts/internal/session"
	"github.com/celerix-dev/celerix-contacts/pkg/sdk"
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMinPassword = 6
	noticeDuration     = 3 * time.Second
)

// Deps is what the screens need from the rest of the application.
type Deps struct {
	Session    *session.Provider
	Contacts   contacts.Table
	Translator *i18n.Translator
	Logger     *zap.Logger

	// RecoveryRedirect is where emailed recovery links send the user back to.
	RecoveryRedirect  string
	MinPasswordLength int
	// Timeout bounds every remote call.
	Timeout time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Translator == nil {
		d.Translator = i18n.New("")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.MinPasswordLength <= 0 {
		d.MinPasswordLength = defaultMinPassword
	}
	if d.Timeout <= 0 {
		d.Timeout = defaultTimeout
	}
	return d
}

func (d Deps) auth() *sdk.AuthClient {
	return d.Session.Auth()
}

func (d Deps) context() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d.Timeout)
}

// goTo returns a command that navigates to r.
func goTo(r Route) tea.Cmd {
	return func() tea.Msg { return navigateMsg{route: r} }
}

// Model is the root Bubble Tea model.
type Model struct {
	deps   Deps
	route  Route
	width  int
	height int

	nav      navbar
	gate     gateState
	login    loginState
	dash     dashboardState
	forgot   forgotState
	password passwordState
}

// New mounts the application on route. Call Close on the final model when
// the program ends.
func New(deps Deps, route Route) Model {
	deps = deps.withDefaults()
	m := Model{deps: deps, nav: newNavbar(deps)}
	m, _ = m.navigate(route)
	return m
}

// Route returns the active screen.
func (m Model) Route() Route {
	return m.route
}

// Close unmounts the navigation bar, ending its session subscription.
func (m Model) Close() {
	m.nav.close()
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.nav.listen(), m.initScreen())
}

// navigate rebuilds the screen for r and makes it active.
func (m Model) navigate(r Route) (Model, tea.Cmd) {
	m.route = r
	switch r {
	case RouteLogin:
		m.login = newLogin(m.deps)
	case RouteDashboard:
		m.dash = newDashboard(m.deps)
	case RouteForgotPassword:
		m.forgot = newForgot(m.deps)
	case RouteUpdatePassword:
		m.password = newPassword(m.deps)
	default:
		m.route = RouteGate
		m.gate = newGate(m.deps)
	}
	m.deps.Logger.Debug("Navigate", zap.String("route", string(m.route)))
	return m, m.initScreen()
}

func (m Model) initScreen() tea.Cmd {
	switch m.route {
	case RouteLogin:
		return m.login.init()
	case RouteDashboard:
		return m.dash.init()
	case RouteForgotPassword:
		return m.forgot.init()
	case RouteUpdatePassword:
		return m.password.init()
	default:
		return m.gate.init()
	}
}

// reload throws away every screen and the navigation bar and starts over on r.
// Nothing held in memory by the previous screens survives.
func (m Model) reload(r Route) (Model, tea.Cmd) {
	m.nav.close()
	fresh := New(m.deps, r)
	fresh.width, fresh.height = m.width, m.height
	return fresh, fresh.Init()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			return m, tea.Quit
		}
		if key.Matches(msg, keys.SignOut) && m.nav.session != nil {
			return m, m.nav.signOut()
		}

	case navigateMsg:
		return m.navigate(msg.route)

	case authChangedMsg:
		m.nav.session = msg.session
		listen := m.nav.listen()
		if msg.event == sdk.EventPasswordRecovery && m.route != RouteUpdatePassword {
			var cmd tea.Cmd
			m, cmd = m.navigate(RouteUpdatePassword)
			return m, tea.Batch(listen, cmd)
		}
		return m, listen

	case signedOutMsg:
		if msg.err != nil {
			m.deps.Logger.Warn("Sign out failed on the platform", zap.Error(msg.err))
		}
		return m.reload(RouteLogin)
	}

	var cmd tea.Cmd
	switch m.route {
	case RouteLogin:
		m.login, cmd = m.login.Update(msg)
	case RouteDashboard:
		m.dash, cmd = m.dash.Update(msg)
	case RouteForgotPassword:
		m.forgot, cmd = m.forgot.Update(msg)
	case RouteUpdatePassword:
		m.password, cmd = m.password.Update(msg)
	default:
		m.gate, cmd = m.gate.Update(msg)
	}
	return m, cmd
}

func (m Model) View() string {
	var screen string
	switch m.route {
	case RouteLogin:
		screen = m.login.View()
	case RouteDashboard:
		screen = m.dash.View()
	case RouteForgotPassword:
		screen = m.forgot.View()
	case RouteUpdatePassword:
		screen = m.password.View()
	default:
		screen = m.gate.View()
	}

	parts := make([]string, 0, 2)
	if bar := m.nav.View(m.width); bar != "" {
		parts = append(parts, bar)
	}
	parts = append(parts, strings.TrimRight(screen, "\n"))
	return lipgloss.JoinVertical(lipgloss.Left, parts...) + "\n"
}
