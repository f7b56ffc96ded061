package tui

import (
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/celerix-dev/celerix-contacts/internal/i18n"
	"github.com/celerix-dev/celerix-contacts/pkg/schema"
	"github.com/celerix-dev/celerix-contacts/pkg/sdk"
)

// navbar shows the signed-in user and the sign-out control. It follows the
// session for as long as it is mounted; changes arrive through events and are
// picked up by listen.
type navbar struct {
	deps    Deps
	session *schema.Session

	events      chan authChangedMsg
	done        chan struct{}
	unsubscribe func()
	once        *sync.Once
}

func newNavbar(deps Deps) navbar {
	n := navbar{
		deps:   deps,
		events: make(chan authChangedMsg, 16),
		done:   make(chan struct{}),
		once:   &sync.Once{},
	}
	events, done := n.events, n.done
	n.unsubscribe = deps.Session.Subscribe(func(e sdk.AuthEvent, s *schema.Session) {
		select {
		case events <- authChangedMsg{event: e, session: s}:
		case <-done:
		}
	})
	return n
}

// listen waits for the next session change.
func (n navbar) listen() tea.Cmd {
	events, done := n.events, n.done
	return func() tea.Msg {
		select {
		case msg := <-events:
			return msg
		case <-done:
			return nil
		}
	}
}

func (n navbar) close() {
	n.once.Do(func() {
		n.unsubscribe()
		close(n.done)
	})
}

func (n navbar) signOut() tea.Cmd {
	deps := n.deps
	return func() tea.Msg {
		ctx, cancel := deps.context()
		defer cancel()
		return signedOutMsg{err: deps.auth().SignOut(ctx)}
	}
}

// View renders nothing until a session is known.
func (n navbar) View(width int) string {
	if n.session == nil {
		return ""
	}
	tr := n.deps.Translator
	left := navStyle.Render(tr.T(i18n.AppTitle))
	right := dimStyle.Render(n.session.User.Email + "  ctrl+o: " + tr.T(i18n.SignOut))
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 2 {
		gap = 2
	}
	return left + strings.Repeat(" ", gap) + right + "\n"
}
