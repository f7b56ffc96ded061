package tui

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"golang.org/x/crypto/bcrypt"

	"github.com/celerix-dev/celerix-contacts/internal/auth"
	"github.com/celerix-dev/celerix-contacts/internal/config"
	"github.com/celerix-dev/celerix-contacts/internal/engine"
	"github.com/celerix-dev/celerix-contacts/internal/i18n"
	"github.com/celerix-dev/celerix-contacts/internal/mailer"
	"github.com/celerix-dev/celerix-contacts/internal/platform"
	"github.com/celerix-dev/celerix-contacts/internal/session"
	"github.com/celerix-dev/celerix-contacts/pkg/schema"
	"github.com/celerix-dev/celerix-contacts/pkg/sdk"
)

const (
	testEmail    = "ana@example.com"
	testPassword = "secret1"
)

type harness struct {
	platform *platform.Platform
	client   *sdk.Client
	provider *session.Provider
	outbox   *mailer.Outbox
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := engine.NewMemStore(nil, nil)
	outbox := &mailer.Outbox{}
	a := auth.New(store, outbox, config.DefaultConfig().Auth, auth.WithBcryptCost(bcrypt.MinCost))
	p := platform.New(store, a, nil)
	if _, err := p.SignUp(context.Background(), testEmail, testPassword); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	c, err := sdk.NewClient(p)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return &harness{platform: p, client: c, provider: session.New(c.Auth()), outbox: outbox}
}

func (h *harness) deps() Deps {
	return Deps{
		Session:          h.provider,
		Contacts:         h.client.Contacts(),
		Translator:       i18n.New("en"),
		RecoveryRedirect: "celerix-contacts://update-password",
	}.withDefaults()
}

func (h *harness) signIn(t *testing.T) schema.Session {
	t.Helper()
	s, err := h.client.Auth().SignInWithPassword(context.Background(), testEmail, testPassword)
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	return s
}

// exec runs a command that is known to return immediately.
func exec(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatal("Expected a command, got nil")
	}
	return cmd()
}

// find runs the immediate commands of a batch and returns the first message of type T.
func find[T tea.Msg](t *testing.T, cmd tea.Cmd) T {
	t.Helper()
	msg := exec(t, cmd)
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c == nil {
				continue
			}
			if m, ok := c().(T); ok {
				return m
			}
		}
	}
	m, ok := msg.(T)
	if !ok {
		var zero T
		t.Fatalf("Expected %T, got %T", zero, msg)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func plain(s string) string {
	return ansi.Strip(s)
}

func contains(t *testing.T, view, want string) {
	t.Helper()
	if !strings.Contains(plain(view), want) {
		t.Errorf("View should contain %q, got:\n%s", want, plain(view))
	}
}
