package main

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/celerix-dev/celerix-contacts/internal/auth"
	"github.com/celerix-dev/celerix-contacts/internal/config"
	"github.com/celerix-dev/celerix-contacts/internal/engine"
	"github.com/celerix-dev/celerix-contacts/internal/mailer"
	"github.com/celerix-dev/celerix-contacts/internal/platform"
	"github.com/celerix-dev/celerix-contacts/internal/tui"
	"github.com/celerix-dev/celerix-contacts/pkg/sdk"
)

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	sub, _, err := cmd.Find([]string{"recover"})
	require.NoError(t, err)
	assert.Equal(t, "recover", sub.Name())

	for _, name := range []string{"config", "embedded"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "flag %s", name)
	}
}

func TestRunRequiresTerminal(t *testing.T) {
	err := run(context.Background(), &options{}, tui.RouteGate, nil)
	assert.ErrorIs(t, err, errNoTTY)
}

func TestConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := "client:\n  store_addr: localhost:7001\n  session_file: " + filepath.Join(dir, "state", "session") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	cfg, err := (&options{configPath: path}).config()
	require.NoError(t, err)
	assert.Equal(t, "localhost:7001", cfg.Client.StoreAddr)
	assert.Equal(t, filepath.Join(dir, "state", "contacts.log"), cfg.Log.File)

	cfg, err = (&options{configPath: path, embedded: true}).config()
	require.NoError(t, err)
	assert.Empty(t, cfg.Client.StoreAddr)
}

func TestParseRecoveryLink(t *testing.T) {
	tests := []struct {
		name    string
		link    string
		token   string
		access  string
		refresh string
		expires time.Time
		wantErr bool
	}{
		{
			name:  "emailed link",
			link:  "http://localhost:7002/auth/v1/verify?token=ABC234&type=recovery&redirect_to=celerix-contacts%3A%2F%2Fupdate-password",
			token: "ABC234",
		},
		{
			name:    "redirect target",
			link:    "celerix-contacts://update-password?access_token=at&expires_at=1770000000&refresh_token=rt&type=recovery",
			access:  "at",
			refresh: "rt",
			expires: time.Unix(1770000000, 0).UTC(),
		},
		{
			name:    "tokens in fragment",
			link:    "https://app.example.com/update-password#access_token=at&refresh_token=rt&type=recovery",
			access:  "at",
			refresh: "rt",
		},
		{name: "other type", link: "http://localhost:7002/auth/v1/verify?token=ABC&type=signup", wantErr: true},
		{name: "no token", link: "celerix-contacts://update-password", wantErr: true},
		{name: "bad expiry", link: "celerix-contacts://x?access_token=at&expires_at=soon", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := parseRecoveryLink(tt.link)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.token, l.token)
			if tt.access == "" {
				assert.Nil(t, l.session)
				return
			}
			require.NotNil(t, l.session)
			assert.Equal(t, tt.access, l.session.AccessToken)
			assert.Equal(t, tt.refresh, l.session.RefreshToken)
			assert.True(t, l.session.Recovery)
			assert.True(t, tt.expires.Equal(l.session.ExpiresAt))
		})
	}
}

var tokenInLink = regexp.MustCompile(`token=([A-Z2-7]+)`)

func TestRecoveryLinkOpen(t *testing.T) {
	ctx := context.Background()
	store := engine.NewMemStore(nil, nil)
	outbox := &mailer.Outbox{}
	p := platform.New(store, auth.New(store, outbox, config.DefaultConfig().Auth, auth.WithBcryptCost(bcrypt.MinCost)), nil)
	_, err := p.SignUp(ctx, "ana@example.com", "secret1")
	require.NoError(t, err)

	requestLink := func() string {
		require.NoError(t, p.ResetPasswordForEmail(ctx, "ana@example.com", "celerix-contacts://update-password"))
		msg, ok := outbox.Last()
		require.True(t, ok)
		return tokenInLink.FindString(msg.Body)
	}

	t.Run("emailed link", func(t *testing.T) {
		c, err := sdk.NewClient(p)
		require.NoError(t, err)
		l, err := parseRecoveryLink("http://localhost:7002/auth/v1/verify?type=recovery&" + requestLink())
		require.NoError(t, err)

		require.NoError(t, l.open(ctx, c.Auth()))
		require.NotNil(t, c.Auth().Session())
		assert.True(t, c.Auth().Session().Recovery)

		// Tokens are single use.
		assert.Error(t, l.open(ctx, c.Auth()))
	})

	t.Run("redirect target", func(t *testing.T) {
		link := requestLink()
		rs, err := p.VerifyRecovery(ctx, link[len("token="):])
		require.NoError(t, err)

		c, err := sdk.NewClient(p)
		require.NoError(t, err)
		l, err := parseRecoveryLink("celerix-contacts://update-password?type=recovery&access_token=" + rs.AccessToken + "&refresh_token=" + rs.RefreshToken)
		require.NoError(t, err)

		require.NoError(t, l.open(ctx, c.Auth()))
		require.NotNil(t, c.Auth().Session())
		assert.True(t, c.Auth().Session().Recovery)
	})
}
