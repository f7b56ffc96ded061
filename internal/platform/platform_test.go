package platform

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/celerix-dev/celerix-contacts/internal/auth"
	"github.com/celerix-dev/celerix-contacts/internal/config"
	"github.com/celerix-dev/celerix-contacts/internal/engine"
	"github.com/celerix-dev/celerix-contacts/internal/mailer"
	"github.com/celerix-dev/celerix-contacts/pkg/schema"
)

func newTestPlatform(t *testing.T) *Platform {
	t.Helper()
	store := engine.NewMemStore(nil, nil)
	a := auth.New(store, &mailer.Outbox{}, config.DefaultConfig().Auth, auth.WithBcryptCost(bcrypt.MinCost))
	return New(store, a, nil)
}

func signIn(t *testing.T, p *Platform, email string) schema.Session {
	t.Helper()
	ctx := context.Background()
	_, err := p.SignUp(ctx, email, "secret1")
	require.NoError(t, err)
	sess, err := p.SignInWithPassword(ctx, email, "secret1")
	require.NoError(t, err)
	return sess
}

func TestContactsCRUD(t *testing.T) {
	p := newTestPlatform(t)
	ctx := context.Background()
	ana := signIn(t, p, "ana@example.com")

	rows, err := p.SelectContacts(ctx, ana.AccessToken, ana.User.ID)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)

	inserted, err := p.InsertContacts(ctx, ana.AccessToken, []schema.ContactInput{
		{UserID: "someone-else", Name: "Beto", Email: "b@x.com", Phone: "555-0101"},
	})
	require.NoError(t, err)
	require.Len(t, inserted, 1)
	c := inserted[0]
	assert.NotEmpty(t, c.ID)
	assert.Equal(t, ana.User.ID, c.UserID, "user_id is forced to the caller")
	assert.False(t, c.CreatedAt.IsZero())

	updated, err := p.UpdateContact(ctx, ana.AccessToken, c.ID, schema.ContactPatch{Name: "Roberto", Email: "r@x.com"})
	require.NoError(t, err)
	require.Len(t, updated, 1)
	assert.Equal(t, "Roberto", updated[0].Name)
	assert.Equal(t, c.CreatedAt, updated[0].CreatedAt)
	assert.False(t, updated[0].HasPhone())

	rows, err = p.SelectContacts(ctx, ana.AccessToken, ana.User.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, updated[0], rows[0])

	require.NoError(t, p.DeleteContact(ctx, ana.AccessToken, c.ID))
	rows, err = p.SelectContacts(ctx, ana.AccessToken, "")
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.ErrorIs(t, p.DeleteContact(ctx, ana.AccessToken, c.ID), schema.ErrNotFound)
}

func TestRowLevelOwnership(t *testing.T) {
	p := newTestPlatform(t)
	ctx := context.Background()
	ana := signIn(t, p, "ana@example.com")
	beto := signIn(t, p, "beto@example.com")

	inserted, err := p.InsertContacts(ctx, ana.AccessToken, []schema.ContactInput{{Name: "Carla", Email: "c@x.com"}})
	require.NoError(t, err)
	id := inserted[0].ID

	_, err = p.SelectContacts(ctx, beto.AccessToken, ana.User.ID)
	assert.ErrorIs(t, err, schema.ErrForbidden)

	rows, err := p.SelectContacts(ctx, beto.AccessToken, beto.User.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = p.UpdateContact(ctx, beto.AccessToken, id, schema.ContactPatch{Name: "X", Email: "x@x.com"})
	assert.ErrorIs(t, err, schema.ErrNotFound)
	assert.ErrorIs(t, p.DeleteContact(ctx, beto.AccessToken, id), schema.ErrNotFound)

	rows, err = p.SelectContacts(ctx, ana.AccessToken, ana.User.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Carla", rows[0].Name)
}

func TestContacts_Unauthorized(t *testing.T) {
	p := newTestPlatform(t)
	ctx := context.Background()

	_, err := p.SelectContacts(ctx, "", "")
	assert.ErrorIs(t, err, schema.ErrSessionNotFound)
	_, err = p.InsertContacts(ctx, "bogus", []schema.ContactInput{{Name: "A", Email: "a@x.com"}})
	assert.ErrorIs(t, err, schema.ErrSessionNotFound)
}

func TestContacts_RequiredFields(t *testing.T) {
	p := newTestPlatform(t)
	ctx := context.Background()
	ana := signIn(t, p, "ana@example.com")

	_, err := p.InsertContacts(ctx, ana.AccessToken, []schema.ContactInput{{Name: "  ", Email: "a@x.com"}})
	assert.ErrorIs(t, err, schema.ErrInvalidRequest)
	_, err = p.InsertContacts(ctx, ana.AccessToken, nil)
	assert.ErrorIs(t, err, schema.ErrInvalidRequest)

	inserted, err := p.InsertContacts(ctx, ana.AccessToken, []schema.ContactInput{{Name: "Ana", Email: "a@x.com"}})
	require.NoError(t, err)
	_, err = p.UpdateContact(ctx, ana.AccessToken, inserted[0].ID, schema.ContactPatch{Name: "Ana"})
	assert.ErrorIs(t, err, schema.ErrInvalidRequest)
}

func TestOpen_SQLite(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Server.DataDir = dir
	cfg.Server.Storage = "sqlite"
	cfg.Server.SQLitePath = filepath.Join(dir, "contacts.db")
	ctx := context.Background()

	p, err := Open(cfg, nil)
	require.NoError(t, err)
	sess := signIn(t, p, "ana@example.com")
	_, err = p.InsertContacts(ctx, sess.AccessToken, []schema.ContactInput{{Name: "Ana", Email: "a@x.com"}})
	require.NoError(t, err)
	require.NoError(t, p.Close())

	reopened, err := Open(cfg, nil)
	require.NoError(t, err)
	defer reopened.Close()

	user, contacts, err := reopened.Export("ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, user.ID)
	require.Len(t, contacts, 1)
	assert.Equal(t, "Ana", contacts[0].Name)

	users, err := reopened.Users()
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestOpen_JSON(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Server.DataDir = t.TempDir()

	p, err := Open(cfg, nil)
	require.NoError(t, err)
	signIn(t, p, "ana@example.com")
	require.NoError(t, p.Close())

	reopened, err := Open(cfg, nil)
	require.NoError(t, err)
	defer reopened.Close()
	_, err = reopened.SignInWithPassword(context.Background(), "ana@example.com", "secret1")
	assert.NoError(t, err)
}
