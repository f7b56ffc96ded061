// Package platform is the managed backend of the contacts system: auth plus a
// contacts table whose rows are only visible to their owner.
package platform

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/internal/auth"
	"github.com/celerix-dev/celerix-contacts/internal/config"
	"github.com/celerix-dev/celerix-contacts/internal/engine"
	"github.com/celerix-dev/celerix-contacts/internal/mailer"
	"github.com/celerix-dev/celerix-contacts/pkg/schema"
)

// AppContacts is the app holding a user's contacts inside their persona.
const AppContacts = "contacts"

// Platform implements the backend contract on top of an engine store.
// Each user's contacts live in the persona named after the user ID, which is
// what scopes every read and write to its owner.
type Platform struct {
	kv     engine.KV
	auth   *auth.Service
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex // Serializes read-modify-write on contact rows.
	closers []func() error
}

// New wraps kv and an auth service.
func New(kv engine.KV, a *auth.Service, logger *zap.Logger) *Platform {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Platform{kv: kv, auth: a, logger: logger, now: time.Now}
}

// Open builds a Platform from configuration: storage backend, mailer and auth policy.
func Open(cfg config.Config, logger *zap.Logger) (*Platform, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		persister engine.Persister
		closers   []func() error
	)
	switch cfg.Server.Storage {
	case "sqlite":
		db, err := engine.OpenSQLite(cfg.Server.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("platform: opening sqlite: %w", err)
		}
		persister = db
		closers = append(closers, db.Close)
	default:
		fp, err := engine.NewPersistence(cfg.Server.DataDir, logger)
		if err != nil {
			return nil, fmt.Errorf("platform: initializing persistence: %w", err)
		}
		persister = fp
	}

	initial, err := persister.LoadAll()
	if err != nil {
		logger.Warn("Could not load existing data", zap.Error(err))
	}
	store := engine.NewMemStore(initial, persister, engine.WithLogger(logger))
	logger.Info("Engine started",
		zap.String("storage", cfg.Server.Storage),
		zap.Int("personas", len(initial)))

	m, err := mailer.New(cfg.Mail, logger)
	if err != nil {
		return nil, err
	}

	a := auth.New(store, m, cfg.Auth,
		auth.WithLogger(logger),
		auth.WithAllowedRedirects(cfg.AllowedRedirects()...))
	p := New(store, a, logger)
	// Pending writes must land before the database handle goes away.
	p.closers = append([]func() error{func() error { store.Wait(); return nil }}, closers...)
	return p, nil
}

// Close flushes pending writes and releases storage.
func (p *Platform) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Auth exposes the underlying auth service for administrative use.
func (p *Platform) Auth() *auth.Service {
	return p.auth
}

// --- Auth ---

func (p *Platform) SignUp(ctx context.Context, email, password string) (schema.User, error) {
	return p.auth.SignUp(ctx, email, password)
}

func (p *Platform) SignInWithPassword(ctx context.Context, email, password string) (schema.Session, error) {
	return p.auth.SignInWithPassword(ctx, email, password)
}

func (p *Platform) SignOut(ctx context.Context, accessToken string) error {
	return p.auth.SignOut(ctx, accessToken)
}

func (p *Platform) GetUser(ctx context.Context, accessToken string) (schema.User, error) {
	return p.auth.GetUser(ctx, accessToken)
}

func (p *Platform) RefreshSession(ctx context.Context, refreshToken string) (schema.Session, error) {
	return p.auth.RefreshSession(ctx, refreshToken)
}

func (p *Platform) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return p.auth.ResetPasswordForEmail(ctx, email, redirectTo)
}

func (p *Platform) VerifyRecovery(ctx context.Context, token string) (schema.Session, error) {
	return p.auth.VerifyRecovery(ctx, token)
}

func (p *Platform) UpdateUser(ctx context.Context, accessToken string, attrs schema.UserAttributes) (schema.User, error) {
	return p.auth.UpdateUser(ctx, accessToken, attrs)
}

// --- Contacts ---

func (p *Platform) table(userID string) *engine.AppScope {
	return engine.Scope(p.kv, userID, AppContacts)
}

// SelectContacts returns the caller's contacts ordered by creation time.
// Filtering on another user's ID is refused.
func (p *Platform) SelectContacts(ctx context.Context, accessToken, userID string) ([]schema.Contact, error) {
	user, err := p.auth.Authorize(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if userID != "" && userID != user.ID {
		p.logger.Warn("Refused cross-user select", zap.String("user_id", user.ID))
		return nil, schema.ErrForbidden
	}
	return p.list(user.ID)
}

func (p *Platform) list(userID string) ([]schema.Contact, error) {
	all, err := p.table(userID).All()
	if err != nil {
		return nil, fmt.Errorf("platform: listing contacts: %w", err)
	}
	return decodeContacts(all)
}

// decodeContacts turns the keys of one contacts app into rows in creation order.
func decodeContacts(all map[string]any) ([]schema.Contact, error) {
	out := make([]schema.Contact, 0, len(all))
	for _, v := range all {
		c, err := engine.Decode[schema.Contact](v)
		if err != nil {
			return nil, fmt.Errorf("platform: decoding contact: %w", err)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func validateRow(name, email string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", schema.ErrInvalidRequest)
	}
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("%w: email is required", schema.ErrInvalidRequest)
	}
	return nil
}

// InsertContacts stores rows for the caller and returns them as stored.
// user_id is always the caller's, whatever the input says.
func (p *Platform) InsertContacts(ctx context.Context, accessToken string, rows []schema.ContactInput) ([]schema.Contact, error) {
	user, err := p.auth.Authorize(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no rows to insert", schema.ErrInvalidRequest)
	}
	for _, r := range rows {
		if err := validateRow(r.Name, r.Email); err != nil {
			return nil, err
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now().UTC()
	out := make([]schema.Contact, 0, len(rows))
	for _, r := range rows {
		c := schema.Contact{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			Name:      r.Name,
			Email:     r.Email,
			Phone:     r.Phone,
			CreatedAt: now,
		}
		if err := p.table(user.ID).Set(c.ID, c); err != nil {
			return nil, fmt.Errorf("platform: saving contact: %w", err)
		}
		out = append(out, c)
	}
	p.logger.Info("Contacts inserted", zap.String("user_id", user.ID), zap.Int("rows", len(out)))
	return out, nil
}

// UpdateContact applies patch to the caller's contact id.
// Contacts of other users are reported as not found.
func (p *Platform) UpdateContact(ctx context.Context, accessToken, id string, patch schema.ContactPatch) ([]schema.Contact, error) {
	user, err := p.auth.Authorize(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if err := validateRow(patch.Name, patch.Email); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current, err := p.get(user.ID, id)
	if err != nil {
		return nil, err
	}
	updated := patch.Apply(current)
	if err := p.table(user.ID).Set(id, updated); err != nil {
		return nil, fmt.Errorf("platform: saving contact: %w", err)
	}
	p.logger.Info("Contact updated", zap.String("user_id", user.ID), zap.String("id", id))
	return []schema.Contact{updated}, nil
}

// DeleteContact removes the caller's contact id.
func (p *Platform) DeleteContact(ctx context.Context, accessToken, id string) error {
	user, err := p.auth.Authorize(ctx, accessToken)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := p.get(user.ID, id); err != nil {
		return err
	}
	if err := p.table(user.ID).Delete(id); err != nil {
		return fmt.Errorf("platform: deleting contact: %w", err)
	}
	p.logger.Info("Contact deleted", zap.String("user_id", user.ID), zap.String("id", id))
	return nil
}

func (p *Platform) get(userID, id string) (schema.Contact, error) {
	if id == "" {
		return schema.Contact{}, schema.ErrNotFound
	}
	val, err := p.table(userID).Get(id)
	if err != nil {
		return schema.Contact{}, schema.ErrNotFound
	}
	return engine.Decode[schema.Contact](val)
}

// --- Administration ---

// Users lists every registered user.
func (p *Platform) Users() ([]schema.User, error) {
	return p.auth.Users()
}

// Account pairs a user with their contacts.
type Account struct {
	User     schema.User      `json:"user"`
	Contacts []schema.Contact `json:"contacts"`
}

// ExportAll returns every user with their contacts, ordered by email.
// The contacts of all personas are read in a single pass.
func (p *Platform) ExportAll() ([]Account, error) {
	users, err := p.auth.Users()
	if err != nil {
		return nil, fmt.Errorf("platform: listing users: %w", err)
	}
	dump, err := p.kv.DumpApp(AppContacts)
	if err != nil {
		return nil, fmt.Errorf("platform: dumping contacts: %w", err)
	}
	out := make([]Account, 0, len(users))
	for _, u := range users {
		rows, err := decodeContacts(dump[u.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, Account{User: u, Contacts: rows})
	}
	return out, nil
}

// Export returns a user and all of their contacts.
func (p *Platform) Export(email string) (schema.User, []schema.Contact, error) {
	user, err := p.auth.LookupUser(email)
	if err != nil {
		return schema.User{}, nil, err
	}
	contacts, err := p.list(user.ID)
	if err != nil {
		return schema.User{}, nil, err
	}
	return user, contacts, nil
}
