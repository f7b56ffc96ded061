// Package sdk provides the client-side library for the contacts platform.
// It supports both remote connections via TCP/TLS and local embedded mode.
package sdk

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/pkg/schema"
)

// AuthEvent names a change of the signed-in session.
type AuthEvent string

const (
	EventInitialSession   AuthEvent = "INITIAL_SESSION"
	EventSignedIn         AuthEvent = "SIGNED_IN"
	EventSignedOut        AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed   AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated      AuthEvent = "USER_UPDATED"
	EventPasswordRecovery AuthEvent = "PASSWORD_RECOVERY"
)

// AuthListener receives session changes. session is nil when signed out.
type AuthListener func(event AuthEvent, session *schema.Session)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithSessionStore persists the session with store instead of process memory.
func WithSessionStore(store SessionStore) ClientOption {
	return func(c *Client) { c.store = store }
}

// WithLogger sets the client logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.now = now }
}

// Client is the session-aware entry point used by applications.
// It holds the signed-in session, refreshes it when it expires and tells
// listeners about every change.
type Client struct {
	backend Backend
	store   SessionStore
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	session   *schema.Session
	listeners map[int]AuthListener
	nextID    int

	refreshMu sync.Mutex // One refresh at a time.
}

// NewClient wraps backend and restores a persisted session, if any.
func NewClient(backend Backend, opts ...ClientOption) (*Client, error) {
	c := &Client{
		backend:   backend,
		store:     &MemorySessionStore{},
		logger:    zap.NewNop(),
		now:       time.Now,
		listeners: make(map[int]AuthListener),
	}
	for _, opt := range opts {
		opt(c)
	}
	s, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	c.session = s
	return c, nil
}

// Auth returns the auth operations.
func (c *Client) Auth() *AuthClient {
	return &AuthClient{c: c}
}

// Contacts returns the contacts table operations.
func (c *Client) Contacts() *ContactsClient {
	return &ContactsClient{c: c}
}

// Close releases the backend.
func (c *Client) Close() error {
	return c.backend.Close()
}

func (c *Client) snapshot() *schema.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	cp := *c.session
	return &cp
}

// set replaces the session, persists it and notifies listeners.
// A nil session signs out locally.
func (c *Client) set(event AuthEvent, s *schema.Session) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()

	var err error
	if s == nil {
		err = c.store.Clear()
	} else {
		err = c.store.Save(*s)
	}
	if err != nil {
		c.logger.Warn("Failed to persist session", zap.String("event", string(event)), zap.Error(err))
	}
	c.notify(event, s)
}

// current returns a usable session, refreshing it first when it has expired.
func (c *Client) current(ctx context.Context) (schema.Session, error) {
	s := c.snapshot()
	if s == nil {
		return schema.Session{}, ErrSessionNotFound
	}
	if s.Expired(c.now()) {
		return c.refresh(ctx, *s)
	}
	return *s, nil
}

// refresh trades stale's refresh token for a new session. Concurrent callers
// holding the same stale session share one refresh.
func (c *Client) refresh(ctx context.Context, stale schema.Session) (schema.Session, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	if s := c.snapshot(); s == nil {
		return schema.Session{}, ErrSessionNotFound
	} else if s.AccessToken != stale.AccessToken {
		return *s, nil
	}

	fresh, err := c.backend.RefreshSession(ctx, stale.RefreshToken)
	if err != nil {
		if IsSessionAbsent(err) {
			c.logger.Info("Session could not be refreshed, signing out", zap.Error(err))
			c.set(EventSignedOut, nil)
		}
		return schema.Session{}, err
	}
	c.set(EventTokenRefreshed, &fresh)
	return fresh, nil
}

// authorized runs fn with a valid access token, refreshing and retrying once
// when the platform reports the token expired.
func (c *Client) authorized(ctx context.Context, fn func(token string) error) error {
	s, err := c.current(ctx)
	if err != nil {
		return err
	}
	err = fn(s.AccessToken)
	if errors.Is(err, ErrSessionExpired) {
		if s, err = c.refresh(ctx, s); err != nil {
			return err
		}
		err = fn(s.AccessToken)
	}
	if errors.Is(err, ErrSessionNotFound) {
		c.set(EventSignedOut, nil)
	}
	return err
}

// AuthClient exposes the auth operations of a Client.
type AuthClient struct {
	c *Client
}

// Session returns the locally known session without contacting the platform.
func (a *AuthClient) Session() *schema.Session {
	return a.c.snapshot()
}

// GetUser asks the platform who the current session belongs to.
func (a *AuthClient) GetUser(ctx context.Context) (schema.User, error) {
	var u schema.User
	err := a.c.authorized(ctx, func(token string) error {
		var err error
		u, err = a.c.backend.GetUser(ctx, token)
		return err
	})
	return u, err
}

// OnAuthStateChange registers fn for session changes and immediately reports the
// current state with EventInitialSession. The returned func unsubscribes.
func (a *AuthClient) OnAuthStateChange(fn AuthListener) (unsubscribe func()) {
	c := a.c
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	fn(EventInitialSession, c.snapshot())

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// SignUp registers a new account. It does not sign in.
func (a *AuthClient) SignUp(ctx context.Context, email, password string) (schema.User, error) {
	return a.c.backend.SignUp(ctx, email, password)
}

// SignInWithPassword opens a session and makes it current.
func (a *AuthClient) SignInWithPassword(ctx context.Context, email, password string) (schema.Session, error) {
	s, err := a.c.backend.SignInWithPassword(ctx, email, password)
	if err != nil {
		return schema.Session{}, err
	}
	a.c.set(EventSignedIn, &s)
	return s, nil
}

// SignOut revokes the session on the platform and forgets it locally.
// The local session is dropped even when the platform call fails.
func (a *AuthClient) SignOut(ctx context.Context) error {
	s := a.c.snapshot()
	if s == nil {
		return nil
	}
	err := a.c.backend.SignOut(ctx, s.AccessToken)
	a.c.set(EventSignedOut, nil)
	if err != nil && !IsSessionAbsent(err) {
		return err
	}
	return nil
}

// ResetPasswordForEmail asks the platform to email a recovery link ending at redirectTo.
func (a *AuthClient) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return a.c.backend.ResetPasswordForEmail(ctx, email, redirectTo)
}

// VerifyRecovery exchanges an emailed token for a recovery session and makes it current.
func (a *AuthClient) VerifyRecovery(ctx context.Context, token string) (schema.Session, error) {
	s, err := a.c.backend.VerifyRecovery(ctx, token)
	if err != nil {
		return schema.Session{}, err
	}
	a.c.set(EventPasswordRecovery, &s)
	return s, nil
}

// SetSession adopts tokens obtained out-of-band, such as a recovery redirect.
// The platform is asked for the user to validate them.
func (a *AuthClient) SetSession(ctx context.Context, s schema.Session) (schema.Session, error) {
	user, err := a.c.backend.GetUser(ctx, s.AccessToken)
	switch {
	case errors.Is(err, ErrRecoveryOnly):
		// The platform does not reveal the user to a recovery session.
		s.Recovery, user, err = true, s.User, nil
	case errors.Is(err, ErrSessionExpired) && s.RefreshToken != "":
		fresh, rerr := a.c.backend.RefreshSession(ctx, s.RefreshToken)
		if rerr != nil {
			return schema.Session{}, rerr
		}
		s, user, err = fresh, fresh.User, nil
	}
	if err != nil {
		return schema.Session{}, err
	}
	s.User = user

	event := EventSignedIn
	if s.Recovery {
		event = EventPasswordRecovery
	}
	a.c.set(event, &s)
	return s, nil
}

// UpdateUser changes the current user's password.
// A recovery session is spent by the change and is dropped locally.
func (a *AuthClient) UpdateUser(ctx context.Context, attrs schema.UserAttributes) (schema.User, error) {
	var u schema.User
	err := a.c.authorized(ctx, func(token string) error {
		var err error
		u, err = a.c.backend.UpdateUser(ctx, token, attrs)
		return err
	})
	if err != nil {
		return schema.User{}, err
	}

	s := a.c.snapshot()
	if s == nil || s.Recovery {
		a.c.set(EventUserUpdated, nil)
		return u, nil
	}
	s.User = u
	a.c.set(EventUserUpdated, s)
	return u, nil
}

// Reload re-reads the persisted session, picking up changes made by another
// process, and notifies listeners when it differs from the current one.
func (a *AuthClient) Reload() error {
	c := a.c
	loaded, err := c.store.Load()
	if err != nil {
		return err
	}
	cur := c.snapshot()

	switch {
	case loaded == nil && cur == nil:
		return nil
	case loaded == nil:
		c.mu.Lock()
		c.session = nil
		c.mu.Unlock()
		c.notify(EventSignedOut, nil)
	case cur != nil && cur.AccessToken == loaded.AccessToken:
		return nil
	default:
		event := EventSignedIn
		switch {
		case loaded.Recovery:
			event = EventPasswordRecovery
		case cur != nil && cur.User.ID == loaded.User.ID:
			event = EventTokenRefreshed
		}
		c.mu.Lock()
		c.session = loaded
		c.mu.Unlock()
		c.notify(event, loaded)
	}
	return nil
}

// notify tells listeners about s without persisting it.
func (c *Client) notify(event AuthEvent, s *schema.Session) {
	c.mu.Lock()
	listeners := make([]AuthListener, 0, len(c.listeners))
	for _, l := range c.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()
	for _, l := range listeners {
		var cp *schema.Session
		if s != nil {
			v := *s
			cp = &v
		}
		l(event, cp)
	}
}

// ContactsClient exposes the contacts table of a Client.
type ContactsClient struct {
	c *Client
}

// Select returns the contacts owned by userID.
func (t *ContactsClient) Select(ctx context.Context, userID string) ([]schema.Contact, error) {
	var rows []schema.Contact
	err := t.c.authorized(ctx, func(token string) error {
		var err error
		rows, err = t.c.backend.SelectContacts(ctx, token, userID)
		return err
	})
	return rows, err
}

// Insert stores rows and returns them as stored by the platform.
func (t *ContactsClient) Insert(ctx context.Context, rows []schema.ContactInput) ([]schema.Contact, error) {
	var out []schema.Contact
	err := t.c.authorized(ctx, func(token string) error {
		var err error
		out, err = t.c.backend.InsertContacts(ctx, token, rows)
		return err
	})
	return out, err
}

// Update patches contact id and returns the updated rows.
func (t *ContactsClient) Update(ctx context.Context, id string, patch schema.ContactPatch) ([]schema.Contact, error) {
	var out []schema.Contact
	err := t.c.authorized(ctx, func(token string) error {
		var err error
		out, err = t.c.backend.UpdateContact(ctx, token, id, patch)
		return err
	})
	return out, err
}

// Delete removes contact id.
func (t *ContactsClient) Delete(ctx context.Context, id string) error {
	return t.c.authorized(ctx, func(token string) error {
		return t.c.backend.DeleteContact(ctx, token, id)
	})
}
