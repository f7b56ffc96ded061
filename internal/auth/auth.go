// Package auth implements the platform's managed authentication: users, sessions,
// refresh tokens and password recovery.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/celerix-dev/celerix-contacts/internal/config"
	"github.com/celerix-dev/celerix-contacts/internal/engine"
	"github.com/celerix-dev/celerix-contacts/internal/mailer"
	"github.com/celerix-dev/celerix-contacts/pkg/schema"
)

// Apps of the system persona used by the auth service.
const (
	AppUsers    = "users"
	AppSessions = "sessions"
	AppRefresh  = "refresh"
	AppRecovery = "recovery"
	AppAudit    = "audit"
)

type sessionRecord struct {
	UserID       string    `json:"user_id"`
	Email        string    `json:"email"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Recovery     bool      `json:"recovery,omitempty"`
}

type refreshRecord struct {
	AccessToken string    `json:"access_token"`
	Email       string    `json:"email"`
	ExpiresAt   time.Time `json:"expires_at"`
	Recovery    bool      `json:"recovery,omitempty"`
}

type recoveryTicket struct {
	Email     string    `json:"email"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithBcryptCost sets the hashing cost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithAllowedRedirects trusts more recovery redirect targets besides the
// site URL and the configured allow list.
func WithAllowedRedirects(urls ...string) Option {
	return func(s *Service) { s.redirects = append(s.redirects, urls...) }
}

// Service issues and validates sessions for users stored in the engine.
type Service struct {
	users    *engine.AppScope
	sessions *engine.AppScope
	refresh  *engine.AppScope
	recovery *engine.AppScope
	audit    *engine.AppScope

	mailer mailer.Mailer
	cfg    config.Auth
	logger *zap.Logger
	now    func() time.Time
	cost   int

	redirects []string

	mu sync.Mutex // Serializes check-then-write sequences.
}

// New creates a Service persisting into the system persona of kv.
func New(kv engine.KV, m mailer.Mailer, cfg config.Auth, opts ...Option) *Service {
	s := &Service{
		users:    engine.Scope(kv, engine.SystemPersona, AppUsers),
		sessions: engine.Scope(kv, engine.SystemPersona, AppSessions),
		refresh:  engine.Scope(kv, engine.SystemPersona, AppRefresh),
		recovery: engine.Scope(kv, engine.SystemPersona, AppRecovery),
		audit:    engine.Scope(kv, engine.SystemPersona, AppAudit),
		mailer:   m,
		cfg:      cfg,
		logger:   zap.NewNop(),
		now:      time.Now,
		cost:     bcrypt.DefaultCost,
	}
	s.redirects = append([]string{cfg.SiteURL}, cfg.RedirectAllowList...)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func newToken() string {
	return rand.Text()
}

func (s *Service) validatePassword(password string) error {
	if len(password) < s.cfg.MinPasswordLength {
		return fmt.Errorf("%w: Password should be at least %d characters", schema.ErrWeakPassword, s.cfg.MinPasswordLength)
	}
	return nil
}

// SignUp registers a new user.
func (s *Service) SignUp(ctx context.Context, email, password string) (schema.User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return schema.User{}, fmt.Errorf("%w: a valid email is required", schema.ErrInvalidRequest)
	}
	if err := s.validatePassword(password); err != nil {
		return schema.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return schema.User{}, fmt.Errorf("auth: hashing password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.userByEmail(email); err == nil {
		return schema.User{}, schema.ErrUserExists
	}

	rec := schema.UserRecord{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Set(email, rec); err != nil {
		return schema.User{}, fmt.Errorf("auth: saving user: %w", err)
	}
	s.record(rec.ID, "user.signup", email)
	s.logger.Info("User signed up", zap.String("user_id", rec.ID))
	return rec.Public(), nil
}

// SignInWithPassword verifies credentials and opens a session.
// Unknown emails and wrong passwords fail identically.
func (s *Service) SignInWithPassword(ctx context.Context, email, password string) (schema.Session, error) {
	email = normalizeEmail(email)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.userByEmail(email)
	if err != nil {
		if isMissing(err) {
			return schema.Session{}, schema.ErrInvalidCredentials
		}
		return schema.Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)); err != nil {
		s.logger.Debug("Password mismatch", zap.String("user_id", rec.ID))
		return schema.Session{}, schema.ErrInvalidCredentials
	}

	rec.LastSignInAt = s.now().UTC()
	if err := s.users.Set(email, rec); err != nil {
		return schema.Session{}, fmt.Errorf("auth: saving user: %w", err)
	}

	sess, err := s.issue(rec, false)
	if err != nil {
		return schema.Session{}, err
	}
	s.record(rec.ID, "user.signin", email)
	return sess, nil
}

// issue opens a session for rec. Caller holds s.mu.
func (s *Service) issue(rec schema.UserRecord, recovery bool) (schema.Session, error) {
	now := s.now().UTC()
	access, refresh := newToken(), newToken()
	expires := now.Add(s.cfg.SessionTTL)

	if err := s.sessions.Set(access, sessionRecord{
		UserID:       rec.ID,
		Email:        rec.Email,
		RefreshToken: refresh,
		ExpiresAt:    expires,
		Recovery:     recovery,
	}); err != nil {
		return schema.Session{}, fmt.Errorf("auth: saving session: %w", err)
	}
	if err := s.refresh.Set(refresh, refreshRecord{
		AccessToken: access,
		Email:       rec.Email,
		ExpiresAt:   now.Add(s.cfg.RefreshTTL),
		Recovery:    recovery,
	}); err != nil {
		return schema.Session{}, fmt.Errorf("auth: saving refresh token: %w", err)
	}

	return schema.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    expires,
		User:         rec.Public(),
		Recovery:     recovery,
	}, nil
}

// authenticate resolves an access token. Caller holds s.mu.
func (s *Service) authenticate(accessToken string) (sessionRecord, schema.UserRecord, error) {
	if accessToken == "" {
		return sessionRecord{}, schema.UserRecord{}, schema.ErrSessionNotFound
	}
	val, err := s.sessions.Get(accessToken)
	if err != nil {
		return sessionRecord{}, schema.UserRecord{}, schema.ErrSessionNotFound
	}
	sess, err := engine.Decode[sessionRecord](val)
	if err != nil {
		return sessionRecord{}, schema.UserRecord{}, fmt.Errorf("auth: decoding session: %w", err)
	}
	if !s.now().Before(sess.ExpiresAt) {
		// The refresh token stays valid until its own expiry.
		if err := s.sessions.Delete(accessToken); err != nil && !isMissing(err) {
			s.logger.Warn("Failed to delete expired session", zap.Error(err))
		}
		return sessionRecord{}, schema.UserRecord{}, schema.ErrSessionExpired
	}
	rec, err := s.userByEmail(sess.Email)
	if err != nil {
		return sessionRecord{}, schema.UserRecord{}, schema.ErrSessionNotFound
	}
	return sess, rec, nil
}

// Authorize resolves the user behind an access token.
// Recovery sessions are rejected with ErrRecoveryOnly.
func (s *Service) Authorize(ctx context.Context, accessToken string) (schema.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, rec, err := s.authenticate(accessToken)
	if err != nil {
		return schema.User{}, err
	}
	if sess.Recovery {
		return schema.User{}, schema.ErrRecoveryOnly
	}
	return rec.Public(), nil
}

// GetUser returns the user behind an access token. A recovery session is only
// good for UpdateUser, so it answers ErrRecoveryOnly, which is how clients
// adopting tokens from a recovery redirect learn what they hold.
func (s *Service) GetUser(ctx context.Context, accessToken string) (schema.User, error) {
	return s.Authorize(ctx, accessToken)
}

// SignOut revokes a session and its refresh token.
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, err := s.sessions.Get(accessToken)
	if err != nil {
		return schema.ErrSessionNotFound
	}
	sess, err := engine.Decode[sessionRecord](val)
	if err != nil {
		return fmt.Errorf("auth: decoding session: %w", err)
	}
	s.revoke(accessToken, sess.RefreshToken)
	s.record(sess.UserID, "user.signout", sess.Email)
	return nil
}

func (s *Service) revoke(accessToken, refreshToken string) {
	if err := s.sessions.Delete(accessToken); err != nil && !isMissing(err) {
		s.logger.Warn("Failed to delete session", zap.Error(err))
	}
	if err := s.refresh.Delete(refreshToken); err != nil && !isMissing(err) {
		s.logger.Warn("Failed to delete refresh token", zap.Error(err))
	}
}

// RefreshSession rotates a refresh token into a new session.
// The old access and refresh tokens stop working.
func (s *Service) RefreshSession(ctx context.Context, refreshToken string) (schema.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, err := s.refresh.Get(refreshToken)
	if err != nil || refreshToken == "" {
		return schema.Session{}, schema.ErrSessionNotFound
	}
	ref, err := engine.Decode[refreshRecord](val)
	if err != nil {
		return schema.Session{}, fmt.Errorf("auth: decoding refresh token: %w", err)
	}
	if !s.now().Before(ref.ExpiresAt) {
		s.revoke(ref.AccessToken, refreshToken)
		return schema.Session{}, schema.ErrSessionExpired
	}
	rec, err := s.userByEmail(ref.Email)
	if err != nil {
		return schema.Session{}, schema.ErrSessionNotFound
	}

	s.revoke(ref.AccessToken, refreshToken)
	sess, err := s.issue(rec, ref.Recovery)
	if err != nil {
		return schema.Session{}, err
	}
	s.logger.Debug("Session refreshed", zap.String("user_id", rec.ID))
	return sess, nil
}

// ResetPasswordForEmail emails a single-use recovery link.
// The link opens the verify endpoint, which redirects to redirectTo with a recovery session.
// Unknown emails succeed without sending anything.
func (s *Service) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	email = normalizeEmail(email)
	if email == "" {
		return fmt.Errorf("%w: email is required", schema.ErrInvalidRequest)
	}
	if redirectTo != "" && !s.AllowsRedirect(redirectTo) {
		s.logger.Warn("Refused recovery redirect", zap.String("redirect_to", redirectTo))
		return fmt.Errorf("%w: redirect_to is not allowed", schema.ErrInvalidRequest)
	}

	s.mu.Lock()
	rec, err := s.userByEmail(email)
	if err != nil {
		s.mu.Unlock()
		s.logger.Debug("Recovery requested for unknown email")
		return nil
	}
	token := newToken()
	err = s.recovery.Set(token, recoveryTicket{
		Email:     email,
		ExpiresAt: s.now().UTC().Add(s.cfg.RecoveryTTL),
	})
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("auth: saving recovery ticket: %w", err)
	}

	msg, err := mailer.RecoveryMessage(email, s.recoveryLink(token, redirectTo), s.cfg.RecoveryTTL)
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return fmt.Errorf("auth: sending recovery email: %w", err)
	}
	s.record(rec.ID, "user.recovery_requested", email)
	return nil
}

// AllowsRedirect reports whether target may receive a recovery session.
// It must share scheme and host with an allowed URL and sit under its path.
func (s *Service) AllowsRedirect(target string) bool {
	t, err := url.Parse(target)
	if err != nil || t.Scheme == "" || t.Host == "" || t.User != nil {
		return false
	}
	for _, raw := range s.redirects {
		allowed, err := url.Parse(raw)
		if err != nil || allowed.Host == "" {
			continue
		}
		if redirectMatches(allowed, t) {
			return true
		}
	}
	return false
}

func redirectMatches(allowed, target *url.URL) bool {
	if !strings.EqualFold(allowed.Scheme, target.Scheme) || !strings.EqualFold(allowed.Host, target.Host) {
		return false
	}
	prefix := strings.TrimSuffix(allowed.Path, "/")
	p := path.Clean("/" + target.Path)
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

func (s *Service) recoveryLink(token, redirectTo string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("type", "recovery")
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return strings.TrimRight(s.cfg.SiteURL, "/") + "/auth/v1/verify?" + q.Encode()
}

// VerifyRecovery consumes a recovery token and opens a recovery session.
func (s *Service) VerifyRecovery(ctx context.Context, token string) (schema.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	val, err := s.recovery.Get(token)
	if err != nil || token == "" {
		return schema.Session{}, schema.ErrInvalidToken
	}
	// Tokens are single use, valid or not.
	if err := s.recovery.Delete(token); err != nil && !isMissing(err) {
		s.logger.Warn("Failed to consume recovery token", zap.Error(err))
		return schema.Session{}, fmt.Errorf("auth: consuming recovery token: %w", err)
	}

	ticket, err := engine.Decode[recoveryTicket](val)
	if err != nil {
		return schema.Session{}, fmt.Errorf("auth: decoding recovery ticket: %w", err)
	}
	if !s.now().Before(ticket.ExpiresAt) {
		return schema.Session{}, schema.ErrInvalidToken
	}
	rec, err := s.userByEmail(ticket.Email)
	if err != nil {
		return schema.Session{}, schema.ErrInvalidToken
	}

	sess, err := s.issue(rec, true)
	if err != nil {
		return schema.Session{}, err
	}
	s.record(rec.ID, "user.recovery_verified", rec.Email)
	return sess, nil
}

// UpdateUser changes the password of the user behind accessToken.
// A recovery session is consumed by a successful change.
func (s *Service) UpdateUser(ctx context.Context, accessToken string, attrs schema.UserAttributes) (schema.User, error) {
	if attrs.Password == "" {
		return schema.User{}, fmt.Errorf("%w: nothing to update", schema.ErrInvalidRequest)
	}
	if err := s.validatePassword(attrs.Password); err != nil {
		return schema.User{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(attrs.Password), s.cost)
	if err != nil {
		return schema.User{}, fmt.Errorf("auth: hashing password: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, rec, err := s.authenticate(accessToken)
	if err != nil {
		return schema.User{}, err
	}
	rec.PasswordHash = string(hash)
	if err := s.users.Set(rec.Email, rec); err != nil {
		return schema.User{}, fmt.Errorf("auth: saving user: %w", err)
	}
	if sess.Recovery {
		s.revoke(accessToken, sess.RefreshToken)
	}
	s.record(rec.ID, "user.password_updated", rec.Email)
	return rec.Public(), nil
}

// LookupUser returns the user registered with email.
func (s *Service) LookupUser(email string) (schema.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.userByEmail(normalizeEmail(email))
	if err != nil {
		return schema.User{}, fmt.Errorf("auth: no user %q: %w", email, err)
	}
	return rec.Public(), nil
}

// Users lists every registered user ordered by email.
func (s *Service) Users() ([]schema.User, error) {
	all, err := s.users.All()
	if err != nil {
		return nil, err
	}
	out := make([]schema.User, 0, len(all))
	for _, v := range all {
		rec, err := engine.Decode[schema.UserRecord](v)
		if err != nil {
			return nil, fmt.Errorf("auth: decoding user: %w", err)
		}
		out = append(out, rec.Public())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

func (s *Service) userByEmail(email string) (schema.UserRecord, error) {
	val, err := s.users.Get(email)
	if err != nil {
		return schema.UserRecord{}, err
	}
	return engine.Decode[schema.UserRecord](val)
}

// record writes an audit entry. Failures are logged, never returned.
func (s *Service) record(actor, action, details string) {
	entry := schema.AuditLog{
		Timestamp: s.now().UTC(),
		Actor:     actor,
		Action:    action,
		Details:   details,
	}
	if err := s.audit.Set(uuid.NewString(), entry); err != nil {
		s.logger.Warn("Failed to write audit entry", zap.String("action", action), zap.Error(err))
	}
}

func isMissing(err error) bool {
	return errors.Is(err, engine.ErrPersonaNotFound) ||
		errors.Is(err, engine.ErrAppNotFound) ||
		errors.Is(err, engine.ErrKeyNotFound)
}
