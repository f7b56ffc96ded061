package sdk

import (
	"context"
	"errors"

	"github.com/celerix-dev/celerix-contacts/pkg/schema"
)

// Errors returned by every Backend implementation, re-exported from schema
// so callers can match them without importing the wire types.
var (
	ErrInvalidRequest     = schema.ErrInvalidRequest
	ErrInvalidCredentials = schema.ErrInvalidCredentials
	ErrUserExists         = schema.ErrUserExists
	ErrWeakPassword       = schema.ErrWeakPassword
	ErrSessionNotFound    = schema.ErrSessionNotFound
	ErrSessionExpired     = schema.ErrSessionExpired
	ErrRecoveryOnly       = schema.ErrRecoveryOnly
	ErrInvalidToken       = schema.ErrInvalidToken
	ErrNotFound           = schema.ErrNotFound
	ErrForbidden          = schema.ErrForbidden
	ErrInternal           = schema.ErrInternal
)

// IsSessionAbsent reports whether err means there is no usable session.
// Callers resolve this class by redirecting to login rather than showing an error.
func IsSessionAbsent(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionExpired)
}

// Message returns the platform's own message for err, or "" when err is an
// internal or transport failure that callers should describe themselves.
func Message(err error) string {
	if err == nil || schema.Code(err) == schema.CodeInternal {
		return ""
	}
	return err.Error()
}

// --- Functional Interfaces (Interface Segregation) ---

// Authenticator covers the platform's managed auth operations.
// Operations acting on a signed-in user take its access token explicitly.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string) (schema.User, error)
	SignInWithPassword(ctx context.Context, email, password string) (schema.Session, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (schema.User, error)
	RefreshSession(ctx context.Context, refreshToken string) (schema.Session, error)
	// ResetPasswordForEmail sends a recovery link that ends at redirectTo.
	// It succeeds for unknown emails too so registration is not leaked.
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	// VerifyRecovery exchanges an emailed recovery token for a recovery session.
	VerifyRecovery(ctx context.Context, token string) (schema.Session, error)
	UpdateUser(ctx context.Context, accessToken string, attrs schema.UserAttributes) (schema.User, error)
}

// ContactsTable covers the managed contacts table.
// Every call is authorized by accessToken and limited to rows the caller owns.
type ContactsTable interface {
	SelectContacts(ctx context.Context, accessToken, userID string) ([]schema.Contact, error)
	InsertContacts(ctx context.Context, accessToken string, rows []schema.ContactInput) ([]schema.Contact, error)
	UpdateContact(ctx context.Context, accessToken, id string, patch schema.ContactPatch) ([]schema.Contact, error)
	DeleteContact(ctx context.Context, accessToken, id string) error
}

// --- Composite Interfaces ---

// Backend is the full platform contract, served embedded or over the network.
type Backend interface {
	Authenticator
	ContactsTable
	Close() error
}
