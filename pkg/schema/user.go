// Package schema defines the data structures shared by the contacts platform and its clients.
package schema

import "time"

// User is the public view of an authenticated identity.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
	LastSignInAt time.Time `json:"last_sign_in_at,omitempty"`
}

// UserRecord is the stored form of a user.
// It lives in the '_system' persona under the 'users' app, keyed by normalized email.
type UserRecord struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	LastSignInAt time.Time `json:"last_sign_in_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// Public strips the credential material from a record.
func (r UserRecord) Public() User {
	return User{
		ID:           r.ID,
		Email:        r.Email,
		CreatedAt:    r.CreatedAt,
		LastSignInAt: r.LastSignInAt,
	}
}

// UserAttributes carries the fields a signed-in user may change about themselves.
type UserAttributes struct {
	Password string `json:"password,omitempty"`
}

// AuditLog represents a standardized event log entry.
type AuditLog struct {
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Details   string    `json:"details"`
}
