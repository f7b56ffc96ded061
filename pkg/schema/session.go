package schema

import "time"

// Session is an authenticated user context issued by the platform.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
	// Recovery marks a session granted through a password-reset link.
	// It may only be used to change the password.
	Recovery bool `json:"recovery,omitempty"`
}

// Expired reports whether the access token is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
