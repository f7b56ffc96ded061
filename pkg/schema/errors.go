package schema

import "errors"

// Platform errors shared by the daemon, the embedded platform and the SDK.
var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidCredentials = errors.New("invalid login credentials")
	ErrUserExists         = errors.New("user already registered")
	ErrWeakPassword       = errors.New("password is too short")
	ErrSessionNotFound    = errors.New("auth session missing")
	ErrSessionExpired     = errors.New("session expired")
	// ErrRecoveryOnly is returned when a recovery session is used for anything but a password change.
	ErrRecoveryOnly = errors.New("recovery session can only update the password")
	// ErrInvalidToken is returned when a recovery token is unknown, used or expired.
	ErrInvalidToken = errors.New("token is invalid or has expired")
	// ErrNotFound is returned when a contact does not exist or is owned by someone else.
	ErrNotFound = errors.New("contact not found")
	// ErrForbidden is returned when selecting rows of another user.
	ErrForbidden = errors.New("permission denied")
	ErrInternal  = errors.New("internal error")
)

// Wire codes carried in "ERR <code> <message>" lines and HTTP error bodies.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeInvalidCredentials = "invalid_credentials"
	CodeUserExists         = "user_exists"
	CodeWeakPassword       = "weak_password"
	CodeSessionNotFound    = "session_not_found"
	CodeSessionExpired     = "session_expired"
	CodeRecoveryOnly       = "recovery_only"
	CodeInvalidToken       = "invalid_token"
	CodeNotFound           = "not_found"
	CodeForbidden          = "forbidden"
	CodeInternal           = "internal"
)

var codes = []struct {
	code string
	err  error
}{
	{CodeInvalidRequest, ErrInvalidRequest},
	{CodeInvalidCredentials, ErrInvalidCredentials},
	{CodeUserExists, ErrUserExists},
	{CodeWeakPassword, ErrWeakPassword},
	{CodeSessionNotFound, ErrSessionNotFound},
	{CodeSessionExpired, ErrSessionExpired},
	{CodeRecoveryOnly, ErrRecoveryOnly},
	{CodeInvalidToken, ErrInvalidToken},
	{CodeNotFound, ErrNotFound},
	{CodeForbidden, ErrForbidden},
}

// Code returns the wire code for err. Unknown errors map to CodeInternal.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// ErrorForCode returns the sentinel error for a wire code.
func ErrorForCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return ErrInternal
}

// APIError is a platform error received over the wire.
// It keeps the platform's message for display and unwraps to the matching sentinel.
type APIError struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return ErrorForCode(e.Code).Error()
	}
	return e.Message
}

func (e *APIError) Unwrap() error {
	return ErrorForCode(e.Code)
}

// PublicMessage returns the message of err safe to send to a client.
// Internal failures are not described beyond their class.
func PublicMessage(err error) string {
	if Code(err) == CodeInternal {
		return ErrInternal.Error()
	}
	return err.Error()
}
