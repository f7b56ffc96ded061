// Package recovery implements the two password recovery forms: requesting a
// reset link and choosing a new password from a recovery session.
//
// Like the contact list, each form is driven from an event loop with
// Begin, a Job run off the loop, and Apply.
package recovery

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/celerix-dev/celerix-contacts/internal/i18n"
	"github.com/celerix-dev/celerix-contacts/pkg/schema"
	"github.com/celerix-dev/celerix-contacts/pkg/sdk"
)

// RedirectDelay is how long the success message stays up before returning to login.
const RedirectDelay = 2 * time.Second

var (
	ErrInFlight = errors.New("recovery: request already in progress")
	ErrRequired = errors.New("recovery: field is required")
	ErrTooShort = errors.New("recovery: password is too short")
	ErrMismatch = errors.New("recovery: passwords do not match")
)

// Auth is the part of the auth client the forms use. *sdk.AuthClient implements it.
type Auth interface {
	ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error
	UpdateUser(ctx context.Context, attrs schema.UserAttributes) (schema.User, error)
}

var _ Auth = (*sdk.AuthClient)(nil)

// State is the phase of a form.
type State int

const (
	Idle State = iota
	Submitting
	Done
)

func (s State) String() string {
	switch s {
	case Submitting:
		return "submitting"
	case Done:
		return "done"
	default:
		return "idle"
	}
}

// Status is what a form shows. Success and the message only mean something in Done.
type Status struct {
	State   State
	Success bool
	Key     i18n.Key
	Detail  string
}

// Text renders the status message with tr, preferring the platform's own message.
func (s Status) Text(tr *i18n.Translator) string {
	if s.Detail != "" {
		return s.Detail
	}
	if s.Key == "" {
		return ""
	}
	return tr.T(s.Key)
}

func failed(fallback i18n.Key, err error) Status {
	return Status{State: Done, Key: fallback, Detail: sdk.Message(err)}
}

// Job performs the remote half of a submission.
type Job func(ctx context.Context, a Auth) Result

// Result is the outcome of a Job.
type Result struct {
	origin any
	err    error
}

// Err returns the remote error, if any.
func (r Result) Err() error {
	return r.err
}

// ResetRequest is the "forgot password" form.
type ResetRequest struct {
	redirectTo string
	status     Status
}

// NewResetRequest sends links that end at redirectTo.
func NewResetRequest(redirectTo string) *ResetRequest {
	return &ResetRequest{redirectTo: redirectTo}
}

func (r *ResetRequest) Status() Status {
	return r.status
}

// Begin submits email.
func (r *ResetRequest) Begin(email string) (Job, error) {
	if r.status.State == Submitting {
		return nil, ErrInFlight
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrRequired
	}
	r.status = Status{State: Submitting}
	redirectTo := r.redirectTo
	return func(ctx context.Context, a Auth) Result {
		return Result{origin: r, err: a.ResetPasswordForEmail(ctx, email, redirectTo)}
	}, nil
}

// Apply records the outcome of a Job started by Begin.
func (r *ResetRequest) Apply(res Result) {
	if res.origin != r || r.status.State != Submitting {
		return
	}
	if res.err != nil {
		r.status = failed(i18n.ResetFailed, res.err)
		return
	}
	r.status = Status{State: Done, Success: true, Key: i18n.ResetSent}
}

// PasswordUpdate is the "choose a new password" form.
type PasswordUpdate struct {
	minLength int
	status    Status
}

// NewPasswordUpdate rejects passwords shorter than minLength characters before submitting.
func NewPasswordUpdate(minLength int) *PasswordUpdate {
	return &PasswordUpdate{minLength: minLength}
}

func (p *PasswordUpdate) Status() Status {
	return p.status
}

// MinLength is the shortest password Begin accepts.
func (p *PasswordUpdate) MinLength() int {
	return p.minLength
}

// Begin submits password after checking it against confirmation.
// A mismatch finishes the form with an error without contacting the platform.
// A short password is refused without changing the form.
func (p *PasswordUpdate) Begin(password, confirmation string) (Job, error) {
	if p.status.State == Submitting {
		return nil, ErrInFlight
	}
	if utf8.RuneCountInString(password) < p.minLength {
		return nil, ErrTooShort
	}
	if password != confirmation {
		p.status = Status{State: Done, Key: i18n.PasswordMismatch}
		return nil, ErrMismatch
	}
	p.status = Status{State: Submitting}
	attrs := schema.UserAttributes{Password: password}
	return func(ctx context.Context, a Auth) Result {
		_, err := a.UpdateUser(ctx, attrs)
		return Result{origin: p, err: err}
	}, nil
}

// Apply records the outcome of a Job started by Begin.
// On success the caller returns to login after RedirectDelay.
func (p *PasswordUpdate) Apply(res Result) {
	if res.origin != p || p.status.State != Submitting {
		return
	}
	if res.err != nil {
		p.status = failed(i18n.PasswordUpdateFailed, res.err)
		return
	}
	p.status = Status{State: Done, Success: true, Key: i18n.PasswordUpdated}
}
