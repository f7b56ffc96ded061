package schema

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestCodeRoundTrip(t *testing.T) {
	for _, c := range codes {
		wrapped := fmt.Errorf("auth: %w", c.err)
		if got := Code(wrapped); got != c.code {
			t.Errorf("Code(%v) = %q, want %q", c.err, got, c.code)
		}
		if got := ErrorForCode(c.code); got != c.err {
			t.Errorf("ErrorForCode(%q) = %v, want %v", c.code, got, c.err)
		}
	}
	if got := Code(errors.New("disk on fire")); got != CodeInternal {
		t.Errorf("unknown error code = %q, want %q", got, CodeInternal)
	}
	if got := ErrorForCode("nonsense"); got != ErrInternal {
		t.Errorf("unknown code error = %v, want ErrInternal", got)
	}
}

func TestAPIError(t *testing.T) {
	err := error(&APIError{Code: CodeWeakPassword, Message: "Password should be at least 6 characters"})
	if !errors.Is(err, ErrWeakPassword) {
		t.Error("APIError should unwrap to its sentinel")
	}
	if err.Error() != "Password should be at least 6 characters" {
		t.Errorf("Error() = %q, want the platform message", err.Error())
	}

	bare := &APIError{Code: CodeNotFound}
	if bare.Error() != ErrNotFound.Error() {
		t.Errorf("Error() without message = %q, want %q", bare.Error(), ErrNotFound.Error())
	}
}

func TestPublicMessage(t *testing.T) {
	if got := PublicMessage(fmt.Errorf("engine: %w", errors.New("disk full"))); got != ErrInternal.Error() {
		t.Errorf("PublicMessage(internal) = %q, want %q", got, ErrInternal.Error())
	}
	if got := PublicMessage(ErrForbidden); got != ErrForbidden.Error() {
		t.Errorf("PublicMessage(forbidden) = %q", got)
	}
}

func TestSessionExpired(t *testing.T) {
	now := time.Now()
	if (Session{}).Expired(now) {
		t.Error("zero expiry should never expire")
	}
	if !(Session{ExpiresAt: now}).Expired(now) {
		t.Error("session should be expired at its expiry instant")
	}
	if (Session{ExpiresAt: now.Add(time.Minute)}).Expired(now) {
		t.Error("session should not be expired before its expiry")
	}
}

func TestContactPatchApply(t *testing.T) {
	c := Contact{ID: "c1", UserID: "u1", Name: "Ana", Email: "a@x.com", Phone: "555"}
	got := ContactPatch{Name: "Ana María", Email: "am@x.com"}.Apply(c)
	if got.ID != "c1" || got.UserID != "u1" {
		t.Errorf("Apply changed immutable fields: %+v", got)
	}
	if got.Name != "Ana María" || got.Email != "am@x.com" || got.HasPhone() {
		t.Errorf("Apply() = %+v", got)
	}
}
