package sdk

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/pkg/schema"
)

const (
	maxAttempts      = 3
	exchangeDeadline = 30 * time.Second
)

// ErrNoReply means a request reached the connection but its reply was lost,
// so whether the daemon applied it is unknown.
var ErrNoReply = errors.New("sdk: request sent but no reply received")

// resendable holds the verbs that only read platform state. They are the only
// ones resent after a lost reply; anything else could be applied twice.
var resendable = map[string]bool{
	VerbPing:   true,
	VerbUser:   true,
	VerbSelect: true,
}

// RemoteOption configures a Remote.
type RemoteOption func(*Remote)

// WithoutTLS dials plain TCP instead of TLS.
func WithoutTLS() RemoteOption {
	return func(r *Remote) { r.plain = true }
}

// WithRemoteLogger sets the logger used for retry diagnostics.
func WithRemoteLogger(logger *zap.Logger) RemoteOption {
	return func(r *Remote) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Remote is a Backend served by a contacts daemon over the line protocol.
type Remote struct {
	addr   string
	plain  bool
	logger *zap.Logger

	mu     sync.Mutex // Protects concurrent access to the connection
	conn   net.Conn
	reader *bufio.Reader
}

// Connect establishes a TLS-encrypted connection to a remote contacts daemon.
func Connect(addr string, opts ...RemoteOption) (*Remote, error) {
	r := &Remote{addr: addr, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.reconnect(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Remote) reconnect() error {
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 60 * time.Second,
	}

	var (
		conn net.Conn
		err  error
	)
	if r.plain {
		conn, err = dialer.Dial("tcp", r.addr)
	} else {
		config := &tls.Config{
			InsecureSkipVerify: true, // The daemon presents a self-signed certificate.
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", r.addr, config)
	}
	if err != nil {
		return err
	}

	r.conn = conn
	r.reader = bufio.NewReader(conn)
	return nil
}

// exchange sends one request and decodes the OK payload into out (which may be nil).
// A request that never left is retried with a fresh connection. Once it has
// been written, only read-only verbs are resent; ERR replies are never retried.
func (r *Remote) exchange(ctx context.Context, verb string, payload, out any) error {
	line := verb
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("sdk: encoding %s: %w", verb, err)
		}
		line += " " + string(data)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	for i := 0; i < maxAttempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if r.conn == nil {
			if reconnectErr := r.reconnect(); reconnectErr != nil {
				err = fmt.Errorf("reconnect failed: %w", reconnectErr)
				if waitErr := backoff(ctx, i); waitErr != nil {
					return waitErr
				}
				continue
			}
		}

		deadline := time.Now().Add(exchangeDeadline)
		if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
			deadline = d
		}
		r.conn.SetDeadline(deadline)

		var (
			resp string
			n    int
		)
		if n, err = io.WriteString(r.conn, line+"\n"); err == nil {
			if resp, err = r.reader.ReadString('\n'); err == nil {
				return decodeReply(strings.TrimSpace(resp), out)
			}
		}
		sent := n > 0

		r.logger.Warn("Exchange failed, reconnecting",
			zap.String("verb", verb),
			zap.Int("attempt", i+1),
			zap.Bool("sent", sent),
			zap.Error(err))
		if reconnectErr := r.reconnect(); reconnectErr != nil {
			r.logger.Warn("Reconnect attempt failed", zap.Error(reconnectErr))
		}
		if sent && !resendable[verb] {
			return fmt.Errorf("sdk: %s: %w: %w", verb, ErrNoReply, err)
		}
		if waitErr := backoff(ctx, i); waitErr != nil {
			return waitErr
		}
	}
	return fmt.Errorf("sdk: %s failed after %d attempts: %w", verb, maxAttempts, err)
}

func backoff(ctx context.Context, attempt int) error {
	t := time.NewTimer(time.Duration((attempt+1)*200) * time.Millisecond)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// decodeReply parses one reply line.
func decodeReply(resp string, out any) error {
	switch {
	case resp == "OK" || resp == "PONG":
		return nil
	case strings.HasPrefix(resp, "OK "):
		if out == nil {
			return nil
		}
		if err := json.Unmarshal([]byte(strings.TrimPrefix(resp, "OK ")), out); err != nil {
			return fmt.Errorf("sdk: decoding reply: %w", err)
		}
		return nil
	case strings.HasPrefix(resp, "ERR "):
		code, msg, _ := strings.Cut(strings.TrimPrefix(resp, "ERR "), " ")
		return &schema.APIError{Code: code, Message: msg}
	default:
		return fmt.Errorf("sdk: unexpected reply %q", resp)
	}
}

// Ping checks that the daemon answers.
func (r *Remote) Ping(ctx context.Context) error {
	return r.exchange(ctx, VerbPing, nil, nil)
}

func (r *Remote) SignUp(ctx context.Context, email, password string) (schema.User, error) {
	var u schema.User
	err := r.exchange(ctx, VerbSignUp, CredentialsRequest{Email: email, Password: password}, &u)
	return u, err
}

func (r *Remote) SignInWithPassword(ctx context.Context, email, password string) (schema.Session, error) {
	var s schema.Session
	err := r.exchange(ctx, VerbSignIn, CredentialsRequest{Email: email, Password: password}, &s)
	return s, err
}

func (r *Remote) SignOut(ctx context.Context, accessToken string) error {
	return r.exchange(ctx, VerbSignOut, TokenRequest{AccessToken: accessToken}, nil)
}

func (r *Remote) GetUser(ctx context.Context, accessToken string) (schema.User, error) {
	var u schema.User
	err := r.exchange(ctx, VerbUser, TokenRequest{AccessToken: accessToken}, &u)
	return u, err
}

func (r *Remote) RefreshSession(ctx context.Context, refreshToken string) (schema.Session, error) {
	var s schema.Session
	err := r.exchange(ctx, VerbRefresh, RefreshRequest{RefreshToken: refreshToken}, &s)
	return s, err
}

func (r *Remote) ResetPasswordForEmail(ctx context.Context, email, redirectTo string) error {
	return r.exchange(ctx, VerbRecover, RecoverRequest{Email: email, RedirectTo: redirectTo}, nil)
}

func (r *Remote) VerifyRecovery(ctx context.Context, token string) (schema.Session, error) {
	var s schema.Session
	err := r.exchange(ctx, VerbVerify, VerifyRequest{Token: token}, &s)
	return s, err
}

func (r *Remote) UpdateUser(ctx context.Context, accessToken string, attrs schema.UserAttributes) (schema.User, error) {
	var u schema.User
	err := r.exchange(ctx, VerbUpdateUser, UpdateUserRequest{AccessToken: accessToken, Attributes: attrs}, &u)
	return u, err
}

func (r *Remote) SelectContacts(ctx context.Context, accessToken, userID string) ([]schema.Contact, error) {
	var rows []schema.Contact
	err := r.exchange(ctx, VerbSelect, SelectRequest{AccessToken: accessToken, UserID: userID}, &rows)
	return rows, err
}

func (r *Remote) InsertContacts(ctx context.Context, accessToken string, rows []schema.ContactInput) ([]schema.Contact, error) {
	var out []schema.Contact
	err := r.exchange(ctx, VerbInsert, InsertRequest{AccessToken: accessToken, Rows: rows}, &out)
	return out, err
}

func (r *Remote) UpdateContact(ctx context.Context, accessToken, id string, patch schema.ContactPatch) ([]schema.Contact, error) {
	var out []schema.Contact
	err := r.exchange(ctx, VerbUpdate, UpdateRequest{AccessToken: accessToken, ID: id, Patch: patch}, &out)
	return out, err
}

func (r *Remote) DeleteContact(ctx context.Context, accessToken, id string) error {
	return r.exchange(ctx, VerbDelete, DeleteRequest{AccessToken: accessToken, ID: id}, nil)
}

// Close says goodbye and drops the connection.
func (r *Remote) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	fmt.Fprintln(r.conn, VerbQuit)
	err := r.conn.Close()
	r.conn = nil
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
