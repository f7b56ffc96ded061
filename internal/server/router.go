// Package server exposes a Backend over a line-oriented TCP/TLS protocol.
package server

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/pkg/schema"
	"github.com/celerix-dev/celerix-contacts/pkg/sdk"
)

const (
	connDeadline    = 5 * time.Minute
	commandDeadline = 30 * time.Second
	defaultMaxConns = 100
)

type handlerFunc func(ctx context.Context, payload string) (any, error)

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMaxConnections bounds the number of connections served at once.
func WithMaxConnections(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.maxConns = n
		}
	}
}

type Router struct {
	backend  sdk.Backend
	cert     *tls.Certificate
	logger   *zap.Logger
	maxConns int
	handlers map[string]handlerFunc

	mu       sync.Mutex
	listener net.Listener
	stopped  bool
	conns    map[net.Conn]struct{}
	active   sync.WaitGroup
}

func NewRouter(b sdk.Backend, opts ...Option) *Router {
	r := &Router{
		backend:  b,
		logger:   zap.NewNop(),
		maxConns: defaultMaxConns,
		conns:    make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.handlers = r.routes()
	return r
}

// SetCertificate sets the TLS certificate for the router
func (r *Router) SetCertificate(cert tls.Certificate) {
	r.cert = &cert
}

// Addr returns the listening address, or nil before Listen has bound.
func (r *Router) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return nil
	}
	return r.listener.Addr()
}

// Listen starts the TCP server and blocks until Stop is called.
func (r *Router) Listen(port string) error {
	var listener net.Listener
	var err error

	if r.cert != nil {
		config := &tls.Config{Certificates: []tls.Certificate{*r.cert}}
		listener, err = tls.Listen("tcp", ":"+port, config)
	} else {
		listener, err = net.Listen("tcp", ":"+port)
	}
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		listener.Close()
		return nil
	}
	r.listener = listener
	r.mu.Unlock()

	semaphore := make(chan struct{}, r.maxConns)

	for {
		conn, err := listener.Accept()
		if err != nil {
			r.mu.Lock()
			stopped := r.stopped
			r.mu.Unlock()
			if stopped || errors.Is(err, net.ErrClosed) {
				return nil
			}
			r.logger.Warn("Accept failed", zap.Error(err))
			continue
		}

		// Bound the lifetime of every connection to prevent resource exhaustion.
		conn.SetDeadline(time.Now().Add(connDeadline))

		if !r.track(conn) {
			conn.Close()
			return nil
		}
		go func(c net.Conn) {
			defer r.untrack(c)
			semaphore <- struct{}{}
			defer func() {
				<-semaphore
				c.Close()
			}()
			r.HandleConnection(c)
		}(conn)
	}
}

// Stop closes the listener and waits for the connection handlers to return.
// A command already being served gets its reply; idle connections are woken
// and closed.
func (r *Router) Stop() error {
	r.mu.Lock()
	r.stopped = true
	var err error
	if r.listener != nil {
		err = r.listener.Close()
		if errors.Is(err, net.ErrClosed) {
			err = nil
		}
	}
	for c := range r.conns {
		c.SetReadDeadline(time.Now())
	}
	r.mu.Unlock()

	r.active.Wait()
	return err
}

func (r *Router) track(c net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.conns[c] = struct{}{}
	r.active.Add(1)
	return true
}

func (r *Router) untrack(c net.Conn) {
	r.mu.Lock()
	delete(r.conns, c)
	r.mu.Unlock()
	r.active.Done()
}

// armRead sets the deadline for the next command, or reports false once Stop
// has been called. Stop moves the deadlines of tracked connections under the
// same lock, so a reader never sleeps through shutdown.
func (r *Router) armRead(conn net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	conn.SetReadDeadline(time.Now().Add(commandDeadline))
	return true
}

// HandleConnection serves requests from conn until QUIT, EOF or a read timeout.
func (r *Router) HandleConnection(conn net.Conn) {
	reader := bufio.NewReader(conn)

	for {
		if !r.armRead(conn) {
			return
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			return // Connection closed or timeout
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		verb, payload, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)

		switch verb {
		case sdk.VerbPing:
			fmt.Fprintln(conn, "PONG")
			continue
		case sdk.VerbQuit:
			return
		}

		h, ok := r.handlers[verb]
		if !ok {
			r.writeError(conn, fmt.Errorf("%w: unknown command %q", schema.ErrInvalidRequest, verb))
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), commandDeadline)
		res, err := h(ctx, strings.TrimSpace(payload))
		cancel()
		if err != nil {
			r.writeError(conn, err)
			continue
		}
		if res == nil {
			fmt.Fprintln(conn, "OK")
			continue
		}
		out, err := json.Marshal(res)
		if err != nil {
			r.writeError(conn, err)
			continue
		}
		fmt.Fprintln(conn, "OK", string(out))
	}
}

func (r *Router) writeError(conn net.Conn, err error) {
	code := schema.Code(err)
	if code == schema.CodeInternal {
		r.logger.Error("Request failed", zap.Error(err))
	}
	msg := strings.NewReplacer("\r", " ", "\n", " ").Replace(schema.PublicMessage(err))
	fmt.Fprintln(conn, "ERR", code, msg)
}

// decode wraps fn with JSON decoding of the request payload.
func decode[Req any](fn func(ctx context.Context, req Req) (any, error)) handlerFunc {
	return func(ctx context.Context, payload string) (any, error) {
		var req Req
		if payload == "" {
			return nil, fmt.Errorf("%w: missing payload", schema.ErrInvalidRequest)
		}
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return nil, fmt.Errorf("%w: malformed json", schema.ErrInvalidRequest)
		}
		return fn(ctx, req)
	}
}

func (r *Router) routes() map[string]handlerFunc {
	b := r.backend
	return map[string]handlerFunc{
		sdk.VerbSignUp: decode(func(ctx context.Context, req sdk.CredentialsRequest) (any, error) {
			return b.SignUp(ctx, req.Email, req.Password)
		}),
		sdk.VerbSignIn: decode(func(ctx context.Context, req sdk.CredentialsRequest) (any, error) {
			return b.SignInWithPassword(ctx, req.Email, req.Password)
		}),
		sdk.VerbSignOut: decode(func(ctx context.Context, req sdk.TokenRequest) (any, error) {
			return nil, b.SignOut(ctx, req.AccessToken)
		}),
		sdk.VerbUser: decode(func(ctx context.Context, req sdk.TokenRequest) (any, error) {
			return b.GetUser(ctx, req.AccessToken)
		}),
		sdk.VerbRefresh: decode(func(ctx context.Context, req sdk.RefreshRequest) (any, error) {
			return b.RefreshSession(ctx, req.RefreshToken)
		}),
		sdk.VerbRecover: decode(func(ctx context.Context, req sdk.RecoverRequest) (any, error) {
			return nil, b.ResetPasswordForEmail(ctx, req.Email, req.RedirectTo)
		}),
		sdk.VerbVerify: decode(func(ctx context.Context, req sdk.VerifyRequest) (any, error) {
			return b.VerifyRecovery(ctx, req.Token)
		}),
		sdk.VerbUpdateUser: decode(func(ctx context.Context, req sdk.UpdateUserRequest) (any, error) {
			return b.UpdateUser(ctx, req.AccessToken, req.Attributes)
		}),
		sdk.VerbSelect: decode(func(ctx context.Context, req sdk.SelectRequest) (any, error) {
			return b.SelectContacts(ctx, req.AccessToken, req.UserID)
		}),
		sdk.VerbInsert: decode(func(ctx context.Context, req sdk.InsertRequest) (any, error) {
			return b.InsertContacts(ctx, req.AccessToken, req.Rows)
		}),
		sdk.VerbUpdate: decode(func(ctx context.Context, req sdk.UpdateRequest) (any, error) {
			return b.UpdateContact(ctx, req.AccessToken, req.ID, req.Patch)
		}),
		sdk.VerbDelete: decode(func(ctx context.Context, req sdk.DeleteRequest) (any, error) {
			return nil, b.DeleteContact(ctx, req.AccessToken, req.ID)
		}),
	}
}
