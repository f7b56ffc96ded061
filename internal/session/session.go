// Package session provides the signed-in session to the screens that need it.
// Screens receive a Provider instead of reading the SDK client directly, so the
// same session state can be observed, replaced in tests and kept in sync with
// other processes sharing the session file.
package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/pkg/schema"
	"github.com/celerix-dev/celerix-contacts/pkg/sdk"
)

// Listener receives session changes. s is nil when signed out.
type Listener func(event sdk.AuthEvent, s *schema.Session)

// Option configures a Provider.
type Option func(*Provider)

// WithLogger sets the provider logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithWatchFile makes Start follow changes to the session file at path.
func WithWatchFile(path string) Option {
	return func(p *Provider) { p.path = filepath.Clean(path) }
}

// Provider exposes the current session and its changes.
type Provider struct {
	auth   *sdk.AuthClient
	logger *zap.Logger
	path   string

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
}

// New wraps the auth scope of an SDK client.
func New(auth *sdk.AuthClient, opts ...Option) *Provider {
	p := &Provider{auth: auth, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Auth returns the wrapped auth client.
func (p *Provider) Auth() *sdk.AuthClient {
	return p.auth
}

// Current returns the signed-in session, or nil when there is none.
// The session is confirmed with the platform, which also refreshes an expired
// access token. A failed confirmation is reported as an error; callers treat
// it the same as no session.
func (p *Provider) Current(ctx context.Context) (*schema.Session, error) {
	if p.auth.Session() == nil {
		return nil, nil
	}
	if _, err := p.auth.GetUser(ctx); err != nil {
		switch {
		case errors.Is(err, sdk.ErrRecoveryOnly):
			// Valid, but only good for setting a new password.
		case sdk.IsSessionAbsent(err):
			return nil, nil
		default:
			return nil, err
		}
	}
	return p.auth.Session(), nil
}

// Subscribe calls fn with the current state and then with every change until
// the returned func is called.
func (p *Provider) Subscribe(fn Listener) (unsubscribe func()) {
	return p.auth.OnAuthStateChange(func(e sdk.AuthEvent, s *schema.Session) { fn(e, s) })
}

// Start follows the session file until Stop is called or ctx ends.
// It does nothing when no file is configured.
func (p *Provider) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running || p.path == "" {
		return nil
	}

	// The file is replaced by rename on every save, so the directory is watched.
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return err
	}

	p.watcher = w
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.running = true
	go p.run(ctx, w, p.stopCh, p.doneCh)

	p.logger.Debug("Watching session file", zap.String("path", p.path))
	return nil
}

// Stop ends watching and waits for the watch loop to exit.
func (p *Provider) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	w, stopCh, doneCh := p.watcher, p.stopCh, p.doneCh
	p.watcher = nil
	p.mu.Unlock()

	close(stopCh)
	<-doneCh
	if err := w.Close(); err != nil {
		p.logger.Warn("Failed to close session watcher", zap.Error(err))
	}
}

func (p *Provider) run(ctx context.Context, w *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			p.handleEvent(event)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			p.logger.Warn("Session watcher error", zap.Error(err))
		}
	}
}

func (p *Provider) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != p.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}
	if err := p.auth.Reload(); err != nil {
		p.logger.Warn("Failed to reload session", zap.String("op", event.Op.String()), zap.Error(err))
	}
}
