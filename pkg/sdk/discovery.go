package sdk

import (
	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/internal/config"
	"github.com/celerix-dev/celerix-contacts/internal/platform"
)

var (
	_ Backend = (*platform.Platform)(nil)
	_ Backend = (*Remote)(nil)
)

// New initializes the backend based on the client configuration.
// It returns the interface, so the app doesn't care if it's local or remote.
func New(cfg config.Config, logger *zap.Logger) (Backend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// 1. A remote daemon wins when one is configured and reachable.
	if addr := cfg.Client.StoreAddr; addr != "" {
		opts := []RemoteOption{WithRemoteLogger(logger)}
		if cfg.Client.DisableTLS {
			opts = append(opts, WithoutTLS())
		}
		remote, err := Connect(addr, opts...)
		if err == nil {
			logger.Info("Connected to contacts daemon", zap.String("addr", addr))
			return remote, nil
		}
		logger.Warn("Contacts daemon unreachable, falling back to embedded mode",
			zap.String("addr", addr), zap.Error(err))
	}

	// 2. Fallback to embedded mode: the same platform the daemon runs,
	// inside the app process, on the client's own data directory.
	embedded := cfg
	embedded.Server.DataDir = cfg.Client.DataDir
	embedded.Server.Storage = "json"
	return platform.Open(embedded, logger)
}

// NewFromConfig builds a Client over New, persisting its session to the
// configured session file.
func NewFromConfig(cfg config.Config, logger *zap.Logger) (*Client, *FileSessionStore, error) {
	backend, err := New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	store, err := NewFileSessionStore(cfg.Client.SessionFile, cfg.Client.KeyFile)
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	client, err := NewClient(backend, WithSessionStore(store), WithLogger(logger))
	if err != nil {
		backend.Close()
		return nil, nil, err
	}
	return client, store, nil
}
