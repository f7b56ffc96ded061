package engine

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Persister saves persona snapshots and reloads them at start-up.
type Persister interface {
	SavePersona(personaID string, data map[string]map[string]any) error
	LoadAll() (map[string]map[string]map[string]any, error)
}

// Option configures a MemStore.
type Option func(*MemStore)

// WithLogger routes persistence failures to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *MemStore) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// MemStore is the thread-safe in-memory engine.
// Writes are applied synchronously and persisted in the background.
type MemStore struct {
	mu sync.RWMutex
	// Structure: [personaID][appID][key]value
	data      map[string]map[string]map[string]any
	persister Persister
	logger    *zap.Logger
	wg        sync.WaitGroup

	// seq orders persona snapshots so a stale background save never overwrites a newer one.
	seq       uint64
	saveMu    sync.Mutex
	lastSaved map[string]uint64
}

// NewMemStore initializes a store from existing data (see Persister.LoadAll).
// p may be nil for a purely in-memory store.
func NewMemStore(initialData map[string]map[string]map[string]any, p Persister, opts ...Option) *MemStore {
	if initialData == nil {
		initialData = make(map[string]map[string]map[string]any)
	}
	m := &MemStore{
		data:      initialData,
		persister: p,
		logger:    zap.NewNop(),
		lastSaved: make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Wait waits for all background persistence tasks to complete.
func (m *MemStore) Wait() {
	m.wg.Wait()
}

func (m *MemStore) Get(personaID, appID, key string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	persona, ok := m.data[personaID]
	if !ok {
		return nil, ErrPersonaNotFound
	}
	app, ok := persona[appID]
	if !ok {
		return nil, ErrAppNotFound
	}
	val, ok := app[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return val, nil
}

func (m *MemStore) Set(personaID, appID, key string, val any) error {
	m.mu.Lock()
	if m.data[personaID] == nil {
		m.data[personaID] = make(map[string]map[string]any)
	}
	if m.data[personaID][appID] == nil {
		m.data[personaID][appID] = make(map[string]any)
	}
	m.data[personaID][appID][key] = val

	snapshot := m.copyPersonaData(personaID)
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	m.persist(personaID, snapshot, seq)
	return nil
}

func (m *MemStore) Delete(personaID, appID, key string) error {
	m.mu.Lock()
	p, ok := m.data[personaID]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	if a, ok := p[appID]; ok {
		delete(a, key)
	}
	snapshot := m.copyPersonaData(personaID)
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	m.persist(personaID, snapshot, seq)
	return nil
}

func (m *MemStore) persist(personaID string, snapshot map[string]map[string]any, seq uint64) {
	if m.persister == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.saveMu.Lock()
		defer m.saveMu.Unlock()
		if seq < m.lastSaved[personaID] {
			return
		}
		if err := m.persister.SavePersona(personaID, snapshot); err != nil {
			m.logger.Error("persist persona failed", zap.String("persona", personaID), zap.Error(err))
			return
		}
		m.lastSaved[personaID] = seq
	}()
}

// copyPersonaData creates a deep copy of a persona's data.
// It MUST be called while holding m.mu.
func (m *MemStore) copyPersonaData(personaID string) map[string]map[string]any {
	original, ok := m.data[personaID]
	if !ok {
		return nil
	}
	personaCopy := make(map[string]map[string]any, len(original))
	for appID, appData := range original {
		appCopy := make(map[string]any, len(appData))
		for k, v := range appData {
			appCopy[k] = v
		}
		personaCopy[appID] = appCopy
	}
	return personaCopy
}

func (m *MemStore) GetPersonas() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]string, 0, len(m.data))
	for id := range m.data {
		list = append(list, id)
	}
	sort.Strings(list)
	return list, nil
}

func (m *MemStore) GetApps(personaID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []string
	if apps, ok := m.data[personaID]; ok {
		for appID := range apps {
			list = append(list, appID)
		}
	}
	sort.Strings(list)
	return list, nil
}

func (m *MemStore) GetAppStore(personaID, appID string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if p, ok := m.data[personaID]; ok {
		if a, ok := p[appID]; ok {
			out := make(map[string]any, len(a))
			for k, v := range a {
				out[k] = v
			}
			return out, nil
		}
	}
	return nil, ErrAppNotFound
}

func (m *MemStore) DumpApp(appID string) (map[string]map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]map[string]any)
	for personaID, apps := range m.data {
		a, ok := apps[appID]
		if !ok {
			continue
		}
		cp := make(map[string]any, len(a))
		for k, v := range a {
			cp[k] = v
		}
		out[personaID] = cp
	}
	return out, nil
}

// App returns a scope pinned to one persona and app.
func (m *MemStore) App(personaID, appID string) *AppScope {
	return &AppScope{kv: m, personaID: personaID, appID: appID}
}

// AppScope "remembers" its persona and application IDs.
type AppScope struct {
	kv        KV
	personaID string
	appID     string
}

// Scope pins any KV to a persona and app.
func Scope(kv KV, personaID, appID string) *AppScope {
	return &AppScope{kv: kv, personaID: personaID, appID: appID}
}

func (a *AppScope) Get(key string) (any, error) {
	return a.kv.Get(a.personaID, a.appID, key)
}

func (a *AppScope) Set(key string, val any) error {
	return a.kv.Set(a.personaID, a.appID, key, val)
}

func (a *AppScope) Delete(key string) error {
	return a.kv.Delete(a.personaID, a.appID, key)
}

// All returns every key of the scope. A missing persona or app yields an empty map.
func (a *AppScope) All() (map[string]any, error) {
	data, err := a.kv.GetAppStore(a.personaID, a.appID)
	if err == ErrAppNotFound || err == ErrPersonaNotFound {
		return map[string]any{}, nil
	}
	return data, err
}
