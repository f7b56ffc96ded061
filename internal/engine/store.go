// Package engine implements the persona/app/key storage engine behind the contacts platform.
package engine

import (
	"encoding/json"
	"errors"
)

var (
	// ErrPersonaNotFound is returned when a requested persona does not exist.
	ErrPersonaNotFound = errors.New("persona not found")
	// ErrAppNotFound is returned when a requested app does not exist within a persona.
	ErrAppNotFound = errors.New("app not found")
	// ErrKeyNotFound is returned when a requested key does not exist within an app.
	ErrKeyNotFound = errors.New("key not found")
)

// SystemPersona is the reserved ID for platform-level data (users, sessions, audit).
const SystemPersona = "_system"

// KV is the contract shared by every engine implementation.
type KV interface {
	// Get retrieves a value for a specific persona, app, and key.
	Get(personaID, appID, key string) (any, error)
	// Set stores a value for a specific persona, app, and key.
	Set(personaID, appID, key string, val any) error
	// Delete removes a key and its value from a specific persona and app.
	Delete(personaID, appID, key string) error

	// GetPersonas returns all persona IDs in the store, sorted.
	GetPersonas() ([]string, error)
	// GetApps returns all app IDs belonging to a persona, sorted.
	GetApps(personaID string) ([]string, error)

	// GetAppStore returns a copy of all keys and values for a persona and app.
	GetAppStore(personaID, appID string) (map[string]any, error)
	// DumpApp returns the data of one app across all personas, keyed by persona.
	DumpApp(appID string) (map[string]map[string]any, error)
}

// Decode converts a stored value into T.
// Values written in-process keep their Go type; values loaded from disk come back as
// generic JSON maps and are re-marshaled into T.
func Decode[T any](val any) (T, error) {
	var target T
	if v, ok := val.(T); ok {
		return v, nil
	}
	bytes, err := json.Marshal(val)
	if err != nil {
		return target, err
	}
	err = json.Unmarshal(bytes, &target)
	return target, err
}
