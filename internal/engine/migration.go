package engine

import (
	"fmt"
	"maps"
	"slices"
)

// AppFilter reports whether an app of a persona takes part in a migration.
type AppFilter func(personaID, appID string) bool

// Migrate copies every key of the apps accepted by keep (all apps when keep is
// nil) from src into dst and returns how many keys were written. Personas,
// apps and keys are visited in sorted order, so a failed run always stops at
// the same place.
func Migrate(src, dst KV, keep AppFilter) (int, error) {
	personas, err := src.GetPersonas()
	if err != nil {
		return 0, fmt.Errorf("engine: listing personas: %w", err)
	}
	slices.Sort(personas)

	copied := 0
	for _, persona := range personas {
		apps, err := src.GetApps(persona)
		if err != nil {
			return copied, fmt.Errorf("engine: listing apps of %s: %w", persona, err)
		}
		slices.Sort(apps)

		for _, app := range apps {
			if keep != nil && !keep(persona, app) {
				continue
			}
			n, err := copyApp(src, dst, persona, app)
			copied += n
			if err != nil {
				return copied, err
			}
		}
	}
	return copied, nil
}

func copyApp(src, dst KV, persona, app string) (int, error) {
	data, err := src.GetAppStore(persona, app)
	if err != nil {
		return 0, fmt.Errorf("engine: reading %s/%s: %w", persona, app, err)
	}
	keys := slices.Sorted(maps.Keys(data))
	for i, k := range keys {
		if err := dst.Set(persona, app, k, data[k]); err != nil {
			return i, fmt.Errorf("engine: writing %s/%s/%s: %w", persona, app, k, err)
		}
	}
	return len(keys), nil
}
