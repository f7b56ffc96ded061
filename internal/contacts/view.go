package contacts

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/celerix-dev/celerix-contacts/pkg/schema"
)

// SortKey is the field the list is ordered by.
type SortKey string

const (
	SortByName      SortKey = "name"
	SortByCreatedAt SortKey = "created_at"
)

// Direction is the sort order.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// SortConfig is the active ordering of the list.
type SortConfig struct {
	Key       SortKey
	Direction Direction
}

type viewKey struct {
	revision uint64
	search   string
	sort     SortConfig
}

type viewCache struct {
	valid bool
	key   viewKey
	rows  []schema.Contact
}

func (s *Store) Search() string {
	return s.search
}

// SetSearch filters the view to contacts containing term.
func (s *Store) SetSearch(term string) {
	s.search = term
}

func (s *Store) Sort() SortConfig {
	return s.sort
}

// ToggleSort orders by key. Choosing the active key flips its direction;
// a new key starts ascending.
func (s *Store) ToggleSort(key SortKey) {
	if s.sort.Key == key {
		if s.sort.Direction == Asc {
			s.sort.Direction = Desc
		} else {
			s.sort.Direction = Asc
		}
		return
	}
	s.sort = SortConfig{Key: key, Direction: Asc}
}

// View returns the contacts matching the search term in the active order.
// The result is reused until the rows, the term or the order change; callers
// must not modify it.
func (s *Store) View() []schema.Contact {
	key := viewKey{revision: s.revision, search: s.search, sort: s.sort}
	if s.view.valid && s.view.key == key {
		return s.view.rows
	}
	rows := Filter(s.contacts, s.search)
	SortContacts(rows, s.sort)
	s.view = viewCache{valid: true, key: key, rows: rows}
	return rows
}

// Filter returns the contacts whose name, email or phone contains term,
// ignoring case. An empty term matches everything.
func Filter(contacts []schema.Contact, term string) []schema.Contact {
	out := make([]schema.Contact, 0, len(contacts))
	if term == "" {
		return append(out, contacts...)
	}
	fold := cases.Fold()
	needle := fold.String(term)
	for _, c := range contacts {
		if Matches(fold, c, needle) {
			out = append(out, c)
		}
	}
	return out
}

// Matches reports whether c contains the already folded needle.
func Matches(fold cases.Caser, c schema.Contact, needle string) bool {
	if strings.Contains(fold.String(c.Name), needle) || strings.Contains(fold.String(c.Email), needle) {
		return true
	}
	return c.HasPhone() && strings.Contains(fold.String(c.Phone), needle)
}

// SortContacts orders rows in place. Rows with equal keys keep their relative order.
func SortContacts(rows []schema.Contact, cfg SortConfig) {
	slices.SortStableFunc(rows, func(a, b schema.Contact) int {
		var n int
		switch cfg.Key {
		case SortByCreatedAt:
			n = a.CreatedAt.Compare(b.CreatedAt)
		default:
			n = strings.Compare(a.Name, b.Name)
		}
		if cfg.Direction == Desc {
			return -n
		}
		return n
	})
}
