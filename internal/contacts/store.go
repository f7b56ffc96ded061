// Package contacts holds the client-side contact list: the rows fetched for the
// signed-in user, the search and sort applied to them, and the add/edit form.
//
// The Store is owned by a single event loop. Every remote operation is split in
// three steps: Begin runs on the loop, checks the request and marks the action
// in flight; the returned Job performs the remote call anywhere without touching
// the Store; Apply runs back on the loop with the Job's Result, updates the
// state and clears the in-flight mark.
package contacts

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/internal/i18n"
	"github.com/celerix-dev/celerix-contacts/pkg/schema"
	"github.com/celerix-dev/celerix-contacts/pkg/sdk"
)

var (
	// ErrInFlight is returned by Begin calls while the same action is still running.
	ErrInFlight = errors.New("contacts: action already in progress")
	// ErrRequiredField is returned by BeginSave when name or email is blank.
	ErrRequiredField = errors.New("contacts: name and email are required")
	// ErrNoSession is returned when an operation needs a user and there is none.
	ErrNoSession = errors.New("contacts: no session")
)

// Table is the remote contacts collection. *sdk.ContactsClient implements it.
type Table interface {
	Select(ctx context.Context, userID string) ([]schema.Contact, error)
	Insert(ctx context.Context, rows []schema.ContactInput) ([]schema.Contact, error)
	Update(ctx context.Context, id string, patch schema.ContactPatch) ([]schema.Contact, error)
	Delete(ctx context.Context, id string) error
}

var _ Table = (*sdk.ContactsClient)(nil)

// Action names a remote operation guarded against duplicate submission.
type Action int

const (
	ActionFetch Action = iota
	ActionSave
	ActionDelete
)

type op int

const (
	opFetch op = iota
	opCreate
	opUpdate
	opDelete
)

// Draft is the content of the add/edit form.
type Draft struct {
	Name  string
	Email string
	Phone string
}

// Job performs the remote half of an operation. It does not touch the Store
// and may run on any goroutine.
type Job func(ctx context.Context, t Table) Result

// Result carries the outcome of a Job back to Apply.
type Result struct {
	origin *Store
	op     op
	id     string
	rows   []schema.Contact
	err    error
}

// Err returns the remote error, if any.
func (r Result) Err() error {
	return r.err
}

// NoticeKind tells success notices from failures.
type NoticeKind int

const (
	NoticeSuccess NoticeKind = iota
	NoticeError
)

// Notice is a transient message for the user.
// Detail holds the platform's own message and wins over Key when set.
type Notice struct {
	Kind   NoticeKind
	Key    i18n.Key
	Detail string
}

// Text renders the notice with tr.
func (n Notice) Text(tr *i18n.Translator) string {
	if n.Detail != "" {
		return n.Detail
	}
	return tr.T(n.Key)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is the contact list of one dashboard.
type Store struct {
	logger *zap.Logger

	contacts []schema.Contact
	revision uint64

	search string
	sort   SortConfig

	modalOpen     bool
	editing       *schema.Contact
	draft         Draft
	pendingDelete string

	inFlight map[Action]bool

	view viewCache
}

// NewStore returns an empty store sorted by name ascending.
func NewStore(opts ...Option) *Store {
	s := &Store{
		logger:   zap.NewNop(),
		contacts: []schema.Contact{},
		sort:     SortConfig{Key: SortByName, Direction: Asc},
		inFlight: make(map[Action]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Contacts returns a copy of the fetched rows in store order.
func (s *Store) Contacts() []schema.Contact {
	return append([]schema.Contact{}, s.contacts...)
}

// Revision changes every time the rows change.
func (s *Store) Revision() uint64 {
	return s.revision
}

// InFlight reports whether action is running.
func (s *Store) InFlight(a Action) bool {
	return s.inFlight[a]
}

func (s *Store) begin(a Action) error {
	if s.inFlight[a] {
		return ErrInFlight
	}
	s.inFlight[a] = true
	return nil
}

func (s *Store) replace(rows []schema.Contact) {
	if rows == nil {
		rows = []schema.Contact{}
	}
	s.contacts = rows
	s.revision++
}

// --- Form ---

// ModalOpen reports whether the add/edit form is shown.
func (s *Store) ModalOpen() bool {
	return s.modalOpen
}

// Editing returns the contact being edited, or nil when the form creates a new one.
func (s *Store) Editing() *schema.Contact {
	if s.editing == nil {
		return nil
	}
	c := *s.editing
	return &c
}

func (s *Store) Draft() Draft {
	return s.draft
}

func (s *Store) SetDraft(d Draft) {
	s.draft = d
}

// OpenCreate shows an empty form for a new contact.
func (s *Store) OpenCreate() {
	s.editing = nil
	s.draft = Draft{}
	s.modalOpen = true
}

// Edit shows the form filled with c.
func (s *Store) Edit(c schema.Contact) {
	s.draft = Draft{Name: c.Name, Email: c.Email, Phone: c.Phone}
	s.editing = &c
	s.modalOpen = true
}

// CloseModal hides the form and forgets its content.
func (s *Store) CloseModal() {
	s.modalOpen = false
	s.editing = nil
	s.draft = Draft{}
}

// --- Delete confirmation ---

// RequestDelete asks for confirmation before deleting id.
func (s *Store) RequestDelete(id string) {
	s.pendingDelete = id
}

// PendingDelete returns the contact awaiting confirmation.
func (s *Store) PendingDelete() (string, bool) {
	return s.pendingDelete, s.pendingDelete != ""
}

// CancelDelete drops the confirmation prompt.
func (s *Store) CancelDelete() {
	s.pendingDelete = ""
}

// ConfirmDelete starts deleting the contact awaiting confirmation.
func (s *Store) ConfirmDelete() (Job, error) {
	id := s.pendingDelete
	if id == "" {
		return nil, errors.New("contacts: no delete pending")
	}
	job, err := s.BeginDelete(id)
	if err != nil {
		return nil, err
	}
	s.pendingDelete = ""
	return job, nil
}

// --- Remote operations ---

// BeginFetch starts loading the rows owned by userID.
func (s *Store) BeginFetch(userID string) (Job, error) {
	if userID == "" {
		return nil, ErrNoSession
	}
	if err := s.begin(ActionFetch); err != nil {
		return nil, err
	}
	return func(ctx context.Context, t Table) Result {
		rows, err := t.Select(ctx, userID)
		return Result{origin: s, op: opFetch, rows: rows, err: err}
	}, nil
}

// BeginSave submits the form: an insert owned by userID when creating, an
// update of the edited contact otherwise. Fields are sent exactly as typed;
// blanks only count as missing for the required-field check.
func (s *Store) BeginSave(userID string) (Job, error) {
	d := s.draft
	if strings.TrimSpace(d.Name) == "" || strings.TrimSpace(d.Email) == "" {
		return nil, ErrRequiredField
	}

	if s.editing != nil {
		id := s.editing.ID
		if err := s.begin(ActionSave); err != nil {
			return nil, err
		}
		patch := schema.ContactPatch{Name: d.Name, Email: d.Email, Phone: d.Phone}
		return func(ctx context.Context, t Table) Result {
			rows, err := t.Update(ctx, id, patch)
			return Result{origin: s, op: opUpdate, id: id, rows: rows, err: err}
		}, nil
	}

	if userID == "" {
		return nil, ErrNoSession
	}
	if err := s.begin(ActionSave); err != nil {
		return nil, err
	}
	row := schema.ContactInput{UserID: userID, Name: d.Name, Email: d.Email, Phone: d.Phone}
	return func(ctx context.Context, t Table) Result {
		rows, err := t.Insert(ctx, []schema.ContactInput{row})
		return Result{origin: s, op: opCreate, rows: rows, err: err}
	}, nil
}

// BeginDelete starts deleting id.
func (s *Store) BeginDelete(id string) (Job, error) {
	if err := s.begin(ActionDelete); err != nil {
		return nil, err
	}
	return func(ctx context.Context, t Table) Result {
		return Result{origin: s, op: opDelete, id: id, err: t.Delete(ctx, id)}
	}, nil
}

// Apply folds a finished Job into the store and returns the notice to show, if any.
// Results of another store are ignored.
func (s *Store) Apply(r Result) *Notice {
	if r.origin != s {
		return nil
	}

	switch r.op {
	case opFetch:
		s.inFlight[ActionFetch] = false
		if r.err != nil {
			s.logger.Error("Failed to load contacts", zap.Error(r.err))
			return &Notice{Kind: NoticeError, Key: i18n.ContactsLoadFailed}
		}
		s.replace(r.rows)
		s.logger.Debug("Contacts loaded", zap.Int("count", len(r.rows)))
		return nil

	case opCreate:
		s.inFlight[ActionSave] = false
		if r.err != nil {
			return s.failure(i18n.ContactSaveFailed, r.err)
		}
		next := append(s.Contacts(), r.rows...)
		s.replace(next)
		s.CloseModal()
		return &Notice{Kind: NoticeSuccess, Key: i18n.ContactCreated}

	case opUpdate:
		s.inFlight[ActionSave] = false
		if r.err != nil {
			return s.failure(i18n.ContactSaveFailed, r.err)
		}
		next := s.Contacts()
		for _, row := range r.rows {
			for i := range next {
				if next[i].ID == row.ID {
					next[i] = row
				}
			}
		}
		s.replace(next)
		s.CloseModal()
		return &Notice{Kind: NoticeSuccess, Key: i18n.ContactUpdated}

	case opDelete:
		s.inFlight[ActionDelete] = false
		if r.err != nil {
			return s.failure(i18n.ContactDeleteFailed, r.err)
		}
		next := make([]schema.Contact, 0, len(s.contacts))
		for _, c := range s.contacts {
			if c.ID != r.id {
				next = append(next, c)
			}
		}
		s.replace(next)
		return &Notice{Kind: NoticeSuccess, Key: i18n.ContactDeleted}
	}
	return nil
}

func (s *Store) failure(fallback i18n.Key, err error) *Notice {
	s.logger.Warn("Contact operation failed", zap.String("notice", string(fallback)), zap.Error(err))
	return &Notice{Kind: NoticeError, Key: fallback, Detail: sdk.Message(err)}
}
