package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/internal/contacts"
	"github.com/celerix-dev/celerix-contacts/internal/i18n"
	"github.com/celerix-dev/celerix-contacts/pkg/schema"
	"github.com/celerix-dev/celerix-contacts/pkg/sdk"
)

const (
	fieldName = iota
	fieldEmail
	fieldPhone
)

// dashboardState is the contact list with its search box, sort controls,
// add/edit form and delete confirmation.
type dashboardState struct {
	deps   Deps
	store  *contacts.Store
	userID string
	ready  bool

	search    textinput.Model
	searching bool
	cursor    int

	fields [3]textinput.Model
	field  int
	inline string

	notice    *contacts.Notice
	noticeSeq int
}

func newDashboard(deps Deps) dashboardState {
	search := textinput.New()
	search.Prompt = "/ "
	search.Placeholder = deps.Translator.T(i18n.ContactsSearch)

	return dashboardState{
		deps:   deps,
		store:  contacts.NewStore(contacts.WithLogger(deps.Logger)),
		search: search,
	}
}

// init repeats the session check of the gate so the dashboard can be
// opened directly.
func (d dashboardState) init() tea.Cmd {
	deps := d.deps
	return func() tea.Msg {
		ctx, cancel := deps.context()
		defer cancel()
		s, err := deps.Session.Current(ctx)
		return dashboardSessionMsg{session: s, err: err}
	}
}

func (d dashboardState) run(job contacts.Job) tea.Cmd {
	deps := d.deps
	return func() tea.Msg {
		ctx, cancel := deps.context()
		defer cancel()
		return contactsResultMsg{result: job(ctx, deps.Contacts)}
	}
}

func (d dashboardState) Update(msg tea.Msg) (dashboardState, tea.Cmd) {
	switch msg := msg.(type) {
	case dashboardSessionMsg:
		if msg.err != nil {
			d.deps.Logger.Warn("Session lookup failed", zap.Error(msg.err))
		}
		if msg.session == nil {
			return d, goTo(RouteLogin)
		}
		if msg.session.Recovery {
			return d, goTo(RouteUpdatePassword)
		}
		d.userID = msg.session.User.ID
		job, err := d.store.BeginFetch(d.userID)
		if err != nil {
			return d, nil
		}
		return d, d.run(job)

	case contactsResultMsg:
		n := d.store.Apply(msg.result)
		if sdk.IsSessionAbsent(msg.result.Err()) {
			return d, goTo(RouteLogin)
		}
		d.ready = true
		d.clampCursor()
		if n != nil {
			return d.showNotice(*n)
		}
		return d, nil

	case clearNoticeMsg:
		if msg.seq == d.noticeSeq {
			d.notice = nil
		}
		return d, nil

	case tea.KeyMsg:
		switch {
		case d.pendingDelete():
			return d.handleConfirmKey(msg)
		case d.store.ModalOpen():
			return d.handleModalKey(msg)
		case d.searching:
			return d.handleSearchKey(msg)
		default:
			return d.handleListKey(msg)
		}
	}

	if d.store.ModalOpen() {
		var cmd tea.Cmd
		d.fields[d.field], cmd = d.fields[d.field].Update(msg)
		return d, cmd
	}
	if d.searching {
		var cmd tea.Cmd
		d.search, cmd = d.search.Update(msg)
		return d, cmd
	}
	return d, nil
}

func (d dashboardState) showNotice(n contacts.Notice) (dashboardState, tea.Cmd) {
	d.noticeSeq++
	d.notice = &n
	seq := d.noticeSeq
	return d, tea.Tick(noticeDuration, func(time.Time) tea.Msg { return clearNoticeMsg{seq: seq} })
}

func (d dashboardState) pendingDelete() bool {
	_, ok := d.store.PendingDelete()
	return ok
}

func (d *dashboardState) clampCursor() {
	n := len(d.store.View())
	if d.cursor >= n {
		d.cursor = n - 1
	}
	if d.cursor < 0 {
		d.cursor = 0
	}
}

func (d dashboardState) selected() (schema.Contact, bool) {
	view := d.store.View()
	if d.cursor < 0 || d.cursor >= len(view) {
		return schema.Contact{}, false
	}
	return view[d.cursor], true
}

func (d dashboardState) handleListKey(msg tea.KeyMsg) (dashboardState, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.ListQuit):
		return d, tea.Quit
	case key.Matches(msg, keys.Search):
		d.searching = true
		cmd := d.search.Focus()
		return d, cmd
	case key.Matches(msg, keys.Up):
		d.cursor--
		d.clampCursor()
	case key.Matches(msg, keys.Down):
		d.cursor++
		d.clampCursor()
	case key.Matches(msg, keys.SortName):
		d.store.ToggleSort(contacts.SortByName)
		d.clampCursor()
	case key.Matches(msg, keys.SortDate):
		d.store.ToggleSort(contacts.SortByCreatedAt)
		d.clampCursor()
	case key.Matches(msg, keys.New):
		d.store.OpenCreate()
		return d.openForm()
	case key.Matches(msg, keys.Edit):
		if c, ok := d.selected(); ok {
			d.store.Edit(c)
			return d.openForm()
		}
	case key.Matches(msg, keys.Delete):
		if c, ok := d.selected(); ok {
			d.store.RequestDelete(c.ID)
		}
	}
	return d, nil
}

func (d dashboardState) handleSearchKey(msg tea.KeyMsg) (dashboardState, tea.Cmd) {
	if key.Matches(msg, keys.Cancel) || key.Matches(msg, keys.Submit) {
		d.searching = false
		d.search.Blur()
		return d, nil
	}
	var cmd tea.Cmd
	d.search, cmd = d.search.Update(msg)
	d.store.SetSearch(d.search.Value())
	d.cursor = 0
	d.clampCursor()
	return d, cmd
}

func (d dashboardState) handleConfirmKey(msg tea.KeyMsg) (dashboardState, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Yes):
		job, err := d.store.ConfirmDelete()
		if errors.Is(err, contacts.ErrInFlight) {
			return d.showNotice(contacts.Notice{Kind: contacts.NoticeError, Key: i18n.ContactBusy})
		}
		if err != nil {
			return d, nil
		}
		return d, d.run(job)
	case key.Matches(msg, keys.No):
		d.store.CancelDelete()
	}
	return d, nil
}

// openForm builds the form inputs from the store draft.
func (d dashboardState) openForm() (dashboardState, tea.Cmd) {
	tr := d.deps.Translator
	draft := d.store.Draft()
	labels := [3]i18n.Key{i18n.ModalName, i18n.ModalEmail, i18n.ModalPhone}
	values := [3]string{draft.Name, draft.Email, draft.Phone}
	for i := range d.fields {
		in := textinput.New()
		in.Prompt = tr.T(labels[i]) + ": "
		in.SetValue(values[i])
		d.fields[i] = in
	}
	d.field = fieldName
	d.inline = ""
	cmd := d.fields[fieldName].Focus()
	return d, cmd
}

func (d dashboardState) handleModalKey(msg tea.KeyMsg) (dashboardState, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Cancel):
		d.store.CloseModal()
		d.inline = ""
		return d, nil
	case key.Matches(msg, keys.Next):
		cmd := d.focusField(d.field + 1)
		return d, cmd
	case key.Matches(msg, keys.Prev):
		cmd := d.focusField(d.field - 1)
		return d, cmd
	case key.Matches(msg, keys.Submit):
		return d.submit()
	}

	var cmd tea.Cmd
	d.fields[d.field], cmd = d.fields[d.field].Update(msg)
	d.store.SetDraft(contacts.Draft{
		Name:  d.fields[fieldName].Value(),
		Email: d.fields[fieldEmail].Value(),
		Phone: d.fields[fieldPhone].Value(),
	})
	return d, cmd
}

func (d *dashboardState) focusField(i int) tea.Cmd {
	n := len(d.fields)
	d.field = ((i % n) + n) % n
	for j := range d.fields {
		d.fields[j].Blur()
	}
	return d.fields[d.field].Focus()
}

func (d dashboardState) submit() (dashboardState, tea.Cmd) {
	tr := d.deps.Translator
	job, err := d.store.BeginSave(d.userID)
	switch {
	case errors.Is(err, contacts.ErrRequiredField):
		d.inline = tr.T(i18n.ContactRequired)
		return d, nil
	case errors.Is(err, contacts.ErrInFlight):
		d.inline = tr.T(i18n.ContactBusy)
		return d, nil
	case errors.Is(err, contacts.ErrNoSession):
		return d, goTo(RouteLogin)
	case err != nil:
		return d, nil
	}
	d.inline = ""
	return d, d.run(job)
}

func (d dashboardState) View() string {
	tr := d.deps.Translator
	var b strings.Builder

	b.WriteString(d.search.View() + "\n")
	b.WriteString(d.sortBar() + "   " + dimStyle.Render("n: "+tr.T(i18n.ContactsNew)) + "\n\n")

	if d.store.ModalOpen() {
		b.WriteString(d.modalView() + "\n")
	} else {
		b.WriteString(d.listView())
	}

	if id, ok := d.store.PendingDelete(); ok {
		name := id
		for _, c := range d.store.Contacts() {
			if c.ID == id {
				name = c.Name
			}
		}
		fmt.Fprintf(&b, "\n%s %s\n%s   %s\n", errorStyle.Render(tr.T(i18n.ContactConfirmDelete)), name,
			tr.T(i18n.ConfirmYes), tr.T(i18n.ConfirmNo))
	}
	if d.notice != nil {
		b.WriteString("\n" + message(d.notice.Text(tr), d.notice.Kind == contacts.NoticeSuccess) + "\n")
	}
	b.WriteString("\n" + dimStyle.Render(tr.T(i18n.ContactsHelp)))
	return b.String()
}

func (d dashboardState) sortBar() string {
	tr := d.deps.Translator
	cfg := d.store.Sort()
	button := func(k contacts.SortKey, label i18n.Key) string {
		text := tr.T(label)
		if cfg.Key != k {
			return dimStyle.Render(text)
		}
		arrow := "↑"
		if cfg.Direction == contacts.Desc {
			arrow = "↓"
		}
		return activeStyle.Render(text + " " + arrow)
	}
	return button(contacts.SortByName, i18n.SortName) + "  " + button(contacts.SortByCreatedAt, i18n.SortCreatedAt)
}

func (d dashboardState) listView() string {
	tr := d.deps.Translator
	if !d.ready {
		return dimStyle.Render(tr.T(i18n.AppLoading)) + "\n"
	}
	view := d.store.View()
	if len(view) == 0 {
		if d.store.Search() != "" {
			return dimStyle.Render(tr.T(i18n.ContactsNoResults)) + "\n"
		}
		return dimStyle.Render(tr.T(i18n.ContactsEmpty)) + "\n"
	}

	var b strings.Builder
	for i, c := range view {
		line := fmt.Sprintf("%-24s %-28s %-14s %s", c.Name, c.Email, c.Phone, c.CreatedAt.Local().Format("2006-01-02"))
		if i == d.cursor {
			b.WriteString(selectedStyle.Render(CursorMarker+line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}
	return b.String()
}

func (d dashboardState) modalView() string {
	tr := d.deps.Translator
	title, submit := tr.T(i18n.ModalCreateTitle), tr.T(i18n.ModalSave)
	if d.store.Editing() != nil {
		title, submit = tr.T(i18n.ModalEditTitle), tr.T(i18n.ModalUpdate)
	}
	if d.store.InFlight(contacts.ActionSave) {
		submit = tr.T(i18n.ModalSaving)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(title) + "\n\n")
	for _, f := range d.fields {
		b.WriteString(f.View() + "\n")
	}
	if d.inline != "" {
		b.WriteString("\n" + errorStyle.Render(d.inline) + "\n")
	}
	b.WriteString("\n[ " + submit + " ]   " + dimStyle.Render(tr.T(i18n.ModalCancel)))
	return boxStyle().Render(b.String())
}
