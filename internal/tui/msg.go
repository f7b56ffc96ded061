package tui

import (
	"github.com/celerix-dev/celerix-contacts/internal/contacts"
	"github.com/celerix-dev/celerix-contacts/internal/recovery"
	"github.com/celerix-dev/celerix-contacts/pkg/schema"
	"github.com/celerix-dev/celerix-contacts/pkg/sdk"
)

// Route is a screen of the application.
type Route string

const (
	RouteGate           Route = "/"
	RouteLogin          Route = "/login"
	RouteDashboard      Route = "/dashboard"
	RouteForgotPassword Route = "/forgot-password"
	RouteUpdatePassword Route = "/update-password"
)

// navigateMsg switches to another screen, rebuilding it.
type navigateMsg struct {
	route Route
}

// sessionResolvedMsg carries the session found by the gate.
type sessionResolvedMsg struct {
	session *schema.Session
	err     error
}

// dashboardSessionMsg carries the session found when the dashboard mounts.
type dashboardSessionMsg struct {
	session *schema.Session
	err     error
}

// authChangedMsg is a session change delivered to the navigation bar.
type authChangedMsg struct {
	event   sdk.AuthEvent
	session *schema.Session
}

// signedOutMsg ends the sign-out started from the navigation bar.
type signedOutMsg struct {
	err error
}

type loginResultMsg struct {
	signUp bool
	err    error
}

type contactsResultMsg struct {
	result contacts.Result
}

type resetResultMsg struct {
	result recovery.Result
}

type passwordResultMsg struct {
	result recovery.Result
}

// clearNoticeMsg hides the toast numbered seq if it is still showing.
type clearNoticeMsg struct {
	seq int
}
