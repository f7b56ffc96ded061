package sdk

import "github.com/celerix-dev/celerix-contacts/pkg/schema"

// Verbs of the line protocol. A request is "VERB <json>", a reply is
// "OK <json>", "OK" or "ERR <code> <message>".
const (
	VerbPing       = "PING"
	VerbQuit       = "QUIT"
	VerbSignUp     = "SIGNUP"
	VerbSignIn     = "SIGNIN"
	VerbSignOut    = "SIGNOUT"
	VerbUser       = "USER"
	VerbRefresh    = "REFRESH"
	VerbRecover    = "RECOVER"
	VerbVerify     = "VERIFY"
	VerbUpdateUser = "UPDATE_USER"
	VerbSelect     = "SELECT"
	VerbInsert     = "INSERT"
	VerbUpdate     = "UPDATE"
	VerbDelete     = "DELETE"
)

// CredentialsRequest is the payload of SIGNUP and SIGNIN.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenRequest is the payload of SIGNOUT and USER.
type TokenRequest struct {
	AccessToken string `json:"access_token"`
}

// RefreshRequest is the payload of REFRESH.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RecoverRequest is the payload of RECOVER.
type RecoverRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// VerifyRequest is the payload of VERIFY.
type VerifyRequest struct {
	Token string `json:"token"`
}

// UpdateUserRequest is the payload of UPDATE_USER.
type UpdateUserRequest struct {
	AccessToken string                `json:"access_token"`
	Attributes  schema.UserAttributes `json:"attributes"`
}

// SelectRequest is the payload of SELECT.
type SelectRequest struct {
	AccessToken string `json:"access_token"`
	UserID      string `json:"user_id"`
}

// InsertRequest is the payload of INSERT.
type InsertRequest struct {
	AccessToken string                `json:"access_token"`
	Rows        []schema.ContactInput `json:"rows"`
}

// UpdateRequest is the payload of UPDATE.
type UpdateRequest struct {
	AccessToken string              `json:"access_token"`
	ID          string              `json:"id"`
	Patch       schema.ContactPatch `json:"patch"`
}

// DeleteRequest is the payload of DELETE.
type DeleteRequest struct {
	AccessToken string `json:"access_token"`
	ID          string `json:"id"`
}
