package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"testing"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/celerix-dev/celerix-contacts/internal/auth"
	"github.com/celerix-dev/celerix-contacts/internal/config"
	"github.com/celerix-dev/celerix-contacts/internal/engine"
	"github.com/celerix-dev/celerix-contacts/internal/mailer"
	"github.com/celerix-dev/celerix-contacts/internal/platform"
	"github.com/celerix-dev/celerix-contacts/pkg/schema"
)

func setupTestRouter() (*gin.Engine, *mailer.Outbox) {
	gin.SetMode(gin.TestMode)
	store := engine.NewMemStore(nil, nil)
	outbox := &mailer.Outbox{}
	a := auth.New(store, outbox, config.DefaultConfig().Auth, auth.WithBcryptCost(bcrypt.MinCost))
	h := &Handler{Backend: platform.New(store, a, nil), AllowRedirect: a.AllowsRedirect}

	r := gin.New()
	r.Use(CORS())
	h.Register(r)
	return r, outbox
}

func do(r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func signIn(t *testing.T, r *gin.Engine, email string) schema.Session {
	t.Helper()
	creds := map[string]string{"email": email, "password": "secret1"}
	if w := do(r, "POST", "/auth/v1/signup", "", creds); w.Code != http.StatusOK {
		t.Fatalf("signup: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w := do(r, "POST", "/auth/v1/token?grant_type=password", "", creds)
	if w.Code != http.StatusOK {
		t.Fatalf("token: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sess schema.Session
	json.Unmarshal(w.Body.Bytes(), &sess)
	return sess
}

func TestHealth(t *testing.T) {
	r, _ := setupTestRouter()
	w := do(r, "GET", "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestContactsLifecycle(t *testing.T) {
	r, _ := setupTestRouter()
	sess := signIn(t, r, "ana@example.com")

	w := do(r, "POST", "/rest/v1/contacts", sess.AccessToken, map[string]string{"name": "Beto", "email": "b@x.com"})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
	var inserted []schema.Contact
	json.Unmarshal(w.Body.Bytes(), &inserted)
	if len(inserted) != 1 || inserted[0].UserID != sess.User.ID {
		t.Fatalf("Unexpected insert result %+v", inserted)
	}
	id := inserted[0].ID

	// Array bodies insert several rows at once
	w = do(r, "POST", "/rest/v1/contacts", sess.AccessToken, []map[string]string{
		{"name": "Carla", "email": "c@x.com"},
		{"name": "Dani", "email": "d@x.com", "phone": "555"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d", w.Code)
	}

	w = do(r, "PATCH", "/rest/v1/contacts?id=eq."+id, sess.AccessToken, schema.ContactPatch{Name: "Roberto", Email: "b@x.com"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	w = do(r, "GET", "/rest/v1/contacts?user_id=eq."+sess.User.ID, sess.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var rows []schema.Contact
	json.Unmarshal(w.Body.Bytes(), &rows)
	if len(rows) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(rows))
	}
	for _, c := range rows {
		if c.ID == id && c.Name != "Roberto" {
			t.Errorf("Expected the patched row to be Roberto, got %q", c.Name)
		}
	}

	w = do(r, "DELETE", "/rest/v1/contacts?id=eq."+id, sess.AccessToken, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	w = do(r, "DELETE", "/rest/v1/contacts?id=eq."+id, sess.AccessToken, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestContacts_Ownership(t *testing.T) {
	r, _ := setupTestRouter()
	ana := signIn(t, r, "ana@example.com")
	beto := signIn(t, r, "beto@example.com")

	w := do(r, "GET", "/rest/v1/contacts?user_id=eq."+ana.User.ID, beto.AccessToken, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
	var body map[string]string
	json.Unmarshal(w.Body.Bytes(), &body)
	if body["error"] != schema.CodeForbidden {
		t.Errorf("Expected forbidden code, got %v", body)
	}
}

func TestErrorStatuses(t *testing.T) {
	r, _ := setupTestRouter()
	signIn(t, r, "ana@example.com")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
	}{
		{"missing bearer", "GET", "/rest/v1/contacts", "", nil, http.StatusUnauthorized},
		{"unknown token", "GET", "/auth/v1/user", "bogus", nil, http.StatusUnauthorized},
		{"duplicate signup", "POST", "/auth/v1/signup", "", map[string]string{"email": "ana@example.com", "password": "secret1"}, http.StatusConflict},
		{"weak password", "POST", "/auth/v1/signup", "", map[string]string{"email": "x@example.com", "password": "123"}, http.StatusUnprocessableEntity},
		{"wrong password", "POST", "/auth/v1/token?grant_type=password", "", map[string]string{"email": "ana@example.com", "password": "nope-nope"}, http.StatusUnauthorized},
		{"bad grant", "POST", "/auth/v1/token?grant_type=magic", "", map[string]string{}, http.StatusBadRequest},
		{"bad verify token", "GET", "/auth/v1/verify?type=recovery&token=bogus", "", nil, http.StatusUnauthorized},
		{"bad verify type", "GET", "/auth/v1/verify?type=signup&token=bogus", "", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, tt.path, tt.token, tt.body)
			if w.Code != tt.status {
				t.Errorf("Expected status %d, got %d: %s", tt.status, w.Code, w.Body.String())
			}
		})
	}
}

func TestMissingIDFilter(t *testing.T) {
	r, _ := setupTestRouter()
	sess := signIn(t, r, "ana@example.com")

	w := do(r, "DELETE", "/rest/v1/contacts", sess.AccessToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
	w = do(r, "PATCH", "/rest/v1/contacts?id=neq.x", sess.AccessToken, schema.ContactPatch{Name: "A", Email: "a@x.com"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestRefreshAndLogout(t *testing.T) {
	r, _ := setupTestRouter()
	sess := signIn(t, r, "ana@example.com")

	w := do(r, "POST", "/auth/v1/token?grant_type=refresh_token", "", map[string]string{"refresh_token": sess.RefreshToken})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var fresh schema.Session
	json.Unmarshal(w.Body.Bytes(), &fresh)

	if w := do(r, "POST", "/auth/v1/logout", fresh.AccessToken, nil); w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w := do(r, "GET", "/auth/v1/user", fresh.AccessToken, nil); w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 after logout, got %d", w.Code)
	}
}

var tokenInLink = regexp.MustCompile(`token=([A-Z2-7]+)`)

func TestRecoveryRedirect(t *testing.T) {
	r, outbox := setupTestRouter()
	signIn(t, r, "ana@example.com")

	w := do(r, "POST", "/auth/v1/recover", "", map[string]string{
		"email":       "ana@example.com",
		"redirect_to": "celerix-contacts://update-password",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	msg, ok := outbox.Last()
	if !ok {
		t.Fatal("Expected a recovery email")
	}
	m := tokenInLink.FindStringSubmatch(msg.Body)
	if m == nil {
		t.Fatalf("No token in %q", msg.Body)
	}

	w = do(r, "GET", "/auth/v1/verify?type=recovery&token="+m[1]+"&redirect_to="+url.QueryEscape("celerix-contacts://update-password"), "", nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("Expected status 303, got %d: %s", w.Code, w.Body.String())
	}
	loc, err := url.Parse(w.Header().Get("Location"))
	if err != nil {
		t.Fatalf("Bad Location: %v", err)
	}
	q := loc.Query()
	if q.Get("type") != "recovery" || q.Get("access_token") == "" || q.Get("refresh_token") == "" {
		t.Fatalf("Unexpected redirect %s", loc)
	}

	token := q.Get("access_token")
	if w := do(r, "GET", "/rest/v1/contacts", token, nil); w.Code != http.StatusForbidden {
		t.Errorf("Expected recovery session to be refused data access, got %d", w.Code)
	}
	if w := do(r, "PUT", "/auth/v1/user", token, map[string]string{"password": "brand-new"}); w.Code != http.StatusOK {
		t.Fatalf("Expected password update to succeed, got %d: %s", w.Code, w.Body.String())
	}
	w = do(r, "POST", "/auth/v1/token?grant_type=password", "", map[string]string{"email": "ana@example.com", "password": "brand-new"})
	if w.Code != http.StatusOK {
		t.Errorf("Expected sign-in with the new password, got %d", w.Code)
	}
}

func TestRecoveryRedirect_ForeignTarget(t *testing.T) {
	r, outbox := setupTestRouter()
	signIn(t, r, "ana@example.com")

	w := do(r, "POST", "/auth/v1/recover", "", map[string]string{
		"email":       "ana@example.com",
		"redirect_to": "https://evil.example/steal",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400 for a foreign redirect, got %d", w.Code)
	}
	if _, ok := outbox.Last(); ok {
		t.Fatal("No recovery email should be sent for a foreign redirect")
	}

	w = do(r, "POST", "/auth/v1/recover", "", map[string]string{
		"email":       "ana@example.com",
		"redirect_to": "celerix-contacts://update-password",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	msg, _ := outbox.Last()
	m := tokenInLink.FindStringSubmatch(msg.Body)
	if m == nil {
		t.Fatalf("No token in %q", msg.Body)
	}

	// A link edited to point elsewhere is refused without spending the token.
	w = do(r, "GET", "/auth/v1/verify?type=recovery&token="+m[1]+"&redirect_to="+url.QueryEscape("https://evil.example/steal"), "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "" {
		t.Fatalf("Expected no redirect, got Location %s", loc)
	}

	w = do(r, "GET", "/auth/v1/verify?type=recovery&token="+m[1]+"&redirect_to="+url.QueryEscape("celerix-contacts://update-password"), "", nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("Expected the untouched link to still work, got %d: %s", w.Code, w.Body.String())
	}
}

func TestCORSPreflight(t *testing.T) {
	r, _ := setupTestRouter()
	w := do(r, "OPTIONS", "/rest/v1/contacts", "", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("Expected status 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Expected CORS header")
	}
}
