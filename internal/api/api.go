// Package api exposes the platform over HTTP with gin.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/celerix-dev/celerix-contacts/pkg/schema"
	"github.com/celerix-dev/celerix-contacts/pkg/sdk"
)

const tokenKey = "access_token"

type Handler struct {
	Backend sdk.Backend
	Logger  *zap.Logger

	// AllowRedirect decides which redirect_to targets may receive a recovery
	// session. When nil, recovery links never redirect.
	AllowRedirect func(target string) bool
}

// Register mounts every route of the API on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)

	authGroup := r.Group("/auth/v1")
	{
		authGroup.POST("/signup", h.SignUp)
		authGroup.POST("/token", h.Token)
		authGroup.POST("/recover", h.Recover)
		authGroup.GET("/verify", h.Verify)
		authGroup.POST("/logout", RequireBearer(), h.Logout)
		authGroup.GET("/user", RequireBearer(), h.GetUser)
		authGroup.PUT("/user", RequireBearer(), h.UpdateUser)
	}

	rest := r.Group("/rest/v1", RequireBearer())
	{
		rest.GET("/contacts", h.SelectContacts)
		rest.POST("/contacts", h.InsertContacts)
		rest.PATCH("/contacts", h.UpdateContact)
		rest.DELETE("/contacts", h.DeleteContact)
	}
}

// CORS allows browser clients from any origin.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, PATCH, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
}

// RequireBearer rejects requests without a bearer token and stores it on the context.
func RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   schema.CodeSessionNotFound,
				"message": "missing bearer token",
			})
			return
		}
		c.Set(tokenKey, token)
		c.Next()
	}
}

func statusFor(code string) int {
	switch code {
	case schema.CodeInvalidRequest:
		return http.StatusBadRequest
	case schema.CodeInvalidCredentials, schema.CodeSessionNotFound, schema.CodeSessionExpired, schema.CodeInvalidToken:
		return http.StatusUnauthorized
	case schema.CodeRecoveryOnly, schema.CodeForbidden:
		return http.StatusForbidden
	case schema.CodeNotFound:
		return http.StatusNotFound
	case schema.CodeUserExists:
		return http.StatusConflict
	case schema.CodeWeakPassword:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := schema.Code(err)
	if code == schema.CodeInternal && h.Logger != nil {
		h.Logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(statusFor(code), gin.H{"error": code, "message": schema.PublicMessage(err)})
}

func (h *Handler) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": schema.CodeInvalidRequest, "message": msg})
}

// eqFilter parses a "eq.<value>" query filter.
func eqFilter(c *gin.Context, name string) (string, bool) {
	raw, ok := c.GetQuery(name)
	if !ok {
		return "", false
	}
	v, found := strings.CutPrefix(raw, "eq.")
	return v, found && v != ""
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) SignUp(c *gin.Context) {
	var in credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	user, err := h.Backend.SignUp(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// Token issues sessions for grant_type=password and grant_type=refresh_token.
func (h *Handler) Token(c *gin.Context) {
	ctx := c.Request.Context()
	switch c.Query("grant_type") {
	case "password":
		var in credentials
		if err := c.ShouldBindJSON(&in); err != nil {
			h.badRequest(c, err.Error())
			return
		}
		sess, err := h.Backend.SignInWithPassword(ctx, in.Email, in.Password)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, sess)
	case "refresh_token":
		var in struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			h.badRequest(c, err.Error())
			return
		}
		sess, err := h.Backend.RefreshSession(ctx, in.RefreshToken)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, sess)
	default:
		h.badRequest(c, "unsupported grant_type")
	}
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.Backend.SignOut(c.Request.Context(), c.GetString(tokenKey)); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) GetUser(c *gin.Context) {
	user, err := h.Backend.GetUser(c.Request.Context(), c.GetString(tokenKey))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) UpdateUser(c *gin.Context) {
	var attrs schema.UserAttributes
	if err := c.ShouldBindJSON(&attrs); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	user, err := h.Backend.UpdateUser(c.Request.Context(), c.GetString(tokenKey), attrs)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) Recover(c *gin.Context) {
	var in struct {
		Email      string `json:"email" binding:"required"`
		RedirectTo string `json:"redirect_to"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	if in.RedirectTo == "" {
		in.RedirectTo = c.Query("redirect_to")
	}
	if err := h.Backend.ResetPasswordForEmail(c.Request.Context(), in.Email, in.RedirectTo); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// Verify is the target of emailed recovery links. It consumes the token and
// redirects to redirect_to carrying the recovery session, or returns it as JSON
// when no redirect was requested.
func (h *Handler) Verify(c *gin.Context) {
	if t := c.Query("type"); t != "recovery" {
		h.badRequest(c, "unsupported verification type")
		return
	}
	// The token is only spent once the redirect is accepted.
	redirectTo := c.Query("redirect_to")
	var target *url.URL
	if redirectTo != "" {
		if h.AllowRedirect == nil || !h.AllowRedirect(redirectTo) {
			h.badRequest(c, "redirect_to is not allowed")
			return
		}
		var err error
		if target, err = url.Parse(redirectTo); err != nil {
			h.badRequest(c, "invalid redirect_to")
			return
		}
	}

	sess, err := h.Backend.VerifyRecovery(c.Request.Context(), c.Query("token"))
	if err != nil {
		h.fail(c, err)
		return
	}
	if target == nil {
		c.JSON(http.StatusOK, sess)
		return
	}
	q := target.Query()
	q.Set("access_token", sess.AccessToken)
	q.Set("refresh_token", sess.RefreshToken)
	q.Set("expires_at", strconv.FormatInt(sess.ExpiresAt.Unix(), 10))
	q.Set("type", "recovery")
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusSeeOther, target.String())
}

func (h *Handler) SelectContacts(c *gin.Context) {
	userID, _ := eqFilter(c, "user_id")
	rows, err := h.Backend.SelectContacts(c.Request.Context(), c.GetString(tokenKey), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if rows == nil {
		rows = []schema.Contact{}
	}
	c.JSON(http.StatusOK, rows)
}

// InsertContacts accepts a single row or an array of rows.
func (h *Handler) InsertContacts(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	rows, err := decodeRows(body)
	if err != nil {
		h.badRequest(c, err.Error())
		return
	}
	out, err := h.Backend.InsertContacts(c.Request.Context(), c.GetString(tokenKey), rows)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func decodeRows(body []byte) ([]schema.ContactInput, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var rows []schema.ContactInput
		if err := jsonUnmarshal(trimmed, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
	var row schema.ContactInput
	if err := jsonUnmarshal(trimmed, &row); err != nil {
		return nil, err
	}
	return []schema.ContactInput{row}, nil
}

func (h *Handler) UpdateContact(c *gin.Context) {
	id, ok := eqFilter(c, "id")
	if !ok {
		h.badRequest(c, "an id=eq.<id> filter is required")
		return
	}
	var patch schema.ContactPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	out, err := h.Backend.UpdateContact(c.Request.Context(), c.GetString(tokenKey), id, patch)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) DeleteContact(c *gin.Context) {
	id, ok := eqFilter(c, "id")
	if !ok {
		h.badRequest(c, "an id=eq.<id> filter is required")
		return
	}
	if err := h.Backend.DeleteContact(c.Request.Context(), c.GetString(tokenKey), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

var errEmptyBody = errors.New("request body is empty")

func jsonUnmarshal(s string, v any) error {
	if s == "" {
		return errEmptyBody
	}
	return json.Unmarshal([]byte(s), v)
}
