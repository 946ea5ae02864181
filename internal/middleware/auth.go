package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/itorigin/site/internal/pkg/response"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeyRole   = "user_role"
)

// Identity is the authenticated principal attached to a request.
type Identity struct {
	UserID string
	Role   string
}

// Authenticator resolves a bearer token to an Identity. Implementations must
// reject tokens of deleted users.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// Auth returns a middleware that rejects requests without a valid token (401).
func Auth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Unauthorized(c)
			return
		}
		id, err := a.Authenticate(c.Request.Context(), token)
		if err != nil || id.UserID == "" {
			response.Unauthorized(c)
			return
		}
		setIdentity(c, id)
		c.Next()
	}
}

// OptionalAuth sets the identity if a valid token is present, but does not block the request.
func OptionalAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := extractToken(c); token != "" {
			if id, err := a.Authenticate(c.Request.Context(), token); err == nil && id.UserID != "" {
				setIdentity(c, id)
			}
		}
		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated role is one of roles.
// It must run after Auth; an anonymous request still gets 401.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		if !IsAuthenticated(c) {
			response.Unauthorized(c)
			return
		}
		if _, ok := allowed[CurrentRole(c)]; !ok {
			response.Forbidden(c)
			return
		}
		c.Next()
	}
}

func setIdentity(c *gin.Context, id Identity) {
	c.Set(ContextKeyUserID, id.UserID)
	c.Set(ContextKeyRole, id.Role)
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	return c.GetString(ContextKeyUserID)
}

// CurrentRole extracts the authenticated role from context.
func CurrentRole(c *gin.Context) string {
	return c.GetString(ContextKeyRole)
}

// IsAuthenticated returns true if the request has a valid auth token.
func IsAuthenticated(c *gin.Context) bool {
	return CurrentUserID(c) != ""
}

func extractToken(c *gin.Context) string {
	return NormalizeToken(c.GetHeader("Authorization"))
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
