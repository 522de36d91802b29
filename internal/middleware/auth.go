package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"backoffice/internal/auth"
	"backoffice/internal/model"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

// Context keys set by the auth middleware
const (
	CtxUserID    = "userID"
	CtxUserRole  = "userRole"
	CtxPartnerID = "partnerID"
	CtxClientID  = "clientID"
)

const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

// PermissionLookup returns the permission codes granted to a role
type PermissionLookup interface {
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
}

type Authenticator struct {
	tokens        *auth.TokenManager
	perms         PermissionLookup
	secureCookies bool
}

// NewAuthenticator builds the auth middleware set; secureCookies switches cookies to Secure + SameSite=None
func NewAuthenticator(tokens *auth.TokenManager, perms PermissionLookup, secureCookies bool) *Authenticator {
	return &Authenticator{tokens: tokens, perms: perms, secureCookies: secureCookies}
}

// SetTokenCookies sets access_token and refresh_token as HttpOnly cookies
func (a *Authenticator) SetTokenCookies(c *gin.Context, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration) {
	c.SetSameSite(a.sameSite())
	c.SetCookie(AccessTokenCookie, accessToken, int(accessTTL.Seconds()), "/", "", a.secureCookies, true)
	c.SetCookie(RefreshTokenCookie, refreshToken, int(refreshTTL.Seconds()), "/", "", a.secureCookies, true)
}

// ClearTokenCookies removes access_token and refresh_token cookies
func (a *Authenticator) ClearTokenCookies(c *gin.Context) {
	c.SetSameSite(a.sameSite())
	c.SetCookie(AccessTokenCookie, "", -1, "/", "", a.secureCookies, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", "", a.secureCookies, true)
}

func (a *Authenticator) sameSite() http.SameSite {
	if a.secureCookies {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

// RequireAuth accepts any valid access token
func (a *Authenticator) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := a.authenticate(c); !ok {
			return
		}
		c.Next()
	}
}

// RequireRole validates the JWT token and checks the role is one of allowedRoles
func (a *Authenticator) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := a.authenticate(c)
		if !ok {
			return
		}

		for _, role := range allowedRoles {
			if claims.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
	}
}

// RequirePermission validates the JWT and checks the role holds every required permission code.
// Admin always passes.
func (a *Authenticator) RequirePermission(requiredPerms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := a.authenticate(c)
		if !ok {
			return
		}
		if claims.Role == model.RoleAdmin {
			c.Next()
			return
		}

		userPerms, err := a.perms.GetPermissionsByRoleName(c.Request.Context(), claims.Role)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to verify permissions"))
			return
		}

		permSet := make(map[string]bool, len(userPerms))
		for _, p := range userPerms {
			permSet[p] = true
		}
		for _, required := range requiredPerms {
			if !permSet[required] {
				c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: missing permission '"+required+"'"))
				return
			}
		}

		c.Next()
	}
}

// authenticate parses the token from the cookie or the Authorization header and
// stores the identity on the context; it aborts the request on failure
func (a *Authenticator) authenticate(c *gin.Context) (*auth.Claims, bool) {
	tokenString, err := c.Cookie(AccessTokenCookie)
	if err != nil || tokenString == "" {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return nil, false
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
			return nil, false
		}
		tokenString = parts[1]
	}

	claims, err := a.tokens.Parse(tokenString)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
		return nil, false
	}

	c.Set(CtxUserID, claims.Subject)
	c.Set(CtxUserRole, claims.Role)
	c.Set(CtxPartnerID, claims.PartnerID)
	c.Set(CtxClientID, claims.ClientID)
	return claims, true
}

// UserID returns the authenticated user's id, or "" outside an authenticated route
func UserID(c *gin.Context) string { return c.GetString(CtxUserID) }
func Role(c *gin.Context) string { return c.GetString(CtxUserRole) }
func PartnerID(c *gin.Context) string { return c.GetString(CtxPartnerID) }
func ClientID(c *gin.Context) string { return c.GetString(CtxClientID) }
