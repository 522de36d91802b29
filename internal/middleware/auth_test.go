package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backoffice/internal/auth"
	"backoffice/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPerms struct {
	codes map[string][]string
	err   error
	calls int
}

func (s *stubPerms) GetPermissionsByRoleName(_ context.Context, role string) ([]string, error) {
	s.calls++
	return s.codes[role], s.err
}

func newTestRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", handler, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":    UserID(c),
			"role":       Role(c),
			"partner_id": PartnerID(c),
		})
	})
	return r
}

func issue(t *testing.T, tm *auth.TokenManager, user *model.User) string {
	t.Helper()
	token, _, err := tm.Issue(user)
	require.NoError(t, err)
	return token
}

func TestRequireAuth(t *testing.T) {
	tm := auth.NewTokenManager("secret", time.Hour)
	a := NewAuthenticator(tm, &stubPerms{}, false)
	r := newTestRouter(a.RequireAuth())

	t.Run("missing header", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Token abc")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("bearer token", func(t *testing.T) {
		partnerID := uuid.New()
		user := &model.User{ID: uuid.New(), Role: model.RolePartner, PartnerID: &partnerID}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+issue(t, tm, user))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), user.ID.String())
		assert.Contains(t, w.Body.String(), partnerID.String())
	})

	t.Run("cookie token", func(t *testing.T) {
		user := &model.User{ID: uuid.New(), Role: model.RoleAdmin}
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: issue(t, tm, user)})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRequireRole(t *testing.T) {
	tm := auth.NewTokenManager("secret", time.Hour)
	a := NewAuthenticator(tm, &stubPerms{}, false)
	r := newTestRouter(a.RequireRole(model.RoleAdmin, model.RoleLogistics))

	for role, want := range map[string]int{
		model.RoleAdmin:     http.StatusOK,
		model.RoleLogistics: http.StatusOK,
		model.RoleClient:    http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+issue(t, tm, &model.User{ID: uuid.New(), Role: role}))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, role)
	}
}

func TestRequirePermission(t *testing.T) {
	tm := auth.NewTokenManager("secret", time.Hour)
	perms := &stubPerms{codes: map[string][]string{
		model.RoleLogistics: {model.PermMachinesRead, model.PermMachinesWrite},
		model.RoleClient:    {model.PermSalesRead},
	}}
	a := NewAuthenticator(tm, perms, false)
	r := newTestRouter(a.RequirePermission(model.PermMachinesWrite))

	call := func(role string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+issue(t, tm, &model.User{ID: uuid.New(), Role: role}))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, call(model.RoleLogistics))
	assert.Equal(t, http.StatusForbidden, call(model.RoleClient))

	before := perms.calls
	assert.Equal(t, http.StatusOK, call(model.RoleAdmin))
	assert.Equal(t, before, perms.calls, "admin should bypass the permission lookup")

	perms.err = errors.New("db down")
	assert.Equal(t, http.StatusInternalServerError, call(model.RoleLogistics))
}

func TestTokenCookies(t *testing.T) {
	gin.SetMode(gin.TestMode)
	a := NewAuthenticator(auth.NewTokenManager("secret", time.Hour), &stubPerms{}, true)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/login", nil)
	a.SetTokenCookies(c, "access", "refresh", time.Hour, 24*time.Hour)

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 2)
	for _, ck := range cookies {
		assert.True(t, ck.HttpOnly)
		assert.True(t, ck.Secure)
		assert.Equal(t, http.SameSiteNoneMode, ck.SameSite)
	}
	assert.Equal(t, 3600, cookies[0].MaxAge)
}
