package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backoffice/internal/auth"
	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPerms map[string][]string

func (s stubPerms) GetPermissionsByRoleName(_ context.Context, role string) ([]string, error) {
	return s[role], nil
}

// stubClients serves GetClient from a map and records list filters
type stubClients struct {
	service.ClientService
	rows       map[string]service.ClientResponse
	lastFilter service.ClientFilter
}

func (s *stubClients) GetClient(_ context.Context, id string) (*service.ClientResponse, error) {
	c, ok := s.rows[id]
	if !ok {
		return nil, &service.Error{Kind: service.ErrNotFound, Msg: "client not found"}
	}
	return &c, nil
}

func (s *stubClients) ListClients(_ context.Context, filter service.ClientFilter) ([]service.ClientResponse, int64, error) {
	s.lastFilter = filter
	var out []service.ClientResponse
	for _, c := range s.rows {
		if filter.PartnerID == "" || c.PartnerID == filter.PartnerID {
			out = append(out, c)
		}
	}
	return out, int64(len(out)), nil
}

type testEnv struct {
	tokens *auth.TokenManager
	auth   *middleware.Authenticator
}

func newTestEnv() *testEnv {
	gin.SetMode(gin.TestMode)
	tm := auth.NewTokenManager("handler-secret", time.Hour)
	perms := stubPerms{
		model.RolePartner:   {model.PermClientsRead, model.PermTaxBlocksRead},
		model.RoleClient:    {model.PermSalesRead, model.PermClientsRead},
		model.RoleLogistics: {model.PermMachinesRead},
	}
	return &testEnv{tokens: tm, auth: middleware.NewAuthenticator(tm, perms, false)}
}

func (e *testEnv) token(t *testing.T, role string, partnerID, clientID *uuid.UUID) string {
	t.Helper()
	token, _, err := e.tokens.Issue(&model.User{ID: uuid.New(), Role: role, PartnerID: partnerID, ClientID: clientID})
	require.NoError(t, err)
	return token
}

func (e *testEnv) router(handlers ...interface{ RegisterRoutes(*gin.RouterGroup) }) *gin.Engine {
	r := gin.New()
	api := r.Group("/api")
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}
	return r
}

type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
}

func do(t *testing.T, r http.Handler, method, path, token, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestWriteError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{&service.Error{Kind: service.ErrNotFound, Msg: "client not found"}, http.StatusNotFound, "client not found"},
		{&service.Error{Kind: service.ErrValidation, Msg: "bad rate"}, http.StatusBadRequest, "bad rate"},
		{&service.Error{Kind: service.ErrConflict, Msg: "taken"}, http.StatusConflict, "taken"},
		{&service.Error{Kind: service.ErrForbidden, Msg: "nope"}, http.StatusForbidden, "nope"},
		{&service.Error{Kind: service.ErrUnauthorized, Msg: "who?"}, http.StatusUnauthorized, "who?"},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

		writeError(c, tc.err)

		assert.Equal(t, tc.status, w.Code)
		var env envelope
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
		assert.Equal(t, "error", env.Status)
		assert.Equal(t, tc.msg, env.Error)
	}
}

func TestWriteError_TransferRequiredCarriesCurrentBlock(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	current := uuid.New()
	writeError(c, &service.TransferRequiredError{ClientID: uuid.New(), CurrentBlockID: current, CurrentBlockName: "Gold", TargetBlockID: uuid.New()})

	assert.Equal(t, http.StatusConflict, w.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var data map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, current.String(), data["current_block_id"])
	assert.Equal(t, "Gold", data["current_block_name"])
}

func TestScopeOf(t *testing.T) {
	gin.SetMode(gin.TestMode)
	partnerID := uuid.NewString()

	cases := []struct {
		name      string
		role      string
		partnerID string
		clientID  string
		ok        bool
		want      callerScope
	}{
		{"admin is unrestricted", model.RoleAdmin, "", "", true, callerScope{}},
		{"logistics is unrestricted", model.RoleLogistics, "", "", true, callerScope{}},
		{"partner scope", model.RolePartner, partnerID, "", true, callerScope{PartnerID: partnerID}},
		{"partner without id is refused", model.RolePartner, "", "", false, callerScope{}},
		{"client without id is refused", model.RoleClient, "", "", false, callerScope{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Set(middleware.CtxUserRole, tc.role)
			c.Set(middleware.CtxPartnerID, tc.partnerID)
			c.Set(middleware.CtxClientID, tc.clientID)

			sc, ok := scopeOf(c)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, sc)
			if !ok {
				assert.Equal(t, http.StatusForbidden, w.Code)
			}
		})
	}
}
