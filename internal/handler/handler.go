package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"backoffice/internal/middleware"
	"backoffice/internal/model"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

// writeError maps service error kinds onto HTTP status codes inside the standard envelope
func writeError(c *gin.Context, err error) {
	var transfer *service.TransferRequiredError
	if errors.As(err, &transfer) {
		c.JSON(http.StatusConflict, response.ErrorWithData(http.StatusConflict, err.Error(), gin.H{
			"client_id":          transfer.ClientID.String(),
			"current_block_id":   transfer.CurrentBlockID.String(),
			"current_block_name": transfer.CurrentBlockName,
			"target_block_id":    transfer.TargetBlockID.String(),
		}))
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrUnauthorized):
		status = http.StatusUnauthorized
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		slog.Default().Error("request failed", "path", c.FullPath(), "error", err)
		msg = "Internal server error"
	}
	c.JSON(status, response.Error(status, msg))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
}

func forbiddenScope(c *gin.Context) {
	c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: resource is outside your scope"))
}

// callerScope describes which records a partner or client user is restricted to.
// Staff roles get an empty scope.
type callerScope struct {
	PartnerID string
	ClientID  string
}

func (s callerScope) restricted() bool { return s.PartnerID != "" || s.ClientID != "" }

// scopeOf reads the scope from the token claims. A partner or client token without
// its id is refused outright so that it never falls through to an unscoped query.
func scopeOf(c *gin.Context) (callerScope, bool) {
	switch middleware.Role(c) {
	case model.RolePartner:
		if middleware.PartnerID(c) == "" {
			forbiddenScope(c)
			return callerScope{}, false
		}
		return callerScope{PartnerID: middleware.PartnerID(c)}, true
	case model.RoleClient:
		if middleware.ClientID(c) == "" {
			forbiddenScope(c)
			return callerScope{}, false
		}
		return callerScope{ClientID: middleware.ClientID(c)}, true
	}
	return callerScope{}, true
}

// allowsClient checks a client record against the scope
func (s callerScope) allowsClient(client *service.ClientResponse) bool {
	switch {
	case s.ClientID != "":
		return client.ID == s.ClientID
	case s.PartnerID != "":
		return client.PartnerID == s.PartnerID
	}
	return true
}

// requireClientAccess loads the client when the caller is scoped and writes 403/404 when denied
func requireClientAccess(c *gin.Context, clients service.ClientService, clientID string) bool {
	sc, ok := scopeOf(c)
	if !ok {
		return false
	}
	if !sc.restricted() {
		return true
	}
	if sc.ClientID != "" {
		if clientID != sc.ClientID {
			forbiddenScope(c)
			return false
		}
		return true
	}

	client, err := clients.GetClient(c.Request.Context(), clientID)
	if err != nil {
		writeError(c, err)
		return false
	}
	if !sc.allowsClient(client) {
		forbiddenScope(c)
		return false
	}
	return true
}
