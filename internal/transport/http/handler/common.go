package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"docuvault/internal/model"
	"docuvault/internal/tenantdb"
	"docuvault/internal/transport/http/middleware"
	"docuvault/internal/transport/http/response"
	"docuvault/internal/types"
)

// requestIdentity pulls the resolved user and tenant scope out of the
// request context. Both are set by the identity middleware; a miss
// means the route was registered outside the protected group.
func requestIdentity(c *gin.Context) (*model.User, *tenantdb.Scope, bool) {
	user, ok := middleware.UserFromContext(c)
	if !ok {
		response.Error(c, 401, response.CodeUnauthorized, "unauthorized")
		return nil, nil, false
	}
	scope, ok := middleware.ScopeFromContext(c)
	if !ok {
		response.Error(c, 401, response.CodeUnauthorized, "unauthorized")
		return nil, nil, false
	}
	return user, scope, true
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, types.ErrValidation):
		response.Error(c, 400, response.CodeBadRequest, err.Error())
	case errors.Is(err, types.ErrNotFound):
		response.Error(c, 404, response.CodeNotFound, err.Error())
	case errors.Is(err, types.ErrDuplicate):
		response.Error(c, 409, response.CodeDuplicate, err.Error())
	case errors.Is(err, types.ErrDependency):
		response.Error(c, 503, response.CodeDependency, "a backing service is unavailable, please retry")
	case errors.Is(err, types.ErrIsolationViolation):
		response.Error(c, 401, response.CodeUnauthorized, "unauthorized")
	default:
		response.Error(c, 500, response.CodeInternalServer, "internal server error")
	}
}
