package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"docuvault/internal/identity"
	"docuvault/internal/model"
	"docuvault/internal/repository"
	"docuvault/internal/tenantdb"
	"docuvault/internal/transport/http/response"
)

const (
	ContextUserKey  = "user"
	ContextScopeKey = "tenant_scope"

	// DevEmailHeader supplies the identity directly in development
	// mode. Ignored entirely in production mode.
	DevEmailHeader      = "X-Dev-Email"
	DevExternalIDHeader = "X-Dev-External-Id"
)

// Identity authenticates the request, resolves the user row, and
// attaches the user and tenant scope to the request context. Every
// route behind this middleware operates under exactly one tenant.
func Identity(resolver *identity.Resolver, users *repository.UserRepository, mode, jwtSecret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := requestClaims(c, mode, jwtSecret)
		if err != nil {
			response.Error(c, 401, response.CodeUnauthorized, err.Error())
			c.Abort()
			return
		}

		user, err := resolver.Resolve(claims)
		if err != nil {
			logger.Warn("identity resolution failed", zap.Error(err))
			response.Error(c, 401, response.CodeUnauthorized, "identity resolution failed")
			c.Abort()
			return
		}

		scope, err := tenantdb.NewScope(user.TenantID)
		if err != nil {
			logger.Error("user row carries invalid tenant id", zap.String("user_id", user.ID), zap.Error(err))
			response.Error(c, 500, response.CodeInternalServer, "invalid tenant binding")
			c.Abort()
			return
		}

		if err := users.TouchLastActive(user.ID); err != nil {
			logger.Warn("touch last active failed", zap.String("user_id", user.ID), zap.Error(err))
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextScopeKey, scope)
		c.Next()
	}
}

func requestClaims(c *gin.Context, mode, jwtSecret string) (identity.Claims, error) {
	if mode == "development" {
		if email := strings.TrimSpace(c.GetHeader(DevEmailHeader)); email != "" {
			return identity.Claims{
				Email:      email,
				ExternalID: strings.TrimSpace(c.GetHeader(DevExternalIDHeader)),
			}, nil
		}
	}

	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		return identity.Claims{}, fmt.Errorf("missing authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return identity.Claims{}, fmt.Errorf("invalid authorization scheme")
	}
	raw := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil || !token.Valid {
		return identity.Claims{}, fmt.Errorf("invalid or expired token")
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return identity.Claims{}, fmt.Errorf("invalid token payload")
	}
	email, _ := mapClaims["email"].(string)
	sub, _ := mapClaims.GetSubject()
	if strings.TrimSpace(email) == "" {
		return identity.Claims{}, fmt.Errorf("token carries no email claim")
	}
	return identity.Claims{Email: email, ExternalID: sub}, nil
}

// UserFromContext returns the resolved user attached by Identity.
func UserFromContext(c *gin.Context) (*model.User, bool) {
	v, exists := c.Get(ContextUserKey)
	if !exists {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok
}

// ScopeFromContext returns the tenant scope attached by Identity.
func ScopeFromContext(c *gin.Context) (*tenantdb.Scope, bool) {
	v, exists := c.Get(ContextScopeKey)
	if !exists {
		return nil, false
	}
	scope, ok := v.(*tenantdb.Scope)
	return scope, ok
}
