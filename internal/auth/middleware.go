package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/uplink-support/ticketd/internal/service"
	apperrors "github.com/uplink-support/ticketd/pkg/util"
)

const principalKey = "auth_principal"

// AuthMiddleware validates bearer tokens and stores the acting
// principal on the request.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, service.Actor{
		ID:      claims.ActorID,
		Name:    claims.ActorName,
		Support: claims.Support,
	})
	return c.Next()
}

// ActorFromContext retrieves the authenticated actor.
func ActorFromContext(c *fiber.Ctx) (service.Actor, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return service.Actor{}, false
	}
	actor, ok := val.(service.Actor)
	return actor, ok
}

// RequireSupport ensures the actor carries the support authorization
// claim.
func RequireSupport() fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, ok := ActorFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !actor.Support {
			return apperrors.NewForbidden("support authorization required")
		}
		return c.Next()
	}
}
