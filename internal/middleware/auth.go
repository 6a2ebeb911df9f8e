package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/medqr/emergency-api/internal/handler"
	"github.com/medqr/emergency-api/internal/model"
	"github.com/medqr/emergency-api/internal/repository"
	pkgauth "github.com/medqr/emergency-api/pkg/auth"
)

const (
	// ContextActor is the gin context key holding the resolved actor.
	ContextActor = "actor"

	identityCacheTTL = 30 * time.Second
)

type AuthMiddleware struct {
	jwtSvc   pkgauth.JWTService
	userRepo repository.UserRepository
	// identities caches token-to-identity resolution so every request
	// in a burst does not hit the user table. Invalidated when an
	// admin flips verification, so staleness is bounded by the TTL
	// only for fields admins cannot change.
	identities *gocache.Cache
}

func NewAuthMiddleware(jwtSvc pkgauth.JWTService, userRepo repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{
		jwtSvc:     jwtSvc,
		userRepo:   userRepo,
		identities: gocache.New(identityCacheTTL, 2*identityCacheTTL),
	}
}

// InvalidateIdentity drops a cached identity after an admin action.
func (m *AuthMiddleware) InvalidateIdentity(id uuid.UUID) {
	m.identities.Delete(id.String())
}

// Authenticate verifies the bearer token and resolves the full actor
// into the request context. Every protected route runs through here;
// downstream code reads the actor and never re-parses the token.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid authorization format"))
			c.Abort()
			return
		}

		claims, err := m.jwtSvc.ValidateToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("invalid token"))
			c.Abort()
			return
		}

		actor, err := m.resolveActor(c, claims.UserID)
		if err != nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("unknown user"))
			c.Abort()
			return
		}

		c.Set(ContextActor, actor)
		c.Next()
	}
}

func (m *AuthMiddleware) resolveActor(c *gin.Context, userID uuid.UUID) (*model.Actor, error) {
	key := userID.String()
	if cached, ok := m.identities.Get(key); ok {
		return cached.(*model.Actor), nil
	}

	user, err := m.userRepo.Get(c.Request.Context(), userID)
	if err != nil {
		return nil, err
	}

	actor := model.ActorFromUser(user)
	m.identities.Set(key, actor, identityCacheTTL)
	return actor, nil
}

// RequireRole gates a route group on an exact role.
func (m *AuthMiddleware) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := ActorFromContext(c)
		if actor == nil {
			c.JSON(http.StatusUnauthorized, handler.NewErrorResponse("authentication required"))
			c.Abort()
			return
		}
		if actor.Role != role {
			c.JSON(http.StatusForbidden, handler.NewErrorResponse("access denied"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// ActorFromContext returns the resolved actor, or nil when the request
// was not authenticated.
func ActorFromContext(c *gin.Context) *model.Actor {
	if v, exists := c.Get(ContextActor); exists {
		if actor, ok := v.(*model.Actor); ok {
			return actor
		}
	}
	return nil
}
