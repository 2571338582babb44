// internal/api/middleware/auth.go
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	cache "github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"property-delivery-api-server/internal/auth"
	"property-delivery-api-server/internal/fault"
	"property-delivery-api-server/internal/models"
	"property-delivery-api-server/internal/repository"
)

const (
	userKey = "user"

	userCacheTTL     = time.Minute
	userCacheCleanup = 5 * time.Minute
)

// Identity resolves bearer tokens to users. Users are reloaded from the store so
// role or property changes apply without a new login; lookups are cached briefly.
type Identity struct {
	Issuer *auth.Issuer
	Users  repository.UserStore
	cache  *cache.Cache
}

func NewIdentity(issuer *auth.Issuer, users repository.UserStore) *Identity {
	return &Identity{
		Issuer: issuer,
		Users:  users,
		cache:  cache.New(userCacheTTL, userCacheCleanup),
	}
}

// Resolve returns the active user a token belongs to.
func (i *Identity) Resolve(c *gin.Context, tokenString string) (*models.User, error) {
	claims, err := i.Issuer.Parse(tokenString)
	if err != nil {
		return nil, fault.ErrIdentityRequired
	}

	if cached, ok := i.cache.Get(claims.Subject); ok {
		return cached.(*models.User), nil
	}

	id, err := primitive.ObjectIDFromHex(claims.Subject)
	if err != nil {
		return nil, fault.ErrIdentityRequired
	}
	user, err := i.Users.GetByID(c.Request.Context(), id)
	if err != nil {
		if fault.IsErrNotFound(err) {
			return nil, fault.ErrIdentityRequired
		}
		return nil, err
	}
	if user.Status != "" && user.Status != models.UserActive {
		return nil, fault.ErrIdentityRequired
	}
	i.cache.SetDefault(claims.Subject, user)
	return user, nil
}

// Authenticate requires a valid bearer token and puts the user in the context.
func (i *Identity) Authenticate() gin.HandlerFunc {
	return i.authenticate(func(c *gin.Context, status int, message string) {
		c.AbortWithStatusJSON(status, gin.H{"error": message})
	})
}

// AuthenticateMobile is Authenticate for the mobile app, which expects every
// answer as a 200 with the success/message envelope.
func (i *Identity) AuthenticateMobile() gin.HandlerFunc {
	return i.authenticate(func(c *gin.Context, _ int, message string) {
		c.AbortWithStatusJSON(http.StatusOK, gin.H{"success": false, "message": message})
	})
}

func (i *Identity) authenticate(abort func(c *gin.Context, status int, message string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			abort(c, http.StatusUnauthorized, "Invalid token format")
			return
		}

		user, err := i.Resolve(c, tokenString)
		if err != nil {
			abort(c, fault.HTTPStatus(err), err.Error())
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// Authorize lets through only users holding one of allowedRoles. Ownership of
// the property or unit is checked later by the workflow.
func Authorize(allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": fault.ErrIdentityRequired.Error()})
			return
		}

		for _, role := range allowedRoles {
			if role == user.Role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": fault.ErrForbidden.Error()})
	}
}

// CurrentUser returns the authenticated user, or nil.
func CurrentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*models.User)
	return user
}
