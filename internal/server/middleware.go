package server

import (
	"net/http"
	"strings"

	"taskmanager/internal/domain/access"
	"taskmanager/internal/domain/errors"
	"taskmanager/internal/domain/models"
	"taskmanager/internal/taskstore"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserKey  = "user"
	ctxActorKey = "actor"
)

// bearerToken reads the token from the Authorization header, falling back to
// the session cookie.
func bearerToken(ctx *gin.Context, cookieName string) string {
	const scheme = "Bearer "
	if h := strings.TrimSpace(ctx.GetHeader("Authorization")); len(h) > len(scheme) && strings.EqualFold(h[:len(scheme)], scheme) {
		return strings.TrimSpace(h[len(scheme):])
	}
	if cookie, err := ctx.Cookie(cookieName); err == nil {
		return cookie
	}
	return ""
}

// AuthRequired resolves the token to a stored user. The role is always taken
// from storage, never from the token.
func AuthRequired(jwtm *JWTManager, users taskstore.UserRepository, cookieName string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := bearerToken(ctx, cookieName)
		if token == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		claims, err := jwtm.Validate(token)
		if err != nil {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		user, err := users.GetUserByID(ctx.Request.Context(), claims.UserID)
		if err != nil {
			if errors.Is(err, errors.ErrUserNotFound) {
				ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user no longer exists"})
				return
			}
			respondError(ctx, err)
			ctx.Abort()
			return
		}
		ctx.Set(ctxUserKey, user)
		ctx.Set(ctxActorKey, access.ActorOf(user))
		ctx.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if !actorFrom(ctx).IsAdmin() {
			ctx.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": errors.ErrForbidden.Error()})
			return
		}
		ctx.Next()
	}
}

func actorFrom(ctx *gin.Context) access.Actor {
	if v, ok := ctx.Get(ctxActorKey); ok {
		if a, ok := v.(access.Actor); ok {
			return a
		}
	}
	return access.Actor{}
}

func userFrom(ctx *gin.Context) *models.User {
	if v, ok := ctx.Get(ctxUserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}
