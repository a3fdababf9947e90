package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/normgate/normgate-backend/internal/access"
	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/requestdata"
)

type engineClaims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
}

func NewAuthMiddleware(log *logger.Logger, secret string) *AuthMiddleware {
	middlewareLog := log.With("Middleware", "AuthMiddleware")
	return &AuthMiddleware{log: middlewareLog, secret: []byte(secret)}
}

// RequireAuth parses the bearer token and installs the actor's identity and
// roles into the request context. Authorization per operation happens in the
// service layer against the access policy.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		claims := &engineClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return am.secret, nil
		})
		if err != nil || !token.Valid {
			am.log.Debug("Token rejected", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		actorID, err := uuid.Parse(claims.Subject)
		if err != nil || actorID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		roles := make([]access.Role, 0, len(claims.Roles))
		for _, r := range claims.Roles {
			roles = append(roles, access.Role(r))
		}
		ctx := requestdata.WithRequestData(c.Request.Context(), &requestdata.RequestData{
			ActorID: actorID,
			Email:   claims.Email,
			Roles:   roles,
		})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return c.Query("token")
}
