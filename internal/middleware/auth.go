// Package middleware provides the bearer-JWT authentication gin uses to
// protect the diff runner's HTTP surface: context helpers plus a
// gin.HandlerFunc that rejects missing or invalid bearer tokens.
package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDContextKey = "user_id"

// Claims is the minimal JWT payload the outer web layer issues; schema
// validation and account storage are explicitly out of scope
// so this only asserts a numeric subject.
type Claims struct {
	jwt.RegisteredClaims
}

// RequireAuth validates a bearer token signed with secret (HS256) and
// stores the authenticated user id in the gin context.
func RequireAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := extractBearerToken(c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrTokenSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		userID, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid subject claim"})
			return
		}

		c.Set(userIDContextKey, uint(userID))
		c.Next()
	}
}

// GetUserID reads the authenticated user id set by RequireAuth.
func GetUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

func extractBearerToken(header string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", errMissingBearerToken
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	if token == "" {
		return "", errMissingBearerToken
	}
	return token, nil
}

var errMissingBearerToken = &authError{"missing bearer token"}

type authError struct{ msg string }

func (e *authError) Error() string { return e.msg }
