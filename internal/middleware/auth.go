package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const adminRole = "admin"

var ErrMissingToken = errors.New("missing admin token")

// IssueAdminToken signs an HS256 token carrying the admin role.
func IssueAdminToken(secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("admin token secret is empty")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": adminRole,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// ValidateAdminToken checks the signature, expiry and role of tokenString.
func ValidateAdminToken(secret, tokenString string) error {
	if tokenString == "" {
		return ErrMissingToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return fmt.Errorf("invalid admin token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return errors.New("invalid admin token claims")
	}
	if role, _ := claims["role"].(string); role != adminRole {
		return errors.New("token does not carry the admin role")
	}
	return nil
}

// AdminTokenValidator returns a validator bound to secret, or nil when no
// secret is configured and admin access stays open.
func AdminTokenValidator(secret string) func(string) error {
	if secret == "" {
		return nil
	}
	return func(token string) error {
		return ValidateAdminToken(secret, token)
	}
}

// AdminAuth requires a Bearer admin token when secret is set and lets every
// request through otherwise.
func AdminAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || tokenString == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		if err := ValidateAdminToken(secret, tokenString); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set("role", adminRole)
		c.Next()
	}
}
