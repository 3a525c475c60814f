package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const clientIDKey contextKey = "authClientID"

// APIKeyHeader is accepted as an alternative to a bearer API key.
const APIKeyHeader = "X-API-Key"

// Options configures the middleware. When neither Secret nor APIKeys is set
// the middleware lets every request through.
type Options struct {
	Secret   string
	Audience string
	APIKeys  []string
}

// Enabled reports whether any credential is configured.
func (o Options) Enabled() bool {
	return strings.TrimSpace(o.Secret) != "" || len(o.apiKeys()) > 0
}

func (o Options) apiKeys() []string {
	keys := make([]string, 0, len(o.APIKeys))
	for _, key := range o.APIKeys {
		if key = strings.TrimSpace(key); key != "" {
			keys = append(keys, key)
		}
	}
	return keys
}

// GetClientID retrieves the authenticated caller from context.
func GetClientID(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(clientIDKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// Middleware authenticates callers with a static API key or an HS256 JWT.
func Middleware(opts Options) gin.HandlerFunc {
	secret := strings.TrimSpace(opts.Secret)
	audience := strings.TrimSpace(opts.Audience)
	keys := opts.apiKeys()

	return func(c *gin.Context) {
		if secret == "" && len(keys) == 0 {
			c.Next()
			return
		}
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		credential := strings.TrimSpace(c.Request.Header.Get(APIKeyHeader))
		if credential == "" {
			token, err := extractBearerToken(c.Request.Header.Get("Authorization"))
			if err != nil {
				unauthorized(c, err.Error())
				return
			}
			credential = token
		}

		clientID, ok := matchAPIKey(keys, credential)
		if !ok {
			if secret == "" {
				unauthorized(c, "invalid api key")
				return
			}
			subject, err := validateToken(credential, secret, audience)
			if err != nil {
				unauthorized(c, err.Error())
				return
			}
			clientID = subject
		}

		ctx := context.WithValue(c.Request.Context(), clientIDKey, clientID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(string(clientIDKey), clientID)

		c.Next()
	}
}

func matchAPIKey(keys []string, credential string) (string, bool) {
	matched := -1
	for i, key := range keys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(credential)) == 1 {
			matched = i
		}
	}
	if matched < 0 {
		return "", false
	}
	return fmt.Sprintf("api-key-%d", matched+1), true
}

func validateToken(tokenString, secret, audience string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}
	if audience != "" && !containsAudience(claims.Audience, audience) {
		return "", errors.New("invalid audience")
	}
	if claims.Subject == "" {
		return "", errors.New("missing subject")
	}
	return claims.Subject, nil
}

func extractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("token missing")
	}
	return token, nil
}

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}

func containsAudience(claims jwt.ClaimStrings, expected string) bool {
	for _, aud := range claims {
		if aud == expected {
			return true
		}
	}
	return false
}
