package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// ServiceAuthConfig lists the credentials accepted from the chat bot.
type ServiceAuthConfig struct {
	// TokenHash is a bcrypt hash of a static API token.
	TokenHash string
	// JWTSecret verifies HS256 bearer tokens.
	JWTSecret string
}

// Enabled reports whether any credential is configured.
func (c ServiceAuthConfig) Enabled() bool {
	return c.TokenHash != "" || c.JWTSecret != ""
}

// ServiceAuth authenticates the calling service with a bearer token taken from
// the Authorization header or the "token" query parameter. JWTs are checked
// against JWTSecret; anything else is compared with TokenHash.
func ServiceAuth(cfg ServiceAuthConfig, logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.Enabled() {
			return c.Next()
		}

		token := bearerToken(c)
		if token == "" {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}

		if cfg.JWTSecret != "" && strings.Count(token, ".") == 2 {
			subject, err := verifyServiceJWT(token, cfg.JWTSecret)
			if err != nil {
				if logger != nil {
					logger.Warn("service token rejected", slog.Any("error", err))
				}
				return fiber.NewError(http.StatusUnauthorized, "invalid token")
			}
			c.Locals("service", subject)
			return c.Next()
		}

		if cfg.TokenHash == "" || bcrypt.CompareHashAndPassword([]byte(cfg.TokenHash), []byte(token)) != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		c.Locals("service", "api-token")
		return c.Next()
	}
}

func bearerToken(c *fiber.Ctx) string {
	authz := c.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("Bearer "):])
	}
	return strings.TrimSpace(c.Query("token"))
}

func verifyServiceJWT(token, secret string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if !parsed.Valid || claims.Subject == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.Subject, nil
}
