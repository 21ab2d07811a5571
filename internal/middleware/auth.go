// Package middleware holds the fiber middleware shared by every route:
// bearer authentication, request logging, tracing and rate limiting.
package middleware

import (
	"strconv"
	"strings"

	"secmaster/internal/config"
	"secmaster/internal/models"
	"secmaster/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// ActorLocal is the fiber local holding the authenticated user id.
const ActorLocal = "userID"

var cfg *config.Config

// InitMiddleware initializes authentication middleware with the given config.
func InitMiddleware(c *config.Config) {
	cfg = c
}

// AuthRequired enforces a bearer token on protected routes.
func AuthRequired(c *fiber.Ctx) error {
	raw, err := bearerToken(c.Get("Authorization"))
	if err != nil {
		return unauthorized(c, err.Error())
	}
	return authenticate(c, raw)
}

// WebSocketAuthRequired accepts the token as a query parameter, since
// browsers cannot set headers on a websocket upgrade, and falls back to the
// Authorization header.
func WebSocketAuthRequired(c *fiber.Ctx) error {
	raw := c.Query("token")
	if raw == "" {
		var err error
		if raw, err = bearerToken(c.Get("Authorization")); err != nil {
			return unauthorized(c, "Token required")
		}
	}
	return authenticate(c, raw)
}

// ActorID returns the authenticated user id, or 0.
func ActorID(c *fiber.Ctx) uint {
	id, _ := c.Locals(ActorLocal).(uint)
	return id
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "Authorization header required")
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", fiber.NewError(fiber.StatusUnauthorized, "Invalid authorization header format")
	}
	return parts[1], nil
}

func authenticate(c *fiber.Ctx, raw string) error {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return unauthorized(c, "Invalid or expired token")
	}

	// Subject carries the user id (RFC 7519 "sub").
	if claims.Subject == "" {
		return unauthorized(c, "Invalid token structure - missing subject")
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil || userID == 0 {
		return unauthorized(c, "Invalid user ID in token")
	}

	c.Locals(ActorLocal, uint(userID))
	c.SetUserContext(observability.WithUserID(c.UserContext(), uint(userID)))
	return c.Next()
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return models.RespondWithError(c, fiber.StatusUnauthorized, models.NewUnauthorizedError(msg))
}
