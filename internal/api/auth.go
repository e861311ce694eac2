package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/jaker3001/lyfehub/internal/config"
	"github.com/jaker3001/lyfehub/internal/store"
)

// Role defines the access level associated with a key or session.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleMember   Role = "member"
	RoleReadOnly Role = "readonly"
)

// Identity is the resolved caller: who they are and what they may do.
type Identity struct {
	UserID string
	Role   Role
}

// Scope maps the identity onto store visibility. Admins see everything;
// everyone else sees their own rows plus unowned ones.
func (id Identity) Scope() store.Scope {
	if id.Role == RoleAdmin {
		return store.SystemScope()
	}
	return store.UserScope(id.UserID)
}

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Mode          string // "api-key" or "none"
	Keys          map[string]Identity
	SessionSecret string
	SessionTTL    time.Duration
}

// KeysFromKeyring builds the api-key lookup table from a parsed keyring.
func KeysFromKeyring(kr *config.Keyring) map[string]Identity {
	keys := make(map[string]Identity, len(kr.Keys))
	for _, k := range kr.Keys {
		keys[k.Key] = Identity{UserID: k.UserID, Role: Role(k.Role)}
	}
	return keys
}

const identityLocal = "identity"

// NewAuthMiddleware returns a Fiber middleware that validates the
// Authorization header against the keyring, falling back to session token
// verification.
func NewAuthMiddleware(cfg AuthConfig, logger zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Skip auth in "none" mode
		if cfg.Mode == "none" {
			c.Locals(identityLocal, Identity{UserID: "local", Role: RoleAdmin})
			return c.Next()
		}

		// Skip auth for probe endpoints
		path := c.Path()
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return problemResponse(c, fiber.StatusUnauthorized,
				"missing_auth", "Unauthorized",
				"Authorization header is required")
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			return problemResponse(c, fiber.StatusUnauthorized,
				"invalid_auth_scheme", "Unauthorized",
				"Authorization header must use Bearer scheme")
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")

		if id, ok := cfg.Keys[token]; ok {
			c.Locals(identityLocal, id)
			return c.Next()
		}

		if cfg.SessionSecret != "" {
			if id, err := verifySessionToken(token, cfg.SessionSecret); err == nil {
				c.Locals(identityLocal, id)
				return c.Next()
			}
		}

		logger.Warn().
			Str("path", path).
			Str("method", c.Method()).
			Msg("unauthorized request: invalid credentials")

		return problemResponse(c, fiber.StatusUnauthorized,
			"invalid_credentials", "Unauthorized",
			"Invalid API key or session token")
	}
}

// requireRole returns a middleware that enforces a minimum role level.
func requireRole(minRole Role) fiber.Handler {
	roleLevel := map[Role]int{
		RoleReadOnly: 1,
		RoleMember:   2,
		RoleAdmin:    3,
	}

	return func(c *fiber.Ctx) error {
		id, _ := c.Locals(identityLocal).(Identity)
		if roleLevel[id.Role] < roleLevel[minRole] {
			return problemResponse(c, fiber.StatusForbidden,
				"insufficient_role", "Forbidden",
				"Insufficient permissions for this operation")
		}
		return c.Next()
	}
}

// identityFrom returns the authenticated identity for the request.
func identityFrom(c *fiber.Ctx) Identity {
	id, _ := c.Locals(identityLocal).(Identity)
	return id
}

// scopeFrom returns the store scope for the request's identity.
func scopeFrom(c *fiber.Ctx) store.Scope {
	return identityFrom(c).Scope()
}

// mintSessionToken issues a short-lived HS256 session token for an
// already-authenticated identity.
func mintSessionToken(id Identity, secret string, ttl time.Duration) (string, int64, error) {
	now := time.Now()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  id.UserID,
		"role": string(id.Role),
		"iat":  jwt.NewNumericDate(now),
		"exp":  jwt.NewNumericDate(exp),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, exp.Unix(), nil
}

func verifySessionToken(raw, secret string) (Identity, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return Identity{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, fmt.Errorf("invalid session token")
	}

	sub, _ := claims["sub"].(string)
	role, _ := claims["role"].(string)
	if sub == "" || role == "" {
		return Identity{}, fmt.Errorf("session token missing claims")
	}

	switch Role(role) {
	case RoleAdmin, RoleMember, RoleReadOnly:
	default:
		return Identity{}, fmt.Errorf("session token has unknown role %q", role)
	}

	return Identity{UserID: sub, Role: Role(role)}, nil
}
