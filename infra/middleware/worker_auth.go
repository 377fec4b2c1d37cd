package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"calsync_server/pkg/apperr"
)

// LocalUser is the fiber.Ctx locals key holding the authenticated user name.
const LocalUser = "user"

// SessionVerifier resolves a session token to a user name.
type SessionVerifier interface {
	Verify(token string) (string, error)
}

func bearerToken(c *fiber.Ctx) string {
	h := c.Get(fiber.HeaderAuthorization)
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// SessionAuth requires a valid session token in the Authorization header.
// When allowQuery is set the access_token query parameter is accepted too,
// for browser redirects that cannot carry headers.
func SessionAuth(verifier SessionVerifier, allowQuery bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" && allowQuery {
			token = c.Query("access_token")
		}
		if token == "" {
			return apperr.Unauthorized("missing session token")
		}

		user, err := verifier.Verify(token)
		if err != nil {
			return apperr.Unauthorized("invalid session token").WithError(err)
		}
		c.Locals(LocalUser, user)
		return c.Next()
	}
}

// AdminToken guards operator routes with a shared secret sent as
// X-Admin-Token or a bearer token. With an empty secret the route is open
// when optional is set and closed otherwise.
func AdminToken(secret string, optional bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			if optional {
				return c.Next()
			}
			return apperr.Forbidden("admin token not configured")
		}

		got := c.Get("X-Admin-Token")
		if got == "" {
			got = bearerToken(c)
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return apperr.Forbidden("admin token required")
		}
		return c.Next()
	}
}

// User returns the authenticated user name set by SessionAuth.
func User(c *fiber.Ctx) (string, bool) {
	user, ok := c.Locals(LocalUser).(string)
	return user, ok && user != ""
}
