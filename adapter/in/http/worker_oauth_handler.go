package http

import (
	"github.com/gofiber/fiber/v2"

	"calsync_server/core/domain"
	"calsync_server/core/port/in"
	"calsync_server/pkg/apperr"
	"calsync_server/pkg/logger"
)

type OAuthHandler struct {
	oauthService in.OAuthService
}

func NewOAuthHandler(oauthService in.OAuthService) *OAuthHandler {
	return &OAuthHandler{oauthService: oauthService}
}

func (h *OAuthHandler) Register(app fiber.Router, g Guards) {
	oauth := app.Group("/oauth")
	oauth.Get("/:provider/login", g.Redirect, h.Login)
	oauth.Get("/:provider/callback", h.Callback)
}

func providerParam(c *fiber.Ctx) (domain.Provider, error) {
	p := domain.Provider(c.Params("provider"))
	if !p.Valid() {
		return "", apperr.BadRequest("unsupported provider: " + string(p))
	}
	return p, nil
}

// Login redirects the session user to the provider consent page.
func (h *OAuthHandler) Login(c *fiber.Ctx) error {
	provider, err := providerParam(c)
	if err != nil {
		return err
	}
	user, err := MustGetUser(c)
	if err != nil {
		return err
	}

	authURL, err := h.oauthService.LoginURL(c.UserContext(), provider, user)
	if err != nil {
		return err
	}
	logger.Info("[OAuth Login] %s: redirecting %s to consent", provider, user)
	return c.Redirect(authURL, fiber.StatusFound)
}

// Callback exchanges the authorization code and stores the token.
func (h *OAuthHandler) Callback(c *fiber.Ctx) error {
	provider, err := providerParam(c)
	if err != nil {
		return err
	}
	if e := c.Query("error"); e != "" {
		return apperr.BadRequest("authorization denied: " + e).
			WithDetail("description", c.Query("error_description"))
	}

	user, err := h.oauthService.Authorize(c.UserContext(), provider, c.Query("code"), c.Query("state"))
	if err != nil {
		return err
	}
	logger.Info("[OAuth Callback] %s: authorized %s", provider, user)
	return SuccessResponse(c, fiber.Map{
		"user":       user,
		"provider":   provider,
		"authorized": true,
	})
}
