package http

import (
	"github.com/gofiber/fiber/v2"

	"calsync_server/core/port/in"
)

type SyncHandler struct {
	sync  in.SyncService
	oauth in.OAuthService
}

func NewSyncHandler(sync in.SyncService, oauth in.OAuthService) *SyncHandler {
	return &SyncHandler{sync: sync, oauth: oauth}
}

func (h *SyncHandler) Register(app fiber.Router, g Guards) {
	app.Post("/sync", g.Admin, h.RunSync)
	app.Post("/tokens/refresh", g.Admin, h.RefreshTokens)
}

// RunSync runs one pass and returns its report.
func (h *SyncHandler) RunSync(c *fiber.Ctx) error {
	report, err := h.sync.RunSync(c.UserContext())
	if err != nil {
		return err
	}
	return SuccessResponse(c, report)
}

// RefreshTokens refreshes every stored token. Per-user failures are
// reported in the response rather than failing the request.
func (h *SyncHandler) RefreshTokens(c *fiber.Ctx) error {
	if err := h.oauth.RefreshAll(c.UserContext()); err != nil {
		return SuccessResponse(c, fiber.Map{"refreshed": false, "errors": err.Error()})
	}
	return SuccessResponse(c, fiber.Map{"refreshed": true})
}
