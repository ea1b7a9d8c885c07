package server

import "github.com/gofiber/fiber/v2"

// GetFeatureFlags godoc
// @Summary Feature flags
// @Description Configured flag values and how they evaluate for the caller.
// @Tags flags
// @Produce json
// @Success 200 {object} models.Response
// @Router /feature-flags [get]
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return respond(c, "", fiber.Map{
		"raw":       s.featureFlags.Raw(),
		"evaluated": s.featureFlags.Snapshot(currentUserID(c)),
	})
}
