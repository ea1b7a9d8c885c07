package server

import (
	"github.com/gofiber/fiber/v2"
)

// GetNotifications handles GET /api/notifications
// @Summary List notifications
// @Description Newest first, with the caller's unread count
// @Tags notifications
// @Security BearerAuth
// @Param cursor query string false "Opaque cursor from the previous page"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} models.Response
// @Router /notifications [get]
func (s *Server) GetNotifications(c *fiber.Ctx) error {
	userID := currentUserID(c)
	page := parsePagination(c)

	list, err := s.notificationService.List(c.UserContext(), userID, page.Cursor, page.Limit)
	if err != nil {
		return respondError(c, err)
	}
	unread, err := s.notificationService.UnreadCount(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "", fiber.Map{
		"items":        list.Items,
		"next_cursor":  list.NextCursor,
		"has_more":     list.HasMore,
		"unread_count": unread,
	})
}

// MarkNotificationRead handles PUT /api/notifications/:id/read
func (s *Server) MarkNotificationRead(c *fiber.Ctx) error {
	id, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.notificationService.MarkRead(c.UserContext(), id, currentUserID(c)); err != nil {
		return respondError(c, err)
	}
	return respond(c, "Notification marked as read", fiber.Map{"id": id})
}

// MarkAllNotificationsRead handles PUT /api/notifications/read-all
func (s *Server) MarkAllNotificationsRead(c *fiber.Ctx) error {
	n, err := s.notificationService.MarkAllRead(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, "All notifications marked as read", fiber.Map{"updated": n})
}
