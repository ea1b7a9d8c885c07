package server

import (
	"io"

	"chirp/internal/models"
	"chirp/internal/service"

	"github.com/gofiber/fiber/v2"
)

// UploadMedia handles POST /api/media
// @Summary Upload an image or video
// @Description Stores the file and returns its public URL. Images may also get a webp thumbnail.
// @Tags media
// @Security BearerAuth
// @Accept multipart/form-data
// @Param file formData file true "Media file"
// @Success 201 {object} models.Response{data=service.MediaUpload}
// @Failure 400 {object} models.ErrorResponse
// @Failure 413 {object} models.ErrorResponse
// @Router /media [post]
func (s *Server) UploadMedia(c *fiber.Ctx) error {
	if s.mediaService == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			fiber.NewError(fiber.StatusServiceUnavailable, "Media storage is not configured"))
	}
	file, err := c.FormFile("file")
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("No file uploaded"))
	}
	if max := s.mediaService.MaxUploadBytes(); max > 0 && file.Size > max {
		return models.RespondWithError(c, fiber.StatusRequestEntityTooLarge,
			fiber.NewError(fiber.StatusRequestEntityTooLarge, "File too large"))
	}

	src, err := file.Open()
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}
	defer func() { _ = src.Close() }()

	content, err := io.ReadAll(src)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Unable to read uploaded file"))
	}

	uploaded, err := s.mediaService.Upload(c.UserContext(), service.UploadMediaInput{
		UserID:      currentUserID(c),
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Content:     content,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respondCreated(c, "Media uploaded successfully", uploaded)
}
