package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"mime"
	"net/http"
	"path"
	"strings"

	"chirp/internal/config"
	"chirp/internal/models"
	"chirp/internal/observability"
	"chirp/internal/storage"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	ThumbnailMaxSize = 480
	WebPQuality      = 70

	MediaKindImage = "image"
	MediaKindVideo = "video"
)

type UploadMediaInput struct {
	UserID      string
	Filename    string
	ContentType string
	Content     []byte
}

// MediaUpload describes stored media. Posts keep only the URLs.
type MediaUpload struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	Kind         string `json:"kind"`
	ContentType  string `json:"content_type"`
	SizeBytes    int64  `json:"size_bytes"`
	Width        int    `json:"width,omitempty"`
	Height       int    `json:"height,omitempty"`
}

type MediaService struct {
	store              storage.BlobStore
	maxUploadSizeBytes int64
	// thumbnails reports whether uploads by a user get a WebP thumbnail.
	thumbnails func(userID string) bool
}

func NewMediaService(store storage.BlobStore, cfg *config.Config, thumbnails func(userID string) bool) *MediaService {
	maxMB := 10
	if cfg != nil {
		maxMB = cfg.MediaMaxUploadSizeMB()
	}
	if thumbnails == nil {
		thumbnails = func(string) bool { return true }
	}
	return &MediaService{
		store:              store,
		maxUploadSizeBytes: int64(maxMB) * 1024 * 1024,
		thumbnails:         thumbnails,
	}
}

// MaxUploadBytes is the largest accepted upload.
func (s *MediaService) MaxUploadBytes() int64 {
	return s.maxUploadSizeBytes
}

func (s *MediaService) Upload(ctx context.Context, in UploadMediaInput) (*MediaUpload, error) {
	if in.UserID == "" {
		return nil, models.NewValidationError("Invalid user")
	}
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	detected := normalizeContentType(http.DetectContentType(in.Content))
	switch {
	case isAllowedImageMIME(detected):
		return s.uploadImage(ctx, in)
	case isAllowedVideoMIME(detected):
		return s.uploadVideo(ctx, in, detected)
	default:
		return nil, models.NewValidationError("Unsupported media type")
	}
}

func (s *MediaService) uploadImage(ctx context.Context, in UploadMediaInput) (*MediaUpload, error) {
	decoded, format, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewValidationError("Invalid image file")
	}
	sourceMime := decodedFormatToMime(format)
	if sourceMime == "" {
		return nil, models.NewValidationError("Unsupported image format")
	}
	if provided := normalizeContentType(in.ContentType); strings.HasPrefix(provided, "image/") && !isMatchingContentType(provided, sourceMime) {
		return nil, models.NewValidationError("Image content type mismatch")
	}

	base := objectBase(in.UserID)
	originalKey := base + extensionFor(sourceMime)
	url, err := s.store.Put(ctx, originalKey, sourceMime, bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewInternalError(err)
	}

	b := decoded.Bounds()
	out := &MediaUpload{
		URL:         url,
		Kind:        MediaKindImage,
		ContentType: sourceMime,
		SizeBytes:   int64(len(in.Content)),
		Width:       b.Dx(),
		Height:      b.Dy(),
	}

	if s.thumbnails(in.UserID) {
		thumb, err := encodeWebP(resizeToFit(decoded, ThumbnailMaxSize, ThumbnailMaxSize), WebPQuality)
		if err != nil {
			_ = s.store.Delete(ctx, originalKey)
			return nil, models.NewInternalError(err)
		}
		thumbURL, err := s.store.Put(ctx, base+"_thumb.webp", "image/webp", bytes.NewReader(thumb))
		if err != nil {
			_ = s.store.Delete(ctx, originalKey)
			return nil, models.NewInternalError(err)
		}
		out.ThumbnailURL = thumbURL
	}

	observability.MediaUploads.WithLabelValues(MediaKindImage).Inc()
	return out, nil
}

func (s *MediaService) uploadVideo(ctx context.Context, in UploadMediaInput, detected string) (*MediaUpload, error) {
	url, err := s.store.Put(ctx, objectBase(in.UserID)+extensionFor(detected), detected, bytes.NewReader(in.Content))
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	observability.MediaUploads.WithLabelValues(MediaKindVideo).Inc()
	return &MediaUpload{
		URL:         url,
		Kind:        MediaKindVideo,
		ContentType: detected,
		SizeBytes:   int64(len(in.Content)),
	}, nil
}

// objectBase names a fresh object under the uploader's prefix.
func objectBase(userID string) string {
	return path.Join(userID, uuid.NewString())
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scaleW := float64(maxWidth) / float64(w)
	scaleH := float64(maxHeight) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}
	newW := int(float64(w) * scale)
	newH := int(float64(h) * scale)
	if newW < 1 {
		newW = 1
	}
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedImageMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}

func isAllowedVideoMIME(contentType string) bool {
	switch normalizeContentType(contentType) {
	case "video/mp4", "video/webm":
		return true
	default:
		return false
	}
}

func normalizeContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(contentType))
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

func isMatchingContentType(provided, detected string) bool {
	p := normalizeContentType(provided)
	d := normalizeContentType(detected)
	if p == d {
		return true
	}
	return (p == "image/jpg" && d == "image/jpeg") || (p == "image/jpeg" && d == "image/jpg")
}

func decodedFormatToMime(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	default:
		return ""
	}
}
