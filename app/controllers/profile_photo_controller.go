package controllers

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/PhotoShrink/app/models"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/compressor"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/profilephoto"
	"github.com/ManuelReschke/PhotoShrink/internal/pkg/upload"
)

// Response headers set by HandleCompress.
const (
	HeaderCompressionQuality  = "X-Compression-Quality"
	HeaderCompressionAttempts = "X-Compression-Attempts"
	HeaderImageWidth          = "X-Image-Width"
	HeaderImageHeight         = "X-Image-Height"
	HeaderOriginalSize        = "X-Original-Size"
)

const photoFormField = "photo"

type ProfilePhotoController struct {
	service *profilephoto.Service
}

func NewProfilePhotoController(service *profilephoto.Service) *ProfilePhotoController {
	return &ProfilePhotoController{service: service}
}

// HandleCompress compresses the uploaded photo and returns the JPEG bytes.
func (pc *ProfilePhotoController) HandleCompress(c *fiber.Ctx) error {
	file, err := c.FormFile(photoFormField)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "photo is required")
	}
	if err := upload.ValidateDeclaredType(file.Header.Get(fiber.HeaderContentType)); err != nil {
		return errorJSON(c, fiber.StatusUnsupportedMediaType, "unsupported_media_type", err.Error())
	}

	src, err := file.Open()
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "could not read photo")
	}
	defer src.Close()

	res, err := pc.service.Compress(c.UserContext(), src)
	if err != nil {
		return serviceError(c, err)
	}

	c.Set(HeaderCompressionQuality, strconv.FormatFloat(res.Quality, 'f', 2, 64))
	c.Set(HeaderCompressionAttempts, strconv.Itoa(len(res.Attempts)))
	c.Set(HeaderImageWidth, strconv.Itoa(res.Width))
	c.Set(HeaderImageHeight, strconv.Itoa(res.Height))
	c.Set(HeaderOriginalSize, strconv.FormatInt(res.SourceSize, 10))
	c.Set(fiber.HeaderContentType, res.ContentType)
	return c.Status(fiber.StatusOK).Send(res.Data)
}

// HandleUpload compresses the photo and stores it as a profile photo.
func (pc *ProfilePhotoController) HandleUpload(c *fiber.Ctx) error {
	var form models.ProfilePhotoUploadForm
	if err := c.BodyParser(&form); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "invalid form")
	}
	if err := form.Validate(); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}

	file, err := c.FormFile(photoFormField)
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "photo is required")
	}
	src, err := file.Open()
	if err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "could not read photo")
	}
	defer src.Close()

	res, err := pc.service.Upload(c.UserContext(), profilephoto.UploadRequest{
		UploadID:    form.UploadID,
		UserID:      form.UserID,
		TempID:      form.TempID,
		FileName:    file.Filename,
		ContentType: file.Header.Get(fiber.HeaderContentType),
		Body:        src,
	})
	if err != nil {
		return serviceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(res)
}

// HandleRemove deletes a stored photo. It answers 204 even when nothing was deleted.
func (pc *ProfilePhotoController) HandleRemove(c *fiber.Ctx) error {
	var req models.RemovePhotoRequest
	if err := c.BodyParser(&req); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "invalid request")
	}
	if err := req.Validate(); err != nil {
		return errorJSON(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	}

	pc.service.Remove(c.UserContext(), req.URL)
	return c.SendStatus(fiber.StatusNoContent)
}

func (pc *ProfilePhotoController) HandleStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return errorJSON(c, fiber.StatusBadRequest, "bad_request", "upload id missing")
	}

	status, err := profilephoto.GetStatus(c.UserContext(), id)
	if errors.Is(err, profilephoto.ErrStatusNotFound) {
		return errorJSON(c, fiber.StatusNotFound, "not_found", "unknown upload")
	}
	if err != nil {
		log.Errorf("[ProfilePhoto] Status lookup for %s failed: %v", id, err)
		return errorJSON(c, fiber.StatusServiceUnavailable, "cache_unavailable", "status is not available")
	}
	return c.JSON(status)
}

func HandleStats(c *fiber.Ctx) error {
	snap, err := counter.Snapshot(c.UserContext())
	if err != nil {
		log.Errorf("[Stats] Counter snapshot failed: %v", err)
		return errorJSON(c, fiber.StatusServiceUnavailable, "cache_unavailable", "statistics are not available")
	}
	return c.JSON(snap)
}

func errorJSON(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": message,
	})
}

// serviceError maps compressor, validation and storage errors to HTTP responses.
func serviceError(c *fiber.Ctx, err error) error {
	var (
		readErr   *compressor.ReadError
		decodeErr *compressor.DecodeError
		encodeErr *compressor.EncodeError
	)

	switch {
	case errors.Is(err, upload.ErrNotAnImage),
		errors.Is(err, upload.ErrUnsupportedType),
		errors.Is(err, upload.ErrScriptable):
		return errorJSON(c, fiber.StatusUnsupportedMediaType, "unsupported_media_type", err.Error())
	case errors.Is(err, profilephoto.ErrInvalidOwnerID):
		return errorJSON(c, fiber.StatusBadRequest, "validation_failed", err.Error())
	case errors.As(err, &readErr):
		if errors.Is(err, compressor.ErrSourceTooLarge) {
			return errorJSON(c, fiber.StatusRequestEntityTooLarge, "too_large", err.Error())
		}
		return errorJSON(c, fiber.StatusBadRequest, "read_failed", err.Error())
	case errors.As(err, &decodeErr):
		if errors.Is(err, compressor.ErrTooManyPixels) {
			return errorJSON(c, fiber.StatusUnprocessableEntity, "too_many_pixels", err.Error())
		}
		return errorJSON(c, fiber.StatusUnprocessableEntity, "decode_failed", "The file could not be read as an image")
	case errors.As(err, &encodeErr):
		log.Errorf("[ProfilePhoto] %v", err)
		return errorJSON(c, fiber.StatusInternalServerError, "encode_failed", "Failed to compress photo")
	case errors.Is(err, profilephoto.ErrStorage):
		return errorJSON(c, fiber.StatusBadGateway, "storage_failed", "Failed to upload photo. Please try again.")
	case errors.Is(err, profilephoto.ErrBusy),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return errorJSON(c, fiber.StatusServiceUnavailable, "busy", "Server is busy, please try again")
	default:
		log.Errorf("[ProfilePhoto] Unexpected error: %v", err)
		return errorJSON(c, fiber.StatusInternalServerError, "internal_error", "Failed to upload photo. Please try again.")
	}
}
