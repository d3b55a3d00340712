package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/PhotoShrink/app/controllers"
)

// Pong is the body of GET /ping.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer serves the v1 API by delegating to the controllers.
type APIServer struct {
	photos *controllers.ProfilePhotoController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(photos *controllers.ProfilePhotoController) *APIServer {
	return &APIServer{photos: photos}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

func (s *APIServer) PostCompress(c *fiber.Ctx) error {
	return s.photos.HandleCompress(c)
}

func (s *APIServer) PostProfilePhoto(c *fiber.Ctx) error {
	return s.photos.HandleUpload(c)
}

func (s *APIServer) DeleteProfilePhoto(c *fiber.Ctx) error {
	return s.photos.HandleRemove(c)
}

// GetProfilePhotoStatus returns the status of an upload started with an upload_id.
func (s *APIServer) GetProfilePhotoStatus(c *fiber.Ctx) error {
	return s.photos.HandleStatus(c)
}

func (s *APIServer) GetStats(c *fiber.Ctx) error {
	return controllers.HandleStats(c)
}

// RegisterHandlers mounts the v1 routes on router.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)
	router.Post("/compress", s.PostCompress)
	router.Post("/profile-photos", s.PostProfilePhoto)
	router.Delete("/profile-photos", s.DeleteProfilePhoto)
	router.Get("/profile-photos/status/:id", s.GetProfilePhotoStatus)
	router.Get("/stats", s.GetStats)
}
