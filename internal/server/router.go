// Package server assembles the HTTP router.
package server

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/conference-central/backend/internal/announcements"
	"github.com/conference-central/backend/internal/auth"
	"github.com/conference-central/backend/internal/conferences"
	"github.com/conference-central/backend/internal/middleware"
	"github.com/conference-central/backend/internal/profiles"
	"github.com/conference-central/backend/internal/registration"
	"github.com/conference-central/backend/internal/sessions"
	"github.com/conference-central/backend/internal/store"
	"github.com/conference-central/backend/pkg/response"
)

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Store          store.Store
	JWT            *auth.JWTService
	Announcements  announcements.Cache
	Notifier       conferences.Notifier // optional
	AllowedOrigins string
	Logger         *zap.Logger
}

// NewRouter wires every route onto a new gin engine.
func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	registrationSvc := registration.NewService(d.Store, logger)
	conferenceHandler := conferences.NewHandler(d.Store, registrationSvc, d.Notifier, logger)
	sessionHandler := sessions.NewHandler(d.Store, logger)
	profileHandler := profiles.NewHandler(d.Store, logger)
	announcementHandler := announcements.NewHandler(d.Announcements, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(d.AllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := d.Store.Ping(ctx); err != nil {
			response.ServiceUnavailable(c, "store unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Public
	router.GET("/conference/:key", conferenceHandler.Get)
	router.POST("/queryConferences", conferenceHandler.Query)
	router.GET("/conference/:key/sessions", sessionHandler.List)
	router.GET("/announcement", announcementHandler.Get)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(d.JWT))
	{
		api.GET("/profile", profileHandler.Get)
		api.POST("/profile", profileHandler.Save)

		api.POST("/conference", conferenceHandler.Create)
		api.GET("/getConferencesCreated", conferenceHandler.ListCreated)
		api.GET("/getConferencesToAttend", conferenceHandler.ListToAttend)
		api.POST("/conference/:key/registration", conferenceHandler.Register)
		api.DELETE("/conference/:key/registration", conferenceHandler.Unregister)

		api.POST("/conference/:key/sessions", sessionHandler.Create)

		api.GET("/wishlist", profileHandler.Wishlist)
		api.POST("/wishlist/:sessionKey", profileHandler.AddToWishlist)
		api.DELETE("/wishlist/:sessionKey", profileHandler.RemoveFromWishlist)
	}
	return router
}
