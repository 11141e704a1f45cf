package api

import (
	"github.com/cvlogg/musicgrabber2/internal/api/handlers"
	"github.com/cvlogg/musicgrabber2/internal/api/middleware"
	"github.com/cvlogg/musicgrabber2/internal/config"
	"github.com/gin-gonic/gin"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Jobs      *handlers.JobHandler
	Search    *handlers.SearchHandler
	Playlists *handlers.PlaylistHandler
	Imports   *handlers.ImportHandler
	Blacklist *handlers.BlacklistHandler
}

func SetupRouter(cfg *config.Config, h Handlers) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.Default()

	r.Use(middleware.CORS())
	r.Use(middleware.RequestLogger())

	// Health endpoints stay open for probes
	r.GET("/health", h.Jobs.Health)
	r.GET("/healthz", h.Jobs.Health)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Auth(&cfg.Security))
	{
		v1.POST("/search", h.Search.Search)

		v1.POST("/downloads", h.Jobs.Create)
		v1.GET("/downloads", h.Jobs.List)
		v1.GET("/downloads/:id", h.Jobs.Get)
		v1.POST("/downloads/:id/retry", h.Jobs.Retry)
		v1.DELETE("/downloads/:id", h.Jobs.Delete)

		v1.POST("/playlists/watch", h.Playlists.Create)
		v1.GET("/playlists/watch", h.Playlists.List)
		v1.GET("/playlists/watch/:id", h.Playlists.Get)
		v1.PATCH("/playlists/watch/:id", h.Playlists.Update)
		v1.DELETE("/playlists/watch/:id", h.Playlists.Delete)
		v1.POST("/playlists/watch/:id/refresh", h.Playlists.Refresh)

		v1.POST("/imports", h.Imports.Create)
		v1.GET("/imports", h.Imports.List)
		v1.GET("/imports/:id", h.Imports.Get)

		v1.POST("/blacklist", h.Blacklist.Create)
		v1.GET("/blacklist", h.Blacklist.List)
		v1.DELETE("/blacklist/:id", h.Blacklist.Delete)
	}

	return r
}
