package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/squadmap/squadmap/internal/config"
)

// bodyLimit caps request bodies; a reader past the limit aborts instead
// of buffering unbounded memory.
func bodyLimit(limit int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

func SetupRouter(cfg *config.Config, h *Handler) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(bodyLimit(cfg.ReadLimit))

	r.GET("/events", h.Events)
	r.GET("/message", h.Message)
	r.POST("/message", h.Message)
	r.GET("/location", h.Location)
	r.POST("/location", h.Location)
	r.GET("/logout", h.Logout)
	r.GET("/rooms", h.Rooms)
	r.GET("/checkRoom", h.CheckRoom)
	r.GET("/deleteRoom", h.DeleteRoom)
	r.GET("/invite/create", h.InviteCreate)
	r.GET("/invite", h.InviteRedeem)
	r.GET("/invite/join", h.InviteRedeem)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
