package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomchat/internal/adapters/signal"
	"github.com/dkeye/roomchat/internal/app/orch"
	"github.com/dkeye/roomchat/internal/config"
	"github.com/dkeye/roomchat/internal/core"
)

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the application pieces the router exposes.
type Deps struct {
	Orch   *orch.Orchestrator
	Signal *signal.SignalWSController
	Files  core.BlobReader
	Health Pinger
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 30, HttpOnly: true})
	r.Use(sessions.Sessions("RoomChatSessions", store))
	r.Use(ClientTokenMiddleware())

	h := &handlers{
		orch:           deps.Orch,
		files:          deps.Files,
		health:         deps.Health,
		maxUploadBytes: cfg.Blob.MaxUploadBytes,
	}

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/healthz", h.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/files/*path", h.serveFile)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")
	api.GET("/profile", h.getProfile)
	api.POST("/profile", h.setProfile)
	api.GET("/rooms/:code/members", h.members)
	api.POST("/files", h.upload)

	api.GET("/ws", func(c *gin.Context) {
		h.restoreName(c)
		log.Debug().Str("module", "adapters.http").Str("sid", c.GetString("client_token")).Msg("ws endpoint hit")
		deps.Signal.HandleSignal(ctx, c)
	})

	return r
}
