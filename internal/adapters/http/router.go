package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/huddle/internal/adapters/signal"
	"github.com/dkeye/huddle/internal/app/orch"
	"github.com/dkeye/huddle/internal/config"
	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/dkeye/huddle/internal/store"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const requestIDHeader = "X-Request-ID"

// RequestIDMiddleware tags every request with an id, reusing the caller's when sent.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, auth core.Authenticator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	cookies := cookie.NewStore([]byte(cfg.Secret))
	cookies.Options(sessions.Options{Path: "/", MaxAge: int(cfg.Auth.TokenTTL.Seconds()), HttpOnly: true, SameSite: http.SameSiteLaxMode})
	r.Use(sessions.Sessions("HuddleSessions", cookies))
	r.Use(RequestIDMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctrl := signal.NewSignalWSController(o, auth, signal.Options{
		SendBuffer:   cfg.Signal.SendBuffer,
		ReadLimit:    cfg.ReadLimit,
		PingPeriod:   cfg.PingPeriod,
		RateLimit:    cfg.Signal.RateLimit,
		RateInterval: cfg.Signal.RateInterval,
	})
	h := &handlers{orch: o, auth: auth}

	api := r.Group("/api")
	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("request_id", c.GetString("request_id")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})
	api.POST("/session", h.createSession)
	api.GET("/session", h.getSession)
	api.DELETE("/session", h.deleteSession)
	api.GET("/health", h.health)
	api.GET("/presence", h.presence)
	api.GET("/presence/:id", h.userPresence)
	api.GET("/rooms", h.rooms)

	return r
}

type handlers struct {
	orch *orch.Orchestrator
	auth core.Authenticator
}

func abortError(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": core.ErrorCode(err), "message": err.Error()})
}

func (h *handlers) createSession(c *gin.Context) {
	var body struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "BAD_PAYLOAD", "message": err.Error()})
		return
	}
	uid, err := h.auth.VerifyToken(c.Request.Context(), body.Token)
	if err != nil {
		abortError(c, http.StatusUnauthorized, core.ErrAuthentication)
		return
	}
	sess := sessions.Default(c)
	sess.Set(signal.SessionUserKey, string(uid))
	if err := sess.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": uid})
}

func (h *handlers) getSession(c *gin.Context) {
	uid, ok := sessions.Default(c).Get(signal.SessionUserKey).(string)
	if !ok || uid == "" {
		abortError(c, http.StatusUnauthorized, core.ErrAuthentication)
		return
	}
	c.JSON(http.StatusOK, gin.H{"userId": uid})
}

func (h *handlers) deleteSession(c *gin.Context) {
	sess := sessions.Default(c)
	sess.Clear()
	sess.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := sess.Save(); err != nil {
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) health(c *gin.Context) {
	if err := h.orch.Store.Ping(c.Request.Context()); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("store ping failed")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "store": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"online":        len(h.orch.Registry.Online()),
		"conversations": len(h.orch.Rooms.List()),
		"groupCalls":    h.orch.Groups.Count(),
	})
}

func (h *handlers) presence(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"online": h.orch.Registry.Online()})
}

func (h *handlers) userPresence(c *gin.Context) {
	uid, err := domain.ParseUserID(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "BAD_PAYLOAD", "message": err.Error()})
		return
	}
	u, err := h.orch.Store.GetUser(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "USER_NOT_FOUND"})
			return
		}
		abortError(c, http.StatusInternalServerError, err)
		return
	}
	// The registry is authoritative for this node.
	u.Online = h.orch.Registry.IsOnline(uid)
	c.JSON(http.StatusOK, u)
}

func (h *handlers) rooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.orch.Relay.List()})
}
