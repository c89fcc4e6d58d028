package api

import (
	"net/http"

	"qrgate/config"
	"qrgate/internal/generator"
	"qrgate/internal/repo"
	"qrgate/internal/workflow"
	transport "qrgate/internal/transport/ws"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Machine   *workflow.Machine
	Generator *generator.Generator
	Repo      repo.Repository
	WS        *transport.Server
	Cfg       *config.Config
}

func NewHandler(m *workflow.Machine, g *generator.Generator, r repo.Repository, ws *transport.Server, cfg *config.Config) *Handler {
	return &Handler{Machine: m, Generator: g, Repo: r, WS: ws, Cfg: cfg}
}

// AuthMiddleware checks the bearer token when auth is enabled. The websocket
// handshake cannot set headers from a browser page, so a token query param is
// accepted as fallback.
func (h *Handler) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.Cfg.Auth.Enable {
			c.Next()
			return
		}
		token := c.GetHeader("Authorization")
		if token == "" {
			token = c.Query("token")
		}
		if token != h.Cfg.Auth.Token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (h *Handler) SetupRoutes(r *gin.Engine) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.Static("/public", h.Cfg.App.PublicDir)

	wsGroup := r.Group("/ws")
	wsGroup.Use(h.AuthMiddleware())
	wsGroup.GET("", gin.WrapH(h.WS))

	v1 := r.Group("/api/v1")
	v1.Use(h.AuthMiddleware())
	v1.GET("/state", h.handleState)
	v1.POST("/generate", h.handleGenerate)
	v1.GET("/download", h.handleDownload)
	v1.GET("/verify", h.handleVerify)
	v1.GET("/events", h.handleEvents)
}

func (h *Handler) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, h.Machine.Snapshot())
}

func (h *Handler) handleGenerate(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.Generator.Generate(req.Email)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) handleDownload(c *gin.Context) {
	data, name, err := h.Generator.Download()
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "image/png", data)
}

func (h *Handler) handleVerify(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email query param required"})
		return
	}
	c.JSON(http.StatusOK, h.Generator.Verify(email))
}

func (h *Handler) handleEvents(c *gin.Context) {
	events, err := h.Repo.Recent(50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
