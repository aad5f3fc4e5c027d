package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/lodpnet/lodp/internal/config"
	"github.com/lodpnet/lodp/internal/node"
	"github.com/lodpnet/lodp/internal/registry"
)

// Server is the responder's management API: live sessions, session
// history, the peer directory and the event feed.
type Server struct {
	db        *gorm.DB
	node      *node.Node
	hub       *EventHub
	router    *gin.Engine
	jwtSecret string
	listen    string
	log       *slog.Logger
}

// New creates a Server and bootstraps the admin account.
func New(cfg config.APIConfig, db *gorm.DB, n *node.Node, log *slog.Logger) (*Server, error) {
	s := &Server{
		db:        db,
		node:      n,
		hub:       NewEventHub(log),
		jwtSecret: cfg.JWTSecret,
		listen:    cfg.Listen,
		log:       log.With("component", "api"),
	}

	if err := s.ensureAdminUser(cfg.Admin.Username, cfg.Admin.Password); err != nil {
		return nil, fmt.Errorf("create admin user: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	s.router = router
	s.setupRoutes(router)

	return s, nil
}

// Hub returns the event hub, for wiring into node.Options.Publish.
func (s *Server) Hub() *EventHub {
	return s.hub
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	s.log.Info("management API starting", "listen", s.listen)
	return s.router.Run(s.listen)
}

func (s *Server) setupRoutes(r *gin.Engine) {
	r.POST("/api/v1/auth/login", s.handleLogin)

	api := r.Group("/api/v1")
	api.Use(AuthMiddleware(s.jwtSecret))
	{
		api.GET("/sessions", s.listSessions)
		api.GET("/sessions/history", s.sessionHistory)

		api.GET("/peers", s.listPeers)
		api.POST("/peers", s.createPeer)
		api.DELETE("/peers/:id", s.deletePeer)

		api.GET("/events", s.hub.HandleEvents)
	}
}

// --- Auth handlers ---

func (s *Server) handleLogin(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user registry.User
	if err := s.db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if !CheckPassword(req.Password, user.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, expiresAt, err := GenerateToken(&user, s.jwtSecret)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate token failed"})
		return
	}

	c.JSON(http.StatusOK, LoginResponse{Token: token, ExpiresAt: expiresAt})
}

// --- Session handlers ---

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.Sessions())
}

func (s *Server) sessionHistory(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	var records []registry.SessionRecord
	s.db.Order("id DESC").Limit(limit).Find(&records)
	c.JSON(http.StatusOK, records)
}

// --- Peer directory handlers ---

func (s *Server) listPeers(c *gin.Context) {
	var peers []registry.Peer
	s.db.Find(&peers)
	c.JSON(http.StatusOK, peers)
}

func (s *Server) createPeer(c *gin.Context) {
	var req CreatePeerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	peer := registry.Peer{
		Name:        req.Name,
		Fingerprint: req.Fingerprint,
		PublicKey:   req.PublicKey,
		Endpoint:    req.Endpoint,
	}
	if err := s.db.Create(&peer).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "peer already registered"})
		return
	}
	c.JSON(http.StatusCreated, peer)
}

func (s *Server) deletePeer(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid peer ID"})
		return
	}
	s.db.Delete(&registry.Peer{}, id)
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) ensureAdminUser(username, password string) error {
	var count int64
	s.db.Model(&registry.User{}).Count(&count)
	if count > 0 {
		return nil
	}

	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	user := registry.User{
		Username: username,
		Password: hash,
		Role:     "admin",
	}
	return s.db.Create(&user).Error
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
