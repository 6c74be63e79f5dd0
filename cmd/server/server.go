package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/jasujm/bridgeapp/bridgeprotocol"
	"github.com/jasujm/bridgeapp/internal/auth"
	"github.com/jasujm/bridgeapp/internal/db"
	"github.com/jasujm/bridgeapp/internal/middleware"
	"github.com/jasujm/bridgeapp/internal/redis"
	"github.com/jasujm/bridgeapp/internal/server/events"
)

// Server holds all dependencies and configuration for the bridge frontend
type Server struct {
	config Config
	db     *db.DB
	cache  *redis.Client

	// Services
	authService *auth.Service
	rateLimiter *middleware.RateLimiter

	// Bridge game server connection
	bridge   *bridgeprotocol.Client
	receiver *bridgeprotocol.EventReceiver
	demux    *bridgeprotocol.EventDemultiplexer
	relay    *events.Relay
}

// NewServer creates and initializes a new Server instance
func NewServer(config Config) (*Server, error) {
	// Initialize database
	database, err := db.New(config.DBConfig)
	if err != nil {
		return nil, err
	}

	// Initialize Redis
	cache, err := redis.New(config.RedisConfig)
	if err != nil {
		database.Close()
		return nil, err
	}

	// Initialize services
	authSvc := auth.NewService(config.JWTSecret)
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig)

	// Connect to the bridge game server; CreateClient performs the
	// handshake and fails fast if the server is unreachable or rejects us.
	var curveKeys *bridgeprotocol.CurveKeys
	if config.CurveKeys != (bridgeprotocol.CurveKeys{}) {
		keys := config.CurveKeys
		curveKeys = &keys
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	log.Printf("[BRIDGE] Connecting to game server at %s...", config.BridgeEndpoint)
	bridgeClient, err := bridgeprotocol.CreateClient(ctx, config.BridgeEndpoint, curveKeys)
	if err != nil {
		cache.Close()
		database.Close()
		return nil, err
	}

	eventEndpoint := config.BridgeEventEndpoint
	if eventEndpoint == "" {
		eventEndpoint, err = bridgeprotocol.DeriveEventEndpoint(config.BridgeEndpoint)
		if err != nil {
			bridgeClient.Close()
			cache.Close()
			database.Close()
			return nil, err
		}
	}

	receiver, err := bridgeprotocol.NewEventReceiver(eventEndpoint, curveKeys)
	if err != nil {
		bridgeClient.Close()
		cache.Close()
		database.Close()
		return nil, err
	}

	demux := bridgeprotocol.NewEventDemultiplexer(receiver)

	return &Server{
		config:      config,
		db:          database,
		cache:       cache,
		authService: authSvc,
		rateLimiter: rateLimiter,
		bridge:      bridgeClient,
		receiver:    receiver,
		demux:       demux,
		relay:       events.NewRelay(demux, cache),
	}, nil
}

// Close releases every connection the server holds
func (s *Server) Close() {
	s.rateLimiter.Stop()
	s.receiver.Close()
	s.bridge.Close()
	s.cache.Close()
	s.db.Close()
}

// Run starts the server and blocks until it exits
func (s *Server) Run() error {
	// Set Gin mode based on environment
	if s.config.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := s.setupRoutes()

	log.Printf("Server starting on port %s", s.config.ServerPort)
	return r.Run(":" + s.config.ServerPort)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *gin.Engine {
	r := gin.Default()

	// Configure CORS
	corsConfig := cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return true
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type", "X-Counter"},
		AllowCredentials: true,
		MaxAge:           86400 * time.Second,
	}
	r.Use(cors.New(corsConfig))

	// Public routes
	r.POST("/api/v1/auth/register", s.handleRegister)
	r.POST("/api/v1/auth/login", s.handleLogin)

	// Protected routes
	authorized := r.Group("/")
	authorized.Use(s.authMiddleware(), s.rateLimiter.Middleware())
	{
		authorized.GET("/api/v1/user", s.handleGetCurrentUser)

		authorized.GET("/api/v1/games", s.handleListGames)
		authorized.POST("/api/v1/games", s.handleCreateGame)
		authorized.GET("/api/v1/games/:id", s.handleGetGame)
		authorized.POST("/api/v1/games/:id/join", s.handleJoinGame)
		authorized.POST("/api/v1/games/:id/leave", s.handleLeaveGame)
		authorized.GET("/api/v1/games/:id/deal", s.handleGetGameDeal)
		authorized.GET("/api/v1/games/:id/self", s.handleGetSelf)
		authorized.GET("/api/v1/games/:id/results", s.handleGetResults)
		authorized.GET("/api/v1/games/:id/players", s.handleGetPlayers)
		authorized.POST("/api/v1/games/:id/calls", s.handleCall)
		authorized.POST("/api/v1/games/:id/plays", s.handlePlay)

		authorized.GET("/api/v1/deals/:id", s.handleGetDeal)
	}

	// WebSocket endpoint (handles auth internally)
	r.GET("/ws/games/:id", s.handleGameEvents)

	return r
}
