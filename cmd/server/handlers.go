package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jasujm/bridgeapp/bridgeprotocol"
	"github.com/jasujm/bridgeapp/internal/models"
	"github.com/jasujm/bridgeapp/internal/validation"
)

const commandTimeout = 10 * time.Second

// contextWithCommandTimeout bounds a bridge server command; the protocol
// layer leaves timeout policy to its caller.
func contextWithCommandTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, commandTimeout)
}

// setCounterHeader forwards the server-side state counter of a get-family
// reply so clients can reconcile snapshots against the event stream.
func setCounterHeader(c *gin.Context, counter uint64) {
	c.Header("X-Counter", strconv.FormatUint(counter, 10))
}

// statusFromError maps a bridge protocol error to the HTTP status the
// façade exposes: not found is 404, seat reserved and rule violation are
// conflicts, any other command failure is a bad request, and a protocol
// violation means the game server itself misbehaved.
func statusFromError(err error) int {
	switch {
	case errors.Is(err, bridgeprotocol.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, bridgeprotocol.ErrSeatReserved),
		errors.Is(err, bridgeprotocol.ErrRuleViolation):
		return http.StatusConflict
	case errors.Is(err, bridgeprotocol.ErrCommandFailure),
		errors.Is(err, bridgeprotocol.ErrAlreadyExists),
		errors.Is(err, bridgeprotocol.ErrNotAuthorized),
		errors.Is(err, bridgeprotocol.ErrUnknownClient):
		return http.StatusBadRequest
	case errors.Is(err, bridgeprotocol.ErrInvalidMessage):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

func respondBridgeError(c *gin.Context, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		log.Printf("[BRIDGE] command failed: %v", err)
		c.JSON(status, gin.H{"error": "Game server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// authMiddleware validates the bearer token and loads the authenticated
// user for downstream handlers.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		userID, err := s.authService.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		var user models.User
		if err := s.db.First(&user, "id = ?", userID).Error; err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set("user_id", userID)
		c.Set("user", &user)
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	user, _ := c.MustGet("user").(*models.User)
	return user
}

// playerID returns the authenticated user's bridge player UUID.
func playerID(c *gin.Context) *uuid.UUID {
	user := currentUser(c)
	id, err := uuid.Parse(user.PlayerID)
	if err != nil {
		return nil
	}
	return &id
}

func gameParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid game id"})
		return uuid.UUID{}, false
	}
	return id, true
}

func (s *Server) handleRegister(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := validation.ValidateUsername(req.Username); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidateEmail(req.Email); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := validation.ValidatePassword(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := s.authService.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}

	user := models.User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		PlayerID:     uuid.NewString(),
	}
	if err := s.db.Create(&user).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Username or email already taken"})
		return
	}

	token, err := s.authService.GenerateToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}

	c.JSON(http.StatusCreated, models.AuthResponse{Token: token, User: user})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var user models.User
	if err := s.db.First(&user, "username = ?", req.Username).Error; err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if !s.authService.CheckPassword(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := s.authService.GenerateToken(user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}

	c.JSON(http.StatusOK, models.AuthResponse{Token: token, User: user})
}

func (s *Server) handleGetCurrentUser(c *gin.Context) {
	c.JSON(http.StatusOK, currentUser(c))
}

func (s *Server) handleListGames(c *gin.Context) {
	var games []models.GameRecord
	if err := s.db.Order("created_at DESC").Limit(100).Find(&games).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}
	c.JSON(http.StatusOK, games)
}

func (s *Server) handleCreateGame(c *gin.Context) {
	var req models.CreateGameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx, cancel := contextWithCommandTimeout(c.Request.Context())
	defer cancel()

	gameID, err := s.bridge.Game(ctx, nil, nil)
	if err != nil {
		respondBridgeError(c, err)
		return
	}

	record := models.GameRecord{
		ID:        gameID.String(),
		Name:      req.Name,
		CreatedBy: currentUser(c).ID,
	}
	if err := s.db.Create(&record).Error; err != nil {
		log.Printf("[DB] recording game %s: %v", gameID, err)
	}

	c.JSON(http.StatusCreated, record)
}

func (s *Server) handleJoinGame(c *gin.Context) {
	gameID, ok := gameParam(c)
	if !ok {
		return
	}

	var req models.JoinGameRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	var position *bridgeprotocol.Position
	if req.Position != nil {
		p := bridgeprotocol.Position(*req.Position)
		switch p {
		case bridgeprotocol.North, bridgeprotocol.East, bridgeprotocol.South, bridgeprotocol.West:
			position = &p
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid position"})
			return
		}
	}

	ctx, cancel := contextWithCommandTimeout(c.Request.Context())
	defer cancel()

	result, err := s.bridge.Join(ctx, &gameID, playerID(c), position)
	if err != nil {
		respondBridgeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"game":     result.Game,
		"position": result.Position,
	})
}

func (s *Server) handleLeaveGame(c *gin.Context) {
	gameID, ok := gameParam(c)
	if !ok {
		return
	}

	player := playerID(c)
	if player == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
		return
	}

	ctx, cancel := contextWithCommandTimeout(c.Request.Context())
	defer cancel()

	position, err := s.bridge.Leave(ctx, gameID, *player)
	if err != nil {
		respondBridgeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"position": position})
}

func (s *Server) handleGetGame(c *gin.Context) {
	gameID, ok := gameParam(c)
	if !ok {
		return
	}

	ctx, cancel := contextWithCommandTimeout(c.Request.Context())
	defer cancel()

	game, counter, err := s.bridge.GetGame(ctx, gameID, playerID(c))
	if err != nil {
		respondBridgeError(c, err)
		return
	}

	setCounterHeader(c, counter)
	c.JSON(http.StatusOK, game)
}

func (s *Server) handleGetGameDeal(c *gin.Context) {
	gameID, ok := gameParam(c)
	if !ok {
		return
	}

	ctx, cancel := contextWithCommandTimeout(c.Request.Context())
	defer cancel()

	deal, counter, err := s.bridge.GetGameDeal(ctx, gameID, playerID(c))
	if err != nil {
		respondBridgeError(c, err)
		return
	}

	setCounterHeader(c, counter)
	c.JSON(http.StatusOK, deal)
}

func (s *Server) handleGetDeal(c *gin.Context) {
	dealID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid deal id"})
		return
	}

	ctx, cancel := contextWithCommandTimeout(c.Request.Context())
	defer cancel()

	deal, err := s.bridge.GetDeal(ctx, dealID)
	if err != nil {
		respondBridgeError(c, err)
		return
	}

	c.JSON(http.StatusOK, deal)
}

func (s *Server) handleGetSelf(c *gin.Context) {
	gameID, ok := gameParam(c)
	if !ok {
		return
	}

	ctx, cancel := contextWithCommandTimeout(c.Request.Context())
	defer cancel()

	self, counter, err := s.bridge.GetSelf(ctx, gameID, playerID(c))
	if err != nil {
		respondBridgeError(c, err)
		return
	}

	setCounterHeader(c, counter)
	c.JSON(http.StatusOK, self)
}

func (s *Server) handleGetResults(c *gin.Context) {
	gameID, ok := gameParam(c)
	if !ok {
		return
	}

	ctx, cancel := contextWithCommandTimeout(c.Request.Context())
	defer cancel()

	results, counter, err := s.bridge.GetResults(ctx, gameID)
	if err != nil {
		respondBridgeError(c, err)
		return
	}

	setCounterHeader(c, counter)
	c.JSON(http.StatusOK, results)
}

func (s *Server) handleGetPlayers(c *gin.Context) {
	gameID, ok := gameParam(c)
	if !ok {
		return
	}

	ctx, cancel := contextWithCommandTimeout(c.Request.Context())
	defer cancel()

	players, counter, err := s.bridge.GetPlayers(ctx, gameID)
	if err != nil {
		respondBridgeError(c, err)
		return
	}

	setCounterHeader(c, counter)
	c.JSON(http.StatusOK, players)
}

func (s *Server) handleCall(c *gin.Context) {
	gameID, ok := gameParam(c)
	if !ok {
		return
	}

	var call bridgeprotocol.Call
	if err := c.ShouldBindJSON(&call); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if err := call.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := contextWithCommandTimeout(c.Request.Context())
	defer cancel()

	if err := s.bridge.Call(ctx, gameID, playerID(c), call); err != nil {
		respondBridgeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) handlePlay(c *gin.Context) {
	gameID, ok := gameParam(c)
	if !ok {
		return
	}

	var card bridgeprotocol.CardType
	if err := c.ShouldBindJSON(&card); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx, cancel := contextWithCommandTimeout(c.Request.Context())
	defer cancel()

	if err := s.bridge.Play(ctx, gameID, playerID(c), card); err != nil {
		respondBridgeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
