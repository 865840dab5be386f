// Package api exposes the engine over its two external surfaces: plain
// request/response endpoints for matchmaking and session fetch, and the
// websocket channel for in-session events.
package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pallavi191/codecraft-sub001/internal/errors"
	"github.com/pallavi191/codecraft-sub001/internal/protocol"
	"github.com/pallavi191/codecraft-sub001/internal/rating"
)

// Matchmaker is the request/response half of the engine.
type Matchmaker interface {
	FindRandomMatch(ctx context.Context, userID, username string) (protocol.SessionSnapshot, error)
	CreateRoom(ctx context.Context, userID, username string) (protocol.SessionSnapshot, error)
	JoinRoom(ctx context.Context, userID, username, code string) (protocol.SessionSnapshot, error)
	GetSession(ctx context.Context, sessionID string) (protocol.SessionSnapshot, error)
}

type Config struct {
	Engine      Matchmaker
	Rating      *rating.Service
	Auth        Authenticator
	Hub         *Hub
	Leaderboard int // max entries served by the leaderboard endpoint
}

type API struct {
	engine      Matchmaker
	rating      *rating.Service
	auth        Authenticator
	hub         *Hub
	leaderboard int
}

func New(c Config) *API {
	lb := c.Leaderboard
	if lb <= 0 {
		lb = 50
	}

	return &API{
		engine:      c.Engine,
		rating:      c.Rating,
		auth:        c.Auth,
		hub:         c.Hub,
		leaderboard: lb,
	}
}

// Register mounts all routes on e.
func (a *API) Register(e *gin.Engine) {
	v1 := e.Group("/v1", a.authenticate)
	v1.POST("/matches/random", a.findRandomMatch)
	v1.POST("/rooms", a.createRoom)
	v1.POST("/rooms/:code/join", a.joinRoom)
	v1.GET("/sessions/:id", a.getSession)
	v1.GET("/leaderboard", a.getLeaderboard)
	v1.GET("/ws", a.hub.Serve)
}

const identityKey = "api.identity"

// authenticate resolves the caller from the Authorization header, or the
// token query parameter for websocket upgrades (browsers cannot set headers
// on them).
func (a *API) authenticate(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		abortWithError(c, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("missing credentials")))
		return
	}

	id, err := a.auth.Authenticate(token)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.Set(identityKey, id)
	c.Next()
}

func identity(c *gin.Context) Identity {
	return c.MustGet(identityKey).(Identity)
}

func (a *API) findRandomMatch(c *gin.Context) {
	id := identity(c)

	snap, err := a.engine.FindRandomMatch(c.Request.Context(), id.UserID, id.Username)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) createRoom(c *gin.Context) {
	id := identity(c)

	snap, err := a.engine.CreateRoom(c.Request.Context(), id.UserID, id.Username)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) joinRoom(c *gin.Context) {
	id := identity(c)

	snap, err := a.engine.JoinRoom(c.Request.Context(), id.UserID, id.Username, c.Param("code"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) getSession(c *gin.Context) {
	snap, err := a.engine.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (a *API) getLeaderboard(c *gin.Context) {
	entries, err := a.rating.Leaderboard(c.Request.Context(), a.leaderboard)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), e)
}
