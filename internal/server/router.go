package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/numberchain/backend/internal/auth"
	"github.com/numberchain/backend/internal/posts"
	"github.com/numberchain/backend/internal/users"
)

var (
	errMissingUsersService = errors.New("users service dependency required")
	errMissingPostsService = errors.New("posts service dependency required")
	errMissingLedger       = errors.New("refresh token ledger dependency required")
	errMissingCodec        = errors.New("token codec dependency required")
)

// Dependencies wires the HTTP layer to the services it orchestrates.
type Dependencies struct {
	UsersService *users.Service
	PostsService *posts.Service
	Ledger       *auth.Ledger
	Codec        *auth.Codec
	Realtime     *RealtimeDispatcher
	Logger       *zap.Logger
	Environment  string
}

// NewHTTPHandler assembles the gin router with all routes and middleware.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.PostsService == nil {
		return nil, errMissingPostsService
	}
	if deps.Ledger == nil {
		return nil, errMissingLedger
	}
	if deps.Codec == nil {
		return nil, errMissingCodec
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"x-access-token", "x-refresh-token"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		usersService: deps.UsersService,
		postsService: deps.PostsService,
		ledger:       deps.Ledger,
		codec:        deps.Codec,
		realtime:     realtime,
		cookies:      newCookiePolicy(deps.Environment),
		logger:       logger,
	}

	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/logout", handler.handleLogout)

	router.GET("/posts", handler.handleListPosts)
	router.GET("/posts/:postId", handler.handleGetPost)
	router.GET("/posts/:postId/tree", handler.handleGetTree)
	router.GET("/posts/:postId/flat", handler.handleGetFlat)
	router.GET("/posts/:postId/events", handler.handleReplyEvents)

	protected := router.Group("/")
	protected.Use(handler.authenticateRequest)
	protected.GET("/auth/me", handler.handleMe)
	protected.POST("/posts", handler.handleCreatePost)
	protected.POST("/posts/:postId/reply", handler.handleReply)

	return router, nil
}

type httpHandler struct {
	usersService *users.Service
	postsService *posts.Service
	ledger       *auth.Ledger
	codec        *auth.Codec
	realtime     *RealtimeDispatcher
	cookies      cookiePolicy
	logger       *zap.Logger
}

// requestLogger emits one structured log line per completed request.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
