package server

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/numberchain/backend/internal/posts"
)

const (
	defaultPageSize   = 10
	realtimeHeartbeat = 25 * time.Second
)

type createPostRequest struct {
	InitialNumber *float64 `json:"initialNumber" binding:"required"`
}

type replyRequest struct {
	ParentID     *int64   `json:"parentId"`
	Operation    string   `json:"operation" binding:"required"`
	OperandValue *float64 `json:"operandValue" binding:"required"`
}

type replyPayload struct {
	ID        int64         `json:"id"`
	Operation string        `json:"operation"`
	Operand   float64       `json:"operand"`
	Value     float64       `json:"value"`
	UserID    int64         `json:"user_id"`
	Username  string        `json:"username"`
	Children  []interface{} `json:"children"`
}

func (h *httpHandler) handleListPosts(c *gin.Context) {
	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageSize)

	result, err := h.postsService.List(c.Request.Context(), page, limit)
	if err != nil {
		h.logger.Error("post listing failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondSuccess(c, http.StatusOK, "Posts retrieved successfully", result)
}

func (h *httpHandler) handleGetPost(c *gin.Context) {
	postID, ok := parsePostID(c)
	if !ok {
		return
	}

	summary, err := h.postsService.Get(c.Request.Context(), postID)
	if errors.Is(err, posts.ErrPostNotFound) {
		respondError(c, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		h.logger.Error("post lookup failed", zap.Int64("post_id", postID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondSuccess(c, http.StatusOK, "Post retrieved successfully", summary)
}

func (h *httpHandler) handleCreatePost(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		abortUnauthorized(c)
		return
	}

	var request createPostRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondValidationError(c, err)
		return
	}

	post, err := h.postsService.Create(c.Request.Context(), principal.Sub, *request.InitialNumber)
	if err != nil {
		h.logger.Error("post creation failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Failed to create post")
		return
	}

	respondSuccess(c, http.StatusCreated, "Post created successfully", gin.H{"postId": post.ID})
}

func (h *httpHandler) handleReply(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		abortUnauthorized(c)
		return
	}
	postID, ok := parsePostID(c)
	if !ok {
		return
	}

	var request replyRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		respondValidationError(c, err)
		return
	}

	node, err := h.postsService.Reply(c.Request.Context(), principal.Sub, postID, request.ParentID, request.Operation, *request.OperandValue)
	if err != nil {
		var calcErr *posts.CalculationError
		switch {
		case errors.Is(err, posts.ErrPostNotFound):
			respondError(c, http.StatusNotFound, "Post not found")
		case errors.Is(err, posts.ErrParentNodeNotFound):
			respondError(c, http.StatusNotFound, "Parent node not found")
		case errors.Is(err, posts.ErrParentNodeMismatch):
			respondError(c, http.StatusBadRequest, "Parent node does not belong to this post")
		case errors.As(err, &calcErr):
			respondError(c, http.StatusBadRequest, calcErr.Message)
		default:
			h.logger.Error("reply creation failed", zap.Int64("post_id", postID), zap.Error(err))
			respondError(c, http.StatusInternalServerError, "Failed to create reply")
		}
		return
	}

	h.realtime.Publish(ReplyEvent{PostID: postID, Node: node, Timestamp: time.Now().UTC()})

	respondSuccess(c, http.StatusCreated, "Reply created successfully", replyPayload{
		ID:        node.ID,
		Operation: node.Operation,
		Operand:   node.OperandValue,
		Value:     node.ResultValue,
		UserID:    node.UserID,
		Username:  node.Username,
		Children:  []interface{}{},
	})
}

func (h *httpHandler) handleGetTree(c *gin.Context) {
	postID, ok := parsePostID(c)
	if !ok {
		return
	}

	tree, err := h.postsService.Tree(c.Request.Context(), postID)
	if errors.Is(err, posts.ErrPostNotFound) {
		respondError(c, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		h.logger.Error("tree build failed", zap.Int64("post_id", postID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondSuccess(c, http.StatusOK, "Post tree retrieved successfully", tree)
}

func (h *httpHandler) handleGetFlat(c *gin.Context) {
	postID, ok := parsePostID(c)
	if !ok {
		return
	}

	nodes, err := h.postsService.Flat(c.Request.Context(), postID)
	if errors.Is(err, posts.ErrPostNotFound) {
		respondError(c, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		h.logger.Error("flat listing failed", zap.Int64("post_id", postID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondSuccess(c, http.StatusOK, "Discussion retrieved successfully", nodes)
}

// handleReplyEvents streams reply-created events for one post as server-sent
// events until the client disconnects.
func (h *httpHandler) handleReplyEvents(c *gin.Context) {
	postID, ok := parsePostID(c)
	if !ok {
		return
	}
	if _, err := h.postsService.Get(c.Request.Context(), postID); err != nil {
		if errors.Is(err, posts.ErrPostNotFound) {
			respondError(c, http.StatusNotFound, "Post not found")
			return
		}
		h.logger.Error("post lookup failed", zap.Int64("post_id", postID), zap.Error(err))
		respondError(c, http.StatusInternalServerError, "Internal server error")
		return
	}

	events, cleanup := h.realtime.Subscribe(c.Request.Context(), postID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	heartbeat := time.NewTicker(realtimeHeartbeat)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case event := <-events:
			c.SSEvent(realtimeEventReplyCreated, event.Node)
			return true
		case <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, time.Now().UTC().Format(time.RFC3339))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func parsePostID(c *gin.Context) (int64, bool) {
	postID, err := strconv.ParseInt(c.Param("postId"), 10, 64)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid post ID")
		return 0, false
	}
	return postID, true
}

func parsePositiveInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 1 {
		return fallback
	}
	return parsed
}
