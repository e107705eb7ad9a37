package posts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/numberchain/backend/internal/users"
)

var (
	// ErrPostNotFound indicates the referenced post does not exist.
	ErrPostNotFound = errors.New("posts: post not found")
	// ErrParentNodeNotFound indicates the referenced parent node does not exist.
	ErrParentNodeNotFound = errors.New("posts: parent node not found")
	// ErrParentNodeMismatch indicates the parent node belongs to a different
	// post. This is reported, never silently corrected.
	ErrParentNodeMismatch = errors.New("posts: parent node does not belong to this post")

	errMissingDatabase = errors.New("posts: database handle is required")
)

// ServiceConfig describes the dependencies of the discussion tree engine.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service builds and queries arithmetic reply trees.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the discussion tree engine.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// PostSummary is the list/detail view of a post.
type PostSummary struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"user_id"`
	Username      string    `json:"username"`
	InitialNumber float64   `json:"initial_number"`
	NodesCount    int64     `json:"nodes_count"`
	CreatedAt     time.Time `json:"created_at"`
}

// Pagination describes the page window of a list result.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"total_pages"`
}

// ListResult is a page of post summaries.
type ListResult struct {
	Posts      []PostSummary `json:"posts"`
	Pagination Pagination    `json:"pagination"`
}

// NodeView is the flat, username-annotated view of a reply node.
type NodeView struct {
	ID           int64     `json:"id"`
	PostID       int64     `json:"post_id"`
	ParentID     *int64    `json:"parent_id"`
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username"`
	Operation    string    `json:"operation"`
	OperandValue float64   `json:"operand_value"`
	ResultValue  float64   `json:"result_value"`
	Depth        int       `json:"depth"`
	CreatedAt    time.Time `json:"created_at"`
}

// TreeNode is one vertex of the nested discussion tree. The root (the post
// itself) carries a nil Operation and Operand.
type TreeNode struct {
	ID        int64       `json:"id"`
	Operation *string     `json:"operation"`
	Operand   *float64    `json:"operand"`
	Value     float64     `json:"value"`
	UserID    int64       `json:"user_id"`
	Username  string      `json:"username"`
	CreatedAt time.Time   `json:"created_at"`
	Children  []*TreeNode `json:"children"`
}

// Create persists a new post rooted at the given initial number.
func (s *Service) Create(ctx context.Context, userID int64, initialNumber float64) (Post, error) {
	post := Post{UserID: userID, InitialNumber: initialNumber, CreatedAt: s.clock().UTC()}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		return Post{}, fmt.Errorf("posts: create post: %w", err)
	}
	return post, nil
}

// Get loads a single post summary with its reply count.
func (s *Service) Get(ctx context.Context, postID int64) (PostSummary, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return PostSummary{}, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&Node{}).Where("post_id = ?", postID).Count(&count).Error; err != nil {
		return PostSummary{}, fmt.Errorf("posts: count nodes: %w", err)
	}

	username, err := s.usernameFor(ctx, post.UserID)
	if err != nil {
		return PostSummary{}, err
	}

	return PostSummary{
		ID:            post.ID,
		UserID:        post.UserID,
		Username:      username,
		InitialNumber: post.InitialNumber,
		NodesCount:    count,
		CreatedAt:     post.CreatedAt,
	}, nil
}

// List returns a page of post summaries, newest first.
func (s *Service) List(ctx context.Context, page, limit int) (ListResult, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&Post{}).Count(&total).Error; err != nil {
		return ListResult{}, fmt.Errorf("posts: count posts: %w", err)
	}

	var records []Post
	err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return ListResult{}, fmt.Errorf("posts: list posts: %w", err)
	}

	summaries := make([]PostSummary, 0, len(records))
	for _, post := range records {
		var count int64
		if err := s.db.WithContext(ctx).Model(&Node{}).Where("post_id = ?", post.ID).Count(&count).Error; err != nil {
			return ListResult{}, fmt.Errorf("posts: count nodes: %w", err)
		}
		username, err := s.usernameFor(ctx, post.UserID)
		if err != nil {
			return ListResult{}, err
		}
		summaries = append(summaries, PostSummary{
			ID:            post.ID,
			UserID:        post.UserID,
			Username:      username,
			InitialNumber: post.InitialNumber,
			NodesCount:    count,
			CreatedAt:     post.CreatedAt,
		})
	}

	totalPages := total / int64(limit)
	if total%int64(limit) != 0 {
		totalPages++
	}

	return ListResult{
		Posts: summaries,
		Pagination: Pagination{
			Page:       page,
			Limit:      limit,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

// Reply derives a new node from the post root (nil parentID) or an existing
// node. The node is persisted only after the calculation succeeds.
func (s *Service) Reply(ctx context.Context, userID, postID int64, parentID *int64, operation string, operand float64) (NodeView, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return NodeView{}, err
	}

	parentValue := post.InitialNumber
	depth := 0
	if parentID != nil {
		var parent Node
		err := s.db.WithContext(ctx).Where("id = ?", *parentID).Take(&parent).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NodeView{}, ErrParentNodeNotFound
		}
		if err != nil {
			return NodeView{}, fmt.Errorf("posts: load parent node: %w", err)
		}
		if parent.PostID != postID {
			return NodeView{}, ErrParentNodeMismatch
		}
		parentValue = parent.ResultValue
		depth = parent.Depth + 1
	}

	resultValue, err := calculate(parentValue, operation, operand)
	if err != nil {
		return NodeView{}, err
	}

	node := Node{
		PostID:       postID,
		ParentID:     parentID,
		UserID:       userID,
		Operation:    operation,
		OperandValue: operand,
		ResultValue:  resultValue,
		Depth:        depth,
		CreatedAt:    s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&node).Error; err != nil {
		return NodeView{}, fmt.Errorf("posts: create node: %w", err)
	}

	username, err := s.usernameFor(ctx, userID)
	if err != nil {
		return NodeView{}, err
	}

	return NodeView{
		ID:           node.ID,
		PostID:       node.PostID,
		ParentID:     node.ParentID,
		UserID:       node.UserID,
		Username:     username,
		Operation:    node.Operation,
		OperandValue: node.OperandValue,
		ResultValue:  node.ResultValue,
		Depth:        node.Depth,
		CreatedAt:    node.CreatedAt,
	}, nil
}

// Tree builds the nested discussion tree for a post. Construction is two
// passes over the creation-ordered node list: first an id-indexed arena of
// views, then child linking, so sibling order stays ascending by creation
// time without re-sorting.
func (s *Service) Tree(ctx context.Context, postID int64) (*TreeNode, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	nodes, usernames, err := s.loadNodes(ctx, postID, post.UserID)
	if err != nil {
		return nil, err
	}

	root := &TreeNode{
		ID:        post.ID,
		Operation: nil,
		Operand:   nil,
		Value:     post.InitialNumber,
		UserID:    post.UserID,
		Username:  usernames[post.UserID],
		CreatedAt: post.CreatedAt,
		Children:  []*TreeNode{},
	}

	arena := make(map[int64]*TreeNode, len(nodes))
	for _, node := range nodes {
		operation := node.Operation
		operand := node.OperandValue
		arena[node.ID] = &TreeNode{
			ID:        node.ID,
			Operation: &operation,
			Operand:   &operand,
			Value:     node.ResultValue,
			UserID:    node.UserID,
			Username:  usernames[node.UserID],
			CreatedAt: node.CreatedAt,
			Children:  []*TreeNode{},
		}
	}

	for _, node := range nodes {
		view := arena[node.ID]
		if node.ParentID == nil {
			root.Children = append(root.Children, view)
			continue
		}
		parent, ok := arena[*node.ParentID]
		if !ok {
			// Orphaned parent reference; skip the subtree head rather than
			// misplace it under the root.
			s.logger.Warn("discussion node references unknown parent",
				zap.Int64("post_id", postID),
				zap.Int64("node_id", node.ID),
				zap.Int64("parent_id", *node.ParentID))
			continue
		}
		parent.Children = append(parent.Children, view)
	}

	return root, nil
}

// Flat returns every node of a post in ascending creation order, annotated
// with the author's username.
func (s *Service) Flat(ctx context.Context, postID int64) ([]NodeView, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	nodes, usernames, err := s.loadNodes(ctx, postID, post.UserID)
	if err != nil {
		return nil, err
	}

	views := make([]NodeView, 0, len(nodes))
	for _, node := range nodes {
		views = append(views, NodeView{
			ID:           node.ID,
			PostID:       node.PostID,
			ParentID:     node.ParentID,
			UserID:       node.UserID,
			Username:     usernames[node.UserID],
			Operation:    node.Operation,
			OperandValue: node.OperandValue,
			ResultValue:  node.ResultValue,
			Depth:        node.Depth,
			CreatedAt:    node.CreatedAt,
		})
	}
	return views, nil
}

func (s *Service) loadPost(ctx context.Context, postID int64) (Post, error) {
	var post Post
	err := s.db.WithContext(ctx).Where("id = ?", postID).Take(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Post{}, ErrPostNotFound
	}
	if err != nil {
		return Post{}, fmt.Errorf("posts: load post: %w", err)
	}
	return post, nil
}

// loadNodes returns the post's nodes in ascending creation order plus a
// username lookup covering every author and the post owner.
func (s *Service) loadNodes(ctx context.Context, postID, postOwnerID int64) ([]Node, map[int64]string, error) {
	var nodes []Node
	err := s.db.WithContext(ctx).
		Where("post_id = ?", postID).
		Order("created_at ASC, id ASC").
		Find(&nodes).Error
	if err != nil {
		return nil, nil, fmt.Errorf("posts: load nodes: %w", err)
	}

	ids := map[int64]struct{}{postOwnerID: {}}
	for _, node := range nodes {
		ids[node.UserID] = struct{}{}
	}
	userIDs := make([]int64, 0, len(ids))
	for id := range ids {
		userIDs = append(userIDs, id)
	}

	var authors []users.User
	if err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&authors).Error; err != nil {
		return nil, nil, fmt.Errorf("posts: load authors: %w", err)
	}
	usernames := make(map[int64]string, len(authors))
	for _, author := range authors {
		usernames[author.ID] = author.Username
	}

	return nodes, usernames, nil
}

func (s *Service) usernameFor(ctx context.Context, userID int64) (string, error) {
	var author users.User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&author).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("posts: load author: %w", err)
	}
	return author.Username, nil
}
