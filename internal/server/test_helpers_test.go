package server

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	githubsqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/numberchain/backend/internal/auth"
	"github.com/numberchain/backend/internal/config"
	"github.com/numberchain/backend/internal/posts"
	"github.com/numberchain/backend/internal/users"
)

type testEnv struct {
	db           *gorm.DB
	codec        *auth.Codec
	staleCodec   *auth.Codec
	ledger       *auth.Ledger
	usersService *users.Service
	postsService *posts.Service
	handler      http.Handler
}

// newTestEnv assembles the full HTTP stack over an in-memory database. The
// stale codec shares secrets with the live one but its clock sits an hour in
// the past, so tokens it mints with a short TTL are already expired.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(githubsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := db.AutoMigrate(&users.User{}, &posts.Post{}, &posts.Node{}, &auth.RefreshTokenRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}

	codecConfig := auth.CodecConfig{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
	}
	codec, err := auth.NewCodec(codecConfig)
	if err != nil {
		t.Fatalf("unexpected codec error: %v", err)
	}

	staleConfig := codecConfig
	staleConfig.Clock = func() time.Time { return time.Now().Add(-time.Hour) }
	staleCodec, err := auth.NewCodec(staleConfig)
	if err != nil {
		t.Fatalf("unexpected codec error: %v", err)
	}

	ledger, err := auth.NewLedger(auth.LedgerConfig{Database: db, Codec: codec})
	if err != nil {
		t.Fatalf("unexpected ledger error: %v", err)
	}
	usersService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("unexpected users service error: %v", err)
	}
	postsService, err := posts.NewService(posts.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("unexpected posts service error: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		UsersService: usersService,
		PostsService: postsService,
		Ledger:       ledger,
		Codec:        codec,
		Realtime:     NewRealtimeDispatcher(),
		Logger:       zap.NewNop(),
		Environment:  config.EnvironmentDevelopment,
	})
	if err != nil {
		t.Fatalf("failed to construct http handler: %v", err)
	}

	return &testEnv{
		db:           db,
		codec:        codec,
		staleCodec:   staleCodec,
		ledger:       ledger,
		usersService: usersService,
		postsService: postsService,
		handler:      handler,
	}
}

func (env *testEnv) seedUser(t *testing.T, username string) users.User {
	t.Helper()
	hash, err := auth.HashPassword("a-valid-password")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}
	user := users.User{Name: username, Username: username, PasswordHash: hash}
	if err := env.db.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

func (env *testEnv) accessCookie(t *testing.T, user users.User) *http.Cookie {
	t.Helper()
	token, err := env.codec.SignAccess(user.ID, user.Username)
	if err != nil {
		t.Fatalf("failed to sign access token: %v", err)
	}
	return &http.Cookie{Name: accessTokenCookieName, Value: token}
}

func (env *testEnv) expiredAccessCookie(t *testing.T, user users.User) *http.Cookie {
	t.Helper()
	token, err := env.staleCodec.SignAccess(user.ID, user.Username)
	if err != nil {
		t.Fatalf("failed to sign access token: %v", err)
	}
	return &http.Cookie{Name: accessTokenCookieName, Value: token}
}

func (env *testEnv) refreshTokenCount(t *testing.T) int64 {
	t.Helper()
	var count int64
	if err := env.db.Model(&auth.RefreshTokenRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("failed to count refresh tokens: %v", err)
	}
	return count
}
