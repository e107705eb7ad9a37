package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/numberchain/backend/internal/auth"
)

var (
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = errors.New("users: username already registered")
	// ErrInvalidCredentials covers both unknown username and wrong password,
	// deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrUserNotFound indicates no user exists for the id.
	ErrUserNotFound = errors.New("users: user not found")

	errMissingDatabase = errors.New("users: database handle is required")
)

// ServiceConfig describes the dependencies of the credential store.
type ServiceConfig struct {
	Database *gorm.DB
}

// Service manages user registration and credential verification.
type Service struct {
	db *gorm.DB
}

// NewService constructs the credential store service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	return &Service{db: cfg.Database}, nil
}

// Register creates a new user with a hashed password. The username must be
// unused.
func (s *Service) Register(ctx context.Context, name, username, password string) (User, error) {
	username = strings.TrimSpace(username)

	var existing User
	err := s.db.WithContext(ctx).Where("username = ?", username).Take(&existing).Error
	if err == nil {
		return User{}, ErrUsernameTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, fmt.Errorf("users: lookup username: %w", err)
	}

	hashed, err := auth.HashPassword(password)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}

	user := User{Name: name, Username: username, PasswordHash: hashed}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return User{}, fmt.Errorf("users: create user: %w", err)
	}
	return user, nil
}

// Authenticate verifies a username/password pair and returns the matching
// user. Unknown usernames and wrong passwords fail identically.
func (s *Service) Authenticate(ctx context.Context, username, password string) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("users: lookup username: %w", err)
	}
	if !auth.VerifyPassword(password, user.PasswordHash) {
		return User{}, ErrInvalidCredentials
	}
	return user, nil
}

// GetByID loads a user by numeric id.
func (s *Service) GetByID(ctx context.Context, id int64) (User, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: load user: %w", err)
	}
	return user, nil
}
