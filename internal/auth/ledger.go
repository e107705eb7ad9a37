package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrTokenNotFound indicates no ledger row exists for the jti.
	ErrTokenNotFound = errors.New("ledger: refresh token not found")
	// ErrTokenRevoked indicates the row exists but was revoked.
	ErrTokenRevoked = errors.New("ledger: refresh token revoked")
	// ErrTokenExpired indicates the row exists but aged past its expiry.
	ErrTokenExpired = errors.New("ledger: refresh token expired")

	// ErrInvalidRefreshToken rejects rotation from an absent or revoked token.
	ErrInvalidRefreshToken = errors.New("ledger: invalid refresh token")
	// ErrExpiredRefreshToken rejects rotation from an expired token.
	ErrExpiredRefreshToken = errors.New("ledger: expired refresh token")

	errMissingLedgerDatabase = errors.New("ledger: database handle is required")
	errMissingLedgerCodec    = errors.New("ledger: token codec is required")
)

// IssuedToken is the result of minting a fresh refresh token.
type IssuedToken struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// RotatedPair is the result of a successful rotation.
type RotatedPair struct {
	AccessToken  string
	RefreshToken string
	RefreshJTI   string
}

// LedgerConfig describes the dependencies of the refresh token ledger.
type LedgerConfig struct {
	Database *gorm.DB
	Codec    *Codec
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Ledger persists every issued refresh token and enforces server-side
// revocation independent of token self-validity.
type Ledger struct {
	db     *gorm.DB
	codec  *Codec
	clock  func() time.Time
	logger *zap.Logger
}

// NewLedger constructs a Ledger.
func NewLedger(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Database == nil {
		return nil, errMissingLedgerDatabase
	}
	if cfg.Codec == nil {
		return nil, errMissingLedgerCodec
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{db: cfg.Database, codec: cfg.Codec, clock: clock, logger: logger}, nil
}

// Issue mints a refresh token with a fresh jti, persists its ledger row and
// returns the signed token.
func (l *Ledger) Issue(ctx context.Context, userID int64, username string) (IssuedToken, error) {
	jti := uuid.NewString()
	token, expiresAt, err := l.codec.SignRefresh(userID, username, jti)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("ledger: sign refresh token: %w", err)
	}

	record := RefreshTokenRecord{
		JTI:       jti,
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
	}
	if err := l.db.WithContext(ctx).Create(&record).Error; err != nil {
		return IssuedToken{}, fmt.Errorf("ledger: persist refresh token: %w", err)
	}

	return IssuedToken{Token: token, JTI: jti, ExpiresAt: expiresAt}, nil
}

// ValidateStored checks the persisted state for a jti. It deliberately ignores
// the token's own signature: a correctly signed token whose row was revoked is
// still rejected here.
func (l *Ledger) ValidateStored(ctx context.Context, jti string) (RefreshTokenRecord, error) {
	var record RefreshTokenRecord
	err := l.db.WithContext(ctx).Where("jti = ?", jti).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RefreshTokenRecord{}, ErrTokenNotFound
	}
	if err != nil {
		return RefreshTokenRecord{}, fmt.Errorf("ledger: load refresh token: %w", err)
	}
	if record.RevokedAt != nil {
		return RefreshTokenRecord{}, ErrTokenRevoked
	}
	if !record.ExpiresAt.After(l.clock().UTC()) {
		return RefreshTokenRecord{}, ErrTokenExpired
	}
	return record, nil
}

// Rotate supersedes oldJti with a brand-new token pair. Order matters: the new
// token is issued first, then the old row is revoked and linked via
// replaced_by. A failed revoke write is logged but does not fail the rotation.
func (l *Ledger) Rotate(ctx context.Context, oldJti string, userID int64, username string) (RotatedPair, error) {
	var existing RefreshTokenRecord
	err := l.db.WithContext(ctx).Where("jti = ?", oldJti).Take(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return RotatedPair{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return RotatedPair{}, fmt.Errorf("ledger: load refresh token: %w", err)
	}
	if existing.RevokedAt != nil {
		return RotatedPair{}, ErrInvalidRefreshToken
	}
	if !existing.ExpiresAt.After(l.clock().UTC()) {
		return RotatedPair{}, ErrExpiredRefreshToken
	}

	next, err := l.Issue(ctx, userID, username)
	if err != nil {
		return RotatedPair{}, err
	}

	// Conditional update keeps the lineage append-only: an already revoked row
	// never gets its replaced_by overwritten by a racing rotation.
	now := l.clock().UTC()
	result := l.db.WithContext(ctx).
		Model(&RefreshTokenRecord{}).
		Where("jti = ? AND revoked_at IS NULL", oldJti).
		Updates(map[string]interface{}{"revoked_at": now, "replaced_by": next.JTI})
	if result.Error != nil {
		l.logger.Error("refresh token revoke failed during rotation",
			zap.String("jti", oldJti), zap.Error(result.Error))
	} else if result.RowsAffected == 0 {
		l.logger.Warn("refresh token concurrently revoked during rotation",
			zap.String("jti", oldJti), zap.String("replaced_by", next.JTI))
	}

	accessToken, err := l.codec.SignAccess(userID, username)
	if err != nil {
		return RotatedPair{}, fmt.Errorf("ledger: sign access token: %w", err)
	}

	return RotatedPair{AccessToken: accessToken, RefreshToken: next.Token, RefreshJTI: next.JTI}, nil
}

// Revoke idempotently marks a record revoked. It returns false for an absent
// or already revoked jti and swallows persistence faults: logout must never
// fail the caller over ledger trouble.
func (l *Ledger) Revoke(ctx context.Context, jti string) bool {
	var record RefreshTokenRecord
	err := l.db.WithContext(ctx).Where("jti = ?", jti).Take(&record).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			l.logger.Warn("refresh token lookup failed during revoke",
				zap.String("jti", jti), zap.Error(err))
		}
		return false
	}
	if record.RevokedAt != nil {
		return false
	}

	now := l.clock().UTC()
	result := l.db.WithContext(ctx).
		Model(&RefreshTokenRecord{}).
		Where("jti = ? AND revoked_at IS NULL", jti).
		Update("revoked_at", now)
	if result.Error != nil {
		l.logger.Warn("refresh token revoke failed",
			zap.String("jti", jti), zap.Error(result.Error))
		return false
	}
	return result.RowsAffected > 0
}
