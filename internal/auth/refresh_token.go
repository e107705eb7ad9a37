package auth

import "time"

// RefreshTokenRecord is the ledger row backing a single issued refresh token.
// Rows are never deleted; revocation and rotation lineage are recorded in
// place so the full chain stays auditable.
type RefreshTokenRecord struct {
	JTI        string     `gorm:"column:jti;primaryKey;size:64;not null"`
	Token      string     `gorm:"column:token;type:text;not null"`
	UserID     int64      `gorm:"column:user_id;not null;index"`
	ExpiresAt  time.Time  `gorm:"column:expires_at;not null"`
	RevokedAt  *time.Time `gorm:"column:revoked_at"`
	ReplacedBy *string    `gorm:"column:replaced_by;size:64"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// TableName exposes the table backing the refresh token ledger.
func (RefreshTokenRecord) TableName() string {
	return "refresh_tokens"
}

// Active reports whether the record may still authorize a rotation at the
// given instant.
func (r RefreshTokenRecord) Active(now time.Time) bool {
	return r.RevokedAt == nil && r.ExpiresAt.After(now)
}
