package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

var errMissingCodecSecret = errors.New("token codec: both secrets must be provided")

// VerifyStatus classifies the outcome of token verification. The session
// middleware branches on this instead of inspecting error types: only an
// Expired access token is eligible for the refresh flow.
type VerifyStatus int

const (
	VerifyOK VerifyStatus = iota
	VerifyExpired
	VerifyInvalid
)

func (s VerifyStatus) String() string {
	switch s {
	case VerifyOK:
		return "ok"
	case VerifyExpired:
		return "expired"
	case VerifyInvalid:
		return "invalid"
	default:
		return fmt.Sprintf("verify_status(%d)", int(s))
	}
}

// Claims is the payload carried by both token types. JTI is populated only on
// refresh tokens.
type Claims struct {
	Username string `json:"username"`
	JTI      string `json:"jti,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim back into a numeric user id.
func (c Claims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

// CodecConfig configures the dual-secret token codec.
type CodecConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Clock         func() time.Time
}

// Codec signs and verifies access and refresh tokens with independent secrets
// and lifetimes. It holds no mutable state.
type Codec struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	clock         func() time.Time
}

// NewCodec constructs a Codec with sane defaults.
func NewCodec(cfg CodecConfig) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errMissingCodecSecret
	}
	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = defaultAccessTTL
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = defaultRefreshTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Codec{
		accessSecret:  append([]byte(nil), cfg.AccessSecret...),
		refreshSecret: append([]byte(nil), cfg.RefreshSecret...),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		clock:         clock,
	}, nil
}

// AccessTTL reports the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL reports the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// SignAccess produces a signed access token for the user.
func (c *Codec) SignAccess(userID int64, username string) (string, error) {
	return c.sign(c.accessSecret, c.accessTTL, userID, username, "")
}

// SignRefresh produces a signed refresh token embedding the jti, and returns
// the token together with its expiry.
func (c *Codec) SignRefresh(userID int64, username, jti string) (string, time.Time, error) {
	now := c.clock().UTC()
	expiresAt := now.Add(c.refreshTTL)
	token, err := c.sign(c.refreshSecret, c.refreshTTL, userID, username, jti)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (c *Codec) sign(secret []byte, ttl time.Duration, userID int64, username, jti string) (string, error) {
	now := c.clock().UTC()
	claims := Claims{
		Username: username,
		JTI:      jti,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// VerifyAccess checks an access token and classifies the outcome.
func (c *Codec) VerifyAccess(token string) (Claims, VerifyStatus) {
	return c.verify(c.accessSecret, token)
}

// VerifyRefresh checks a refresh token and classifies the outcome.
func (c *Codec) VerifyRefresh(token string) (Claims, VerifyStatus) {
	return c.verify(c.refreshSecret, token)
}

func (c *Codec) verify(secret []byte, tokenString string) (Claims, VerifyStatus) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
			}
			return secret, nil
		},
		jwt.WithTimeFunc(c.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		// Expired means the signature checked out but the token aged past its
		// window; everything else is treated as tampering.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, VerifyExpired
		}
		return Claims{}, VerifyInvalid
	}
	if parsed == nil || !parsed.Valid || claims.Subject == "" {
		return Claims{}, VerifyInvalid
	}
	return *claims, VerifyOK
}
