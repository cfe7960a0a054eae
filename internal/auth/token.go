package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token verification failures. All of them must be presented to clients as a
// uniform unauthenticated outcome; the distinction exists for logging only.
var (
	// ErrTokenMissing indicates no token was presented.
	ErrTokenMissing = errors.New("auth: token missing")
	// ErrTokenMalformed indicates a token that failed signature or shape checks.
	ErrTokenMalformed = errors.New("auth: token malformed")
	// ErrTokenExpired indicates a structurally valid token past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")
)

// DefaultTokenTTL matches the session lifetime issued to the admin client.
const DefaultTokenTTL = 7 * 24 * time.Hour

// Claims carries the identity embedded in a session token.
type Claims struct {
	UserID    int64
	Email     string
	Role      string
	IsAdmin   bool
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	Admin bool   `json:"admin,omitempty"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies signed session tokens. It is stateless;
// every call is pure cryptographic computation.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService constructs a TokenService signing with the given secret.
// A non-positive ttl falls back to DefaultTokenTTL.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs an HS256 token for the authenticated user and returns the
// serialized token together with the claims that were embedded in it.
func (s *TokenService) Issue(user *User) (string, *Claims, error) {
	now := s.now().UTC()
	claims := &Claims{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.RoleName,
		IsAdmin:   user.IsAdmin,
		TokenID:   uuid.NewString(),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Email: claims.Email,
		Role:  claims.Role,
		Admin: claims.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(claims.UserID, 10),
			ID:        claims.TokenID,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

// Verify validates signature and expiry and returns the embedded claims.
// Failures are reported as ErrTokenMissing, ErrTokenMalformed or
// ErrTokenExpired.
func (s *TokenService) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrTokenMissing
	}
	parser := jwt.NewParser(jwt.WithTimeFunc(s.now))
	var parsed tokenClaims
	token, err := parser.ParseWithClaims(raw, &parsed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenMalformed
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenMalformed
	}
	if !token.Valid {
		return nil, ErrTokenMalformed
	}
	userID, err := strconv.ParseInt(parsed.Subject, 10, 64)
	if err != nil {
		return nil, ErrTokenMalformed
	}
	claims := &Claims{
		UserID:  userID,
		Email:   parsed.Email,
		Role:    parsed.Role,
		IsAdmin: parsed.Admin,
		TokenID: parsed.ID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	return claims, nil
}
