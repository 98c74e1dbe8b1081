package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/babynest/backend/internal/models"
)

const (
	tokenIssuer       = "babynest"
	oauthStateSubject = "oauth_state"
	oauthStateTTL     = 10 * time.Minute
)

// Claims are the JWT claims of an access token. Subject holds the user ID
// and ID (jti) identifies the token for revocation.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// TTL is the lifetime of issued access tokens.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

func (m *TokenManager) sign(claims jwt.Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

func (m *TokenManager) parse(raw string, claims jwt.Claims) error {
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}

// Issue signs an access token for user and returns it with its session.
func (m *TokenManager) Issue(user *models.User) (string, *Session, error) {
	now := m.now()
	sess := &Session{
		UserID:    user.ID.Hex(),
		Email:     user.Email,
		TokenID:   uuid.NewString(),
		ExpiresAt: now.Add(m.ttl).Truncate(time.Second),
	}
	token, err := m.sign(Claims{
		Email: sess.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   sess.UserID,
			ID:        sess.TokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, sess, nil
}

// Parse verifies signature and expiry and returns the session the token carries.
func (m *TokenManager) Parse(raw string) (*Session, error) {
	if raw == "" {
		return nil, ErrUnauthorized
	}
	var claims Claims
	if err := m.parse(raw, &claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" || claims.Subject == oauthStateSubject || claims.ID == "" {
		return nil, ErrUnauthorized
	}
	return &Session{
		UserID:    claims.Subject,
		Email:     claims.Email,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// IssueState returns a short-lived signed value used as the OAuth state parameter.
func (m *TokenManager) IssueState() (string, error) {
	now := m.now()
	return m.sign(jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   oauthStateSubject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(oauthStateTTL)),
	})
}

// VerifyState checks a value produced by IssueState.
func (m *TokenManager) VerifyState(state string) error {
	var claims jwt.RegisteredClaims
	if err := m.parse(state, &claims); err != nil {
		return err
	}
	if claims.Subject != oauthStateSubject {
		return ErrUnauthorized
	}
	return nil
}
