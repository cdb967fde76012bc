package store

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"digitlens/internal/util"
	"digitlens/pkg/domain"
)

const (
	defaultJWTIssuer   = "digitlens-auth"
	defaultJWTAudience = "digitlens-api"
)

var defaultJWTLeeway = 30 * time.Second

// sessionClaims carries the session identity inside the token, so the
// session can be restored without a user lookup.
type sessionClaims struct {
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// JWTSessionStore issues and validates HS256 session tokens. Logout is
// implemented through the revoker since the token itself is stateless.
type JWTSessionStore struct {
	secret  []byte
	ttl     time.Duration
	revoker TokenRevoker
	issuer  string
	leeway  time.Duration
}

// NewJWTSessionStore builds an HS256 JWT session store.
func NewJWTSessionStore(secret string, ttl time.Duration, revoker TokenRevoker) (*JWTSessionStore, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTSessionStore{
		secret:  []byte(secret),
		ttl:     ttl,
		revoker: revoker,
		issuer:  defaultJWTIssuer,
		leeway:  defaultJWTLeeway,
	}, nil
}

// NewSession signs a token carrying the session identity.
func (s *JWTSessionStore) NewSession(sess domain.Session) (string, error) {
	now := time.Now().UTC()
	claims := sessionClaims{
		Name: sess.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        util.NewID(),
			Subject:   sess.Email,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{defaultJWTAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// GetSession validates the token and returns the embedded session.
func (s *JWTSessionStore) GetSession(token string) (domain.Session, bool, error) {
	claims, err := s.parseAndVerify(token)
	if err != nil {
		return domain.Session{}, false, nil
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(claims.ID)
		if err != nil {
			return domain.Session{}, false, err
		}
		if revoked {
			return domain.Session{}, false, nil
		}
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return domain.Session{}, false, nil
	}
	return domain.Session{Email: claims.Subject, Name: claims.Name}, true, nil
}

// DeleteSession revokes the token until it expires.
func (s *JWTSessionStore) DeleteSession(token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parseAndVerify(token)
	if err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	return s.revoker.Revoke(claims.ID, time.Until(claims.ExpiresAt.Time))
}

func (s *JWTSessionStore) parseAndVerify(token string) (sessionClaims, error) {
	claims := sessionClaims{}
	token = strings.TrimSpace(token)
	if token == "" {
		return claims, errors.New("invalid token format")
	}
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(defaultJWTAudience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(s.leeway),
	)
	if err != nil {
		return sessionClaims{}, err
	}
	return claims, nil
}
