// Package auth implements the Authenticator (C9): self-issued bearer JWTs
// for the management plane and API-key verification for the data plane.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/altus4/core/internal/crypto"
	"github.com/altus4/core/internal/models"
	"github.com/altus4/core/internal/repository"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrKeyExpired   = errors.New("api key expired")
)

// Claims is the payload of a self-issued management-plane JWT.
type Claims struct {
	jwt.RegisteredClaims
	UserID string          `json:"sub"`
	Email  string          `json:"email"`
	Tier   string          `json:"tier"`
	Role   models.UserRole `json:"role"`
}

// Identity is the unified result of authenticating a request, regardless
// of whether it arrived as a bearer JWT or an API key.
type Identity struct {
	UserID      string
	Email       string
	Tier        string
	Role        models.UserRole
	IsAPIKey    bool
	APIKeyID    string
	Permissions []models.Permission
}

// IsAdmin reports whether the authenticated identity holds the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == models.RoleAdmin
}

// HasPermission reports whether the identity is authorized for p. A bearer
// JWT identity (management plane) always passes, since it is not scoped
// to a restricted permission set; an admin API key implicitly holds every
// permission; any other API key must carry p explicitly.
func (i *Identity) HasPermission(p models.Permission) bool {
	if i == nil {
		return false
	}
	if !i.IsAPIKey {
		return true
	}
	for _, granted := range i.Permissions {
		if granted == p || granted == models.PermissionAdmin {
			return true
		}
	}
	return false
}

// Authenticator issues and verifies bearer JWTs, and verifies API keys
// against the API key repository.
type Authenticator struct {
	secret  []byte
	ttl     time.Duration
	apiKeys repository.APIKeyRepository
}

// New builds an Authenticator. secret signs and verifies JWTs (HS256);
// ttl is the lifetime of issued tokens.
func New(secret string, ttl time.Duration, apiKeys repository.APIKeyRepository) *Authenticator {
	return &Authenticator{secret: []byte(secret), ttl: ttl, apiKeys: apiKeys}
}

// IssueToken creates a signed bearer JWT for user.
func (a *Authenticator) IssueToken(user *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   user.ID,
		},
		UserID: user.ID,
		Email:  user.Email,
		Tier:   user.Tier,
		Role:   user.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken parses and validates a bearer JWT, returning the resulting
// identity.
func (a *Authenticator) VerifyToken(tokenString string) (*Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	return &Identity{
		UserID: claims.UserID,
		Email:  claims.Email,
		Tier:   claims.Tier,
		Role:   claims.Role,
	}, nil
}

// VerifyAPIKey looks up plaintextKey by its hash and validates it is not
// revoked, returning the resulting identity.
func (a *Authenticator) VerifyAPIKey(ctx context.Context, plaintextKey string) (*Identity, error) {
	hash := crypto.HashAPIKey(plaintextKey)

	key, err := a.apiKeys.GetByKeyHash(ctx, hash)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if !crypto.VerifyAPIKey(plaintextKey, key.KeyHash) {
		return nil, ErrInvalidToken
	}

	now := time.Now()
	if key.ExpiresAt != nil && now.After(*key.ExpiresAt) {
		return nil, ErrKeyExpired
	}
	_ = a.apiKeys.UpdateLastUsed(ctx, key.ID, now)

	return &Identity{
		UserID:      key.UserID,
		Tier:        key.Tier,
		IsAPIKey:    true,
		APIKeyID:    key.ID,
		Permissions: key.Permissions,
	}, nil
}
