package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrInvalidRole  = errors.New("invalid role")
)

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
	// RoleSystem is used by background sweeps. It is never issued in a token.
	RoleSystem Role = "system"
)

// Valid reports whether r is a role a user account can hold.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient:
		return true
	}
	return false
}

// Actor is the resolved caller of an operation.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

// System is the actor used by scheduled jobs.
var System = Actor{Role: RoleSystem}

func (a Actor) Is(roles ...Role) bool {
	for _, r := range roles {
		if a.Role == r {
			return true
		}
	}
	return false
}

// Provider resolves an opaque bearer token into an Actor.
type Provider interface {
	Resolve(ctx context.Context, token string) (Actor, error)
}

type claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}

// JWTProvider issues and verifies HS256 tokens whose subject is the user id.
type JWTProvider struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWTProvider(secret string, ttl time.Duration) *JWTProvider {
	return &JWTProvider{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for userID with the given role.
func (p *JWTProvider) Issue(userID uuid.UUID, role Role) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	now := p.now()
	c := claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (p *JWTProvider) Resolve(_ context.Context, token string) (Actor, error) {
	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return p.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
	)
	if err != nil || !parsed.Valid {
		return Actor{}, ErrInvalidToken
	}

	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return Actor{}, ErrInvalidToken
	}
	if !c.Role.Valid() {
		return Actor{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrInvalidRole)
	}
	return Actor{UserID: id, Role: c.Role}, nil
}
