package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/mongo"

	"access-service/internal/rbac"
	"access-service/internal/repository"
)

// Validation failures are all authentication-class: each maps to its own
// user-facing message but none of them imply anything about permissions.
var (
	ErrTokenExpired       = errors.New("credential has expired")
	ErrTokenInvalid       = errors.New("credential is invalid")
	ErrPrincipalNotFound  = errors.New("principal not found")
	ErrAccountDeactivated = errors.New("account is deactivated")
	ErrAccountLocked      = errors.New("account is locked")
)

// ErrDanglingRole is a consistency failure: the user exists but references a
// role that does not. Callers must treat it as an internal fault, not a
// deny.
var ErrDanglingRole = errors.New("principal references unknown role")

// Manager issues and validates bearer credentials and resolves them to
// loaded principals.
type Manager struct {
	repo   repository.Repository
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

func NewManager(repo repository.Repository, secret string, expiry time.Duration) *Manager {
	return &Manager{
		repo:   repo,
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// Issue mints a signed bearer token for the user.
func (m *Manager) Issue(userId uuid.UUID) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.expiry)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userId.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Validate verifies the bearer credential and loads the referenced principal
// with its role populated. Deactivated and locked accounts are rejected here,
// before any permission resolution can happen.
func (m *Manager) Validate(ctx context.Context, bearer string) (*rbac.Principal, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(bearer, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	userId, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	user, err := m.repo.GetUser(ctx, userId)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrAccountDeactivated
	}
	if user.Security.LockedAt(m.now()) {
		return nil, ErrAccountLocked
	}

	role, err := m.repo.GetRole(ctx, user.RoleId)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: user %s role %q", ErrDanglingRole, user.Id, user.RoleId)
		}
		return nil, fmt.Errorf("failed to load role: %w", err)
	}

	return &rbac.Principal{User: user, Role: role}, nil
}

// IsAuthenticationError reports whether err is one of the expected 401-class
// validation failures, as opposed to an internal fault.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenInvalid) ||
		errors.Is(err, ErrPrincipalNotFound) ||
		errors.Is(err, ErrAccountDeactivated) ||
		errors.Is(err, ErrAccountLocked)
}
