// Package auth authenticates API keys and carries the caller identity in the
// request context.
package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"
)

var (
	// ErrUnauthorized is returned when a request carries no valid API key.
	ErrUnauthorized = errors.New("not authorized")
	// ErrForbidden is returned when the caller lacks the admin role.
	ErrForbidden = errors.New("access denied, admins only")
	// ErrUserNotFound is returned by repositories on a lookup miss.
	ErrUserNotFound = errors.New("user not found")
)

// Role is the authorization role of a user.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is a registered customer or administrator.
type User struct {
	ID          string
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Governorate string
	City        string
	Address     string
	Role        Role
	// APIKeyHash is the hex HMAC-SHA256 of the user's API key.
	APIKeyHash string
	// Orders lists placed order IDs, oldest first.
	Orders []string
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Repository provides user lookups.
type Repository interface {
	FindByAPIKeyHash(ctx context.Context, hash string) (*User, error)
	Get(ctx context.Context, id string) (*User, error)
	AppendOrder(ctx context.Context, userID, orderID string) error
}

// Authenticator resolves API keys to users.
type Authenticator struct {
	users  Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator hashing keys with pepper.
func NewAuthenticator(users Repository, pepper []byte) *Authenticator {
	return &Authenticator{users: users, pepper: pepper}
}

// HashKey returns the hex HMAC-SHA256 of key under pepper, the form stored
// in the users table.
func HashKey(pepper []byte, key string) string {
	mac := hmac.New(sha256.New, pepper)
	mac.Write([]byte(key))
	return hex.EncodeToString(mac.Sum(nil))
}

// Authenticate returns the user owning key. Unknown or malformed keys yield
// ErrUnauthorized; storage errors are returned wrapped.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (*User, error) {
	if key == "" {
		return nil, ErrUnauthorized
	}

	mac := hmac.New(sha256.New, a.pepper)
	mac.Write([]byte(key))
	hash := mac.Sum(nil)

	u, err := a.users.FindByAPIKeyHash(ctx, hex.EncodeToString(hash))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(err, "find user by api key")
	}

	stored, err := hex.DecodeString(u.APIKeyHash)
	if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
		return nil, ErrUnauthorized
	}
	return u, nil
}

type userKey struct{}

// WithUser returns a context carrying u.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// UserFrom returns the authenticated user, if any.
func UserFrom(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey{}).(*User)
	return u, ok && u != nil
}
