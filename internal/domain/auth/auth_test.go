package auth

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockUserRepo struct {
	byHash map[string]*User
	err    error
}

func (m *mockUserRepo) FindByAPIKeyHash(_ context.Context, hash string) (*User, error) {
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.byHash[hash]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserRepo) Get(context.Context, string) (*User, error) { return nil, ErrUserNotFound }

func (m *mockUserRepo) AppendOrder(context.Context, string, string) error { return nil }

func TestAuthenticate(t *testing.T) {
	pepper := []byte("pepper")
	hash := HashKey(pepper, "secret-key")
	alice := &User{ID: "u1", FirstName: "Alice", Role: RoleUser, APIKeyHash: hash}
	repo := &mockUserRepo{byHash: map[string]*User{hash: alice}}
	a := NewAuthenticator(repo, pepper)
	ctx := context.Background()

	u, err := a.Authenticate(ctx, "secret-key")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = a.Authenticate(ctx, "wrong-key")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = a.Authenticate(ctx, "")
	require.ErrorIs(t, err, ErrUnauthorized)

	// A different pepper yields a different hash.
	_, err = NewAuthenticator(repo, []byte("other")).Authenticate(ctx, "secret-key")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_StoredHashMismatch(t *testing.T) {
	pepper := []byte("pepper")
	hash := HashKey(pepper, "k")
	repo := &mockUserRepo{byHash: map[string]*User{hash: {ID: "u1", APIKeyHash: "zz"}}}

	_, err := NewAuthenticator(repo, pepper).Authenticate(context.Background(), "k")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticate_StorageError(t *testing.T) {
	repo := &mockUserRepo{err: errors.New("timeout")}

	_, err := NewAuthenticator(repo, nil).Authenticate(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
}

func TestUserContext(t *testing.T) {
	_, ok := UserFrom(context.Background())
	assert.False(t, ok)

	ctx := WithUser(context.Background(), &User{ID: "u1", Role: RoleAdmin})
	u, ok := UserFrom(ctx)
	require.True(t, ok)
	assert.True(t, u.IsAdmin())
}
