package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kxd395/AxxessWebUI/pkg/auth"
	"github.com/Kxd395/AxxessWebUI/pkg/storage"
)

var _ storage.UserStore = (*Store)(nil)

func newUser(id, email string) *auth.User {
	now := time.Now().UTC()
	return &auth.User{
		ID:           id,
		Email:        email,
		PasswordHash: "hash",
		Name:         id,
		Role:         auth.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateUser(ctx, newUser("u1", "a@example.com"), auth.CreateOptions{}))

	byID, err := s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", byID.Email)

	byEmail, err := s.GetUserByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", byEmail.ID)

	_, err = s.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
	_, err = s.GetUserByEmail(ctx, "missing@example.com")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateUser(ctx, newUser("u1", "a@example.com"), auth.CreateOptions{}))

	u, err := s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	u.Name = "mutated"

	again, err := s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", again.Name)
}

func TestStore_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateUser(ctx, newUser("u1", "a@example.com"), auth.CreateOptions{}))
	err := s.CreateUser(ctx, newUser("u2", "a@example.com"), auth.CreateOptions{})
	assert.ErrorIs(t, err, auth.ErrEmailTaken)

	count, _ := s.CountUsers(ctx)
	assert.Equal(t, int64(1), count)
}

func TestStore_PromoteFirstUser(t *testing.T) {
	ctx := context.Background()
	s := New()

	first := newUser("u1", "a@example.com")
	require.NoError(t, s.CreateUser(ctx, first, auth.CreateOptions{PromoteFirstUser: true}))
	assert.Equal(t, auth.RoleAdmin, first.Role)

	second := newUser("u2", "b@example.com")
	require.NoError(t, s.CreateUser(ctx, second, auth.CreateOptions{PromoteFirstUser: true}))
	assert.Equal(t, auth.RoleUser, second.Role)
}

func TestStore_ConcurrentFirstSignup(t *testing.T) {
	ctx := context.Background()
	s := New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			u := newUser(fmt.Sprintf("u%d", i), fmt.Sprintf("user%d@example.com", i))
			_ = s.CreateUser(ctx, u, auth.CreateOptions{PromoteFirstUser: true})
		}(i)
	}
	wg.Wait()

	admins := 0
	for i := 0; i < 20; i++ {
		u, err := s.GetUserByID(ctx, fmt.Sprintf("u%d", i))
		require.NoError(t, err)
		if u.Role == auth.RoleAdmin {
			admins++
		}
	}
	assert.Equal(t, 1, admins)
}

func TestStore_UpdateUser(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateUser(ctx, newUser("u1", "a@example.com"), auth.CreateOptions{}))

	name := "Alice"
	payload := `{"sub":"1"}`
	updated, err := s.UpdateUser(ctx, "u1", auth.UserUpdate{Name: &name, ExtraSSO: &payload})
	require.NoError(t, err)
	assert.Equal(t, "Alice", updated.Name)
	assert.Equal(t, payload, updated.ExtraSSOValue())
	assert.Equal(t, "hash", updated.PasswordHash)

	_, err = s.UpdateUser(ctx, "missing", auth.UserUpdate{Name: &name})
	assert.ErrorIs(t, err, auth.ErrUserNotFound)
}

func TestStore_APIKeyLifecycle(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateUser(ctx, newUser("u1", "a@example.com"), auth.CreateOptions{}))

	first := "sk-00000000000000000000000000000001"
	second := "sk-00000000000000000000000000000002"

	require.NoError(t, s.SetAPIKey(ctx, "u1", &first))
	u, err := s.GetUserByAPIKey(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	// Replacing the key retires the old one
	require.NoError(t, s.SetAPIKey(ctx, "u1", &second))
	_, err = s.GetUserByAPIKey(ctx, first)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	require.NoError(t, s.SetAPIKey(ctx, "u1", nil))
	_, err = s.GetUserByAPIKey(ctx, second)
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	u, err = s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, u.APIKey)

	creds, err := s.GetCredentials(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, creds.APIKey)
	assert.Equal(t, u.PasswordHash, creds.PasswordHash)
	_, err = s.GetCredentials(ctx, "missing")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	assert.ErrorIs(t, s.SetAPIKey(ctx, "missing", &first), auth.ErrUserNotFound)
}

func TestStore_TouchLastActive(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.CreateUser(ctx, newUser("u1", "a@example.com"), auth.CreateOptions{}))

	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.TouchLastActive(ctx, "u1", at))

	u, err := s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, u.LastActiveAt)
	assert.True(t, at.Equal(*u.LastActiveAt))
}
