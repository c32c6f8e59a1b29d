package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type stubStore struct {
	byEmail map[string]*User
	byID    map[string]*User
}

func newStubStore() *stubStore {
	return &stubStore{byEmail: map[string]*User{}, byID: map[string]*User{}}
}

func (s *stubStore) Create(_ context.Context, u *User) error {
	if _, ok := s.byEmail[u.Email]; ok {
		return ErrEmailTaken
	}
	s.byEmail[u.Email] = u
	s.byID[u.ID] = u
	return nil
}

func (s *stubStore) GetByEmail(_ context.Context, email string) (*User, error) {
	u, ok := s.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func (s *stubStore) GetByID(_ context.Context, id string) (*User, error) {
	u, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return u, nil
}

func TestRegisterHashesPasswordAndNormalisesEmail(t *testing.T) {
	svc := NewService(newStubStore())

	u, err := svc.Register(context.Background(), "  Jane@Example.COM ", "correct-horse", "Jane Doe")
	require.NoError(t, err)

	assert.Equal(t, "jane@example.com", u.Email)
	assert.NotEqual(t, "correct-horse", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("correct-horse")))
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc := NewService(newStubStore())

	_, err := svc.Register(context.Background(), "jane@example.com", "correct-horse", "Jane")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "jane@example.com", "other-password", "Impostor")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	svc := NewService(newStubStore())

	_, err := svc.Register(context.Background(), "jane@example.com", "short", "Jane")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate(t *testing.T) {
	svc := NewService(newStubStore())
	_, err := svc.Register(context.Background(), "jane@example.com", "correct-horse", "Jane")
	require.NoError(t, err)

	u, err := svc.Authenticate(context.Background(), "jane@example.com", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", u.Email)

	_, err = svc.Authenticate(context.Background(), "jane@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "nobody@example.com", "correct-horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
