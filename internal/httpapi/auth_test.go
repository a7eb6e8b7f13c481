package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tindahan/backend/internal/apperror"
	"tindahan/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func plainAdminStore() *userStoreStub {
	return &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      domain.RoleAdmin,
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := plainAdminStore()
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)

	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "admin123"})
	require.NoError(t, err)

	users, err := store.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, strings.HasPrefix(users[0].Password, "$2"), "expected bcrypt hash, got %s", users[0].Password)
	assert.Equal(t, 1, store.updates)
}

func TestCreateStaffStoresPasswordHash(t *testing.T) {
	store := plainAdminStore()
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)

	staff, err := manager.CreateStaff(context.Background(), domain.StaffCreateRequest{Username: " Maria ", Password: "pass1234"})
	require.NoError(t, err)
	assert.Equal(t, "maria", staff.Username)
	assert.Equal(t, domain.RoleStaff, staff.Role)

	saved := store.users["maria"]
	assert.NotEqual(t, "pass1234", saved.Password)
	assert.True(t, strings.HasPrefix(saved.Password, "$2"))

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "maria", Password: "pass1234"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleStaff, resp.Role)

	_, err = manager.CreateStaff(context.Background(), domain.StaffCreateRequest{Username: "maria", Password: "another1"})
	assert.True(t, apperror.HasCode(err, apperror.CodeConflict))

	listed := manager.ListStaff(context.Background())
	require.Len(t, listed, 1)
	assert.Equal(t, "maria", listed[0].Username)
}

func TestCreateStaffValidatesInput(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, &userStoreStub{})

	_, err := manager.CreateStaff(context.Background(), domain.StaffCreateRequest{Username: "abc", Password: "pass1234"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = manager.CreateStaff(context.Background(), domain.StaffCreateRequest{Username: "jo se", Password: "pass1234"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))

	_, err = manager.CreateStaff(context.Background(), domain.StaffCreateRequest{Username: "josefa", Password: "123"})
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
}

func TestLoginRejectsInactiveAndWrongPassword(t *testing.T) {
	store := plainAdminStore()
	store.users["luz"] = domain.UserAccount{Username: "luz", Password: "luzpass1", Role: domain.RoleStaff, Active: false}
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, store)

	_, err := manager.Login(context.Background(), domain.LoginRequest{Username: "admin", Password: "nope"})
	assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))

	_, err = manager.Login(context.Background(), domain.LoginRequest{Username: "luz", Password: "luzpass1"})
	assert.True(t, apperror.HasCode(err, apperror.CodeForbidden))
}

func TestParseTokenRoundTripAndRejections(t *testing.T) {
	manager := NewAuthManager(context.Background(), "test-secret", time.Hour, plainAdminStore())

	resp, err := manager.Login(context.Background(), domain.LoginRequest{Username: "ADMIN", Password: "admin123"})
	require.NoError(t, err)

	actor, err := manager.ParseToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, domain.Actor{Username: "admin", Role: domain.RoleAdmin}, actor)

	other := NewAuthManager(context.Background(), "other-secret", time.Hour, nil)
	_, err = other.ParseToken(resp.AccessToken)
	assert.True(t, apperror.HasCode(err, apperror.CodeUnauthorized))

	expired, err := manager.sign("admin", domain.RoleAdmin, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	_, err = manager.ParseToken(expired)
	assert.Error(t, err)

	foreign := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, staffClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   "admin",
			Issuer:    "someone-else",
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Role: domain.RoleAdmin,
	})
	signed, err := foreign.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = manager.ParseToken(signed)
	assert.Error(t, err)
}
