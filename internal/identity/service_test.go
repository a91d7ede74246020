package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"retailpos/m/domain"
	"retailpos/m/internal/apperr"
	"retailpos/m/internal/testutil"
)

const testSecret = "test-secret"

func newTestService(t *testing.T) *Service {
	t.Helper()
	s := NewService(testutil.OpenDB(t), testSecret, time.Hour, nil)
	s.cost = bcrypt.MinCost
	return s
}

func TestRegisterAndLoginScenario(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	alice, err := s.Register(ctx, "alice", "pass1")
	require.NoError(t, err)
	assert.Positive(t, alice.ID)
	assert.Equal(t, domain.RoleStandard, alice.Role)
	assert.NotEqual(t, "pass1", alice.PasswordHash)

	_, err = s.Register(ctx, "alice", "pass2")
	assert.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)

	token, err := s.Authenticate(ctx, "alice", "pass1")
	require.NoError(t, err)
	assert.NotEmpty(t, token.Token)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.WithinDuration(t, time.Now().Add(time.Hour), token.ExpiresAt, time.Minute)

	_, wrongPassword := s.Authenticate(ctx, "alice", "wrong")
	require.Error(t, wrongPassword)
	e, ok := apperr.As(wrongPassword)
	require.True(t, ok)
	assert.Equal(t, apperr.KindAuth, e.Kind)
	assert.Equal(t, "invalid credentials", e.Message)

	_, unknownUser := s.Authenticate(ctx, "bob", "pass1")
	require.Error(t, unknownUser)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error(), "unknown user is indistinguishable")

	claims, err := s.VerifyToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, domain.RoleStandard, claims.Role)
	assert.Equal(t, "retailpos", claims.Issuer)
	assert.Equal(t, "1", claims.Subject)
}

func TestRegisterValidation(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	cases := map[string][2]string{
		"short username": {"al", "pass1"},
		"blank username": {"   ", "pass1"},
		"short password": {"alice", "1234"},
		"long password":  {"alice", strings.Repeat("x", 73)},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := s.Register(ctx, c[0], c[1])
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}

	_, err := s.CreateUser(ctx, "carol", "pass1", "admin")
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = s.Authenticate(ctx, "", "")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestCreateManagerAndListUsers(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "cajero", "caja1")
	require.NoError(t, err)
	manager, err := s.CreateUser(ctx, "gerente", "jefe1", domain.RoleManager)
	require.NoError(t, err)

	token, err := s.Authenticate(ctx, "gerente", "jefe1")
	require.NoError(t, err)
	claims, err := s.VerifyToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleManager, claims.Role)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "cajero", users[0].Username)
	assert.Equal(t, manager.ID, users[1].ID)
	for _, u := range users {
		assert.Empty(t, u.PasswordHash)
	}

	ok, err := s.UserExists(ctx, manager.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.UserExists(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyTokenRejectsBadTokens(t *testing.T) {
	s := newTestService(t)
	ctx := context.Background()

	_, err := s.Register(ctx, "alice", "pass1")
	require.NoError(t, err)
	token, err := s.Authenticate(ctx, "alice", "pass1")
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := *s
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.VerifyToken(token.Token)
		assert.True(t, apperr.Is(err, apperr.KindAuth))
	})

	t.Run("tampered", func(t *testing.T) {
		parts := strings.Split(token.Token, ".")
		require.Len(t, parts, 3)
		sig := []byte(parts[2])
		if sig[0] == 'A' {
			sig[0] = 'B'
		} else {
			sig[0] = 'A'
		}
		_, err := s.VerifyToken(parts[0] + "." + parts[1] + "." + string(sig))
		assert.True(t, apperr.Is(err, apperr.KindAuth))
	})

	t.Run("other secret", func(t *testing.T) {
		other := *s
		other.secret = []byte("another-secret")
		_, err := other.VerifyToken(token.Token)
		assert.True(t, apperr.Is(err, apperr.KindAuth))
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		claims := Claims{
			UserID: 1,
			Role:   domain.RoleManager,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    issuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = s.VerifyToken(unsigned)
		assert.True(t, apperr.Is(err, apperr.KindAuth))
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := s.VerifyToken("not-a-token")
		assert.True(t, apperr.Is(err, apperr.KindAuth))
	})
}
