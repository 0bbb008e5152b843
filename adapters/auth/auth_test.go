package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"towbid/adapters/auth"
	"towbid/models"
)

func newTestProvider(t *testing.T) *auth.Provider {
	t.Helper()
	provider, err := auth.NewProvider(setupDB(t), []byte("test-secret"),
		auth.WithProviderLogger(discardLogger()),
		auth.WithProviderBcryptCost(bcrypt.MinCost),
	)
	require.NoError(t, err)
	return provider
}

func TestNewProvider(t *testing.T) {
	db := setupDB(t)

	t.Run("正常建立", func(t *testing.T) {
		p, err := auth.NewProvider(db, []byte("secret"))
		require.NoError(t, err)
		assert.NotNil(t, p)
	})
	t.Run("缺少 db", func(t *testing.T) {
		p, err := auth.NewProvider(nil, []byte("secret"))
		assert.Error(t, err)
		assert.Nil(t, p)
	})
	t.Run("缺少 secret", func(t *testing.T) {
		p, err := auth.NewProvider(db, nil)
		assert.Error(t, err)
		assert.Nil(t, p)
	})
}

func TestProvider_SignUpAndSignIn(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	user, token, err := provider.SignUp(ctx, "alice", "Alice@Example.com", "password123", "")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.NotEmpty(t, token)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, models.RoleBidder, user.Role)
	assert.NotEqual(t, "password123", user.PasswordHash)

	signedIn, token2, err := provider.SignIn(ctx, "alice@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, user.ID, signedIn.ID)
	assert.NotEmpty(t, token2)
}

func TestProvider_SignUp_DuplicateEmail(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	_, _, err := provider.SignUp(ctx, "alice", "alice@example.com", "password123", "")
	require.NoError(t, err)

	_, _, err = provider.SignUp(ctx, "alice2", "alice@example.com", "password456", "")
	assert.ErrorIs(t, err, auth.ErrEmailTaken)
}

func TestProvider_SignUp_Validation(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		email    string
		password string
	}{
		{"缺少使用者名稱", "", "a@example.com", "password123"},
		{"缺少信箱", "alice", "", "password123"},
		{"密碼太短", "alice", "a@example.com", "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := provider.SignUp(ctx, tt.username, tt.email, tt.password, "")
			assert.Error(t, err)
		})
	}
}

func TestProvider_SignIn_WrongCredential(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	_, _, err := provider.SignUp(ctx, "alice", "alice@example.com", "password123", "")
	require.NoError(t, err)

	t.Run("密碼錯誤", func(t *testing.T) {
		_, _, err := provider.SignIn(ctx, "alice@example.com", "wrong-password")
		assert.ErrorIs(t, err, auth.ErrWrongCredential)
	})
	t.Run("信箱不存在", func(t *testing.T) {
		_, _, err := provider.SignIn(ctx, "nobody@example.com", "password123")
		assert.ErrorIs(t, err, auth.ErrWrongCredential)
	})
}

func TestProvider_ChangePassword(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	user, _, err := provider.SignUp(ctx, "alice", "alice@example.com", "password123", "")
	require.NoError(t, err)

	t.Run("舊密碼錯誤", func(t *testing.T) {
		err := provider.ChangePassword(ctx, user.ID, "wrong", "newpassword123")
		assert.ErrorIs(t, err, auth.ErrWrongCredential)
	})
	t.Run("新密碼太短", func(t *testing.T) {
		err := provider.ChangePassword(ctx, user.ID, "password123", "short")
		assert.Error(t, err)
	})
	t.Run("使用者不存在", func(t *testing.T) {
		err := provider.ChangePassword(ctx, uuid.New(), "password123", "newpassword123")
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})
	t.Run("成功更換", func(t *testing.T) {
		require.NoError(t, provider.ChangePassword(ctx, user.ID, "password123", "newpassword123"))

		_, _, err := provider.SignIn(ctx, "alice@example.com", "password123")
		assert.ErrorIs(t, err, auth.ErrWrongCredential)

		_, _, err = provider.SignIn(ctx, "alice@example.com", "newpassword123")
		assert.NoError(t, err)
	})
}

func TestProvider_CurrentUser(t *testing.T) {
	provider := newTestProvider(t)
	ctx := context.Background()

	user, token, err := provider.SignUp(ctx, "alice", "alice@example.com", "password123", models.RoleSeller)
	require.NoError(t, err)

	t.Run("有效 token", func(t *testing.T) {
		got, err := provider.CurrentUser(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.Equal(t, models.RoleSeller, got.Role)
	})
	t.Run("無效 token", func(t *testing.T) {
		_, err := provider.CurrentUser(ctx, "not-a-token")
		assert.ErrorIs(t, err, auth.ErrInvalidToken)
	})
	t.Run("使用者已不存在", func(t *testing.T) {
		orphan := &models.User{ID: uuid.New(), Username: "ghost", Role: models.RoleBidder}
		orphanToken, err := auth.IssueToken([]byte("test-secret"), orphan, time.Hour)
		require.NoError(t, err)

		_, err = provider.CurrentUser(ctx, orphanToken)
		assert.ErrorIs(t, err, auth.ErrUserNotFound)
	})
}
