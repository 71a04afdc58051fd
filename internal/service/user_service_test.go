package service

import (
	"context"
	"testing"
	"time"

	"payvia/internal/adapter/storage/memory"
	"payvia/internal/core/ports"
	"payvia/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type userTestDeps struct {
	svc      *UserServiceImpl
	users    *memory.UserRepository
	hashSvc  *mocks.MockHashService
	tokenSvc *mocks.MockTokenService
	ctrl     *gomock.Controller
}

func setupUserService(t *testing.T) *userTestDeps {
	t.Helper()
	ctrl := gomock.NewController(t)
	users := memory.NewUserRepository()
	ledger := NewLedgerService(memory.NewLedgerStore(), zerolog.Nop())
	hashSvc := mocks.NewMockHashService(ctrl)
	tokenSvc := mocks.NewMockTokenService(ctrl)

	return &userTestDeps{
		svc:      NewUserService(users, ledger, hashSvc, tokenSvc, zerolog.Nop()),
		users:    users,
		hashSvc:  hashSvc,
		tokenSvc: tokenSvc,
		ctrl:     ctrl,
	}
}

func TestUserService_Register_Success(t *testing.T) {
	d := setupUserService(t)
	defer d.ctrl.Finish()

	d.hashSvc.EXPECT().Hash("secret-pass").Return("$argon2id$hash", nil)

	result, err := d.svc.Register(context.Background(), "256772123456", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, "256772123456", result.User.Phone)
	assert.False(t, result.User.Verified)
	require.NotNil(t, result.Account)
	assert.Equal(t, result.User.ID, result.Account.UserID)
	assert.True(t, result.Account.Available.IsZero())
}

func TestUserService_Register_DuplicatePhone(t *testing.T) {
	d := setupUserService(t)
	defer d.ctrl.Finish()

	d.hashSvc.EXPECT().Hash(gomock.Any()).Return("$argon2id$hash", nil)
	_, err := d.svc.Register(context.Background(), "256772123456", "secret-pass")
	require.NoError(t, err)

	_, err = d.svc.Register(context.Background(), "256772123456", "other-pass")
	require.Error(t, err)
	assert.Equal(t, "AUTH_002", appCode(t, err))
}

func TestUserService_Register_Validation(t *testing.T) {
	d := setupUserService(t)
	defer d.ctrl.Finish()

	tests := []struct {
		name     string
		phone    string
		password string
	}{
		{"short password", "256772123456", "short"},
		{"local phone format", "0772123456", "secret-pass"},
		{"non-numeric phone", "2567abc23456", "secret-pass"},
		{"wrong country code", "254772123456", "secret-pass"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.svc.Register(context.Background(), tt.phone, tt.password)
			require.Error(t, err)
			assert.Equal(t, "SYS_002", appCode(t, err))
		})
	}
}

func TestUserService_Login_Success(t *testing.T) {
	d := setupUserService(t)
	defer d.ctrl.Finish()

	d.hashSvc.EXPECT().Hash("secret-pass").Return("$argon2id$hash", nil)
	result, err := d.svc.Register(context.Background(), "256772123456", "secret-pass")
	require.NoError(t, err)

	expiry := time.Now().Add(time.Hour)
	d.hashSvc.EXPECT().Verify("secret-pass", "$argon2id$hash").Return(true, nil)
	d.tokenSvc.EXPECT().Generate(result.User.ID, "256772123456").Return("jwt-token", expiry, nil)

	token, expiresAt, err := d.svc.Login(context.Background(), "256772123456", "secret-pass")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", token)
	assert.Equal(t, expiry, expiresAt)
}

func TestUserService_Login_WrongPassword(t *testing.T) {
	d := setupUserService(t)
	defer d.ctrl.Finish()

	d.hashSvc.EXPECT().Hash(gomock.Any()).Return("$argon2id$hash", nil)
	_, err := d.svc.Register(context.Background(), "256772123456", "secret-pass")
	require.NoError(t, err)

	d.hashSvc.EXPECT().Verify("wrong", "$argon2id$hash").Return(false, nil)

	_, _, err = d.svc.Login(context.Background(), "256772123456", "wrong")
	require.Error(t, err)
	assert.Equal(t, "AUTH_001", appCode(t, err))
}

func TestUserService_Login_UnknownPhone(t *testing.T) {
	d := setupUserService(t)
	defer d.ctrl.Finish()

	_, _, err := d.svc.Login(context.Background(), "256700000000", "whatever")
	require.Error(t, err)
	assert.Equal(t, "AUTH_001", appCode(t, err))
}

func TestUserService_Verify(t *testing.T) {
	d := setupUserService(t)
	defer d.ctrl.Finish()

	d.hashSvc.EXPECT().Hash(gomock.Any()).Return("$argon2id$hash", nil)
	result, err := d.svc.Register(context.Background(), "256772123456", "secret-pass")
	require.NoError(t, err)

	require.NoError(t, d.svc.Verify(context.Background(), result.User.ID))

	user, err := d.users.GetByID(context.Background(), result.User.ID)
	require.NoError(t, err)
	assert.True(t, user.Verified)
}

func TestUserService_Verify_UnknownUser(t *testing.T) {
	d := setupUserService(t)
	defer d.ctrl.Finish()

	err := d.svc.Verify(context.Background(), uuid.New())
	require.Error(t, err)
	assert.Equal(t, "LED_004", appCode(t, err))
}

var _ ports.UserService = (*UserServiceImpl)(nil)
