package postgres

import (
	"context"
	"testing"
	"time"

	"payvia/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUser() *domain.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.User{
		ID:           uuid.New(),
		Phone:        "256772123456",
		PasswordHash: "$argon2id$v=19$m=65536,t=1,p=4$salt$hash",
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func userRow(u *domain.User) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "phone", "password_hash", "verified", "created_at", "updated_at"}).
		AddRow(u.ID, u.Phone, u.PasswordHash, u.Verified, u.CreatedAt, u.UpdatedAt)
}

func TestUserRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	u := newTestUser()

	mock.ExpectExec("INSERT INTO users").
		WithArgs(u.ID, u.Phone, u.PasswordHash, u.Verified, u.CreatedAt, u.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, repo.Create(context.Background(), u))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByPhone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	u := newTestUser()

	mock.ExpectQuery("SELECT .+ FROM users WHERE phone").
		WithArgs(u.Phone).
		WillReturnRows(userRow(u))

	got, err := repo.GetByPhone(context.Background(), u.Phone)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
}

func TestUserRepo_GetByPhone_MissReturnsNil(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM users WHERE phone").
		WithArgs("256700000000").
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	got, err := repo.GetByPhone(context.Background(), "256700000000")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestUserRepo_SetVerified(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewUserRepo(mock)
	id := uuid.New()

	mock.ExpectExec("UPDATE users SET verified").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.SetVerified(context.Background(), id))

	mock.ExpectExec("UPDATE users SET verified").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.SetVerified(context.Background(), id)
	assert.Error(t, err)
}
