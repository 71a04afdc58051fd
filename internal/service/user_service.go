package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"payvia/internal/core/domain"
	"payvia/internal/core/ports"
	"payvia/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Ugandan MSISDN in international format without the plus sign.
var phonePattern = regexp.MustCompile(`^256\d{9}$`)

// UserServiceImpl implements ports.UserService.
type UserServiceImpl struct {
	users    ports.UserRepository
	ledger   ports.LedgerService
	hashSvc  ports.HashService
	tokenSvc ports.TokenService
	log      zerolog.Logger
}

// NewUserService creates a new UserServiceImpl.
func NewUserService(
	users ports.UserRepository,
	ledger ports.LedgerService,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	log zerolog.Logger,
) *UserServiceImpl {
	return &UserServiceImpl{
		users:    users,
		ledger:   ledger,
		hashSvc:  hashSvc,
		tokenSvc: tokenSvc,
		log:      log,
	}
}

// Register creates a wallet holder and opens their stablecoin account.
func (s *UserServiceImpl) Register(ctx context.Context, phone, password string) (*ports.RegisterResult, error) {
	if !phonePattern.MatchString(phone) {
		return nil, apperror.Validation("phone must be in international format, e.g. 256772123456")
	}
	if len(password) < 8 {
		return nil, apperror.Validation("password must be at least 8 characters")
	}

	existing, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("check phone: %w", err))
	}
	if existing != nil {
		return nil, apperror.ErrPhoneExists()
	}

	passwordHash, err := s.hashSvc.Hash(password)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("hash password: %w", err))
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Phone:        phone,
		PasswordHash: passwordHash,
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create user: %w", err))
	}

	account, err := s.ledger.OpenAccount(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("user_id", user.ID.String()).Msg("user registered")
	return &ports.RegisterResult{User: user, Account: account}, nil
}

// Login verifies credentials and issues a JWT.
func (s *UserServiceImpl) Login(ctx context.Context, phone, password string) (string, time.Time, error) {
	user, err := s.users.GetByPhone(ctx, phone)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("get user: %w", err))
	}
	if user == nil {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	valid, err := s.hashSvc.Verify(password, user.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	if !valid {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiresAt, err := s.tokenSvc.Generate(user.ID, user.Phone)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}
	return token, expiresAt, nil
}

// Verify marks a user as KYC-verified.
func (s *UserServiceImpl) Verify(ctx context.Context, userID uuid.UUID) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get user: %w", err))
	}
	if user == nil {
		return apperror.ErrNotFound("user")
	}
	if err := s.users.SetVerified(ctx, userID); err != nil {
		return apperror.InternalError(fmt.Errorf("set verified: %w", err))
	}
	s.log.Info().Str("user_id", userID.String()).Msg("user verified")
	return nil
}
