package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/messageapi/apiserver/internal/store"
	"github.com/messageapi/apiserver/types"
	"golang.org/x/crypto/bcrypt"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByUsername(ctx context.Context, username string) (types.User, error)
	Create(ctx context.Context, user types.User) (types.User, error)
}

// UserService registers accounts and verifies credentials.
type UserService struct {
	repo UserRepository
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

// UserOption configures a UserService.
type UserOption func(*UserService)

// WithBcryptCost overrides bcrypt.DefaultCost. Values outside bcrypt's
// accepted range are ignored.
func WithBcryptCost(cost int) UserOption {
	return func(s *UserService) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.cost = cost
		}
	}
}

func NewUserService(repo UserRepository, opts ...UserOption) *UserService {
	s := &UserService{repo: repo, cost: bcrypt.DefaultCost}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates an account with a bcrypt hash of password.
func (s *UserService) Register(ctx context.Context, username, password string) (types.User, error) {
	if err := validateName(username); err != nil {
		return types.User{}, err
	}
	if password == "" {
		return types.User{}, ErrInvalidInput
	}

	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return types.User{}, ErrAlreadyExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return types.User{}, fmt.Errorf("check user: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return types.User{}, fmt.Errorf("%w: password longer than 72 bytes", ErrInvalidInput)
		}
		return types.User{}, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repo.Create(ctx, types.User{
		Username:     username,
		PasswordHash: string(hashed),
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return types.User{}, ErrAlreadyExists
		}
		if errors.Is(err, store.ErrValueTooLong) {
			return types.User{}, fmt.Errorf("%w: username too long", ErrInvalidInput)
		}
		return types.User{}, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Verify returns the user when password matches the stored hash.
//
// Unknown users still pay for one bcrypt comparison so response time does not
// reveal which usernames exist.
func (s *UserService) Verify(ctx context.Context, username, password string) (types.User, error) {
	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummy(), []byte(password))
			return types.User{}, ErrInvalidCredentials
		}
		return types.User{}, fmt.Errorf("load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return types.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *UserService) dummy() []byte {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), s.cost)
	})
	return s.dummyHash
}
