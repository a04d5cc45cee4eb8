package auth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mhrivnak/orderflow/pkg/database/models"
	"github.com/mhrivnak/orderflow/pkg/database/repositories"
	"github.com/mhrivnak/orderflow/pkg/errdef"
)

var (
	// ErrInvalidCredentials is returned when login credentials are incorrect
	ErrInvalidCredentials = errdef.NewUnauthorized("invalid credentials")
	// ErrUserInactive is returned when attempting to authenticate with an inactive user account
	ErrUserInactive = errdef.NewUnauthorized("user account is inactive")
)

// Service provides login and account creation
type Service struct {
	userRepo   *repositories.UserRepository
	jwtManager *JWTManager
	log        logrus.FieldLogger
}

func NewService(userRepo *repositories.UserRepository, jwtManager *JWTManager, log logrus.FieldLogger) *Service {
	return &Service{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		log:        log,
	}
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      UserInfo  `json:"user"`
}

// UserInfo represents basic user information returned in authentication responses
type UserInfo struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	IsSuperAdmin bool      `json:"is_super_admin"`
}

type CreateUserRequest struct {
	Username     string `json:"username" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password" binding:"required,min=8"`
	FullName     string `json:"full_name"`
	IsSuperAdmin bool   `json:"is_super_admin"`
}

// Login authenticates a user with username/password and returns a JWT token if successful
func (s *Service) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if req == nil {
		return nil, errors.New("login request cannot be nil")
	}
	log := s.log.WithField("username", req.Username)

	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if err != nil {
		if errdef.IsNotFound(err) {
			log.Info("Login for unknown user")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive {
		log.Info("Login for inactive user")
		return nil, ErrUserInactive
	}
	if !user.CheckPassword(req.Password) {
		log.Info("Login with invalid password")
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.jwtManager.Generate(user)
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Token: token, ExpiresAt: expiresAt, User: NewUserInfo(user)}, nil
}

func NewUserInfo(user *models.User) UserInfo {
	return UserInfo{
		ID:           user.ID,
		Username:     user.Username,
		Email:        user.Email,
		FullName:     user.FullName,
		IsSuperAdmin: user.IsSuperAdmin,
	}
}

// CreateUser creates an active account. Usernames and e-mail addresses are unique.
func (s *Service) CreateUser(ctx context.Context, req *CreateUserRequest) (*models.User, error) {
	if req == nil {
		return nil, errors.New("create user request cannot be nil")
	}
	if _, err := s.userRepo.GetByUsername(ctx, req.Username); err == nil {
		return nil, errdef.NewDuplicated("user %q already exists", req.Username)
	} else if !errdef.IsNotFound(err) {
		return nil, err
	}
	if _, err := s.userRepo.GetByEmail(ctx, req.Email); err == nil {
		return nil, errdef.NewDuplicated("a user with e-mail %q already exists", req.Email)
	} else if !errdef.IsNotFound(err) {
		return nil, err
	}

	user := &models.User{
		Username:     req.Username,
		Email:        req.Email,
		FullName:     req.FullName,
		IsActive:     true,
		IsSuperAdmin: req.IsSuperAdmin,
	}
	if err := user.SetPassword(req.Password); err != nil {
		return nil, err
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.log.WithField("username", user.Username).Info("Created user")
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return s.userRepo.GetByID(ctx, userID)
}
