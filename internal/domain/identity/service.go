package identity

import (
	"context"
	"errors"
	"net/mail"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/telecare/telecare/internal/platform/apperr"
	"github.com/telecare/telecare/internal/platform/auth"
)

// ErrInvalidCredentials is returned by Login for an unknown username or a
// wrong password alike.
var ErrInvalidCredentials = errors.New("invalid username or password")

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,50}$`)

type Service struct {
	users  Repository
	tokens *auth.TokenIssuer
}

func NewService(users Repository, tokens *auth.TokenIssuer) *Service {
	return &Service{users: users, tokens: tokens}
}

// Register creates a patient account. Staff accounts go through CreateUser.
func (s *Service) Register(ctx context.Context, in NewUser) (*User, error) {
	if in.Role != "" && in.Role != auth.RolePatient {
		return nil, apperr.Validation("only patient accounts can be self-registered")
	}
	in.Role = auth.RolePatient
	return s.CreateUser(ctx, in)
}

// CreateUser creates an account of any role.
func (s *Service) CreateUser(ctx context.Context, in NewUser) (*User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)

	if !usernamePattern.MatchString(in.Username) {
		return nil, apperr.Validation("username must be 3-50 letters, digits, '.', '_' or '-'")
	}
	if in.Name == "" {
		return nil, apperr.Validation("name is required")
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return nil, apperr.Validation("invalid email address")
	}
	role, err := auth.ParseRole(string(in.Role))
	if err != nil {
		return nil, apperr.Validation("%s", err.Error())
	}
	hash, err := auth.HashPassword(in.Password)
	if errors.Is(err, auth.ErrPasswordTooShort) || errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, apperr.Validation("%s", err.Error())
	}
	if err != nil {
		return nil, err
	}

	u := &User{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         role,
		Name:         in.Name,
		Mobile:       strings.TrimSpace(in.Mobile),
	}
	if role == auth.RoleDoctor {
		u.Specialist = strings.TrimSpace(in.Specialist)
		u.Description = strings.TrimSpace(in.Description)
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Login verifies the password and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (*Session, error) {
	u, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(u.Actor())
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, User: u}, nil
}

func (s *Service) Me(ctx context.Context, actor auth.Actor) (*User, error) {
	return s.users.GetByID(ctx, actor.ID)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.ListByRole(ctx, auth.RoleDoctor, limit, offset)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}
