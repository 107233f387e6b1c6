package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/telecare/telecare/internal/platform/auth"
)

// User is an account of any role. Doctor-only fields are empty for others.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         auth.Role `json:"role"`
	Name         string    `json:"name"`
	Mobile       string    `json:"mobile,omitempty"`
	Specialist   string    `json:"specialist,omitempty"`
	Description  string    `json:"description,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Actor returns the identity the user acts as once authenticated.
func (u *User) Actor() auth.Actor {
	return auth.Actor{ID: u.ID, Role: u.Role}
}

// NewUser is the input to account creation.
type NewUser struct {
	Username    string    `json:"username"`
	Password    string    `json:"password"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Mobile      string    `json:"mobile"`
	Role        auth.Role `json:"role"`
	Specialist  string    `json:"specialist"`
	Description string    `json:"description"`
}

// Session is returned on a successful login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}
