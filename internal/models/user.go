package models

import (
	"fmt"
	"time"
)

// Role is the authority granted to a user.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// ParseRole converts s into a known role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleUser, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// User represents a user in the system
type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"` // Not serialized
	Role           Role      `json:"role"`
	CardHolderName string    `json:"cardHolderName,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// UserView is the user shape returned to API callers.
type UserView struct {
	ID             int64  `json:"id"`
	Username       string `json:"username"`
	Role           Role   `json:"role"`
	CardHolderName string `json:"cardHolderName,omitempty"`
}

// View projects u without credentials.
func (u User) View() UserView {
	return UserView{ID: u.ID, Username: u.Username, Role: u.Role, CardHolderName: u.CardHolderName}
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
}
