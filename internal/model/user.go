package model

import "time"

// User roles. Only RoleAdmin may reach the system API.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User is an account that can sign in to the admin API. The first account
// ever registered is promoted to admin; later ones default to plain users.
// Passwords are stored as bcrypt hashes.
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	PasswordHash string    `json:"-" db:"password_hash"` // bcrypt hash, never expose
	Role         string    `json:"role" db:"role"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
