package users

import (
	"time"

	"github.com/google/uuid"
)

// User matches the users table schema. IsAdmin mirrors the privileged flag
// on the in-memory budget state so it survives restarts.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsAdmin      bool      `json:"is_admin"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
