package model

import "time"

// User is an account that owns role bindings and schedules. The engine never
// mutates users; they exist so the API layer can scope everything it serves.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// RoleBinding is a stored reference letting the engine act on a user's
// behalf via delegated credentials. At most one binding is active per user;
// the store's ReplaceRoleBinding enforces that on write.
type RoleBinding struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	RoleARN   string    `json:"role_arn"`
	Region    string    `json:"region"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Instance is the inventory projection of a cloud compute instance.
type Instance struct {
	ID    string `json:"id"`
	State string `json:"state"`
	Type  string `json:"type"`
	Name  string `json:"name"`
}
