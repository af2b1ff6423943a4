package domain

import "time"

// Role identifies what a user is allowed to do.
type Role string

const (
	RoleVolunteer Role = "volunteer"
	RoleOrganizer Role = "organizer"
)

// User is an account known to the platform.
type User struct {
	ID           string
	Username     string
	Email        string
	Role         Role
	PasswordHash []byte
	CreatedAt    time.Time
}
