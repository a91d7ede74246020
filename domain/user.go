package domain

import "time"

type Role string

const (
	RoleStandard Role = "standard"
	RoleManager  Role = "manager"
)

func (r Role) Valid() bool {
	return r == RoleStandard || r == RoleManager
}

type User struct {
	ID           int64     `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	PasswordHash string    `json:"-" db:"password_hash"`
	Role         Role      `json:"role" db:"role"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}
