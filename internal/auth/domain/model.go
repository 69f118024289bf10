// Package domain contains core types for admin authentication.
package domain

import "time"

type Role string

const (
	RoleOwner Role = "owner"
	RoleStaff Role = "staff"
)

func (r Role) Valid() bool {
	return r == RoleOwner || r == RoleStaff
}

// AdminUser is a back office account.
type AdminUser struct {
	ID           int64      `gorm:"primaryKey"`
	Email        string     `gorm:"column:email;type:text;not null;uniqueIndex"`
	Name         string     `gorm:"column:name;type:text;not null;default:''"`
	PasswordHash string     `gorm:"column:password_hash;type:text;not null"`
	Role         Role       `gorm:"column:role;type:text;not null;default:'staff'"`
	IsActive     bool       `gorm:"column:is_active;not null;default:true"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at"`
	CreatedAt    time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt    time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AdminUser) TableName() string { return "admin_users" }

// Subject is the casbin subject for the user.
func (u AdminUser) Subject() string {
	return "admin:" + u.Email
}
