package gormstore

import "time"

// User is a row of users. Email is stored lowercased.
type User struct {
	ID                string `gorm:"primaryKey"`
	Email             string `gorm:"uniqueIndex:ux_users_email;not null"`
	EmailConfirmed    bool   `gorm:"not null;default:false"`
	PasswordHash      string `gorm:"not null"`
	TwoFactorEnabled  bool   `gorm:"not null;default:false"`
	TOTPSecret        []byte `gorm:"column:totp_secret"`
	FailedAccessCount int    `gorm:"not null;default:0"`
	LockoutEnd        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (User) TableName() string { return "users" }

// RecoveryCode stores the SHA-256 of one recovery code.
type RecoveryCode struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index"`
	CodeHash  []byte `gorm:"not null"`
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (RecoveryCode) TableName() string { return "recovery_codes" }

type UserRole struct {
	UserID string `gorm:"primaryKey"`
	Role   string `gorm:"primaryKey"`
}

func (UserRole) TableName() string { return "user_roles" }
