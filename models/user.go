package models

import (
	"time"

	"gorm.io/gorm"
)

type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleReviewer Role = "REVIEWER"
)

type User struct {
	ID                 uint           `gorm:"primaryKey" json:"id"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
	Username           string         `gorm:"uniqueIndex;not null;size:100" json:"username"`
	FullName           string         `gorm:"size:200" json:"full_name"`
	PasswordHash       string         `gorm:"not null" json:"-"`
	Role               Role           `gorm:"not null;size:20" json:"role"`
	MustChangePassword bool           `json:"must_change_password"`
	ExtractionMode     ExtractionMode `gorm:"size:20" json:"extraction_mode"`
}

// UserInfo is the public view of a user returned at login.
type UserInfo struct {
	ID                 uint   `json:"id"`
	Name               string `json:"name"`
	Username           string `json:"username"`
	Role               Role   `json:"role"`
	MustChangePassword bool   `json:"must_change_password"`
}

func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}

func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Mode returns the user's active extraction mode, defaulting to mapped.
func (u *User) Mode() ExtractionMode {
	if u.ExtractionMode == ModePure {
		return ModePure
	}
	return ModeMapped
}

func (u *User) Info() UserInfo {
	return UserInfo{
		ID:                 u.ID,
		Name:               u.DisplayName(),
		Username:           u.Username,
		Role:               u.Role,
		MustChangePassword: u.MustChangePassword,
	}
}
