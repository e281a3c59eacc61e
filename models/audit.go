package models

import (
	"fmt"
	"time"
)

const (
	ActionUpload  = "upload"
	ActionEdit    = "edit"
	ActionDelete  = "delete"
	ActionCleanup = "cleanup"
)

const TargetForm = "form"

// AuditLog rows are only ever inserted.
type AuditLog struct {
	ID         uint      `gorm:"primaryKey"`
	CreatedAt  time.Time `gorm:"index"`
	Username   string    `gorm:"size:100;not null;index"`
	Action     string    `gorm:"size:50;not null"`
	TargetType string    `gorm:"size:50"`
	TargetID   uint      `gorm:"index"`
	Details    string    `gorm:"type:text"`
}

// AuditEntry is the wire shape of an audit log row.
type AuditEntry struct {
	ID        uint      `json:"id"`
	User      string    `json:"user"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Timestamp time.Time `json:"timestamp"`
	Details   string    `json:"details"`
}

func (a *AuditLog) Target() string {
	if a.TargetType == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", a.TargetType, a.TargetID)
}

func (a *AuditLog) Entry() AuditEntry {
	return AuditEntry{
		ID:        a.ID,
		User:      a.Username,
		Action:    a.Action,
		Target:    a.Target(),
		Timestamp: a.CreatedAt,
		Details:   a.Details,
	}
}
