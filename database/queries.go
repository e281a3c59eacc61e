package database

import (
	"exceptionforms/models"

	"gorm.io/gorm"
)

// FormTypeScope restricts a form query to one form type. The hourly view
// also includes records stored without a form type.
func FormTypeScope(ft models.FormType) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		switch ft {
		case models.FormTypeHourly:
			return db.Where("(form_records.form_type = ? OR form_records.form_type = '' OR form_records.form_type IS NULL)", ft)
		case models.FormTypeSupervisor:
			return db.Where("form_records.form_type = ?", ft)
		}
		return db
	}
}

// ModeScope restricts a form query to the records visible under mode.
func ModeScope(mode models.ExtractionMode) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		stored := models.StoredModes(mode)
		if stored == nil {
			return db
		}
		if mode == models.ModeMapped {
			return db.Where("(form_records.extraction_mode IN ? OR form_records.extraction_mode IS NULL)", stored)
		}
		return db.Where("form_records.extraction_mode IN ?", stored)
	}
}

// RecordAudit appends one audit entry using db, which is usually the
// transaction that performed the mutation.
func RecordAudit(db *gorm.DB, username, action, targetType string, targetID uint, details string) error {
	return db.Create(&models.AuditLog{
		Username:   username,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Details:    details,
	}).Error
}

// RecentAudit returns at most limit audit entries, newest first.
func RecentAudit(db *gorm.DB, limit int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	err := db.Order("created_at desc, id desc").Limit(limit).Find(&logs).Error
	return logs, err
}
