package repository

import (
	"encoding/json"
	"errors"
	"time"

	"facegate/internal/core/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Repository defines the event-history persistence operations.
type Repository interface {
	// Access events
	SaveAccessEvent(event *models.AccessEvent) error
	GetAccessEvents(limit, offset int) ([]models.AccessEvent, int64, error)
	GetAccessEventsByNationalID(nationalID string, limit int) ([]models.AccessEvent, error)

	// Admin events
	SaveAdminEvent(event *models.AdminEvent) error
	GetAdminEvents(limit, offset int) ([]models.AdminEvent, int64, error)

	// Statistics
	GetStatistics() (models.Statistics, error)
}

// SQLiteRepository implements Repository on the gorm connection.
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository creates a repository over an open connection.
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// SaveAccessEvent persists one access decision.
func (r *SQLiteRepository) SaveAccessEvent(event *models.AccessEvent) error {
	return r.db.Save(event).Error
}

// GetAccessEvents returns access events newest first, with pagination.
func (r *SQLiteRepository) GetAccessEvents(limit, offset int) ([]models.AccessEvent, int64, error) {
	var events []models.AccessEvent
	var total int64

	if err := r.db.Model(&models.AccessEvent{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := r.db.Order("granted_at DESC").Limit(limit).Offset(offset).Find(&events).Error
	return events, total, err
}

// GetAccessEventsByNationalID returns the latest access events of one person.
func (r *SQLiteRepository) GetAccessEventsByNationalID(nationalID string, limit int) ([]models.AccessEvent, error) {
	var events []models.AccessEvent
	err := r.db.Where("national_id = ?", nationalID).
		Order("granted_at DESC").Limit(limit).Find(&events).Error
	return events, err
}

// SaveAdminEvent persists one administration action.
func (r *SQLiteRepository) SaveAdminEvent(event *models.AdminEvent) error {
	return r.db.Save(event).Error
}

// GetAdminEvents returns admin events newest first, with pagination.
func (r *SQLiteRepository) GetAdminEvents(limit, offset int) ([]models.AdminEvent, int64, error) {
	var events []models.AdminEvent
	var total int64

	if err := r.db.Model(&models.AdminEvent{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := r.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&events).Error
	return events, total, err
}

// GetStatistics summarizes the recorded history.
func (r *SQLiteRepository) GetStatistics() (models.Statistics, error) {
	var stats models.Statistics

	if err := r.db.Model(&models.AccessEvent{}).Count(&stats.TotalGrants).Error; err != nil {
		return stats, err
	}
	if err := r.db.Model(&models.AdminEvent{}).Count(&stats.TotalAdminEvents).Error; err != nil {
		return stats, err
	}

	var last models.AccessEvent
	result := r.db.Order("granted_at DESC").First(&last)
	if result.Error == nil {
		t := last.GrantedAt
		stats.LastGrantAt = &t
	} else if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return stats, result.Error
	}
	return stats, nil
}

// RecordAccess persists a grant, logging instead of failing the caller.
func (r *SQLiteRepository) RecordAccess(nationalID, displayName, tier string, distance float64, grantedAt time.Time) {
	event := &models.AccessEvent{
		NationalID:  nationalID,
		DisplayName: displayName,
		Tier:        tier,
		Distance:    distance,
		GrantedAt:   grantedAt,
	}
	if err := r.SaveAccessEvent(event); err != nil {
		log.Errorf("Failed to record access event: %v", err)
	}
}

// RecordAdmin persists an administration action. Satisfies the admin
// workflows' Auditor; failures are logged, never propagated into the
// workflow result.
func (r *SQLiteRepository) RecordAdmin(action, nationalID string, detail map[string]interface{}) {
	var payload datatypes.JSON
	if detail != nil {
		data, err := json.Marshal(detail)
		if err != nil {
			log.Warnf("Failed to encode admin event detail: %v", err)
		} else {
			payload = datatypes.JSON(data)
		}
	}
	event := &models.AdminEvent{
		Action:     action,
		NationalID: nationalID,
		Detail:     payload,
	}
	if err := r.SaveAdminEvent(event); err != nil {
		log.Errorf("Failed to record admin event: %v", err)
	}
}
