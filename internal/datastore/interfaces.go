// interfaces.go: this code defines the interface for the database operations
package datastore

import (
	"strings"
	"time"

	"github.com/platewatch/platewatch-go/internal/conf"
	"github.com/platewatch/platewatch-go/internal/errors"
	"gorm.io/gorm"
)

// Interface abstracts the underlying database implementation and defines the
// operations the rest of the application may perform.
type Interface interface {
	Open() error
	Close() error

	// Detections are append-only, there is no update or delete.
	SaveDetection(detection *Detection) error
	GetDetection(id uint) (Detection, error)
	SearchDetections(filter *DetectionFilter) ([]Detection, error)
	CountDetections(filter *DetectionFilter) (int64, error)
	DetectionStats() (DetectionStats, error)

	// Blacklist registry. Lookup by plate is an exact, case-sensitive match.
	GetBlacklistEntryByPlate(plate string) (*BlacklistEntry, error)
	GetAllBlacklistEntries() ([]BlacklistEntry, error)
	AddBlacklistEntry(entry *BlacklistEntry) error
	DeleteBlacklistEntry(id uint) error
}

// DataStore implements Interface using a GORM database.
type DataStore struct {
	DB *gorm.DB // GORM database instance
}

// New creates a new datastore instance based on the provided configuration.
// Returns nil if no database output is enabled.
func New(settings *conf.Settings) Interface {
	switch {
	case settings.Output.SQLite.Enabled:
		return &SQLiteStore{
			Settings: settings,
		}
	case settings.Output.MySQL.Enabled:
		return &MySQLStore{
			Settings: settings,
		}
	default:
		return nil
	}
}

// SaveDetection inserts a single detection row. Row writes are serialized by
// the database itself, no application level locking is applied.
func (ds *DataStore) SaveDetection(detection *Detection) error {
	if ds.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	if err := ds.DB.Create(detection).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("plate_number", detection.PlateNumber).
			Build()
	}

	getLogger().Debug("detection saved",
		"id", detection.ID,
		"plate_number", detection.PlateNumber,
		"blacklisted", detection.BlacklistFlag)
	return nil
}

// GetDetection retrieves a single detection by id, preloading its blacklist entry.
func (ds *DataStore) GetDetection(id uint) (Detection, error) {
	var detection Detection
	if err := ds.DB.Preload("Blacklist").First(&detection, id).Error; err != nil {
		return Detection{}, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("detection_id", id).
			Build()
	}
	return detection, nil
}

// applyDetectionFilter builds the WHERE clause shared by search and count.
func applyDetectionFilter(query *gorm.DB, filter *DetectionFilter) *gorm.DB {
	if filter == nil {
		return query
	}
	if filter.Plate != "" {
		query = query.Where("plate_number LIKE ?", "%"+filter.Plate+"%")
	}
	if filter.StartDate != nil {
		query = query.Where("timestamp >= ?", *filter.StartDate)
	}
	if filter.EndDate != nil {
		query = query.Where("timestamp <= ?", *filter.EndDate)
	}
	if filter.Blacklisted != nil {
		query = query.Where("blacklist_flag = ?", *filter.Blacklisted)
	}
	if filter.CameraID != nil {
		query = query.Where("camera_id = ?", *filter.CameraID)
	}
	return query
}

// SearchDetections returns detections matching the filter, newest first.
func (ds *DataStore) SearchDetections(filter *DetectionFilter) ([]Detection, error) {
	var detections []Detection

	query := applyDetectionFilter(ds.DB.Model(&Detection{}), filter).
		Preload("Blacklist").
		Order("timestamp DESC")

	if filter != nil && filter.Limit > 0 {
		query = query.Limit(filter.Limit).Offset(filter.Offset)
	}

	if err := query.Find(&detections).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return detections, nil
}

// CountDetections returns the total number of detections matching the filter.
func (ds *DataStore) CountDetections(filter *DetectionFilter) (int64, error) {
	var count int64
	if err := applyDetectionFilter(ds.DB.Model(&Detection{}), filter).Count(&count).Error; err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return count, nil
}

// DetectionStats summarizes the detection table for the dashboard.
func (ds *DataStore) DetectionStats() (DetectionStats, error) {
	var stats DetectionStats

	if err := ds.DB.Model(&Detection{}).Count(&stats.TotalDetections).Error; err != nil {
		return stats, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}
	if err := ds.DB.Model(&Detection{}).Where("blacklist_flag = ?", true).
		Count(&stats.BlacklistedCount).Error; err != nil {
		return stats, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}

	startOfDay := time.Now().Truncate(24 * time.Hour)
	if err := ds.DB.Model(&Detection{}).Where("timestamp >= ?", startOfDay).
		Count(&stats.TodayCount).Error; err != nil {
		return stats, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}

	if err := ds.DB.Where("blacklist_flag = ?", true).
		Order("timestamp DESC").Limit(5).
		Find(&stats.RecentAlerts).Error; err != nil {
		return stats, errors.New(err).Component("datastore").Category(errors.CategoryDatabase).Build()
	}

	return stats, nil
}

// GetBlacklistEntryByPlate looks up a blacklist entry by exact plate number.
// The incoming plate text is compared as-is, entries themselves are stored
// uppercased. Returns nil without error when no entry matches.
func (ds *DataStore) GetBlacklistEntryByPlate(plate string) (*BlacklistEntry, error) {
	var entry BlacklistEntry
	err := ds.DB.Where("plate_number = ?", plate).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("plate_number", plate).
			Build()
	}
	return &entry, nil
}

// GetAllBlacklistEntries returns all blacklist entries, newest first.
func (ds *DataStore) GetAllBlacklistEntries() ([]BlacklistEntry, error) {
	var entries []BlacklistEntry
	if err := ds.DB.Order("added_at DESC").Find(&entries).Error; err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return entries, nil
}

// AddBlacklistEntry inserts a new blacklist entry, normalizing the plate
// number to uppercase. The unique index on plate_number rejects duplicates.
func (ds *DataStore) AddBlacklistEntry(entry *BlacklistEntry) error {
	entry.PlateNumber = strings.ToUpper(entry.PlateNumber)

	if err := ds.DB.Create(entry).Error; err != nil {
		category := errors.CategoryDatabase
		if isUniqueConstraintError(err) {
			category = errors.CategoryConflict
		}
		return errors.New(err).
			Component("datastore").
			Category(category).
			Context("plate_number", entry.PlateNumber).
			Build()
	}
	return nil
}

// DeleteBlacklistEntry removes a blacklist entry by id. Existing detections
// keep their BlacklistID reference, history is not rewritten.
func (ds *DataStore) DeleteBlacklistEntry(id uint) error {
	result := ds.DB.Delete(&BlacklistEntry{}, id)
	if result.Error != nil {
		return errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("blacklist_id", id).
			Build()
	}
	if result.RowsAffected == 0 {
		return errors.Newf("blacklist entry %d not found", id).
			Component("datastore").
			Category(errors.CategoryNotFound).
			Build()
	}
	return nil
}

// isUniqueConstraintError detects duplicate-key failures across the SQLite
// and MySQL drivers without importing either driver here.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate entry") ||
		strings.Contains(msg, "constraint failed")
}
