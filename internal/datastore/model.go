// model.go this code defines the data model for the application
package datastore

import "time"

// Camera represents a registered camera. Reference data only, detections
// point at it by id.
type Camera struct {
	ID    uint   `gorm:"primaryKey" json:"id"`
	Label string `gorm:"type:varchar(100)" json:"label"`
}

// BlacklistEntry represents a plate number flagged for alerting.
// PlateNumber is normalized to uppercase at insertion time and unique.
type BlacklistEntry struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	PlateNumber string    `gorm:"uniqueIndex;not null;type:varchar(32)" json:"plateNumber"`
	Notes       string    `gorm:"type:text" json:"notes,omitempty"`
	AddedAt     time.Time `gorm:"index;autoCreateTime" json:"addedAt"`
}

// Detection represents one persisted record of a recognized plate from one
// submitted image. Append-only, never updated or deleted by the pipeline.
// PlateNumber is stored exactly as returned by the recognition engine.
type Detection struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	PlateNumber string          `gorm:"index:idx_detections_plate;type:varchar(32)" json:"plateNumber"`
	CameraID    uint            `gorm:"index" json:"cameraId"`
	ImagePath   string          `json:"imagePath"` // blob name, not a full filesystem path
	VideoPath   *string         `json:"videoPath"` // unused by the still-image pipeline, always nil
	Timestamp   time.Time       `gorm:"index:idx_detections_timestamp;autoCreateTime" json:"timestamp"`

	// Invariant: BlacklistFlag == (BlacklistID != nil)
	BlacklistFlag bool            `gorm:"index" json:"blacklistFlag"`
	BlacklistID   *uint           `json:"blacklistId,omitempty"`
	Blacklist     *BlacklistEntry `gorm:"foreignKey:BlacklistID" json:"blacklist,omitempty"`
}

// DetectionFilter narrows detection searches. Zero values mean "no filter".
type DetectionFilter struct {
	Plate       string     // substring match on plate number
	StartDate   *time.Time // inclusive lower bound on timestamp
	EndDate     *time.Time // inclusive upper bound on timestamp
	Blacklisted *bool      // filter on blacklist flag
	CameraID    *uint      // filter on camera
	Limit       int        // page size, 0 means no limit
	Offset      int        // rows to skip
}

// DetectionStats summarizes the detection table for the dashboard.
type DetectionStats struct {
	TotalDetections  int64       `json:"totalDetections"`
	BlacklistedCount int64       `json:"blacklistedCount"`
	TodayCount       int64       `json:"todayCount"`
	RecentAlerts     []Detection `json:"recentAlerts"`
}
