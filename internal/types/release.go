package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ReleaseStatus string

const (
	// ReleasePreparation: newly created, snapshots frozen, not yet reviewed.
	ReleasePreparation ReleaseStatus = "PREPARATION"
	// ReleaseInReview: an alignment session is open against it.
	ReleaseInReview ReleaseStatus = "IN_REVIEW"
	// ReleaseActive: promoted. At most one release is ACTIVE at a time.
	ReleaseActive ReleaseStatus = "ACTIVE"
	// ReleaseLegacy: superseded by a newer ACTIVE release.
	ReleaseLegacy ReleaseStatus = "LEGACY"
	// ReleaseArchived: manually retired.
	ReleaseArchived ReleaseStatus = "ARCHIVED"
)

type Release struct {
	ID          uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Version     string        `gorm:"uniqueIndex;not null;size:50;column:version" json:"version"`
	Name        string        `gorm:"not null;column:name" json:"name"`
	Description *string       `gorm:"column:description;type:text" json:"description"`
	Status      ReleaseStatus `gorm:"not null;size:20;column:status" json:"status"`
	// ReleaseDate is set when the release is promoted to ACTIVE.
	ReleaseDate *time.Time `gorm:"column:release_date" json:"release_date"`
	CreatedBy   uuid.UUID  `gorm:"type:uuid;not null;column:created_by" json:"created_by"`
	CreatedAt   time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`
}

func (Release) TableName() string {
	return "release"
}

func (r *Release) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = ReleasePreparation
	}
	return nil
}

// Promoted reports whether the release was ever the authoritative set; only
// promoted releases qualify as a comparison baseline.
func (r *Release) Promoted() bool {
	return r.Status == ReleaseActive || r.Status == ReleaseLegacy
}
