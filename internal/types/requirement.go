package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Requirement is the live, mutable record of one security requirement. The
// usecase/norm entities themselves are owned by the catalog subsystem; this
// table carries only the referenced ids, which is also the shape the freeze
// copies into snapshots.
type Requirement struct {
	ID         uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Shortreq   string         `gorm:"not null;column:shortreq" json:"shortreq"`
	Details    *string        `gorm:"column:details;type:text" json:"details"`
	Language   *string        `gorm:"column:language" json:"language"`
	Example    *string        `gorm:"column:example;type:text" json:"example"`
	Motivation *string        `gorm:"column:motivation;type:text" json:"motivation"`
	Usecase    *string        `gorm:"column:usecase;type:text" json:"usecase"`
	Norm       *string        `gorm:"column:norm;type:text" json:"norm"`
	Chapter    *string        `gorm:"column:chapter;type:text" json:"chapter"`
	UsecaseIDs datatypes.JSON `gorm:"column:usecase_ids;type:jsonb" json:"usecase_ids"`
	NormIDs    datatypes.JSON `gorm:"column:norm_ids;type:jsonb" json:"norm_ids"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
}

func (Requirement) TableName() string {
	return "requirement"
}

func (r *Requirement) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
