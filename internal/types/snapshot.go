package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RequirementSnapshot is an immutable, field-complete copy of one requirement
// at the moment its release was created. RequirementID is a logical reference
// only: the live requirement may be deleted later while the snapshot survives,
// so no foreign key constraint is placed on it. Rows are never updated; a new
// state means a new release with new snapshots.
type RequirementSnapshot struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ReleaseID uuid.UUID `gorm:"type:uuid;not null;index;column:release_id" json:"release_id"`
	// Logical reference to the original requirement, deliberately without a
	// constraint.
	RequirementID uuid.UUID      `gorm:"type:uuid;not null;index;column:requirement_id" json:"requirement_id"`
	Shortreq      string         `gorm:"not null;column:shortreq" json:"shortreq"`
	Details       *string        `gorm:"column:details;type:text" json:"details"`
	Language      *string        `gorm:"column:language" json:"language"`
	Example       *string        `gorm:"column:example;type:text" json:"example"`
	Motivation    *string        `gorm:"column:motivation;type:text" json:"motivation"`
	Usecase       *string        `gorm:"column:usecase;type:text" json:"usecase"`
	Norm          *string        `gorm:"column:norm;type:text" json:"norm"`
	Chapter       *string        `gorm:"column:chapter;type:text" json:"chapter"`
	UsecaseIDs    datatypes.JSON `gorm:"column:usecase_ids;type:jsonb" json:"usecase_ids"`
	NormIDs       datatypes.JSON `gorm:"column:norm_ids;type:jsonb" json:"norm_ids"`
	FrozenAt      time.Time      `gorm:"not null;column:frozen_at" json:"frozen_at"`
}

func (RequirementSnapshot) TableName() string {
	return "requirement_snapshot"
}

func (s *RequirementSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// SnapshotOf deep-copies the live requirement verbatim. Nil and empty string
// stay distinct; the comparison engine relies on that.
func SnapshotOf(req *Requirement, releaseID uuid.UUID, frozenAt time.Time) *RequirementSnapshot {
	return &RequirementSnapshot{
		ReleaseID:     releaseID,
		RequirementID: req.ID,
		Shortreq:      req.Shortreq,
		Details:       copyText(req.Details),
		Language:      copyText(req.Language),
		Example:       copyText(req.Example),
		Motivation:    copyText(req.Motivation),
		Usecase:       copyText(req.Usecase),
		Norm:          copyText(req.Norm),
		Chapter:       copyText(req.Chapter),
		UsecaseIDs:    ParseIDList(req.UsecaseIDs).ToJSON(),
		NormIDs:       ParseIDList(req.NormIDs).ToJSON(),
		FrozenAt:      frozenAt,
	}
}

func copyText(val *string) *string {
	if val == nil {
		return nil
	}
	out := *val
	return &out
}
