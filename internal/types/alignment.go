package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type SessionStatus string

const (
	SessionOpen      SessionStatus = "OPEN"
	SessionCompleted SessionStatus = "COMPLETED"
	SessionCancelled SessionStatus = "CANCELLED"
)

type ReviewerStatus string

const (
	ReviewerPending    ReviewerStatus = "PENDING"
	ReviewerInProgress ReviewerStatus = "IN_PROGRESS"
	ReviewerCompleted  ReviewerStatus = "COMPLETED"
)

type Assessment string

const (
	AssessmentMinor Assessment = "MINOR"
	AssessmentMajor Assessment = "MAJOR"
	AssessmentNOK   Assessment = "NOK"
)

func ValidAssessment(a Assessment) bool {
	switch a {
	case AssessmentMinor, AssessmentMajor, AssessmentNOK:
		return true
	}
	return false
}

// AlignmentSession is one review cycle for a release. ChangedSet holds the
// comparison result computed once at session start, so later edits to the live
// requirement set never alter what reviewers see.
type AlignmentSession struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ReleaseID         uuid.UUID      `gorm:"type:uuid;not null;index;column:release_id" json:"release_id"`
	BaselineReleaseID *uuid.UUID     `gorm:"type:uuid;column:baseline_release_id" json:"baseline_release_id"`
	Status            SessionStatus  `gorm:"not null;size:20;column:status" json:"status"`
	StartedBy         uuid.UUID      `gorm:"type:uuid;not null;column:started_by" json:"started_by"`
	ChangedSet        datatypes.JSON `gorm:"column:changed_set;type:jsonb" json:"changed_set"`
	StartedAt         time.Time      `gorm:"not null;column:started_at" json:"started_at"`
	ClosedAt          *time.Time     `gorm:"column:closed_at" json:"closed_at"`
}

func (AlignmentSession) TableName() string {
	return "alignment_session"
}

func (s *AlignmentSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = SessionOpen
	}
	return nil
}

// AlignmentReviewer tracks one participant's progress within one session.
// Status only ever advances: PENDING → IN_PROGRESS → COMPLETED.
type AlignmentReviewer struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID       uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_session_reviewer;column:session_id" json:"session_id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_session_reviewer;column:user_id" json:"user_id"`
	Status          ReviewerStatus `gorm:"not null;size:20;column:status" json:"status"`
	FirstActivityAt *time.Time     `gorm:"column:first_activity_at" json:"first_activity_at"`
	CompletedAt     *time.Time     `gorm:"column:completed_at" json:"completed_at"`
}

func (AlignmentReviewer) TableName() string {
	return "alignment_reviewer"
}

func (r *AlignmentReviewer) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Status == "" {
		r.Status = ReviewerPending
	}
	return nil
}

// RequirementReview is one reviewer's assessment of one changed requirement.
// The (session, requirement, reviewer) unique index makes the upsert atomic:
// resubmission updates in place, never appends.
type RequirementReview struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID     uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_session_req_reviewer;column:session_id" json:"session_id"`
	RequirementID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_session_req_reviewer;column:requirement_id" json:"requirement_id"`
	ReviewerID    uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_session_req_reviewer;column:reviewer_id" json:"reviewer_id"`
	Assessment    Assessment `gorm:"not null;size:10;column:assessment" json:"assessment"`
	Comment       *string    `gorm:"column:comment;type:text" json:"comment"`
	CreatedAt     time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"not null" json:"updated_at"`
}

func (RequirementReview) TableName() string {
	return "requirement_review"
}

func (r *RequirementReview) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
