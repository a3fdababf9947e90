package repos

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/normgate/normgate-backend/internal/pkg/dbctx"
	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/types"
)

type RequirementReviewRepo interface {
	// Upsert applies one assessment atomically, keyed on the
	// (session, requirement, reviewer) unique index. Two near-simultaneous
	// submissions for the same tuple collapse into one row.
	Upsert(dbc dbctx.Context, review *types.RequirementReview) error
	ListBySessionID(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.RequirementReview, error)
	ListBySessionAndReviewer(dbc dbctx.Context, sessionID, reviewerID uuid.UUID) ([]*types.RequirementReview, error)
}

type requirementReviewRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRequirementReviewRepo(db *gorm.DB, baseLog *logger.Logger) RequirementReviewRepo {
	repoLog := baseLog.With("repo", "RequirementReviewRepo")
	return &requirementReviewRepo{db: db, log: repoLog}
}

func (rr *requirementReviewRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return rr.db
}

func (rr *requirementReviewRepo) Upsert(dbc dbctx.Context, review *types.RequirementReview) error {
	now := time.Now().UTC()
	if review.CreatedAt.IsZero() {
		review.CreatedAt = now
	}
	review.UpdatedAt = now
	return rr.handle(dbc).WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "session_id"},
				{Name: "requirement_id"},
				{Name: "reviewer_id"},
			},
			DoUpdates: clause.AssignmentColumns([]string{
				"assessment",
				"comment",
				"updated_at",
			}),
		}).
		Create(review).Error
}

func (rr *requirementReviewRepo) ListBySessionID(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.RequirementReview, error) {
	var results []*types.RequirementReview
	if err := rr.handle(dbc).WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Order("created_at").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (rr *requirementReviewRepo) ListBySessionAndReviewer(dbc dbctx.Context, sessionID, reviewerID uuid.UUID) ([]*types.RequirementReview, error) {
	var results []*types.RequirementReview
	if err := rr.handle(dbc).WithContext(dbc.Ctx).
		Where("session_id = ? AND reviewer_id = ?", sessionID, reviewerID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
