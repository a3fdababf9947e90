package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/normgate/normgate-backend/internal/pkg/dbctx"
	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/types"
)

type AlignmentSessionRepo interface {
	Create(dbc dbctx.Context, session *types.AlignmentSession) (*types.AlignmentSession, error)
	Update(dbc dbctx.Context, session *types.AlignmentSession) (*types.AlignmentSession, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AlignmentSession, error)
	ListByReleaseID(dbc dbctx.Context, releaseID uuid.UUID) ([]*types.AlignmentSession, error)
	CountOpen(dbc dbctx.Context) (int64, error)
}

type alignmentSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAlignmentSessionRepo(db *gorm.DB, baseLog *logger.Logger) AlignmentSessionRepo {
	repoLog := baseLog.With("repo", "AlignmentSessionRepo")
	return &alignmentSessionRepo{db: db, log: repoLog}
}

func (ar *alignmentSessionRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return ar.db
}

func (ar *alignmentSessionRepo) Create(dbc dbctx.Context, session *types.AlignmentSession) (*types.AlignmentSession, error) {
	if err := ar.handle(dbc).WithContext(dbc.Ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (ar *alignmentSessionRepo) Update(dbc dbctx.Context, session *types.AlignmentSession) (*types.AlignmentSession, error) {
	if err := ar.handle(dbc).WithContext(dbc.Ctx).Save(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (ar *alignmentSessionRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.AlignmentSession, error) {
	var result types.AlignmentSession
	err := ar.handle(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (ar *alignmentSessionRepo) ListByReleaseID(dbc dbctx.Context, releaseID uuid.UUID) ([]*types.AlignmentSession, error) {
	var results []*types.AlignmentSession
	if err := ar.handle(dbc).WithContext(dbc.Ctx).
		Where("release_id = ?", releaseID).
		Order("started_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (ar *alignmentSessionRepo) CountOpen(dbc dbctx.Context) (int64, error) {
	var count int64
	if err := ar.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.AlignmentSession{}).
		Where("status = ?", types.SessionOpen).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

type AlignmentReviewerRepo interface {
	CreateMany(dbc dbctx.Context, reviewers []*types.AlignmentReviewer) error
	Update(dbc dbctx.Context, reviewer *types.AlignmentReviewer) (*types.AlignmentReviewer, error)
	GetBySessionAndUser(dbc dbctx.Context, sessionID, userID uuid.UUID) (*types.AlignmentReviewer, error)
	ListBySessionID(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.AlignmentReviewer, error)
}

type alignmentReviewerRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAlignmentReviewerRepo(db *gorm.DB, baseLog *logger.Logger) AlignmentReviewerRepo {
	repoLog := baseLog.With("repo", "AlignmentReviewerRepo")
	return &alignmentReviewerRepo{db: db, log: repoLog}
}

func (ar *alignmentReviewerRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return ar.db
}

func (ar *alignmentReviewerRepo) CreateMany(dbc dbctx.Context, reviewers []*types.AlignmentReviewer) error {
	if len(reviewers) == 0 {
		return nil
	}
	return ar.handle(dbc).WithContext(dbc.Ctx).Create(&reviewers).Error
}

func (ar *alignmentReviewerRepo) Update(dbc dbctx.Context, reviewer *types.AlignmentReviewer) (*types.AlignmentReviewer, error) {
	if err := ar.handle(dbc).WithContext(dbc.Ctx).Save(reviewer).Error; err != nil {
		return nil, err
	}
	return reviewer, nil
}

func (ar *alignmentReviewerRepo) GetBySessionAndUser(dbc dbctx.Context, sessionID, userID uuid.UUID) (*types.AlignmentReviewer, error) {
	var result types.AlignmentReviewer
	err := ar.handle(dbc).WithContext(dbc.Ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (ar *alignmentReviewerRepo) ListBySessionID(dbc dbctx.Context, sessionID uuid.UUID) ([]*types.AlignmentReviewer, error) {
	var results []*types.AlignmentReviewer
	if err := ar.handle(dbc).WithContext(dbc.Ctx).
		Where("session_id = ?", sessionID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
