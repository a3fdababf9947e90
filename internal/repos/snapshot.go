package repos

import (
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/normgate/normgate-backend/internal/pkg/dbctx"
	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/types"
)

// SnapshotRepo is the snapshot store: bulk insert at release creation, reads
// for comparison and export, cascade delete with the owning release. Snapshots
// are never updated.
type SnapshotRepo interface {
	CreateMany(dbc dbctx.Context, snapshots []*types.RequirementSnapshot) error
	GetByReleaseID(dbc dbctx.Context, releaseID uuid.UUID) ([]*types.RequirementSnapshot, error)
	GetByRequirementID(dbc dbctx.Context, requirementID uuid.UUID) ([]*types.RequirementSnapshot, error)
	CountByReleaseID(dbc dbctx.Context, releaseID uuid.UUID) (int64, error)
	DeleteByReleaseID(dbc dbctx.Context, releaseID uuid.UUID) error
}

type snapshotRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSnapshotRepo(db *gorm.DB, baseLog *logger.Logger) SnapshotRepo {
	repoLog := baseLog.With("repo", "SnapshotRepo")
	return &snapshotRepo{db: db, log: repoLog}
}

func (sr *snapshotRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return sr.db
}

func (sr *snapshotRepo) CreateMany(dbc dbctx.Context, snapshots []*types.RequirementSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	return sr.handle(dbc).WithContext(dbc.Ctx).CreateInBatches(snapshots, 200).Error
}

func (sr *snapshotRepo) GetByReleaseID(dbc dbctx.Context, releaseID uuid.UUID) ([]*types.RequirementSnapshot, error) {
	var results []*types.RequirementSnapshot
	if err := sr.handle(dbc).WithContext(dbc.Ctx).
		Where("release_id = ?", releaseID).
		Order("chapter, shortreq").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (sr *snapshotRepo) GetByRequirementID(dbc dbctx.Context, requirementID uuid.UUID) ([]*types.RequirementSnapshot, error) {
	var results []*types.RequirementSnapshot
	if err := sr.handle(dbc).WithContext(dbc.Ctx).
		Where("requirement_id = ?", requirementID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (sr *snapshotRepo) CountByReleaseID(dbc dbctx.Context, releaseID uuid.UUID) (int64, error) {
	var count int64
	if err := sr.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.RequirementSnapshot{}).
		Where("release_id = ?", releaseID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (sr *snapshotRepo) DeleteByReleaseID(dbc dbctx.Context, releaseID uuid.UUID) error {
	return sr.handle(dbc).WithContext(dbc.Ctx).
		Where("release_id = ?", releaseID).
		Delete(&types.RequirementSnapshot{}).Error
}
