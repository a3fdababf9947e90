package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/normgate/normgate-backend/internal/pkg/dbctx"
	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/types"
)

type ReleaseRepo interface {
	Create(dbc dbctx.Context, release *types.Release) (*types.Release, error)
	Update(dbc dbctx.Context, release *types.Release) (*types.Release, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Release, error)
	GetByVersion(dbc dbctx.Context, version string) (*types.Release, error)
	List(dbc dbctx.Context, statusFilter *types.ReleaseStatus) ([]*types.Release, error)
	// LatestPromoted returns the most recent ACTIVE/LEGACY release by
	// promotion time, or nil when none was ever promoted.
	LatestPromoted(dbc dbctx.Context) (*types.Release, error)
	CurrentActive(dbc dbctx.Context) (*types.Release, error)
	CountByStatus(dbc dbctx.Context) (map[types.ReleaseStatus]int64, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type releaseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReleaseRepo(db *gorm.DB, baseLog *logger.Logger) ReleaseRepo {
	repoLog := baseLog.With("repo", "ReleaseRepo")
	return &releaseRepo{db: db, log: repoLog}
}

func (rr *releaseRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return rr.db
}

func (rr *releaseRepo) Create(dbc dbctx.Context, release *types.Release) (*types.Release, error) {
	if err := rr.handle(dbc).WithContext(dbc.Ctx).Create(release).Error; err != nil {
		return nil, err
	}
	return release, nil
}

func (rr *releaseRepo) Update(dbc dbctx.Context, release *types.Release) (*types.Release, error) {
	if err := rr.handle(dbc).WithContext(dbc.Ctx).Save(release).Error; err != nil {
		return nil, err
	}
	return release, nil
}

func (rr *releaseRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Release, error) {
	var result types.Release
	err := rr.handle(dbc).WithContext(dbc.Ctx).
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

func (rr *releaseRepo) GetByVersion(dbc dbctx.Context, version string) (*types.Release, error) {
	var result types.Release
	err := rr.handle(dbc).WithContext(dbc.Ctx).
		Where("version = ?", version).
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (rr *releaseRepo) List(dbc dbctx.Context, statusFilter *types.ReleaseStatus) ([]*types.Release, error) {
	query := rr.handle(dbc).WithContext(dbc.Ctx).
		Order("created_at DESC, version DESC")
	if statusFilter != nil {
		query = query.Where("status = ?", *statusFilter)
	}
	var results []*types.Release
	if err := query.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (rr *releaseRepo) LatestPromoted(dbc dbctx.Context) (*types.Release, error) {
	var result types.Release
	err := rr.handle(dbc).WithContext(dbc.Ctx).
		Where("status IN ?", []types.ReleaseStatus{types.ReleaseActive, types.ReleaseLegacy}).
		Order("release_date DESC, created_at DESC").
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (rr *releaseRepo) CurrentActive(dbc dbctx.Context) (*types.Release, error) {
	var result types.Release
	err := rr.handle(dbc).WithContext(dbc.Ctx).
		Where("status = ?", types.ReleaseActive).
		Order("release_date DESC").
		First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (rr *releaseRepo) CountByStatus(dbc dbctx.Context) (map[types.ReleaseStatus]int64, error) {
	type statusCount struct {
		Status types.ReleaseStatus
		Count  int64
	}
	var rows []statusCount
	if err := rr.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.Release{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[types.ReleaseStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (rr *releaseRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return rr.handle(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Release{}).Error
}
