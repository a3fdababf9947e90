package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/normgate/normgate-backend/internal/pkg/dbctx"
	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/types"
)

type RequirementRepo interface {
	Create(dbc dbctx.Context, req *types.Requirement) (*types.Requirement, error)
	Update(dbc dbctx.Context, req *types.Requirement) (*types.Requirement, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Requirement, error)
	ListAll(dbc dbctx.Context) ([]*types.Requirement, error)
	Delete(dbc dbctx.Context, id uuid.UUID) error
}

type requirementRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRequirementRepo(db *gorm.DB, baseLog *logger.Logger) RequirementRepo {
	repoLog := baseLog.With("repo", "RequirementRepo")
	return &requirementRepo{db: db, log: repoLog}
}

func (rr *requirementRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return rr.db
}

func (rr *requirementRepo) Create(dbc dbctx.Context, req *types.Requirement) (*types.Requirement, error) {
	if err := rr.handle(dbc).WithContext(dbc.Ctx).Create(req).Error; err != nil {
		return nil, err
	}
	return req, nil
}

func (rr *requirementRepo) Update(dbc dbctx.Context, req *types.Requirement) (*types.Requirement, error) {
	if err := rr.handle(dbc).WithContext(dbc.Ctx).Save(req).Error; err != nil {
		return nil, err
	}
	return req, nil
}

func (rr *requirementRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.Requirement, error) {
	var result types.Requirement
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

func (rr *requirementRepo) ListAll(dbc dbctx.Context) ([]*types.Requirement, error) {
	var results []*types.Requirement
	if err := rr.handle(dbc).WithContext(dbc.Ctx).
		Order("chapter, shortreq").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (rr *requirementRepo) Delete(dbc dbctx.Context, id uuid.UUID) error {
	return rr.handle(dbc).WithContext(dbc.Ctx).
		Where("id = ?", id).
		Delete(&types.Requirement{}).Error
}
