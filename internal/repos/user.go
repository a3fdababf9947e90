package repos

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/normgate/normgate-backend/internal/access"
	"github.com/normgate/normgate-backend/internal/pkg/dbctx"
	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/types"
)

type UserRepo interface {
	Create(dbc dbctx.Context, user *types.User) (*types.User, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.User, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.User, error)
	EmailExists(dbc dbctx.Context, email string) (bool, error)
	ListByRole(dbc dbctx.Context, role access.Role) ([]*types.User, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	repoLog := baseLog.With("repo", "UserRepo")
	return &userRepo{db: db, log: repoLog}
}

func (ur *userRepo) handle(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx
	}
	return ur.db
}

func (ur *userRepo) Create(dbc dbctx.Context, user *types.User) (*types.User, error) {
	if err := ur.handle(dbc).WithContext(dbc.Ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

func (ur *userRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.User, error) {
	var result types.User
	err := ur.handle(dbc).WithContext(dbc.Ctx).
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

func (ur *userRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*types.User, error) {
	var results []*types.User
	if len(ids) == 0 {
		return results, nil
	}
	if err := ur.handle(dbc).WithContext(dbc.Ctx).
		Where("id IN ?", ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (ur *userRepo) EmailExists(dbc dbctx.Context, email string) (bool, error) {
	var count int64
	if err := ur.handle(dbc).WithContext(dbc.Ctx).
		Model(&types.User{}).
		Where("email = ?", email).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListByRole filters in memory: the roles column is a json array and the user
// table is small, so a portable scan beats a per-dialect json containment
// query.
func (ur *userRepo) ListByRole(dbc dbctx.Context, role access.Role) ([]*types.User, error) {
	var all []*types.User
	if err := ur.handle(dbc).WithContext(dbc.Ctx).
		Order("email").
		Find(&all).Error; err != nil {
		return nil, err
	}
	var results []*types.User
	for _, user := range all {
		for _, have := range user.RoleList() {
			if have == role {
				results = append(results, user)
				break
			}
		}
	}
	return results, nil
}
