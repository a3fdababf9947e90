package services

import (
	"context"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/normgate/normgate-backend/internal/access"
	"github.com/normgate/normgate-backend/internal/pkg/apierr"
	"github.com/normgate/normgate-backend/internal/pkg/dbctx"
	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/repos"
	"github.com/normgate/normgate-backend/internal/requestdata"
	"github.com/normgate/normgate-backend/internal/types"
)

type ProvisionUserInput struct {
	Email     string        `json:"email"`
	Password  string        `json:"password"`
	FirstName string        `json:"first_name"`
	LastName  string        `json:"last_name"`
	Roles     []access.Role `json:"roles"`
}

type UserService interface {
	Provision(ctx context.Context, input ProvisionUserInput) (*types.User, error)
	Get(ctx context.Context, id uuid.UUID) (*types.User, error)
	ListReviewers(ctx context.Context) ([]*types.User, error)
}

type userService struct {
	db       *gorm.DB
	log      *logger.Logger
	policy   *access.Policy
	userRepo repos.UserRepo
}

func NewUserService(db *gorm.DB, log *logger.Logger, policy *access.Policy, userRepo repos.UserRepo) UserService {
	return &userService{
		db:       db,
		log:      log.With("service", "UserService"),
		policy:   policy,
		userRepo: userRepo,
	}
}

func (us *userService) Provision(ctx context.Context, input ProvisionUserInput) (*types.User, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.ActorID == uuid.Nil {
		return nil, apierr.Forbidden("not authenticated")
	}
	if !us.policy.Allowed(rd.Roles, access.OpProvisionUser) {
		return nil, apierr.Forbidden("operation not permitted")
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apierr.Validation("invalid email address")
	}
	if len(input.Password) < 8 {
		return nil, apierr.Validation("password must be at least 8 characters")
	}
	for _, role := range input.Roles {
		if !access.KnownRole(role) {
			return nil, apierr.Validation("unknown role %q", role)
		}
	}

	var created *types.User
	err := us.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		exists, err := us.userRepo.EmailExists(dbc, email)
		if err != nil {
			return err
		}
		if exists {
			return apierr.Conflict("email already registered")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		user := &types.User{
			Email:     email,
			Password:  string(hash),
			FirstName: strings.TrimSpace(input.FirstName),
			LastName:  strings.TrimSpace(input.LastName),
			Roles:     types.RolesJSON(input.Roles),
		}
		created, err = us.userRepo.Create(dbc, user)
		return err
	})
	if err != nil {
		return nil, err
	}
	us.log.Info("User provisioned", "user_id", created.ID, "roles", input.Roles)
	return created, nil
}

func (us *userService) Get(ctx context.Context, id uuid.UUID) (*types.User, error) {
	user, err := us.userRepo.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apierr.NotFound("user %s not found", id)
	}
	return user, nil
}

func (us *userService) ListReviewers(ctx context.Context) ([]*types.User, error) {
	return us.userRepo.ListByRole(dbctx.Context{Ctx: ctx}, access.RoleReviewer)
}
