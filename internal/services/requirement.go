package services

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/normgate/normgate-backend/internal/access"
	"github.com/normgate/normgate-backend/internal/pkg/apierr"
	"github.com/normgate/normgate-backend/internal/pkg/dbctx"
	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/repos"
	"github.com/normgate/normgate-backend/internal/requestdata"
	"github.com/normgate/normgate-backend/internal/types"
)

// RequirementInput carries the writable fields of a live requirement. Nil
// pointers mean "absent" and are stored as NULL, which the comparison engine
// treats as distinct from empty string.
type RequirementInput struct {
	Shortreq   string      `json:"shortreq"`
	Details    *string     `json:"details"`
	Language   *string     `json:"language"`
	Example    *string     `json:"example"`
	Motivation *string     `json:"motivation"`
	Usecase    *string     `json:"usecase"`
	Norm       *string     `json:"norm"`
	Chapter    *string     `json:"chapter"`
	UsecaseIDs []uuid.UUID `json:"usecase_ids"`
	NormIDs    []uuid.UUID `json:"norm_ids"`
}

type RequirementService interface {
	Create(ctx context.Context, input RequirementInput) (*types.Requirement, error)
	Update(ctx context.Context, id uuid.UUID, input RequirementInput) (*types.Requirement, error)
	Get(ctx context.Context, id uuid.UUID) (*types.Requirement, error)
	List(ctx context.Context) ([]*types.Requirement, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type requirementService struct {
	db              *gorm.DB
	log             *logger.Logger
	policy          *access.Policy
	requirementRepo repos.RequirementRepo
	releaseService  ReleaseService
}

func NewRequirementService(
	db *gorm.DB,
	log *logger.Logger,
	policy *access.Policy,
	requirementRepo repos.RequirementRepo,
	releaseService ReleaseService,
) RequirementService {
	return &requirementService{
		db:              db,
		log:             log.With("service", "RequirementService"),
		policy:          policy,
		requirementRepo: requirementRepo,
		releaseService:  releaseService,
	}
}

func (rs *requirementService) requireEdit(ctx context.Context, op access.Operation) error {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.ActorID == uuid.Nil {
		return apierr.Forbidden("not authenticated")
	}
	if !rs.policy.Allowed(rd.Roles, op) {
		return apierr.Forbidden("operation not permitted")
	}
	return nil
}

func validateRequirementInput(input RequirementInput) error {
	if strings.TrimSpace(input.Shortreq) == "" {
		return apierr.Validation("shortreq must not be empty")
	}
	return nil
}

func (rs *requirementService) Create(ctx context.Context, input RequirementInput) (*types.Requirement, error) {
	if err := rs.requireEdit(ctx, access.OpEditRequirement); err != nil {
		return nil, err
	}
	if err := validateRequirementInput(input); err != nil {
		return nil, err
	}
	req := &types.Requirement{}
	applyRequirementInput(req, input)
	created, err := rs.requirementRepo.Create(dbctx.Context{Ctx: ctx}, req)
	if err != nil {
		return nil, err
	}
	rs.log.Info("Requirement created", "requirement_id", created.ID)
	return created, nil
}

func (rs *requirementService) Update(ctx context.Context, id uuid.UUID, input RequirementInput) (*types.Requirement, error) {
	if err := rs.requireEdit(ctx, access.OpEditRequirement); err != nil {
		return nil, err
	}
	if err := validateRequirementInput(input); err != nil {
		return nil, err
	}
	var updated *types.Requirement
	err := rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		req, err := rs.requirementRepo.GetByID(dbc, id)
		if err != nil {
			return err
		}
		if req == nil {
			return apierr.NotFound("requirement %s not found", id)
		}
		applyRequirementInput(req, input)
		updated, err = rs.requirementRepo.Update(dbc, req)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (rs *requirementService) Get(ctx context.Context, id uuid.UUID) (*types.Requirement, error) {
	req, err := rs.requirementRepo.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, apierr.NotFound("requirement %s not found", id)
	}
	return req, nil
}

func (rs *requirementService) List(ctx context.Context) ([]*types.Requirement, error) {
	return rs.requirementRepo.ListAll(dbctx.Context{Ctx: ctx})
}

// Delete removes a live requirement, but only when no release has it frozen.
// A requirement carried by at least one snapshot can never be hard-deleted;
// the blocking versions are listed so the caller knows what stands in the way.
func (rs *requirementService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := rs.requireEdit(ctx, access.OpDeleteRequirement); err != nil {
		return err
	}
	req, err := rs.requirementRepo.GetByID(dbctx.Context{Ctx: ctx}, id)
	if err != nil {
		return err
	}
	if req == nil {
		return apierr.NotFound("requirement %s not found", id)
	}
	check, err := rs.releaseService.CanDelete(ctx, id)
	if err != nil {
		return err
	}
	if !check.Deletable {
		return apierr.Conflict("requirement is frozen in %d release(s)", len(check.BlockingVersions)).
			WithDetails(check.BlockingVersions...)
	}
	if err := rs.requirementRepo.Delete(dbctx.Context{Ctx: ctx}, id); err != nil {
		return err
	}
	rs.log.Info("Requirement deleted", "requirement_id", id)
	return nil
}

func applyRequirementInput(req *types.Requirement, input RequirementInput) {
	req.Shortreq = input.Shortreq
	req.Details = input.Details
	req.Language = input.Language
	req.Example = input.Example
	req.Motivation = input.Motivation
	req.Usecase = input.Usecase
	req.Norm = input.Norm
	req.Chapter = input.Chapter
	req.UsecaseIDs = types.IDList(input.UsecaseIDs).ToJSON()
	req.NormIDs = types.IDList(input.NormIDs).ToJSON()
}
