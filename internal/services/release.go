package services

import (
	"context"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/normgate/normgate-backend/internal/access"
	"github.com/normgate/normgate-backend/internal/diff"
	"github.com/normgate/normgate-backend/internal/pkg/apierr"
	"github.com/normgate/normgate-backend/internal/pkg/dbctx"
	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/repos"
	"github.com/normgate/normgate-backend/internal/requestdata"
	"github.com/normgate/normgate-backend/internal/types"
)

// Semantic version, strict MAJOR.MINOR.PATCH.
var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

type CreateReleaseResult struct {
	Release     *types.Release `json:"release"`
	FrozenCount int            `json:"frozen_count"`
	// Warning is set when the live requirement set was empty at freeze time.
	Warning string `json:"warning,omitempty"`
}

type ReleaseDetail struct {
	Release   *types.Release               `json:"release"`
	Snapshots []*types.RequirementSnapshot `json:"snapshots,omitempty"`
}

type DeleteCheck struct {
	Deletable bool `json:"deletable"`
	// BlockingVersions lists the releases whose snapshots still reference the
	// requirement, sorted.
	BlockingVersions []string `json:"blocking_versions"`
}

type ReleaseStats struct {
	CurrentActive *types.Release                `json:"current_active"`
	CountByStatus map[types.ReleaseStatus]int64 `json:"count_by_status"`
	OpenSessions  int64                         `json:"open_sessions"`
	TotalReleases int64                         `json:"total_releases"`
}

type ReleaseService interface {
	CreateRelease(ctx context.Context, version, name string, description *string) (*CreateReleaseResult, error)
	DeleteRelease(ctx context.Context, releaseID uuid.UUID) error
	ArchiveRelease(ctx context.Context, releaseID uuid.UUID) (*types.Release, error)
	GetRelease(ctx context.Context, releaseID uuid.UUID, includeSnapshots bool) (*ReleaseDetail, error)
	GetReleaseByVersion(ctx context.Context, version string) (*types.Release, error)
	ListReleases(ctx context.Context, statusFilter *types.ReleaseStatus) ([]*types.Release, error)
	Stats(ctx context.Context) (*ReleaseStats, error)
	CanDelete(ctx context.Context, requirementID uuid.UUID) (*DeleteCheck, error)
	CompareReleases(ctx context.Context, fromID, toID uuid.UUID) (*diff.Result, error)
	CompareReleaseToLive(ctx context.Context, releaseID uuid.UUID) (*diff.Result, error)
	GetExportRows(ctx context.Context, releaseID *uuid.UUID) ([]*ExportRow, error)
}

type releaseService struct {
	db              *gorm.DB
	log             *logger.Logger
	policy          *access.Policy
	releaseRepo     repos.ReleaseRepo
	snapshotRepo    repos.SnapshotRepo
	requirementRepo repos.RequirementRepo
	sessionRepo     repos.AlignmentSessionRepo
}

func NewReleaseService(
	db *gorm.DB,
	log *logger.Logger,
	policy *access.Policy,
	releaseRepo repos.ReleaseRepo,
	snapshotRepo repos.SnapshotRepo,
	requirementRepo repos.RequirementRepo,
	sessionRepo repos.AlignmentSessionRepo,
) ReleaseService {
	serviceLog := log.With("service", "ReleaseService")
	return &releaseService{
		db:              db,
		log:             serviceLog,
		policy:          policy,
		releaseRepo:     releaseRepo,
		snapshotRepo:    snapshotRepo,
		requirementRepo: requirementRepo,
		sessionRepo:     sessionRepo,
	}
}

func (rs *releaseService) requireOp(ctx context.Context, op access.Operation) (*requestdata.RequestData, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.ActorID == uuid.Nil {
		return nil, apierr.Forbidden("not authenticated")
	}
	if !rs.policy.Allowed(rd.Roles, op) {
		return nil, apierr.Forbidden("operation not permitted")
	}
	return rd, nil
}

// CreateRelease freezes the entire live requirement set into a new release.
// The release insert and every snapshot insert happen in one transaction, so a
// live edit mid-creation can never produce a mixed snapshot state.
func (rs *releaseService) CreateRelease(ctx context.Context, version, name string, description *string) (*CreateReleaseResult, error) {
	rd, err := rs.requireOp(ctx, access.OpCreateRelease)
	if err != nil {
		return nil, err
	}
	if !versionPattern.MatchString(version) {
		return nil, apierr.Validation("version must follow the MAJOR.MINOR.PATCH format, got %q", version)
	}
	if name == "" {
		return nil, apierr.Validation("name is required")
	}

	var result CreateReleaseResult
	err = rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		existing, err := rs.releaseRepo.GetByVersion(dbc, version)
		if err != nil {
			return err
		}
		if existing != nil {
			return apierr.Conflict("release version %s already exists", version)
		}

		release := &types.Release{
			Version:     version,
			Name:        name,
			Description: description,
			Status:      types.ReleasePreparation,
			CreatedBy:   rd.ActorID,
		}
		if _, err := rs.releaseRepo.Create(dbc, release); err != nil {
			return err
		}

		live, err := rs.requirementRepo.ListAll(dbc)
		if err != nil {
			return err
		}
		frozenAt := time.Now().UTC()
		snapshots := make([]*types.RequirementSnapshot, 0, len(live))
		for _, req := range live {
			snapshots = append(snapshots, types.SnapshotOf(req, release.ID, frozenAt))
		}
		if err := rs.snapshotRepo.CreateMany(dbc, snapshots); err != nil {
			return err
		}

		result.Release = release
		result.FrozenCount = len(snapshots)
		if len(snapshots) == 0 {
			result.Warning = "live requirement set is empty; release was created without snapshots"
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	rs.log.Info("Release created", "release_version", version, "frozen_count", result.FrozenCount)
	return &result, nil
}

func (rs *releaseService) DeleteRelease(ctx context.Context, releaseID uuid.UUID) error {
	if _, err := rs.requireOp(ctx, access.OpDeleteRelease); err != nil {
		return err
	}
	err := rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		release, err := rs.releaseRepo.GetByID(dbc, releaseID)
		if err != nil {
			return err
		}
		if release == nil {
			return apierr.NotFound("release %s not found", releaseID)
		}
		if err := rs.snapshotRepo.DeleteByReleaseID(dbc, releaseID); err != nil {
			return err
		}
		return rs.releaseRepo.Delete(dbc, releaseID)
	})
	if err != nil {
		return err
	}
	rs.log.Info("Release deleted", "release_id", releaseID)
	return nil
}

func (rs *releaseService) ArchiveRelease(ctx context.Context, releaseID uuid.UUID) (*types.Release, error) {
	if _, err := rs.requireOp(ctx, access.OpArchiveRelease); err != nil {
		return nil, err
	}
	var archived *types.Release
	err := rs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		release, err := rs.releaseRepo.GetByID(dbc, releaseID)
		if err != nil {
			return err
		}
		if release == nil {
			return apierr.NotFound("release %s not found", releaseID)
		}
		if release.Status != types.ReleaseActive && release.Status != types.ReleaseLegacy {
			return apierr.State("release cannot be archived in status %s", release.Status).
				WithDetails(string(release.Status))
		}
		release.Status = types.ReleaseArchived
		archived, err = rs.releaseRepo.Update(dbc, release)
		return err
	})
	if err != nil {
		return nil, err
	}
	return archived, nil
}

func (rs *releaseService) GetRelease(ctx context.Context, releaseID uuid.UUID, includeSnapshots bool) (*ReleaseDetail, error) {
	dbc := dbctx.Context{Ctx: ctx}
	release, err := rs.releaseRepo.GetByID(dbc, releaseID)
	if err != nil {
		return nil, err
	}
	if release == nil {
		return nil, apierr.NotFound("release %s not found", releaseID)
	}
	detail := &ReleaseDetail{Release: release}
	if includeSnapshots {
		snapshots, err := rs.snapshotRepo.GetByReleaseID(dbc, releaseID)
		if err != nil {
			return nil, err
		}
		detail.Snapshots = snapshots
	}
	return detail, nil
}

func (rs *releaseService) GetReleaseByVersion(ctx context.Context, version string) (*types.Release, error) {
	release, err := rs.releaseRepo.GetByVersion(dbctx.Context{Ctx: ctx}, version)
	if err != nil {
		return nil, err
	}
	if release == nil {
		return nil, apierr.NotFound("release version %s not found", version)
	}
	return release, nil
}

func (rs *releaseService) ListReleases(ctx context.Context, statusFilter *types.ReleaseStatus) ([]*types.Release, error) {
	return rs.releaseRepo.List(dbctx.Context{Ctx: ctx}, statusFilter)
}

func (rs *releaseService) Stats(ctx context.Context) (*ReleaseStats, error) {
	dbc := dbctx.Context{Ctx: ctx}
	active, err := rs.releaseRepo.CurrentActive(dbc)
	if err != nil {
		return nil, err
	}
	counts, err := rs.releaseRepo.CountByStatus(dbc)
	if err != nil {
		return nil, err
	}
	openSessions, err := rs.sessionRepo.CountOpen(dbc)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, count := range counts {
		total += count
	}
	return &ReleaseStats{
		CurrentActive: active,
		CountByStatus: counts,
		OpenSessions:  openSessions,
		TotalReleases: total,
	}, nil
}

// CanDelete implements the deletion-prevention invariant: a requirement frozen
// in at least one release can never be hard-deleted, whatever that release's
// status.
func (rs *releaseService) CanDelete(ctx context.Context, requirementID uuid.UUID) (*DeleteCheck, error) {
	dbc := dbctx.Context{Ctx: ctx}
	snapshots, err := rs.snapshotRepo.GetByRequirementID(dbc, requirementID)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return &DeleteCheck{Deletable: true, BlockingVersions: []string{}}, nil
	}
	seen := make(map[uuid.UUID]bool)
	versions := make([]string, 0, len(snapshots))
	for _, snap := range snapshots {
		if seen[snap.ReleaseID] {
			continue
		}
		seen[snap.ReleaseID] = true
		release, err := rs.releaseRepo.GetByID(dbc, snap.ReleaseID)
		if err != nil {
			return nil, err
		}
		if release != nil {
			versions = append(versions, release.Version)
		}
	}
	sort.Strings(versions)
	return &DeleteCheck{Deletable: false, BlockingVersions: versions}, nil
}

func (rs *releaseService) CompareReleases(ctx context.Context, fromID, toID uuid.UUID) (*diff.Result, error) {
	dbc := dbctx.Context{Ctx: ctx}
	fromSet, err := rs.snapshotSet(dbc, fromID)
	if err != nil {
		return nil, err
	}
	toSet, err := rs.snapshotSet(dbc, toID)
	if err != nil {
		return nil, err
	}
	result := diff.Compare(fromSet, toSet)
	return &result, nil
}

func (rs *releaseService) CompareReleaseToLive(ctx context.Context, releaseID uuid.UUID) (*diff.Result, error) {
	dbc := dbctx.Context{Ctx: ctx}
	fromSet, err := rs.snapshotSet(dbc, releaseID)
	if err != nil {
		return nil, err
	}
	live, err := rs.requirementRepo.ListAll(dbc)
	if err != nil {
		return nil, err
	}
	result := diff.Compare(fromSet, diff.RequirementSet(live))
	return &result, nil
}

func (rs *releaseService) snapshotSet(dbc dbctx.Context, releaseID uuid.UUID) (map[uuid.UUID]diff.FieldBag, error) {
	release, err := rs.releaseRepo.GetByID(dbc, releaseID)
	if err != nil {
		return nil, err
	}
	if release == nil {
		return nil, apierr.NotFound("release %s not found", releaseID)
	}
	snapshots, err := rs.snapshotRepo.GetByReleaseID(dbc, releaseID)
	if err != nil {
		return nil, err
	}
	return diff.SnapshotSet(snapshots), nil
}
