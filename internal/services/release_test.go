package services

import (
	"testing"

	"github.com/normgate/normgate-backend/internal/access"
	"github.com/normgate/normgate-backend/internal/pkg/apierr"
	"github.com/normgate/normgate-backend/internal/pkg/dbctx"
	"github.com/normgate/normgate-backend/internal/types"
)

func TestCreateRelease_FreezesLiveSet(t *testing.T) {
	env := newTestEnv(t)
	ctx := actorCtx(access.RoleReleaseManager)

	env.seedRequirement(t, "Passwords are hashed", strPtr("bcrypt, cost >= 12"))
	env.seedRequirement(t, "TLS everywhere", nil)

	result, err := env.releaseService.CreateRelease(ctx, "1.0.0", "Initial", nil)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	if result.FrozenCount != 2 {
		t.Fatalf("frozen count = %d, want 2", result.FrozenCount)
	}
	if result.Release.Status != types.ReleasePreparation {
		t.Fatalf("status = %s, want PREPARATION", result.Release.Status)
	}
	if result.Warning != "" {
		t.Fatalf("unexpected warning %q", result.Warning)
	}

	snaps, err := env.snapshotRepo.GetByReleaseID(dbctx.Background(), result.Release.ID)
	if err != nil {
		t.Fatalf("GetByReleaseID: %v", err)
	}
	if len(snaps) != 2 {
		t.Fatalf("snapshots = %d, want 2", len(snaps))
	}
}

func TestCreateRelease_EmptyLiveSetWarns(t *testing.T) {
	env := newTestEnv(t)
	ctx := actorCtx(access.RoleReleaseManager)

	result, err := env.releaseService.CreateRelease(ctx, "1.0.0", "Empty", nil)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	if result.FrozenCount != 0 || result.Warning == "" {
		t.Fatalf("empty live set should warn, got count=%d warning=%q", result.FrozenCount, result.Warning)
	}
}

func TestCreateRelease_VersionRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := actorCtx(access.RoleReleaseManager)

	for _, bad := range []string{"1.0", "v1.0.0", "1.0.0-rc1", "", "one.two.three"} {
		if _, err := env.releaseService.CreateRelease(ctx, bad, "Bad", nil); !apierr.IsKind(err, apierr.KindValidation) {
			t.Fatalf("version %q: got %v, want validation error", bad, err)
		}
	}

	if _, err := env.releaseService.CreateRelease(ctx, "1.0.0", "First", nil); err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	if _, err := env.releaseService.CreateRelease(ctx, "1.0.0", "Dup", nil); !apierr.IsKind(err, apierr.KindConflict) {
		t.Fatalf("duplicate version: got %v, want conflict error", err)
	}
}

func TestCreateRelease_RequiresRole(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.releaseService.CreateRelease(actorCtx(access.RoleReviewer), "1.0.0", "Nope", nil); !apierr.IsKind(err, apierr.KindForbidden) {
		t.Fatalf("got %v, want forbidden error", err)
	}
}

func TestSnapshots_ImmuneToLiveEdits(t *testing.T) {
	env := newTestEnv(t)
	managerCtx := actorCtx(access.RoleReleaseManager)
	editorCtx := actorCtx(access.RoleEditor)

	req := env.seedRequirement(t, "Original text", strPtr("original details"))
	result, err := env.releaseService.CreateRelease(managerCtx, "1.0.0", "Frozen", nil)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}

	if _, err := env.reqService.Update(editorCtx, req.ID, RequirementInput{
		Shortreq: "Edited text",
		Details:  strPtr("edited details"),
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	snaps, err := env.snapshotRepo.GetByReleaseID(dbctx.Background(), result.Release.ID)
	if err != nil {
		t.Fatalf("GetByReleaseID: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(snaps))
	}
	if snaps[0].Shortreq != "Original text" {
		t.Fatalf("snapshot shortreq = %q, live edit leaked into frozen copy", snaps[0].Shortreq)
	}
	if snaps[0].Details == nil || *snaps[0].Details != "original details" {
		t.Fatalf("snapshot details = %v, live edit leaked into frozen copy", snaps[0].Details)
	}
}

func TestCanDelete_BlockedWhileFrozen(t *testing.T) {
	env := newTestEnv(t)
	managerCtx := actorCtx(access.RoleReleaseManager)
	editorCtx := actorCtx(access.RoleEditor)

	req := env.seedRequirement(t, "Frozen requirement", nil)
	release, err := env.releaseService.CreateRelease(managerCtx, "1.0.0", "Blocker", nil)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}

	check, err := env.releaseService.CanDelete(managerCtx, req.ID)
	if err != nil {
		t.Fatalf("CanDelete: %v", err)
	}
	if check.Deletable {
		t.Fatalf("requirement frozen in a release must not be deletable")
	}
	if len(check.BlockingVersions) != 1 || check.BlockingVersions[0] != "1.0.0" {
		t.Fatalf("blocking versions = %v, want [1.0.0]", check.BlockingVersions)
	}

	if err := env.reqService.Delete(editorCtx, req.ID); !apierr.IsKind(err, apierr.KindConflict) {
		t.Fatalf("Delete: got %v, want conflict error", err)
	}

	// Deleting the release lifts the block.
	if err := env.releaseService.DeleteRelease(managerCtx, release.Release.ID); err != nil {
		t.Fatalf("DeleteRelease: %v", err)
	}
	check, err = env.releaseService.CanDelete(managerCtx, req.ID)
	if err != nil {
		t.Fatalf("CanDelete: %v", err)
	}
	if !check.Deletable {
		t.Fatalf("requirement should be deletable after its only blocking release is gone")
	}
	if err := env.reqService.Delete(editorCtx, req.ID); err != nil {
		t.Fatalf("Delete after unblock: %v", err)
	}
}

func TestDeleteRelease_CascadesSnapshots(t *testing.T) {
	env := newTestEnv(t)
	ctx := actorCtx(access.RoleReleaseManager)

	env.seedRequirement(t, "R1", nil)
	result, err := env.releaseService.CreateRelease(ctx, "1.0.0", "Doomed", nil)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	if err := env.releaseService.DeleteRelease(ctx, result.Release.ID); err != nil {
		t.Fatalf("DeleteRelease: %v", err)
	}
	count, err := env.snapshotRepo.CountByReleaseID(dbctx.Background(), result.Release.ID)
	if err != nil {
		t.Fatalf("CountByReleaseID: %v", err)
	}
	if count != 0 {
		t.Fatalf("snapshots after delete = %d, want 0", count)
	}
}

func TestArchiveRelease_OnlyFromPromoted(t *testing.T) {
	env := newTestEnv(t)
	ctx := actorCtx(access.RoleReleaseManager)

	result, err := env.releaseService.CreateRelease(ctx, "1.0.0", "Prep", nil)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	if _, err := env.releaseService.ArchiveRelease(ctx, result.Release.ID); !apierr.IsKind(err, apierr.KindState) {
		t.Fatalf("archiving from PREPARATION: got %v, want state error", err)
	}

	// Promote by hand, then archive.
	release := result.Release
	release.Status = types.ReleaseActive
	if _, err := env.releaseRepo.Update(dbctx.Background(), release); err != nil {
		t.Fatalf("Update: %v", err)
	}
	archived, err := env.releaseService.ArchiveRelease(ctx, release.ID)
	if err != nil {
		t.Fatalf("ArchiveRelease: %v", err)
	}
	if archived.Status != types.ReleaseArchived {
		t.Fatalf("status = %s, want ARCHIVED", archived.Status)
	}
}

func TestCompareReleaseToLive(t *testing.T) {
	env := newTestEnv(t)
	managerCtx := actorCtx(access.RoleReleaseManager)
	editorCtx := actorCtx(access.RoleEditor)

	kept := env.seedRequirement(t, "Unchanged", nil)
	edited := env.seedRequirement(t, "Will change", strPtr("before"))
	result, err := env.releaseService.CreateRelease(managerCtx, "1.0.0", "Base", nil)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}

	if _, err := env.reqService.Update(editorCtx, edited.ID, RequirementInput{
		Shortreq: "Will change",
		Details:  strPtr("after"),
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	added, err := env.reqService.Create(editorCtx, RequirementInput{Shortreq: "Brand new"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	cmp, err := env.releaseService.CompareReleaseToLive(managerCtx, result.Release.ID)
	if err != nil {
		t.Fatalf("CompareReleaseToLive: %v", err)
	}
	if len(cmp.Added) != 1 || cmp.Added[0] != added.ID {
		t.Fatalf("added = %v, want [%s]", cmp.Added, added.ID)
	}
	if len(cmp.Modified) != 1 || cmp.Modified[0].RequirementID != edited.ID {
		t.Fatalf("modified = %v, want [%s]", cmp.Modified, edited.ID)
	}
	if len(cmp.Deleted) != 0 {
		t.Fatalf("deleted = %v, want none", cmp.Deleted)
	}
	if cmp.UnchangedCount != 1 {
		t.Fatalf("unchanged = %d, want 1 (%s)", cmp.UnchangedCount, kept.ID)
	}
}

func TestGetRelease_IncludeSnapshots(t *testing.T) {
	env := newTestEnv(t)
	ctx := actorCtx(access.RoleReleaseManager)

	env.seedRequirement(t, "R1", nil)
	result, err := env.releaseService.CreateRelease(ctx, "1.0.0", "Detail", nil)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}

	detail, err := env.releaseService.GetRelease(ctx, result.Release.ID, false)
	if err != nil {
		t.Fatalf("GetRelease: %v", err)
	}
	if detail.Snapshots != nil {
		t.Fatalf("snapshots included without includeSnapshots")
	}
	detail, err = env.releaseService.GetRelease(ctx, result.Release.ID, true)
	if err != nil {
		t.Fatalf("GetRelease: %v", err)
	}
	if len(detail.Snapshots) != 1 {
		t.Fatalf("snapshots = %d, want 1", len(detail.Snapshots))
	}
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := actorCtx(access.RoleReleaseManager)

	if _, err := env.releaseService.CreateRelease(ctx, "1.0.0", "A", nil); err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	if _, err := env.releaseService.CreateRelease(ctx, "1.1.0", "B", nil); err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}

	stats, err := env.releaseService.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalReleases != 2 {
		t.Fatalf("total = %d, want 2", stats.TotalReleases)
	}
	if stats.CountByStatus[types.ReleasePreparation] != 2 {
		t.Fatalf("preparation count = %d, want 2", stats.CountByStatus[types.ReleasePreparation])
	}
	if stats.CurrentActive != nil {
		t.Fatalf("no release is active yet")
	}
}

func TestGetExportRows_LiveAndFrozen(t *testing.T) {
	env := newTestEnv(t)
	ctx := actorCtx(access.RoleReleaseManager)

	env.seedRequirement(t, "Exported", strPtr("details"))
	result, err := env.releaseService.CreateRelease(ctx, "1.0.0", "Export", nil)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}

	liveRows, err := env.releaseService.GetExportRows(ctx, nil)
	if err != nil {
		t.Fatalf("GetExportRows(live): %v", err)
	}
	if len(liveRows) != 1 || liveRows[0].Source != "live" {
		t.Fatalf("live rows = %+v, want one row with source live", liveRows)
	}

	frozenRows, err := env.releaseService.GetExportRows(ctx, &result.Release.ID)
	if err != nil {
		t.Fatalf("GetExportRows(release): %v", err)
	}
	if len(frozenRows) != 1 || frozenRows[0].Source != "1.0.0" {
		t.Fatalf("frozen rows = %+v, want one row with source 1.0.0", frozenRows)
	}
}
