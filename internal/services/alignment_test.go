package services

import (
	"testing"

	"github.com/google/uuid"

	"github.com/normgate/normgate-backend/internal/access"
	"github.com/normgate/normgate-backend/internal/pkg/apierr"
	"github.com/normgate/normgate-backend/internal/pkg/dbctx"
	"github.com/normgate/normgate-backend/internal/types"
)

// startOpenSession seeds two reviewers and one requirement, creates a release
// and opens an alignment session on it.
func startOpenSession(t *testing.T, env *testEnv) (*types.Release, *StartAlignmentResult, []*types.User) {
	t.Helper()
	managerCtx := actorCtx(access.RoleReleaseManager)

	reviewerA := env.seedUser(t, access.RoleReviewer)
	reviewerB := env.seedUser(t, access.RoleReviewer)
	env.seedRequirement(t, "Reviewed requirement", strPtr("details"))

	created, err := env.releaseService.CreateRelease(managerCtx, "1.0.0", "Under review", nil)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	result, err := env.alignService.StartAlignment(managerCtx, created.Release.ID)
	if err != nil {
		t.Fatalf("StartAlignment: %v", err)
	}
	if result.NoChanges || result.Session == nil {
		t.Fatalf("expected a session, got %+v", result)
	}
	return created.Release, result, []*types.User{reviewerA, reviewerB}
}

func TestStartAlignment_OpensSessionAndFreezesChangedSet(t *testing.T) {
	env := newTestEnv(t)
	release, result, reviewers := startOpenSession(t, env)

	if result.Session.Status != types.SessionOpen {
		t.Fatalf("session status = %s, want OPEN", result.Session.Status)
	}
	if result.Session.BaselineReleaseID != nil {
		t.Fatalf("first release must have no baseline, got %v", result.Session.BaselineReleaseID)
	}
	if result.ReviewerCount != len(reviewers) {
		t.Fatalf("reviewer count = %d, want %d", result.ReviewerCount, len(reviewers))
	}
	// No baseline: everything is added.
	if len(result.ChangedSet.Added) != 1 || len(result.ChangedSet.Modified) != 0 {
		t.Fatalf("changed set = %+v, want one added entry", result.ChangedSet)
	}

	reloaded, err := env.releaseRepo.GetByID(dbctx.Background(), release.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Status != types.ReleaseInReview {
		t.Fatalf("release status = %s, want IN_REVIEW", reloaded.Status)
	}

	rows, err := env.reviewerRepo.ListBySessionID(dbctx.Background(), result.Session.ID)
	if err != nil {
		t.Fatalf("ListBySessionID: %v", err)
	}
	if len(rows) != len(reviewers) {
		t.Fatalf("reviewer rows = %d, want %d", len(rows), len(reviewers))
	}
	for _, row := range rows {
		if row.Status != types.ReviewerPending {
			t.Fatalf("reviewer status = %s, want PENDING", row.Status)
		}
	}
	if len(env.notifier.requested) != 1 {
		t.Fatalf("review-requested intents = %d, want 1 batch", len(env.notifier.requested))
	}

	// A second start on the same release is refused: it is no longer in
	// PREPARATION.
	if _, err := env.alignService.StartAlignment(actorCtx(access.RoleReleaseManager), release.ID); !apierr.IsKind(err, apierr.KindState) {
		t.Fatalf("second start: got %v, want state error", err)
	}
}

func TestStartAlignment_NoReviewersFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := actorCtx(access.RoleReleaseManager)

	env.seedRequirement(t, "R1", nil)
	created, err := env.releaseService.CreateRelease(ctx, "1.0.0", "Lonely", nil)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	if _, err := env.alignService.StartAlignment(ctx, created.Release.ID); !apierr.IsKind(err, apierr.KindPrecondition) {
		t.Fatalf("got %v, want precondition error", err)
	}
	// Failure must roll the release back to an unstarted state.
	reloaded, err := env.releaseRepo.GetByID(dbctx.Background(), created.Release.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Status != types.ReleasePreparation {
		t.Fatalf("release status = %s, want PREPARATION after failed start", reloaded.Status)
	}
}

func TestStartAlignment_EmptyChangedSetIsNoop(t *testing.T) {
	env := newTestEnv(t)
	managerCtx := actorCtx(access.RoleReleaseManager)

	env.seedUser(t, access.RoleReviewer)
	env.seedRequirement(t, "Stable requirement", nil)

	first, err := env.releaseService.CreateRelease(managerCtx, "1.0.0", "Baseline", nil)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	started, err := env.alignService.StartAlignment(managerCtx, first.Release.ID)
	if err != nil {
		t.Fatalf("StartAlignment: %v", err)
	}

	// Drive the first release to ACTIVE so it becomes the baseline.
	fin, err := env.alignService.FinalizeAlignment(managerCtx, started.Session.ID, true)
	if err != nil {
		t.Fatalf("FinalizeAlignment: %v", err)
	}
	if !fin.Activated {
		t.Fatalf("force finalize should activate")
	}

	// Identical live set frozen again: nothing to review.
	second, err := env.releaseService.CreateRelease(managerCtx, "1.1.0", "No changes", nil)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	result, err := env.alignService.StartAlignment(managerCtx, second.Release.ID)
	if err != nil {
		t.Fatalf("StartAlignment: %v", err)
	}
	if !result.NoChanges {
		t.Fatalf("expected no-op, got %+v", result)
	}
	reloaded, err := env.releaseRepo.GetByID(dbctx.Background(), second.Release.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Status != types.ReleasePreparation {
		t.Fatalf("release status = %s, want PREPARATION after no-op start", reloaded.Status)
	}
	sessions, err := env.sessionRepo.ListByReleaseID(dbctx.Background(), second.Release.ID)
	if err != nil {
		t.Fatalf("ListByReleaseID: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("no-op start must not create a session, found %d", len(sessions))
	}
}

func TestSubmitReview_Flow(t *testing.T) {
	env := newTestEnv(t)
	_, started, reviewers := startOpenSession(t, env)
	sessionID := started.Session.ID
	requirementID := started.ChangedSet.Added[0]
	reviewerCtx := actorCtxAs(reviewers[0].ID, access.RoleReviewer)

	// Outsider with the right role but no reviewer row.
	if _, err := env.alignService.SubmitReview(actorCtx(access.RoleReviewer), sessionID, requirementID, types.AssessmentMinor, nil); !apierr.IsKind(err, apierr.KindForbidden) {
		t.Fatalf("outsider: got %v, want forbidden error", err)
	}
	// Assessment vocabulary is closed.
	if _, err := env.alignService.SubmitReview(reviewerCtx, sessionID, requirementID, types.Assessment("FINE"), nil); !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("bad assessment: got %v, want validation error", err)
	}
	// Only changed-set members are reviewable.
	if _, err := env.alignService.SubmitReview(reviewerCtx, sessionID, uuid.New(), types.AssessmentMinor, nil); !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("out-of-set requirement: got %v, want validation error", err)
	}

	review, err := env.alignService.SubmitReview(reviewerCtx, sessionID, requirementID, types.AssessmentMajor, strPtr("needs rework"))
	if err != nil {
		t.Fatalf("SubmitReview: %v", err)
	}
	if review.Assessment != types.AssessmentMajor {
		t.Fatalf("assessment = %s, want MAJOR", review.Assessment)
	}

	// First submission flips the reviewer to IN_PROGRESS.
	row, err := env.reviewerRepo.GetBySessionAndUser(dbctx.Background(), sessionID, reviewers[0].ID)
	if err != nil {
		t.Fatalf("GetBySessionAndUser: %v", err)
	}
	if row.Status != types.ReviewerInProgress {
		t.Fatalf("reviewer status = %s, want IN_PROGRESS", row.Status)
	}
	if row.FirstActivityAt == nil {
		t.Fatalf("first activity timestamp not set")
	}

	// Resubmission overwrites rather than duplicates.
	if _, err := env.alignService.SubmitReview(reviewerCtx, sessionID, requirementID, types.AssessmentMinor, nil); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	dashboard, err := env.alignService.GetDashboard(reviewerCtx, sessionID)
	if err != nil {
		t.Fatalf("GetDashboard: %v", err)
	}
	summary := dashboard.Requirements[0]
	if summary.Minor != 1 || summary.Major != 0 || summary.NOK != 0 {
		t.Fatalf("counts = %d/%d/%d, resubmission must overwrite", summary.Minor, summary.Major, summary.NOK)
	}
}

func TestCompleteReview_Gate(t *testing.T) {
	env := newTestEnv(t)
	_, started, reviewers := startOpenSession(t, env)
	sessionID := started.Session.ID
	requirementID := started.ChangedSet.Added[0]
	reviewerCtx := actorCtxAs(reviewers[0].ID, access.RoleReviewer)

	if _, err := env.alignService.CompleteReview(reviewerCtx, sessionID); !apierr.IsKind(err, apierr.KindPrecondition) {
		t.Fatalf("incomplete review: got %v, want precondition error", err)
	}

	if _, err := env.alignService.SubmitReview(reviewerCtx, sessionID, requirementID, types.AssessmentMinor, nil); err != nil {
		t.Fatalf("SubmitReview: %v", err)
	}
	completed, err := env.alignService.CompleteReview(reviewerCtx, sessionID)
	if err != nil {
		t.Fatalf("CompleteReview: %v", err)
	}
	if completed.Status != types.ReviewerCompleted || completed.CompletedAt == nil {
		t.Fatalf("reviewer = %+v, want COMPLETED with timestamp", completed)
	}

	// Completed reviews are frozen.
	if _, err := env.alignService.SubmitReview(reviewerCtx, sessionID, requirementID, types.AssessmentNOK, nil); !apierr.IsKind(err, apierr.KindState) {
		t.Fatalf("submit after complete: got %v, want state error", err)
	}
}

func TestFinalizeAlignment_WarnsThenForces(t *testing.T) {
	env := newTestEnv(t)
	release, started, reviewers := startOpenSession(t, env)
	sessionID := started.Session.ID

	result, err := env.alignService.FinalizeAlignment(actorCtx(access.RoleReleaseManager), sessionID, false)
	if err != nil {
		t.Fatalf("FinalizeAlignment: %v", err)
	}
	if result.Activated {
		t.Fatalf("finalize with pending reviewers must not activate")
	}
	if result.Warning == "" || len(result.PendingReviewers) != len(reviewers) {
		t.Fatalf("result = %+v, want warning and %d pending reviewers", result, len(reviewers))
	}
	// Refusal mutates nothing.
	reloaded, err := env.releaseRepo.GetByID(dbctx.Background(), release.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Status != types.ReleaseInReview {
		t.Fatalf("release status = %s, want IN_REVIEW after refused finalize", reloaded.Status)
	}

	forced, err := env.alignService.FinalizeAlignment(actorCtx(access.RoleReleaseManager), sessionID, true)
	if err != nil {
		t.Fatalf("force FinalizeAlignment: %v", err)
	}
	if !forced.Activated {
		t.Fatalf("force finalize must activate")
	}
	if forced.Release.Status != types.ReleaseActive || forced.Release.ReleaseDate == nil {
		t.Fatalf("release = %+v, want ACTIVE with release date", forced.Release)
	}
	if forced.Session.Status != types.SessionCompleted {
		t.Fatalf("session status = %s, want COMPLETED", forced.Session.Status)
	}
}

func TestFinalizeAlignment_AtMostOneActive(t *testing.T) {
	env := newTestEnv(t)
	managerCtx := actorCtx(access.RoleReleaseManager)
	env.seedUser(t, access.RoleReviewer)
	req := env.seedRequirement(t, "Evolving requirement", strPtr("v1"))

	first, err := env.releaseService.CreateRelease(managerCtx, "1.0.0", "First", nil)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	firstStart, err := env.alignService.StartAlignment(managerCtx, first.Release.ID)
	if err != nil {
		t.Fatalf("StartAlignment: %v", err)
	}
	if _, err := env.alignService.FinalizeAlignment(managerCtx, firstStart.Session.ID, true); err != nil {
		t.Fatalf("FinalizeAlignment: %v", err)
	}

	// Change the live set so the second session has content.
	if _, err := env.reqService.Update(actorCtx(access.RoleEditor), req.ID, RequirementInput{
		Shortreq: "Evolving requirement",
		Details:  strPtr("v2"),
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	second, err := env.releaseService.CreateRelease(managerCtx, "2.0.0", "Second", nil)
	if err != nil {
		t.Fatalf("CreateRelease: %v", err)
	}
	secondStart, err := env.alignService.StartAlignment(managerCtx, second.Release.ID)
	if err != nil {
		t.Fatalf("StartAlignment: %v", err)
	}
	if secondStart.Session.BaselineReleaseID == nil || *secondStart.Session.BaselineReleaseID != first.Release.ID {
		t.Fatalf("baseline = %v, want %s", secondStart.Session.BaselineReleaseID, first.Release.ID)
	}
	if len(secondStart.ChangedSet.Modified) != 1 {
		t.Fatalf("changed set = %+v, want one modified entry", secondStart.ChangedSet)
	}
	if _, err := env.alignService.FinalizeAlignment(managerCtx, secondStart.Session.ID, true); err != nil {
		t.Fatalf("FinalizeAlignment: %v", err)
	}

	active := types.ReleaseActive
	activeReleases, err := env.releaseRepo.List(dbctx.Background(), &active)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(activeReleases) != 1 || activeReleases[0].ID != second.Release.ID {
		t.Fatalf("active releases = %v, want exactly the second", activeReleases)
	}
	firstReloaded, err := env.releaseRepo.GetByID(dbctx.Background(), first.Release.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if firstReloaded.Status != types.ReleaseLegacy {
		t.Fatalf("first release status = %s, want LEGACY", firstReloaded.Status)
	}
}

func TestCancelAlignment_RevertsRelease(t *testing.T) {
	env := newTestEnv(t)
	release, started, reviewers := startOpenSession(t, env)
	sessionID := started.Session.ID
	reviewerCtx := actorCtxAs(reviewers[0].ID, access.RoleReviewer)

	if _, err := env.alignService.SubmitReview(reviewerCtx, sessionID, started.ChangedSet.Added[0], types.AssessmentNOK, strPtr("blocker")); err != nil {
		t.Fatalf("SubmitReview: %v", err)
	}

	cancelled, err := env.alignService.CancelAlignment(actorCtx(access.RoleReleaseManager), sessionID)
	if err != nil {
		t.Fatalf("CancelAlignment: %v", err)
	}
	if cancelled.Status != types.SessionCancelled || cancelled.ClosedAt == nil {
		t.Fatalf("session = %+v, want CANCELLED with timestamp", cancelled)
	}
	reloaded, err := env.releaseRepo.GetByID(dbctx.Background(), release.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if reloaded.Status != types.ReleasePreparation {
		t.Fatalf("release status = %s, want PREPARATION after cancel", reloaded.Status)
	}

	// Submitted reviews survive for audit but the session is closed to writes.
	dashboard, err := env.alignService.GetDashboard(reviewerCtx, sessionID)
	if err != nil {
		t.Fatalf("GetDashboard: %v", err)
	}
	if dashboard.SessionStatus != types.SessionCancelled {
		t.Fatalf("dashboard session status = %s, want CANCELLED", dashboard.SessionStatus)
	}
	if dashboard.Requirements[0].NOK != 1 {
		t.Fatalf("NOK count = %d, cancelled session must keep reviews", dashboard.Requirements[0].NOK)
	}
	if _, err := env.alignService.SubmitReview(reviewerCtx, sessionID, started.ChangedSet.Added[0], types.AssessmentMinor, nil); !apierr.IsKind(err, apierr.KindState) {
		t.Fatalf("submit after cancel: got %v, want state error", err)
	}
}

func TestChangedSet_FrozenAgainstLiveEdits(t *testing.T) {
	env := newTestEnv(t)
	_, started, reviewers := startOpenSession(t, env)
	sessionID := started.Session.ID
	reviewerCtx := actorCtxAs(reviewers[0].ID, access.RoleReviewer)

	// A requirement born after session start is invisible to the session.
	newReq, err := env.reqService.Create(actorCtx(access.RoleEditor), RequirementInput{Shortreq: "Latecomer"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := env.alignService.SubmitReview(reviewerCtx, sessionID, newReq.ID, types.AssessmentMinor, nil); !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("latecomer review: got %v, want validation error", err)
	}

	dashboard, err := env.alignService.GetDashboard(reviewerCtx, sessionID)
	if err != nil {
		t.Fatalf("GetDashboard: %v", err)
	}
	if len(dashboard.Requirements) != 1 {
		t.Fatalf("dashboard requirements = %d, live edits must not grow the frozen set", len(dashboard.Requirements))
	}
}

func TestGetDashboard_AggregatesAcrossReviewers(t *testing.T) {
	env := newTestEnv(t)
	_, started, reviewers := startOpenSession(t, env)
	sessionID := started.Session.ID
	requirementID := started.ChangedSet.Added[0]

	ctxA := actorCtxAs(reviewers[0].ID, access.RoleReviewer)
	ctxB := actorCtxAs(reviewers[1].ID, access.RoleReviewer)
	if _, err := env.alignService.SubmitReview(ctxA, sessionID, requirementID, types.AssessmentMinor, strPtr("typo only")); err != nil {
		t.Fatalf("SubmitReview A: %v", err)
	}
	if _, err := env.alignService.SubmitReview(ctxB, sessionID, requirementID, types.AssessmentNOK, strPtr("contradicts policy")); err != nil {
		t.Fatalf("SubmitReview B: %v", err)
	}

	dashboard, err := env.alignService.GetDashboard(ctxA, sessionID)
	if err != nil {
		t.Fatalf("GetDashboard: %v", err)
	}
	if len(dashboard.Requirements) != 1 {
		t.Fatalf("requirements = %d, want 1", len(dashboard.Requirements))
	}
	summary := dashboard.Requirements[0]
	if summary.Minor != 1 || summary.Major != 0 || summary.NOK != 1 {
		t.Fatalf("counts = %d/%d/%d, want 1/0/1", summary.Minor, summary.Major, summary.NOK)
	}
	if len(summary.Comments) != 2 {
		t.Fatalf("comments = %d, want both reviewers' comments", len(summary.Comments))
	}
	if len(dashboard.Reviewers) != 2 {
		t.Fatalf("reviewer progress rows = %d, want 2", len(dashboard.Reviewers))
	}
	for _, progress := range dashboard.Reviewers {
		if progress.Status != types.ReviewerInProgress {
			t.Fatalf("reviewer %s status = %s, want IN_PROGRESS", progress.UserID, progress.Status)
		}
	}
}

func TestSendReminders(t *testing.T) {
	env := newTestEnv(t)
	_, started, reviewers := startOpenSession(t, env)
	sessionID := started.Session.ID

	count, err := env.alignService.SendReminders(actorCtx(access.RoleReleaseManager), sessionID)
	if err != nil {
		t.Fatalf("SendReminders: %v", err)
	}
	if count != len(reviewers) {
		t.Fatalf("reminded = %d, want %d", count, len(reviewers))
	}
	if len(env.notifier.reminded) != 1 {
		t.Fatalf("reminder batches = %d, want 1", len(env.notifier.reminded))
	}

	// A completed reviewer is left alone.
	reviewerCtx := actorCtxAs(reviewers[0].ID, access.RoleReviewer)
	if _, err := env.alignService.SubmitReview(reviewerCtx, sessionID, started.ChangedSet.Added[0], types.AssessmentMinor, nil); err != nil {
		t.Fatalf("SubmitReview: %v", err)
	}
	if _, err := env.alignService.CompleteReview(reviewerCtx, sessionID); err != nil {
		t.Fatalf("CompleteReview: %v", err)
	}
	count, err = env.alignService.SendReminders(actorCtx(access.RoleReleaseManager), sessionID)
	if err != nil {
		t.Fatalf("SendReminders: %v", err)
	}
	if count != len(reviewers)-1 {
		t.Fatalf("reminded = %d, want %d", count, len(reviewers)-1)
	}
}
