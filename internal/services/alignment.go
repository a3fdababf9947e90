package services

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/normgate/normgate-backend/internal/access"
	"github.com/normgate/normgate-backend/internal/diff"
	"github.com/normgate/normgate-backend/internal/pkg/apierr"
	"github.com/normgate/normgate-backend/internal/pkg/dbctx"
	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/platform/cache"
	"github.com/normgate/normgate-backend/internal/repos"
	"github.com/normgate/normgate-backend/internal/requestdata"
	"github.com/normgate/normgate-backend/internal/types"
)

type StartAlignmentResult struct {
	// NoChanges is set when the changed-set against the baseline was empty:
	// no session is created and the release stays in PREPARATION.
	NoChanges     bool                    `json:"no_changes"`
	Session       *types.AlignmentSession `json:"session,omitempty"`
	ChangedSet    *diff.Result            `json:"changed_set,omitempty"`
	ReviewerCount int                     `json:"reviewer_count"`
}

type FinalizeResult struct {
	Activated bool   `json:"activated"`
	Warning   string `json:"warning,omitempty"`
	// PendingReviewers lists reviewers not yet COMPLETED when the finalize was
	// refused without forceActivate.
	PendingReviewers []uuid.UUID             `json:"pending_reviewers,omitempty"`
	Session          *types.AlignmentSession `json:"session,omitempty"`
	Release          *types.Release          `json:"release,omitempty"`
}

type ReviewComment struct {
	ReviewerID uuid.UUID        `json:"reviewer_id"`
	Assessment types.Assessment `json:"assessment"`
	Comment    *string          `json:"comment"`
}

type RequirementReviewSummary struct {
	RequirementID uuid.UUID       `json:"requirement_id"`
	Minor         int             `json:"minor"`
	Major         int             `json:"major"`
	NOK           int             `json:"nok"`
	Comments      []ReviewComment `json:"comments"`
}

type ReviewerProgress struct {
	UserID uuid.UUID            `json:"user_id"`
	Status types.ReviewerStatus `json:"status"`
}

type Dashboard struct {
	SessionID     uuid.UUID                  `json:"session_id"`
	SessionStatus types.SessionStatus        `json:"session_status"`
	Requirements  []RequirementReviewSummary `json:"requirements"`
	Reviewers     []ReviewerProgress         `json:"reviewers"`
}

type AlignmentService interface {
	StartAlignment(ctx context.Context, releaseID uuid.UUID) (*StartAlignmentResult, error)
	CancelAlignment(ctx context.Context, sessionID uuid.UUID) (*types.AlignmentSession, error)
	FinalizeAlignment(ctx context.Context, sessionID uuid.UUID, forceActivate bool) (*FinalizeResult, error)
	SubmitReview(ctx context.Context, sessionID, requirementID uuid.UUID, assessment types.Assessment, comment *string) (*types.RequirementReview, error)
	CompleteReview(ctx context.Context, sessionID uuid.UUID) (*types.AlignmentReviewer, error)
	GetDashboard(ctx context.Context, sessionID uuid.UUID) (*Dashboard, error)
	SendReminders(ctx context.Context, sessionID uuid.UUID) (int, error)
}

type alignmentService struct {
	db           *gorm.DB
	log          *logger.Logger
	policy       *access.Policy
	cache        *cache.Cache
	releaseRepo  repos.ReleaseRepo
	snapshotRepo repos.SnapshotRepo
	sessionRepo  repos.AlignmentSessionRepo
	reviewerRepo repos.AlignmentReviewerRepo
	reviewRepo   repos.RequirementReviewRepo
	userRepo     repos.UserRepo
	notifier     ReviewNotifier
}

func NewAlignmentService(
	db *gorm.DB,
	log *logger.Logger,
	policy *access.Policy,
	cacheClient *cache.Cache,
	releaseRepo repos.ReleaseRepo,
	snapshotRepo repos.SnapshotRepo,
	sessionRepo repos.AlignmentSessionRepo,
	reviewerRepo repos.AlignmentReviewerRepo,
	reviewRepo repos.RequirementReviewRepo,
	userRepo repos.UserRepo,
	notifier ReviewNotifier,
) AlignmentService {
	serviceLog := log.With("service", "AlignmentService")
	return &alignmentService{
		db:           db,
		log:          serviceLog,
		policy:       policy,
		cache:        cacheClient,
		releaseRepo:  releaseRepo,
		snapshotRepo: snapshotRepo,
		sessionRepo:  sessionRepo,
		reviewerRepo: reviewerRepo,
		reviewRepo:   reviewRepo,
		userRepo:     userRepo,
		notifier:     notifier,
	}
}

func (as *alignmentService) requireOp(ctx context.Context, op access.Operation) (*requestdata.RequestData, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.ActorID == uuid.Nil {
		return nil, apierr.Forbidden("not authenticated")
	}
	if !as.policy.Allowed(rd.Roles, op) {
		return nil, apierr.Forbidden("operation not permitted")
	}
	return rd, nil
}

// StartAlignment freezes the changed-set against the current baseline and
// opens a review session. The comparison runs once, here; later edits to the
// live set never alter what reviewers see.
func (as *alignmentService) StartAlignment(ctx context.Context, releaseID uuid.UUID) (*StartAlignmentResult, error) {
	rd, err := as.requireOp(ctx, access.OpStartAlignment)
	if err != nil {
		return nil, err
	}

	var (
		result    StartAlignmentResult
		release   *types.Release
		reviewers []*types.User
	)
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}

		release, err = as.releaseRepo.GetByID(dbc, releaseID)
		if err != nil {
			return err
		}
		if release == nil {
			return apierr.NotFound("release %s not found", releaseID)
		}
		if release.Status != types.ReleasePreparation {
			return apierr.State("alignment can only start on a release in PREPARATION, current status is %s", release.Status).
				WithDetails(string(release.Status))
		}

		baseline, err := as.releaseRepo.LatestPromoted(dbc)
		if err != nil {
			return err
		}
		fromSet := map[uuid.UUID]diff.FieldBag{}
		var baselineID *uuid.UUID
		if baseline != nil {
			baselineSnaps, err := as.snapshotRepo.GetByReleaseID(dbc, baseline.ID)
			if err != nil {
				return err
			}
			fromSet = diff.SnapshotSet(baselineSnaps)
			baselineID = &baseline.ID
		}
		releaseSnaps, err := as.snapshotRepo.GetByReleaseID(dbc, releaseID)
		if err != nil {
			return err
		}
		changedSet := diff.Compare(fromSet, diff.SnapshotSet(releaseSnaps))
		if changedSet.Empty() {
			result.NoChanges = true
			return nil
		}

		reviewers, err = as.userRepo.ListByRole(dbc, access.RoleReviewer)
		if err != nil {
			return err
		}
		if len(reviewers) == 0 {
			return apierr.Precondition("no actors hold the %s role; alignment cannot start", access.RoleReviewer)
		}

		changedSetJSON, err := json.Marshal(changedSet)
		if err != nil {
			return err
		}
		session := &types.AlignmentSession{
			ReleaseID:         releaseID,
			BaselineReleaseID: baselineID,
			Status:            types.SessionOpen,
			StartedBy:         rd.ActorID,
			ChangedSet:        datatypes.JSON(changedSetJSON),
			StartedAt:         time.Now().UTC(),
		}
		if _, err := as.sessionRepo.Create(dbc, session); err != nil {
			return err
		}

		rows := make([]*types.AlignmentReviewer, 0, len(reviewers))
		for _, reviewer := range reviewers {
			rows = append(rows, &types.AlignmentReviewer{
				SessionID: session.ID,
				UserID:    reviewer.ID,
				Status:    types.ReviewerPending,
			})
		}
		if err := as.reviewerRepo.CreateMany(dbc, rows); err != nil {
			return err
		}

		release.Status = types.ReleaseInReview
		if _, err := as.releaseRepo.Update(dbc, release); err != nil {
			return err
		}

		result.Session = session
		result.ChangedSet = &changedSet
		result.ReviewerCount = len(reviewers)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.NoChanges {
		as.log.Info("Alignment not started, changed-set empty", "release_id", releaseID)
		return &result, nil
	}

	// Notification intents go out only after the transaction committed.
	as.notifier.ReviewRequested(ctx, reviewers, release)
	as.log.Info("Alignment started",
		"release_version", release.Version,
		"session_id", result.Session.ID,
		"reviewers", result.ReviewerCount,
	)
	return &result, nil
}

// CancelAlignment is immediate and total: the session closes, the release
// reverts to PREPARATION, and submitted reviews stay in storage as frozen
// history.
func (as *alignmentService) CancelAlignment(ctx context.Context, sessionID uuid.UUID) (*types.AlignmentSession, error) {
	if _, err := as.requireOp(ctx, access.OpCancelAlignment); err != nil {
		return nil, err
	}
	var cancelled *types.AlignmentSession
	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		session, err := as.getOpenSession(dbc, sessionID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		session.Status = types.SessionCancelled
		session.ClosedAt = &now
		if _, err := as.sessionRepo.Update(dbc, session); err != nil {
			return err
		}
		release, err := as.releaseRepo.GetByID(dbc, session.ReleaseID)
		if err != nil {
			return err
		}
		if release != nil && release.Status == types.ReleaseInReview {
			release.Status = types.ReleasePreparation
			if _, err := as.releaseRepo.Update(dbc, release); err != nil {
				return err
			}
		}
		cancelled = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	as.cache.Invalidate(ctx, dashboardKey(sessionID))
	as.log.Info("Alignment cancelled", "session_id", sessionID)
	return cancelled, nil
}

// FinalizeAlignment completes the session and promotes the release. The
// ACTIVE/LEGACY swap happens inside one transaction so no observable instant
// has two ACTIVE releases.
func (as *alignmentService) FinalizeAlignment(ctx context.Context, sessionID uuid.UUID, forceActivate bool) (*FinalizeResult, error) {
	if _, err := as.requireOp(ctx, access.OpFinalizeAlignment); err != nil {
		return nil, err
	}
	var result FinalizeResult
	err := as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		session, err := as.getOpenSession(dbc, sessionID)
		if err != nil {
			return err
		}

		reviewerRows, err := as.reviewerRepo.ListBySessionID(dbc, sessionID)
		if err != nil {
			return err
		}
		var pending []uuid.UUID
		for _, row := range reviewerRows {
			if row.Status != types.ReviewerCompleted {
				pending = append(pending, row.UserID)
			}
		}
		if len(pending) > 0 && !forceActivate {
			result.Warning = "not all reviewers have completed their review; re-invoke with forceActivate to promote anyway"
			result.PendingReviewers = pending
			return nil
		}

		now := time.Now().UTC()
		session.Status = types.SessionCompleted
		session.ClosedAt = &now
		if _, err := as.sessionRepo.Update(dbc, session); err != nil {
			return err
		}

		prior, err := as.releaseRepo.CurrentActive(dbc)
		if err != nil {
			return err
		}
		if prior != nil && prior.ID != session.ReleaseID {
			prior.Status = types.ReleaseLegacy
			if _, err := as.releaseRepo.Update(dbc, prior); err != nil {
				return err
			}
		}

		release, err := as.releaseRepo.GetByID(dbc, session.ReleaseID)
		if err != nil {
			return err
		}
		if release == nil {
			return apierr.NotFound("release %s not found", session.ReleaseID)
		}
		release.Status = types.ReleaseActive
		release.ReleaseDate = &now
		if _, err := as.releaseRepo.Update(dbc, release); err != nil {
			return err
		}

		result.Activated = true
		result.Session = session
		result.Release = release
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Activated {
		as.cache.Invalidate(ctx, dashboardKey(sessionID), activeReleaseKey)
		as.log.Info("Alignment finalized, release activated",
			"session_id", sessionID,
			"release_version", result.Release.Version,
		)
	}
	return &result, nil
}

// SubmitReview upserts one assessment. The storage-level unique index on
// (session, requirement, reviewer) absorbs double submissions.
func (as *alignmentService) SubmitReview(ctx context.Context, sessionID, requirementID uuid.UUID, assessment types.Assessment, comment *string) (*types.RequirementReview, error) {
	rd, err := as.requireOp(ctx, access.OpSubmitReview)
	if err != nil {
		return nil, err
	}
	if !types.ValidAssessment(assessment) {
		return nil, apierr.Validation("assessment must be one of MINOR, MAJOR, NOK, got %q", assessment)
	}

	var review *types.RequirementReview
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		session, err := as.getOpenSession(dbc, sessionID)
		if err != nil {
			return err
		}

		reviewer, err := as.reviewerRepo.GetBySessionAndUser(dbc, sessionID, rd.ActorID)
		if err != nil {
			return err
		}
		if reviewer == nil {
			return apierr.Forbidden("not a registered reviewer on this session")
		}
		if reviewer.Status == types.ReviewerCompleted {
			return apierr.State("review already completed; assessments are frozen")
		}

		changedSet, err := parseChangedSet(session)
		if err != nil {
			return err
		}
		if !containsID(changedSet.ChangedIDs(), requirementID) {
			return apierr.Validation("requirement %s is not part of this session's changed-set", requirementID)
		}

		review = &types.RequirementReview{
			SessionID:     sessionID,
			RequirementID: requirementID,
			ReviewerID:    rd.ActorID,
			Assessment:    assessment,
			Comment:       comment,
		}
		if err := as.reviewRepo.Upsert(dbc, review); err != nil {
			return err
		}

		if reviewer.Status == types.ReviewerPending {
			now := time.Now().UTC()
			reviewer.Status = types.ReviewerInProgress
			reviewer.FirstActivityAt = &now
			if _, err := as.reviewerRepo.Update(dbc, reviewer); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	as.cache.Invalidate(ctx, dashboardKey(sessionID))
	return review, nil
}

// CompleteReview is only reachable once every changed-set requirement carries
// an assessment from this reviewer.
func (as *alignmentService) CompleteReview(ctx context.Context, sessionID uuid.UUID) (*types.AlignmentReviewer, error) {
	rd, err := as.requireOp(ctx, access.OpCompleteReview)
	if err != nil {
		return nil, err
	}
	var completed *types.AlignmentReviewer
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		session, err := as.getOpenSession(dbc, sessionID)
		if err != nil {
			return err
		}
		reviewer, err := as.reviewerRepo.GetBySessionAndUser(dbc, sessionID, rd.ActorID)
		if err != nil {
			return err
		}
		if reviewer == nil {
			return apierr.Forbidden("not a registered reviewer on this session")
		}
		if reviewer.Status == types.ReviewerCompleted {
			return apierr.State("review already completed")
		}

		changedSet, err := parseChangedSet(session)
		if err != nil {
			return err
		}
		reviews, err := as.reviewRepo.ListBySessionAndReviewer(dbc, sessionID, rd.ActorID)
		if err != nil {
			return err
		}
		reviewed := make(map[uuid.UUID]bool, len(reviews))
		for _, rev := range reviews {
			reviewed[rev.RequirementID] = true
		}
		var missing []string
		for _, id := range changedSet.ChangedIDs() {
			if !reviewed[id] {
				missing = append(missing, id.String())
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return apierr.Precondition("%d changed requirement(s) still lack an assessment", len(missing)).
				WithDetails(missing...)
		}

		now := time.Now().UTC()
		reviewer.Status = types.ReviewerCompleted
		reviewer.CompletedAt = &now
		completed, err = as.reviewerRepo.Update(dbc, reviewer)
		return err
	})
	if err != nil {
		return nil, err
	}
	as.cache.Invalidate(ctx, dashboardKey(sessionID))
	as.log.Info("Reviewer completed", "session_id", sessionID)
	return completed, nil
}

// GetDashboard aggregates assessments per requirement and progress per
// reviewer. Read-only and callable at any session status; served from cache
// when possible.
func (as *alignmentService) GetDashboard(ctx context.Context, sessionID uuid.UUID) (*Dashboard, error) {
	if raw, ok := as.cache.Get(ctx, dashboardKey(sessionID)); ok {
		var cached Dashboard
		if err := json.Unmarshal([]byte(raw), &cached); err == nil {
			return &cached, nil
		}
	}

	dbc := dbctx.Context{Ctx: ctx}
	session, err := as.sessionRepo.GetByID(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apierr.NotFound("alignment session %s not found", sessionID)
	}
	changedSet, err := parseChangedSet(session)
	if err != nil {
		return nil, err
	}
	reviews, err := as.reviewRepo.ListBySessionID(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	reviewerRows, err := as.reviewerRepo.ListBySessionID(dbc, sessionID)
	if err != nil {
		return nil, err
	}

	byRequirement := make(map[uuid.UUID]*RequirementReviewSummary)
	ordered := changedSet.ChangedIDs()
	for _, id := range ordered {
		byRequirement[id] = &RequirementReviewSummary{RequirementID: id, Comments: []ReviewComment{}}
	}
	for _, rev := range reviews {
		summary, ok := byRequirement[rev.RequirementID]
		if !ok {
			continue
		}
		switch rev.Assessment {
		case types.AssessmentMinor:
			summary.Minor++
		case types.AssessmentMajor:
			summary.Major++
		case types.AssessmentNOK:
			summary.NOK++
		}
		summary.Comments = append(summary.Comments, ReviewComment{
			ReviewerID: rev.ReviewerID,
			Assessment: rev.Assessment,
			Comment:    rev.Comment,
		})
	}

	dashboard := &Dashboard{
		SessionID:     sessionID,
		SessionStatus: session.Status,
		Requirements:  make([]RequirementReviewSummary, 0, len(ordered)),
		Reviewers:     make([]ReviewerProgress, 0, len(reviewerRows)),
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].String() < ordered[j].String() })
	for _, id := range ordered {
		dashboard.Requirements = append(dashboard.Requirements, *byRequirement[id])
	}
	for _, row := range reviewerRows {
		dashboard.Reviewers = append(dashboard.Reviewers, ReviewerProgress{UserID: row.UserID, Status: row.Status})
	}

	if raw, err := json.Marshal(dashboard); err == nil {
		as.cache.Set(ctx, dashboardKey(sessionID), string(raw))
	}
	return dashboard, nil
}

// SendReminders emits one intent per reviewer not yet COMPLETED and returns
// how many were addressed. Overdue-ness is the caller's judgment; the engine
// enforces no deadline of its own.
func (as *alignmentService) SendReminders(ctx context.Context, sessionID uuid.UUID) (int, error) {
	if _, err := as.requireOp(ctx, access.OpSendReminders); err != nil {
		return 0, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	session, err := as.getOpenSession(dbc, sessionID)
	if err != nil {
		return 0, err
	}
	release, err := as.releaseRepo.GetByID(dbc, session.ReleaseID)
	if err != nil {
		return 0, err
	}
	if release == nil {
		return 0, apierr.NotFound("release %s not found", session.ReleaseID)
	}
	reviewerRows, err := as.reviewerRepo.ListBySessionID(dbc, sessionID)
	if err != nil {
		return 0, err
	}
	var pendingIDs []uuid.UUID
	for _, row := range reviewerRows {
		if row.Status != types.ReviewerCompleted {
			pendingIDs = append(pendingIDs, row.UserID)
		}
	}
	if len(pendingIDs) == 0 {
		return 0, nil
	}
	users, err := as.userRepo.GetByIDs(dbc, pendingIDs)
	if err != nil {
		return 0, err
	}
	as.notifier.ReviewReminder(ctx, users, release)
	as.log.Info("Reminders sent", "session_id", sessionID, "reviewers", len(users))
	return len(users), nil
}

func (as *alignmentService) getOpenSession(dbc dbctx.Context, sessionID uuid.UUID) (*types.AlignmentSession, error) {
	session, err := as.sessionRepo.GetByID(dbc, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, apierr.NotFound("alignment session %s not found", sessionID)
	}
	if session.Status != types.SessionOpen {
		return nil, apierr.State("alignment session is %s, not OPEN", session.Status).
			WithDetails(string(session.Status))
	}
	return session, nil
}

func parseChangedSet(session *types.AlignmentSession) (*diff.Result, error) {
	var changedSet diff.Result
	if err := json.Unmarshal(session.ChangedSet, &changedSet); err != nil {
		return nil, apierr.State("session changed-set is unreadable").WithCause(err)
	}
	return &changedSet, nil
}

func containsID(ids []uuid.UUID, want uuid.UUID) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}

const activeReleaseKey = "release:active"

func dashboardKey(sessionID uuid.UUID) string {
	return "alignment:dashboard:" + sessionID.String()
}
