package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/normgate/normgate-backend/internal/access"
	"github.com/normgate/normgate-backend/internal/pkg/dbctx"
	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/repos"
	"github.com/normgate/normgate-backend/internal/requestdata"
	"github.com/normgate/normgate-backend/internal/types"
)

// recordingNotifier captures notification intents instead of sending mail.
type recordingNotifier struct {
	mu        sync.Mutex
	requested [][]*types.User
	reminded  [][]*types.User
}

func (n *recordingNotifier) ReviewRequested(_ context.Context, reviewers []*types.User, _ *types.Release) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requested = append(n.requested, reviewers)
}

func (n *recordingNotifier) ReviewReminder(_ context.Context, reviewers []*types.User, _ *types.Release) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reminded = append(n.reminded, reviewers)
}

type testEnv struct {
	db              *gorm.DB
	releaseService  ReleaseService
	alignService    AlignmentService
	reqService      RequirementService
	userService     UserService
	requirementRepo repos.RequirementRepo
	snapshotRepo    repos.SnapshotRepo
	releaseRepo     repos.ReleaseRepo
	reviewerRepo    repos.AlignmentReviewerRepo
	sessionRepo     repos.AlignmentSessionRepo
	notifier        *recordingNotifier
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&types.User{},
		&types.Requirement{},
		&types.Release{},
		&types.RequirementSnapshot{},
		&types.AlignmentSession{},
		&types.AlignmentReviewer{},
		&types.RequirementReview{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	policy := access.NewPolicy()

	userRepo := repos.NewUserRepo(db, log)
	requirementRepo := repos.NewRequirementRepo(db, log)
	releaseRepo := repos.NewReleaseRepo(db, log)
	snapshotRepo := repos.NewSnapshotRepo(db, log)
	sessionRepo := repos.NewAlignmentSessionRepo(db, log)
	reviewerRepo := repos.NewAlignmentReviewerRepo(db, log)
	reviewRepo := repos.NewRequirementReviewRepo(db, log)

	notifier := &recordingNotifier{}
	releaseService := NewReleaseService(db, log, policy, releaseRepo, snapshotRepo, requirementRepo, sessionRepo)
	alignService := NewAlignmentService(db, log, policy, nil, releaseRepo, snapshotRepo, sessionRepo, reviewerRepo, reviewRepo, userRepo, notifier)
	reqService := NewRequirementService(db, log, policy, requirementRepo, releaseService)
	userService := NewUserService(db, log, policy, userRepo)

	return &testEnv{
		db:              db,
		releaseService:  releaseService,
		alignService:    alignService,
		reqService:      reqService,
		userService:     userService,
		requirementRepo: requirementRepo,
		snapshotRepo:    snapshotRepo,
		releaseRepo:     releaseRepo,
		reviewerRepo:    reviewerRepo,
		sessionRepo:     sessionRepo,
		notifier:        notifier,
	}
}

func actorCtx(roles ...access.Role) context.Context {
	return actorCtxAs(uuid.New(), roles...)
}

func actorCtxAs(actorID uuid.UUID, roles ...access.Role) context.Context {
	return requestdata.WithRequestData(context.Background(), &requestdata.RequestData{
		ActorID: actorID,
		Email:   "actor@example.com",
		Roles:   roles,
	})
}

func (e *testEnv) seedUser(t *testing.T, roles ...access.Role) *types.User {
	t.Helper()
	user := &types.User{
		Email:     fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		Password:  "x",
		FirstName: "Test",
		LastName:  "User",
		Roles:     types.RolesJSON(roles),
	}
	if err := e.db.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (e *testEnv) seedRequirement(t *testing.T, shortreq string, details *string) *types.Requirement {
	t.Helper()
	req := &types.Requirement{
		Shortreq: shortreq,
		Details:  details,
	}
	created, err := e.requirementRepo.Create(dbctx.Background(), req)
	if err != nil {
		t.Fatalf("seed requirement: %v", err)
	}
	return created
}

func strPtr(s string) *string { return &s }
