package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/normgate/normgate-backend/internal/pkg/logger"
	"github.com/normgate/normgate-backend/internal/types"
	"github.com/normgate/normgate-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "normgate", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		log.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.User{},
		&types.Requirement{},
		&types.Release{},
		&types.RequirementSnapshot{},
		&types.AlignmentSession{},
		&types.AlignmentReviewer{},
		&types.RequirementReview{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	s.log.Info("Configuring foreign key relationships for postgres tables...")
	// Snapshots deliberately carry NO constraint on requirement_id: the live
	// requirement may be deleted while its frozen copies must survive.
	constraints := []struct {
		table string
		name  string
		ddl   string
	}{
		{"requirement_snapshot", "fk_requirement_snapshot_release_id", `
			ALTER TABLE "requirement_snapshot"
			ADD CONSTRAINT "fk_requirement_snapshot_release_id"
			FOREIGN KEY ("release_id")
			REFERENCES "release"("id")
			ON DELETE CASCADE
		`},
		{"alignment_session", "fk_alignment_session_release_id", `
			ALTER TABLE "alignment_session"
			ADD CONSTRAINT "fk_alignment_session_release_id"
			FOREIGN KEY ("release_id")
			REFERENCES "release"("id")
			ON DELETE CASCADE
		`},
		{"alignment_reviewer", "fk_alignment_reviewer_session_id", `
			ALTER TABLE "alignment_reviewer"
			ADD CONSTRAINT "fk_alignment_reviewer_session_id"
			FOREIGN KEY ("session_id")
			REFERENCES "alignment_session"("id")
			ON DELETE CASCADE
		`},
		{"alignment_reviewer", "fk_alignment_reviewer_user_id", `
			ALTER TABLE "alignment_reviewer"
			ADD CONSTRAINT "fk_alignment_reviewer_user_id"
			FOREIGN KEY ("user_id")
			REFERENCES "user"("id")
			ON DELETE CASCADE
		`},
		{"requirement_review", "fk_requirement_review_session_id", `
			ALTER TABLE "requirement_review"
			ADD CONSTRAINT "fk_requirement_review_session_id"
			FOREIGN KEY ("session_id")
			REFERENCES "alignment_session"("id")
			ON DELETE CASCADE
		`},
	}
	for _, c := range constraints {
		drop := fmt.Sprintf(`ALTER TABLE %q DROP CONSTRAINT IF EXISTS %q`, c.table, c.name)
		if err := s.db.Exec(drop).Error; err != nil {
			return fmt.Errorf("failed to reset %s: %w", c.name, err)
		}
		if err := s.db.Exec(c.ddl).Error; err != nil {
			return fmt.Errorf("failed to add %s: %w", c.name, err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
