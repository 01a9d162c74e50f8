package db

import (
  "fmt"

  "gorm.io/driver/postgres"
  "gorm.io/gorm"

  "github.com/yayska-org/yayska-backend/internal/logger"
  "github.com/yayska-org/yayska-backend/internal/types"
  "github.com/yayska-org/yayska-backend/internal/utils"
)

type PostgresService struct {
  db  *gorm.DB
  log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
  serviceLog := log.With("service", "PostgresService")

  //1) Get and Set Environment Variables
  log.Info("Attempting to load environment variables for Postgres now...")
  postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
  postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
  postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
  postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
  postgresName := utils.GetEnv("POSTGRES_NAME", "yayska", log)
  log.Info("Environment variables loaded for Postgres :)")

  //2) Construct DSN From Environment Variables
  dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

  //3) Attempt DB Connection
  log.Info("Attempting to connect to Postgres DB now...")
  db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
    DisableForeignKeyConstraintWhenMigrating: true,
  })
  if err != nil {
    log.Error("Failed to connect to Postgres DB", "error", err)
    return nil, fmt.Errorf("Failed to connect to Postgres DB: %w", err)
  }
  log.Info("Successfully Connected to Postgres DB :)")

  return &PostgresService{db: db, log: serviceLog}, nil
}

func (s *PostgresService) DB() *gorm.DB {
  return s.db
}

func (s *PostgresService) AutoMigrateAll() error {
  s.log.Info("Starting AutoMigrateAll for all GORM models now...")

  err := s.db.AutoMigrate(
    &types.User{},
    &types.SchoolYear{},
    &types.Subject{},
    &types.Concept{},
    &types.ConceptMetadata{},
    &types.Child{},
    &types.ChatSession{},
    &types.ChatMessage{},
  )
  if err != nil {
    s.log.Error("AutoMigrateAll failed for Base Tables :(", "error", err)
    return err
  }
  s.log.Info("AutoMigrateAll completed successfully for Base Tables :)")

  s.log.Info("Configuring Foreign Key Relationships for Base Tables now...")
  // -- Concept.subject_id => subject.id (ON DELETE SET NULL)
  if err := s.db.Exec(`
    ALTER TABLE "concept"
    ADD CONSTRAINT "fk_concept_subject_id"
    FOREIGN KEY ("subject_id")
    REFERENCES "subject"("id")
    ON DELETE SET NULL
  `).Error; err != nil {
    return fmt.Errorf("failed to add fk_concept_subject_id: %w", err)
  }
  // -- ConceptMetadata.concept_id => concept.id (ON DELETE CASCADE)
  if err := s.db.Exec(`
    ALTER TABLE "concept_metadata"
    ADD CONSTRAINT "fk_concept_metadata_concept_id"
    FOREIGN KEY ("concept_id")
    REFERENCES "concept"("id")
    ON DELETE CASCADE
  `).Error; err != nil {
    return fmt.Errorf("failed to add fk_concept_metadata_concept_id: %w", err)
  }
  // -- Child.user_id => user.id (ON DELETE CASCADE)
  if err := s.db.Exec(`
    ALTER TABLE "child"
    ADD CONSTRAINT "fk_child_user_id"
    FOREIGN KEY ("user_id")
    REFERENCES "user"("id")
    ON DELETE CASCADE
  `).Error; err != nil {
    return fmt.Errorf("failed to add fk_child_user_id: %w", err)
  }
  // -- Child.school_year_id => school_year.id (ON DELETE SET NULL)
  if err := s.db.Exec(`
    ALTER TABLE "child"
    ADD CONSTRAINT "fk_child_school_year_id"
    FOREIGN KEY ("school_year_id")
    REFERENCES "school_year"("id")
    ON DELETE SET NULL
  `).Error; err != nil {
    return fmt.Errorf("failed to add fk_child_school_year_id: %w", err)
  }
  // -- ChatSession.user_id => user.id (ON DELETE CASCADE)
  if err := s.db.Exec(`
    ALTER TABLE "chat_session"
    ADD CONSTRAINT "fk_chat_session_user_id"
    FOREIGN KEY ("user_id")
    REFERENCES "user"("id")
    ON DELETE CASCADE
  `).Error; err != nil {
    return fmt.Errorf("failed to add fk_chat_session_user_id: %w", err)
  }
  // -- ChatSession.child_id => child.id (ON DELETE CASCADE)
  if err := s.db.Exec(`
    ALTER TABLE "chat_session"
    ADD CONSTRAINT "fk_chat_session_child_id"
    FOREIGN KEY ("child_id")
    REFERENCES "child"("id")
    ON DELETE CASCADE
  `).Error; err != nil {
    return fmt.Errorf("failed to add fk_chat_session_child_id: %w", err)
  }
  // -- ChatMessage.session_id => chat_session.id (ON DELETE CASCADE)
  if err := s.db.Exec(`
    ALTER TABLE "chat_message"
    ADD CONSTRAINT "fk_chat_message_session_id"
    FOREIGN KEY ("session_id")
    REFERENCES "chat_session"("id")
    ON DELETE CASCADE
  `).Error; err != nil {
    return fmt.Errorf("failed to add fk_chat_message_session_id: %w", err)
  }
  s.log.Info("Foreign Key Relationships for Base Tables configured :)")
  return nil
}
