package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/confide-ai/confide-backend/internal/logger"
	"github.com/confide-ai/confide-backend/internal/types"
	"github.com/confide-ai/confide-backend/internal/utils"
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
	postgresName := utils.GetEnv("POSTGRES_NAME", "conversation", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "host", postgresHost, "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	if err := gdb.Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		return nil, fmt.Errorf("failed to enable uuid-ossp extension: %w", err)
	}

	serviceLog.Info("Connected to Postgres", "host", postgresHost, "db", postgresName)
	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	err := s.db.AutoMigrate(
		&types.User{},
		&types.Conversation{},
		&types.Message{},
		&types.Usage{},
	)
	if err != nil {
		s.log.Error("AutoMigrate failed", "error", err)
		return err
	}

	// -- Conversation.user_id => user.id (ON DELETE CASCADE)
	if err := s.db.Exec(`
		ALTER TABLE "conversation"
		DROP CONSTRAINT IF EXISTS "fk_conversation_user_id",
		ADD CONSTRAINT "fk_conversation_user_id"
		FOREIGN KEY ("user_id")
		REFERENCES "user"("id")
		ON DELETE CASCADE
	`).Error; err != nil {
		return fmt.Errorf("failed to add fk_conversation_user_id: %w", err)
	}
	// -- Message.conversation_id => conversation.id (ON DELETE CASCADE)
	if err := s.db.Exec(`
		ALTER TABLE "message"
		DROP CONSTRAINT IF EXISTS "fk_message_conversation_id",
		ADD CONSTRAINT "fk_message_conversation_id"
		FOREIGN KEY ("conversation_id")
		REFERENCES "conversation"("id")
		ON DELETE CASCADE
	`).Error; err != nil {
		return fmt.Errorf("failed to add fk_message_conversation_id: %w", err)
	}
	// Usage rows are kept even if the conversation goes away (billing), so
	// no FK on the usage table.

	s.log.Info("AutoMigrate completed")
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
