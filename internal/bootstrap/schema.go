package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/tradedesk/backoffice/internal/infrastructure/persistence"
	"github.com/tradedesk/backoffice/pkg/auth"
	"github.com/tradedesk/backoffice/pkg/utils"
)

// schemaDDL creates every table the engine owns. Statements are idempotent
// so startup can run them unconditionally.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS wf_template (
		id VARCHAR(36) PRIMARY KEY,
		code VARCHAR(100) NOT NULL UNIQUE,
		label VARCHAR(255) NOT NULL,
		description TEXT,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		display_order INT NOT NULL DEFAULT 0,
		initial_fields JSON,
		version BIGINT NOT NULL DEFAULT 1,
		created_date DATETIME NOT NULL,
		last_modified_date DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS wf_step (
		id VARCHAR(36) PRIMARY KEY,
		template_id VARCHAR(36) NOT NULL,
		step_order INT NOT NULL,
		code VARCHAR(100) NOT NULL,
		label VARCHAR(255) NOT NULL,
		fields JSON,
		required_documents JSON,
		requires_approval TINYINT(1) NOT NULL DEFAULT 0,
		approver_roles JSON,
		executor_roles JSON,
		trigger_action VARCHAR(100),
		UNIQUE KEY uk_step_template_order (template_id, step_order),
		UNIQUE KEY uk_step_template_code (template_id, code),
		KEY idx_step_template (template_id)
	)`,
	`CREATE TABLE IF NOT EXISTS wf_engagement (
		id VARCHAR(36) PRIMARY KEY,
		reference VARCHAR(50) NOT NULL UNIQUE,
		template_id VARCHAR(36) NOT NULL,
		current_step_id VARCHAR(36),
		status VARCHAR(20) NOT NULL,
		field_values JSON,
		version BIGINT NOT NULL DEFAULT 1,
		created_by_id VARCHAR(36),
		created_date DATETIME NOT NULL,
		last_modified_date DATETIME NOT NULL,
		KEY idx_engagement_template (template_id),
		KEY idx_engagement_status_modified (status, last_modified_date)
	)`,
	`CREATE TABLE IF NOT EXISTS wf_step_completion (
		id VARCHAR(36) PRIMARY KEY,
		engagement_id VARCHAR(36) NOT NULL,
		step_id VARCHAR(36),
		step_code VARCHAR(100) NOT NULL,
		outcome VARCHAR(20) NOT NULL,
		field_values JSON,
		document_ids JSON,
		acting_user_id VARCHAR(36) NOT NULL,
		approval_decision VARCHAR(20),
		approver_id VARCHAR(36),
		comment TEXT,
		occurred_date DATETIME(6) NOT NULL,
		KEY idx_completion_engagement (engagement_id, occurred_date)
	)`,
	`CREATE TABLE IF NOT EXISTS wf_document (
		id VARCHAR(36) PRIMARY KEY,
		engagement_id VARCHAR(36) NOT NULL,
		type_tag VARCHAR(100) NOT NULL,
		file_name VARCHAR(255) NOT NULL,
		storage_ref VARCHAR(512) NOT NULL,
		uploaded_by_id VARCHAR(36),
		uploaded_date DATETIME NOT NULL,
		KEY idx_document_engagement_tag (engagement_id, type_tag)
	)`,
	`CREATE TABLE IF NOT EXISTS wf_trigger_outbox (
		id VARCHAR(36) PRIMARY KEY,
		action_tag VARCHAR(100) NOT NULL,
		engagement_id VARCHAR(36) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		retry_count INT NOT NULL DEFAULT 0,
		error_message TEXT,
		created_date DATETIME NOT NULL,
		processed_date DATETIME,
		last_modified_date DATETIME NOT NULL,
		KEY idx_outbox_status_created (status, created_date)
	)`,
	`CREATE TABLE IF NOT EXISTS wf_user (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		roles JSON,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_date DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS td_client (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS td_bank (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS td_counterparty (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL
	)`,
}

// EnsureSchema creates all engine tables if they do not exist.
// This should be called during server startup BEFORE accepting requests.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	log.Println("🔧 Ensuring database schema...")
	for _, ddl := range schemaDDL {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}
	log.Printf("   ✅ Ensured %d tables", len(schemaDDL))
	return nil
}

// SeedAdminUser creates the initial administrator account when no user with
// the configured email exists yet. Credentials come from ADMIN_EMAIL and
// ADMIN_PASSWORD; seeding is skipped when either is unset.
func SeedAdminUser(ctx context.Context, users *persistence.UserRepository) error {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		log.Println("⚠️ ADMIN_EMAIL/ADMIN_PASSWORD not set, skipping admin seed")
		return nil
	}

	exists, err := users.ExistsByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to check admin user: %w", err)
	}
	if exists {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	if err := users.Insert(ctx, utils.GenerateID(), "Administrator", email, hash, []string{"admin"}); err != nil {
		return fmt.Errorf("failed to seed admin user: %w", err)
	}
	log.Printf("   ✅ Seeded admin user %s", email)
	return nil
}
