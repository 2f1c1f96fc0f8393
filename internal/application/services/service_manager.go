package services

import (
	"os"
	"time"

	"github.com/tradedesk/backoffice/internal/infrastructure/database"
	"github.com/tradedesk/backoffice/internal/infrastructure/persistence"
)

// ServiceManager orchestrates all services with dependency injection
type ServiceManager struct {
	db *database.Connection

	// Repositories
	TxManager   *persistence.TransactionManager
	Templates   *persistence.TemplateRepository
	Engagements *persistence.EngagementRepository
	Completions *persistence.CompletionRepository
	Documents   *persistence.DocumentRepository
	Users       *persistence.UserRepository
	Relations   *persistence.RelationResolver

	// Services
	Auth       *AuthService
	Template   *TemplateService
	Executor   *TransitionExecutor
	Engagement *EngagementService
	History    *HistoryService
	Document   *DocumentService
	Triggers   *TriggerOutboxService
	Scheduler  *SchedulerService
}

// NewServiceManager creates a new service manager with all dependencies wired
func NewServiceManager(db *database.Connection) (*ServiceManager, error) {
	sm := &ServiceManager{db: db}

	// Repositories in dependency order
	sm.TxManager = persistence.NewTransactionManager(db)
	sm.Templates = persistence.NewTemplateRepository(db.DB(), sm.TxManager)
	sm.Engagements = persistence.NewEngagementRepository(db.DB(), sm.TxManager)
	sm.Completions = persistence.NewCompletionRepository(db.DB())
	sm.Documents = persistence.NewDocumentRepository(db.DB())
	sm.Users = persistence.NewUserRepository(db.DB())
	sm.Relations = persistence.NewRelationResolver(db.DB())

	// Trigger outbox before the executor that feeds it
	sm.Triggers = NewTriggerOutboxService(db)

	sm.Auth = NewAuthService(sm.Users)
	sm.Template = NewTemplateService(sm.Templates)
	sm.Executor = NewTransitionExecutor(sm.Templates, sm.Engagements, NewSessionRoleChecker(), sm.Documents, sm.Triggers)
	sm.Engagement = NewEngagementService(sm.Templates, sm.Engagements, sm.Relations, sm.Executor)
	sm.History = NewHistoryService(sm.Completions, sm.Engagements, sm.Templates)
	sm.Document = NewDocumentService(sm.Documents, sm.Engagements)

	scheduler, err := NewSchedulerService(sm.Engagements, sm.Triggers, reminderCronExpr(), reminderStaleAfter())
	if err != nil {
		return nil, err
	}
	sm.Scheduler = scheduler

	return sm, nil
}

// StartWorkers starts the trigger outbox worker and the reminder scheduler
func (sm *ServiceManager) StartWorkers() {
	sm.Triggers.StartWorker(5 * time.Second)
	sm.Scheduler.Start()
}

// StopWorkers stops all background workers gracefully
func (sm *ServiceManager) StopWorkers() {
	sm.Scheduler.Stop()
	sm.Triggers.StopWorker()
}

func reminderCronExpr() string {
	if expr := os.Getenv("REMINDER_CRON"); expr != "" {
		return expr
	}
	return "0 8 * * *"
}

func reminderStaleAfter() time.Duration {
	if raw := os.Getenv("REMINDER_STALE_AFTER"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return 72 * time.Hour
}
