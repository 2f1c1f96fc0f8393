package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/tradedesk/backoffice/internal/infrastructure/database"
	"github.com/tradedesk/backoffice/internal/infrastructure/persistence"
)

// Trigger event status constants
const (
	TriggerStatusPending   = "pending"
	TriggerStatusProcessed = "processed"
	TriggerStatusFailed    = "failed"
	TriggerMaxRetries      = 5
)

// TriggerHandler delivers one trigger action to a downstream system
type TriggerHandler func(ctx context.Context, engagementID string) error

// TriggerOutboxService persists trigger-action notifications and delivers
// them asynchronously. A transition only records that the action fired; a
// delivery failure is retried by the worker and never affects the
// transition that caused it.
type TriggerOutboxService struct {
	db   *database.Connection
	repo *persistence.TriggerOutboxRepository

	mu       sync.RWMutex
	handlers map[string]TriggerHandler

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTriggerOutboxService creates a new TriggerOutboxService
func NewTriggerOutboxService(db *database.Connection) *TriggerOutboxService {
	return &TriggerOutboxService{
		db:       db,
		repo:     persistence.NewTriggerOutboxRepository(db.DB()),
		handlers: make(map[string]TriggerHandler),
		stopCh:   make(chan struct{}),
	}
}

// RegisterHandler binds a delivery handler to an action tag. Events with no
// registered handler are logged and marked processed.
func (s *TriggerOutboxService) RegisterHandler(actionTag string, handler TriggerHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[actionTag] = handler
}

// Notify enqueues a trigger event for asynchronous delivery
func (s *TriggerOutboxService) Notify(ctx context.Context, actionTag, engagementID string) error {
	id, err := s.repo.Enqueue(ctx, s.db.DB(), actionTag, engagementID)
	if err != nil {
		return err
	}
	log.Printf("✅ [Trigger] Enqueued action %s for engagement %s (ID: %s)", actionTag, engagementID, id)
	return nil
}

// StartWorker starts the background worker that delivers pending events.
// The worker polls with the specified interval.
func (s *TriggerOutboxService) StartWorker(interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		cleanup := time.NewTicker(time.Hour)
		defer cleanup.Stop()

		log.Printf("📤 Trigger worker started with %v interval", interval)

		for {
			select {
			case <-s.stopCh:
				log.Printf("📤 Trigger worker stopping...")
				return
			case <-ticker.C:
				if err := s.ProcessOutbox(context.Background()); err != nil {
					log.Printf("⚠️ Trigger worker error: %v", err)
				}
			case <-cleanup.C:
				if n, err := s.CleanupProcessed(context.Background(), 24*time.Hour); err != nil {
					log.Printf("⚠️ Trigger cleanup error: %v", err)
				} else if n > 0 {
					log.Printf("🔄 [Trigger] Cleaned up %d processed events", n)
				}
			}
		}
	}()
}

// CleanupProcessed deletes processed events older than the retention
// window. The worker calls this hourly to keep the outbox table small.
func (s *TriggerOutboxService) CleanupProcessed(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.repo.CleanupProcessed(ctx, time.Now().Add(-olderThan))
}

// StopWorker stops the background worker gracefully
func (s *TriggerOutboxService) StopWorker() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	log.Printf("📤 Trigger worker stopped")
}

// ProcessOutbox delivers all pending trigger events. Each event is
// processed in its own transaction: claim, deliver, update status.
func (s *TriggerOutboxService) ProcessOutbox(ctx context.Context) error {
	events, err := s.repo.GetPendingEvents(ctx, 100)
	if err != nil {
		return err
	}

	if len(events) > 0 {
		log.Printf("🔄 [Trigger] Processing %d pending events", len(events))
	}

	for _, e := range events {
		if err := s.processEventAtomic(ctx, e); err != nil {
			log.Printf("⚠️ Failed to process trigger event %s: %v", e.ID, err)
		}
	}
	return nil
}

func (s *TriggerOutboxService) processEventAtomic(ctx context.Context, event persistence.TriggerEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	claimedID, err := s.repo.ClaimEvent(ctx, tx, event.ID)
	if err != nil {
		return fmt.Errorf("failed to claim event: %w", err)
	}
	if claimedID == "" {
		return nil // Already processed/locked
	}

	if err := s.deliver(ctx, event.ActionTag, event.EngagementID); err != nil {
		newRetryCount := event.RetryCount + 1
		if newRetryCount >= TriggerMaxRetries {
			if markErr := s.repo.UpdateStatus(ctx, tx, event.ID, TriggerStatusFailed, fmt.Sprintf("max retries exceeded: %v", err)); markErr != nil {
				return fmt.Errorf("failed to mark event as failed: %w", markErr)
			}
			return tx.Commit()
		}

		if updateErr := s.repo.IncrementRetry(ctx, tx, event.ID, newRetryCount, err.Error()); updateErr != nil {
			return fmt.Errorf("failed to update retry count: %w", updateErr)
		}
		log.Printf("⚠️ [Trigger] Event %s failed (Attempt %d/%d). Error: %v", event.ID, newRetryCount, TriggerMaxRetries, err)
		return tx.Commit()
	}

	if err := s.repo.UpdateStatus(ctx, tx, event.ID, TriggerStatusProcessed, ""); err != nil {
		return fmt.Errorf("failed to mark as processed: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	log.Printf("✅ [Trigger] Delivered action %s for engagement %s", event.ActionTag, event.EngagementID)
	return nil
}

func (s *TriggerOutboxService) deliver(ctx context.Context, actionTag, engagementID string) error {
	s.mu.RLock()
	handler, ok := s.handlers[actionTag]
	s.mu.RUnlock()

	if !ok {
		// No downstream system registered; the notification itself is the
		// contract, delivery is best-effort.
		log.Printf("▶️ [Trigger] Action %s fired for engagement %s (no handler registered)", actionTag, engagementID)
		return nil
	}
	return handler(ctx, engagementID)
}
