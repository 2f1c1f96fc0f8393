package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tradedesk/backoffice/internal/domain/ports"
)

// ReminderActionTag is the trigger action emitted for stale engagements
const ReminderActionTag = "engagement_stale_reminder"

// SchedulerService sweeps in-progress engagements that have sat untouched
// past the staleness cutoff and emits a reminder through the trigger sink.
// The sweep schedule is a standard five-field cron expression.
type SchedulerService struct {
	engagements ports.EngagementStore
	triggers    ports.TriggerSink
	schedule    cron.Schedule
	staleAfter  time.Duration

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewSchedulerService parses the cron expression and creates the service
func NewSchedulerService(engagements ports.EngagementStore, triggers ports.TriggerSink, cronExpr string, staleAfter time.Duration) (*SchedulerService, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronExpr)
	if err != nil {
		return nil, err
	}
	return &SchedulerService{
		engagements: engagements,
		triggers:    triggers,
		schedule:    schedule,
		staleAfter:  staleAfter,
		stopCh:      make(chan struct{}),
	}, nil
}

// Start begins the scheduler background loop
func (s *SchedulerService) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Println("⏰ Reminder scheduler starting...")
	s.wg.Add(1)
	go s.loop()
}

// Stop gracefully stops the scheduler
func (s *SchedulerService) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
	log.Println("⏰ Reminder scheduler stopped")
}

func (s *SchedulerService) loop() {
	defer s.wg.Done()
	for {
		next := s.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-timer.C:
			s.sweep()
		case <-s.stopCh:
			timer.Stop()
			return
		}
	}
}

// sweep finds stale engagements and notifies the sink once per engagement.
// Failures are logged and skipped; the next sweep retries naturally.
func (s *SchedulerService) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().UTC().Add(-s.staleAfter)
	stale, err := s.engagements.ListStaleInProgress(ctx, cutoff)
	if err != nil {
		log.Printf("⚠️ Reminder sweep failed to list stale engagements: %v", err)
		return
	}
	for _, engagement := range stale {
		if err := s.triggers.Notify(ctx, ReminderActionTag, engagement.ID); err != nil {
			log.Printf("⚠️ Reminder notification failed for %s: %v", engagement.Reference, err)
			continue
		}
	}
	if len(stale) > 0 {
		log.Printf("⏰ Reminder sweep flagged %d stale engagement(s)", len(stale))
	}
}
