package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/tradedesk/backoffice/internal/domain/models"
	"github.com/tradedesk/backoffice/pkg/errors"
)

// In-memory stores backing service tests. Reads hand out deep copies so a
// caller's mutations stay invisible until committed, matching the snapshot
// semantics of the SQL repositories.

func cloneTemplate(t *models.Template) *models.Template {
	data, _ := json.Marshal(t)
	var clone models.Template
	_ = json.Unmarshal(data, &clone)
	return &clone
}

func cloneEngagement(e *models.Engagement) *models.Engagement {
	data, _ := json.Marshal(e)
	var clone models.Engagement
	_ = json.Unmarshal(data, &clone)
	return &clone
}

type fakeTemplateStore struct {
	mu          sync.Mutex
	templates   map[string]*models.Template
	engagements map[string]bool
}

func newFakeTemplateStore() *fakeTemplateStore {
	return &fakeTemplateStore{
		templates:   make(map[string]*models.Template),
		engagements: make(map[string]bool),
	}
}

func (s *fakeTemplateStore) Insert(_ context.Context, template *models.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[template.ID] = cloneTemplate(template)
	return nil
}

func (s *fakeTemplateStore) Update(_ context.Context, template *models.Template, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.templates[template.ID]
	if !ok {
		return errors.NewNotFoundError("template", template.ID)
	}
	if stored.Version != expectedVersion {
		return errors.NewConcurrentModificationError("template", template.ID)
	}
	s.templates[template.ID] = cloneTemplate(template)
	return nil
}

func (s *fakeTemplateStore) GetByID(_ context.Context, id string) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.templates[id]
	if !ok {
		return nil, nil
	}
	return cloneTemplate(stored), nil
}

func (s *fakeTemplateStore) GetByCode(_ context.Context, code string) (*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, stored := range s.templates {
		if stored.Code == code {
			return cloneTemplate(stored), nil
		}
	}
	return nil, nil
}

func (s *fakeTemplateStore) List(_ context.Context) ([]*models.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*models.Template, 0, len(s.templates))
	for _, stored := range s.templates {
		out = append(out, cloneTemplate(stored))
	}
	return out, nil
}

func (s *fakeTemplateStore) HasEngagements(_ context.Context, templateID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engagements[templateID], nil
}

type fakeEngagementStore struct {
	mu          sync.Mutex
	engagements map[string]*models.Engagement
	completions []*models.StepCompletion

	// loadBarrier, when set, is invoked on every GetByID before returning.
	// Tests use it to force two callers to load the same snapshot.
	loadBarrier func()
}

func newFakeEngagementStore() *fakeEngagementStore {
	return &fakeEngagementStore{engagements: make(map[string]*models.Engagement)}
}

func (s *fakeEngagementStore) Insert(_ context.Context, engagement *models.Engagement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engagements[engagement.ID] = cloneEngagement(engagement)
	return nil
}

func (s *fakeEngagementStore) GetByID(_ context.Context, id string) (*models.Engagement, error) {
	s.mu.Lock()
	stored, ok := s.engagements[id]
	var clone *models.Engagement
	if ok {
		clone = cloneEngagement(stored)
	}
	s.mu.Unlock()

	if s.loadBarrier != nil {
		s.loadBarrier()
	}
	if clone == nil {
		return nil, nil
	}
	return clone, nil
}

func (s *fakeEngagementStore) UpdateWithCompletion(_ context.Context, engagement *models.Engagement, expectedVersion int64, completion *models.StepCompletion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.engagements[engagement.ID]
	if !ok {
		return errors.NewNotFoundError("engagement", engagement.ID)
	}
	if stored.Version != expectedVersion {
		return errors.NewConcurrentModificationError("engagement", engagement.ID)
	}
	s.engagements[engagement.ID] = cloneEngagement(engagement)
	if completion != nil {
		s.completions = append(s.completions, completion)
	}
	return nil
}

func (s *fakeEngagementStore) ListStaleInProgress(_ context.Context, cutoff time.Time) ([]*models.Engagement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []*models.Engagement
	for _, stored := range s.engagements {
		if stored.Status == models.EngagementStatusInProgress && stored.LastModified.Before(cutoff) {
			stale = append(stale, cloneEngagement(stored))
		}
	}
	return stale, nil
}

// ListByEngagement lets the fake double as the history store
func (s *fakeEngagementStore) ListByEngagement(_ context.Context, engagementID string) ([]*models.StepCompletion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.StepCompletion
	for _, c := range s.completions {
		if c.EngagementID == engagementID {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredDate.Before(out[j].OccurredDate) })
	return out, nil
}

type fakeDocumentRegistry struct {
	mu   sync.Mutex
	tags map[string][]string // engagement id -> attached type tags
	ids  map[string][]string // engagement id -> document ids
}

func newFakeDocumentRegistry() *fakeDocumentRegistry {
	return &fakeDocumentRegistry{tags: make(map[string][]string), ids: make(map[string][]string)}
}

func (r *fakeDocumentRegistry) attach(engagementID, tag, docID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[engagementID] = append(r.tags[engagementID], tag)
	r.ids[engagementID] = append(r.ids[engagementID], docID)
}

func (r *fakeDocumentRegistry) HasDocumentOfType(_ context.Context, engagementID, tag string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, attached := range r.tags[engagementID] {
		if attached == tag {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeDocumentRegistry) DocumentIDs(_ context.Context, engagementID string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids[engagementID]...), nil
}

type triggerRecord struct {
	ActionTag    string
	EngagementID string
}

type fakeTriggerSink struct {
	mu       sync.Mutex
	notified []triggerRecord
	failWith error
}

func (s *fakeTriggerSink) Notify(_ context.Context, actionTag, engagementID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	s.notified = append(s.notified, triggerRecord{ActionTag: actionTag, EngagementID: engagementID})
	return nil
}

func (s *fakeTriggerSink) records() []triggerRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]triggerRecord(nil), s.notified...)
}

type fakeRelationResolver struct {
	labels map[string]map[string]string // target -> id -> label
}

func (r *fakeRelationResolver) Resolve(_ context.Context, target, id string) (string, error) {
	if byID, ok := r.labels[target]; ok {
		if label, ok := byID[id]; ok {
			return label, nil
		}
	}
	return "", errors.NewNotFoundError(target, id)
}
