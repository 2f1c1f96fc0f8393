package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradedesk/backoffice/internal/domain/models"
	"github.com/tradedesk/backoffice/pkg/errors"
)

func newHistoryFixture(t *testing.T) (*HistoryService, *fakeEngagementStore, *models.Engagement) {
	t.Helper()
	templates := newFakeTemplateStore()
	engagements := newFakeEngagementStore()
	svc := NewHistoryService(engagements, engagements, templates)

	engagement := &models.Engagement{
		ID:         "eng-1",
		Reference:  "LC-2026-AB12CD",
		TemplateID: "tpl-1",
		Status:     models.EngagementStatusInProgress,
		Version:    1,
	}
	require.NoError(t, engagements.Insert(context.Background(), engagement))
	return svc, engagements, engagement
}

func completionAt(engagementID, stepCode string, at time.Time) *models.StepCompletion {
	return &models.StepCompletion{
		ID:           stepCode + "-id",
		EngagementID: engagementID,
		StepCode:     stepCode,
		Outcome:      models.OutcomeCompleted,
		ActingUserID: "user-1",
		OccurredDate: at,
	}
}

func TestListCompletionsIsLazyAndRestartable(t *testing.T) {
	svc, store, engagement := newHistoryFixture(t)
	ctx := context.Background()

	base := time.Now().UTC()
	store.completions = append(store.completions,
		completionAt(engagement.ID, "first", base),
		completionAt(engagement.ID, "second", base.Add(time.Minute)),
	)

	seq := svc.ListCompletions(ctx, engagement.ID)

	// Abandon the first pass early
	var firstPass []string
	for completion, err := range seq {
		require.NoError(t, err)
		firstPass = append(firstPass, completion.StepCode)
		break
	}
	assert.Equal(t, []string{"first"}, firstPass)

	// A write lands between the two passes
	store.completions = append(store.completions,
		completionAt(engagement.ID, "third", base.Add(2*time.Minute)))

	// The same sequence re-reads from the store
	var secondPass []string
	for completion, err := range seq {
		require.NoError(t, err)
		secondPass = append(secondPass, completion.StepCode)
	}
	assert.Equal(t, []string{"first", "second", "third"}, secondPass)
}

func TestListCompletionsOrderedByOccurrence(t *testing.T) {
	svc, store, engagement := newHistoryFixture(t)

	base := time.Now().UTC()
	// Inserted out of order on purpose
	store.completions = append(store.completions,
		completionAt(engagement.ID, "second", base.Add(time.Minute)),
		completionAt(engagement.ID, "first", base),
	)
	// Another engagement's history must not leak in
	store.completions = append(store.completions, completionAt("other", "foreign", base))

	var codes []string
	for completion, err := range svc.ListCompletions(context.Background(), engagement.ID) {
		require.NoError(t, err)
		codes = append(codes, completion.StepCode)
	}
	assert.Equal(t, []string{"first", "second"}, codes)
}

func TestGetAuditTrailResolvesStepLabels(t *testing.T) {
	templates := newFakeTemplateStore()
	engagements := newFakeEngagementStore()
	svc := NewHistoryService(engagements, engagements, templates)

	template := letterOfCreditTemplate()
	require.NoError(t, NewTemplateService(templates).CreateTemplate(context.Background(), template))

	engagement := &models.Engagement{
		ID:         "eng-1",
		Reference:  "LC-2026-AB12CD",
		TemplateID: template.ID,
		Status:     models.EngagementStatusInProgress,
		Version:    1,
	}
	require.NoError(t, engagements.Insert(context.Background(), engagement))

	stepID := template.Steps[0].ID
	engagements.completions = append(engagements.completions, &models.StepCompletion{
		ID:           "c1",
		EngagementID: engagement.ID,
		StepID:       &stepID,
		StepCode:     "data_entry",
		Outcome:      models.OutcomeCompleted,
		ActingUserID: "user-1",
		OccurredDate: time.Now().UTC(),
	})

	trail, err := svc.Get(context.Background(), engagement.ID)
	require.NoError(t, err)
	require.Len(t, trail.Completions, 1)
	assert.Equal(t, "Data Entry", trail.StepLabels[stepID])
}

func TestGetAuditTrailUnknownEngagement(t *testing.T) {
	svc, _, _ := newHistoryFixture(t)

	_, err := svc.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}
