package services

import (
	"context"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradedesk/backoffice/internal/domain/models"
	"github.com/tradedesk/backoffice/pkg/errors"
	"github.com/tradedesk/backoffice/pkg/fieldschema"
)

func TestCreateEngagementStartsAtFirstStep(t *testing.T) {
	f := newExecutorFixture(t)

	engagement := f.newEngagement(t)
	assert.Equal(t, models.EngagementStatusInProgress, engagement.Status)
	assert.Equal(t, int64(1), engagement.Version)
	require.NotNil(t, engagement.CurrentStep)
	assert.Equal(t, f.template.Steps[0].ID, *engagement.CurrentStep)
	assert.Regexp(t, regexp.MustCompile(`^LC-\d{4}-[0-9A-F]{6}$`), engagement.Reference)
}

func TestCreateEngagementCollectsInitialFormFailures(t *testing.T) {
	f := newExecutorFixture(t)

	_, err := f.service.CreateEngagement(context.Background(), f.template.ID, nil, clerk())
	require.Error(t, err)
	var failed *errors.ValidationFailedError
	require.ErrorAs(t, err, &failed)
	require.Len(t, failed.Failures, 1)
	assert.Equal(t, "client", failed.Failures[0].Field)
	assert.Equal(t, "required", failed.Failures[0].Constraint)
}

func TestCreateEngagementUnknownTemplate(t *testing.T) {
	f := newExecutorFixture(t)

	_, err := f.service.CreateEngagement(context.Background(), "missing", nil, clerk())
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestGetStatusResolvesRelationLabelsBestEffort(t *testing.T) {
	templates := newFakeTemplateStore()
	engagements := newFakeEngagementStore()
	executor := NewTransitionExecutor(templates, engagements, NewSessionRoleChecker(), newFakeDocumentRegistry(), &fakeTriggerSink{})
	resolver := &fakeRelationResolver{labels: map[string]map[string]string{
		"client": {"client-1": "Acme Shipping Ltd"},
	}}
	service := NewEngagementService(templates, engagements, resolver, executor)

	template := letterOfCreditTemplate()
	require.NoError(t, NewTemplateService(templates).CreateTemplate(context.Background(), template))

	engagement, err := service.CreateEngagement(context.Background(), template.ID,
		map[string]interface{}{"client": "client-1"}, clerk())
	require.NoError(t, err)

	view, err := service.GetStatus(context.Background(), engagement.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme Shipping Ltd", view.RelationLabels["client"])
	assert.Equal(t, "client-1", view.Values["client"])
	require.NotNil(t, view.CurrentStep)
	assert.Equal(t, "data_entry", view.CurrentStep.Code)
}

func TestGetStatusSurvivesResolverMiss(t *testing.T) {
	templates := newFakeTemplateStore()
	engagements := newFakeEngagementStore()
	executor := NewTransitionExecutor(templates, engagements, NewSessionRoleChecker(), newFakeDocumentRegistry(), &fakeTriggerSink{})
	resolver := &fakeRelationResolver{labels: map[string]map[string]string{}}
	service := NewEngagementService(templates, engagements, resolver, executor)

	template := letterOfCreditTemplate()
	require.NoError(t, NewTemplateService(templates).CreateTemplate(context.Background(), template))

	engagement, err := service.CreateEngagement(context.Background(), template.ID,
		map[string]interface{}{"client": "client-unknown"}, clerk())
	require.NoError(t, err)

	view, err := service.GetStatus(context.Background(), engagement.ID)
	require.NoError(t, err)
	assert.Nil(t, view.RelationLabels)
}

func TestStatusValuesExposeRawRepresentations(t *testing.T) {
	f := newExecutorFixture(t)
	engagement := f.newEngagement(t)
	ctx := context.Background()

	_, err := f.executor.Advance(ctx, engagement.ID, clerk(), AdvanceRequest{
		Values: map[string]interface{}{"principal": 100000.0, "rate": 0.05},
	})
	require.NoError(t, err)

	view, err := f.service.GetStatus(ctx, engagement.ID)
	require.NoError(t, err)
	assert.Equal(t, 100000.0, view.Values["principal"])
	assert.Equal(t, 5000.0, view.Values["commission"])
}

func TestEngagementValueJSONRoundTrip(t *testing.T) {
	values := map[string]fieldschema.Value{
		"principal": fieldschema.NumberValue(fieldschema.KindNumber, 100000),
		"client":    fieldschema.TextValue(fieldschema.KindRelation, "client-1"),
		"urgent":    fieldschema.BoolValue(true),
	}
	engagement := &models.Engagement{ID: "eng-1", Status: models.EngagementStatusInProgress, Values: values, Version: 1}

	restored := cloneEngagement(engagement)
	assert.Equal(t, engagement.Values, restored.Values)
	assert.Equal(t, 100000.0, restored.Values["principal"].Number)
	assert.Equal(t, "client-1", restored.Values["client"].Text)
	assert.True(t, restored.Values["urgent"].Bool)
}
