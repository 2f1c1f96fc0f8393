package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradedesk/backoffice/internal/domain/models"
	"github.com/tradedesk/backoffice/pkg/errors"
	"github.com/tradedesk/backoffice/pkg/fieldschema"
)

func newTemplateService() (*TemplateService, *fakeTemplateStore) {
	store := newFakeTemplateStore()
	return NewTemplateService(store), store
}

func letterOfCreditTemplate() *models.Template {
	return &models.Template{
		Code:  "LC",
		Label: "Letter of Credit",
		InitialFields: []fieldschema.Config{
			{Name: "client", Label: "Client", Kind: fieldschema.KindRelation, Required: true, RelationTarget: "client"},
		},
		Steps: []models.Step{
			{
				Code:  "data_entry",
				Label: "Data Entry",
				Fields: []fieldschema.Config{
					{Name: "principal", Label: "Principal", Kind: fieldschema.KindNumber, Required: true},
					{Name: "rate", Label: "Rate", Kind: fieldschema.KindNumber, Required: true},
					{Name: "commission", Label: "Commission", Kind: fieldschema.KindComputed, Formula: "principal * rate", DependsOn: []string{"principal", "rate"}},
				},
			},
			{
				Code:              "document_check",
				Label:             "Document Check",
				RequiredDocuments: []string{"invoice", "bill_of_lading"},
			},
			{
				Code:             "release",
				Label:            "Release",
				RequiresApproval: true,
				ApproverRoles:    []string{"supervisor"},
				TriggerAction:    strptr("swift_release"),
			},
		},
	}
}

func strptr(s string) *string { return &s }

func TestCreateTemplateAssignsContiguousOrders(t *testing.T) {
	svc, _ := newTemplateService()

	template := letterOfCreditTemplate()
	require.NoError(t, svc.CreateTemplate(context.Background(), template))

	assert.NotEmpty(t, template.ID)
	assert.True(t, template.Active)
	assert.Equal(t, int64(1), template.Version)
	for i, step := range template.Steps {
		assert.Equal(t, i, step.StepOrder)
		assert.NotEmpty(t, step.ID)
	}
}

func TestCreateTemplateRejectsDuplicateCode(t *testing.T) {
	svc, _ := newTemplateService()

	require.NoError(t, svc.CreateTemplate(context.Background(), letterOfCreditTemplate()))
	err := svc.CreateTemplate(context.Background(), letterOfCreditTemplate())
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", errors.GetErrorCode(err))
}

func TestCreateTemplateRejectsFieldRedeclaredOnLaterStep(t *testing.T) {
	svc, _ := newTemplateService()

	template := letterOfCreditTemplate()
	template.Steps[1].Fields = []fieldschema.Config{
		{Name: "principal", Label: "Principal again", Kind: fieldschema.KindNumber},
	}
	err := svc.CreateTemplate(context.Background(), template)
	require.Error(t, err)

	var invalid *errors.InvalidTemplateError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, err.Error(), "already declared on an earlier step")
}

func TestUpdateTemplateEditsHeader(t *testing.T) {
	svc, _ := newTemplateService()

	template := letterOfCreditTemplate()
	require.NoError(t, svc.CreateTemplate(context.Background(), template))

	updated, err := svc.UpdateTemplate(context.Background(), template.ID, TemplateUpdate{
		Code:         "LC",
		Label:        "Letter of Credit (import)",
		Description:  strptr("Import letters of credit"),
		DisplayOrder: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "Letter of Credit (import)", updated.Label)
	assert.Equal(t, 3, updated.DisplayOrder)
	assert.Equal(t, int64(2), updated.Version)
}

func TestUpdateTemplateCodeImmutableOnceReferenced(t *testing.T) {
	svc, store := newTemplateService()

	template := letterOfCreditTemplate()
	require.NoError(t, svc.CreateTemplate(context.Background(), template))
	store.mu.Lock()
	store.engagements[template.ID] = true
	store.mu.Unlock()

	_, err := svc.UpdateTemplate(context.Background(), template.ID, TemplateUpdate{Code: "LC2", Label: template.Label})
	require.Error(t, err)
	assert.True(t, errors.IsInvalidState(err))

	// Everything except the code stays editable.
	updated, err := svc.UpdateTemplate(context.Background(), template.ID, TemplateUpdate{Code: "LC", Label: "Letter of Credit (export)"})
	require.NoError(t, err)
	assert.Equal(t, "Letter of Credit (export)", updated.Label)
}

func TestUpdateTemplateRejectsDuplicateCode(t *testing.T) {
	svc, _ := newTemplateService()

	first := letterOfCreditTemplate()
	require.NoError(t, svc.CreateTemplate(context.Background(), first))
	second := letterOfCreditTemplate()
	second.Code = "REMDOC"
	require.NoError(t, svc.CreateTemplate(context.Background(), second))

	_, err := svc.UpdateTemplate(context.Background(), second.ID, TemplateUpdate{Code: "LC", Label: second.Label})
	require.Error(t, err)
	assert.Equal(t, "CONFLICT", errors.GetErrorCode(err))
}

func TestCreateTemplateCollectsAllProblems(t *testing.T) {
	svc, _ := newTemplateService()

	template := &models.Template{
		Code:  "BAD",
		Label: "Broken",
		Steps: []models.Step{
			{Code: "a", Label: "A", RequiresApproval: true}, // no approver roles
			{Code: "a", Label: "A again"},                   // duplicate code
			{Code: "b", Label: "B", Fields: []fieldschema.Config{
				{Name: "x", Kind: fieldschema.KindSelect}, // no options
				{Name: "y", Kind: "mystery"},              // unknown kind
			}},
		},
	}
	err := svc.CreateTemplate(context.Background(), template)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidTemplate(err))

	var invalid *errors.InvalidTemplateError
	require.ErrorAs(t, err, &invalid)
	assert.GreaterOrEqual(t, len(invalid.Problems), 4)
}

func TestCreateTemplateRejectsUndeclaredFormulaDependency(t *testing.T) {
	svc, _ := newTemplateService()

	template := &models.Template{
		Code:  "FX",
		Label: "FX Deal",
		Steps: []models.Step{
			{Code: "entry", Label: "Entry", Fields: []fieldschema.Config{
				{Name: "amount", Kind: fieldschema.KindNumber},
				{Name: "fee", Kind: fieldschema.KindComputed, Formula: "amount * margin", DependsOn: []string{"amount"}},
			}},
		},
	}
	err := svc.CreateTemplate(context.Background(), template)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidTemplate(err))
	assert.Contains(t, err.Error(), "margin")
}

func TestCreateTemplateRejectsComputedCycle(t *testing.T) {
	svc, _ := newTemplateService()

	template := &models.Template{
		Code:  "CY",
		Label: "Cycle",
		Steps: []models.Step{
			{Code: "entry", Label: "Entry", Fields: []fieldschema.Config{
				{Name: "a", Kind: fieldschema.KindComputed, Formula: "b + 1", DependsOn: []string{"b"}},
				{Name: "b", Kind: fieldschema.KindComputed, Formula: "a + 1", DependsOn: []string{"a"}},
			}},
		},
	}
	err := svc.CreateTemplate(context.Background(), template)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidTemplate(err))
}

func TestAddStepAppendsAtEnd(t *testing.T) {
	svc, _ := newTemplateService()
	template := letterOfCreditTemplate()
	require.NoError(t, svc.CreateTemplate(context.Background(), template))

	updated, err := svc.AddStep(context.Background(), template.ID, models.Step{Code: "archive", Label: "Archive"})
	require.NoError(t, err)
	require.Len(t, updated.Steps, 4)
	assert.Equal(t, "archive", updated.Steps[3].Code)
	assert.Equal(t, 3, updated.Steps[3].StepOrder)
	assert.Equal(t, int64(2), updated.Version)
}

func TestConcurrentAddStepsKeepOrdersContiguous(t *testing.T) {
	svc, store := newTemplateService()
	template := &models.Template{Code: "RACE", Label: "Race", Steps: []models.Step{{Code: "seed", Label: "Seed"}}}
	require.NoError(t, svc.CreateTemplate(context.Background(), template))

	const workers = 8
	var wg sync.WaitGroup
	codes := []string{"s1", "s2", "s3", "s4", "s5", "s6", "s7", "s8"}
	for _, code := range codes {
		wg.Add(1)
		go func(code string) {
			defer wg.Done()
			for {
				_, err := svc.AddStep(context.Background(), template.ID, models.Step{Code: code, Label: code})
				if err == nil {
					return
				}
				if !errors.IsConcurrentModification(err) {
					t.Errorf("unexpected error adding step %s: %v", code, err)
					return
				}
			}
		}(code)
	}
	wg.Wait()

	final, err := store.GetByID(context.Background(), template.ID)
	require.NoError(t, err)
	require.Len(t, final.Steps, workers+1)

	seen := make(map[int]bool)
	for _, step := range final.Steps {
		assert.False(t, seen[step.StepOrder], "order %d assigned twice", step.StepOrder)
		seen[step.StepOrder] = true
	}
	for order := 0; order <= workers; order++ {
		assert.True(t, seen[order], "order %d missing", order)
	}
}

func TestReorderStepsRequiresExactIDSet(t *testing.T) {
	svc, _ := newTemplateService()
	template := letterOfCreditTemplate()
	require.NoError(t, svc.CreateTemplate(context.Background(), template))

	// Reversed order is legal
	ids := []string{template.Steps[2].ID, template.Steps[1].ID, template.Steps[0].ID}
	updated, err := svc.ReorderSteps(context.Background(), template.ID, ids)
	require.NoError(t, err)
	assert.Equal(t, "release", updated.Steps[0].Code)
	assert.Equal(t, 0, updated.Steps[0].StepOrder)

	// Dropping a step is not
	_, err = svc.ReorderSteps(context.Background(), template.ID, ids[:2])
	require.Error(t, err)

	// Listing one twice is not
	_, err = svc.ReorderSteps(context.Background(), template.ID, []string{ids[0], ids[0], ids[1]})
	require.Error(t, err)
}

func TestUpdateStepPreservesIdentityAndOrder(t *testing.T) {
	svc, _ := newTemplateService()
	template := letterOfCreditTemplate()
	require.NoError(t, svc.CreateTemplate(context.Background(), template))

	target := template.Steps[1]
	updated, err := svc.UpdateStep(context.Background(), template.ID, target.ID, models.Step{
		Code:              "document_check",
		Label:             "Document Verification",
		RequiredDocuments: []string{"invoice"},
	})
	require.NoError(t, err)

	step := updated.StepByID(target.ID)
	require.NotNil(t, step)
	assert.Equal(t, "Document Verification", step.Label)
	assert.Equal(t, target.StepOrder, step.StepOrder)
}

func TestDeactivateTemplateIsSoft(t *testing.T) {
	svc, store := newTemplateService()
	template := letterOfCreditTemplate()
	require.NoError(t, svc.CreateTemplate(context.Background(), template))

	require.NoError(t, svc.DeactivateTemplate(context.Background(), template.ID))

	stored, err := store.GetByID(context.Background(), template.ID)
	require.NoError(t, err)
	require.NotNil(t, stored, "deactivated template must still exist")
	assert.False(t, stored.Active)

	// Idempotent
	require.NoError(t, svc.DeactivateTemplate(context.Background(), template.ID))
}
