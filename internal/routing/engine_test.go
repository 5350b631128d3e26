package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

func intPtr(n int) *int { return &n }

func twoStepRoute(step1RequireAll bool) *repository.ApprovalRoute {
	return &repository.ApprovalRoute{
		ID:         "route-1",
		TemplateID: "tpl-1",
		Steps: []repository.RouteStep{
			{StepNumber: 1, Name: "Review", ApproverIDs: []string{"A", "B"}, RequireAll: step1RequireAll},
			{StepNumber: 2, Name: "Sign-off", ApproverIDs: []string{"C"}},
		},
	}
}

func records(step *int, pairs ...string) []*repository.Approval {
	var out []*repository.Approval
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, &repository.Approval{
			ID:         "apr-" + pairs[i],
			ApproverID: pairs[i],
			StepNumber: step,
			Status:     repository.ApprovalStatus(pairs[i+1]),
		})
	}
	return out
}

// unanimous marks records as activated under a requireAll step.
func unanimous(recs []*repository.Approval) []*repository.Approval {
	for _, r := range recs {
		r.RequireAll = true
	}
	return recs
}

func TestDecide(t *testing.T) {
	step1, step2 := intPtr(1), intPtr(2)

	tests := []struct {
		name     string
		in       Input
		wantKind OutcomeKind
		wantNext int
	}{
		{
			name: "requireAll first approval stays pending",
			in: Input{
				Route: twoStepRoute(true), CurrentStep: step1,
				Records:    unanimous(records(step1, "A", "PENDING", "B", "PENDING")),
				ApproverID: "A", Action: ActionApprove,
			},
			wantKind: StepPending,
		},
		{
			name: "requireAll last approval advances",
			in: Input{
				Route: twoStepRoute(true), CurrentStep: step1,
				Records:    unanimous(records(step1, "A", "APPROVED", "B", "PENDING")),
				ApproverID: "B", Action: ActionApprove,
			},
			wantKind: AdvanceToStep,
			wantNext: 2,
		},
		{
			name: "already persisted decision is not double counted",
			in: Input{
				Route: twoStepRoute(true), CurrentStep: step1,
				Records:    unanimous(records(step1, "A", "APPROVED", "B", "PENDING")),
				ApproverID: "A", Action: ActionApprove,
			},
			wantKind: StepPending,
		},
		{
			name: "any-one-of first approval advances",
			in: Input{
				Route: twoStepRoute(false), CurrentStep: step1,
				Records:    records(step1, "A", "PENDING", "B", "PENDING"),
				ApproverID: "B", Action: ActionApprove,
			},
			wantKind: AdvanceToStep,
			wantNext: 2,
		},
		{
			name: "reject short-circuits requireAll",
			in: Input{
				Route: twoStepRoute(true), CurrentStep: step1,
				Records:    unanimous(records(step1, "A", "APPROVED", "B", "PENDING")),
				ApproverID: "B", Action: ActionReject,
			},
			wantKind: Rejected,
		},
		{
			name: "existing rejection wins over approval",
			in: Input{
				Route: twoStepRoute(false), CurrentStep: step1,
				Records:    records(step1, "A", "REJECTED", "B", "PENDING"),
				ApproverID: "B", Action: ActionApprove,
			},
			wantKind: Rejected,
		},
		{
			name: "last step completes route",
			in: Input{
				Route: twoStepRoute(true), CurrentStep: step2,
				Records:    records(step2, "C", "PENDING"),
				ApproverID: "C", Action: ActionApprove,
			},
			wantKind: FullyApproved,
		},
		{
			name: "removed route keeps the captured unanimous gate",
			in: Input{
				CurrentStep: step1,
				Records:     unanimous(records(step1, "A", "PENDING", "B", "PENDING")),
				ApproverID:  "A", Action: ActionApprove,
			},
			wantKind: StepPending,
		},
		{
			name: "removed route completes once the captured gate is met",
			in: Input{
				CurrentStep: step1,
				Records:     unanimous(records(step1, "A", "APPROVED", "B", "PENDING")),
				ApproverID:  "B", Action: ActionApprove,
			},
			wantKind: FullyApproved,
		},
		{
			name: "route relaxed mid-flight keeps the captured unanimous gate",
			in: Input{
				Route: twoStepRoute(false), CurrentStep: step1,
				Records:    unanimous(records(step1, "A", "PENDING", "B", "PENDING")),
				ApproverID: "A", Action: ActionApprove,
			},
			wantKind: StepPending,
		},
		{
			name: "route tightened mid-flight keeps the captured any-one-of gate",
			in: Input{
				Route: twoStepRoute(true), CurrentStep: step1,
				Records:    records(step1, "A", "PENDING", "B", "PENDING"),
				ApproverID: "A", Action: ActionApprove,
			},
			wantKind: AdvanceToStep,
			wantNext: 2,
		},
		{
			name: "no route is legacy single step",
			in: Input{
				Records:    records(nil, "A", "PENDING"),
				ApproverID: "A", Action: ActionApprove,
			},
			wantKind: FullyApproved,
		},
		{
			name: "zero-step route is legacy single step",
			in: Input{
				Route:      &repository.ApprovalRoute{ID: "empty"},
				Records:    records(nil, "A", "PENDING"),
				ApproverID: "A", Action: ActionApprove,
			},
			wantKind: FullyApproved,
		},
		{
			name: "gap in numbering is not skipped",
			in: Input{
				Route: &repository.ApprovalRoute{Steps: []repository.RouteStep{
					{StepNumber: 1, ApproverIDs: []string{"A"}},
					{StepNumber: 3, ApproverIDs: []string{"C"}},
				}},
				CurrentStep: step1,
				Records:     records(step1, "A", "PENDING"),
				ApproverID:  "A", Action: ActionApprove,
			},
			wantKind: FullyApproved,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Decide(tt.in)
			assert.Equal(t, tt.wantKind, out.Kind, out.Kind.String())
			if tt.wantKind == AdvanceToStep {
				require.NotNil(t, out.NextStep)
				assert.Equal(t, tt.wantNext, out.NextStep.StepNumber)
			} else {
				assert.Nil(t, out.NextStep)
			}
		})
	}
}

func TestDecideCounts(t *testing.T) {
	step1 := intPtr(1)
	out := Decide(Input{
		Route: twoStepRoute(true), CurrentStep: step1,
		Records:    unanimous(records(step1, "A", "PENDING", "B", "PENDING")),
		ApproverID: "A", Action: ActionApprove,
	})
	assert.Equal(t, StepPending, out.Kind)
	assert.Equal(t, 1, out.Approved)
	assert.Equal(t, 2, out.Total)
}

func TestDecideCarriesComment(t *testing.T) {
	step1 := intPtr(1)
	comment := "budget exceeded"
	out := Decide(Input{
		Route: twoStepRoute(false), CurrentStep: step1,
		Records:    records(step1, "A", "PENDING"),
		ApproverID: "A", Action: ActionReject, Comment: &comment,
	})
	assert.Equal(t, Rejected, out.Kind)
	require.NotNil(t, out.Comment)
	assert.Equal(t, comment, *out.Comment)
}

func TestNormalizeSteps(t *testing.T) {
	role := "approver"
	steps, err := NormalizeSteps([]repository.RouteStep{
		{StepNumber: 2, ApproverRole: &role},
		{StepNumber: 1, ApproverIDs: []string{"A", "A", " ", "B"}},
	})
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, []string{"A", "B"}, steps[0].ApproverIDs)
	assert.Equal(t, "Step 1", steps[0].Name)
	require.NotNil(t, steps[1].ApproverRole)
	assert.Equal(t, "APPROVER", *steps[1].ApproverRole)
}

func TestNormalizeStepsRejects(t *testing.T) {
	employee := "employee"
	manager := "MANAGER"
	tests := []struct {
		name  string
		steps []repository.RouteStep
	}{
		{"gap", []repository.RouteStep{{StepNumber: 1, ApproverIDs: []string{"A"}}, {StepNumber: 3, ApproverIDs: []string{"B"}}}},
		{"duplicate", []repository.RouteStep{{StepNumber: 1, ApproverIDs: []string{"A"}}, {StepNumber: 1, ApproverIDs: []string{"B"}}}},
		{"starts at zero", []repository.RouteStep{{StepNumber: 0, ApproverIDs: []string{"A"}}}},
		{"no approvers", []repository.RouteStep{{StepNumber: 1}}},
		{"both ids and role", []repository.RouteStep{{StepNumber: 1, ApproverIDs: []string{"A"}, ApproverRole: &manager}}},
		{"role cannot approve", []repository.RouteStep{{StepNumber: 1, ApproverRole: &employee}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NormalizeSteps(tt.steps)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
		})
	}
}
