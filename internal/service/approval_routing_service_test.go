package service

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/internal/routing"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

func TestSubmitActivatesFirstStep(t *testing.T) {
	f := newFixture(t)
	f.user(t, "a1", repository.RoleApprover)
	f.user(t, "a2", repository.RoleManager)
	f.user(t, "c", repository.RoleApprover)
	tpl := f.template(t, step(1, false, "a1", "a2"), step(2, false, "c"))

	doc := f.submit(t, f.draft(t, tpl).ID)

	assert.Equal(t, repository.StatusInApproval, doc.Status)
	assert.Equal(t, intPtr(1), doc.CurrentStepNumber)
	require.NotNil(t, doc.CurrentApproverID)
	assert.Equal(t, "a1", *doc.CurrentApproverID)
	assert.Equal(t, 1, doc.ApprovalRound)

	records, err := f.routing.ListDocumentApprovals(f.ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, repository.ApprovalPending, r.Status)
		assert.Equal(t, intPtr(1), r.StepNumber)
	}

	assert.Equal(t, []string{repository.AuditCreated, repository.AuditSubmitted}, f.auditActions(t, doc.ID))
	assert.Len(t, f.notifications(t, "a1"), 1)
	assert.Len(t, f.notifications(t, "a2"), 1)
	assert.Empty(t, f.notifications(t, "c"))
	assert.Equal(t, 1, f.notifier.count())

	pending, err := f.routing.ListPendingApprovals(f.ctx, "a2")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSubmitWithoutRouteUsesManualApprover(t *testing.T) {
	f := newFixture(t)
	f.user(t, "boss", repository.RoleManager)
	f.user(t, "clerk", repository.RoleEmployee)
	doc := f.draft(t, "")

	_, err := f.routing.SubmitForApproval(f.ctx, &SubmitRequest{DocumentID: doc.ID, Caller: initiator()})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	clerk := "clerk"
	_, err = f.routing.SubmitForApproval(f.ctx, &SubmitRequest{DocumentID: doc.ID, Caller: initiator(), ManualApproverID: &clerk})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	ghost := "ghost"
	_, err = f.routing.SubmitForApproval(f.ctx, &SubmitRequest{DocumentID: doc.ID, Caller: initiator(), ManualApproverID: &ghost})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	boss := "boss"
	submitted, err := f.routing.SubmitForApproval(f.ctx, &SubmitRequest{DocumentID: doc.ID, Caller: initiator(), ManualApproverID: &boss})
	require.NoError(t, err)
	assert.Nil(t, submitted.CurrentStepNumber)
	assert.Equal(t, "boss", *submitted.CurrentApproverID)

	approved, err := f.decide(doc.ID, "boss", routing.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, approved.Status)
	assert.Nil(t, approved.CurrentApproverID)
}

func TestTemplateWithoutRouteFallsBackToManual(t *testing.T) {
	f := newFixture(t)
	f.user(t, "boss", repository.RoleApprover)
	doc := f.draft(t, f.template(t))

	boss := "boss"
	submitted, err := f.routing.SubmitForApproval(f.ctx, &SubmitRequest{DocumentID: doc.ID, Caller: initiator(), ManualApproverID: &boss})
	require.NoError(t, err)
	assert.Nil(t, submitted.CurrentStepNumber)
}

func TestSubmitPreconditions(t *testing.T) {
	f := newFixture(t)
	f.user(t, "a1", repository.RoleApprover)
	doc := f.draft(t, f.template(t, step(1, false, "a1")))

	_, err := f.routing.SubmitForApproval(f.ctx, &SubmitRequest{DocumentID: doc.ID, Caller: Caller{ID: "a1"}})
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))

	f.submit(t, doc.ID)
	_, err = f.routing.SubmitForApproval(f.ctx, &SubmitRequest{DocumentID: doc.ID, Caller: initiator()})
	assert.True(t, errors.HasCode(err, errors.ErrCodePreconditionFailed))

	_, err = f.routing.SubmitForApproval(f.ctx, &SubmitRequest{DocumentID: "missing", Caller: initiator()})
	assert.True(t, errors.IsNotFound(err))
}

func TestSubmitFailsWhenStepHasNoActiveApprovers(t *testing.T) {
	f := newFixture(t)
	f.user(t, "a1", repository.RoleApprover)
	doc := f.draft(t, f.template(t, step(1, false, "a1")))
	_, err := f.users.Deactivate(f.ctx, "a1", admin)
	require.NoError(t, err)

	_, err = f.routing.SubmitForApproval(f.ctx, &SubmitRequest{DocumentID: doc.ID, Caller: initiator()})
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfiguration))

	got, err := f.documents.GetDocument(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusDraft, got.Status)
	assert.Equal(t, 0, got.ApprovalRound)
	records, err := f.routing.ListDocumentApprovals(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, f.notifier.count())
}

func TestRoleStepSnapshotsHoldersAtActivation(t *testing.T) {
	f := newFixture(t)
	f.user(t, "m1", repository.RoleManager)
	role := "manager"
	tpl := f.template(t, repository.RouteStep{StepNumber: 1, ApproverRole: &role})
	doc := f.submit(t, f.draft(t, tpl).ID)

	f.user(t, "m2", repository.RoleManager)

	_, err := f.decide(doc.ID, "m2", routing.ActionApprove)
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))

	approved, err := f.decide(doc.ID, "m1", routing.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, approved.Status)
}

func TestSingleRejectionHaltsRoute(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"a1", "a2", "a3", "c"} {
		f.user(t, id, repository.RoleApprover)
	}
	doc := f.submit(t, f.draft(t, f.template(t, step(1, true, "a1", "a2", "a3"), step(2, false, "c"))).ID)

	_, err := f.decide(doc.ID, "a1", routing.ActionApprove)
	require.NoError(t, err)
	rejected, err := f.decide(doc.ID, "a2", routing.ActionReject)
	require.NoError(t, err)

	assert.Equal(t, repository.StatusRejected, rejected.Status)
	assert.Nil(t, rejected.CurrentStepNumber)
	assert.Nil(t, rejected.CurrentApproverID)

	_, err = f.decide(doc.ID, "a3", routing.ActionApprove)
	assert.True(t, errors.HasCode(err, errors.ErrCodePreconditionFailed))

	records, err := f.routing.ListDocumentApprovals(f.ctx, doc.ID)
	require.NoError(t, err)
	for _, r := range records {
		assert.NotEqual(t, "c", r.ApproverID)
	}
	assert.Len(t, f.notifications(t, "init"), 1)
}

func TestAnyOneApprovalSatisfiesStep(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"a1", "a2", "c"} {
		f.user(t, id, repository.RoleApprover)
	}
	doc := f.submit(t, f.draft(t, f.template(t, step(1, false, "a1", "a2"), step(2, false, "c"))).ID)

	advanced, err := f.decide(doc.ID, "a2", routing.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, intPtr(2), advanced.CurrentStepNumber)
	assert.Equal(t, "c", *advanced.CurrentApproverID)

	_, err = f.decide(doc.ID, "a1", routing.ActionApprove)
	assert.True(t, errors.HasCode(err, errors.ErrCodePreconditionFailed))
	_, err = f.decide(doc.ID, "a2", routing.ActionApprove)
	assert.True(t, errors.HasCode(err, errors.ErrCodePreconditionFailed))

	pending, err := f.routing.ListPendingApprovals(f.ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDecideAuthorization(t *testing.T) {
	f := newFixture(t)
	f.user(t, "a1", repository.RoleApprover)
	f.user(t, "outsider", repository.RoleApprover)
	doc := f.draft(t, f.template(t, step(1, false, "a1")))

	_, err := f.decide(doc.ID, "a1", routing.ActionApprove)
	assert.True(t, errors.HasCode(err, errors.ErrCodePreconditionFailed), "draft documents cannot be decided")

	f.submit(t, doc.ID)
	_, err = f.decide(doc.ID, "outsider", routing.ActionApprove)
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))

	_, err = f.decide(doc.ID, "a1", routing.Action("maybe"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = f.routing.Decide(f.ctx, &DecideRequest{DocumentID: doc.ID, Action: routing.ActionApprove})
	assert.True(t, errors.HasCode(err, errors.ErrCodeUnauthorized))
}

func TestConcurrentFinalApprovalsAdvanceOnce(t *testing.T) {
	f := newFixture(t)
	approvers := []string{"a1", "a2", "a3", "a4", "a5"}
	for _, id := range approvers {
		f.user(t, id, repository.RoleApprover)
	}
	doc := f.submit(t, f.draft(t, f.template(t, step(1, false, approvers...))).ID)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for _, id := range approvers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.decide(doc.ID, id, routing.ActionApprove)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.HasCode(err, errors.ErrCodePreconditionFailed):
				rejected++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, len(approvers)-1, rejected)

	got, err := f.documents.GetDocument(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, got.Status)

	fully := 0
	for _, a := range f.auditActions(t, doc.ID) {
		if a == repository.AuditFullyApproved {
			fully++
		}
	}
	assert.Equal(t, 1, fully)
	assert.Len(t, f.notifications(t, "init"), 1)
}

func TestConcurrentUnanimousApprovalsCompleteOnce(t *testing.T) {
	f := newFixture(t)
	approvers := []string{"a1", "a2", "a3", "a4"}
	for _, id := range approvers {
		f.user(t, id, repository.RoleApprover)
	}
	doc := f.submit(t, f.draft(t, f.template(t, step(1, true, approvers...))).ID)

	var wg sync.WaitGroup
	errs := make([]error, len(approvers))
	for i, id := range approvers {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = f.decide(doc.ID, id, routing.ActionApprove)
		}(i, id)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	got, err := f.documents.GetDocument(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, got.Status)
	assert.Equal(t,
		[]string{repository.AuditCreated, repository.AuditSubmitted, repository.AuditFullyApproved},
		f.auditActions(t, doc.ID))
}

func TestTerminalDocumentsIgnoreFurtherDecisions(t *testing.T) {
	f := newFixture(t)
	f.user(t, "a1", repository.RoleApprover)
	f.user(t, "a2", repository.RoleApprover)
	doc := f.submit(t, f.draft(t, f.template(t, step(1, false, "a1", "a2"))).ID)

	_, err := f.decide(doc.ID, "a1", routing.ActionApprove)
	require.NoError(t, err)

	audit := f.auditActions(t, doc.ID)
	inbox := len(f.notifications(t, "init"))
	published := f.notifier.count()

	for _, id := range []string{"a1", "a2"} {
		for _, action := range []routing.Action{routing.ActionApprove, routing.ActionReject} {
			_, err := f.decide(doc.ID, id, action)
			assert.True(t, errors.HasCode(err, errors.ErrCodePreconditionFailed))
		}
	}

	got, err := f.documents.GetDocument(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, got.Status)
	assert.Equal(t, audit, f.auditActions(t, doc.ID))
	assert.Len(t, f.notifications(t, "init"), inbox)
	assert.Equal(t, published, f.notifier.count())
}

func TestTwoStepRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.user(t, "s1", repository.RoleApprover)
	f.user(t, "s2", repository.RoleManager)
	doc := f.draft(t, f.template(t, step(1, false, "s1"), step(2, false, "s2")))

	var steps []*int
	steps = append(steps, doc.CurrentStepNumber)
	doc = f.submit(t, doc.ID)
	steps = append(steps, doc.CurrentStepNumber)

	doc, err := f.decide(doc.ID, "s1", routing.ActionApprove)
	require.NoError(t, err)
	steps = append(steps, doc.CurrentStepNumber)

	doc, err = f.decide(doc.ID, "s2", routing.ActionApprove)
	require.NoError(t, err)
	steps = append(steps, doc.CurrentStepNumber)

	assert.Equal(t, []*int{nil, intPtr(1), intPtr(2), nil}, steps)
	assert.Equal(t, repository.StatusApproved, doc.Status)

	approvedType := 0
	for _, a := range f.auditActions(t, doc.ID) {
		if a == repository.AuditApproved || a == repository.AuditFullyApproved {
			approvedType++
		}
	}
	assert.Equal(t, 2, approvedType)
}

func TestApprovePathEndToEnd(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"A", "B", "C"} {
		f.user(t, id, repository.RoleApprover)
	}
	doc := f.draft(t, f.template(t, step(1, true, "A", "B"), step(2, false, "C")))
	doc = f.submit(t, doc.ID)
	assert.Equal(t, intPtr(1), doc.CurrentStepNumber)

	afterA, err := f.decide(doc.ID, "A", routing.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusInApproval, afterA.Status)
	assert.Equal(t, intPtr(1), afterA.CurrentStepNumber)

	afterB, err := f.decide(doc.ID, "B", routing.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, intPtr(2), afterB.CurrentStepNumber)

	final, err := f.decide(doc.ID, "C", routing.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, final.Status)
	assert.Nil(t, final.CurrentStepNumber)

	records, err := f.routing.ListDocumentApprovals(f.ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, records, 3)
	byApprover := map[string]*repository.Approval{}
	for _, r := range records {
		assert.Equal(t, repository.ApprovalApproved, r.Status)
		byApprover[r.ApproverID] = r
	}
	assert.Equal(t, intPtr(1), byApprover["A"].StepNumber)
	assert.Equal(t, intPtr(1), byApprover["B"].StepNumber)
	assert.Equal(t, intPtr(2), byApprover["C"].StepNumber)

	history, err := f.routing.GetApprovalHistory(f.ctx, doc.ID)
	require.NoError(t, err)
	var lifecycle []string
	for _, e := range history {
		if e.Action != repository.AuditCreated {
			lifecycle = append(lifecycle, e.Action)
		}
	}
	assert.Equal(t, []string{repository.AuditSubmitted, repository.AuditApproved, repository.AuditFullyApproved}, lifecycle)

	inbox := f.notifications(t, "init")
	require.Len(t, inbox, 1)
	assert.Equal(t, repository.NotifyApproved, inbox[0].Type)
}

func TestRejectMidRouteEndToEnd(t *testing.T) {
	f := newFixture(t)
	for _, id := range []string{"A", "B", "C"} {
		f.user(t, id, repository.RoleApprover)
	}
	doc := f.submit(t, f.draft(t, f.template(t, step(1, true, "A", "B"), step(2, false, "C"))).ID)

	_, err := f.decide(doc.ID, "A", routing.ActionApprove)
	require.NoError(t, err)
	rejected, err := f.decide(doc.ID, "B", routing.ActionReject)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusRejected, rejected.Status)

	records, err := f.routing.ListDocumentApprovals(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	for _, r := range records {
		assert.NotEqual(t, "C", r.ApproverID)
		assert.Equal(t, intPtr(1), r.StepNumber)
	}
	assert.Empty(t, f.notifications(t, "C"))
}

func TestOverrideStatus(t *testing.T) {
	f := newFixture(t)
	f.user(t, "a1", repository.RoleApprover)
	doc := f.submit(t, f.draft(t, f.template(t, step(1, false, "a1"))).ID)

	_, err := f.routing.OverrideStatus(f.ctx, &OverrideRequest{DocumentID: doc.ID, Caller: initiator(), NewStatus: repository.StatusApproved})
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))

	_, err = f.routing.OverrideStatus(f.ctx, &OverrideRequest{DocumentID: doc.ID, Caller: admin, NewStatus: "ARCHIVED"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	_, err = f.routing.OverrideStatus(f.ctx, &OverrideRequest{DocumentID: doc.ID, Caller: admin, NewStatus: repository.StatusInApproval})
	assert.True(t, errors.HasCode(err, errors.ErrCodePreconditionFailed))

	got, err := f.routing.OverrideStatus(f.ctx, &OverrideRequest{DocumentID: doc.ID, Caller: admin, NewStatus: "draft"})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusDraft, got.Status)
	assert.Nil(t, got.CurrentStepNumber)
	assert.Nil(t, got.CurrentApproverID)

	records, err := f.routing.ListDocumentApprovals(f.ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, repository.ApprovalPending, records[0].Status)

	history, err := f.routing.GetApprovalHistory(f.ctx, doc.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, repository.AuditStatusChanged, last.Action)
	assert.Equal(t, map[string]interface{}{"from": "IN_APPROVAL", "to": "DRAFT", "manual": true}, last.Metadata)

	inbox := f.notifications(t, "init")
	require.NotEmpty(t, inbox)
	assert.Equal(t, repository.NotifyStatusChanged, inbox[0].Type)

	// The stale round-1 record no longer counts once the document is resubmitted.
	resubmitted := f.submit(t, doc.ID)
	assert.Equal(t, 2, resubmitted.ApprovalRound)
	approved, err := f.decide(doc.ID, "a1", routing.ActionApprove)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusApproved, approved.Status)
}

func TestActiveStepKeepsPolicyWhenRouteChanges(t *testing.T) {
	tests := []struct {
		name       string
		change     func(f *fixture, tpl string) error
		wantStatus repository.DocumentStatus
		wantStep   *int
	}{
		{
			name:       "route deleted",
			change:     func(f *fixture, tpl string) error { return f.templates.DeleteRoute(f.ctx, tpl, admin) },
			wantStatus: repository.StatusApproved,
		},
		{
			name:       "template deleted",
			change:     func(f *fixture, tpl string) error { return f.templates.DeleteTemplate(f.ctx, tpl, admin) },
			wantStatus: repository.StatusApproved,
		},
		{
			name: "step relaxed to any one approver",
			change: func(f *fixture, tpl string) error {
				_, err := f.templates.SetRoute(f.ctx, &SetRouteRequest{
					TemplateID: tpl,
					Steps:      []repository.RouteStep{step(1, false, "a1", "a2"), step(2, false, "c")},
					Caller:     admin,
				})
				return err
			},
			wantStatus: repository.StatusInApproval,
			wantStep:   intPtr(2),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			for _, id := range []string{"a1", "a2", "c"} {
				f.user(t, id, repository.RoleApprover)
			}
			tpl := f.template(t, step(1, true, "a1", "a2"), step(2, false, "c"))
			doc := f.submit(t, f.draft(t, tpl).ID)
			require.NoError(t, tt.change(f, tpl))

			first, err := f.decide(doc.ID, "a1", routing.ActionApprove)
			require.NoError(t, err)
			assert.Equal(t, repository.StatusInApproval, first.Status, "one approval must not complete a unanimous step")
			assert.Equal(t, intPtr(1), first.CurrentStepNumber)

			second, err := f.decide(doc.ID, "a2", routing.ActionApprove)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, second.Status)
			assert.Equal(t, tt.wantStep, second.CurrentStepNumber)
		})
	}
}

func TestAdvanceFailsWhenNextStepHasNoActiveApprovers(t *testing.T) {
	f := newFixture(t)
	f.user(t, "a1", repository.RoleApprover)
	f.user(t, "c", repository.RoleApprover)
	doc := f.submit(t, f.draft(t, f.template(t, step(1, false, "a1"), step(2, false, "c"))).ID)
	_, err := f.users.Deactivate(f.ctx, "c", admin)
	require.NoError(t, err)
	events := f.notifier.count()

	_, err = f.decide(doc.ID, "a1", routing.ActionApprove)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfiguration))

	got, err := f.documents.GetDocument(f.ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.StatusInApproval, got.Status)
	assert.Equal(t, intPtr(1), got.CurrentStepNumber)

	records, err := f.routing.ListDocumentApprovals(f.ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a1", records[0].ApproverID)
	assert.Equal(t, repository.ApprovalPending, records[0].Status)
	assert.Equal(t, intPtr(1), records[0].StepNumber)

	assert.Equal(t, []string{repository.AuditCreated, repository.AuditSubmitted}, f.auditActions(t, doc.ID))
	assert.Equal(t, events, f.notifier.count())
	assert.Empty(t, f.notifications(t, "c"))
}
