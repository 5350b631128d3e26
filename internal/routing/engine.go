// Package routing decides how an approval decision moves a document through
// its route. It performs no I/O; the lifecycle service loads the inputs,
// calls Decide and persists the outcome.
package routing

import (
	"github.com/pesio-ai/be-doc-approvals/internal/repository"
)

// Action is the decision an approver records.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Valid reports whether a is approve or reject.
func (a Action) Valid() bool {
	return a == ActionApprove || a == ActionReject
}

// OutcomeKind enumerates the transitions a decision can produce.
type OutcomeKind int

const (
	// StepPending: the step still waits on other approvers.
	StepPending OutcomeKind = iota
	// AdvanceToStep: the step is satisfied and the next step activates.
	AdvanceToStep
	// FullyApproved: the step is satisfied and no further step exists.
	FullyApproved
	// Rejected: a rejection in the step halts the whole route.
	Rejected
)

func (k OutcomeKind) String() string {
	switch k {
	case StepPending:
		return "step_pending"
	case AdvanceToStep:
		return "advance_to_step"
	case FullyApproved:
		return "fully_approved"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

// Outcome is the result of a decision.
type Outcome struct {
	Kind OutcomeKind
	// NextStep is set for AdvanceToStep.
	NextStep *repository.RouteStep
	// Approved and Total count the step's records after applying the decision.
	Approved int
	Total    int
	// Comment is the decider's comment, carried into audit metadata.
	Comment *string
}

// Input carries everything Decide looks at.
type Input struct {
	// Route is only consulted for the step after CurrentStep. It may be nil
	// for legacy single-step approval or when the route was removed.
	Route *repository.ApprovalRoute
	// CurrentStep is nil in legacy single-step mode.
	CurrentStep *int
	// Records are all approval records for the current step and round. The
	// step's requireAll flag is read from them, as captured at activation.
	Records    []*repository.Approval
	ApproverID string
	Action     Action
	Comment    *string
}

// Decide computes the outcome of ApproverID taking Action on the current
// step. The approver's pending record in Records is treated as decided
// whether or not the caller already persisted it.
func Decide(in Input) Outcome {
	statuses := applyDecision(in.Records, in.ApproverID, in.Action)

	approved, rejected := 0, 0
	for _, st := range statuses {
		switch st {
		case repository.ApprovalApproved:
			approved++
		case repository.ApprovalRejected:
			rejected++
		}
	}
	out := Outcome{Approved: approved, Total: len(statuses), Comment: in.Comment}

	// Reject wins regardless of requireAll.
	if rejected > 0 || in.Action == ActionReject {
		out.Kind = Rejected
		return out
	}

	if in.CurrentStep == nil {
		if approved > 0 {
			out.Kind = FullyApproved
		} else {
			out.Kind = StepPending
		}
		return out
	}

	if !satisfied(requiresAll(in.Records), approved, len(statuses)) {
		out.Kind = StepPending
		return out
	}

	var next *repository.RouteStep
	if in.Route != nil {
		next = in.Route.Step(*in.CurrentStep + 1)
	}
	if next == nil {
		out.Kind = FullyApproved
		return out
	}
	out.Kind = AdvanceToStep
	out.NextStep = next
	return out
}

// satisfied implements the step completion policy: unanimous when requireAll,
// otherwise any single approval.
func satisfied(requireAll bool, approved, total int) bool {
	if requireAll {
		return total > 0 && approved == total
	}
	return approved > 0
}

// requiresAll reports the requireAll flag the step's records were activated
// with. Later route edits do not change it.
func requiresAll(records []*repository.Approval) bool {
	for _, rec := range records {
		if rec.RequireAll {
			return true
		}
	}
	return false
}

// applyDecision returns the record statuses with the approver's pending
// record replaced by the decision.
func applyDecision(records []*repository.Approval, approverID string, action Action) []repository.ApprovalStatus {
	decided := repository.ApprovalApproved
	if action == ActionReject {
		decided = repository.ApprovalRejected
	}

	statuses := make([]repository.ApprovalStatus, 0, len(records))
	applied := false
	for _, rec := range records {
		st := rec.Status
		if !applied && rec.ApproverID == approverID && st == repository.ApprovalPending {
			st = decided
			applied = true
		}
		statuses = append(statuses, st)
	}
	return statuses
}
