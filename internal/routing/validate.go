package routing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

// NormalizeSteps sorts steps by number and checks that numbering is dense
// from 1, and that every step names its approvers either by id or by role.
// Decide looks up the next step by exact number, so a gap would end the route
// early.
func NormalizeSteps(steps []repository.RouteStep) ([]repository.RouteStep, error) {
	out := make([]repository.RouteStep, len(steps))
	copy(out, steps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StepNumber < out[j].StepNumber })

	for i := range out {
		s := &out[i]
		if s.StepNumber != i+1 {
			return nil, errors.InvalidInput("steps",
				fmt.Sprintf("step numbers must run 1..%d without gaps or duplicates (found %d at position %d)",
					len(out), s.StepNumber, i+1))
		}
		s.Name = strings.TrimSpace(s.Name)
		if s.Name == "" {
			s.Name = fmt.Sprintf("Step %d", s.StepNumber)
		}

		s.ApproverIDs = dedupe(s.ApproverIDs)
		hasRole := s.ApproverRole != nil && strings.TrimSpace(*s.ApproverRole) != ""
		switch {
		case len(s.ApproverIDs) > 0 && hasRole:
			return nil, errors.InvalidInput("steps",
				fmt.Sprintf("step %d sets both approver_ids and approver_role", s.StepNumber))
		case len(s.ApproverIDs) == 0 && !hasRole:
			return nil, errors.InvalidInput("steps",
				fmt.Sprintf("step %d has no approvers", s.StepNumber))
		case hasRole:
			role := repository.UserRole(strings.ToUpper(strings.TrimSpace(*s.ApproverRole)))
			if !role.CanApprove() {
				return nil, errors.InvalidInput("steps",
					fmt.Sprintf("step %d role %s cannot approve", s.StepNumber, role))
			}
			r := string(role)
			s.ApproverRole = &r
		default:
			s.ApproverRole = nil
		}
	}
	return out, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
