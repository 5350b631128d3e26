package memory

import (
	"context"
	"fmt"
	"slices"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

// ── documents ────────────────────────────────────────────────────────────────

type documents struct{ v *view }

func (r documents) Create(_ context.Context, doc *repository.Document) error {
	defer r.v.lock()()
	st := r.v.s.st
	now := r.v.s.now()

	st.docSeq++
	doc.ID = newID()
	doc.Number = documentNumber(now, st.docSeq)
	doc.CreatedAt = now
	doc.UpdatedAt = now
	st.documents.put(doc.ID, *doc)
	return nil
}

func (r documents) GetByID(_ context.Context, id string) (*repository.Document, error) {
	defer r.v.lock()()
	doc, ok := r.v.s.st.documents.get(id)
	if !ok {
		return nil, errors.NotFound("document", id)
	}
	return &doc, nil
}

func (r documents) GetForUpdate(ctx context.Context, id string) (*repository.Document, error) {
	return r.GetByID(ctx, id)
}

func (r documents) List(_ context.Context, filter repository.DocumentFilter) ([]*repository.Document, int64, error) {
	defer r.v.lock()()
	rows := r.v.s.st.documents.filter(func(d repository.Document) bool {
		if filter.Status != nil && d.Status != *filter.Status {
			return false
		}
		if filter.InitiatorID != nil && d.InitiatorID != *filter.InitiatorID {
			return false
		}
		if filter.TemplateID != nil && (d.TemplateID == nil || *d.TemplateID != *filter.TemplateID) {
			return false
		}
		return true
	})
	slices.Reverse(rows)

	out := make([]*repository.Document, 0)
	for _, d := range page(rows, filter.Limit, filter.Offset) {
		out = append(out, ptr(d))
	}
	return out, int64(len(rows)), nil
}

func (r documents) Update(_ context.Context, doc *repository.Document) error {
	defer r.v.lock()()
	st := r.v.s.st
	cur, ok := st.documents.get(doc.ID)
	if !ok {
		return errors.NotFound("document", doc.ID)
	}
	cur.Title = doc.Title
	cur.Description = doc.Description
	cur.TemplateID = doc.TemplateID
	cur.UpdatedAt = r.v.s.now()
	st.documents.put(cur.ID, cur)
	doc.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r documents) UpdateState(_ context.Context, doc *repository.Document) error {
	defer r.v.lock()()
	st := r.v.s.st
	cur, ok := st.documents.get(doc.ID)
	if !ok {
		return errors.NotFound("document", doc.ID)
	}
	cur.Status = doc.Status
	cur.CurrentApproverID = doc.CurrentApproverID
	cur.CurrentStepNumber = doc.CurrentStepNumber
	cur.ApprovalRound = doc.ApprovalRound
	cur.UpdatedAt = r.v.s.now()
	st.documents.put(cur.ID, cur)
	doc.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r documents) Delete(_ context.Context, id string) error {
	defer r.v.lock()()
	st := r.v.s.st
	if !st.documents.delete(id) {
		return errors.NotFound("document", id)
	}
	for _, a := range st.approvals.filter(func(a repository.Approval) bool { return a.DocumentID == id }) {
		st.approvals.delete(a.ID)
	}
	for _, c := range st.comments.filter(func(c repository.Comment) bool { return c.DocumentID == id }) {
		st.comments.delete(c.ID)
	}
	for _, f := range st.files.filter(func(f repository.File) bool { return f.DocumentID == id }) {
		st.files.delete(f.ID)
	}
	return nil
}

// ── templates and routes ─────────────────────────────────────────────────────

type templates struct{ v *view }

func (r templates) Create(_ context.Context, t *repository.Template) error {
	defer r.v.lock()()
	now := r.v.s.now()
	t.ID = newID()
	t.CreatedAt = now
	t.UpdatedAt = now
	r.v.s.st.templates.put(t.ID, *t)
	return nil
}

func (r templates) GetByID(_ context.Context, id string) (*repository.Template, error) {
	defer r.v.lock()()
	t, ok := r.v.s.st.templates.get(id)
	if !ok {
		return nil, errors.NotFound("template", id)
	}
	return &t, nil
}

func (r templates) List(_ context.Context, limit, offset int) ([]*repository.Template, int64, error) {
	defer r.v.lock()()
	rows := r.v.s.st.templates.filter(nil)
	slices.SortStableFunc(rows, func(a, b repository.Template) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	out := make([]*repository.Template, 0)
	for _, t := range page(rows, limit, offset) {
		out = append(out, ptr(t))
	}
	return out, int64(len(rows)), nil
}

func (r templates) Update(_ context.Context, t *repository.Template) error {
	defer r.v.lock()()
	st := r.v.s.st
	cur, ok := st.templates.get(t.ID)
	if !ok {
		return errors.NotFound("template", t.ID)
	}
	cur.Name = t.Name
	cur.Description = t.Description
	cur.UpdatedAt = r.v.s.now()
	st.templates.put(cur.ID, cur)
	t.UpdatedAt = cur.UpdatedAt
	return nil
}

func (r templates) Delete(_ context.Context, id string) error {
	defer r.v.lock()()
	st := r.v.s.st
	if !st.templates.delete(id) {
		return errors.NotFound("template", id)
	}
	st.routes.delete(id)
	for _, d := range st.documents.filter(func(d repository.Document) bool {
		return d.TemplateID != nil && *d.TemplateID == id
	}) {
		d.TemplateID = nil
		st.documents.put(d.ID, d)
	}
	return nil
}

type routes struct{ v *view }

func cloneRoute(route repository.ApprovalRoute) repository.ApprovalRoute {
	steps := make([]repository.RouteStep, len(route.Steps))
	for i, s := range route.Steps {
		s.ApproverIDs = append([]string(nil), s.ApproverIDs...)
		steps[i] = s
	}
	route.Steps = steps
	return route
}

func (r routes) Upsert(_ context.Context, route *repository.ApprovalRoute) error {
	defer r.v.lock()()
	st := r.v.s.st
	if _, ok := st.templates.get(route.TemplateID); !ok {
		return errors.NotFound("template", route.TemplateID)
	}
	now := r.v.s.now()
	if cur, ok := st.routes.get(route.TemplateID); ok {
		route.ID = cur.ID
		route.CreatedAt = cur.CreatedAt
	} else {
		route.ID = newID()
		route.CreatedAt = now
	}
	route.UpdatedAt = now
	st.routes.put(route.TemplateID, cloneRoute(*route))
	return nil
}

func (r routes) GetByTemplateID(_ context.Context, templateID string) (*repository.ApprovalRoute, error) {
	defer r.v.lock()()
	route, ok := r.v.s.st.routes.get(templateID)
	if !ok {
		return nil, nil
	}
	return ptr(cloneRoute(route)), nil
}

func (r routes) DeleteByTemplateID(_ context.Context, templateID string) error {
	defer r.v.lock()()
	if !r.v.s.st.routes.delete(templateID) {
		return errors.NotFound("approval_route", templateID)
	}
	return nil
}

// ── approvals ────────────────────────────────────────────────────────────────

type approvals struct{ v *view }

func (r approvals) CreateBatch(_ context.Context, batch []*repository.Approval) error {
	defer r.v.lock()()
	st := r.v.s.st
	now := r.v.s.now()

	for _, a := range batch {
		dup := st.approvals.filter(func(x repository.Approval) bool {
			return x.DocumentID == a.DocumentID && x.Round == a.Round &&
				x.ApproverID == a.ApproverID && repository.SameStep(x.StepNumber, a.StepNumber)
		})
		if len(dup) > 0 {
			return errors.New(errors.ErrCodeConflict,
				fmt.Sprintf("approver %s already has a record for this step", a.ApproverID))
		}
		if a.Status == "" {
			a.Status = repository.ApprovalPending
		}
		a.ID = newID()
		a.CreatedAt = now
		st.approvals.put(a.ID, *a)
	}
	return nil
}

func (r approvals) GetByID(_ context.Context, id string) (*repository.Approval, error) {
	defer r.v.lock()()
	a, ok := r.v.s.st.approvals.get(id)
	if !ok {
		return nil, errors.NotFound("approval", id)
	}
	return &a, nil
}

func (r approvals) ListByDocument(_ context.Context, documentID string) ([]*repository.Approval, error) {
	defer r.v.lock()()
	rows := r.v.s.st.approvals.filter(func(a repository.Approval) bool { return a.DocumentID == documentID })
	slices.SortStableFunc(rows, func(a, b repository.Approval) int {
		if a.Round != b.Round {
			return a.Round - b.Round
		}
		return stepOrder(a.StepNumber) - stepOrder(b.StepNumber)
	})
	return approvalPtrs(rows), nil
}

func (r approvals) ListForStep(_ context.Context, documentID string, round int, stepNumber *int) ([]*repository.Approval, error) {
	defer r.v.lock()()
	rows := r.v.s.st.approvals.filter(func(a repository.Approval) bool {
		return a.DocumentID == documentID && a.Round == round && repository.SameStep(a.StepNumber, stepNumber)
	})
	return approvalPtrs(rows), nil
}

func (r approvals) ListForApprover(_ context.Context, documentID string, round int, approverID string) ([]*repository.Approval, error) {
	defer r.v.lock()()
	rows := r.v.s.st.approvals.filter(func(a repository.Approval) bool {
		return a.DocumentID == documentID && a.Round == round && a.ApproverID == approverID
	})
	slices.SortStableFunc(rows, func(a, b repository.Approval) int {
		return stepOrder(a.StepNumber) - stepOrder(b.StepNumber)
	})
	return approvalPtrs(rows), nil
}

func (r approvals) ListPendingForUser(_ context.Context, userID string) ([]*repository.Approval, error) {
	defer r.v.lock()()
	st := r.v.s.st
	rows := st.approvals.filter(func(a repository.Approval) bool {
		if a.ApproverID != userID || a.Status != repository.ApprovalPending {
			return false
		}
		doc, ok := st.documents.get(a.DocumentID)
		return ok && doc.Status == repository.StatusInApproval &&
			a.Round == doc.ApprovalRound && repository.SameStep(a.StepNumber, doc.CurrentStepNumber)
	})
	return approvalPtrs(rows), nil
}

func (r approvals) Decide(_ context.Context, id string, status repository.ApprovalStatus, comment *string) (*repository.Approval, error) {
	if status != repository.ApprovalApproved && status != repository.ApprovalRejected {
		return nil, errors.InvalidInput("status", fmt.Sprintf("cannot decide with status %s", status))
	}
	defer r.v.lock()()
	st := r.v.s.st
	a, ok := st.approvals.get(id)
	if !ok || a.Status != repository.ApprovalPending {
		return nil, errors.PreconditionFailed("approval is not pending")
	}
	a.Status = status
	a.Comment = comment
	a.DecidedAt = ptr(r.v.s.now())
	st.approvals.put(a.ID, a)
	return &a, nil
}

func stepOrder(step *int) int {
	if step == nil {
		return 0
	}
	return *step
}

func approvalPtrs(rows []repository.Approval) []*repository.Approval {
	out := make([]*repository.Approval, 0, len(rows))
	for _, a := range rows {
		out = append(out, ptr(a))
	}
	return out
}

// ── users ────────────────────────────────────────────────────────────────────

type users struct{ v *view }

func (r users) Create(_ context.Context, u *repository.User) error {
	defer r.v.lock()()
	st := r.v.s.st
	if len(st.users.filter(func(x repository.User) bool { return x.Email == u.Email })) > 0 {
		return errors.New(errors.ErrCodeConflict, "user with this email already exists")
	}
	now := r.v.s.now()
	if u.ID == "" {
		u.ID = newID()
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	st.users.put(u.ID, *u)
	return nil
}

func (r users) GetByID(_ context.Context, id string) (*repository.User, error) {
	defer r.v.lock()()
	u, ok := r.v.s.st.users.get(id)
	if !ok {
		return nil, errors.NotFound("user", id)
	}
	return &u, nil
}

func (r users) GetByIDs(_ context.Context, ids []string) ([]*repository.User, error) {
	defer r.v.lock()()
	out := make([]*repository.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := r.v.s.st.users.get(id); ok {
			out = append(out, ptr(u))
		}
	}
	return out, nil
}

func (r users) ListByRole(_ context.Context, role repository.UserRole) ([]*repository.User, error) {
	defer r.v.lock()()
	rows := r.v.s.st.users.filter(func(u repository.User) bool { return u.Role == role && u.IsActive })
	out := make([]*repository.User, 0, len(rows))
	for _, u := range rows {
		out = append(out, ptr(u))
	}
	return out, nil
}

func (r users) List(_ context.Context, limit, offset int) ([]*repository.User, int64, error) {
	defer r.v.lock()()
	rows := r.v.s.st.users.filter(nil)
	slices.SortStableFunc(rows, func(a, b repository.User) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	out := make([]*repository.User, 0)
	for _, u := range page(rows, limit, offset) {
		out = append(out, ptr(u))
	}
	return out, int64(len(rows)), nil
}

func (r users) Update(_ context.Context, u *repository.User) error {
	defer r.v.lock()()
	st := r.v.s.st
	cur, ok := st.users.get(u.ID)
	if !ok {
		return errors.NotFound("user", u.ID)
	}
	cur.Name = u.Name
	cur.Role = u.Role
	cur.IsActive = u.IsActive
	cur.UpdatedAt = r.v.s.now()
	st.users.put(cur.ID, cur)
	u.UpdatedAt = cur.UpdatedAt
	return nil
}

// ── audit and notifications ──────────────────────────────────────────────────

type audit struct{ v *view }

func (r audit) Append(_ context.Context, entry *repository.AuditEntry) error {
	defer r.v.lock()()
	entry.ID = newID()
	entry.CreatedAt = r.v.s.now()
	r.v.s.st.audit.put(entry.ID, *entry)
	return nil
}

func (r audit) ListByDocument(_ context.Context, documentID string) ([]*repository.AuditEntry, error) {
	defer r.v.lock()()
	rows := r.v.s.st.audit.filter(func(e repository.AuditEntry) bool { return e.DocumentID == documentID })
	out := make([]*repository.AuditEntry, 0, len(rows))
	for _, e := range rows {
		out = append(out, ptr(e))
	}
	return out, nil
}

type notifications struct{ v *view }

func (r notifications) Create(_ context.Context, n *repository.Notification) error {
	defer r.v.lock()()
	n.ID = newID()
	n.IsRead = false
	n.CreatedAt = r.v.s.now()
	r.v.s.st.notifications.put(n.ID, *n)
	return nil
}

func (r notifications) ListByUser(_ context.Context, userID string, unreadOnly bool, limit int) ([]*repository.Notification, error) {
	defer r.v.lock()()
	rows := r.v.s.st.notifications.filter(func(n repository.Notification) bool {
		return n.UserID == userID && (!unreadOnly || !n.IsRead)
	})
	slices.Reverse(rows)
	out := make([]*repository.Notification, 0)
	for _, n := range page(rows, limit, 0) {
		out = append(out, ptr(n))
	}
	return out, nil
}

func (r notifications) MarkRead(_ context.Context, id, userID string) error {
	defer r.v.lock()()
	st := r.v.s.st
	n, ok := st.notifications.get(id)
	if !ok || n.UserID != userID {
		return errors.NotFound("notification", id)
	}
	n.IsRead = true
	st.notifications.put(id, n)
	return nil
}

func (r notifications) MarkAllRead(_ context.Context, userID string) (int64, error) {
	defer r.v.lock()()
	st := r.v.s.st
	var changed int64
	for _, n := range st.notifications.filter(func(n repository.Notification) bool {
		return n.UserID == userID && !n.IsRead
	}) {
		n.IsRead = true
		st.notifications.put(n.ID, n)
		changed++
	}
	return changed, nil
}

func (r notifications) CountUnread(_ context.Context, userID string) (int64, error) {
	defer r.v.lock()()
	rows := r.v.s.st.notifications.filter(func(n repository.Notification) bool {
		return n.UserID == userID && !n.IsRead
	})
	return int64(len(rows)), nil
}

// ── comments and files ───────────────────────────────────────────────────────

type comments struct{ v *view }

func (r comments) Create(_ context.Context, c *repository.Comment) error {
	defer r.v.lock()()
	c.ID = newID()
	c.CreatedAt = r.v.s.now()
	r.v.s.st.comments.put(c.ID, *c)
	return nil
}

func (r comments) GetByID(_ context.Context, id string) (*repository.Comment, error) {
	defer r.v.lock()()
	c, ok := r.v.s.st.comments.get(id)
	if !ok {
		return nil, errors.NotFound("comment", id)
	}
	return &c, nil
}

func (r comments) ListByDocument(_ context.Context, documentID string) ([]*repository.Comment, error) {
	defer r.v.lock()()
	rows := r.v.s.st.comments.filter(func(c repository.Comment) bool { return c.DocumentID == documentID })
	out := make([]*repository.Comment, 0, len(rows))
	for _, c := range rows {
		out = append(out, ptr(c))
	}
	return out, nil
}

func (r comments) Delete(_ context.Context, id string) error {
	defer r.v.lock()()
	if !r.v.s.st.comments.delete(id) {
		return errors.NotFound("comment", id)
	}
	return nil
}

type files struct{ v *view }

func (r files) Create(_ context.Context, f *repository.File) error {
	defer r.v.lock()()
	f.ID = newID()
	f.CreatedAt = r.v.s.now()
	r.v.s.st.files.put(f.ID, *f)
	return nil
}

func (r files) GetByID(_ context.Context, id string) (*repository.File, error) {
	defer r.v.lock()()
	f, ok := r.v.s.st.files.get(id)
	if !ok {
		return nil, errors.NotFound("file", id)
	}
	return &f, nil
}

func (r files) ListByDocument(_ context.Context, documentID string) ([]*repository.File, error) {
	defer r.v.lock()()
	rows := r.v.s.st.files.filter(func(f repository.File) bool { return f.DocumentID == documentID })
	out := make([]*repository.File, 0, len(rows))
	for _, f := range rows {
		out = append(out, ptr(f))
	}
	return out, nil
}

func (r files) Delete(_ context.Context, id string) error {
	defer r.v.lock()()
	if !r.v.s.st.files.delete(id) {
		return errors.NotFound("file", id)
	}
	return nil
}
