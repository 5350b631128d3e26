package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/internal/repository/memory"
	"github.com/pesio-ai/be-doc-approvals/internal/routing"
	"github.com/pesio-ai/be-doc-approvals/pkg/logger"
)

var admin = Caller{ID: "admin", Role: repository.RoleAdmin}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Publish(_ context.Context, ev Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fixture struct {
	ctx       context.Context
	store     *memory.Store
	notifier  *recordingNotifier
	routing   *ApprovalRoutingService
	documents *DocumentService
	templates *TemplateService
	users     *UserService
	comments  *CommentService
	files     *FileService
	inbox     *NotificationService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	notifier := &recordingNotifier{}
	log := logger.Nop()

	f := &fixture{
		ctx:       context.Background(),
		store:     store,
		notifier:  notifier,
		routing:   NewApprovalRoutingService(store, notifier, log),
		documents: NewDocumentService(store, log),
		templates: NewTemplateService(store, log),
		users:     NewUserService(store, log),
		comments:  NewCommentService(store, notifier, log),
		files:     NewFileService(store, log),
		inbox:     NewNotificationService(store, log),
	}
	f.user(t, "admin", repository.RoleAdmin)
	f.user(t, "init", repository.RoleEmployee)
	return f
}

// user seeds a user with a fixed id.
func (f *fixture) user(t *testing.T, id string, role repository.UserRole) *repository.User {
	t.Helper()
	u := &repository.User{ID: id, Email: id + "@example.com", Name: id, Role: role, IsActive: true}
	require.NoError(t, f.store.Users().Create(f.ctx, u))
	return u
}

// template creates a template carrying the given route.
func (f *fixture) template(t *testing.T, steps ...repository.RouteStep) string {
	t.Helper()
	tpl, err := f.templates.CreateTemplate(f.ctx, &TemplateRequest{Name: "Purchase request", Caller: admin})
	require.NoError(t, err)
	if len(steps) > 0 {
		_, err = f.templates.SetRoute(f.ctx, &SetRouteRequest{TemplateID: tpl.ID, Steps: steps, Caller: admin})
		require.NoError(t, err)
	}
	return tpl.ID
}

func (f *fixture) draft(t *testing.T, templateID string) *repository.Document {
	t.Helper()
	req := &CreateDocumentRequest{Title: "Laptop purchase", Caller: initiator()}
	if templateID != "" {
		req.TemplateID = &templateID
	}
	doc, err := f.documents.CreateDocument(f.ctx, req)
	require.NoError(t, err)
	return doc
}

func (f *fixture) submit(t *testing.T, docID string) *repository.Document {
	t.Helper()
	doc, err := f.routing.SubmitForApproval(f.ctx, &SubmitRequest{DocumentID: docID, Caller: initiator()})
	require.NoError(t, err)
	return doc
}

func (f *fixture) decide(docID, approverID string, action routing.Action) (*repository.Document, error) {
	return f.routing.Decide(f.ctx, &DecideRequest{
		DocumentID: docID,
		Caller:     Caller{ID: approverID, Role: repository.RoleApprover},
		Action:     action,
	})
}

func (f *fixture) auditActions(t *testing.T, docID string) []string {
	t.Helper()
	entries, err := f.store.Audit().ListByDocument(f.ctx, docID)
	require.NoError(t, err)
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	return actions
}

func (f *fixture) notifications(t *testing.T, userID string) []*repository.Notification {
	t.Helper()
	list, err := f.store.Notifications().ListByUser(f.ctx, userID, false, 100)
	require.NoError(t, err)
	return list
}

func initiator() Caller {
	return Caller{ID: "init", Role: repository.RoleEmployee}
}

func step(n int, requireAll bool, approverIDs ...string) repository.RouteStep {
	return repository.RouteStep{StepNumber: n, ApproverIDs: approverIDs, RequireAll: requireAll}
}

func intPtr(v int) *int { return &v }
