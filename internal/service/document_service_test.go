package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
)

func TestCreateDocument(t *testing.T) {
	f := newFixture(t)

	_, err := f.documents.CreateDocument(f.ctx, &CreateDocumentRequest{Title: "  ", Caller: initiator()})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))

	missing := "missing-template"
	_, err = f.documents.CreateDocument(f.ctx, &CreateDocumentRequest{Title: "x", TemplateID: &missing, Caller: initiator()})
	assert.True(t, errors.IsNotFound(err))

	doc := f.draft(t, "")
	assert.Equal(t, repository.StatusDraft, doc.Status)
	assert.Equal(t, "init", doc.InitiatorID)
	assert.Regexp(t, `^DOC-\d{4}-\d{6}$`, doc.Number)
	assert.Equal(t, []string{repository.AuditCreated}, f.auditActions(t, doc.ID))
}

func TestUpdateDocumentPermissions(t *testing.T) {
	f := newFixture(t)
	f.user(t, "boss", repository.RoleApprover)
	doc := f.draft(t, "")

	title := "Renamed"
	_, err := f.documents.UpdateDocument(f.ctx, &UpdateDocumentRequest{ID: doc.ID, Title: &title, Caller: Caller{ID: "boss", Role: repository.RoleApprover}})
	assert.True(t, errors.HasCode(err, errors.ErrCodeForbidden))

	updated, err := f.documents.UpdateDocument(f.ctx, &UpdateDocumentRequest{ID: doc.ID, Title: &title, Caller: initiator()})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Title)

	boss := "boss"
	_, err = f.routing.SubmitForApproval(f.ctx, &SubmitRequest{DocumentID: doc.ID, Caller: initiator(), ManualApproverID: &boss})
	require.NoError(t, err)

	_, err = f.documents.UpdateDocument(f.ctx, &UpdateDocumentRequest{ID: doc.ID, Title: &title, Caller: initiator()})
	assert.True(t, errors.HasCode(err, errors.ErrCodePreconditionFailed))

	adminTitle := "Fixed by admin"
	updated, err = f.documents.UpdateDocument(f.ctx, &UpdateDocumentRequest{ID: doc.ID, Title: &adminTitle, Caller: admin})
	require.NoError(t, err)
	assert.Equal(t, repository.StatusInApproval, updated.Status)

	tpl := f.template(t)
	_, err = f.documents.UpdateDocument(f.ctx, &UpdateDocumentRequest{ID: doc.ID, TemplateID: &tpl, Caller: admin})
	assert.True(t, errors.HasCode(err, errors.ErrCodePreconditionFailed))

	assert.Equal(t,
		[]string{repository.AuditCreated, repository.AuditUpdated, repository.AuditSubmitted, repository.AuditUpdated},
		f.auditActions(t, doc.ID))
}

func TestDeleteDocument(t *testing.T) {
	f := newFixture(t)
	f.user(t, "boss", repository.RoleApprover)

	draft := f.draft(t, "")
	require.NoError(t, f.documents.DeleteDocument(f.ctx, draft.ID, initiator()))
	_, err := f.documents.GetDocument(f.ctx, draft.ID)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, []string{repository.AuditCreated, repository.AuditDeleted}, f.auditActions(t, draft.ID))

	submitted := f.draft(t, "")
	boss := "boss"
	_, err = f.routing.SubmitForApproval(f.ctx, &SubmitRequest{DocumentID: submitted.ID, Caller: initiator(), ManualApproverID: &boss})
	require.NoError(t, err)

	err = f.documents.DeleteDocument(f.ctx, submitted.ID, initiator())
	assert.True(t, errors.HasCode(err, errors.ErrCodePreconditionFailed))
	require.NoError(t, f.documents.DeleteDocument(f.ctx, submitted.ID, admin))
}

func TestListDocuments(t *testing.T) {
	f := newFixture(t)
	tpl := f.template(t)
	for i := 0; i < 3; i++ {
		f.draft(t, "")
	}
	f.draft(t, tpl)

	all, total, err := f.documents.ListDocuments(f.ctx, &ListDocumentsRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, all, 4)

	page, total, err := f.documents.ListDocuments(f.ctx, &ListDocumentsRequest{Page: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	assert.Len(t, page, 1)

	byTemplate, total, err := f.documents.ListDocuments(f.ctx, &ListDocumentsRequest{TemplateID: &tpl})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, tpl, *byTemplate[0].TemplateID)

	bad := repository.DocumentStatus("LOST")
	_, _, err = f.documents.ListDocuments(f.ctx, &ListDocumentsRequest{Status: &bad})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidInput))
}
