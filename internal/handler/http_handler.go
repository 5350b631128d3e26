package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/internal/routing"
	"github.com/pesio-ai/be-doc-approvals/internal/service"
	"github.com/pesio-ai/be-doc-approvals/pkg/auth"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
	"github.com/pesio-ai/be-doc-approvals/pkg/logger"
)

// Services bundles the services exposed over HTTP and gRPC.
type Services struct {
	Routing       *service.ApprovalRoutingService
	Documents     *service.DocumentService
	Templates     *service.TemplateService
	Users         *service.UserService
	Comments      *service.CommentService
	Files         *service.FileService
	Notifications *service.NotificationService
}

// HTTPHandler handles HTTP requests
type HTTPHandler struct {
	svc      Services
	validate *validator.Validate
	log      *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler
func NewHTTPHandler(svc Services, log *logger.Logger) *HTTPHandler {
	return &HTTPHandler{
		svc:      svc,
		validate: validator.New(),
		log:      log.Component("http"),
	}
}

// RegisterRoutes mounts the API on mux.
func (h *HTTPHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/v1/documents", methods(map[string]http.HandlerFunc{
		http.MethodGet:  h.ListDocuments,
		http.MethodPost: h.CreateDocument,
	}))
	mux.HandleFunc("/api/v1/documents/get", h.GetDocument)
	mux.HandleFunc("/api/v1/documents/update", h.UpdateDocument)
	mux.HandleFunc("/api/v1/documents/delete", h.DeleteDocument)
	mux.HandleFunc("/api/v1/documents/submit", h.SubmitForApproval)
	mux.HandleFunc("/api/v1/documents/decide", h.Decide)
	mux.HandleFunc("/api/v1/documents/approve", h.decideWith(routing.ActionApprove))
	mux.HandleFunc("/api/v1/documents/reject", h.decideWith(routing.ActionReject))
	mux.HandleFunc("/api/v1/documents/status", h.OverrideStatus)
	mux.HandleFunc("/api/v1/documents/history", h.GetApprovalHistory)
	mux.HandleFunc("/api/v1/documents/approvals", h.ListDocumentApprovals)
	mux.HandleFunc("/api/v1/approvals/pending", h.ListPendingApprovals)

	mux.HandleFunc("/api/v1/templates", methods(map[string]http.HandlerFunc{
		http.MethodGet:  h.ListTemplates,
		http.MethodPost: h.CreateTemplate,
	}))
	mux.HandleFunc("/api/v1/templates/get", h.GetTemplate)
	mux.HandleFunc("/api/v1/templates/update", h.UpdateTemplate)
	mux.HandleFunc("/api/v1/templates/delete", h.DeleteTemplate)
	mux.HandleFunc("/api/v1/templates/route", methods(map[string]http.HandlerFunc{
		http.MethodGet:    h.GetRoute,
		http.MethodPut:    h.SetRoute,
		http.MethodDelete: h.DeleteRoute,
	}))

	mux.HandleFunc("/api/v1/users", methods(map[string]http.HandlerFunc{
		http.MethodGet:  h.ListUsers,
		http.MethodPost: h.CreateUser,
	}))
	mux.HandleFunc("/api/v1/users/get", h.GetUser)
	mux.HandleFunc("/api/v1/users/role", h.UpdateUserRole)
	mux.HandleFunc("/api/v1/users/deactivate", h.DeactivateUser)

	mux.HandleFunc("/api/v1/comments", methods(map[string]http.HandlerFunc{
		http.MethodGet:  h.ListComments,
		http.MethodPost: h.AddComment,
	}))
	mux.HandleFunc("/api/v1/comments/delete", h.DeleteComment)

	mux.HandleFunc("/api/v1/files", methods(map[string]http.HandlerFunc{
		http.MethodGet:  h.ListFiles,
		http.MethodPost: h.AttachFile,
	}))
	mux.HandleFunc("/api/v1/files/delete", h.DeleteFile)

	mux.HandleFunc("/api/v1/notifications", h.ListNotifications)
	mux.HandleFunc("/api/v1/notifications/read", h.MarkNotificationRead)
	mux.HandleFunc("/api/v1/notifications/read-all", h.MarkAllNotificationsRead)
	mux.HandleFunc("/api/v1/notifications/unread-count", h.CountUnreadNotifications)
}

// ── Documents ─────────────────────────────────────────────────────────────────

type createDocumentBody struct {
	Title       string  `json:"title" validate:"required,max=500"`
	Description *string `json:"description"`
	TemplateID  *string `json:"template_id"`
}

// CreateDocument handles create document HTTP requests
func (h *HTTPHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body createDocumentBody
	if !h.decode(w, r, &body) {
		return
	}

	doc, err := h.svc.Documents.CreateDocument(r.Context(), &service.CreateDocumentRequest{
		Title:       body.Title,
		Description: body.Description,
		TemplateID:  body.TemplateID,
		Caller:      caller,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

// GetDocument handles get document HTTP requests
func (h *HTTPHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	id, ok := h.requiredQuery(w, r, "id")
	if !ok {
		return
	}
	doc, err := h.svc.Documents.GetDocument(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// ListDocuments handles list documents HTTP requests
func (h *HTTPHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &service.ListDocumentsRequest{
		InitiatorID: optionalQuery(r, "initiator_id"),
		TemplateID:  optionalQuery(r, "template_id"),
	}
	if status := q.Get("status"); status != "" {
		s := repository.DocumentStatus(strings.ToUpper(status))
		req.Status = &s
	}
	req.Page, req.PageSize = pageParams(r)

	docs, total, err := h.svc.Documents.ListDocuments(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": docs, "total": total})
}

type updateDocumentBody struct {
	ID          string  `json:"id" validate:"required"`
	Title       *string `json:"title" validate:"omitempty,max=500"`
	Description *string `json:"description"`
	TemplateID  *string `json:"template_id"`
}

// UpdateDocument handles update document HTTP requests
func (h *HTTPHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost, http.MethodPut) {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body updateDocumentBody
	if !h.decode(w, r, &body) {
		return
	}
	doc, err := h.svc.Documents.UpdateDocument(r.Context(), &service.UpdateDocumentRequest{
		ID:          body.ID,
		Title:       body.Title,
		Description: body.Description,
		TemplateID:  body.TemplateID,
		Caller:      caller,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDocument handles delete document HTTP requests
func (h *HTTPHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodDelete) {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.requiredQuery(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Documents.DeleteDocument(r.Context(), id, caller); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Approval lifecycle ────────────────────────────────────────────────────────

type submitBody struct {
	ID               string  `json:"id" validate:"required"`
	ManualApproverID *string `json:"manual_approver_id"`
}

// SubmitForApproval handles submit for approval HTTP requests
func (h *HTTPHandler) SubmitForApproval(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body submitBody
	if !h.decode(w, r, &body) {
		return
	}
	doc, err := h.svc.Routing.SubmitForApproval(r.Context(), &service.SubmitRequest{
		DocumentID:       body.ID,
		Caller:           caller,
		ManualApproverID: body.ManualApproverID,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type decideBody struct {
	ID      string  `json:"id" validate:"required"`
	Action  string  `json:"action" validate:"omitempty,oneof=approve reject"`
	Comment *string `json:"comment" validate:"omitempty,max=2000"`
}

// Decide handles approve/reject decisions with the action in the body
func (h *HTTPHandler) Decide(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, "")
}

func (h *HTTPHandler) decideWith(action routing.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.decide(w, r, action)
	}
}

func (h *HTTPHandler) decide(w http.ResponseWriter, r *http.Request, fixed routing.Action) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body decideBody
	if !h.decode(w, r, &body) {
		return
	}
	action := routing.Action(body.Action)
	if fixed != "" {
		action = fixed
	}

	doc, err := h.svc.Routing.Decide(r.Context(), &service.DecideRequest{
		DocumentID: body.ID,
		Caller:     caller,
		Action:     action,
		Comment:    body.Comment,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

type overrideBody struct {
	ID     string `json:"id" validate:"required"`
	Status string `json:"status" validate:"required"`
}

// OverrideStatus handles administrative status changes
func (h *HTTPHandler) OverrideStatus(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body overrideBody
	if !h.decode(w, r, &body) {
		return
	}
	doc, err := h.svc.Routing.OverrideStatus(r.Context(), &service.OverrideRequest{
		DocumentID: body.ID,
		Caller:     caller,
		NewStatus:  repository.DocumentStatus(body.Status),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// GetApprovalHistory returns the audit trail of a document
func (h *HTTPHandler) GetApprovalHistory(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	id, ok := h.requiredQuery(w, r, "id")
	if !ok {
		return
	}
	entries, err := h.svc.Routing.GetApprovalHistory(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": entries})
}

// ListDocumentApprovals returns every approval record of a document
func (h *HTTPHandler) ListDocumentApprovals(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	id, ok := h.requiredQuery(w, r, "id")
	if !ok {
		return
	}
	approvals, err := h.svc.Routing.ListDocumentApprovals(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"approvals": approvals})
}

// ListPendingApprovals returns the caller's pending approvals
func (h *HTTPHandler) ListPendingApprovals(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	approvals, err := h.svc.Routing.ListPendingApprovals(r.Context(), caller.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"approvals": approvals})
}

// ── Templates ─────────────────────────────────────────────────────────────────

type templateBody struct {
	ID          string  `json:"id"`
	Name        string  `json:"name" validate:"max=200"`
	Description *string `json:"description"`
}

func (h *HTTPHandler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body templateBody
	if !h.decode(w, r, &body) {
		return
	}
	t, err := h.svc.Templates.CreateTemplate(r.Context(), &service.TemplateRequest{
		Name: body.Name, Description: body.Description, Caller: caller,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *HTTPHandler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	id, ok := h.requiredQuery(w, r, "id")
	if !ok {
		return
	}
	t, err := h.svc.Templates.GetTemplate(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *HTTPHandler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	templates, total, err := h.svc.Templates.ListTemplates(r.Context(), page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"templates": templates, "total": total})
}

func (h *HTTPHandler) UpdateTemplate(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost, http.MethodPut) {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body templateBody
	if !h.decode(w, r, &body) {
		return
	}
	if body.ID == "" {
		h.writeError(w, r, errors.InvalidInput("id", "id is required"))
		return
	}
	t, err := h.svc.Templates.UpdateTemplate(r.Context(), &service.TemplateRequest{
		ID: body.ID, Name: body.Name, Description: body.Description, Caller: caller,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *HTTPHandler) DeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodDelete) {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.requiredQuery(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Templates.DeleteTemplate(r.Context(), id, caller); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type routeBody struct {
	Name  string                 `json:"name"`
	Steps []repository.RouteStep `json:"steps"`
}

// SetRoute replaces the approval route of ?template_id=
func (h *HTTPHandler) SetRoute(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	templateID, ok := h.requiredQuery(w, r, "template_id")
	if !ok {
		return
	}
	var body routeBody
	if !h.decode(w, r, &body) {
		return
	}
	route, err := h.svc.Templates.SetRoute(r.Context(), &service.SetRouteRequest{
		TemplateID: templateID, Name: body.Name, Steps: body.Steps, Caller: caller,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (h *HTTPHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	templateID, ok := h.requiredQuery(w, r, "template_id")
	if !ok {
		return
	}
	route, err := h.svc.Templates.GetRoute(r.Context(), templateID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

func (h *HTTPHandler) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	templateID, ok := h.requiredQuery(w, r, "template_id")
	if !ok {
		return
	}
	if err := h.svc.Templates.DeleteRoute(r.Context(), templateID, caller); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Users ─────────────────────────────────────────────────────────────────────

type createUserBody struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required,max=200"`
	Role  string `json:"role" validate:"required"`
}

func (h *HTTPHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body createUserBody
	if !h.decode(w, r, &body) {
		return
	}
	u, err := h.svc.Users.CreateUser(r.Context(), &service.CreateUserRequest{
		Email: body.Email, Name: body.Name, Role: repository.UserRole(body.Role), Caller: caller,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *HTTPHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	id, ok := h.requiredQuery(w, r, "id")
	if !ok {
		return
	}
	u, err := h.svc.Users.GetUser(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *HTTPHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	users, total, err := h.svc.Users.ListUsers(r.Context(), page, pageSize)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users, "total": total})
}

type userRoleBody struct {
	ID   string `json:"id" validate:"required"`
	Role string `json:"role" validate:"required"`
}

func (h *HTTPHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body userRoleBody
	if !h.decode(w, r, &body) {
		return
	}
	u, err := h.svc.Users.UpdateRole(r.Context(), body.ID, repository.UserRole(body.Role), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

type idBody struct {
	ID string `json:"id" validate:"required"`
}

func (h *HTTPHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body idBody
	if !h.decode(w, r, &body) {
		return
	}
	u, err := h.svc.Users.Deactivate(r.Context(), body.ID, caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ── Comments and files ────────────────────────────────────────────────────────

type commentBody struct {
	DocumentID string `json:"document_id" validate:"required"`
	Body       string `json:"body" validate:"required,max=5000"`
}

func (h *HTTPHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body commentBody
	if !h.decode(w, r, &body) {
		return
	}
	c, err := h.svc.Comments.AddComment(r.Context(), body.DocumentID, body.Body, caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *HTTPHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	documentID, ok := h.requiredQuery(w, r, "document_id")
	if !ok {
		return
	}
	comments, err := h.svc.Comments.ListComments(r.Context(), documentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"comments": comments})
}

func (h *HTTPHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodDelete) {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.requiredQuery(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Comments.DeleteComment(r.Context(), id, caller); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type fileBody struct {
	DocumentID  string `json:"document_id" validate:"required"`
	FileName    string `json:"file_name" validate:"required,max=255"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes" validate:"gte=0"`
	StorageURL  string `json:"storage_url" validate:"required,url"`
}

func (h *HTTPHandler) AttachFile(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body fileBody
	if !h.decode(w, r, &body) {
		return
	}
	f, err := h.svc.Files.AttachFile(r.Context(), &service.AttachFileRequest{
		DocumentID:  body.DocumentID,
		FileName:    body.FileName,
		ContentType: body.ContentType,
		SizeBytes:   body.SizeBytes,
		StorageURL:  body.StorageURL,
		Caller:      caller,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

func (h *HTTPHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	documentID, ok := h.requiredQuery(w, r, "document_id")
	if !ok {
		return
	}
	files, err := h.svc.Files.ListFiles(r.Context(), documentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"files": files})
}

func (h *HTTPHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodDelete) {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	id, ok := h.requiredQuery(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.Files.DeleteFile(r.Context(), id, caller); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Notifications ─────────────────────────────────────────────────────────────

func (h *HTTPHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.svc.Notifications.List(r.Context(), caller, unread, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": list})
}

func (h *HTTPHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	var body idBody
	if !h.decode(w, r, &body) {
		return
	}
	if err := h.svc.Notifications.MarkRead(r.Context(), body.ID, caller); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTPHandler) MarkAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	changed, err := h.svc.Notifications.MarkAllRead(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"updated": changed})
}

func (h *HTTPHandler) CountUnreadNotifications(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	caller, ok := h.caller(w, r)
	if !ok {
		return
	}
	count, err := h.svc.Notifications.CountUnread(r.Context(), caller)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"unread": count})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func (h *HTTPHandler) caller(w http.ResponseWriter, r *http.Request) (service.Caller, bool) {
	uc, err := auth.GetUserContext(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return service.Caller{}, false
	}
	return service.Caller{ID: uc.UserID, Role: repository.UserRole(uc.Role)}, true
}

// decode reads a JSON body into dst and runs struct validation.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeError(w, r, errors.InvalidInput("body", "invalid request body"))
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			h.writeError(w, r, errors.InvalidInput(fe.Field(), "failed "+fe.Tag()+" validation"))
			return false
		}
		h.writeError(w, r, errors.InvalidInput("body", err.Error()))
		return false
	}
	return true
}

func (h *HTTPHandler) requiredQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		h.writeError(w, r, errors.InvalidInput(name, name+" is required"))
		return "", false
	}
	return v, true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}

	body := map[string]interface{}{
		"code":    errors.CodeOf(err),
		"message": err.Error(),
	}
	var coded *errors.Error
	if errors.As(err, &coded) {
		body["message"] = coded.Message
		if len(coded.Details) > 0 {
			body["details"] = coded.Details
		}
	}
	if errors.Retryable(err) {
		body["retryable"] = true
	}
	writeJSON(w, status, map[string]interface{}{"error": body})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func allow(w http.ResponseWriter, r *http.Request, allowed ...string) bool {
	for _, m := range allowed {
		if r.Method == m {
			return true
		}
	}
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}

func methods(handlers map[string]http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if fn, ok := handlers[r.Method]; ok {
			fn(w, r)
			return
		}
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func optionalQuery(r *http.Request, name string) *string {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return nil
	}
	return &v
}

func pageParams(r *http.Request) (page, pageSize int) {
	page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))
	return page, pageSize
}
