package service

import (
	"context"
	"strings"

	"github.com/pesio-ai/be-doc-approvals/internal/repository"
	"github.com/pesio-ai/be-doc-approvals/pkg/errors"
	"github.com/pesio-ai/be-doc-approvals/pkg/logger"
)

// FileService records attachment metadata. The bytes live in external
// storage referenced by StorageURL.
type FileService struct {
	store repository.Store
	log   *logger.Logger
}

// NewFileService creates a new file service
func NewFileService(store repository.Store, log *logger.Logger) *FileService {
	return &FileService{store: store, log: log.Component("files")}
}

// AttachFileRequest represents an attach file request
type AttachFileRequest struct {
	DocumentID  string
	FileName    string
	ContentType string
	SizeBytes   int64
	StorageURL  string
	Caller      Caller
}

func (s *FileService) AttachFile(ctx context.Context, req *AttachFileRequest) (*repository.File, error) {
	if err := req.Caller.validate(); err != nil {
		return nil, err
	}
	switch {
	case strings.TrimSpace(req.FileName) == "":
		return nil, errors.InvalidInput("file_name", "file name is required")
	case strings.TrimSpace(req.StorageURL) == "":
		return nil, errors.InvalidInput("storage_url", "storage url is required")
	case req.SizeBytes < 0:
		return nil, errors.InvalidInput("size_bytes", "size cannot be negative")
	}
	if _, err := s.store.Documents().GetByID(ctx, req.DocumentID); err != nil {
		return nil, err
	}

	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	f := &repository.File{
		DocumentID:  req.DocumentID,
		FileName:    strings.TrimSpace(req.FileName),
		ContentType: contentType,
		SizeBytes:   req.SizeBytes,
		StorageURL:  req.StorageURL,
		UploadedBy:  req.Caller.ID,
	}
	if err := s.store.Files().Create(ctx, f); err != nil {
		return nil, err
	}
	s.log.Debug().Str("file_id", f.ID).Str("document_id", f.DocumentID).Msg("File attached")
	return f, nil
}

func (s *FileService) ListFiles(ctx context.Context, documentID string) ([]*repository.File, error) {
	if _, err := s.store.Documents().GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	return s.store.Files().ListByDocument(ctx, documentID)
}

// DeleteFile removes attachment metadata. Allowed for the uploader, the
// document initiator and administrators.
func (s *FileService) DeleteFile(ctx context.Context, id string, caller Caller) error {
	if err := caller.validate(); err != nil {
		return err
	}
	f, err := s.store.Files().GetByID(ctx, id)
	if err != nil {
		return err
	}
	if f.UploadedBy != caller.ID && !caller.IsAdmin() {
		d, err := s.store.Documents().GetByID(ctx, f.DocumentID)
		if err != nil {
			return err
		}
		if d.InitiatorID != caller.ID {
			return errors.Forbidden("not allowed to delete this file")
		}
	}
	return s.store.Files().Delete(ctx, id)
}
