// Package documents tracks identity documents uploaded straight to object storage.
package documents

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"brokerdesk-backend/internal/application/audit"
	"brokerdesk-backend/internal/application/policies/access"
	"brokerdesk-backend/internal/domain"
	"brokerdesk-backend/internal/pkg/apperr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Bucket is the private storage bucket for KYC documents.
const Bucket = "kyc-documents"

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type Service struct {
	DB      *gorm.DB
	Storage Storage
}

type UploadInput struct {
	Kind     string `json:"kind"`
	FileName string `json:"file_name"`
}

// Upload is returned to the client, which PUTs the file to UploadURL.
type Upload struct {
	Document  domain.Document `json:"document"`
	UploadURL string          `json:"uploadUrl"`
}

// RequestUpload reserves a document record and returns a signed URL to upload it to.
func (s *Service) RequestUpload(ctx context.Context, p access.Principal, in UploadInput) (*Upload, error) {
	if p.IsZero() {
		return nil, apperr.Unauthorized("Unauthorized")
	}
	if !domain.ValidDocumentKind(in.Kind) {
		return nil, apperr.Validation("invalid_kind", "kind must be one of: id_front id_back proof_of_address")
	}
	name := sanitizeFileName(in.FileName)
	if name == "" {
		return nil, apperr.Validation("invalid_file_name", "file_name is required")
	}

	doc := domain.Document{DocumentID: uuid.New(), UserID: p.UserID, Kind: in.Kind, Status: domain.DocumentAwaitingUpload}
	doc.Path = fmt.Sprintf("%s/%s-%s", p.UserID, doc.DocumentID, name)

	url, err := s.Storage.CreateSignedUploadURL(ctx, Bucket, doc.Path)
	if err != nil {
		return nil, apperr.Upstream("storage_failed", "Failed to generate upload URL", err)
	}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&doc).Error; err != nil {
			return err
		}
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "document.request_upload", TargetType: access.KindDocument, TargetID: doc.DocumentID, After: doc,
		})
	})
	if err != nil {
		return nil, err
	}
	return &Upload{Document: doc, UploadURL: url}, nil
}

// ConfirmUpload marks the owner's document as uploaded.
func (s *Service) ConfirmUpload(ctx context.Context, p access.Principal, id uuid.UUID) (*domain.Document, error) {
	var doc domain.Document
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("document_id = ?", id).First(&doc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("document_not_found", "Document not found")
			}
			return err
		}
		if doc.UserID != p.UserID {
			return apperr.Forbidden("forbidden", "Only the owner can confirm an upload")
		}
		if doc.Status == domain.DocumentUploaded {
			return nil
		}
		if err := tx.Model(&doc).Update("status", domain.DocumentUploaded).Error; err != nil {
			return err
		}
		doc.Status = domain.DocumentUploaded
		return audit.Record(tx, audit.Entry{
			Actor: p, Action: "document.uploaded", TargetType: access.KindDocument, TargetID: doc.DocumentID,
			Before: map[string]string{"status": domain.DocumentAwaitingUpload}, After: map[string]string{"status": domain.DocumentUploaded},
		})
	})
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// List returns the documents of userID the principal may read.
func (s *Service) List(ctx context.Context, p access.Principal, userID uuid.UUID) ([]domain.Document, error) {
	if err := access.Require(p, access.Resource{Kind: access.KindDocument, OwnerID: userID}, access.Read); err != nil {
		return nil, err
	}
	var out []domain.Document
	if err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func sanitizeFileName(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	name = strings.Trim(unsafeChars.ReplaceAllString(name, "_"), "_")
	if len(name) > 100 {
		name = name[len(name)-100:]
	}
	return name
}
