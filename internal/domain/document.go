package domain

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DocumentIDFront      = "id_front"
	DocumentIDBack       = "id_back"
	DocumentProofAddress = "proof_of_address"

	DocumentAwaitingUpload = "awaiting_upload"
	DocumentUploaded       = "uploaded"
)

func ValidDocumentKind(k string) bool {
	switch k {
	case DocumentIDFront, DocumentIDBack, DocumentProofAddress:
		return true
	}
	return false
}

// Document is a KYC file stored in object storage.
type Document struct {
	DocumentID uuid.UUID `gorm:"column:document_id;type:uuid;primaryKey" json:"document_id"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null;index" json:"user_id"`
	Kind       string    `gorm:"column:kind;type:varchar(20);not null" json:"kind"`
	Path       string    `gorm:"column:path;not null" json:"path"`
	PublicURL  string    `gorm:"column:public_url" json:"public_url"`
	Status     string    `gorm:"column:status;type:varchar(20);not null;default:awaiting_upload" json:"status"`
	CreatedAt  time.Time `gorm:"column:created_at;index" json:"createdAt"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updatedAt"`
}

func (Document) TableName() string {
	return "documents"
}

func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.DocumentID == uuid.Nil {
		d.DocumentID = uuid.New()
	}
	return nil
}
