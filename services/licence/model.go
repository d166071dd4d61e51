package licence

import (
	"time"

	"gorm.io/datatypes"
)

const (
	StatusPending = "pending"
	StatusActive  = "active"

	// derived at read time, never persisted
	StatusExpired          = "expired"
	StatusInvalidIntegrity = "invalid_integrity"
	StatusNotFound         = "not_found"
)

type SignatureMetadata struct {
	Algorithm string    `json:"algorithm"`
	IssuedAt  time.Time `json:"issuedAt"`
	Signature string    `json:"signature"`
	KeyID     string    `json:"keyId"`
}

type Licence struct {
	ID                 string                                `gorm:"primaryKey;type:varchar(64)" json:"id"`
	CouncilID          string                                `gorm:"type:varchar(64);index;not null" json:"councilId"`
	RequestID          string                                `gorm:"type:varchar(64);index;not null" json:"requestId"`
	LicenceNo          string                                `gorm:"type:varchar(32);uniqueIndex;not null" json:"licenceNo"`
	IssueDate          time.Time                             `json:"issueDate"`
	ExpiryDate         time.Time                             `json:"expiryDate"`
	Status             string                                `gorm:"type:varchar(16);index;not null" json:"status"`
	LicencePayloadHash string                                `gorm:"type:varchar(64)" json:"licencePayloadHash"`
	PDFHash            string                                `gorm:"column:pdf_hash;type:varchar(64)" json:"pdfHash"`
	SignedPDFHash      string                                `gorm:"column:signed_pdf_hash;type:varchar(64)" json:"signedPdfHash"`
	SignatureMetadata  datatypes.JSONType[SignatureMetadata] `json:"signatureMetadata"`
	CreatedAt          time.Time                             `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time                             `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (Licence) TableName() string { return "licences" }

const (
	OutboxPending    = "pending"
	OutboxDispatched = "dispatched"
	OutboxDelivered  = "delivered"
	OutboxFailed     = "failed"

	EventLicenceIssued = "licence.issued"
)

type NotificationOutbox struct {
	ID        string            `gorm:"primaryKey;type:varchar(64)" json:"id"`
	LicenceID string            `gorm:"type:varchar(64);index;not null" json:"licence_id"`
	Recipient string            `gorm:"type:varchar(64);not null" json:"recipient"`
	Event     string            `gorm:"type:varchar(64);not null" json:"event"`
	Payload   datatypes.JSONMap `json:"payload"`
	Status    string            `gorm:"type:varchar(16);index;not null" json:"status"`
	Attempts  int               `json:"attempts"`
	LastError string            `gorm:"type:text" json:"last_error"`
	CreatedAt time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

func (NotificationOutbox) TableName() string { return "licence_notification_outbox" }

func Models() []any {
	return []any{
		&Licence{},
		&SigningKey{},
		&NotificationOutbox{},
	}
}
