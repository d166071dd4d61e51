package records

import (
	"time"

	"gorm.io/datatypes"
)

const (
	RequestStatusSubmitted = "submitted"
	RequestStatusApproved  = "approved"
	RequestStatusIssued    = "issued"

	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"

	OwnerTypeLicence = "licence"
)

// LicenceRequest is an application a council has approved for issuance.
type LicenceRequest struct {
	ID              string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	CouncilID       string     `gorm:"type:varchar(64);index;not null" json:"council_id"`
	ReferenceNo     string     `gorm:"type:varchar(64);index;not null" json:"reference_no"`
	ApplicantID     string     `gorm:"type:varchar(64)" json:"applicant_id"`
	ApplicantName   string     `gorm:"type:varchar(255)" json:"applicant_name"`
	TradingName     string     `gorm:"type:varchar(255)" json:"trading_name"`
	PremisesAddress string     `gorm:"type:text" json:"premises_address"`
	ServiceName     string     `gorm:"type:varchar(255)" json:"service_name"`
	Status          string     `gorm:"type:varchar(32);not null" json:"status"`
	IssuedLicenceNo *string    `gorm:"type:varchar(32)" json:"issued_licence_no,omitempty"`
	IssuedAt        *time.Time `json:"issued_at,omitempty"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (LicenceRequest) TableName() string { return "licence_requests" }

// Council is the tenant configuration used when rendering and verifying licences.
type Council struct {
	ID            string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	DisplayName   string    `gorm:"type:varchar(255);not null" json:"display_name"`
	VerifyBaseURL string    `gorm:"column:verify_base_url;type:varchar(255)" json:"verify_base_url"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Council) TableName() string { return "councils" }

type Payment struct {
	ID          string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	CouncilID   string     `gorm:"type:varchar(64);index:idx_payment_ref;not null" json:"council_id"`
	RequestRef  string     `gorm:"type:varchar(64);index:idx_payment_ref;not null" json:"request_ref"`
	Amount      int64      `json:"amount"`
	Status      string     `gorm:"type:varchar(32);not null" json:"status"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

func (Payment) TableName() string { return "payments" }

// Document links a stored file to the record that owns it.
type Document struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OwnerType string    `gorm:"type:varchar(32);index:idx_document_owner;not null" json:"owner_type"`
	OwnerID   string    `gorm:"type:varchar(64);index:idx_document_owner;not null" json:"owner_id"`
	FilePath  string    `gorm:"type:varchar(255);not null" json:"file_path"`
	FileSize  int64     `json:"file_size"`
	MimeType  string    `gorm:"type:varchar(64)" json:"mime_type"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Document) TableName() string { return "documents" }

type FileMeta struct {
	FilePath string
	FileSize int64
	MimeType string
}

// Notification is an in-app message shown to the recipient.
type Notification struct {
	ID          string            `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Recipient   string            `gorm:"type:varchar(64);index;not null" json:"recipient"`
	Event       string            `gorm:"type:varchar(64);not null" json:"event"`
	Payload     datatypes.JSONMap `json:"payload"`
	DeliveredAt time.Time         `json:"delivered_at"`
}

func (Notification) TableName() string { return "notifications" }

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{
		&LicenceRequest{},
		&Council{},
		&Payment{},
		&Document{},
		&Notification{},
	}
}
