package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ApplicationCategory enumerates the document request types handled by the registry.
type ApplicationCategory string

const (
	CategoryTranscript           ApplicationCategory = "TRANSCRIPT"
	CategoryCertificateCopy      ApplicationCategory = "CERTIFICATE_COPY"
	CategoryDocumentVerification ApplicationCategory = "DOCUMENT_VERIFICATION"
)

// TranscriptType distinguishes student and official transcript copies.
type TranscriptType string

const (
	TranscriptStudentCopy  TranscriptType = "STUDENT_COPY"
	TranscriptOfficialCopy TranscriptType = "OFFICIAL_COPY"
)

// DeliveryMethod enumerates how a processed document reaches its recipient.
type DeliveryMethod string

const (
	DeliveryEmail   DeliveryMethod = "EMAIL"
	DeliveryPickup  DeliveryMethod = "PICKUP"
	DeliveryCourier DeliveryMethod = "COURIER"
)

// ApplicationStatus captures the lifecycle states of a document request.
type ApplicationStatus string

const (
	StatusPaymentPending         ApplicationStatus = "PAYMENT_PENDING"
	StatusProcessing             ApplicationStatus = "PROCESSING"
	StatusRegistrarReview        ApplicationStatus = "REGISTRAR_REVIEW"
	StatusDeputyRegistrarReview  ApplicationStatus = "DEPUTY_REGISTRAR_REVIEW"
	StatusExamsRecordsProcessing ApplicationStatus = "EXAMS_RECORDS_PROCESSING"
	StatusReady                  ApplicationStatus = "READY"
	StatusAvailableForPickup     ApplicationStatus = "AVAILABLE_FOR_PICKUP"
	StatusDispatched             ApplicationStatus = "DISPATCHED"
	StatusCompleted              ApplicationStatus = "COMPLETED"
	StatusRejected               ApplicationStatus = "REJECTED"
)

// Terminal reports whether no further workflow transition is defined from the status.
func (s ApplicationStatus) Terminal() bool {
	switch s {
	case StatusReady, StatusAvailableForPickup, StatusDispatched, StatusCompleted, StatusRejected:
		return true
	}
	return false
}

// Application is the aggregate root for one document request moving through the
// approval pipeline. State is only mutated through versioned repository updates.
type Application struct {
	ID                 string              `db:"id" json:"id"`
	TrackingCode       string              `db:"tracking_code" json:"tracking_code"`
	Category           ApplicationCategory `db:"category" json:"category"`
	TranscriptType     *TranscriptType     `db:"transcript_type" json:"transcript_type,omitempty"`
	DeliveryMethod     DeliveryMethod      `db:"delivery_method" json:"delivery_method"`
	Status             ApplicationStatus   `db:"status" json:"status"`
	Amount             decimal.Decimal     `db:"amount" json:"amount"`
	IsPaid             bool                `db:"is_paid" json:"is_paid"`
	PaidAt             *time.Time          `db:"paid_at" json:"paid_at,omitempty"`
	Purpose            *string             `db:"purpose" json:"purpose,omitempty"`
	RecipientName      *string             `db:"recipient_name" json:"recipient_name,omitempty"`
	RecipientEmail     *string             `db:"recipient_email" json:"recipient_email,omitempty"`
	RecipientAddress   *string             `db:"recipient_address" json:"recipient_address,omitempty"`
	InstitutionName    *string             `db:"institution_name" json:"institution_name,omitempty"`
	InstitutionEmail   *string             `db:"institution_email" json:"institution_email,omitempty"`
	InstitutionAddress *string             `db:"institution_address" json:"institution_address,omitempty"`
	CourierReference   *string             `db:"courier_reference" json:"courier_reference,omitempty"`
	ProcessingDays     *int                `db:"processing_days" json:"processing_days,omitempty"`
	RequesterID        string              `db:"requester_id" json:"requester_id"`
	Version            int64               `db:"version" json:"version"`
	CreatedAt          time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time           `db:"updated_at" json:"updated_at"`
}

// ApplicationNote is one immutable entry in an application's audit trail.
// Corrections are new entries, never edits.
type ApplicationNote struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"application_id"`
	AuthorID      *string   `db:"author_id" json:"author_id,omitempty"`
	Body          string    `db:"body" json:"body"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// ApplicationFilter constrains listing queries.
type ApplicationFilter struct {
	RequesterID string
	Statuses    []ApplicationStatus
	Category    ApplicationCategory
	PaidOnly    bool
	Page        int
	PageSize    int
}

// PublicStatusView is the unauthenticated tracking projection. It deliberately
// exposes no requester or recipient details.
type PublicStatusView struct {
	TrackingCode        string              `json:"tracking_code"`
	Category            ApplicationCategory `json:"category"`
	TranscriptType      *TranscriptType     `json:"transcript_type,omitempty"`
	DeliveryMethod      DeliveryMethod      `json:"delivery_method"`
	Status              ApplicationStatus   `json:"status"`
	StatusDescription   string              `json:"status_description"`
	IsPaid              bool                `json:"is_paid"`
	Amount              decimal.Decimal     `json:"amount"`
	EstimatedCompletion *string             `json:"estimated_completion,omitempty"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`
}
