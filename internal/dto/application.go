package dto

import (
	"github.com/uniosun/tacdra-api/internal/models"
)

// CreateApplicationRequest payload for submitting a document request.
type CreateApplicationRequest struct {
	Category           models.ApplicationCategory `json:"category"`
	TranscriptType     models.TranscriptType      `json:"transcriptType,omitempty"`
	DeliveryMethod     models.DeliveryMethod      `json:"deliveryMethod"`
	Purpose            string                     `json:"purpose"`
	RecipientName      string                     `json:"recipientName"`
	RecipientEmail     string                     `json:"recipientEmail"`
	RecipientAddress   string                     `json:"recipientAddress"`
	InstitutionName    string                     `json:"institutionName"`
	InstitutionEmail   string                     `json:"institutionEmail"`
	InstitutionAddress string                     `json:"institutionAddress"`
}

// TransitionRequest captures a reviewer decision moving an application to a
// new status, with an optional annotation.
type TransitionRequest struct {
	Status models.ApplicationStatus `json:"status"`
	Note   string                   `json:"note"`
}

// ApplicationQuery mirrors supported listing filters.
type ApplicationQuery struct {
	Statuses []models.ApplicationStatus
	Category models.ApplicationCategory
	Page     int
	PageSize int
}

// FinalizeRequest closes out processing. Courier deliveries may attach the
// courier tracking reference handed over at dispatch.
type FinalizeRequest struct {
	Note             string `json:"note"`
	CourierReference string `json:"courierReference"`
}

// NoteRequest appends a free-text annotation to an application.
type NoteRequest struct {
	Body string `json:"body"`
}
