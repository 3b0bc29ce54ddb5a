package service

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/uniosun/tacdra-api/internal/dto"
	"github.com/uniosun/tacdra-api/internal/models"
	appErrors "github.com/uniosun/tacdra-api/pkg/errors"
)

// feeKey identifies one row of the fee schedule.
type feeKey struct {
	category models.ApplicationCategory
	subtype  models.TranscriptType
	delivery models.DeliveryMethod
}

// feeSchedule is the fixed price list in NGN. Amounts are set at submission
// and never recomputed afterwards.
var feeSchedule = map[feeKey]decimal.Decimal{
	{models.CategoryTranscript, models.TranscriptStudentCopy, models.DeliveryEmail}:   decimal.NewFromInt(3000),
	{models.CategoryTranscript, models.TranscriptStudentCopy, models.DeliveryPickup}:  decimal.NewFromInt(3500),
	{models.CategoryTranscript, models.TranscriptOfficialCopy, models.DeliveryEmail}:  decimal.NewFromInt(5000),
	{models.CategoryTranscript, models.TranscriptOfficialCopy, models.DeliveryCourier}: decimal.NewFromInt(7500),

	{category: models.CategoryCertificateCopy, delivery: models.DeliveryEmail}:   decimal.NewFromInt(4000),
	{category: models.CategoryCertificateCopy, delivery: models.DeliveryPickup}:  decimal.NewFromInt(4500),
	{category: models.CategoryCertificateCopy, delivery: models.DeliveryCourier}: decimal.NewFromInt(8000),

	{category: models.CategoryDocumentVerification, delivery: models.DeliveryEmail}: decimal.NewFromInt(10000),
}

// ComputeFee returns the fixed fee for a category, transcript subtype and
// delivery method. The zero TranscriptType is used for non-transcript
// categories. Combinations outside the schedule are invalid.
func ComputeFee(category models.ApplicationCategory, subtype models.TranscriptType, delivery models.DeliveryMethod) (decimal.Decimal, error) {
	key := feeKey{category: category, delivery: delivery}
	if category == models.CategoryTranscript {
		key.subtype = subtype
	}
	amount, ok := feeSchedule[key]
	if !ok {
		return decimal.Zero, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("no fee defined for %s/%s via %s", category, subtype, delivery))
	}
	return amount, nil
}

// defaultProcessingDays mirrors the published turnaround per request type.
func defaultProcessingDays(category models.ApplicationCategory, subtype *models.TranscriptType) int {
	if category == models.CategoryTranscript && subtype != nil && *subtype == models.TranscriptStudentCopy {
		return 5
	}
	if category == models.CategoryTranscript {
		return 7
	}
	return 10
}

// ValidateSubmission enforces the category / subtype / delivery matrix and
// the recipient fields each combination requires. A failure names the field
// at fault; nothing is persisted on a validation error.
func ValidateSubmission(req dto.CreateApplicationRequest) error {
	switch req.Category {
	case models.CategoryTranscript, models.CategoryCertificateCopy, models.CategoryDocumentVerification:
	default:
		return appErrors.Clone(appErrors.ErrValidation, "category must be TRANSCRIPT, CERTIFICATE_COPY or DOCUMENT_VERIFICATION")
	}

	switch req.DeliveryMethod {
	case models.DeliveryEmail, models.DeliveryPickup, models.DeliveryCourier:
	default:
		return appErrors.Clone(appErrors.ErrValidation, "deliveryMethod must be EMAIL, PICKUP or COURIER")
	}

	if req.Category == models.CategoryTranscript {
		return validateTranscript(req)
	}

	if req.Category == models.CategoryDocumentVerification {
		if req.DeliveryMethod != models.DeliveryEmail {
			return appErrors.Clone(appErrors.ErrValidation, "document verification results are delivered via EMAIL only")
		}
		if blank(req.InstitutionName) || blank(req.InstitutionEmail) {
			return appErrors.Clone(appErrors.ErrValidation, "institutionName and institutionEmail are required for document verification")
		}
		return nil
	}

	// Certificate copy.
	if req.DeliveryMethod == models.DeliveryEmail && blank(req.RecipientEmail) {
		return appErrors.Clone(appErrors.ErrValidation, "recipientEmail is required for email delivery")
	}
	if req.DeliveryMethod == models.DeliveryCourier && blank(req.RecipientAddress) {
		return appErrors.Clone(appErrors.ErrValidation, "recipientAddress is required for courier delivery")
	}
	return nil
}

func validateTranscript(req dto.CreateApplicationRequest) error {
	switch req.TranscriptType {
	case models.TranscriptStudentCopy:
		if req.DeliveryMethod != models.DeliveryEmail && req.DeliveryMethod != models.DeliveryPickup {
			return appErrors.Clone(appErrors.ErrValidation, "student copy can only be delivered via EMAIL or PICKUP")
		}
		if req.DeliveryMethod == models.DeliveryEmail && blank(req.RecipientEmail) {
			return appErrors.Clone(appErrors.ErrValidation, "recipientEmail is required for student copy email delivery")
		}
	case models.TranscriptOfficialCopy:
		if req.DeliveryMethod != models.DeliveryEmail && req.DeliveryMethod != models.DeliveryCourier {
			return appErrors.Clone(appErrors.ErrValidation, "official copy can only be delivered via EMAIL or COURIER")
		}
		if blank(req.InstitutionName) || blank(req.InstitutionEmail) {
			return appErrors.Clone(appErrors.ErrValidation, "institutionName and institutionEmail are required for official copy")
		}
		if req.DeliveryMethod == models.DeliveryCourier && blank(req.InstitutionAddress) {
			return appErrors.Clone(appErrors.ErrValidation, "institutionAddress is required for courier delivery")
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, "transcriptType must be STUDENT_COPY or OFFICIAL_COPY")
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
