package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uniosun/tacdra-api/internal/dto"
	"github.com/uniosun/tacdra-api/internal/models"
	appErrors "github.com/uniosun/tacdra-api/pkg/errors"
)

func TestComputeFeeSchedule(t *testing.T) {
	cases := []struct {
		category models.ApplicationCategory
		subtype  models.TranscriptType
		delivery models.DeliveryMethod
		want     int64
	}{
		{models.CategoryTranscript, models.TranscriptStudentCopy, models.DeliveryEmail, 3000},
		{models.CategoryTranscript, models.TranscriptStudentCopy, models.DeliveryPickup, 3500},
		{models.CategoryTranscript, models.TranscriptOfficialCopy, models.DeliveryEmail, 5000},
		{models.CategoryTranscript, models.TranscriptOfficialCopy, models.DeliveryCourier, 7500},
		{models.CategoryCertificateCopy, "", models.DeliveryEmail, 4000},
		{models.CategoryCertificateCopy, "", models.DeliveryPickup, 4500},
		{models.CategoryCertificateCopy, "", models.DeliveryCourier, 8000},
		{models.CategoryDocumentVerification, "", models.DeliveryEmail, 10000},
	}
	for _, tc := range cases {
		amount, err := ComputeFee(tc.category, tc.subtype, tc.delivery)
		require.NoError(t, err)
		require.Equal(t, tc.want, amount.IntPart(), "%s/%s via %s", tc.category, tc.subtype, tc.delivery)
	}
}

func TestComputeFeeRejectsUnpricedCombinations(t *testing.T) {
	_, err := ComputeFee(models.CategoryTranscript, models.TranscriptStudentCopy, models.DeliveryCourier)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = ComputeFee(models.CategoryDocumentVerification, "", models.DeliveryPickup)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestDefaultProcessingDays(t *testing.T) {
	student := models.TranscriptStudentCopy
	official := models.TranscriptOfficialCopy
	require.Equal(t, 5, defaultProcessingDays(models.CategoryTranscript, &student))
	require.Equal(t, 7, defaultProcessingDays(models.CategoryTranscript, &official))
	require.Equal(t, 10, defaultProcessingDays(models.CategoryCertificateCopy, nil))
	require.Equal(t, 10, defaultProcessingDays(models.CategoryDocumentVerification, nil))
}

func TestValidateSubmissionMatrix(t *testing.T) {
	cases := []struct {
		name    string
		req     dto.CreateApplicationRequest
		wantErr bool
	}{
		{
			name: "student copy email",
			req: dto.CreateApplicationRequest{
				Category:       models.CategoryTranscript,
				TranscriptType: models.TranscriptStudentCopy,
				DeliveryMethod: models.DeliveryEmail,
				RecipientEmail: "grad@example.com",
			},
		},
		{
			name: "student copy pickup needs no recipient",
			req: dto.CreateApplicationRequest{
				Category:       models.CategoryTranscript,
				TranscriptType: models.TranscriptStudentCopy,
				DeliveryMethod: models.DeliveryPickup,
			},
		},
		{
			name: "student copy courier denied",
			req: dto.CreateApplicationRequest{
				Category:       models.CategoryTranscript,
				TranscriptType: models.TranscriptStudentCopy,
				DeliveryMethod: models.DeliveryCourier,
			},
			wantErr: true,
		},
		{
			name: "student copy email without recipient",
			req: dto.CreateApplicationRequest{
				Category:       models.CategoryTranscript,
				TranscriptType: models.TranscriptStudentCopy,
				DeliveryMethod: models.DeliveryEmail,
			},
			wantErr: true,
		},
		{
			name: "official copy courier",
			req: dto.CreateApplicationRequest{
				Category:           models.CategoryTranscript,
				TranscriptType:     models.TranscriptOfficialCopy,
				DeliveryMethod:     models.DeliveryCourier,
				InstitutionName:    "Lagos Business School",
				InstitutionEmail:   "records@lbs.edu.ng",
				InstitutionAddress: "KM 22 Lekki-Epe Expressway",
			},
		},
		{
			name: "official copy pickup denied",
			req: dto.CreateApplicationRequest{
				Category:         models.CategoryTranscript,
				TranscriptType:   models.TranscriptOfficialCopy,
				DeliveryMethod:   models.DeliveryPickup,
				InstitutionName:  "Lagos Business School",
				InstitutionEmail: "records@lbs.edu.ng",
			},
			wantErr: true,
		},
		{
			name: "official copy missing institution",
			req: dto.CreateApplicationRequest{
				Category:       models.CategoryTranscript,
				TranscriptType: models.TranscriptOfficialCopy,
				DeliveryMethod: models.DeliveryEmail,
			},
			wantErr: true,
		},
		{
			name: "official copy courier without address",
			req: dto.CreateApplicationRequest{
				Category:         models.CategoryTranscript,
				TranscriptType:   models.TranscriptOfficialCopy,
				DeliveryMethod:   models.DeliveryCourier,
				InstitutionName:  "Lagos Business School",
				InstitutionEmail: "records@lbs.edu.ng",
			},
			wantErr: true,
		},
		{
			name: "transcript without subtype",
			req: dto.CreateApplicationRequest{
				Category:       models.CategoryTranscript,
				DeliveryMethod: models.DeliveryEmail,
			},
			wantErr: true,
		},
		{
			name: "certificate copy courier",
			req: dto.CreateApplicationRequest{
				Category:         models.CategoryCertificateCopy,
				DeliveryMethod:   models.DeliveryCourier,
				RecipientAddress: "12 Gbongan Road, Osogbo",
			},
		},
		{
			name: "certificate copy courier without address",
			req: dto.CreateApplicationRequest{
				Category:       models.CategoryCertificateCopy,
				DeliveryMethod: models.DeliveryCourier,
			},
			wantErr: true,
		},
		{
			name: "verification email",
			req: dto.CreateApplicationRequest{
				Category:         models.CategoryDocumentVerification,
				DeliveryMethod:   models.DeliveryEmail,
				InstitutionName:  "NYSC",
				InstitutionEmail: "verify@nysc.gov.ng",
			},
		},
		{
			name: "verification pickup denied",
			req: dto.CreateApplicationRequest{
				Category:         models.CategoryDocumentVerification,
				DeliveryMethod:   models.DeliveryPickup,
				InstitutionName:  "NYSC",
				InstitutionEmail: "verify@nysc.gov.ng",
			},
			wantErr: true,
		},
		{
			name: "unknown category",
			req: dto.CreateApplicationRequest{
				Category:       "DIPLOMA",
				DeliveryMethod: models.DeliveryEmail,
			},
			wantErr: true,
		},
		{
			name: "unknown delivery method",
			req: dto.CreateApplicationRequest{
				Category:       models.CategoryCertificateCopy,
				DeliveryMethod: "DRONE",
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSubmission(tc.req)
			if tc.wantErr {
				require.True(t, appErrors.Is(err, appErrors.ErrValidation))
				return
			}
			require.NoError(t, err)
		})
	}
}
