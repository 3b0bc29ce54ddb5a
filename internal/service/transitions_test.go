package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/uniosun/tacdra-api/internal/models"
)

func TestTransitionAuthority(t *testing.T) {
	cases := []struct {
		role    models.UserRole
		from    models.ApplicationStatus
		to      models.ApplicationStatus
		allowed bool
	}{
		{models.RoleRegistrar, models.StatusProcessing, models.StatusRegistrarReview, true},
		{models.RoleRegistrar, models.StatusProcessing, models.StatusRejected, true},
		{models.RoleRegistrar, models.StatusRegistrarReview, models.StatusDeputyRegistrarReview, false},
		{models.RoleRegistrar, models.StatusProcessing, models.StatusCompleted, false},

		{models.RoleDeputyRegistrar, models.StatusRegistrarReview, models.StatusDeputyRegistrarReview, true},
		{models.RoleDeputyRegistrar, models.StatusRegistrarReview, models.StatusRejected, true},
		{models.RoleDeputyRegistrar, models.StatusProcessing, models.StatusRegistrarReview, false},

		{models.RoleExamsRecords, models.StatusDeputyRegistrarReview, models.StatusExamsRecordsProcessing, true},
		{models.RoleExamsRecords, models.StatusDeputyRegistrarReview, models.StatusRejected, false},
		{models.RoleExamsRecords, models.StatusExamsRecordsProcessing, models.StatusReady, true},
		{models.RoleExamsRecords, models.StatusExamsRecordsProcessing, models.StatusAvailableForPickup, true},
		{models.RoleExamsRecords, models.StatusExamsRecordsProcessing, models.StatusDispatched, true},
		{models.RoleExamsRecords, models.StatusExamsRecordsProcessing, models.StatusCompleted, true},

		{models.RoleAdmin, models.StatusProcessing, models.StatusRegistrarReview, true},
		{models.RoleAdmin, models.StatusRegistrarReview, models.StatusRejected, true},
		{models.RoleAdmin, models.StatusDeputyRegistrarReview, models.StatusRejected, true},
		{models.RoleAdmin, models.StatusDeputyRegistrarReview, models.StatusExamsRecordsProcessing, true},
		{models.RoleAdmin, models.StatusExamsRecordsProcessing, models.StatusDispatched, true},
		{models.RoleAdmin, models.StatusPaymentPending, models.StatusProcessing, false},

		{models.RoleStudent, models.StatusProcessing, models.StatusRegistrarReview, false},
		{models.RoleStudent, models.StatusExamsRecordsProcessing, models.StatusCompleted, false},
	}

	for _, tc := range cases {
		got := IsTransitionAllowed(tc.from, tc.to, tc.role)
		require.Equal(t, tc.allowed, got, "%s: %s -> %s", tc.role, tc.from, tc.to)
	}
}

func TestTransitionAuthorityNeverLeavesTerminalStates(t *testing.T) {
	terminal := []models.ApplicationStatus{
		models.StatusReady,
		models.StatusAvailableForPickup,
		models.StatusDispatched,
		models.StatusCompleted,
		models.StatusRejected,
	}
	roles := []models.UserRole{
		models.RoleRegistrar,
		models.RoleDeputyRegistrar,
		models.RoleExamsRecords,
		models.RoleAdmin,
	}
	targets := []models.ApplicationStatus{
		models.StatusPaymentPending,
		models.StatusProcessing,
		models.StatusRegistrarReview,
		models.StatusDeputyRegistrarReview,
		models.StatusExamsRecordsProcessing,
		models.StatusCompleted,
	}
	for _, from := range terminal {
		for _, role := range roles {
			for _, to := range targets {
				require.False(t, IsTransitionAllowed(from, to, role), "%s: %s -> %s", role, from, to)
			}
		}
	}
}

func TestFinalStatusForDelivery(t *testing.T) {
	require.Equal(t, models.StatusAvailableForPickup, FinalStatusForDelivery(models.DeliveryPickup))
	require.Equal(t, models.StatusDispatched, FinalStatusForDelivery(models.DeliveryCourier))
	require.Equal(t, models.StatusCompleted, FinalStatusForDelivery(models.DeliveryEmail))
}

func TestCancellableWindow(t *testing.T) {
	require.True(t, Cancellable(models.StatusPaymentPending))
	require.True(t, Cancellable(models.StatusProcessing))
	require.False(t, Cancellable(models.StatusRegistrarReview))
	require.False(t, Cancellable(models.StatusDeputyRegistrarReview))
	require.False(t, Cancellable(models.StatusExamsRecordsProcessing))
	require.False(t, Cancellable(models.StatusRejected))
	require.False(t, Cancellable(models.StatusCompleted))
}

func TestReviewQueueStatuses(t *testing.T) {
	require.Equal(t, []models.ApplicationStatus{models.StatusProcessing}, ReviewQueueStatuses(models.RoleRegistrar))
	require.Equal(t, []models.ApplicationStatus{models.StatusRegistrarReview}, ReviewQueueStatuses(models.RoleDeputyRegistrar))
	require.Equal(t, []models.ApplicationStatus{models.StatusDeputyRegistrarReview}, ReviewQueueStatuses(models.RoleExamsRecords))
	require.Len(t, ReviewQueueStatuses(models.RoleAdmin), 4)
	require.Nil(t, ReviewQueueStatuses(models.RoleStudent))
}

func TestStatusDescriptionFallback(t *testing.T) {
	require.Equal(t, "Document is available for pickup at the Registry", StatusDescription(models.StatusAvailableForPickup))
	require.Equal(t, "Status unknown", StatusDescription("SOMETHING_ELSE"))
}
