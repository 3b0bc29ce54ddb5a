package service

import "github.com/uniosun/tacdra-api/internal/models"

// roleTransitions is the authoritative map of who may move an application
// between which statuses. The admin table is enumerated on its own rather
// than derived from the per-role tables: it additionally covers rejection at
// deputy-registrar review, which no subordinate role holds.
var roleTransitions = map[models.UserRole]map[models.ApplicationStatus][]models.ApplicationStatus{
	models.RoleRegistrar: {
		models.StatusProcessing: {models.StatusRegistrarReview, models.StatusRejected},
	},
	models.RoleDeputyRegistrar: {
		models.StatusRegistrarReview: {models.StatusDeputyRegistrarReview, models.StatusRejected},
	},
	models.RoleExamsRecords: {
		models.StatusDeputyRegistrarReview: {models.StatusExamsRecordsProcessing},
		models.StatusExamsRecordsProcessing: {
			models.StatusReady,
			models.StatusAvailableForPickup,
			models.StatusDispatched,
			models.StatusCompleted,
		},
	},
	models.RoleAdmin: {
		models.StatusProcessing:            {models.StatusRegistrarReview, models.StatusRejected},
		models.StatusRegistrarReview:       {models.StatusDeputyRegistrarReview, models.StatusRejected},
		models.StatusDeputyRegistrarReview: {models.StatusExamsRecordsProcessing, models.StatusRejected},
		models.StatusExamsRecordsProcessing: {
			models.StatusReady,
			models.StatusAvailableForPickup,
			models.StatusDispatched,
			models.StatusCompleted,
		},
	},
}

// IsTransitionAllowed reports whether the actor role may move an application
// from one status to another. It is total and side-effect free.
func IsTransitionAllowed(from, to models.ApplicationStatus, role models.UserRole) bool {
	byStatus, ok := roleTransitions[role]
	if !ok {
		return false
	}
	targets, ok := byStatus[from]
	if !ok {
		return false
	}
	for _, target := range targets {
		if target == to {
			return true
		}
	}
	return false
}

// FinalStatusForDelivery maps a delivery method to the terminal status an
// application lands in when Exams & Records completes processing. The public
// tracking view depends on this mapping being exact.
func FinalStatusForDelivery(method models.DeliveryMethod) models.ApplicationStatus {
	switch method {
	case models.DeliveryPickup:
		return models.StatusAvailableForPickup
	case models.DeliveryCourier:
		return models.StatusDispatched
	default:
		return models.StatusCompleted
	}
}

// Cancellable reports whether the applicant may still withdraw the request.
// Once any review desk has the application, cancellation is closed.
func Cancellable(status models.ApplicationStatus) bool {
	return status == models.StatusPaymentPending || status == models.StatusProcessing
}

// ReviewQueueStatuses returns the source statuses a staff role reviews,
// used to scope the admin listing endpoint.
func ReviewQueueStatuses(role models.UserRole) []models.ApplicationStatus {
	switch role {
	case models.RoleRegistrar:
		return []models.ApplicationStatus{models.StatusProcessing}
	case models.RoleDeputyRegistrar:
		return []models.ApplicationStatus{models.StatusRegistrarReview}
	case models.RoleExamsRecords:
		return []models.ApplicationStatus{models.StatusDeputyRegistrarReview}
	case models.RoleAdmin:
		return []models.ApplicationStatus{
			models.StatusProcessing,
			models.StatusRegistrarReview,
			models.StatusDeputyRegistrarReview,
			models.StatusExamsRecordsProcessing,
		}
	default:
		return nil
	}
}

var statusDescriptions = map[models.ApplicationStatus]string{
	models.StatusPaymentPending:         "Waiting for payment confirmation",
	models.StatusProcessing:             "Payment confirmed, application in processing queue",
	models.StatusRegistrarReview:        "Under review by the Registrar",
	models.StatusDeputyRegistrarReview:  "Under review by Deputy Registrar (Academic Affairs)",
	models.StatusExamsRecordsProcessing: "Being processed by Exams & Records Unit",
	models.StatusReady:                  "Document is ready",
	models.StatusAvailableForPickup:     "Document is available for pickup at the Registry",
	models.StatusDispatched:             "Document has been dispatched via courier",
	models.StatusCompleted:              "Application completed successfully",
	models.StatusRejected:               "Application has been rejected",
}

// StatusDescription returns the human-readable explanation shown on the
// public tracking page.
func StatusDescription(status models.ApplicationStatus) string {
	if desc, ok := statusDescriptions[status]; ok {
		return desc
	}
	return "Status unknown"
}
