package dto

// InitializePaymentRequest starts a gateway payment for an application.
type InitializePaymentRequest struct {
	ApplicationID string `json:"applicationId"`
}

// InitializePaymentResponse returns the gateway reference and redirect URL.
type InitializePaymentResponse struct {
	ApplicationID    string `json:"applicationId"`
	TrackingCode     string `json:"trackingCode"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	PaymentReference string `json:"paymentReference"`
	PaymentURL       string `json:"paymentUrl"`
}

// VerifyPaymentRequest asks the gateway for the status of a payment reference.
type VerifyPaymentRequest struct {
	Reference string `json:"rrr"`
}

// PaymentWebhookPayload is the inbound gateway confirmation event.
type PaymentWebhookPayload struct {
	Reference   string `json:"rrr"`
	Status      string `json:"status"`
	Amount      string `json:"amount"`
	PaymentDate string `json:"paymentDate"`
	Channel     string `json:"channel"`
}

// WebhookAck is the neutral acknowledgement returned to the gateway. Unknown
// references are still acknowledged so the gateway does not retry forever.
type WebhookAck struct {
	Processed bool   `json:"processed"`
	Message   string `json:"message"`
}
