package models

// Queue names
const (
	PaymentQueue      = "payment-queue"
	NotificationQueue = "notification-queue"
)

// Job names
const (
	JobProcessPayment        = "process-payment"
	JobCompleteCommission    = "complete-commission"
	JobDeclineCommission     = "decline-commission"
	JobRenegotiateCommission = "renegotiate-commission"
)

// PaymentJobData is the payload of a payment capture job. The worker
// re-validates both fields against the stored commission before
// touching anything.
type PaymentJobData struct {
	CommissionID string `json:"commissionId"`
	ArtistID     string `json:"artistId"`
}

// NotificationJobData is the payload of a notification job.
type NotificationJobData struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
