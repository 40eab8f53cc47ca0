package workers

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atelio-app/atelio_backend/models"
	"github.com/atelio-app/atelio_backend/queue"
	"github.com/atelio-app/atelio_backend/repositories"
	"github.com/atelio-app/atelio_backend/services"
	"github.com/atelio-app/atelio_backend/websocket"
)

// PaymentRateLimit caps payment job starts to what the upstream
// processor can absorb: 10 per rolling second.
var PaymentRateLimit = queue.RateLimit{Max: 10, Per: time.Second}

// PaymentWorker consumes the payment queue. Delivery may happen long
// after enqueue and more than once, so every job re-validates the
// commission against the latest snapshot before charging, and the final
// write is conditional on the status still being Pending_Approval.
type PaymentWorker struct {
	store   repositories.CommissionStore
	audits  repositories.AuditLogStore
	gateway services.PaymentGateway
	broker  queue.Broker
	hub     *websocket.Hub
}

// NewPaymentWorker creates a payment worker. hub may be nil when no
// push channel is wired.
func NewPaymentWorker(store repositories.CommissionStore, audits repositories.AuditLogStore, gateway services.PaymentGateway, broker queue.Broker, hub *websocket.Hub) *PaymentWorker {
	return &PaymentWorker{
		store:   store,
		audits:  audits,
		gateway: gateway,
		broker:  broker,
		hub:     hub,
	}
}

// Run blocks consuming the payment queue until ctx is cancelled.
func (w *PaymentWorker) Run(ctx context.Context, results chan<- queue.JobResult) error {
	return w.broker.Consume(ctx, models.PaymentQueue, w.Handle, queue.ConsumeOptions{
		RateLimit: &PaymentRateLimit,
		Results:   results,
	})
}

// Handle processes one payment job.
func (w *PaymentWorker) Handle(ctx context.Context, job queue.Job) error {
	var data models.PaymentJobData
	if err := job.Bind(&data); err != nil {
		return queue.Permanent(err)
	}

	commissionID, err := primitive.ObjectIDFromHex(data.CommissionID)
	if err != nil {
		return queue.Permanent(fmt.Errorf("invalid commission id %q: %w", data.CommissionID, err))
	}

	log.Printf("Processing payment job [%s] for commission %s", job.ID, data.CommissionID)

	commission, err := w.store.FindByID(ctx, commissionID)
	if err != nil {
		return fmt.Errorf("failed to load commission %s: %w", data.CommissionID, err)
	}
	if commission == nil {
		// The referenced entity is gone; retrying cannot help.
		return queue.Permanent(fmt.Errorf("commission %s not found", data.CommissionID))
	}

	// Re-validate against staleness: the commission may have been
	// declined or already paid between enqueue and now. No mutation and
	// no audit entry in either case.
	if commission.Status != models.StatusPendingApproval {
		return queue.Permanent(fmt.Errorf("commission %s is not in Pending_Approval status", data.CommissionID))
	}
	if commission.ArtistID.Hex() != data.ArtistID {
		return queue.Permanent(fmt.Errorf("artist mismatch for commission %s", data.CommissionID))
	}

	success, err := w.gateway.Charge(ctx, commission)
	if err != nil {
		return fmt.Errorf("payment gateway error for commission %s: %w", data.CommissionID, err)
	}

	action := services.ActionPaymentSucceed
	if !success {
		action = services.ActionPaymentFail
	}

	outcome, serviceErr := services.Transition(commission, action, services.Actor{})
	if serviceErr != nil {
		return queue.Permanent(serviceErr)
	}

	updated, err := w.store.ApplyTransition(ctx, commission.ID, models.StatusPendingApproval, repositories.CommissionChange{
		Status:        outcome.Status,
		PaymentStatus: outcome.PaymentStatus,
	})
	if err != nil {
		return fmt.Errorf("failed to persist payment outcome for commission %s: %w", data.CommissionID, err)
	}
	if updated == nil {
		// Status moved between our read and the conditional write; the
		// charge outcome belongs to a commission that no longer accepts
		// it. Leave the document alone.
		return queue.Permanent(fmt.Errorf("commission %s changed state during payment processing", data.CommissionID))
	}

	auditAction := models.AuditPaymentSuccess
	if !success {
		auditAction = models.AuditPaymentFailed
	}
	entry := &models.AuditLog{
		EntityType: "Commission",
		EntityID:   updated.ID,
		Action:     auditAction,
		ActorID:    updated.ClientID,
		Details: map[string]interface{}{
			"commissionId": data.CommissionID,
			"budget":       updated.Budget,
			"artistId":     updated.ArtistID.Hex(),
		},
	}
	if err := w.audits.Create(ctx, entry); err != nil {
		// The state write already committed; failing the job here would
		// retry a settled payment. Log and move on.
		log.Printf("Failed to write audit entry for commission %s: %v", data.CommissionID, err)
	}

	w.notifyClient(ctx, updated, success)

	if success {
		log.Printf("Payment successful for commission %s. Status updated to In_Progress.", data.CommissionID)
	} else {
		log.Printf("Payment failed for commission %s. Status remains Pending_Approval.", data.CommissionID)
	}
	return nil
}

// notifyClient tells the client how the payment settled, over the
// notification queue and, when connected, the websocket hub. Both are
// best-effort; the commission state is already committed.
func (w *PaymentWorker) notifyClient(ctx context.Context, commission *models.Commission, success bool) {
	subject := "Commission payment captured"
	body := fmt.Sprintf("Payment for your commission %s succeeded. The artist is now at work.", commission.ID.Hex())
	if !success {
		subject = "Commission payment failed"
		body = fmt.Sprintf("Payment for your commission %s failed. You can retry by asking the artist to accept again, or decline the commission.", commission.ID.Hex())
	}

	// Recipient resolution belongs to the identity layer upstream; the
	// queue carries an opaque address derived from the client id.
	message := models.NotificationJobData{
		To:      clientAddress(commission.ClientID),
		Subject: subject,
		Body:    body,
	}
	if _, err := w.broker.Enqueue(ctx, models.NotificationQueue, models.JobProcessPayment, message); err != nil {
		log.Printf("Failed to enqueue payment notification for commission %s: %v", commission.ID.Hex(), err)
	}

	if w.hub != nil {
		if err := w.hub.NotifyPaymentResult(commission.ClientID, commission, success); err != nil {
			log.Printf("Websocket push skipped for commission %s: %v", commission.ID.Hex(), err)
		}
	}
}

func clientAddress(clientID primitive.ObjectID) string {
	return fmt.Sprintf("user-%s@users.atelio.app", clientID.Hex())
}
