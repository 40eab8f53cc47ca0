package workers

import (
	"context"
	"log"

	"github.com/atelio-app/atelio_backend/models"
	"github.com/atelio-app/atelio_backend/queue"
	"github.com/atelio-app/atelio_backend/services"
)

// NotificationWorker consumes the notification queue and delivers
// messages through an EmailSender. Notifications are a best-effort side
// channel: the originating operation committed before the job was
// enqueued, so a delivery failure never touches commission state.
type NotificationWorker struct {
	sender services.EmailSender
	broker queue.Broker
}

// NewNotificationWorker creates a notification worker.
func NewNotificationWorker(sender services.EmailSender, broker queue.Broker) *NotificationWorker {
	return &NotificationWorker{sender: sender, broker: broker}
}

// Run blocks consuming the notification queue until ctx is cancelled.
func (w *NotificationWorker) Run(ctx context.Context, results chan<- queue.JobResult) error {
	return w.broker.Consume(ctx, models.NotificationQueue, w.Handle, queue.ConsumeOptions{
		Results: results,
	})
}

// Handle delivers one notification job.
func (w *NotificationWorker) Handle(ctx context.Context, job queue.Job) error {
	var data models.NotificationJobData
	if err := job.Bind(&data); err != nil {
		return queue.Permanent(err)
	}

	log.Printf("Processing notification job [%s] (%s) for %s", job.ID, job.Name, data.To)

	if err := w.sender.Send(ctx, data); err != nil {
		// Terminal for this job; there is no compensating action.
		return queue.Permanent(err)
	}

	log.Printf("Notification sent successfully to %s", data.To)
	return nil
}
