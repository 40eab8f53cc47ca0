package workers

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelio-app/atelio_backend/models"
	"github.com/atelio-app/atelio_backend/queue"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []models.NotificationJobData
	err  error
}

func (s *recordingSender) Send(ctx context.Context, message models.NotificationJobData) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, message)
	return nil
}

func notificationJob(t *testing.T, data models.NotificationJobData) queue.Job {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	return queue.Job{ID: "notif-1", Name: models.JobCompleteCommission, Payload: payload, Attempts: 1}
}

func TestNotificationDelivered(t *testing.T) {
	sender := &recordingSender{}
	worker := NewNotificationWorker(sender, queue.NewMemoryBroker())

	job := notificationJob(t, models.NotificationJobData{
		To:      "user-1@users.atelio.app",
		Subject: "Commission completed",
		Body:    "Your commission is done.",
	})
	require.NoError(t, worker.Handle(context.Background(), job))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "Commission completed", sender.sent[0].Subject)
}

// A failed delivery is terminal for the job; there is no retry and no
// compensating action against the commission.
func TestNotificationFailureIsTerminal(t *testing.T) {
	sender := &recordingSender{err: errors.New("relay down")}
	worker := NewNotificationWorker(sender, queue.NewMemoryBroker())

	job := notificationJob(t, models.NotificationJobData{To: "user-1@users.atelio.app"})
	err := worker.Handle(context.Background(), job)

	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
}

func TestCorruptPayloadIsPermanent(t *testing.T) {
	sender := &recordingSender{}
	worker := NewNotificationWorker(sender, queue.NewMemoryBroker())

	err := worker.Handle(context.Background(), queue.Job{ID: "bad", Name: "x", Payload: []byte("{"), Attempts: 1})

	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
	assert.Empty(t, sender.sent)
}
