package workers

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/atelio-app/atelio_backend/models"
	"github.com/atelio-app/atelio_backend/queue"
	"github.com/atelio-app/atelio_backend/repositories"
)

// fakeCommissionStore is an in-memory CommissionStore with the same
// conditional-update semantics as the Mongo repository.
type fakeCommissionStore struct {
	mu          sync.Mutex
	commissions map[primitive.ObjectID]*models.Commission
}

func newFakeCommissionStore() *fakeCommissionStore {
	return &fakeCommissionStore{commissions: make(map[primitive.ObjectID]*models.Commission)}
}

func (s *fakeCommissionStore) put(c *models.Commission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commissions[c.ID] = c
}

func (s *fakeCommissionStore) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commissions[id]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (s *fakeCommissionStore) FindDuplicate(ctx context.Context, clientID, artistID primitive.ObjectID, description string) (*models.Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.commissions {
		if c.ClientID == clientID && c.ArtistID == artistID && c.Description == description && c.Status != models.StatusCancelled {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeCommissionStore) FindByClient(ctx context.Context, clientID primitive.ObjectID) ([]models.Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Commission{}
	for _, c := range s.commissions {
		if c.ClientID == clientID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeCommissionStore) FindByArtist(ctx context.Context, artistID primitive.ObjectID) ([]models.Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Commission{}
	for _, c := range s.commissions {
		if c.ArtistID == artistID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *fakeCommissionStore) FindAll(ctx context.Context) ([]models.Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Commission{}
	for _, c := range s.commissions {
		out = append(out, *c)
	}
	return out, nil
}

func (s *fakeCommissionStore) Create(ctx context.Context, commission *models.Commission) error {
	commission.ID = primitive.NewObjectID()
	commission.Status = models.StatusPendingApproval
	commission.PaymentStatus = models.PaymentPending
	commission.CreatedAt = time.Now()
	commission.UpdatedAt = time.Now()
	s.put(commission)
	return nil
}

func (s *fakeCommissionStore) ApplyTransition(ctx context.Context, id primitive.ObjectID, requiredStatus string, change repositories.CommissionChange) (*models.Commission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.commissions[id]
	if !ok || c.Status != requiredStatus {
		return nil, nil
	}
	if change.Status != nil {
		c.Status = *change.Status
	}
	if change.PaymentStatus != nil {
		c.PaymentStatus = *change.PaymentStatus
	}
	if change.AppendRenegotiation != nil {
		c.Renegotiations = append(c.Renegotiations, *change.AppendRenegotiation)
	}
	if change.ResolveRenegotiation {
		now := time.Now()
		for i := range c.Renegotiations {
			if !c.Renegotiations[i].Resolved {
				c.Renegotiations[i].Resolved = true
				c.Renegotiations[i].ResolvedAt = &now
			}
		}
	}
	c.UpdatedAt = time.Now()
	copied := *c
	return &copied, nil
}

func (s *fakeCommissionStore) Delete(ctx context.Context, id primitive.ObjectID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.commissions[id]; !ok {
		return false, nil
	}
	delete(s.commissions, id)
	return true, nil
}

type fakeAuditStore struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (s *fakeAuditStore) Create(ctx context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *fakeAuditStore) all() []models.AuditLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.AuditLog, len(s.entries))
	copy(out, s.entries)
	return out
}

// scriptedGateway returns a fixed outcome instantly.
type scriptedGateway struct {
	success bool
	err     error
}

func (g *scriptedGateway) Charge(ctx context.Context, commission *models.Commission) (bool, error) {
	return g.success, g.err
}

func pendingCommission() *models.Commission {
	now := time.Now()
	return &models.Commission{
		ID:             primitive.NewObjectID(),
		ClientID:       primitive.NewObjectID(),
		ArtistID:       primitive.NewObjectID(),
		Description:    "Portrait in oil",
		Budget:         500,
		DueDate:        now.Add(30 * 24 * time.Hour),
		Status:         models.StatusPendingApproval,
		PaymentStatus:  models.PaymentPending,
		Renegotiations: []models.Renegotiation{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func paymentJob(t *testing.T, commission *models.Commission) queue.Job {
	t.Helper()
	payload, err := json.Marshal(models.PaymentJobData{
		CommissionID: commission.ID.Hex(),
		ArtistID:     commission.ArtistID.Hex(),
	})
	require.NoError(t, err)
	return queue.Job{
		ID:         "job-1",
		Name:       models.JobProcessPayment,
		Payload:    payload,
		EnqueuedAt: time.Now(),
		Attempts:   1,
	}
}

func newWorker(store *fakeCommissionStore, audits *fakeAuditStore, gateway *scriptedGateway, broker queue.Broker) *PaymentWorker {
	return NewPaymentWorker(store, audits, gateway, broker, nil)
}

func TestPaymentSuccessUpdatesStatusAndAudits(t *testing.T) {
	store := newFakeCommissionStore()
	audits := &fakeAuditStore{}
	broker := queue.NewMemoryBroker()
	commission := pendingCommission()
	store.put(commission)

	worker := newWorker(store, audits, &scriptedGateway{success: true}, broker)
	err := worker.Handle(context.Background(), paymentJob(t, commission))
	require.NoError(t, err)

	updated, _ := store.FindByID(context.Background(), commission.ID)
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Equal(t, models.PaymentPaid, updated.PaymentStatus)

	entries := audits.all()
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditPaymentSuccess, entries[0].Action)
	assert.Equal(t, commission.ID, entries[0].EntityID)
	assert.Equal(t, commission.ClientID, entries[0].ActorID)

	// the client is told the outcome
	job, ok := broker.TryDequeue(models.NotificationQueue)
	require.True(t, ok)
	var message models.NotificationJobData
	require.NoError(t, job.Bind(&message))
	assert.Contains(t, message.Subject, "captured")
}

func TestPaymentFailureKeepsCommissionAlive(t *testing.T) {
	store := newFakeCommissionStore()
	audits := &fakeAuditStore{}
	broker := queue.NewMemoryBroker()
	commission := pendingCommission()
	store.put(commission)

	worker := newWorker(store, audits, &scriptedGateway{success: false}, broker)
	err := worker.Handle(context.Background(), paymentJob(t, commission))
	require.NoError(t, err)

	updated, _ := store.FindByID(context.Background(), commission.ID)
	assert.Equal(t, models.StatusPendingApproval, updated.Status, "failed payment must not destroy the commission")
	assert.Equal(t, models.PaymentFailed, updated.PaymentStatus)

	entries := audits.all()
	require.Len(t, entries, 1)
	assert.Equal(t, models.AuditPaymentFailed, entries[0].Action)

	// the commission can still be declined afterwards
	cancelled := models.StatusCancelled
	after, err2 := store.ApplyTransition(context.Background(), commission.ID, models.StatusPendingApproval, repositories.CommissionChange{Status: &cancelled})
	require.NoError(t, err2)
	require.NotNil(t, after)
	assert.Equal(t, models.StatusCancelled, after.Status)
}

func TestStaleJobForDeclinedCommissionIsRejectedWithoutMutation(t *testing.T) {
	store := newFakeCommissionStore()
	audits := &fakeAuditStore{}
	broker := queue.NewMemoryBroker()
	commission := pendingCommission()
	commission.Status = models.StatusCancelled
	store.put(commission)

	worker := newWorker(store, audits, &scriptedGateway{success: true}, broker)
	err := worker.Handle(context.Background(), paymentJob(t, commission))

	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err), "stale jobs must not be retried")

	unchanged, _ := store.FindByID(context.Background(), commission.ID)
	assert.Equal(t, models.StatusCancelled, unchanged.Status)
	assert.Equal(t, models.PaymentPending, unchanged.PaymentStatus)
	assert.Empty(t, audits.all(), "no audit entry without a payment outcome")
	_, enqueued := broker.TryDequeue(models.NotificationQueue)
	assert.False(t, enqueued)
}

// Redelivering a job after it already transitioned the commission must
// be a no-op rather than a double charge.
func TestRedeliveredJobIsIdempotent(t *testing.T) {
	store := newFakeCommissionStore()
	audits := &fakeAuditStore{}
	broker := queue.NewMemoryBroker()
	commission := pendingCommission()
	store.put(commission)

	worker := newWorker(store, audits, &scriptedGateway{success: true}, broker)
	job := paymentJob(t, commission)

	require.NoError(t, worker.Handle(context.Background(), job))

	err := worker.Handle(context.Background(), job)
	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))

	assert.Len(t, audits.all(), 1, "second delivery must not add an audit entry")
	updated, _ := store.FindByID(context.Background(), commission.ID)
	assert.Equal(t, models.StatusInProgress, updated.Status)
}

func TestMissingCommissionFailsPermanently(t *testing.T) {
	store := newFakeCommissionStore()
	audits := &fakeAuditStore{}
	broker := queue.NewMemoryBroker()
	commission := pendingCommission() // never stored

	worker := newWorker(store, audits, &scriptedGateway{success: true}, broker)
	err := worker.Handle(context.Background(), paymentJob(t, commission))

	require.Error(t, err)
	assert.True(t, queue.IsPermanent(err))
	assert.Empty(t, audits.all())
}

func TestArtistMismatchRejectsJob(t *testing.T) {
	store := newFakeCommissionStore()
	audits := &fakeAuditStore{}
	broker := queue.NewMemoryBroker()
	commission := pendingCommission()
	store.put(commission)

	payload, err := json.Marshal(models.PaymentJobData{
		CommissionID: commission.ID.Hex(),
		ArtistID:     primitive.NewObjectID().Hex(), // not the assigned artist
	})
	require.NoError(t, err)

	worker := newWorker(store, audits, &scriptedGateway{success: true}, broker)
	handleErr := worker.Handle(context.Background(), queue.Job{ID: "job-2", Name: models.JobProcessPayment, Payload: payload, Attempts: 1})

	require.Error(t, handleErr)
	assert.True(t, queue.IsPermanent(handleErr))

	unchanged, _ := store.FindByID(context.Background(), commission.ID)
	assert.Equal(t, models.StatusPendingApproval, unchanged.Status)
	assert.Empty(t, audits.all())
}

func TestGatewayErrorIsRetryable(t *testing.T) {
	store := newFakeCommissionStore()
	audits := &fakeAuditStore{}
	broker := queue.NewMemoryBroker()
	commission := pendingCommission()
	store.put(commission)

	worker := newWorker(store, audits, &scriptedGateway{err: context.DeadlineExceeded}, broker)
	err := worker.Handle(context.Background(), paymentJob(t, commission))

	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err), "infrastructure failures go back to the broker's retry policy")

	unchanged, _ := store.FindByID(context.Background(), commission.ID)
	assert.Equal(t, models.StatusPendingApproval, unchanged.Status)
	assert.Equal(t, models.PaymentPending, unchanged.PaymentStatus)
}
