package services

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/atelio-app/atelio_backend/models"
)

// PaymentGateway captures a commission payment. A false result is a
// declined payment, a modeled business outcome; an error is an
// infrastructure failure.
type PaymentGateway interface {
	Charge(ctx context.Context, commission *models.Commission) (bool, error)
}

// SimulatedPaymentGateway stands in for a real payment processor. It
// succeeds with a fixed probability after a bounded network-like delay
// and never hangs.
type SimulatedPaymentGateway struct {
	successRate float64
	minDelay    time.Duration
	maxDelay    time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedPaymentGateway creates a gateway with a 70% success rate
// and a 1-3 second simulated call.
func NewSimulatedPaymentGateway() *SimulatedPaymentGateway {
	return &SimulatedPaymentGateway{
		successRate: 0.7,
		minDelay:    time.Second,
		maxDelay:    3 * time.Second,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Charge simulates a payment capture attempt.
func (g *SimulatedPaymentGateway) Charge(ctx context.Context, commission *models.Commission) (bool, error) {
	g.mu.Lock()
	delay := g.minDelay + time.Duration(g.rng.Int63n(int64(g.maxDelay-g.minDelay)))
	success := g.rng.Float64() < g.successRate
	g.mu.Unlock()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(delay):
	}

	return success, nil
}
