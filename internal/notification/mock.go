package notification

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// MockDispatcher simulates an outbound mail relay for local development and
// testing. It records every accepted message and fails based on FailureRate.
type MockDispatcher struct {
	// FailureRate is the probability of a send failing (0.0 to 1.0).
	FailureRate float64

	mu   sync.Mutex
	sent []Message
}

func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

// Send simulates relay latency, then either records the message or fails.
func (d *MockDispatcher) Send(ctx context.Context, msg Message) error {
	select {
	case <-time.After(time.Duration(rand.Intn(50)) * time.Millisecond):
	case <-ctx.Done():
		return fmt.Errorf("notification send canceled: %w", ctx.Err())
	}

	if rand.Float64() < d.FailureRate {
		return fmt.Errorf("mail relay temporarily unavailable")
	}

	d.mu.Lock()
	d.sent = append(d.sent, msg)
	d.mu.Unlock()

	zap.L().Debug("notification sent",
		zap.String("kind", string(msg.Kind)),
		zap.String("recipient", msg.Recipient),
	)
	return nil
}

// Sent returns a copy of the messages accepted so far.
func (d *MockDispatcher) Sent() []Message {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Message, len(d.sent))
	copy(out, d.sent)
	return out
}
