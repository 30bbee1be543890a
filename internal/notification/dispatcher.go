package notification

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Kind identifies the message template to render.
type Kind string

const (
	KindStepUpAlert            Kind = "step_up_alert"
	KindSettlementConfirmation Kind = "settlement_confirmation"
	KindCreditAlert            Kind = "credit_alert"
)

// Message is a single outbound notification.
type Message struct {
	Recipient string
	Kind      Kind
	Payload   map[string]string
}

// Dispatcher sends notifications to customers. Implementations may fail;
// callers must treat delivery as best-effort and never gate workflow
// decisions on the result.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

const dispatchTimeout = 10 * time.Second

// Dispatch sends msg on a background goroutine and logs failures. The
// settlement and checkpoint flows call this after their own state is
// committed, so a dead mail server can never block or roll back a
// transaction.
func Dispatch(d Dispatcher, msg Message) {
	if d == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := d.Send(ctx, msg); err != nil {
			zap.L().Warn("notification dispatch failed",
				zap.Error(err),
				zap.String("kind", string(msg.Kind)),
				zap.String("recipient", msg.Recipient),
			)
		}
	}()
}
