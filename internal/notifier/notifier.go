package notifier

import (
	"context"

	"DipSentinel/internal/model"
)

// Notifier delivers rendered messages to an account.
type Notifier interface {
	Deliver(ctx context.Context, intent model.NotificationIntent) error
	SendText(ctx context.Context, account model.AccountID, text string) error
}
