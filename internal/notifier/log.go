package notifier

import (
	"context"

	log "github.com/sirupsen/logrus"

	"DipSentinel/internal/model"
)

// LogNotifier writes messages to the log instead of sending them. Used when no bot token is set.
type LogNotifier struct{}

func (LogNotifier) Deliver(ctx context.Context, intent model.NotificationIntent) error {
	log.WithFields(log.Fields{
		"account":    intent.AccountID,
		"instrument": intent.Instrument,
		"class":      intent.Class,
		"intent":     intent.ID,
	}).Info(FormatIntent(intent))
	return nil
}

func (LogNotifier) SendText(ctx context.Context, account model.AccountID, text string) error {
	log.WithField("account", account).Info(text)
	return nil
}
