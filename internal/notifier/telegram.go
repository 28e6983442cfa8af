package notifier

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"DipSentinel/internal/model"
)

// TelegramNotifier sends messages via the Telegram Bot API.
type TelegramNotifier struct {
	Bot           *tgbotapi.BotAPI
	MaxTries      uint
	RetryInterval time.Duration
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, proxyURL string) (*TelegramNotifier, error) {
	return NewTelegramNotifierWithEndpoint(botToken, tgbotapi.APIEndpoint, proxyURL)
}

// NewTelegramNotifierWithEndpoint is NewTelegramNotifier against a custom API endpoint.
func NewTelegramNotifierWithEndpoint(botToken, endpoint, proxyURL string) (*TelegramNotifier, error) {
	transport := &http.Transport{}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, errors.Wrap(err, "parse proxy url")
		}
		transport.Proxy = http.ProxyURL(u)
	}
	client := &http.Client{Timeout: 30 * time.Second, Transport: transport}

	bot, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, client)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}
	log.WithField("bot", bot.Self.UserName).Info("telegram bot authorised")
	return &TelegramNotifier{Bot: bot, MaxTries: 3, RetryInterval: time.Second}, nil
}

// Deliver renders the intent and sends it to the intent's account in a single attempt.
// The cycle logs a failure and moves on; it is not retried within the cycle.
func (t *TelegramNotifier) Deliver(ctx context.Context, intent model.NotificationIntent) error {
	return t.send(ctx, intent.AccountID, FormatIntent(intent), 1)
}

// SendText sends an HTML message, retrying transient failures with exponential backoff.
func (t *TelegramNotifier) SendText(ctx context.Context, account model.AccountID, text string) error {
	return t.send(ctx, account, text, t.maxTries())
}

func (t *TelegramNotifier) send(ctx context.Context, account model.AccountID, text string, tries uint) error {
	msg := tgbotapi.NewMessage(int64(account), text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = t.RetryInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (tgbotapi.Message, error) {
		attempt++
		sent, err := t.Bot.Send(msg)
		if err == nil {
			return sent, nil
		}
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code >= 400 && apiErr.Code < 500 && apiErr.Code != http.StatusTooManyRequests {
			return sent, backoff.Permanent(err)
		}
		log.WithError(err).WithFields(log.Fields{"account": account, "attempt": attempt}).Warn("telegram send failed")
		return sent, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(tries))
	if err != nil {
		return errors.Wrapf(err, "could not send message to %d", account)
	}
	return nil
}

func (t *TelegramNotifier) maxTries() uint {
	if t.MaxTries == 0 {
		return 1
	}
	return t.MaxTries
}
