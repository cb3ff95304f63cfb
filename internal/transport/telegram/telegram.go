package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sethvargo/go-retry"

	"media-relay/internal/dispatch"
	"media-relay/internal/logging"
	"media-relay/internal/metrics"
)

// ErrInvalidRecipient is returned for recipients that are neither a numeric
// chat id nor an @channel name.
var ErrInvalidRecipient = errors.New("telegram: invalid recipient")

// Sender is the subset of *tgbotapi.BotAPI the transport uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Config controls retry behavior for transient send failures.
type Config struct {
	MaxRetries  uint64
	BaseBackoff time.Duration
	// MaxRetryAfter caps how long a server-requested retry_after is honored.
	MaxRetryAfter time.Duration
}

// DefaultConfig returns the retry settings used in production.
func DefaultConfig() Config {
	return Config{
		MaxRetries:    3,
		BaseBackoff:   500 * time.Millisecond,
		MaxRetryAfter: 30 * time.Second,
	}
}

// Transport delivers dispatch payloads through the Telegram bot API.
type Transport struct {
	bot    Sender
	config Config
}

// New authenticates against the bot API with token.
func New(token string, config Config) (*Transport, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, errors.New("telegram: bot token is required")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	logging.Info("Telegram transport authorized as @%s", bot.Self.UserName)
	return NewWithSender(bot, config), nil
}

// NewWithSender wraps an existing Sender.
func NewWithSender(bot Sender, config Config) *Transport {
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = DefaultConfig().BaseBackoff
	}
	return &Transport{bot: bot, config: config}
}

// Send implements dispatch.Transport.
func (t *Transport) Send(ctx context.Context, recipient string, p *dispatch.Payload) (*dispatch.Receipt, error) {
	if p == nil {
		return nil, errors.New("telegram: nil payload")
	}
	target, err := parseRecipient(recipient)
	if err != nil {
		return nil, err
	}

	var sent tgbotapi.Message
	attempt := 0
	backoff := retry.WithMaxRetries(t.config.MaxRetries, retry.NewExponential(t.config.BaseBackoff))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			metrics.TransportRetries.Inc()
		}
		// Rebuilt per attempt so a file released mid-retry falls back to bytes.
		m, sendErr := t.bot.Send(buildMessage(target, p))
		if sendErr == nil {
			sent = m
			return nil
		}
		if !isTransient(sendErr) {
			return sendErr
		}
		logging.Warn("Telegram send of %s to %s failed (attempt %d): %v", p.Kind, recipient, attempt, sendErr)
		if wait := retryAfter(sendErr, t.config.MaxRetryAfter); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		return retry.RetryableError(sendErr)
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: send %s: %w", p.Kind, err)
	}

	chatID := recipient
	if sent.Chat != nil {
		chatID = strconv.FormatInt(sent.Chat.ID, 10)
	}
	return &dispatch.Receipt{
		MessageID: strconv.Itoa(sent.MessageID),
		ChatID:    chatID,
		SentAt:    time.Now(),
	}, nil
}

// chatTarget is a parsed recipient: a numeric chat id or an @channel name.
type chatTarget struct {
	chatID  int64
	channel string
}

func parseRecipient(recipient string) (chatTarget, error) {
	recipient = strings.TrimSpace(recipient)
	if strings.HasPrefix(recipient, "@") {
		if len(recipient) == 1 {
			return chatTarget{}, fmt.Errorf("%w: %q", ErrInvalidRecipient, recipient)
		}
		return chatTarget{channel: recipient}, nil
	}
	id, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return chatTarget{}, fmt.Errorf("%w: %q", ErrInvalidRecipient, recipient)
	}
	return chatTarget{chatID: id}, nil
}

func buildMessage(target chatTarget, p *dispatch.Payload) tgbotapi.Chattable {
	chatID, channel := target.chatID, target.channel
	file := fileData(p)
	switch p.Kind {
	case dispatch.KindAudioPTT:
		cfg := tgbotapi.NewVoice(chatID, file)
		cfg.ChannelUsername = channel
		cfg.Caption = p.Caption
		return cfg
	case dispatch.KindAudioFile:
		cfg := tgbotapi.NewAudio(chatID, file)
		cfg.ChannelUsername = channel
		cfg.Caption = p.Caption
		return cfg
	case dispatch.KindVideo:
		cfg := tgbotapi.NewVideo(chatID, file)
		cfg.ChannelUsername = channel
		cfg.Caption = p.Caption
		cfg.SupportsStreaming = true
		return cfg
	case dispatch.KindImage:
		cfg := tgbotapi.NewPhoto(chatID, file)
		cfg.ChannelUsername = channel
		cfg.Caption = p.Caption
		return cfg
	default:
		cfg := tgbotapi.NewDocument(chatID, file)
		cfg.ChannelUsername = channel
		cfg.Caption = p.Caption
		return cfg
	}
}

// fileData prefers the on-disk artifact so large videos are streamed. Once
// the artifact is gone the in-memory copy is sent instead.
func fileData(p *dispatch.Payload) tgbotapi.RequestFileData {
	if p.Path != "" {
		if _, err := os.Stat(p.Path); err == nil || len(p.Data) == 0 {
			return tgbotapi.FilePath(p.Path)
		}
		logging.Debug("Artifact %s is gone, sending %d bytes from memory", p.Path, len(p.Data))
	}
	return tgbotapi.FileBytes{Name: p.Filename, Bytes: p.Data}
}

func isTransient(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError
	}
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	// Anything else that is not an API response is a network failure.
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func retryAfter(err error, limit time.Duration) time.Duration {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) || apiErr.RetryAfter <= 0 {
		return 0
	}
	wait := time.Duration(apiErr.RetryAfter) * time.Second
	if limit > 0 && wait > limit {
		wait = limit
	}
	return wait
}
