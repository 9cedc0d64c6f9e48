package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vault-capacity-alerts/internal/asset"
)

// ErrDeliveryRejected is returned when the channel answered but refused the message.
var ErrDeliveryRejected = errors.New("alerting: delivery rejected")

// Notification 封装一次容量告警。
type Notification struct {
	AlertID           int64
	UserID            int64
	Asset             asset.Asset
	AvailableCapacity *big.Int
	Threshold         *big.Int
	ObservedAt        time.Time
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// NotifierFunc adapts a plain function to Notifier.
type NotifierFunc func(ctx context.Context, notification Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, notification Notification) error {
	return f(ctx, notification)
}

// TelegramNotifier 通过 Telegram Bot API 推送消息，chat_id 即用户 id。
type TelegramNotifier struct {
	botToken string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
}

// Notify 调用 sendMessage API 推送 HTML 文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    note.UserID,
		Text:      RenderMessage(note),
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	var result sendMessageResponse
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&result)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: telegram status %d %s", ErrDeliveryRejected, resp.StatusCode, result.Description)
	}
	if decodeErr != nil {
		return fmt.Errorf("%w: decode telegram response: %v", ErrDeliveryRejected, decodeErr)
	}
	if !result.OK {
		return fmt.Errorf("%w: telegram ok=false %s", ErrDeliveryRejected, result.Description)
	}

	n.logger.Info().
		Int64("user_id", note.UserID).
		Int64("alert_id", note.AlertID).
		Str("asset", note.Asset.Symbol.String()).
		Msg("告警已发送 (Telegram)")
	return nil
}

// RenderMessage builds the HTML body sent to the user.
func RenderMessage(note Notification) string {
	sym := note.Asset.Symbol.String()
	capacity := asset.FormatHuman(note.AvailableCapacity, note.Asset)
	threshold := asset.FormatHuman(note.Threshold, note.Asset)

	var b strings.Builder
	fmt.Fprintf(&b, "🎉 <b>%s Vault Alert!</b>\n\n", sym)
	fmt.Fprintf(&b, "The vault now has <b>%s %s</b> available for deposit.\n\n", capacity, sym)
	fmt.Fprintf(&b, "You requested an alert when capacity reached %s %s.\n\n", threshold, sym)
	b.WriteString("Deposit now before it fills up!")
	return b.String()
}

// LogNotifier writes notifications to the log instead of a chat channel.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier returns a notifier for deployments without Telegram.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "alert_log").Logger()}
}

// Notify logs the alert and always succeeds.
func (n *LogNotifier) Notify(_ context.Context, note Notification) error {
	n.logger.Info().
		Int64("user_id", note.UserID).
		Int64("alert_id", note.AlertID).
		Str("asset", note.Asset.Symbol.String()).
		Str("available", asset.FormatHuman(note.AvailableCapacity, note.Asset)).
		Str("threshold", asset.FormatHuman(note.Threshold, note.Asset)).
		Time("observed_at", note.ObservedAt).
		Msg("capacity alert")
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = NotifierFunc(nil)
)
