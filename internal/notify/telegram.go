// Warden - Behavioral Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/warden

package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/warden/internal/config"
)

const (
	telegramBaseURL   = "https://api.telegram.org"
	telegramMaxLength = 4096
)

// Severity prefixes used in Telegram alerts.
var telegramPrefixes = map[string]string{
	SeverityInfo:     "ℹ️",
	SeverityWarning:  "⚠️",
	SeverityHigh:     "🔴",
	SeverityCritical: "🚨",
}

// TelegramChannel posts alerts through the Telegram Bot API.
type TelegramChannel struct {
	client  *http.Client
	baseURL string
	token   string
	chatID  string
	guard   *guard
}

// NewTelegramChannel validates cfg and returns a channel posting to cfg.ChatID.
func NewTelegramChannel(cfg config.TelegramConfig) (*TelegramChannel, error) {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil, fmt.Errorf("%w: telegram bot token and chat ID are required", ErrInvalidConfig)
	}
	parts := strings.Split(cfg.BotToken, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return nil, fmt.Errorf("%w: invalid telegram bot token format", ErrInvalidConfig)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = telegramBaseURL
	}
	return &TelegramChannel{
		client:  &http.Client{Timeout: 10 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   cfg.BotToken,
		chatID:  cfg.ChatID,
		guard:   newGuard("telegram", cfg.RateLimit),
	}, nil
}

// Name returns ChannelTelegram.
func (c *TelegramChannel) Name() string { return ChannelTelegram }

type telegramSendMessageRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode,omitempty"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview,omitempty"`
}

type telegramAPIResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

// TelegramError is a non-OK Bot API response.
type TelegramError struct {
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *TelegramError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram API error %d: %s (retry after %s)", e.Code, e.Description, e.RetryAfter)
	}
	return fmt.Sprintf("telegram API error %d: %s", e.Code, e.Description)
}

// Send posts msg as an HTML-formatted message.
func (c *TelegramChannel) Send(ctx context.Context, msg Message) error {
	return c.guard.do(ctx, func() error {
		return c.post(ctx, FormatTelegram(msg))
	})
}

func (c *TelegramChannel) post(ctx context.Context, text string) error {
	payload, err := json.Marshal(telegramSendMessageRequest{
		ChatID:                c.chatID,
		Text:                  text,
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	})
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return fmt.Errorf("read telegram response: %w", err)
	}
	var apiResp telegramAPIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return fmt.Errorf("parse telegram response (status %d): %w", resp.StatusCode, err)
	}
	if apiResp.OK {
		return nil
	}

	tgErr := &TelegramError{Code: apiResp.ErrorCode, Description: apiResp.Description}
	if tgErr.Code == 0 {
		tgErr.Code = resp.StatusCode
	}
	if apiResp.Parameters != nil && apiResp.Parameters.RetryAfter > 0 {
		tgErr.RetryAfter = time.Duration(apiResp.Parameters.RetryAfter) * time.Second
	}
	return tgErr
}

// FormatTelegram renders msg as Telegram HTML with a severity prefix.
func FormatTelegram(msg Message) string {
	prefix, ok := telegramPrefixes[msg.Severity]
	if !ok {
		prefix = telegramPrefixes[SeverityInfo]
	}
	text := fmt.Sprintf("%s <b>%s</b>\n\n%s", prefix, EscapeHTML(msg.Title), EscapeHTML(msg.Body))
	return TruncateContent(text, telegramMaxLength)
}
