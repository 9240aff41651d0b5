package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const telegramAPIBase = "https://api.telegram.org"

// Telegram forwards import notifications to the operator's chat
type Telegram struct {
	logger   *logrus.Logger
	client   *http.Client
	baseURL  string
	botToken string
	chatID   string
}

func NewTelegram(botToken, chatID string, logger *logrus.Logger) *Telegram {
	return &Telegram{
		logger:   logger,
		client:   &http.Client{Timeout: 10 * time.Second},
		baseURL:  telegramAPIBase,
		botToken: botToken,
		chatID:   chatID,
	}
}

// WithBaseURL points the client at another Bot API host
func (t *Telegram) WithBaseURL(baseURL string) *Telegram {
	t.baseURL = baseURL
	return t
}

// Handle formats n and sends it to the configured chat
func (t *Telegram) Handle(n Notification) error {
	return t.SendMessage(FormatTelegram(n))
}

// FormatTelegram renders a notification as Telegram HTML
func FormatTelegram(n Notification) string {
	icon := "ℹ️"
	switch n.Level {
	case LevelSuccess:
		icon = "✅"
	case LevelFailure:
		icon = "⚠️"
	}

	message := fmt.Sprintf("%s <b>%s</b>", icon, html.EscapeString(n.Title))
	if n.Message != "" {
		message += "\n" + html.EscapeString(n.Message)
	}
	if n.Listing != "" {
		message += fmt.Sprintf("\n🏷️ %s", html.EscapeString(n.Listing))
	}
	return message
}

// SendMessage sends a message to the configured Telegram chat
func (t *Telegram) SendMessage(message string) error {
	if t.botToken == "" {
		return errors.New("Telegram bot token is not configured")
	}
	if t.chatID == "" {
		return errors.New("Telegram chat ID is not configured")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	payload := map[string]interface{}{
		"chat_id":    t.chatID,
		"text":       message,
		"parse_mode": "HTML",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal message payload: %w", err)
	}

	resp, err := t.client.Post(url, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send message to Telegram API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return errors.New("invalid bot token - please check your token from @BotFather")
		case http.StatusBadRequest:
			return fmt.Errorf("invalid chat ID or message format: %s", string(body))
		case http.StatusForbidden:
			return errors.New("bot was blocked by the user or chat")
		case http.StatusNotFound:
			return errors.New("bot not found - please check your token from @BotFather")
		default:
			return fmt.Errorf("Telegram API error (status %d): %s", resp.StatusCode, string(body))
		}
	}

	t.logger.WithField("chat_id", t.chatID).Debug("Sent Telegram notification")
	return nil
}
