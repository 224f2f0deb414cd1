package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alerts-manage-api/internal/config"
)

// ChatSender delivers a message to a Telegram chat.
type ChatSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

type sender struct {
	botToken   string
	httpClient *http.Client
	baseURL    string
}

// NewSender creates a Bot API client. Returns an error when no bot token is
// configured so the caller can degrade gracefully.
func NewSender(cfg *config.Config) (ChatSender, error) {
	if cfg.TelegramBotToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}
	return &sender{
		botToken:   cfg.TelegramBotToken,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://api.telegram.org",
	}, nil
}

func (s *sender) SendMessage(ctx context.Context, chatID int64, text string) error {
	form := url.Values{}
	form.Set("chat_id", strconv.FormatInt(chatID, 10))
	form.Set("text", text)

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", s.baseURL, s.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram sendMessage: %w", err)
	}
	defer resp.Body.Close()

	var body struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("telegram response: %w", err)
	}
	if !body.OK {
		return fmt.Errorf("telegram sendMessage failed: %s", body.Description)
	}
	return nil
}
