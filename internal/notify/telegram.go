package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lohithk/tallysync/internal/domain"
)

const telegramAPIBase = "https://api.telegram.org"

// TelegramNotifier posts run failure summaries to a chat via the bot API.
type TelegramNotifier struct {
	baseURL  string
	botToken string
	chatID   string
	http     *http.Client
}

func NewTelegramNotifier(botToken, chatID string) *TelegramNotifier {
	return &TelegramNotifier{
		baseURL:  telegramAPIBase,
		botToken: botToken,
		chatID:   chatID,
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *TelegramNotifier) Notify(ctx context.Context, run domain.SyncRun) error {
	if n.botToken == "" || n.chatID == "" {
		return nil
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", Summary(run))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("telegram API returned %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
