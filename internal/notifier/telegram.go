package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Sink is the outbound alert channel. The correlation handle returned
// by Send/Reply is opaque to callers: it is stored on the activity and
// replayed into Update/Reply, never interpreted.
type Sink interface {
	Send(ctx context.Context, text string) (handle string, err error)
	Update(ctx context.Context, handle, text string) error
	Reply(ctx context.Context, handle, text string) (string, error)
}

// TelegramNotifier sends messages via the Telegram Bot API. The
// correlation handle is the Telegram message ID.
type TelegramNotifier struct {
	BotToken string
	ChatID   string
	Client   *http.Client
}

// NewTelegramNotifier creates a notifier with optional proxy support.
func NewTelegramNotifier(botToken, chatID, proxyURL string) *TelegramNotifier {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &TelegramNotifier{
		BotToken: botToken,
		ChatID:   chatID,
		Client: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
	}
}

type sendResponse struct {
	OK     bool `json:"ok"`
	Result struct {
		MessageID int64 `json:"message_id"`
	} `json:"result"`
}

// Send sends a message and returns its message ID as the handle.
func (t *TelegramNotifier) Send(ctx context.Context, text string) (string, error) {
	payload := map[string]any{
		"chat_id":    t.ChatID,
		"text":       text,
		"parse_mode": "HTML",
	}
	return t.post(ctx, "sendMessage", payload)
}

// Update edits a previously sent message in place.
func (t *TelegramNotifier) Update(ctx context.Context, handle, text string) error {
	messageID, err := strconv.ParseInt(handle, 10, 64)
	if err != nil {
		return fmt.Errorf("bad handle %q: %w", handle, err)
	}
	payload := map[string]any{
		"chat_id":    t.ChatID,
		"message_id": messageID,
		"text":       text,
		"parse_mode": "HTML",
	}
	_, err = t.post(ctx, "editMessageText", payload)
	return err
}

// Reply sends a message threaded under a previous one and returns the
// new message's handle.
func (t *TelegramNotifier) Reply(ctx context.Context, handle, text string) (string, error) {
	messageID, err := strconv.ParseInt(handle, 10, 64)
	if err != nil {
		return "", fmt.Errorf("bad handle %q: %w", handle, err)
	}
	payload := map[string]any{
		"chat_id":             t.ChatID,
		"text":                text,
		"parse_mode":          "HTML",
		"reply_to_message_id": messageID,
		// Fall back to a plain message if the original was deleted.
		"allow_sending_without_reply": true,
	}
	return t.post(ctx, "sendMessage", payload)
}

func (t *TelegramNotifier) post(ctx context.Context, method string, payload map[string]any) (string, error) {
	apiURL := fmt.Sprintf("https://api.telegram.org/bot%s/%s", t.BotToken, method)
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("telegram API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var result sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if result.Result.MessageID == 0 {
		return "", nil
	}
	return strconv.FormatInt(result.Result.MessageID, 10), nil
}

// SendWithRetry sends a message with exponential backoff retry.
func (t *TelegramNotifier) SendWithRetry(ctx context.Context, text string, maxRetries int) (string, error) {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		handle, err := t.Send(ctx, text)
		if err == nil {
			return handle, nil
		}
		lastErr = err
		backoff := time.Duration(1<<uint(i)) * time.Second
		log.Printf("[WARN] Telegram send failed (attempt %d/%d): %v, retrying in %v", i+1, maxRetries+1, err, backoff)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
	}
	return "", fmt.Errorf("all %d retries exhausted: %w", maxRetries+1, lastErr)
}
