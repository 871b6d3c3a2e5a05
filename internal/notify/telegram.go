// Package notify delivers operator notifications through the Telegram Bot
// API. Delivery is fire-and-forget: failures are logged, never escalated.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Telegram sends messages and files to a fixed chat.
type Telegram struct {
	token   string
	chatID  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// TelegramOption configures a Telegram notifier.
type TelegramOption func(*Telegram)

// WithBaseURL overrides the API endpoint (tests).
func WithBaseURL(u string) TelegramOption {
	return func(t *Telegram) { t.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) TelegramOption {
	return func(t *Telegram) { t.client = c }
}

// WithTelegramLogger sets a custom logger.
func WithTelegramLogger(l *slog.Logger) TelegramOption {
	return func(t *Telegram) { t.logger = l }
}

// NewTelegram creates a notifier for the given bot token and chat.
func NewTelegram(token, chatID string, opts ...TelegramOption) *Telegram {
	t := &Telegram{
		token:   token,
		chatID:  chatID,
		baseURL: "https://api.telegram.org",
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// SendMessage posts a text message to the chat.
func (t *Telegram) SendMessage(ctx context.Context, text string) error {
	form := url.Values{}
	form.Set("chat_id", t.chatID)
	form.Set("text", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.method("sendMessage"), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("notify: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return t.do(req)
}

// SendFile uploads a document to the chat.
func (t *Telegram) SendFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("notify: open %s: %w", path, err)
	}
	defer f.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if err := w.WriteField("chat_id", t.chatID); err != nil {
		return fmt.Errorf("notify: write field: %w", err)
	}
	part, err := w.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("notify: create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("notify: copy file: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("notify: close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		t.method("sendDocument"), &body)
	if err != nil {
		return fmt.Errorf("notify: new request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return t.do(req)
}

// TrySendMessage is SendMessage with the error swallowed into a log line.
func (t *Telegram) TrySendMessage(ctx context.Context, text string) {
	if err := t.SendMessage(ctx, text); err != nil {
		t.logger.Error("notify: send message failed", "error", err)
	}
}

// TrySendFile is SendFile with the error swallowed into a log line.
func (t *Telegram) TrySendFile(ctx context.Context, path string) {
	if err := t.SendFile(ctx, path); err != nil {
		t.logger.Error("notify: send file failed", "path", path, "error", err)
	}
}

func (t *Telegram) method(name string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.baseURL, t.token, name)
}

func (t *Telegram) do(req *http.Request) error {
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: %s: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: %s: status %d: %s", req.URL.Path, resp.StatusCode, b)
	}
	return nil
}
