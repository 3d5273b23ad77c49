package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"dispatch-bot/internal/domain"
)

// TokenSource yields the bot token. *paramstore.LazyToken satisfies it.
type TokenSource interface {
	Get(ctx context.Context) (string, error)
}

// APIError is a Bot API response with ok=false or a non-2xx status.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s failed (%d): %s", e.Method, e.StatusCode, e.Description)
}

// Client is a minimal Bot API client.
type Client struct {
	http   *resty.Client
	tokens TokenSource
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/"); baseURL != "" {
			c.http.SetBaseURL(baseURL)
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// New creates a Client. The token is resolved through tokens on every call, so
// a caching TokenSource is expected.
func New(tokens TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("telegram: token source must not be nil")
	}
	client := resty.New()
	client.SetBaseURL("https://api.telegram.org")
	client.SetTimeout(60 * time.Second)
	c := &Client{http: client, tokens: tokens}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) methodURL(ctx context.Context, method string) (string, error) {
	token, err := c.tokens.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("telegram: resolve token: %w", err)
	}
	return "/bot" + token + "/" + method, nil
}

func call[T any](ctx context.Context, c *Client, method string, prepare func(*resty.Request)) (T, error) {
	var zero T
	url, err := c.methodURL(ctx, method)
	if err != nil {
		return zero, err
	}
	var out apiResponse[T]
	req := c.http.R().SetContext(ctx)
	prepare(req)
	resp, err := req.Post(url)
	if err != nil {
		return zero, fmt.Errorf("telegram: %s: %w", method, err)
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		if resp.IsError() {
			return zero, &APIError{Method: method, StatusCode: resp.StatusCode(), Description: resp.String()}
		}
		return zero, fmt.Errorf("telegram: %s: decode response: %w", method, err)
	}
	if !out.OK || resp.IsError() {
		return zero, &APIError{Method: method, StatusCode: resp.StatusCode(), Description: out.Description}
	}
	return out.Result, nil
}

type sendMessageRequest struct {
	ChatID      int64        `json:"chat_id"`
	Text        string       `json:"text"`
	ParseMode   string       `json:"parse_mode,omitempty"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

// SendMessage posts a text reply with optional inline choices.
func (c *Client) SendMessage(ctx context.Context, chatID int64, r domain.Reply) error {
	body := sendMessageRequest{ChatID: chatID, Text: r.Text, ReplyMarkup: keyboard(r.Choices)}
	if r.Markdown {
		body.ParseMode = "Markdown"
	}
	_, err := call[json.RawMessage](ctx, c, "sendMessage", func(req *resty.Request) {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	})
	return err
}

// SendDocument uploads a file with the reply text as its caption.
func (c *Client) SendDocument(ctx context.Context, chatID int64, r domain.Reply) error {
	if r.File == nil {
		return errors.New("telegram: sendDocument without file")
	}
	form := map[string]string{
		"chat_id": strconv.FormatInt(chatID, 10),
		"caption": r.Text,
	}
	if kb := keyboard(r.Choices); kb != nil {
		raw, err := json.Marshal(kb)
		if err != nil {
			return fmt.Errorf("telegram: encode keyboard: %w", err)
		}
		form["reply_markup"] = string(raw)
	}
	_, err := call[json.RawMessage](ctx, c, "sendDocument", func(req *resty.Request) {
		req.SetFormData(form).SetFileReader("document", r.File.Name, bytes.NewReader(r.File.Data))
	})
	return err
}

// Deliver sends one reply using the method its shape requires.
func (c *Client) Deliver(ctx context.Context, chatID int64, r domain.Reply) error {
	if r.File != nil {
		return c.SendDocument(ctx, chatID, r)
	}
	if strings.TrimSpace(r.Text) == "" {
		return nil
	}
	return c.SendMessage(ctx, chatID, r)
}

// Notify delivers r to the chat a session id names.
func (c *Client) Notify(ctx context.Context, sessionID string, r domain.Reply) error {
	chatID, err := strconv.ParseInt(sessionID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: session %q is not a chat id: %w", sessionID, err)
	}
	return c.Deliver(ctx, chatID, r)
}

// AnswerCallback acknowledges a button press so the client stops its spinner.
func (c *Client) AnswerCallback(ctx context.Context, callbackID string) error {
	if callbackID == "" {
		return nil
	}
	_, err := call[bool](ctx, c, "answerCallbackQuery", func(req *resty.Request) {
		req.SetHeader("Content-Type", "application/json").
			SetBody(map[string]string{"callback_query_id": callbackID})
	})
	return err
}

// DownloadFile resolves a file id and fetches its content.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	info, err := call[fileInfo](ctx, c, "getFile", func(req *resty.Request) {
		req.SetHeader("Content-Type", "application/json").
			SetBody(map[string]string{"file_id": fileID})
	})
	if err != nil {
		return nil, err
	}
	if info.FilePath == "" {
		return nil, fmt.Errorf("telegram: getFile %s returned no path", fileID)
	}
	token, err := c.tokens.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("telegram: resolve token: %w", err)
	}
	resp, err := c.http.R().SetContext(ctx).Get("/file/bot" + token + "/" + info.FilePath)
	if err != nil {
		return nil, fmt.Errorf("telegram: download %s: %w", fileID, err)
	}
	if resp.IsError() {
		return nil, &APIError{Method: "file", StatusCode: resp.StatusCode(), Description: resp.Status()}
	}
	return resp.Body(), nil
}

// GetUpdates long-polls for updates after offset.
func (c *Client) GetUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]Update, error) {
	body := map[string]any{
		"offset":          offset,
		"timeout":         int(timeout.Seconds()),
		"allowed_updates": []string{"message", "callback_query"},
	}
	return call[[]Update](ctx, c, "getUpdates", func(req *resty.Request) {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	})
}
