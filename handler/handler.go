package handler

import (
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"dispatch-bot/internal/domain"
	"dispatch-bot/internal/integrations/telegram"
	"dispatch-bot/internal/usecase"
)

const (
	correlationHeader = "X-Correlation-Id"
	secretHeader      = "X-Telegram-Bot-Api-Secret-Token"
)

type Engine interface {
	Handle(ctx context.Context, ev usecase.Event) []domain.Reply
}

// Messenger sends replies back to the chat. *telegram.Client satisfies it.
type Messenger interface {
	Deliver(ctx context.Context, chatID int64, r domain.Reply) error
	AnswerCallback(ctx context.Context, callbackID string) error
}

// SecretSource yields the webhook secret Telegram echoes on every call.
type SecretSource interface {
	Get(ctx context.Context) (string, error)
}

type Handler struct {
	engine    Engine
	messenger Messenger
	secret    SecretSource
	logger    *slog.Logger
}

type Option func(*Handler)

// WithSecret rejects webhook calls that do not carry the secret token.
func WithSecret(s SecretSource) Option {
	return func(h *Handler) {
		h.secret = s
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

type okResponse struct {
	OK bool `json:"ok"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewHandler(engine Engine, messenger Messenger, opts ...Option) (*Handler, error) {
	if engine == nil {
		return nil, errors.New("handler: engine must not be nil")
	}
	if messenger == nil {
		return nil, errors.New("handler: messenger must not be nil")
	}
	h := &Handler{engine: engine, messenger: messenger, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle processes one webhook update. Anything other than a bad secret is
// acknowledged with 200 so Telegram does not redeliver the update.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	correlationID := header(req.Headers, correlationHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = usecase.WithCorrelationID(ctx, correlationID)
	logger := h.logger.With(slog.String("correlation_id", correlationID))

	if h.secret != nil {
		want, err := h.secret.Get(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "webhook secret unavailable", "err", err)
			return jsonResponse(http.StatusInternalServerError, correlationID, errorResponse{Error: string(usecase.ErrorInternal)}), nil
		}
		got := header(req.Headers, secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			logger.WarnContext(ctx, "webhook secret mismatch")
			return jsonResponse(http.StatusUnauthorized, correlationID, errorResponse{Error: "UNAUTHORIZED"}), nil
		}
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			logger.WarnContext(ctx, "undecodable webhook body", "err", err)
			return jsonResponse(http.StatusOK, correlationID, okResponse{OK: true}), nil
		}
		body = decoded
	}
	var update telegram.Update
	if err := json.Unmarshal(body, &update); err != nil {
		logger.WarnContext(ctx, "invalid update payload", "err", err)
		return jsonResponse(http.StatusOK, correlationID, okResponse{OK: true}), nil
	}
	ev, ok := update.Event()
	if !ok {
		logger.DebugContext(ctx, "update ignored", "update_id", update.UpdateID)
		return jsonResponse(http.StatusOK, correlationID, okResponse{OK: true}), nil
	}

	if ev.CallbackID != "" {
		if err := h.messenger.AnswerCallback(ctx, ev.CallbackID); err != nil {
			logger.WarnContext(ctx, "answer callback failed", "err", err)
		}
	}

	replies := h.engine.Handle(ctx, usecase.Event{SessionID: ev.SessionID(), UserID: ev.UserID, Input: ev.Input})
	for i, r := range replies {
		if err := h.messenger.Deliver(ctx, ev.ChatID, r); err != nil {
			logger.ErrorContext(ctx, "reply delivery failed", "chat", ev.ChatID, "reply", i, "err", err)
		}
	}
	return jsonResponse(http.StatusOK, correlationID, okResponse{OK: true}), nil
}

// header looks a header up case-insensitively; API Gateway preserves client casing.
func header(headers map[string]string, name string) string {
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func jsonResponse(status int, correlationID string, body any) events.APIGatewayProxyResponse {
	raw, err := json.Marshal(body)
	if err != nil {
		raw = []byte(`{"error":"INTERNAL_ERROR"}`)
		status = http.StatusInternalServerError
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: correlationID,
		},
		Body: string(raw),
	}
}
