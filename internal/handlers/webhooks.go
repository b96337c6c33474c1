// Package handlers exposes the chat and payment webhooks. Both always answer
// 200; failures are only logged.
package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-telegram/bot/models"

	"github.com/BatmanBruc/paygate-bot/internal/contextkeys"
	"github.com/BatmanBruc/paygate-bot/internal/i18n"
	"github.com/BatmanBruc/paygate-bot/internal/middleware"
	"github.com/BatmanBruc/paygate-bot/internal/payments"
	"github.com/BatmanBruc/paygate-bot/internal/router"
)

const maxWebhookBodySize = 64 * 1024

const (
	statusOK      = "ok"
	statusIgnored = "ignored"
)

type EventRouter interface {
	HandleChat(ctx context.Context, ev router.ChatEvent) error
	HandlePayment(ctx context.Context, ev router.PaymentEvent) error
}

// CallbackAnswerer acknowledges inline button presses so the client stops
// showing a spinner.
type CallbackAnswerer interface {
	AnswerCallback(ctx context.Context, callbackID string) error
}

type Webhooks struct {
	router   EventRouter
	callback CallbackAnswerer
	logger   *slog.Logger
}

func NewWebhooks(r EventRouter, callback CallbackAnswerer, logger *slog.Logger) *Webhooks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhooks{router: r, callback: callback, logger: logger}
}

// Routes builds the HTTP router with the request middleware stack.
func (h *Webhooks) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestContext)
	r.Use(middleware.RequestLogger(h.logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.BodyLimit(maxWebhookBodySize))

	r.Get("/healthz", h.Health)
	r.Post("/webhook", h.Chat)
	r.Post("/nowpayments", h.Payment)
	return r
}

func (h *Webhooks) Health(w http.ResponseWriter, r *http.Request) {
	writeStatus(w, statusOK)
}

// Chat accepts a Telegram update. A message or a button press becomes chat
// text for the sender's session.
func (h *Webhooks) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := contextkeys.WithSource(r.Context(), contextkeys.SourceChat)

	var update models.Update
	if err := decode(r.Body, &update); err != nil {
		h.logger.WarnContext(ctx, "chat update not parsed", "error", err)
		writeStatus(w, statusIgnored)
		return
	}

	ev, callbackID, ok := chatEventFromUpdate(&update)
	if !ok {
		h.logger.DebugContext(ctx, "chat update without text ignored", "update_id", update.ID)
		writeStatus(w, statusIgnored)
		return
	}
	ctx = contextkeys.WithSessionID(ctx, ev.UserID)

	if callbackID != "" && h.callback != nil {
		if err := h.callback.AnswerCallback(ctx, callbackID); err != nil {
			h.logger.WarnContext(ctx, "answer callback failed", "error", err)
		}
	}

	if err := h.router.HandleChat(ctx, ev); err != nil {
		h.logger.ErrorContext(ctx, "chat event failed", "update_id", update.ID, "error", err)
	}
	writeStatus(w, statusOK)
}

type paymentNotification struct {
	InvoiceID     payments.FlexibleID `json:"invoice_id"`
	OrderID       string              `json:"order_id"`
	PaymentID     payments.FlexibleID `json:"payment_id"`
	PaymentStatus string              `json:"payment_status"`
}

// Payment accepts a NOWPayments IPN.
func (h *Webhooks) Payment(w http.ResponseWriter, r *http.Request) {
	ctx := contextkeys.WithSource(r.Context(), contextkeys.SourcePayment)

	var n paymentNotification
	if err := decode(r.Body, &n); err != nil {
		h.logger.WarnContext(ctx, "payment notification not parsed", "error", err)
		writeStatus(w, statusIgnored)
		return
	}
	ev := router.PaymentEvent{
		InvoiceID: string(n.InvoiceID),
		OrderID:   strings.TrimSpace(n.OrderID),
		Status:    strings.TrimSpace(n.PaymentStatus),
	}
	if ev.InvoiceID == "" && ev.OrderID == "" {
		h.logger.WarnContext(ctx, "payment notification without invoice", "payment_id", string(n.PaymentID))
		writeStatus(w, statusIgnored)
		return
	}

	if err := h.router.HandlePayment(ctx, ev); err != nil {
		h.logger.ErrorContext(ctx, "payment event failed",
			"invoice_id", ev.InvoiceID,
			"order_id", ev.OrderID,
			"error", err,
		)
	}
	writeStatus(w, statusOK)
}

func chatEventFromUpdate(update *models.Update) (router.ChatEvent, string, bool) {
	var (
		userID     int64
		chatID     int64
		text       string
		langCode   string
		callbackID string
	)

	switch {
	case update.Message != nil:
		chatID = update.Message.Chat.ID
		text = update.Message.Text
		userID = chatID
		if update.Message.From != nil {
			userID = update.Message.From.ID
			langCode = update.Message.From.LanguageCode
		}
	case update.CallbackQuery != nil:
		userID = update.CallbackQuery.From.ID
		langCode = update.CallbackQuery.From.LanguageCode
		chatID = getChatIDFromMaybeInaccessibleMessage(update.CallbackQuery.Message)
		text = update.CallbackQuery.Data
		callbackID = update.CallbackQuery.ID
	default:
		return router.ChatEvent{}, "", false
	}

	if userID == 0 || chatID == 0 || strings.TrimSpace(text) == "" {
		return router.ChatEvent{}, "", false
	}

	ev := router.ChatEvent{
		UserID: strconv.FormatInt(userID, 10),
		ChatID: chatID,
		Text:   text,
	}
	if langCode != "" {
		ev.Lang = string(i18n.FromLanguageCode(langCode))
	}
	return ev, callbackID, true
}

func getChatIDFromMaybeInaccessibleMessage(m models.MaybeInaccessibleMessage) int64 {
	if m.Message != nil {
		return m.Message.Chat.ID
	}
	if m.InaccessibleMessage != nil {
		return m.InaccessibleMessage.Chat.ID
	}
	return 0
}

func decode(body io.Reader, v any) error {
	return json.NewDecoder(body).Decode(v)
}

func writeStatus(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
