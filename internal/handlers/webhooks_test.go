package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BatmanBruc/paygate-bot/internal/router"
)

type recordingRouter struct {
	chats    []router.ChatEvent
	payments []router.PaymentEvent
	err      error
}

func (r *recordingRouter) HandleChat(ctx context.Context, ev router.ChatEvent) error {
	r.chats = append(r.chats, ev)
	return r.err
}

func (r *recordingRouter) HandlePayment(ctx context.Context, ev router.PaymentEvent) error {
	r.payments = append(r.payments, ev)
	return r.err
}

type recordingAnswerer struct {
	ids []string
}

func (a *recordingAnswerer) AnswerCallback(ctx context.Context, id string) error {
	a.ids = append(a.ids, id)
	return nil
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp["status"]
}

func TestChatWebhook_Message(t *testing.T) {
	rr := &recordingRouter{}
	h := NewWebhooks(rr, nil, nil).Routes()

	code, status := do(t, h, http.MethodPost, "/webhook", `{
		"update_id": 10,
		"message": {
			"message_id": 1,
			"date": 1700000000,
			"chat": {"id": 555, "type": "private"},
			"from": {"id": 777, "is_bot": false, "first_name": "A", "language_code": "ru-RU"},
			"text": "/start"
		}
	}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", status)
	require.Len(t, rr.chats, 1)
	assert.Equal(t, router.ChatEvent{UserID: "777", ChatID: 555, Text: "/start", Lang: "ru"}, rr.chats[0])
}

func TestChatWebhook_CallbackQuery(t *testing.T) {
	rr := &recordingRouter{}
	answers := &recordingAnswerer{}
	h := NewWebhooks(rr, answers, nil).Routes()

	code, status := do(t, h, http.MethodPost, "/webhook", `{
		"update_id": 11,
		"callback_query": {
			"id": "cb-1",
			"from": {"id": 777, "is_bot": false, "first_name": "A"},
			"message": {"message_id": 2, "date": 1700000000, "chat": {"id": 555, "type": "private"}},
			"chat_instance": "x",
			"data": "2"
		}
	}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", status)
	require.Len(t, rr.chats, 1)
	assert.Equal(t, "2", rr.chats[0].Text)
	assert.Equal(t, int64(555), rr.chats[0].ChatID)
	assert.Equal(t, []string{"cb-1"}, answers.ids)
}

func TestChatWebhook_Ignored(t *testing.T) {
	bodies := map[string]string{
		"not json":     `{`,
		"no message":   `{"update_id": 12}`,
		"no text":      `{"update_id": 13, "message": {"message_id": 1, "date": 1, "chat": {"id": 5, "type": "private"}, "from": {"id": 7, "is_bot": false, "first_name": "A"}}}`,
		"blank text":   `{"update_id": 14, "message": {"message_id": 1, "date": 1, "chat": {"id": 5, "type": "private"}, "text": "   "}}`,
		"missing chat": `{"update_id": 15, "message": {"message_id": 1, "date": 1, "chat": {"id": 0, "type": "private"}, "text": "hi"}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			rr := &recordingRouter{}
			code, status := do(t, NewWebhooks(rr, nil, nil).Routes(), http.MethodPost, "/webhook", body)
			assert.Equal(t, http.StatusOK, code)
			assert.Equal(t, "ignored", status)
			assert.Empty(t, rr.chats)
		})
	}
}

func TestChatWebhook_RouterErrorStillOK(t *testing.T) {
	rr := &recordingRouter{err: errors.New("store down")}
	code, status := do(t, NewWebhooks(rr, nil, nil).Routes(), http.MethodPost, "/webhook",
		`{"update_id": 16, "message": {"message_id": 1, "date": 1, "chat": {"id": 5, "type": "private"}, "text": "hi"}}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", status)
	require.Len(t, rr.chats, 1)
	assert.Equal(t, "5", rr.chats[0].UserID)
}

func TestPaymentWebhook(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status string
		want   *router.PaymentEvent
	}{
		{
			name:   "numeric invoice id",
			body:   `{"payment_id": 5077125051, "invoice_id": 4522625843, "payment_status": "finished", "order_id": "ord-1"}`,
			status: "ok",
			want:   &router.PaymentEvent{InvoiceID: "4522625843", OrderID: "ord-1", Status: "finished"},
		},
		{
			name:   "string invoice id",
			body:   `{"invoice_id": "inv-1", "payment_status": "waiting"}`,
			status: "ok",
			want:   &router.PaymentEvent{InvoiceID: "inv-1", Status: "waiting"},
		},
		{
			name:   "order id only",
			body:   `{"order_id": "ord-2", "payment_status": "finished"}`,
			status: "ok",
			want:   &router.PaymentEvent{OrderID: "ord-2", Status: "finished"},
		},
		{name: "no id", body: `{"payment_status": "finished"}`, status: "ignored"},
		{name: "not json", body: `finished`, status: "ignored"},
		{name: "bad id type", body: `{"invoice_id": {"x": 1}}`, status: "ignored"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := &recordingRouter{}
			code, status := do(t, NewWebhooks(rr, nil, nil).Routes(), http.MethodPost, "/nowpayments", tt.body)
			assert.Equal(t, http.StatusOK, code)
			assert.Equal(t, tt.status, status)
			if tt.want == nil {
				assert.Empty(t, rr.payments)
				return
			}
			require.Len(t, rr.payments, 1)
			assert.Equal(t, *tt.want, rr.payments[0])
		})
	}
}

func TestHealth(t *testing.T) {
	code, status := do(t, NewWebhooks(&recordingRouter{}, nil, nil).Routes(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", status)
}

func TestOversizedBodyIgnored(t *testing.T) {
	rr := &recordingRouter{}
	body := `{"invoice_id": "` + strings.Repeat("x", maxWebhookBodySize) + `", "payment_status": "finished"}`
	code, status := do(t, NewWebhooks(rr, nil, nil).Routes(), http.MethodPost, "/nowpayments", body)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ignored", status)
	assert.Empty(t, rr.payments)
}
