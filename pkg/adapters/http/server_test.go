package http

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/wabuilder"
	"github.com/aretw0/wabuilder/pkg/adapters/memory"
	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testFlow() *domain.Flow {
	return &domain.Flow{
		Version: "2.0",
		Chatbots: []domain.Chatbot{{
			Name: "Support",
			Templates: []domain.Template{
				{
					ID: "welcome", Name: "Welcome", Type: domain.TypeText, Message: "Hi!",
					Routes:   []domain.Route{{Pattern: "menu", ConnectedTo: "menu"}},
					Settings: domain.Settings{IsStart: true},
				},
				{ID: "menu", Name: "Menu", Type: domain.TypeText, Message: "1. Billing"},
			},
		}},
	}
}

func newTestServer(t *testing.T, opts ...Option) (http.Handler, *wabuilder.Builder, *memory.ConfigStore) {
	t.Helper()
	store, err := memory.NewFromFlow("support", testFlow())
	require.NoError(t, err)
	b, err := wabuilder.New(wabuilder.WithConfigStore(store))
	require.NoError(t, err)
	h, err := NewHandler(b, opts...)
	require.NoError(t, err)
	return h, b, store
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestLoadSpec(t *testing.T) {
	doc, err := LoadSpec(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, doc.Paths.Find("/api/configs/{name}/flow"))
}

func TestHealthAndInfo(t *testing.T) {
	h, _, _ := newTestServer(t)

	w := do(h, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(h, "GET", "/info", "")
	require.Equal(t, http.StatusOK, w.Code)
	var info map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, "1.0.0", info["api_version"])
	assert.Equal(t, strings.TrimSpace(wabuilder.Version), info["version"])
}

func TestWebhookURL(t *testing.T) {
	h, _, _ := newTestServer(t)

	req := httptest.NewRequest("GET", "/api/webhook-url", nil)
	req.Host = "bots.example.com"
	req.Header.Set("X-Forwarded-Proto", "https")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"url":"https://bots.example.com/api/webhook"}`, w.Body.String())
}

func TestConfigCRUD(t *testing.T) {
	h, b, _ := newTestServer(t)
	ctx := context.Background()

	w := do(h, "PUT", "/api/configs/live", `{"env":"live","access_token":"tok","app_secret":"sec"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"access_token":"********"`)

	// Redacted secrets sent back keep the stored values.
	w = do(h, "PUT", "/api/configs/live", `{"env":"live","access_token":"********","app_secret":"********","phone_id":"42"}`)
	require.Equal(t, http.StatusOK, w.Code)
	cfg, err := b.GetConfig(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.AccessToken)
	assert.Equal(t, "sec", cfg.AppSecret)
	assert.Equal(t, "42", cfg.PhoneID)

	w = do(h, "GET", "/api/configs", "")
	assert.JSONEq(t, `{"configs":["live","support"]}`, w.Body.String())

	w = do(h, "DELETE", "/api/configs/live", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(h, "GET", "/api/configs/live", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(h, "PUT", "/api/configs/bad", `{"flow_json":"{not json"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestFlow_GetAndSave(t *testing.T) {
	h, _, _ := newTestServer(t)

	w := do(h, "GET", "/api/configs/support/flow", "")
	require.Equal(t, http.StatusOK, w.Code)
	var got flowResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "Support", got.Chatbot)
	assert.Len(t, got.Templates, 2)
	assert.Len(t, got.Canvas.Nodes, 2)

	w = do(h, "PUT", "/api/configs/support/flow", `{"templates":[
		{"id":"welcome","name":"Welcome","type":"text","message":"Hello again","settings":{"isStart":true}},
		{"id":"bye","name":"Bye","type":"text","message":"Bye"}
	]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var diff domain.ChatbotDiff
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &diff))
	assert.Equal(t, []string{"bye"}, diff.Added)
	assert.Equal(t, []string{"menu"}, diff.Removed)
	assert.Equal(t, []string{"welcome"}, diff.Changed)

	w = do(h, "GET", "/api/configs/missing/flow", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExportImport(t *testing.T) {
	h, b, _ := newTestServer(t)

	w := do(h, "GET", "/api/configs/support/export?format=yaml", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `attachment; filename="Support.yaml"`, w.Header().Get("Content-Disposition"))
	exported := w.Body.String()
	assert.Contains(t, exported, "welcome")

	w = do(h, "GET", "/api/configs/support/export?format=xml", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(h, "POST", "/api/configs/support/import?chatbot=Copy&filename=Support.yaml", exported)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	bot, _, err := b.Chatbot(context.Background(), "support", "Copy")
	require.NoError(t, err)
	assert.Len(t, bot.Templates, 2)

	w = do(h, "POST", "/api/configs/support/import?filename=x.json", "   ")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGraphValidateResolve(t *testing.T) {
	h, _, _ := newTestServer(t)

	w := do(h, "GET", "/api/configs/support/graph", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `welcome -- "menu" --> menu`)

	w = do(h, "GET", "/api/configs/support/validate", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"chatbot":"Support","valid":true,"issues":[]}`, w.Body.String())

	w = do(h, "POST", "/api/configs/support/resolve", `{"phone":"15550001","text":"menu"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res wabuilder.Resolution
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	require.NotNil(t, res.Template)
	assert.Equal(t, "welcome", res.Template.ID, "a new contact starts at the start template")
}

func TestWebhook(t *testing.T) {
	h, b, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, b.UpdateConfig(ctx, &domain.BotConfig{Name: "support", FlowJSON: mustFlow(t, b), WebhookToken: "tok"}))

	w := do(h, "GET", "/webhook/support?hub.mode=subscribe&hub.verify_token=tok&hub.challenge=99", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "99", w.Body.String())

	w = do(h, "GET", "/webhook/support?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=99", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	payload := `{"entry":[{"changes":[{"value":{"messages":[
		{"from":"15550001","id":"wamid.1","type":"text","text":{"body":"hello"}}]}}]}]}`
	w = do(h, "POST", "/webhook/support", payload)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"processed":1}`, w.Body.String())

	history, err := b.History(ctx, "15550001", 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "welcome", history[1].TemplateID)

	w = do(h, "POST", "/webhook/support", "{")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWebhook_Background(t *testing.T) {
	h, b, _ := newTestServer(t)
	ctx := context.Background()
	cfg, err := b.GetConfig(ctx, "support")
	require.NoError(t, err)
	cfg.ProcessInBackground = true
	require.NoError(t, b.UpdateConfig(ctx, cfg))

	payload := `{"entry":[{"changes":[{"value":{"messages":[
		{"from":"15550002","id":"wamid.2","type":"text","text":{"body":"hello"}}]}}]}]}`
	w := do(h, "POST", "/webhook/support", payload)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"accepted"}`, w.Body.String())

	assert.Eventually(t, func() bool {
		history, err := b.History(ctx, "15550002", 0)
		return err == nil && len(history) == 2
	}, time.Second, 10*time.Millisecond)
}

func TestSubscribeEvents(t *testing.T) {
	store, err := memory.NewFromFlow("support", testFlow())
	require.NoError(t, err)
	b, err := wabuilder.New(wabuilder.WithConfigStore(store))
	require.NoError(t, err)
	h, err := NewHandler(b)
	require.NoError(t, err)

	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/api/configs/support/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, lines.Scan())
	assert.Equal(t, "event: ping", lines.Text())

	go func() {
		body := strings.NewReader(`{"templates":[{"id":"welcome","type":"text","message":"x","settings":{"isStart":true}}]}`)
		r, _ := http.NewRequest("PUT", srv.URL+"/api/configs/support/flow", body)
		if resp, err := http.DefaultClient.Do(r); err == nil {
			resp.Body.Close()
		}
	}()

	var event, data string
	for lines.Scan() {
		line := lines.Text()
		if strings.HasPrefix(line, "event: saved") {
			event = line
		}
		if event != "" && strings.HasPrefix(line, "data: ") {
			data = strings.TrimPrefix(line, "data: ")
			break
		}
	}
	assert.Equal(t, "event: saved", event)
	assert.Contains(t, data, `"removed":["menu"]`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrConfigNotFound, http.StatusNotFound},
		{wabuilder.ErrSaveInProgress, http.StatusConflict},
		{fmt.Errorf("%w: config %q", wabuilder.ErrUnreadableFlow, "x"), http.StatusConflict},
		{wabuilder.ErrInputTooLarge, http.StatusBadRequest},
		{wabuilder.ErrVerificationFailed, http.StatusForbidden},
		{wabuilder.ErrInvalidPayload, http.StatusBadRequest},
		{badRequest(assert.AnError), http.StatusBadRequest},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusFor(tt.err), tt.err.Error())
	}
}

func TestStreamManager(t *testing.T) {
	sm := NewStreamManager()
	ch, cancel := sm.Subscribe("a")
	assert.Equal(t, 1, sm.Subscribers("a"))

	sm.Broadcast("a", "one")
	sm.Broadcast("b", "ignored")
	assert.Equal(t, "one", <-ch)

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, sm.Subscribers("a"))
}

func mustFlow(t *testing.T, b *wabuilder.Builder) string {
	t.Helper()
	cfg, err := b.GetConfig(context.Background(), "support")
	require.NoError(t, err)
	return cfg.FlowJSON
}
