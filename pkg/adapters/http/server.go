package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/wabuilder"
	"github.com/aretw0/wabuilder/internal/logging"
	"github.com/aretw0/wabuilder/internal/presentation/graph"
	"github.com/aretw0/wabuilder/internal/validator"
	"github.com/aretw0/wabuilder/pkg/codec"
	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/aretw0/wabuilder/pkg/editor"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

//go:embed openapi.yaml
var rawSpec []byte

// MaxBodySize caps request bodies, webhook notifications and imported files included.
const MaxBodySize = 4 << 20

// redacted is what secrets look like once returned to the editor.
const redacted = "********"

// Server exposes a Builder over HTTP.
type Server struct {
	Builder *wabuilder.Builder
	Streams *StreamManager

	logger  *slog.Logger
	spec    *openapi3.T
	metrics http.Handler
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// LoadSpec parses and validates the embedded OpenAPI document.
func LoadSpec(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI document: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI document: %w", err)
	}
	return doc, nil
}

// NewHandler creates the HTTP handler for b.
func NewHandler(b *wabuilder.Builder, opts ...Option) (http.Handler, error) {
	s := &Server{
		Builder: b,
		Streams: NewStreamManager(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logging.NewNop()
	}
	s.Streams.logger = s.logger

	spec, err := LoadSpec(context.Background())
	if err != nil {
		return nil, err
	}
	s.spec = spec

	validate, err := requestValidator(spec, s.logger)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	for _, path := range []string{wabuilder.WebhookPath, "/webhook", "/webhook/{config}"} {
		r.Get(path, s.VerifyWebhook)
		r.Post(path, s.ReceiveWebhook)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(validate)
		r.Get("/webhook-url", s.GetWebhookURL)
		r.Post("/clear-session", s.ClearSession)
		r.Get("/configs", s.ListConfigs)
		r.Get("/conversations", s.ListConversations)
		r.Get("/conversations/unread", s.GetUnreadCount)
		r.Route("/conversations/{phone}", func(r chi.Router) {
			r.Delete("/", s.DeleteConversation)
			r.Get("/messages", s.GetMessages)
			r.Post("/read", s.MarkRead)
		})
		r.Get("/messages/search", s.SearchMessages)
		r.Get("/contacts", s.SearchContacts)
		r.Route("/configs/{name}", func(r chi.Router) {
			r.Get("/", s.GetConfig)
			r.Put("/", s.UpdateConfig)
			r.Delete("/", s.DeleteConfig)
			r.Get("/flow", s.GetFlow)
			r.Put("/flow", s.SaveFlow)
			r.Get("/export", s.ExportFlow)
			r.Post("/import", s.ImportFlow)
			r.Get("/graph", s.GetGraph)
			r.Get("/validate", s.ValidateFlow)
			r.Post("/resolve", s.Resolve)
			r.Get("/events", s.SubscribeEvents)
		})
	})

	return enableCORS(r), nil
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+wabuilder.SignatureHeader)
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>wabuilder API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if s.spec != nil && s.spec.Info != nil {
		apiVersion = s.spec.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "wabuilder-http",
		"version":     strings.TrimSpace(wabuilder.Version),
		"api_version": apiVersion,
	})
}

// GetWebhookURL handles GET /api/webhook-url.
func (s *Server) GetWebhookURL(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"url": s.Builder.WebhookURL(siteURL(r))})
}

// ClearSession handles POST /api/clear-session.
func (s *Server) ClearSession(w http.ResponseWriter, r *http.Request) {
	n, err := s.Builder.ClearSession(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

// ListConfigs handles GET /api/configs.
func (s *Server) ListConfigs(w http.ResponseWriter, r *http.Request) {
	names, err := s.Builder.ListConfigs(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"configs": names})
}

// GetConfig handles GET /api/configs/{name}.
func (s *Server) GetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.Builder.GetConfig(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg.Redacted())
}

// UpdateConfig handles PUT /api/configs/{name}.
// Redacted secrets sent back by the editor keep their stored value.
func (s *Server) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.BotConfig
	if err := decodeBody(r, &cfg); err != nil {
		s.fail(w, r, err)
		return
	}
	cfg.Name = chi.URLParam(r, "name")

	if cfg.AccessToken == redacted || cfg.AppSecret == redacted {
		current, err := s.Builder.GetConfig(r.Context(), cfg.Name)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if cfg.AccessToken == redacted {
			cfg.AccessToken = current.AccessToken
		}
		if cfg.AppSecret == redacted {
			cfg.AppSecret = current.AppSecret
		}
	}

	if err := s.Builder.UpdateConfig(r.Context(), &cfg); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg.Redacted())
}

// DeleteConfig handles DELETE /api/configs/{name}.
func (s *Server) DeleteConfig(w http.ResponseWriter, r *http.Request) {
	if err := s.Builder.DeleteConfig(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type flowResponse struct {
	Chatbot   string             `json:"chatbot"`
	Templates []domain.Template  `json:"templates"`
	Canvas    editor.Canvas      `json:"canvas"`
	Notices   []wabuilder.Notice `json:"notices,omitempty"`
}

// GetFlow handles GET /api/configs/{name}/flow.
func (s *Server) GetFlow(w http.ResponseWriter, r *http.Request) {
	bot, notices, err := s.Builder.Chatbot(r.Context(), chi.URLParam(r, "name"), r.URL.Query().Get("chatbot"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flowResponse{
		Chatbot:   bot.Name,
		Templates: bot.Templates,
		Canvas:    editor.Project(bot.Templates),
		Notices:   notices,
	})
}

// SaveFlow handles PUT /api/configs/{name}/flow.
func (s *Server) SaveFlow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Templates []domain.Template `json:"templates"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	name := chi.URLParam(r, "name")
	target, _, err := s.Builder.Chatbot(r.Context(), name, r.URL.Query().Get("chatbot"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	diff, err := s.Builder.SaveChatbot(r.Context(), name, domain.Chatbot{Name: target.Name, Templates: body.Templates})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(name, diff)
	writeJSON(w, http.StatusOK, diff)
}

// ExportFlow handles GET /api/configs/{name}/export.
func (s *Server) ExportFlow(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	chatbot := r.URL.Query().Get("chatbot")

	target, _, err := s.Builder.Chatbot(r.Context(), name, chatbot)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	filename := exportName(target.Name, r.URL.Query().Get("format"))
	data, err := s.Builder.ExportFlow(r.Context(), name, target.Name, filename)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	contentType := "application/json"
	if codec.IsYAML(filename) {
		contentType = "application/yaml"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}

// ImportFlow handles POST /api/configs/{name}/import. The body is the file itself.
func (s *Server) ImportFlow(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		s.fail(w, r, badRequest(err))
		return
	}
	name := chi.URLParam(r, "name")

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = "import.json"
		if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
			filename = "import.yaml"
		}
	}

	diff, err := s.Builder.ImportFlow(r.Context(), name, r.URL.Query().Get("chatbot"), filename, data)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(name, diff)
	writeJSON(w, http.StatusOK, diff)
}

// GetGraph handles GET /api/configs/{name}/graph.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	bot, _, err := s.Builder.Chatbot(r.Context(), chi.URLParam(r, "name"), r.URL.Query().Get("chatbot"))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	var overlay *graph.Overlay
	if phone := r.URL.Query().Get("phone"); phone != "" {
		history, err := s.Builder.History(r.Context(), phone, 0)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		overlay = graph.OverlayFromHistory(history)
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, graph.GenerateMermaid(bot, overlay))
}

// ValidateFlow handles GET /api/configs/{name}/validate.
func (s *Server) ValidateFlow(w http.ResponseWriter, r *http.Request) {
	bot, _, err := s.Builder.Chatbot(r.Context(), chi.URLParam(r, "name"), r.URL.Query().Get("chatbot"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	issues := []string{}
	for _, issue := range validator.Issues(validator.ValidateChatbot(bot)) {
		issues = append(issues, issue.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{"chatbot": bot.Name, "valid": len(issues) == 0, "issues": issues})
}

// Resolve handles POST /api/configs/{name}/resolve, a routing dry run.
func (s *Server) Resolve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Phone string `json:"phone"`
		Text  string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	res, err := s.Builder.Resolve(r.Context(), chi.URLParam(r, "name"), r.URL.Query().Get("chatbot"), body.Phone, body.Text)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// VerifyWebhook answers the Meta subscription challenge with the bare challenge string.
func (s *Server) VerifyWebhook(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	challenge, err := s.Builder.VerifyWebhook(r.Context(), chi.URLParam(r, "config"),
		q.Get("hub.mode"), q.Get("hub.verify_token"), q.Get("hub.challenge"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	io.WriteString(w, challenge)
}

// ReceiveWebhook ingests a WhatsApp notification. Records flagged for background
// processing are acknowledged before the notification is handled.
func (s *Server) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err != nil {
		s.fail(w, r, badRequest(err))
		return
	}
	ctx := r.Context()
	config := chi.URLParam(r, "config")

	if err := s.Builder.VerifySignature(ctx, config, r.Header.Get(wabuilder.SignatureHeader), payload); err != nil {
		s.fail(w, r, err)
		return
	}

	cfg, err := s.Builder.GetConfig(ctx, config)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if cfg.ProcessInBackground {
		go func() {
			bg := context.WithoutCancel(ctx)
			if _, err := s.Builder.HandleWebhook(bg, config, payload); err != nil {
				s.logger.Error("background webhook processing failed", "config", cfg.Name, "error", err)
			}
		}()
		writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
		return
	}

	n, err := s.Builder.HandleWebhook(ctx, config, payload)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": n})
}

// SubscribeEvents handles GET /api/configs/{name}/events (SSE).
// Every successful save or import of the record is pushed as a diff.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	name := chi.URLParam(r, "name")
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.Streams.Subscribe(name)
	defer cancel()
	s.logger.Info("SSE: Subscribing to flow updates", "config", name)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "config", name)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: saved\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) publish(config string, diff *domain.ChatbotDiff) {
	if diff.Empty() {
		return
	}
	data, err := json.Marshal(diff)
	if err != nil {
		s.logger.Warn("diff encode failed", "error", err)
		return
	}
	s.Streams.Broadcast(config, string(data))
}

// -- Helpers --

type requestError struct{ err error }

func (e *requestError) Error() string { return e.err.Error() }
func (e *requestError) Unwrap() error { return e.err }

func badRequest(err error) error { return &requestError{err: err} }

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, MaxBodySize))
	if err := dec.Decode(out); err != nil {
		return badRequest(fmt.Errorf("invalid request body: %w", err))
	}
	return nil
}

// StatusFor maps an error to the HTTP status returned to clients.
func StatusFor(err error) int {
	var reqErr *requestError
	switch {
	case errors.Is(err, domain.ErrConfigNotFound), errors.Is(err, domain.ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, wabuilder.ErrSaveInProgress), errors.Is(err, wabuilder.ErrUnreadableFlow):
		return http.StatusConflict
	case errors.Is(err, wabuilder.ErrVerificationFailed):
		return http.StatusForbidden
	case errors.As(err, &reqErr),
		errors.Is(err, codec.ErrEmptyDocument),
		errors.Is(err, codec.ErrMalformed),
		errors.Is(err, codec.ErrUnknownFormat),
		errors.Is(err, codec.ErrSchema),
		errors.Is(err, domain.ErrInvalidMessage),
		errors.Is(err, wabuilder.ErrInvalidPayload),
		errors.Is(err, wabuilder.ErrInvalidInput),
		errors.Is(err, wabuilder.ErrInputTooLarge),
		errors.Is(err, wabuilder.ErrInvalidUTF8),
		errors.Is(err, editor.ErrTemplateNotFound),
		errors.Is(err, editor.ErrDuplicateTemplate),
		errors.Is(err, editor.ErrRouteNotFound),
		errors.Is(err, editor.ErrEdgeNotFound),
		errors.Is(err, editor.ErrHookNotFound):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()), "error", err)
	} else {
		s.logger.Warn("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// siteURL derives the public origin of the request, honoring proxy headers.
func siteURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return scheme + "://" + host
}

func exportName(chatbot, format string) string {
	base := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', '"', ' ':
			return '_'
		}
		return r
	}, chatbot)
	if base == "" {
		base = "chatbot"
	}
	if format == "yaml" || format == "yml" {
		return base + ".yaml"
	}
	return base + ".json"
}
