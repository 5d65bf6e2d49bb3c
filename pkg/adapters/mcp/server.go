package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/wabuilder"
	"github.com/aretw0/wabuilder/internal/logging"
	"github.com/aretw0/wabuilder/internal/presentation/graph"
	"github.com/aretw0/wabuilder/internal/validator"
	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

// FlowURI is the resource holding the flow document of the default record.
const FlowURI = "wabuilder://flow"

// TemplatesResponse aligns with the HTTP flow endpoint.
type TemplatesResponse struct {
	Chatbot   string             `json:"chatbot" jsonschema_description:"The chatbot the templates belong to"`
	Templates []domain.Template  `json:"templates" jsonschema_description:"The templates of the chatbot"`
	Notices   []wabuilder.Notice `json:"notices,omitempty" jsonschema_description:"Warnings raised while loading the flow"`
}

// ResolveResponse is the outcome of a routing dry run.
type ResolveResponse struct {
	TemplateID string `json:"template_id,omitempty" jsonschema_description:"The template that answers the text, empty when none does"`
	Name       string `json:"name,omitempty"`
	Match      string `json:"match" jsonschema_description:"How the template was picked: route, level, trigger, start or none"`
}

// ConversationsResponse aligns with GET /api/conversations.
type ConversationsResponse struct {
	Conversations []domain.Conversation `json:"conversations" jsonschema_description:"One summary per contact, most recent first"`
	Unread        int                   `json:"unread" jsonschema_description:"Unread incoming messages across all contacts"`
}

// MessagesResponse lists chat log entries.
type MessagesResponse struct {
	Messages []domain.ChatMessage `json:"messages"`
}

// Server exposes a Builder as an MCP Server.
type Server struct {
	builder   *wabuilder.Builder
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance.
func NewServer(b *wabuilder.Builder, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		builder:   b,
		logger:    logger,
		mcpServer: server.NewMCPServer("wabuilder-mcp", strings.TrimSpace(wabuilder.Version)),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	configArg := mcp.WithString("config", mcp.Description("Configuration record name (defaults to the builder's record)"))
	chatbotArg := mcp.WithString("chatbot", mcp.Description("Chatbot name (defaults to the first chatbot)"))

	s.mcpServer.AddTool(mcp.NewTool("get_webhook_url",
		mcp.WithDescription("Get the URL to register as the WhatsApp webhook."),
		mcp.WithString("site", mcp.Description("Public origin of the deployment, e.g. https://bots.example.com")),
	), s.handleWebhookURL)

	s.mcpServer.AddTool(mcp.NewTool("clear_session",
		mcp.WithDescription("Drop every cached session entry."),
	), s.handleClearSession)

	s.mcpServer.AddTool(mcp.NewTool("list_configs",
		mcp.WithDescription("List the configuration record names."),
	), s.handleListConfigs)

	s.mcpServer.AddTool(mcp.NewTool("list_templates",
		mcp.WithDescription("List the templates of a chatbot."),
		configArg, chatbotArg,
		mcp.WithOutputSchema[TemplatesResponse](),
	), mcp.NewStructuredToolHandler(s.handleListTemplates))

	s.mcpServer.AddTool(mcp.NewTool("export_flow",
		mcp.WithDescription("Export a chatbot as a JSON or YAML file."),
		configArg, chatbotArg,
		mcp.WithString("format", mcp.Enum("json", "yaml"), mcp.Description("File format (json by default)")),
	), s.handleExportFlow)

	s.mcpServer.AddTool(mcp.NewTool("resolve_template",
		mcp.WithDescription("Pick the template that would answer a text from a contact."),
		configArg, chatbotArg,
		mcp.WithString("text", mcp.Required(), mcp.Description("Incoming text")),
		mcp.WithString("phone", mcp.Description("Contact phone; their last outgoing message drives routing")),
		mcp.WithOutputSchema[ResolveResponse](),
	), mcp.NewStructuredToolHandler(s.handleResolve))

	s.mcpServer.AddTool(mcp.NewTool("validate_flow",
		mcp.WithDescription("Check a chatbot for dangling routes, unreachable templates and bad patterns."),
		configArg, chatbotArg,
	), s.handleValidate)

	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Render a chatbot as a Mermaid flowchart."),
		configArg, chatbotArg,
	), s.handleGraph)

	s.mcpServer.AddTool(mcp.NewTool("list_conversations",
		mcp.WithDescription("List the contacts who wrote to the bot with their last message and unread count."),
		mcp.WithOutputSchema[ConversationsResponse](),
	), mcp.NewStructuredToolHandler(s.handleConversations))

	s.mcpServer.AddTool(mcp.NewTool("search_messages",
		mcp.WithDescription("Search the chat log by text, newest first."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Text to look for, case-insensitive")),
		mcp.WithString("phone", mcp.Description("Restrict the search to one contact")),
		mcp.WithOutputSchema[MessagesResponse](),
	), mcp.NewStructuredToolHandler(s.handleSearchMessages))

	s.mcpServer.AddTool(mcp.NewTool("mark_read",
		mcp.WithDescription("Mark every incoming message from a contact as read."),
		mcp.WithString("phone", mcp.Required(), mcp.Description("Contact phone")),
	), s.handleMarkRead)
}

func (s *Server) handleWebhookURL(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(s.builder.WebhookURL(request.GetString("site", ""))), nil
}

func (s *Server) handleClearSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.builder.ClearSession(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("clear failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("cleared %d session keys", n)), nil
}

func (s *Server) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	names, err := s.builder.ListConfigs(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("list failed: %v", err)), nil
	}
	return mcp.NewToolResultText(strings.Join(names, "\n")), nil
}

// Handler methods for structured tools

func (s *Server) handleListTemplates(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (TemplatesResponse, error) {
	config, _ := args["config"].(string)
	chatbot, _ := args["chatbot"].(string)

	bot, notices, err := s.builder.Chatbot(ctx, config, chatbot)
	if err != nil {
		return TemplatesResponse{}, fmt.Errorf("load failed: %w", err)
	}
	return TemplatesResponse{Chatbot: bot.Name, Templates: bot.Templates, Notices: notices}, nil
}

func (s *Server) handleResolve(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ResolveResponse, error) {
	config, _ := args["config"].(string)
	chatbot, _ := args["chatbot"].(string)
	phone, _ := args["phone"].(string)
	text, _ := args["text"].(string)

	res, err := s.builder.Resolve(ctx, config, chatbot, phone, text)
	if err != nil {
		return ResolveResponse{}, fmt.Errorf("resolve failed: %w", err)
	}
	out := ResolveResponse{Match: string(res.Match)}
	if res.Template != nil {
		out.TemplateID = res.Template.ID
		out.Name = res.Template.Name
	}
	return out, nil
}

func (s *Server) handleExportFlow(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	config := request.GetString("config", "")
	bot, _, err := s.builder.Chatbot(ctx, config, request.GetString("chatbot", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
	}

	filename := bot.Name + ".json"
	if request.GetString("format", "json") == "yaml" {
		filename = bot.Name + ".yaml"
	}
	data, err := s.builder.ExportFlow(ctx, config, bot.Name, filename)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("export failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) handleValidate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bot, _, err := s.builder.Chatbot(ctx, request.GetString("config", ""), request.GetString("chatbot", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
	}
	if err := validator.ValidateChatbot(bot); err != nil {
		return mcp.NewToolResultText(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("chatbot %q is valid (%d templates)", bot.Name, len(bot.Templates))), nil
}

func (s *Server) handleGraph(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bot, _, err := s.builder.Chatbot(ctx, request.GetString("config", ""), request.GetString("chatbot", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("load failed: %v", err)), nil
	}
	return mcp.NewToolResultText(graph.GenerateMermaid(bot, nil)), nil
}

func (s *Server) handleConversations(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ConversationsResponse, error) {
	convs, err := s.builder.Conversations(ctx)
	if err != nil {
		return ConversationsResponse{}, fmt.Errorf("list failed: %w", err)
	}
	unread, err := s.builder.UnreadCount(ctx)
	if err != nil {
		return ConversationsResponse{}, fmt.Errorf("count failed: %w", err)
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return ConversationsResponse{Conversations: convs, Unread: unread}, nil
}

func (s *Server) handleSearchMessages(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (MessagesResponse, error) {
	query, _ := args["query"].(string)
	phone, _ := args["phone"].(string)

	msgs, err := s.builder.SearchMessages(ctx, query, phone)
	if err != nil {
		return MessagesResponse{}, fmt.Errorf("search failed: %w", err)
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return MessagesResponse{Messages: msgs}, nil
}

func (s *Server) handleMarkRead(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, err := s.builder.MarkRead(ctx, request.GetString("phone", ""))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("mark failed: %v", err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("marked %d messages as read", n)), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(FlowURI, "Current Flow Document",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		cfg, err := s.builder.GetConfig(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("failed to load flow: %w", err)
		}
		text := cfg.FlowJSON
		if !json.Valid([]byte(text)) {
			text = "{}"
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      FlowURI,
				MIMEType: "application/json",
				Text:     text,
			},
		}, nil
	})
}
