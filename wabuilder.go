package wabuilder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aretw0/wabuilder/internal/logging"
	"github.com/aretw0/wabuilder/pkg/adapters/memory"
	"github.com/aretw0/wabuilder/pkg/codec"
	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/aretw0/wabuilder/pkg/ports"
	"github.com/aretw0/wabuilder/pkg/session"
)

// DefaultConfigName is the configuration record used when none is named.
const DefaultConfigName = domain.DefaultConfigName

// WebhookPath is appended to the site URL to build the public webhook endpoint.
const WebhookPath = "/api/webhook"

// Builder is the high-level entry point of the library.
// It owns the ports and exposes the operations of the chatbot builder backend.
type Builder struct {
	store     ports.ConfigStore
	cache     ports.SessionCache
	messages  ports.MessageLog
	locker    ports.DistributedLocker
	validator *codec.Validator
	hooks     domain.LifecycleHooks
	logger    *slog.Logger

	siteURL      string
	configName   string
	historyLimit int

	sessions *session.Manager
	state    *session.Store
}

// Option defines a functional option for configuring the Builder.
type Option func(*Builder)

// WithConfigStore sets the persistence for configuration records.
func WithConfigStore(s ports.ConfigStore) Option {
	return func(b *Builder) {
		b.store = s
	}
}

// WithSessionCache sets the cache cleared by ClearSession and used for user props.
func WithSessionCache(c ports.SessionCache) Option {
	return func(b *Builder) {
		b.cache = c
	}
}

// WithMessageLog sets the per-contact message log fed by the webhook.
func WithMessageLog(l ports.MessageLog) Option {
	return func(b *Builder) {
		b.messages = l
	}
}

// WithLocker adds a distributed lock to the per-contact serialization of webhook intake.
func WithLocker(l ports.DistributedLocker) Option {
	return func(b *Builder) {
		b.locker = l
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(b *Builder) {
		b.hooks = hooks
	}
}

// WithSiteURL fixes the public site URL used by WebhookURL.
func WithSiteURL(url string) Option {
	return func(b *Builder) {
		b.siteURL = url
	}
}

// WithConfigName changes the record used when an operation is given an empty name.
func WithConfigName(name string) Option {
	return func(b *Builder) {
		b.configName = name
	}
}

// WithValidator enables JSON Schema validation of imported files.
func WithValidator(v *codec.Validator) Option {
	return func(b *Builder) {
		b.validator = v
	}
}

// WithHistoryLimit caps the undo history of editor sessions opened by the Builder.
func WithHistoryLimit(n int) Option {
	return func(b *Builder) {
		b.historyLimit = n
	}
}

// New creates a Builder. Unset ports default to in-memory adapters.
func New(opts ...Option) (*Builder, error) {
	b := &Builder{}
	for _, opt := range opts {
		opt(b)
	}

	if b.logger == nil {
		b.logger = logging.NewNop()
	}
	b.logger = b.logger.With("component", "wabuilder")

	if b.store == nil {
		b.store = memory.NewConfigStore()
	}
	if b.cache == nil {
		b.cache = memory.NewSessionCache()
	}
	if b.messages == nil {
		b.messages = memory.NewMessageLog()
	}
	if b.configName == "" {
		b.configName = DefaultConfigName
	}
	if b.historyLimit < 0 {
		return nil, fmt.Errorf("history limit must not be negative: %d", b.historyLimit)
	}

	managerOpts := []session.Option{session.WithLogger(b.logger)}
	if b.locker != nil {
		managerOpts = append(managerOpts, session.WithLocker(b.locker))
	}
	b.sessions = session.NewManager(managerOpts...)
	b.state = session.NewStore(b.cache, session.DefaultTTL)

	return b, nil
}

// Sessions exposes the user-props store backed by the session cache.
func (b *Builder) Sessions() *session.Store {
	return b.state
}

func (b *Builder) name(configName string) string {
	if configName == "" {
		return b.configName
	}
	return configName
}

// WebhookURL returns the endpoint to register with Meta.
// The configured site URL wins over siteURL, which is usually derived from the request.
func (b *Builder) WebhookURL(siteURL string) string {
	if b.siteURL != "" {
		siteURL = b.siteURL
	}
	return strings.TrimRight(siteURL, "/") + WebhookPath
}

// ClearSession deletes every key of the session cache and returns how many were removed.
func (b *Builder) ClearSession(ctx context.Context) (int, error) {
	n, err := b.state.ClearAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear session cache: %w", err)
	}
	b.logger.Info("session cache cleared", "keys", n)
	if b.hooks.OnCacheCleared != nil {
		b.hooks.OnCacheCleared(ctx, &domain.CacheEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventCacheCleared},
			Keys:      n,
		})
	}
	return n, nil
}

// GetConfig fetches a configuration record.
func (b *Builder) GetConfig(ctx context.Context, name string) (*domain.BotConfig, error) {
	return b.store.Get(ctx, b.name(name))
}

// UpdateConfig writes cfg by name. A non-empty flow document must decode.
func (b *Builder) UpdateConfig(ctx context.Context, cfg *domain.BotConfig) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Name = b.name(cfg.Name)
	if strings.TrimSpace(cfg.FlowJSON) != "" {
		if _, err := codec.Decode([]byte(cfg.FlowJSON)); err != nil {
			return fmt.Errorf("config %q: %w", cfg.Name, err)
		}
	}
	cfg.Modified = time.Now().UTC()
	return b.store.Put(ctx, cfg)
}

// ListConfigs returns the sorted names of every stored record.
func (b *Builder) ListConfigs(ctx context.Context) ([]string, error) {
	return b.store.List(ctx)
}

// DeleteConfig removes a record.
func (b *Builder) DeleteConfig(ctx context.Context, name string) error {
	return b.store.Delete(ctx, b.name(name))
}

// loadFlow fetches the record and decodes its flow document.
// An empty or unreadable document yields a fresh one and a notice describing why.
func (b *Builder) loadFlow(ctx context.Context, configName, chatbot string) (*domain.BotConfig, *domain.Flow, []Notice, error) {
	cfg, err := b.store.Get(ctx, b.name(configName))
	if err != nil {
		return nil, nil, nil, err
	}
	if strings.TrimSpace(cfg.FlowJSON) == "" {
		return cfg, codec.Fresh(chatbot), []Notice{{Level: NoticeInfo, Message: "no flow saved yet, starting empty"}}, nil
	}
	flow, err := codec.Decode([]byte(cfg.FlowJSON))
	if err != nil {
		b.logger.Warn("stored flow unreadable, starting empty", "config", cfg.Name, "error", err)
		return cfg, codec.Fresh(chatbot), []Notice{{Level: NoticeWarning, Message: fmt.Sprintf("stored flow could not be parsed: %v", err)}}, nil
	}
	var notices []Notice
	if codec.Ambiguous([]byte(cfg.FlowJSON)) {
		b.logger.Warn("stored flow has both chatbots and templates, reading chatbots", "config", cfg.Name)
		notices = append(notices, Notice{Level: NoticeWarning, Message: "stored flow has both chatbots and templates; top-level templates are ignored"})
	}
	return cfg, flow, notices, nil
}

// storedFlow decodes the document a save is about to rewrite. Unlike loadFlow
// it never substitutes a fresh document for an unreadable one.
func (b *Builder) storedFlow(ctx context.Context, name, chatbot string) (*domain.BotConfig, *domain.Flow, error) {
	cfg, err := b.store.Get(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(cfg.FlowJSON) == "" {
		return cfg, codec.Fresh(chatbot), nil
	}
	flow, err := codec.Decode([]byte(cfg.FlowJSON))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: config %q: %v", ErrUnreadableFlow, name, err)
	}
	return cfg, flow, nil
}

// Chatbot loads one chatbot of a record without opening an editor.
func (b *Builder) Chatbot(ctx context.Context, configName, chatbot string) (domain.Chatbot, []Notice, error) {
	_, flow, notices, err := b.loadFlow(ctx, configName, chatbot)
	if err != nil {
		return domain.Chatbot{}, nil, err
	}
	bot, created := codec.Select(flow, chatbot)
	if created {
		notices = append(notices, Notice{Level: NoticeInfo, Message: fmt.Sprintf("chatbot %q not found, created empty", bot.Name)})
	}
	return bot.Clone(), notices, nil
}

// SaveChatbot replaces chatbot in the stored document of configName, keeping
// the other chatbots. It returns what changed against the stored version.
// Saves to the same record are serialized.
func (b *Builder) SaveChatbot(ctx context.Context, configName string, chatbot domain.Chatbot) (*domain.ChatbotDiff, error) {
	name := b.name(configName)
	start := time.Now()

	var diff *domain.ChatbotDiff
	err := b.sessions.WithLock(ctx, "config:"+name, func(ctx context.Context) error {
		cfg, flow, err := b.storedFlow(ctx, name, chatbot.Name)
		if err != nil {
			return err
		}
		previous, _ := codec.Select(flow, chatbot.Name)
		old := previous.Clone()
		codec.Replace(flow, chatbot)

		data, err := codec.Encode(flow)
		if err != nil {
			return err
		}
		cfg.FlowJSON = string(data)
		cfg.Modified = time.Now().UTC()
		if err := b.store.Put(ctx, cfg); err != nil {
			return fmt.Errorf("save config %q: %w", name, err)
		}
		diff = domain.Diff(&old, &chatbot)
		return nil
	})

	b.emitFlow(ctx, b.hooks.OnFlowSaved, domain.EventFlowSaved, name, chatbot, time.Since(start), err)
	if err != nil {
		b.logger.Error("save failed", "config", name, "chatbot", chatbot.Name, "error", err)
		return nil, err
	}
	b.logger.Info("flow saved", "config", name, "chatbot", chatbot.Name, "templates", len(chatbot.Templates))

	if _, err := b.ClearSession(ctx); err != nil {
		b.logger.Warn("cache invalidation after save failed", "config", name, "error", err)
	}
	return diff, nil
}

func (b *Builder) emitFlow(ctx context.Context, hook func(context.Context, *domain.FlowEvent), typ domain.EventType, config string, chatbot domain.Chatbot, d time.Duration, err error) {
	if hook == nil {
		return
	}
	hook(ctx, &domain.FlowEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: typ, Config: config},
		Chatbot:   chatbot.Name,
		Templates: len(chatbot.Templates),
		Duration:  d,
		Err:       err,
	})
}

// History returns the last limit messages exchanged with phone, oldest first.
// A zero limit returns everything.
func (b *Builder) History(ctx context.Context, phone string, limit int) ([]domain.ChatMessage, error) {
	return b.messages.History(ctx, domain.NormalizePhone(phone), limit)
}
