package wabuilder_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/wabuilder"
	"github.com/aretw0/wabuilder/pkg/adapters/memory"
	"github.com/aretw0/wabuilder/pkg/codec"
	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/aretw0/wabuilder/pkg/routing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func supportFlow() *domain.Flow {
	return &domain.Flow{
		Version: "2.0",
		Chatbots: []domain.Chatbot{
			{
				Name: "Support",
				Templates: []domain.Template{
					{
						ID: "welcome", Name: "Welcome", Type: domain.TypeText, Message: "Hi!",
						Routes: []domain.Route{
							{Pattern: "menu", ConnectedTo: "menu"},
							{Pattern: "^agent", IsRegex: true, ConnectedTo: "agent"},
						},
						Settings: domain.Settings{IsStart: true, NextLevel: "L1"},
					},
					{
						ID: "menu", Name: "Menu", Type: domain.TypeButton,
						Message:  map[string]any{"body": "Pick one", "buttons": []any{"Billing", "Sales"}},
						Routes:   []domain.Route{{Pattern: "billing", ConnectedTo: "billing"}},
						Settings: domain.Settings{MessageLevel: "L1", Prop: "choice"},
					},
					{ID: "billing", Name: "Billing", Type: domain.TypeText, Message: "Billing here."},
					{ID: "agent", Name: "Agent", Type: domain.TypeText, Message: "Connecting you."},
				},
			},
			{
				Name: "Sales",
				Templates: []domain.Template{
					{ID: "pitch", Name: "Pitch", Type: domain.TypeText, Message: "Buy now", Settings: domain.Settings{Trigger: "^buy"}},
				},
			},
		},
	}
}

func newBuilder(t *testing.T, opts ...wabuilder.Option) (*wabuilder.Builder, *memory.ConfigStore) {
	t.Helper()
	store, err := memory.NewFromFlow(wabuilder.DefaultConfigName, supportFlow())
	require.NoError(t, err)
	b, err := wabuilder.New(append([]wabuilder.Option{wabuilder.WithConfigStore(store)}, opts...)...)
	require.NoError(t, err)
	return b, store
}

func storedFlow(t *testing.T, store *memory.ConfigStore) *domain.Flow {
	t.Helper()
	cfg, err := store.Get(context.Background(), wabuilder.DefaultConfigName)
	require.NoError(t, err)
	flow, err := codec.Decode([]byte(cfg.FlowJSON))
	require.NoError(t, err)
	return flow
}

func TestNew_Defaults(t *testing.T) {
	b, err := wabuilder.New()
	require.NoError(t, err)

	_, err = b.GetConfig(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)

	_, err = wabuilder.New(wabuilder.WithHistoryLimit(-1))
	assert.Error(t, err)
}

func TestWebhookURL(t *testing.T) {
	b, err := wabuilder.New()
	require.NoError(t, err)
	assert.Equal(t, "https://bot.example.com/api/webhook", b.WebhookURL("https://bot.example.com/"))

	b, err = wabuilder.New(wabuilder.WithSiteURL("https://public.example.com//"))
	require.NoError(t, err)
	assert.Equal(t, "https://public.example.com/api/webhook", b.WebhookURL("http://localhost:8080"))
}

func TestClearSession(t *testing.T) {
	ctx := context.Background()
	cache := memory.NewSessionCache()
	var cleared int
	b, err := wabuilder.New(
		wabuilder.WithSessionCache(cache),
		wabuilder.WithLifecycleHooks(domain.LifecycleHooks{
			OnCacheCleared: func(_ context.Context, e *domain.CacheEvent) { cleared = e.Keys },
		}),
	)
	require.NoError(t, err)

	require.NoError(t, b.Sessions().SaveProp(ctx, "263770000001", "name", "Ann"))
	require.NoError(t, b.Sessions().SaveGlobal(ctx, "motd", "hi"))

	n, err := b.ClearSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, cleared)

	props, err := b.Sessions().Props(ctx, "263770000001")
	require.NoError(t, err)
	assert.Empty(t, props)
}

func TestConfigCRUD(t *testing.T) {
	ctx := context.Background()
	b, err := wabuilder.New()
	require.NoError(t, err)

	require.NoError(t, b.UpdateConfig(ctx, &domain.BotConfig{Name: "B", WebhookToken: "tok"}))
	require.NoError(t, b.UpdateConfig(ctx, &domain.BotConfig{Name: "A"}))

	names, err := b.ListConfigs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, names)

	cfg, err := b.GetConfig(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.WebhookToken)
	assert.False(t, cfg.Modified.IsZero())

	err = b.UpdateConfig(ctx, &domain.BotConfig{Name: "C", FlowJSON: "{not json"})
	assert.ErrorIs(t, err, codec.ErrMalformed)

	require.NoError(t, b.DeleteConfig(ctx, "A"))
	_, err = b.GetConfig(ctx, "A")
	assert.ErrorIs(t, err, domain.ErrConfigNotFound)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("missing record", func(t *testing.T) {
		b, err := wabuilder.New()
		require.NoError(t, err)
		_, err = b.Open(ctx, "nope", "Support")
		assert.ErrorIs(t, err, domain.ErrConfigNotFound)
	})

	t.Run("selects chatbot", func(t *testing.T) {
		b, _ := newBuilder(t)
		s, err := b.Open(ctx, "", "Support")
		require.NoError(t, err)
		assert.Empty(t, s.Notices)
		assert.Equal(t, "Support", s.Name())
		assert.Equal(t, "2.0", s.Version())
		assert.Len(t, s.Canvas().Nodes, 4)
		assert.Len(t, s.Canvas().Edges, 3)
	})

	t.Run("missing chatbot is created", func(t *testing.T) {
		b, _ := newBuilder(t)
		s, err := b.Open(ctx, "", "Marketing")
		require.NoError(t, err)
		require.Len(t, s.Notices, 1)
		assert.Equal(t, wabuilder.NoticeInfo, s.Notices[0].Level)
		assert.Empty(t, s.Canvas().Nodes)
	})

	t.Run("unreadable flow falls back to a fresh document", func(t *testing.T) {
		store := memory.NewConfigStore()
		require.NoError(t, store.Put(ctx, &domain.BotConfig{Name: wabuilder.DefaultConfigName, FlowJSON: `{"format":"tree"}`}))
		b, err := wabuilder.New(wabuilder.WithConfigStore(store))
		require.NoError(t, err)

		s, err := b.Open(ctx, "", "Support")
		require.NoError(t, err)
		require.NotEmpty(t, s.Notices)
		assert.Equal(t, wabuilder.NoticeWarning, s.Notices[0].Level)
		assert.Equal(t, "Support", s.Name())
		assert.Empty(t, s.Canvas().Nodes)
	})
}

func TestSessionSave(t *testing.T) {
	ctx := context.Background()
	var saved *domain.FlowEvent
	cache := memory.NewSessionCache()
	b, store := newBuilder(t,
		wabuilder.WithSessionCache(cache),
		wabuilder.WithLifecycleHooks(domain.LifecycleHooks{
			OnFlowSaved: func(_ context.Context, e *domain.FlowEvent) { saved = e },
		}),
	)
	require.NoError(t, cache.Store(ctx, "fpw:263770000001", map[string]any{"k": "v"}, time.Minute))

	s, err := b.Open(ctx, "", "Support")
	require.NoError(t, err)
	require.NoError(t, s.DeleteTemplate("agent"))
	id, err := s.AddTemplate(domain.Template{Name: "Goodbye", Message: "Bye"})
	require.NoError(t, err)

	diff, err := s.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, diff.Added)
	assert.Equal(t, []string{"agent"}, diff.Removed)
	assert.Contains(t, diff.Changed, "welcome")
	assert.False(t, s.Saving())

	flow := storedFlow(t, store)
	require.Len(t, flow.Chatbots, 2)
	assert.Equal(t, "Sales", flow.Chatbots[1].Name)
	assert.Len(t, flow.Chatbots[1].Templates, 1)
	assert.Len(t, flow.Chatbots[0].Templates, 4)
	assert.Equal(t, "2.0", flow.Version)

	require.NotNil(t, saved)
	assert.NoError(t, saved.Err)
	assert.Equal(t, "Support", saved.Chatbot)

	data, err := cache.Load(ctx, "fpw:263770000001")
	require.NoError(t, err)
	assert.Empty(t, data, "save invalidates the session cache")
}

func TestSessionSave_UpgradesLegacyDocument(t *testing.T) {
	ctx := context.Background()
	store := memory.NewConfigStore()
	legacy := `{"version": 3, "templates": [{"id": "a", "name": "A", "type": "text", "message": "hi"}]}`
	require.NoError(t, store.Put(ctx, &domain.BotConfig{Name: wabuilder.DefaultConfigName, FlowJSON: legacy}))
	b, err := wabuilder.New(wabuilder.WithConfigStore(store))
	require.NoError(t, err)

	s, err := b.Open(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultChatbotName, s.Name())
	_, err = s.Save(ctx)
	require.NoError(t, err)

	cfg, err := store.Get(ctx, wabuilder.DefaultConfigName)
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(cfg.FlowJSON), &raw))
	assert.Equal(t, "multi", raw["format"])
	assert.Equal(t, "3", raw["version"])
	assert.NotContains(t, raw, "templates")
}

func TestSessionSave_KeepsChatbotsOfAmbiguousLegacyDocument(t *testing.T) {
	ctx := context.Background()
	store := memory.NewConfigStore()
	legacy := `{"templates": [], "chatbots": [
		{"name": "Sales", "templates": [{"id": "s1", "type": "text", "message": "buy"}]},
		{"name": "Support", "templates": [{"id": "x1", "type": "text", "message": "help"}]}
	]}`
	require.NoError(t, store.Put(ctx, &domain.BotConfig{Name: wabuilder.DefaultConfigName, FlowJSON: legacy}))
	b, err := wabuilder.New(wabuilder.WithConfigStore(store))
	require.NoError(t, err)

	s, err := b.Open(ctx, "", "Sales")
	require.NoError(t, err)
	require.Len(t, s.Notices, 1)
	assert.Equal(t, wabuilder.NoticeWarning, s.Notices[0].Level)
	assert.Len(t, s.Canvas().Nodes, 1)

	_, err = s.Save(ctx)
	require.NoError(t, err)

	flow := storedFlow(t, store)
	require.Len(t, flow.Chatbots, 2)
	assert.Equal(t, "Sales", flow.Chatbots[0].Name)
	require.Len(t, flow.Chatbots[0].Templates, 1)
	assert.Equal(t, "s1", flow.Chatbots[0].Templates[0].ID)
	assert.Equal(t, "Support", flow.Chatbots[1].Name)
	require.Len(t, flow.Chatbots[1].Templates, 1)
	assert.Equal(t, "x1", flow.Chatbots[1].Templates[0].ID)
}

func TestSessionSave_RefusesToOverwriteUnreadableFlow(t *testing.T) {
	ctx := context.Background()
	store := memory.NewConfigStore()
	broken := `{"format":"tree","chatbots":[{"name":"Sales"}]}`
	require.NoError(t, store.Put(ctx, &domain.BotConfig{Name: wabuilder.DefaultConfigName, FlowJSON: broken}))
	b, err := wabuilder.New(wabuilder.WithConfigStore(store))
	require.NoError(t, err)

	s, err := b.Open(ctx, "", "Sales")
	require.NoError(t, err)
	_, err = s.AddTemplate(domain.Template{ID: "n1", Message: "new"})
	require.NoError(t, err)

	_, err = s.Save(ctx)
	assert.ErrorIs(t, err, wabuilder.ErrUnreadableFlow)

	cfg, err := store.Get(ctx, wabuilder.DefaultConfigName)
	require.NoError(t, err)
	assert.Equal(t, broken, cfg.FlowJSON)
	assert.Len(t, s.Canvas().Nodes, 1, "editor keeps its state")
}

type failingStore struct {
	*memory.ConfigStore
}

func (f failingStore) Put(context.Context, *domain.BotConfig) error {
	return errors.New("disk full")
}

func TestSessionSave_FailureKeepsEditorState(t *testing.T) {
	ctx := context.Background()
	inner, err := memory.NewFromFlow(wabuilder.DefaultConfigName, supportFlow())
	require.NoError(t, err)
	var saved *domain.FlowEvent
	b, err := wabuilder.New(
		wabuilder.WithConfigStore(failingStore{inner}),
		wabuilder.WithLifecycleHooks(domain.LifecycleHooks{
			OnFlowSaved: func(_ context.Context, e *domain.FlowEvent) { saved = e },
		}),
	)
	require.NoError(t, err)

	s, err := b.Open(ctx, "", "Support")
	require.NoError(t, err)
	require.NoError(t, s.DeleteTemplate("agent"))

	_, err = s.Save(ctx)
	assert.ErrorContains(t, err, "disk full")
	assert.Len(t, s.Canvas().Nodes, 3)
	assert.True(t, s.CanUndo())
	require.NotNil(t, saved)
	assert.Error(t, saved.Err)

	flow := storedFlow(t, inner)
	assert.Len(t, flow.Chatbots[0].Templates, 4)
}

func TestExportImport(t *testing.T) {
	ctx := context.Background()
	var imported *domain.FlowEvent
	validator, err := codec.NewValidator()
	require.NoError(t, err)
	b, store := newBuilder(t,
		wabuilder.WithValidator(validator),
		wabuilder.WithLifecycleHooks(domain.LifecycleHooks{
			OnFlowImported: func(_ context.Context, e *domain.FlowEvent) { imported = e },
		}),
	)

	data, err := b.ExportFlow(ctx, "", "Sales", "sales.yaml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "pitch")

	diff, err := b.ImportFlow(ctx, "", "Support", "sales.yaml", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"pitch"}, diff.Added)
	require.NotNil(t, imported)
	assert.Equal(t, 1, imported.Templates)

	flow := storedFlow(t, store)
	require.Len(t, flow.Chatbots[0].Templates, 1)
	assert.Equal(t, "pitch", flow.Chatbots[0].Templates[0].ID)

	_, err = b.ImportFlow(ctx, "", "Support", "broken.json", []byte(`{"templates": "nope"`))
	assert.Error(t, err)
	assert.Error(t, imported.Err)
	assert.Len(t, storedFlow(t, store).Chatbots[0].Templates, 1, "failed import leaves the record unchanged")
}

func TestResolve(t *testing.T) {
	ctx := context.Background()
	var events []*domain.RouteEvent
	b, _ := newBuilder(t, wabuilder.WithLifecycleHooks(domain.LifecycleHooks{
		OnRouteResolved: func(_ context.Context, e *domain.RouteEvent) { events = append(events, e) },
	}))

	res, err := b.Resolve(ctx, "", "", "+1 555 0100", "buy something")
	require.NoError(t, err)
	require.NotNil(t, res.Template)
	assert.Equal(t, "pitch", res.Template.ID)
	assert.Equal(t, routing.MatchTrigger, res.Match)

	res, err = b.Resolve(ctx, "", "Sales", "15550100", "hello")
	require.NoError(t, err)
	assert.Nil(t, res.Template)
	assert.Equal(t, routing.MatchNone, res.Match)

	require.Len(t, events, 2)
	assert.Equal(t, "15550100", events[0].Phone)
	assert.Equal(t, "pitch", events[0].TemplateID)
}
