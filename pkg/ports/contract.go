package ports

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniqueSuffix() string {
	return time.Now().Format("20060102150405.000000000")
}

// RunConfigStoreContract runs a suite of tests to verify that a ConfigStore
// implementation adheres to the defined interface contract.
func RunConfigStoreContract(t *testing.T, store ConfigStore) {
	ctx := context.Background()
	name := "contract-config-" + uniqueSuffix()

	t.Run("Put and Get", func(t *testing.T) {
		cfg := &domain.BotConfig{
			Name:         name,
			FlowJSON:     `{"format":"multi","version":"1.0","chatbots":[]}`,
			Env:          domain.EnvLocal,
			WebhookToken: "verify-me",
			SessionTTL:   600,
		}
		require.NoError(t, store.Put(ctx, cfg), "Put should not return error")

		loaded, err := store.Get(ctx, name)
		require.NoError(t, err, "Get should not return error")
		assert.Equal(t, cfg.FlowJSON, loaded.FlowJSON)
		assert.Equal(t, "verify-me", loaded.WebhookToken)
		assert.Equal(t, 600, loaded.SessionTTL)
		assert.False(t, loaded.Modified.IsZero(), "Put should stamp Modified")
	})

	t.Run("Put Replaces", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, &domain.BotConfig{Name: name, FlowJSON: "{}"}))
		loaded, err := store.Get(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, "{}", loaded.FlowJSON)
	})

	t.Run("Get Non-Existent", func(t *testing.T) {
		_, err := store.Get(ctx, "non-existent-"+name)
		assert.ErrorIs(t, err, domain.ErrConfigNotFound)
	})

	t.Run("List", func(t *testing.T) {
		other := name + "-other"
		require.NoError(t, store.Put(ctx, &domain.BotConfig{Name: other}))
		defer func() { _ = store.Delete(ctx, other) }()

		names, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, names, name)
		assert.Contains(t, names, other)
		assert.IsNonDecreasing(t, names)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, name), "Delete should not return error")

		_, err := store.Get(ctx, name)
		assert.ErrorIs(t, err, domain.ErrConfigNotFound, "Get after Delete should return ErrConfigNotFound")
		assert.ErrorIs(t, store.Delete(ctx, name), domain.ErrConfigNotFound)
	})
}

// RunSessionCacheContract verifies a SessionCache implementation.
// The cache must be dedicated to the test, since Clear removes every session.
func RunSessionCacheContract(t *testing.T, cache SessionCache) {
	ctx := context.Background()

	t.Run("Load Missing", func(t *testing.T) {
		data, err := cache.Load(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("Store and Load", func(t *testing.T) {
		require.NoError(t, cache.Store(ctx, "263770000001", map[string]any{"step": "menu", "count": 2}, time.Minute))

		data, err := cache.Load(ctx, "263770000001")
		require.NoError(t, err)
		assert.Equal(t, "menu", data["step"])
		assert.EqualValues(t, 2, data["count"])
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, cache.Store(ctx, "263770000002", map[string]any{"a": "b"}, time.Minute))
		require.NoError(t, cache.Delete(ctx, "263770000002"))

		data, err := cache.Load(ctx, "263770000002")
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("Clear", func(t *testing.T) {
		for i := range 3 {
			id := fmt.Sprintf("clear-%d", i)
			require.NoError(t, cache.Store(ctx, id, map[string]any{"i": i}, 0))
		}

		n, err := cache.Clear(ctx)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 3)

		data, err := cache.Load(ctx, "clear-0")
		require.NoError(t, err)
		assert.Empty(t, data)

		n, err = cache.Clear(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

// RunMessageLogContract verifies a MessageLog implementation.
func RunMessageLogContract(t *testing.T, log MessageLog) {
	ctx := context.Background()
	phone := "2637" + time.Now().Format("150405000")
	base := time.Now().UTC().Truncate(time.Second)

	t.Run("LastOutgoing Empty", func(t *testing.T) {
		_, err := log.LastOutgoing(ctx, phone)
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)
	})

	t.Run("Append and LastOutgoing", func(t *testing.T) {
		msgs := []domain.ChatMessage{
			{MessageID: phone + "-in-1", Phone: phone, Direction: domain.DirectionIncoming, Type: "text", Text: "hi", Timestamp: base},
			{MessageID: phone + "-out-1", Phone: phone, Direction: domain.DirectionOutgoing, Type: "button", TemplateID: "welcome", NextLevel: "L1", Timestamp: base.Add(time.Second)},
			{MessageID: phone + "-in-2", Phone: phone, Direction: domain.DirectionIncoming, Type: "text", Text: "menu", Timestamp: base.Add(2 * time.Second)},
			{MessageID: phone + "-out-2", Phone: phone, Direction: domain.DirectionOutgoing, Type: "list", TemplateID: "menu", MessageLevel: "L1", Timestamp: base.Add(3 * time.Second), Metadata: map[string]any{"route": "menu"}},
		}
		for i := range msgs {
			require.NoError(t, log.Append(ctx, &msgs[i]))
		}

		last, err := log.LastOutgoing(ctx, phone)
		require.NoError(t, err)
		assert.Equal(t, "menu", last.TemplateID)
		assert.Equal(t, "L1", last.MessageLevel)
		assert.Equal(t, "menu", last.Metadata["route"])
	})

	t.Run("Duplicate", func(t *testing.T) {
		err := log.Append(ctx, &domain.ChatMessage{MessageID: phone + "-in-1", Phone: phone, Direction: domain.DirectionIncoming, Timestamp: base})
		assert.True(t, errors.Is(err, domain.ErrDuplicateMessage), "got %v", err)
	})

	t.Run("UpdateStatus", func(t *testing.T) {
		require.NoError(t, log.UpdateStatus(ctx, phone+"-out-2", domain.StatusRead))
		last, err := log.LastOutgoing(ctx, phone)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRead, last.Status)

		assert.ErrorIs(t, log.UpdateStatus(ctx, "unknown-"+phone, domain.StatusRead), domain.ErrMessageNotFound)
	})

	t.Run("History", func(t *testing.T) {
		all, err := log.History(ctx, phone, 0)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, phone+"-in-1", all[0].MessageID)
		assert.Equal(t, phone+"-out-2", all[3].MessageID)

		recent, err := log.History(ctx, phone, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, phone+"-in-2", recent[0].MessageID)
	})

	t.Run("Conversations", func(t *testing.T) {
		require.NoError(t, log.Append(ctx, &domain.ChatMessage{
			MessageID: phone + "-in-3", Phone: phone, Direction: domain.DirectionIncoming, Type: "text",
			Text: "Need BILLING help", Timestamp: base.Add(4 * time.Second),
			Metadata: map[string]any{"contact_name": "Ana"},
		}))

		convs, err := log.Conversations(ctx)
		require.NoError(t, err)
		var conv *domain.Conversation
		for i := range convs {
			if convs[i].Phone == phone {
				conv = &convs[i]
			}
		}
		require.NotNil(t, conv, "conversation for %s", phone)
		assert.Equal(t, "Ana", conv.ContactName)
		assert.Equal(t, "Need BILLING help", conv.LastMessage)
		assert.WithinDuration(t, base.Add(4*time.Second), conv.LastMessageTime, time.Millisecond)
		assert.Equal(t, 3, conv.UnreadCount)
	})

	t.Run("Search", func(t *testing.T) {
		found, err := log.Search(ctx, "billing", phone, 0)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, phone+"-in-3", found[0].MessageID)

		found, err = log.Search(ctx, "e", phone, 0)
		require.NoError(t, err)
		require.Len(t, found, 2)
		assert.Equal(t, phone+"-in-3", found[0].MessageID, "newest first")

		found, err = log.Search(ctx, "e", phone, 1)
		require.NoError(t, err)
		assert.Len(t, found, 1)

		found, err = log.Search(ctx, "100%", phone, 0)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("MarkRead and UnreadCount", func(t *testing.T) {
		before, err := log.UnreadCount(ctx)
		require.NoError(t, err)
		require.GreaterOrEqual(t, before, 3)

		n, err := log.MarkRead(ctx, phone)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		after, err := log.UnreadCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, before-3, after)

		n, err = log.MarkRead(ctx, phone)
		require.NoError(t, err)
		assert.Zero(t, n)

		last, err := log.LastOutgoing(ctx, phone)
		require.NoError(t, err)
		assert.Equal(t, "menu", last.TemplateID, "outgoing messages are left alone")
	})

	t.Run("DeleteConversation", func(t *testing.T) {
		n, err := log.DeleteConversation(ctx, phone)
		require.NoError(t, err)
		assert.Equal(t, 5, n)

		all, err := log.History(ctx, phone, 0)
		require.NoError(t, err)
		assert.Empty(t, all)

		_, err = log.LastOutgoing(ctx, phone)
		assert.ErrorIs(t, err, domain.ErrMessageNotFound)

		require.NoError(t, log.Append(ctx, &domain.ChatMessage{MessageID: phone + "-in-1", Phone: phone, Direction: domain.DirectionIncoming, Timestamp: base}),
			"deleted message ids can be logged again")

		n, err = log.DeleteConversation(ctx, phone)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}
