package session_test

import (
	"context"
	"testing"

	"github.com/aretw0/wabuilder/pkg/adapters/memory"
	"github.com/aretw0/wabuilder/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Values(t *testing.T) {
	ctx := context.Background()
	s := session.NewStore(memory.NewSessionCache(), 0)
	id := "263771234567"

	require.NoError(t, s.Save(ctx, id, "step", "menu"))
	require.NoError(t, s.SaveAll(ctx, id, map[string]any{"lang": "en", "auth": true}))

	v, err := s.Get(ctx, id, "step")
	require.NoError(t, err)
	assert.Equal(t, "menu", v)

	require.NoError(t, s.Evict(ctx, id, "step", "missing"))
	all, err := s.All(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"lang": "en", "auth": true}, all)

	require.NoError(t, s.Clear(ctx, id, "lang"))
	all, err = s.All(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"lang": "en"}, all)

	require.NoError(t, s.Clear(ctx, id))
	all, err = s.All(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_Props(t *testing.T) {
	ctx := context.Background()
	s := session.NewStore(memory.NewSessionCache(), 0)
	id := "263771234567"

	require.NoError(t, s.SaveProp(ctx, id, "name", "Tendai"))
	require.NoError(t, s.SaveProp(ctx, id, "city", "Harare"))

	props, err := s.Props(ctx, id)
	require.NoError(t, err)
	assert.Len(t, props, 2)

	v, err := s.Prop(ctx, id, "name")
	require.NoError(t, err)
	assert.Equal(t, "Tendai", v)

	ok, err := s.EvictProp(ctx, id, "name")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.EvictProp(ctx, id, "name")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_GlobalAndClearAll(t *testing.T) {
	ctx := context.Background()
	s := session.NewStore(memory.NewSessionCache(), 0)

	require.NoError(t, s.SaveGlobal(ctx, "maintenance", true))
	require.NoError(t, s.Save(ctx, "a", "k", 1))

	v, err := s.Global(ctx, "maintenance")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	n, err := s.ClearAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	v, err = s.Global(ctx, "maintenance")
	require.NoError(t, err)
	assert.Nil(t, v)
}
