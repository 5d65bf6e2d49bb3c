package libsql_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aretw0/wabuilder/pkg/adapters/libsql"
	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/aretw0/wabuilder/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*libsql.ConfigStore, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wabuilder.db")
	s, err := libsql.Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestLibSQLConfigStore_Contract(t *testing.T) {
	s, _ := newTestStore(t)
	ports.RunConfigStoreContract(t, s)
}

func TestLibSQLConfigStore_ReopenKeepsData(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, &domain.BotConfig{
		Name:                domain.DefaultConfigName,
		FlowJSON:            `{"format":"multi","version":"1.0","chatbots":[]}`,
		ProcessInBackground: true,
		AppSecret:           "s3cret",
	}))
	require.NoError(t, s.Close())

	// Migrations must be idempotent on reopen.
	again, err := libsql.Open(ctx, "file:"+path)
	require.NoError(t, err)
	defer again.Close()

	cfg, err := again.Get(ctx, domain.DefaultConfigName)
	require.NoError(t, err)
	assert.True(t, cfg.ProcessInBackground)
	assert.Equal(t, "s3cret", cfg.AppSecret)
	assert.Equal(t, domain.EnvLocal, cfg.Env)
}
