// Package libsql implements a durable ports.ConfigStore on libSQL, the embedded SQLite fork.
package libsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/aretw0/wabuilder/pkg/domain"
)

// ConfigStore implements ports.ConfigStore on a libSQL database.
type ConfigStore struct {
	db *sql.DB
}

// Open opens the database at path (a plain path or a "file:" URI) and applies migrations.
func Open(ctx context.Context, path string) (*ConfigStore, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + path
	}
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Some PRAGMAs return rows so we use QueryRow.
	for _, p := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		var result string
		_ = db.QueryRowContext(ctx, p).Scan(&result)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &ConfigStore{db: db}, nil
}

// Close closes the database.
func (s *ConfigStore) Close() error { return s.db.Close() }

// Get loads the record called name.
func (s *ConfigStore) Get(ctx context.Context, name string) (*domain.BotConfig, error) {
	var (
		cfg        domain.BotConfig
		background int
		modified   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, flow_json, env, phone_id, access_token, webhook_token, app_secret,
		        process_in_background, session_ttl, modified
		   FROM bot_configs WHERE name = ?`, name,
	).Scan(&cfg.Name, &cfg.FlowJSON, &cfg.Env, &cfg.PhoneID, &cfg.AccessToken, &cfg.WebhookToken,
		&cfg.AppSecret, &background, &cfg.SessionTTL, &modified)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("select config %s: %w", name, err)
	}
	cfg.ProcessInBackground = background != 0
	if t, err := time.Parse(time.RFC3339Nano, modified); err == nil {
		cfg.Modified = t
	}
	return &cfg, nil
}

// Put upserts the record and stamps its Modified time.
func (s *ConfigStore) Put(ctx context.Context, cfg *domain.BotConfig) error {
	if cfg.Name == "" {
		return errors.New("config name is required")
	}
	cfg.Modified = time.Now().UTC()
	env := cfg.Env
	if env == "" {
		env = domain.EnvLocal
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bot_configs (name, flow_json, env, phone_id, access_token, webhook_token, app_secret,
		                          process_in_background, session_ttl, modified)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   flow_json=excluded.flow_json, env=excluded.env, phone_id=excluded.phone_id,
		   access_token=excluded.access_token, webhook_token=excluded.webhook_token,
		   app_secret=excluded.app_secret, process_in_background=excluded.process_in_background,
		   session_ttl=excluded.session_ttl, modified=excluded.modified`,
		cfg.Name, cfg.FlowJSON, env, cfg.PhoneID, cfg.AccessToken, cfg.WebhookToken, cfg.AppSecret,
		boolToInt(cfg.ProcessInBackground), cfg.SessionTTL, cfg.Modified.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert config %s: %w", cfg.Name, err)
	}
	return nil
}

// List returns the sorted record names.
func (s *ConfigStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM bot_configs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list configs: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Delete removes the record.
func (s *ConfigStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bot_configs WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete config %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfigNotFound, name)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
