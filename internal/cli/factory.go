package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/wabuilder"
	"github.com/aretw0/wabuilder/internal/config"
	"github.com/aretw0/wabuilder/pkg/adapters/libsql"
	"github.com/aretw0/wabuilder/pkg/adapters/memory"
	"github.com/aretw0/wabuilder/pkg/adapters/postgres"
	"github.com/aretw0/wabuilder/pkg/adapters/redis"
	"github.com/aretw0/wabuilder/pkg/codec"
	"github.com/aretw0/wabuilder/pkg/observability"
	"github.com/aretw0/wabuilder/pkg/persistence/middleware"
	"github.com/aretw0/wabuilder/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// LockPrefix namespaces the distributed locks in Redis.
const LockPrefix = "wabuilder:"

// Stack is a Builder wired to the adapters selected by the configuration.
type Stack struct {
	Builder  *wabuilder.Builder
	Registry *prometheus.Registry

	closers []func() error
}

// Close releases every connection the stack opened.
func (s *Stack) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// Open initializes a Builder with standard CLI conventions:
// the store driver of cfg, an optional Postgres message log, Prometheus
// metrics on a private registry and debug logging of lifecycle events.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (stack *Stack, err error) {
	stack = &Stack{Registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			stack.Close()
			stack = nil
		}
	}()

	stack.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics, err := observability.NewMetrics(stack.Registry)
	if err != nil {
		return stack, err
	}

	opts := []wabuilder.Option{
		wabuilder.WithLogger(logger),
		wabuilder.WithLifecycleHooks(observability.Combine(metrics.Hooks(), observability.LoggingHooks(logger))),
		wabuilder.WithSiteURL(cfg.SiteURL),
		wabuilder.WithConfigName(cfg.ConfigName),
		wabuilder.WithHistoryLimit(cfg.HistoryLimit),
	}

	// 1. Configuration records and session cache
	var (
		store ports.ConfigStore
		cache ports.SessionCache = memory.NewSessionCache()
	)
	switch cfg.Store.Driver {
	case config.DriverRedis:
		client, err := redis.Connect(ctx, cfg.Store.RedisURL)
		if err != nil {
			return stack, err
		}
		stack.closers = append(stack.closers, client.Close)
		store = redis.NewConfigStore(client)
		cache = redis.NewSessionCache(client)
		opts = append(opts, wabuilder.WithLocker(redis.NewLocker(client, LockPrefix)))
	case config.DriverLibSQL:
		sqlStore, err := libsql.Open(ctx, cfg.Store.LibSQLPath)
		if err != nil {
			return stack, err
		}
		stack.closers = append(stack.closers, sqlStore.Close)
		store = sqlStore
	case config.DriverMemory, "":
		store = memory.NewConfigStore()
	default:
		return stack, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	// 2. Privacy
	store, cache, err = protect(cfg.Privacy, store, cache)
	if err != nil {
		return stack, err
	}
	opts = append(opts, wabuilder.WithConfigStore(store), wabuilder.WithSessionCache(cache))

	// 3. Message log
	if cfg.Messages.PostgresDSN != "" {
		log, err := postgres.Open(cfg.Messages.PostgresDSN)
		if err != nil {
			return stack, err
		}
		stack.closers = append(stack.closers, log.Close)
		opts = append(opts, wabuilder.WithMessageLog(log))
	}

	// 4. Import schema
	if cfg.ValidateSchema {
		v, err := codec.NewValidator()
		if err != nil {
			return stack, err
		}
		opts = append(opts, wabuilder.WithValidator(v))
	}

	b, err := wabuilder.New(opts...)
	if err != nil {
		return stack, fmt.Errorf("error initializing builder: %w", err)
	}
	stack.Builder = b
	logger.Debug("builder ready", "store", cfg.Store.Driver, "postgres", cfg.Messages.PostgresDSN != "")
	return stack, nil
}

// protect wraps the store and cache with the privacy middlewares cfg enables.
func protect(cfg config.PrivacyConfig, store ports.ConfigStore, cache ports.SessionCache) (ports.ConfigStore, ports.SessionCache, error) {
	if cfg.EncryptionKey != "" {
		enc := middleware.EncryptionConfig{}
		key, err := middleware.ParseKey(cfg.EncryptionKey)
		if err != nil {
			return nil, nil, err
		}
		enc.ActiveKey = key
		for _, k := range cfg.FallbackKeys {
			key, err := middleware.ParseKey(k)
			if err != nil {
				return nil, nil, fmt.Errorf("fallback key: %w", err)
			}
			enc.FallbackKeys = append(enc.FallbackKeys, key)
		}
		mw, err := middleware.NewEncryptionMiddleware(enc)
		if err != nil {
			return nil, nil, err
		}
		store = mw(store)
	}

	if len(cfg.MaskProps) > 0 {
		mw, err := middleware.NewPIIMiddleware(cfg.MaskProps)
		if err != nil {
			return nil, nil, err
		}
		cache = mw(cache)
	}
	return store, cache, nil
}
