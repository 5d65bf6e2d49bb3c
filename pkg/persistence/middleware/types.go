package middleware

import "github.com/aretw0/wabuilder/pkg/ports"

// ConfigMiddleware allows wrapping a ConfigStore to add behavior.
type ConfigMiddleware func(ports.ConfigStore) ports.ConfigStore

// CacheMiddleware allows wrapping a SessionCache to add behavior.
type CacheMiddleware func(ports.SessionCache) ports.SessionCache
