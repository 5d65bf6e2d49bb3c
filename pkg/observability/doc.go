/*
Package observability provides lifecycle hooks for monitoring the builder.

Metrics turns flow saves, imports, route resolutions, cache purges and webhook
messages into Prometheus collectors. LoggingHooks writes the same events to a
structured logger, and Combine fans one event out to several hook sets.
*/
package observability
