// Package redis implements the session cache, config store and distributed
// locker on top of Redis.
//
// Session data lives under the "fpw:" prefix so that clearing the cache never
// touches configuration records or locks, which use DefaultPrefix.
package redis
