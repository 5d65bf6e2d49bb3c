package http

import (
	"log/slog"
	"sync"

	"github.com/aretw0/wabuilder/internal/logging"
)

// StreamManager handles active SSE connections
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- string]struct{} // config name -> set of channels
	logger      *slog.Logger
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- string]struct{}),
		logger:      logging.NewNop(),
	}
}

// Subscribe registers a listener for config. The returned func unsubscribes and closes the channel.
func (sm *StreamManager) Subscribe(config string) (chan string, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan string, 10)
	if _, ok := sm.subscribers[config]; !ok {
		sm.subscribers[config] = make(map[chan<- string]struct{})
	}
	sm.subscribers[config][ch] = struct{}{}

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			sm.mu.Lock()
			defer sm.mu.Unlock()
			if subs, ok := sm.subscribers[config]; ok {
				delete(subs, ch)
				close(ch)
				if len(subs) == 0 {
					delete(sm.subscribers, config)
				}
			}
		})
	}
}

// Subscribers returns the number of listeners of config.
func (sm *StreamManager) Subscribers(config string) int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.subscribers[config])
}

func (sm *StreamManager) Broadcast(config string, msg string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	sm.logger.Debug("StreamManager: Broadcasting", "config", config, "payload_size", len(msg))

	for ch := range sm.subscribers[config] {
		select {
		case ch <- msg:
		default:
			// Drop message if channel is full (slow client)
			sm.logger.Warn("SSE: Client buffer full, dropping message", "config", config)
		}
	}
}
