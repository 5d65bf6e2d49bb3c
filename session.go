package wabuilder

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/aretw0/wabuilder/pkg/codec"
	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/aretw0/wabuilder/pkg/editor"
)

// Notice levels.
const (
	NoticeInfo    = "info"
	NoticeWarning = "warning"
	NoticeError   = "error"
)

// Notice is a user-facing message produced while loading a flow.
type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// Session is an editing session over one chatbot of a configuration record.
// The embedded Editor is not safe for concurrent use; Save may be called from
// any goroutine but only one save runs at a time.
type Session struct {
	*editor.Editor

	// Notices collects what happened while the flow was loaded.
	Notices []Notice

	builder *Builder
	config  string
	saving  atomic.Bool
}

// Open starts an editing session on chatbot of the record configName.
// An empty chatbot selects the first one of the document.
func (b *Builder) Open(ctx context.Context, configName, chatbot string) (*Session, error) {
	_, flow, notices, err := b.loadFlow(ctx, configName, chatbot)
	if err != nil {
		return nil, err
	}
	bot, created := codec.Select(flow, chatbot)
	if created {
		notices = append(notices, Notice{Level: NoticeInfo, Message: fmt.Sprintf("chatbot %q not found, created empty", bot.Name)})
	}

	opts := []editor.Option{editor.WithVersion(flow.Version)}
	if b.historyLimit > 0 {
		opts = append(opts, editor.WithHistoryLimit(b.historyLimit))
	}
	return &Session{
		Editor:  editor.New(*bot, opts...),
		Notices: notices,
		builder: b,
		config:  b.name(configName),
	}, nil
}

// Config returns the name of the record this session saves to.
func (s *Session) Config() string { return s.config }

// Saving reports whether a save is in flight.
func (s *Session) Saving() bool { return s.saving.Load() }

// Save writes the edited chatbot back into its record, preserving the other
// chatbots of the document. A failed save leaves the editor untouched.
func (s *Session) Save(ctx context.Context) (*domain.ChatbotDiff, error) {
	if !s.saving.CompareAndSwap(false, true) {
		return nil, ErrSaveInProgress
	}
	defer s.saving.Store(false)

	return s.builder.SaveChatbot(ctx, s.config, s.Editor.Chatbot())
}
