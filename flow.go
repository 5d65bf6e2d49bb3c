package wabuilder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/wabuilder/pkg/codec"
	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/aretw0/wabuilder/pkg/routing"
)

// Resolution is the outcome of routing one incoming text.
type Resolution struct {
	Template *domain.Template `json:"template,omitempty"`
	Match    routing.Match    `json:"match"`
}

// ExportFlow renders one chatbot of configName as a downloadable file.
// The file extension of filename selects YAML or JSON.
func (b *Builder) ExportFlow(ctx context.Context, configName, chatbot, filename string) ([]byte, error) {
	_, flow, _, err := b.loadFlow(ctx, configName, chatbot)
	if err != nil {
		return nil, err
	}
	bot, _ := codec.Select(flow, chatbot)
	return codec.EncodeChatbotFile(filename, *bot, flow.Version)
}

// ImportFlow replaces the templates of chatbot with those of an uploaded file
// and saves the record. Nothing is written when the file does not decode.
func (b *Builder) ImportFlow(ctx context.Context, configName, chatbot, filename string, data []byte) (*domain.ChatbotDiff, error) {
	start := time.Now()
	name := b.name(configName)

	diff, bot, err := b.importFlow(ctx, name, chatbot, filename, data)
	b.emitFlow(ctx, b.hooks.OnFlowImported, domain.EventFlowImported, name, bot, time.Since(start), err)
	if err != nil {
		b.logger.Warn("import rejected", "config", name, "file", filename, "error", err)
		return nil, err
	}
	return diff, nil
}

func (b *Builder) importFlow(ctx context.Context, name, chatbot, filename string, data []byte) (*domain.ChatbotDiff, domain.Chatbot, error) {
	if b.validator != nil {
		if err := b.validator.Validate(filename, data); err != nil {
			return nil, domain.Chatbot{Name: chatbot}, err
		}
	}
	file, err := codec.DecodeChatbotFile(data)
	if err != nil {
		return nil, domain.Chatbot{Name: chatbot}, fmt.Errorf("import %s: %w", filename, err)
	}

	target, _, err := b.Chatbot(ctx, name, chatbot)
	if err != nil {
		return nil, domain.Chatbot{Name: chatbot}, err
	}
	bot := domain.Chatbot{Name: target.Name, Templates: file.Templates}
	diff, err := b.SaveChatbot(ctx, name, bot)
	return diff, bot, err
}

// Resolve picks the template that answers text from phone, using the last
// outgoing message logged for that contact. An empty chatbot routes over the
// templates of every chatbot of the document.
func (b *Builder) Resolve(ctx context.Context, configName, chatbot, phone, text string) (*Resolution, error) {
	name := b.name(configName)
	_, flow, _, err := b.loadFlow(ctx, name, chatbot)
	if err != nil {
		return nil, err
	}
	return b.resolve(ctx, name, flow, chatbot, phone, text)
}

func (b *Builder) resolve(ctx context.Context, name string, flow *domain.Flow, chatbot, phone, text string) (*Resolution, error) {
	engine := routing.New(b.routable(name, flow, chatbot), routing.WithLogger(b.logger))
	phone = domain.NormalizePhone(phone)
	last, err := b.lastOutgoing(ctx, phone)
	if err != nil {
		return nil, err
	}
	return b.route(ctx, name, engine, last, phone, text), nil
}

// routable returns the chatbot routed for chatbot. An empty name merges every
// chatbot of the document, keeping the first template of each duplicated id.
func (b *Builder) routable(name string, flow *domain.Flow, chatbot string) domain.Chatbot {
	if chatbot != "" {
		selected, _ := codec.Select(flow, chatbot)
		return *selected
	}
	if dups := codec.DuplicateIDs(flow); len(dups) > 0 {
		b.logger.Warn("duplicate template ids across chatbots, first wins", "config", name, "ids", dups)
	}
	return codec.Merge(flow)
}

func (b *Builder) lastOutgoing(ctx context.Context, phone string) (*domain.ChatMessage, error) {
	last, err := b.messages.LastOutgoing(ctx, phone)
	if errors.Is(err, domain.ErrMessageNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last outgoing message for %s: %w", phone, err)
	}
	return last, nil
}

func (b *Builder) route(ctx context.Context, name string, engine *routing.Engine, last *domain.ChatMessage, phone, text string) *Resolution {
	tmpl, match := engine.Resolve(ctx, last, text)
	if b.hooks.OnRouteResolved != nil {
		ev := &domain.RouteEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventRouteResolved, Config: name},
			Phone:     phone,
			Match:     string(match),
		}
		if tmpl != nil {
			ev.TemplateID = tmpl.ID
		}
		b.hooks.OnRouteResolved(ctx, ev)
	}
	return &Resolution{Template: tmpl, Match: match}
}
