package routing

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aretw0/wabuilder/internal/logging"
	"github.com/aretw0/wabuilder/pkg/domain"
)

// Match describes which rule selected a template.
type Match string

const (
	MatchRoute   Match = "route"
	MatchLevel   Match = "level"
	MatchTrigger Match = "trigger"
	MatchStart   Match = "start"
	MatchNone    Match = "none"
)

// Engine resolves reply templates for one chatbot.
// It is immutable after New and safe for concurrent use.
type Engine struct {
	templates []domain.Template
	byID      map[string]int
	routes    [][]*regexp.Regexp
	triggers  []*regexp.Regexp
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for invalid patterns and decisions.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New indexes the templates of chatbot and compiles their patterns.
// Patterns that do not compile are logged here and never match.
func New(chatbot domain.Chatbot, opts ...Option) *Engine {
	e := &Engine{
		templates: chatbot.Clone().Templates,
		byID:      make(map[string]int),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.routes = make([][]*regexp.Regexp, len(e.templates))
	e.triggers = make([]*regexp.Regexp, len(e.templates))
	for i, t := range e.templates {
		if t.ID == "" {
			continue
		}
		if _, dup := e.byID[t.ID]; !dup {
			e.byID[t.ID] = i
		}

		compiled := make([]*regexp.Regexp, len(t.Routes))
		for j, r := range t.Routes {
			if !r.IsRegex || r.Pattern == "" {
				continue
			}
			re, err := compileAnchored(r.Pattern)
			if err != nil {
				e.logger.Warn("invalid route pattern", "template", t.ID, "pattern", r.Pattern, "err", err)
				continue
			}
			compiled[j] = re
		}
		e.routes[i] = compiled

		if t.Settings.Trigger != "" {
			if re, err := compileAnchored(t.Settings.Trigger); err == nil {
				e.triggers[i] = re
			}
		}
	}
	return e
}

// compileAnchored compiles a case-insensitive pattern that must match at the
// start of the input.
func compileAnchored(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)^(?:` + pattern + `)`)
}

// Template returns the template with the given id.
func (e *Engine) Template(id string) (*domain.Template, bool) {
	i, ok := e.byID[id]
	if !ok {
		return nil, false
	}
	t := e.templates[i].Clone()
	return &t, true
}

// Resolve returns the template answering text, given the last outgoing message
// sent to the contact (nil when there is none).
func (e *Engine) Resolve(ctx context.Context, last *domain.ChatMessage, text string) (*domain.Template, Match) {
	if len(e.templates) == 0 {
		e.logger.WarnContext(ctx, "no templates available in chatbot")
		return nil, MatchNone
	}

	normalized := strings.ToLower(strings.TrimSpace(text))

	if last != nil {
		if i, ok := e.byID[last.TemplateID]; ok && last.TemplateID != "" {
			if target, ok := e.matchRoute(i, normalized); ok {
				e.logger.DebugContext(ctx, "route match", "input", normalized, "template", target.ID)
				return target, MatchRoute
			}
		}
		if last.NextLevel != "" {
			if t := e.byLevel(last.NextLevel); t != nil {
				e.logger.DebugContext(ctx, "level match", "next_level", last.NextLevel, "template", t.ID)
				return t, MatchLevel
			}
		}
	}

	if t := e.byTrigger(text, normalized); t != nil {
		e.logger.DebugContext(ctx, "trigger match", "input", normalized, "template", t.ID)
		return t, MatchTrigger
	}

	for i := range e.templates {
		if e.templates[i].Settings.IsStart {
			t := e.templates[i].Clone()
			e.logger.DebugContext(ctx, "no match, using start template", "template", t.ID)
			return &t, MatchStart
		}
	}

	e.logger.WarnContext(ctx, "no matching template", "input", normalized)
	return nil, MatchNone
}

func (e *Engine) matchRoute(i int, normalized string) (*domain.Template, bool) {
	current := e.templates[i]

	for _, r := range current.Routes {
		if r.IsRegex {
			continue
		}
		pattern := strings.ToLower(strings.TrimSpace(r.Pattern))
		if pattern == normalized || (pattern != "" && strings.Contains(normalized, pattern)) {
			if t, ok := e.Template(r.ConnectedTo); ok {
				return t, true
			}
			return nil, false
		}
	}

	for j, re := range e.routes[i] {
		if re == nil || !re.MatchString(normalized) {
			continue
		}
		if t, ok := e.Template(current.Routes[j].ConnectedTo); ok {
			return t, true
		}
		return nil, false
	}
	return nil, false
}

func (e *Engine) byLevel(level string) *domain.Template {
	for i := range e.templates {
		if e.templates[i].Settings.MessageLevel == level {
			t := e.templates[i].Clone()
			return &t
		}
	}
	return nil
}

func (e *Engine) byTrigger(raw, normalized string) *domain.Template {
	for i := range e.templates {
		trigger := e.templates[i].Settings.Trigger
		if trigger == "" {
			continue
		}
		matched := false
		if re := e.triggers[i]; re != nil {
			matched = re.MatchString(raw)
		} else {
			matched = strings.Contains(normalized, strings.ToLower(trigger))
		}
		if matched {
			t := e.templates[i].Clone()
			return &t
		}
	}
	return nil
}
