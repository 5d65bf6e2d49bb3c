package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aretw0/wabuilder/pkg/domain"
)

var (
	// ErrEmptyDocument is returned when the input holds no document at all.
	ErrEmptyDocument = errors.New("empty flow document")
	// ErrMalformed is returned when the input is not valid JSON or YAML.
	ErrMalformed = errors.New("malformed flow document")
	// ErrUnknownFormat is returned when the document shape cannot be recognized.
	ErrUnknownFormat = errors.New("unknown flow document format")
)

// envelope lists the top-level keys of any accepted shape.
type envelope struct {
	Format    *string         `json:"format"`
	Version   json.RawMessage `json:"version"`
	Chatbots  json.RawMessage `json:"chatbots"`
	Templates json.RawMessage `json:"templates"`
}

// Decode parses a flow document, upgrading legacy shapes to the multi format.
func Decode(data []byte) (*domain.Flow, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return fromEnvelope(env)
}

func fromEnvelope(env envelope) (*domain.Flow, error) {
	format, err := detectFormat(env)
	if err != nil {
		return nil, err
	}

	flow := &domain.Flow{
		Format:  domain.FormatMulti,
		Version: versionOf(env.Version),
	}

	switch format {
	case domain.FormatMulti:
		if err := unmarshalList(env.Chatbots, &flow.Chatbots); err != nil {
			return nil, fmt.Errorf("%w: chatbots: %v", ErrMalformed, err)
		}
	case domain.FormatSingle:
		var templates []domain.Template
		if err := unmarshalList(env.Templates, &templates); err != nil {
			return nil, fmt.Errorf("%w: templates: %v", ErrMalformed, err)
		}
		flow.Chatbots = []domain.Chatbot{{Name: domain.DefaultChatbotName, Templates: templates}}
	}

	normalize(flow)
	return flow, nil
}

func detectFormat(env envelope) (string, error) {
	hasChatbots := present(env.Chatbots)
	hasTemplates := present(env.Templates)

	if env.Format != nil {
		switch *env.Format {
		case domain.FormatMulti, domain.FormatSingle:
			return *env.Format, nil
		default:
			return "", fmt.Errorf("%w: %q", ErrUnknownFormat, *env.Format)
		}
	}

	switch {
	case hasChatbots:
		return domain.FormatMulti, nil
	case hasTemplates:
		return domain.FormatSingle, nil
	default:
		return "", fmt.Errorf("%w: neither chatbots nor templates found", ErrUnknownFormat)
	}
}

// Ambiguous reports whether data is a legacy document carrying both
// "chatbots" and "templates". Decode reads such documents as multi and
// ignores the top-level templates.
func Ambiguous(data []byte) bool {
	var env envelope
	if err := json.Unmarshal(bytes.TrimSpace(data), &env); err != nil {
		return false
	}
	return env.Format == nil && present(env.Chatbots) && present(env.Templates)
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

func unmarshalList(raw json.RawMessage, out any) error {
	if !present(raw) {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// versionOf accepts both "1.0" and 1.0.
func versionOf(raw json.RawMessage) string {
	if !present(raw) {
		return domain.DefaultVersion
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return domain.DefaultVersion
		}
		return s
	}
	return strings.Trim(string(raw), `"`)
}

// normalize replaces nil slices so that encoded documents never carry nulls.
func normalize(flow *domain.Flow) {
	if flow.Chatbots == nil {
		flow.Chatbots = []domain.Chatbot{}
	}
	for i := range flow.Chatbots {
		normalizeTemplates(&flow.Chatbots[i].Templates)
	}
}

func normalizeTemplates(templates *[]domain.Template) {
	if *templates == nil {
		*templates = []domain.Template{}
	}
	for i := range *templates {
		t := &(*templates)[i]
		if t.Routes == nil {
			t.Routes = []domain.Route{}
		}
		if t.Hooks == nil {
			t.Hooks = []domain.Hook{}
		}
	}
}

// Encode writes the canonical indented JSON form of flow.
func Encode(flow *domain.Flow) ([]byte, error) {
	out := canonical(flow)
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode flow: %w", err)
	}
	return data, nil
}

func canonical(flow *domain.Flow) *domain.Flow {
	out := flow.Clone()
	if out == nil {
		out = &domain.Flow{}
	}
	out.Format = domain.FormatMulti
	if out.Version == "" {
		out.Version = domain.DefaultVersion
	}
	normalize(out)
	return out
}
