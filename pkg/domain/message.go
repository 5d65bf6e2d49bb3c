package domain

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Payload is a typed view over a template message.
type Payload interface {
	Kind() string
}

// TextMessage is the payload of text and request-location templates.
type TextMessage struct {
	Body string `json:"body" mapstructure:"body"`
}

// ButtonMessage is an interactive reply-buttons message.
type ButtonMessage struct {
	Title   string   `json:"title,omitempty" mapstructure:"title"`
	Body    string   `json:"body" mapstructure:"body"`
	Footer  string   `json:"footer,omitempty" mapstructure:"footer"`
	Buttons []string `json:"buttons" mapstructure:"buttons"`
}

// ListMessage is an interactive list message.
type ListMessage struct {
	Title    string        `json:"title,omitempty" mapstructure:"title"`
	Body     string        `json:"body" mapstructure:"body"`
	Footer   string        `json:"footer,omitempty" mapstructure:"footer"`
	Button   string        `json:"button,omitempty" mapstructure:"button"`
	Sections []ListSection `json:"sections" mapstructure:"sections"`
}

type ListSection struct {
	Title string    `json:"title" mapstructure:"title"`
	Rows  []ListRow `json:"rows" mapstructure:"rows"`
}

type ListRow struct {
	ID          string `json:"id" mapstructure:"id"`
	Title       string `json:"title" mapstructure:"title"`
	Description string `json:"description,omitempty" mapstructure:"description"`
}

// FlowMessage opens a WhatsApp Flow.
type FlowMessage struct {
	FlowID string `json:"flow_id" mapstructure:"flow_id"`
	Token  string `json:"flow_token,omitempty" mapstructure:"flow_token"`
	Name   string `json:"name,omitempty" mapstructure:"name"`
	Title  string `json:"title,omitempty" mapstructure:"title"`
	Body   string `json:"body,omitempty" mapstructure:"body"`
	Footer string `json:"footer,omitempty" mapstructure:"footer"`
	Button string `json:"button,omitempty" mapstructure:"button"`
	Draft  bool   `json:"draft,omitempty" mapstructure:"draft"`
}

// MediaMessage sends an image, video, audio, document or sticker.
type MediaMessage struct {
	MediaType string `json:"kind" mapstructure:"kind"`
	URL       string `json:"url,omitempty" mapstructure:"url"`
	MediaID   string `json:"media_id,omitempty" mapstructure:"media_id"`
	Caption   string `json:"caption,omitempty" mapstructure:"caption"`
	Filename  string `json:"filename,omitempty" mapstructure:"filename"`
}

type LocationMessage struct {
	Latitude  float64 `json:"latitude" mapstructure:"latitude"`
	Longitude float64 `json:"longitude" mapstructure:"longitude"`
	Name      string  `json:"name,omitempty" mapstructure:"name"`
	Address   string  `json:"address,omitempty" mapstructure:"address"`
}

// CTAMessage is a call-to-action URL button message.
type CTAMessage struct {
	URL    string `json:"url" mapstructure:"url"`
	Button string `json:"button" mapstructure:"button"`
	Title  string `json:"title,omitempty" mapstructure:"title"`
	Body   string `json:"body,omitempty" mapstructure:"body"`
	Footer string `json:"footer,omitempty" mapstructure:"footer"`
}

// TemplateMessage references a pre-approved WhatsApp template.
type TemplateMessage struct {
	Name       string           `json:"name" mapstructure:"name"`
	Language   string           `json:"language,omitempty" mapstructure:"language"`
	Components []map[string]any `json:"components,omitempty" mapstructure:"components"`
}

// RawMessage carries payloads of dynamic or unknown template types untouched.
type RawMessage struct {
	Value any `json:"value"`
}

func (TextMessage) Kind() string { return TypeText }
func (ButtonMessage) Kind() string { return TypeButton }
func (ListMessage) Kind() string { return TypeList }
func (FlowMessage) Kind() string { return TypeFlow }
func (MediaMessage) Kind() string { return TypeMedia }
func (LocationMessage) Kind() string { return TypeLocation }
func (CTAMessage) Kind() string { return TypeCTA }
func (TemplateMessage) Kind() string { return TypeTemplate }
func (RawMessage) Kind() string { return TypeDynamic }

// legacyKeys maps older payload keys onto the current ones.
var legacyKeys = map[string]string{
	"media_type":    "kind",
	"media_url":     "url",
	"template_name": "name",
	"language_code": "language",
}

// DecodeMessage returns a typed view of t.Message according to t.Type.
func DecodeMessage(t Template) (Payload, error) {
	switch t.Type {
	case TypeText, TypeRequestLocation:
		if s, ok := t.Message.(string); ok {
			return TextMessage{Body: s}, nil
		}
		var m TextMessage
		return m, decodeInto(t, &m)
	case TypeButton:
		var m ButtonMessage
		return m, decodeInto(t, &m)
	case TypeList:
		var m ListMessage
		return m, decodeInto(t, &m)
	case TypeFlow:
		var m FlowMessage
		return m, decodeInto(t, &m)
	case TypeMedia:
		var m MediaMessage
		return m, decodeInto(t, &m)
	case TypeLocation:
		var m LocationMessage
		return m, decodeInto(t, &m)
	case TypeCTA:
		var m CTAMessage
		return m, decodeInto(t, &m)
	case TypeTemplate:
		var m TemplateMessage
		return m, decodeInto(t, &m)
	default:
		return RawMessage{Value: t.Message}, nil
	}
}

func decodeInto(t Template, out any) error {
	if t.Message == nil {
		return nil
	}
	raw, ok := t.Message.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: %s template %q has %T payload", ErrInvalidMessage, t.Type, t.ID, t.Message)
	}

	input := make(map[string]any, len(raw))
	for k, v := range raw {
		if alias, ok := legacyKeys[k]; ok {
			if _, exists := raw[alias]; !exists {
				k = alias
			}
		}
		input[k] = v
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		DecodeHook:       buttonTitleHook,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(input); err != nil {
		return fmt.Errorf("%w: %s template %q: %v", ErrInvalidMessage, t.Type, t.ID, err)
	}
	return nil
}

// buttonTitleHook accepts {"id": ..., "title": ...} objects where a plain string is expected.
func buttonTitleHook(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String || from.Kind() != reflect.Map {
		return data, nil
	}
	m, ok := data.(map[string]any)
	if !ok {
		return data, nil
	}
	if title, ok := m["title"].(string); ok {
		return title, nil
	}
	return data, nil
}
