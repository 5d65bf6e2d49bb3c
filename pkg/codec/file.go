package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/aretw0/wabuilder/pkg/domain"
	"gopkg.in/yaml.v3"
)

// ChatbotFile is the export shape of a single chatbot.
type ChatbotFile struct {
	Templates []domain.Template `json:"templates" yaml:"templates"`
	Version   string            `json:"version" yaml:"version"`
}

// IsYAML reports whether name has a YAML file extension.
func IsYAML(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// DecodeFile parses a flow document stored under name, as YAML or JSON.
func DecodeFile(name string, data []byte) (*domain.Flow, error) {
	if !IsYAML(name) {
		return Decode(data)
	}
	jsonData, err := yamlToJSON(data)
	if err != nil {
		return nil, err
	}
	return Decode(jsonData)
}

// EncodeFile writes flow in the encoding matching name's extension.
func EncodeFile(name string, flow *domain.Flow) ([]byte, error) {
	if !IsYAML(name) {
		return Encode(flow)
	}
	data, err := yaml.Marshal(canonical(flow))
	if err != nil {
		return nil, fmt.Errorf("failed to encode flow as yaml: %w", err)
	}
	return data, nil
}

// DecodeChatbotFile parses an exported chatbot. YAML input is accepted as well.
// Full flow documents are accepted too; their first chatbot is returned.
func DecodeChatbotFile(data []byte) (*ChatbotFile, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmptyDocument
	}
	if data[0] != '{' {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, err
		}
		data = converted
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	flow, err := fromEnvelope(env)
	if err != nil {
		return nil, err
	}

	file := &ChatbotFile{Version: flow.Version, Templates: []domain.Template{}}
	if len(flow.Chatbots) > 0 {
		file.Templates = flow.Chatbots[0].Templates
	}
	return file, nil
}

// EncodeChatbotFile writes the export shape of chatbot as JSON, or YAML when
// name has a YAML extension.
func EncodeChatbotFile(name string, chatbot domain.Chatbot, version string) ([]byte, error) {
	if version == "" {
		version = domain.DefaultVersion
	}
	bot := chatbot.Clone()
	normalizeTemplates(&bot.Templates)
	file := ChatbotFile{Templates: bot.Templates, Version: version}

	if IsYAML(name) {
		data, err := yaml.Marshal(file)
		if err != nil {
			return nil, fmt.Errorf("failed to encode chatbot as yaml: %w", err)
		}
		return data, nil
	}
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode chatbot: %w", err)
	}
	return data, nil
}

func yamlToJSON(data []byte) ([]byte, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyDocument
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, fmt.Errorf("%w: top level must be a mapping, got %T", ErrMalformed, doc)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return out, nil
}
