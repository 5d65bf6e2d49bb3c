package cli

import (
	"fmt"
	"os"

	"github.com/aretw0/wabuilder/pkg/codec"
	"github.com/aretw0/wabuilder/pkg/domain"
)

// LoadChatbot reads one chatbot out of a flow document or exported chatbot file.
// An empty name selects the first chatbot.
func LoadChatbot(path, name string) (domain.Chatbot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Chatbot{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	flow, err := codec.DecodeFile(path, data)
	if err != nil {
		return domain.Chatbot{}, fmt.Errorf("%s: %w", path, err)
	}
	bot, created := codec.Select(flow, name)
	if created && name != "" {
		return domain.Chatbot{}, fmt.Errorf("%s: chatbot %q not found", path, name)
	}
	return *bot, nil
}
