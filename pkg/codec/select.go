package codec

import (
	"github.com/aretw0/wabuilder/pkg/domain"
)

// Fresh returns the document used when a record has no usable flow.
// It holds one empty chatbot named name.
func Fresh(name string) *domain.Flow {
	if name == "" {
		name = domain.DefaultChatbotName
	}
	return &domain.Flow{
		Format:   domain.FormatMulti,
		Version:  domain.DefaultVersion,
		Chatbots: []domain.Chatbot{{Name: name, Templates: []domain.Template{}}},
	}
}

// Select returns the chatbot called name. An empty name selects the first
// chatbot. A missing chatbot is appended to flow with no templates and created
// is reported as true.
func Select(flow *domain.Flow, name string) (bot *domain.Chatbot, created bool) {
	if name == "" && len(flow.Chatbots) > 0 {
		return &flow.Chatbots[0], false
	}
	if name == "" {
		name = domain.DefaultChatbotName
	}
	for i := range flow.Chatbots {
		if flow.Chatbots[i].Name == name {
			return &flow.Chatbots[i], false
		}
	}
	flow.Chatbots = append(flow.Chatbots, domain.Chatbot{Name: name, Templates: []domain.Template{}})
	return &flow.Chatbots[len(flow.Chatbots)-1], true
}

// Replace stores chatbot in flow, replacing the chatbot with the same name or
// appending it when none exists. Other chatbots are left untouched.
func Replace(flow *domain.Flow, chatbot domain.Chatbot) {
	bot := chatbot.Clone()
	normalizeTemplates(&bot.Templates)
	for i := range flow.Chatbots {
		if flow.Chatbots[i].Name == bot.Name {
			flow.Chatbots[i] = bot
			return
		}
	}
	flow.Chatbots = append(flow.Chatbots, bot)
}

// Merge concatenates the templates of every chatbot, in document order.
// Templates whose ID was already seen are skipped and reported by DuplicateIDs.
func Merge(flow *domain.Flow) domain.Chatbot {
	merged := domain.Chatbot{Name: "", Templates: []domain.Template{}}
	seen := make(map[string]bool)
	for _, bot := range flow.Chatbots {
		for _, t := range bot.Templates {
			if seen[t.ID] {
				continue
			}
			seen[t.ID] = true
			merged.Templates = append(merged.Templates, t.Clone())
		}
	}
	return merged
}

// DuplicateIDs lists template IDs that occur more than once across the chatbots
// of flow, in order of their second occurrence.
func DuplicateIDs(flow *domain.Flow) []string {
	seen := make(map[string]int)
	var dups []string
	for _, bot := range flow.Chatbots {
		for _, t := range bot.Templates {
			seen[t.ID]++
			if seen[t.ID] == 2 {
				dups = append(dups, t.ID)
			}
		}
	}
	return dups
}
