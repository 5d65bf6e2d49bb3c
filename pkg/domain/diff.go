package domain

import (
	"reflect"
	"sort"
)

// ChatbotDiff lists the template-level changes between two versions of a chatbot.
// It is serialized to JSON and returned to the editor after a save.
type ChatbotDiff struct {
	Chatbot string   `json:"chatbot"`
	Added   []string `json:"added,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Changed []string `json:"changed,omitempty"`
}

// Empty reports whether the diff carries no change.
func (d *ChatbotDiff) Empty() bool {
	return d == nil || (len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0)
}

// Diff calculates the difference between oldBot and newBot by template ID.
// If oldBot is nil, every template of newBot is reported as added.
func Diff(oldBot, newBot *Chatbot) *ChatbotDiff {
	if newBot == nil {
		return nil
	}

	diff := &ChatbotDiff{Chatbot: newBot.Name}

	old := make(map[string]Template)
	if oldBot != nil {
		for _, t := range oldBot.Templates {
			old[t.ID] = t
		}
	}

	seen := make(map[string]bool, len(newBot.Templates))
	for _, t := range newBot.Templates {
		seen[t.ID] = true
		prev, ok := old[t.ID]
		switch {
		case !ok:
			diff.Added = append(diff.Added, t.ID)
		case !reflect.DeepEqual(prev, t):
			diff.Changed = append(diff.Changed, t.ID)
		}
	}
	for id := range old {
		if !seen[id] {
			diff.Removed = append(diff.Removed, id)
		}
	}
	sort.Strings(diff.Removed)

	return diff
}
