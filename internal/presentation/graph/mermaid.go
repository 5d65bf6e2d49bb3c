package graph

import (
	"fmt"
	"strings"

	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/aretw0/wabuilder/pkg/editor"
)

// Overlay contains conversation state to visualize on the graph.
type Overlay struct {
	VisitedTemplates []string
	CurrentTemplate  string
}

// GenerateMermaid produces a Mermaid flowchart of a chatbot.
// It applies semantic styling:
// - Start: ((Circle))
// - Report: [[Subroutine]]
// - Interactive (button, list, flow, request-location): [/Parallelogram/]
// - Default: [Rectangle]
// Regex routes are drawn dashed. Unconnected routes are omitted.
// It also applies overlay styles (Visited/Current) if provided.
func GenerateMermaid(chatbot domain.Chatbot, overlay *Overlay) string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, t := range chatbot.Templates {
		safeID := sanitizeMermaidID(t.ID)

		opener, closer := "[", "]"
		switch {
		case t.Settings.IsStart:
			opener, closer = "((", "))"
		case t.Settings.IsReport:
			opener, closer = "[[", "]]"
		case isInteractive(t.Type):
			opener, closer = "[/", "/]"
		}

		name := t.Name
		if name == "" {
			name = t.ID
		}
		label := escape(name)
		if t.Settings.Trigger != "" {
			label += " <br/> ⚡ " + escape(t.Settings.Trigger)
		}
		fmt.Fprintf(&sb, "    %s%s\"%s\"%s\n", safeID, opener, label, closer)

		for _, r := range t.Routes {
			if r.ConnectedTo == "" {
				continue
			}
			safeTo := sanitizeMermaidID(r.ConnectedTo)
			routeLabel := escape(editor.Label(r))
			arrow := fmt.Sprintf("-- \"%s\" -->", routeLabel)
			if r.IsRegex {
				arrow = fmt.Sprintf("-. \"%s\" .->", routeLabel)
			}
			fmt.Fprintf(&sb, "    %s %s %s\n", safeID, arrow, safeTo)
		}
	}

	if overlay != nil {
		sb.WriteString("\n    %% Overlay Styles\n")
		// Force black text (color:#000) for high-contrast on light backgrounds, regardless of theme (Light/Dark)
		sb.WriteString("    classDef visited fill:#e1f5fe,stroke:#01579b,stroke-width:2px,color:#000;\n")
		sb.WriteString("    classDef current fill:#ffeb3b,stroke:#fbc02d,stroke-width:4px,color:#000;\n")

		visitedSet := make(map[string]bool)
		for _, id := range overlay.VisitedTemplates {
			safeID := sanitizeMermaidID(id)
			if !visitedSet[safeID] && safeID != "" {
				visitedSet[safeID] = true
				fmt.Fprintf(&sb, "    class %s visited;\n", safeID)
			}
		}

		if overlay.CurrentTemplate != "" {
			fmt.Fprintf(&sb, "    class %s current;\n", sanitizeMermaidID(overlay.CurrentTemplate))
		}
	}

	return sb.String()
}

// OverlayFromHistory marks the templates a contact was sent, the newest as current.
func OverlayFromHistory(history []domain.ChatMessage) *Overlay {
	o := &Overlay{}
	for _, m := range history {
		if m.Direction != domain.DirectionOutgoing || m.TemplateID == "" {
			continue
		}
		o.VisitedTemplates = append(o.VisitedTemplates, m.TemplateID)
		o.CurrentTemplate = m.TemplateID
	}
	return o
}

func isInteractive(typ string) bool {
	switch typ {
	case domain.TypeButton, domain.TypeList, domain.TypeFlow, domain.TypeRequestLocation:
		return true
	}
	return false
}

func escape(s string) string {
	return strings.ReplaceAll(s, "\"", "'")
}

func sanitizeMermaidID(id string) string {
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "\\", "_")
	s = strings.ReplaceAll(s, " ", "_")
	return s
}
