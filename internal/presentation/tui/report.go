package tui

import (
	"fmt"
	"strings"

	"github.com/aretw0/wabuilder/pkg/domain"
)

// Report renders a markdown summary of a chatbot: one row per template and the
// validation issues, if any.
func Report(chatbot domain.Chatbot, issues []error) string {
	var sb strings.Builder

	name := chatbot.Name
	if name == "" {
		name = "(all chatbots)"
	}
	fmt.Fprintf(&sb, "# %s\n\n", name)

	routes, hooks := 0, 0
	for _, t := range chatbot.Templates {
		routes += len(t.Routes)
		hooks += len(t.Hooks)
	}
	fmt.Fprintf(&sb, "%d templates, %d routes, %d hooks.\n\n", len(chatbot.Templates), routes, hooks)

	if len(chatbot.Templates) > 0 {
		sb.WriteString("| id | name | type | routes | flags |\n")
		sb.WriteString("|---|---|---|---|---|\n")
		for _, t := range chatbot.Templates {
			fmt.Fprintf(&sb, "| `%s` | %s | %s | %s | %s |\n",
				t.ID, cell(t.Name), t.Type, routeSummary(t.Routes), flags(t.Settings))
		}
		sb.WriteString("\n")
	}

	if len(issues) == 0 {
		sb.WriteString("**No issues found.**\n")
		return sb.String()
	}
	fmt.Fprintf(&sb, "## %d issues\n\n", len(issues))
	for _, err := range issues {
		fmt.Fprintf(&sb, "- %s\n", err)
	}
	return sb.String()
}

func routeSummary(routes []domain.Route) string {
	parts := make([]string, 0, len(routes))
	for _, r := range routes {
		pattern := r.Pattern
		if r.IsRegex {
			pattern = "/" + pattern + "/"
		}
		target := r.ConnectedTo
		if target == "" {
			target = "∅"
		}
		parts = append(parts, fmt.Sprintf("%s → `%s`", cell(pattern), target))
	}
	return strings.Join(parts, "<br>")
}

func flags(s domain.Settings) string {
	var out []string
	if s.IsStart {
		out = append(out, "start")
	}
	if s.IsReport {
		out = append(out, "report")
	}
	if s.Authenticated {
		out = append(out, "auth")
	}
	if s.Trigger != "" {
		out = append(out, "trigger")
	}
	if s.MessageLevel != "" {
		out = append(out, "level "+s.MessageLevel)
	}
	return strings.Join(out, ", ")
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
