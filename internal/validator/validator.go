package validator

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/aretw0/wabuilder/pkg/domain"
)

// Issue is a single problem found in a chatbot.
type Issue struct {
	TemplateID string // Empty for chatbot-wide problems
	Reason     string
}

func (e *Issue) Error() string {
	if e.TemplateID == "" {
		return e.Reason
	}
	return fmt.Sprintf("template %q: %s", e.TemplateID, e.Reason)
}

// AggregateError represents multiple validation failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d validation errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

// Unwrap exposes the individual issues to errors.Is and errors.As.
func (e *AggregateError) Unwrap() []error { return e.Errors }

// Issues returns all issues if err is an AggregateError.
// Otherwise returns nil.
func Issues(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	return nil
}

// ValidateChatbot checks a chatbot for duplicate or empty ids, more than one
// start or report template, broken patterns, undecodable messages, dangling
// route targets and templates unreachable from the start template.
func ValidateChatbot(chatbot domain.Chatbot) error {
	var errs []error
	add := func(id, format string, args ...any) {
		errs = append(errs, &Issue{TemplateID: id, Reason: fmt.Sprintf(format, args...)})
	}

	byID := make(map[string]*domain.Template, len(chatbot.Templates))
	var starts, reports []string
	for i := range chatbot.Templates {
		t := &chatbot.Templates[i]
		if t.ID == "" {
			add("", "template #%d has no id", i)
			continue
		}
		if _, dup := byID[t.ID]; dup {
			add(t.ID, "duplicate id")
			continue
		}
		byID[t.ID] = t
		if t.Settings.IsStart {
			starts = append(starts, t.ID)
		}
		if t.Settings.IsReport {
			reports = append(reports, t.ID)
		}
	}
	if len(starts) > 1 {
		add("", "%d start templates: %v", len(starts), starts)
	}
	if len(reports) > 1 {
		add("", "%d report templates: %v", len(reports), reports)
	}

	for i := range chatbot.Templates {
		t := chatbot.Templates[i]
		if byID[t.ID] != &chatbot.Templates[i] {
			continue
		}
		if _, err := domain.DecodeMessage(t); err != nil {
			add(t.ID, "message: %v", err)
		}
		if t.Settings.Trigger != "" {
			if _, err := regexp.Compile(t.Settings.Trigger); err != nil {
				add(t.ID, "trigger %q is not a valid pattern", t.Settings.Trigger)
			}
		}
		for i, r := range t.Routes {
			if r.IsRegex {
				if _, err := regexp.Compile(r.Pattern); err != nil {
					add(t.ID, "route #%d pattern %q is not a valid pattern", i, r.Pattern)
				}
			}
			if r.ConnectedTo != "" && byID[r.ConnectedTo] == nil {
				add(t.ID, "route #%d points to missing template %q", i, r.ConnectedTo)
			}
		}
	}

	if len(starts) > 0 {
		visited := reachable(byID, starts[0])
		for i := range chatbot.Templates {
			t := chatbot.Templates[i]
			if byID[t.ID] != &chatbot.Templates[i] || visited[t.ID] {
				continue
			}
			// Triggers and levels enter the flow without a route.
			if t.Settings.Trigger != "" || t.Settings.MessageLevel != "" {
				continue
			}
			add(t.ID, "unreachable from start template %q", starts[0])
		}
	}

	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}

// reachable walks route targets breadth-first from start.
func reachable(byID map[string]*domain.Template, start string) map[string]bool {
	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		t, ok := byID[current]
		if !ok {
			continue
		}
		for _, r := range t.Routes {
			if r.ConnectedTo == "" || visited[r.ConnectedTo] {
				continue
			}
			visited[r.ConnectedTo] = true
			queue = append(queue, r.ConnectedTo)
		}
	}
	return visited
}
