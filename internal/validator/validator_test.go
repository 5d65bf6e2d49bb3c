package validator

import (
	"errors"
	"strings"
	"testing"

	"github.com/aretw0/wabuilder/pkg/domain"
)

func tmpl(id string, targets ...string) domain.Template {
	t := domain.Template{ID: id, Name: id, Type: domain.TypeText, Message: "hi"}
	for _, target := range targets {
		t.Routes = append(t.Routes, domain.Route{Pattern: target, ConnectedTo: target})
	}
	return t
}

func start(t domain.Template) domain.Template {
	t.Settings.IsStart = true
	return t
}

func TestValidateChatbot(t *testing.T) {
	tests := []struct {
		name      string
		templates []domain.Template
		wantIssue []string
	}{
		{
			name:      "valid graph",
			templates: []domain.Template{start(tmpl("a", "b")), tmpl("b", "c"), tmpl("c")},
		},
		{
			name:      "dangling target",
			templates: []domain.Template{start(tmpl("a", "ghost"))},
			wantIssue: []string{`template "a": route #0 points to missing template "ghost"`},
		},
		{
			name:      "duplicate id",
			templates: []domain.Template{start(tmpl("a", "b")), tmpl("b"), tmpl("b")},
			wantIssue: []string{`template "b": duplicate id`},
		},
		{
			name:      "two start templates",
			templates: []domain.Template{start(tmpl("a")), start(tmpl("b"))},
			wantIssue: []string{"2 start templates"},
		},
		{
			name:      "unreachable",
			templates: []domain.Template{start(tmpl("a")), tmpl("orphan")},
			wantIssue: []string{`template "orphan": unreachable from start template "a"`},
		},
		{
			name: "trigger is an entry point",
			templates: []domain.Template{
				start(tmpl("a")),
				func() domain.Template { x := tmpl("promo"); x.Settings.Trigger = "^promo"; return x }(),
			},
		},
		{
			name: "broken patterns",
			templates: []domain.Template{
				func() domain.Template {
					x := start(tmpl("a"))
					x.Routes = []domain.Route{{Pattern: "([", IsRegex: true}}
					x.Settings.Trigger = "(("
					return x
				}(),
			},
			wantIssue: []string{"trigger \"((\" is not a valid pattern", "route #0 pattern \"([\" is not a valid pattern"},
		},
		{
			name: "undecodable message",
			templates: []domain.Template{
				{ID: "btn", Type: domain.TypeButton, Message: 42, Settings: domain.Settings{IsStart: true}},
			},
			wantIssue: []string{`template "btn": message:`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChatbot(domain.Chatbot{Name: "bot", Templates: tt.templates})
			if len(tt.wantIssue) == 0 {
				if err != nil {
					t.Fatalf("expected no error, got: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected issues %v, got nil", tt.wantIssue)
			}
			for _, want := range tt.wantIssue {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("expected %q in error, got: %v", want, err)
				}
			}
		})
	}
}

func TestIssues(t *testing.T) {
	err := ValidateChatbot(domain.Chatbot{Templates: []domain.Template{{}, start(tmpl("a", "x"))}})
	issues := Issues(err)
	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d: %v", len(issues), err)
	}

	var issue *Issue
	if !errors.As(err, &issue) {
		t.Fatal("errors.As should reach the first issue")
	}
	if issue.TemplateID != "" {
		t.Errorf("first issue should be chatbot-wide, got %q", issue.TemplateID)
	}

	if Issues(errors.New("plain")) != nil {
		t.Error("Issues of a plain error should be nil")
	}
}
