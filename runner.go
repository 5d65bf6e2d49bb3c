package wabuilder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/aretw0/wabuilder/pkg/routing"
	"github.com/google/uuid"
)

// Runner plays a conversation against a stored flow using provided IO.
// Each input line is treated as a text message from Phone; the resolved
// template is printed back.
type Runner struct {
	Input    io.Reader
	Output   io.Writer
	Headless bool
	Renderer ContentRenderer

	Config  string
	Chatbot string
	Phone   string
}

// ContentRenderer is a function that transforms the content before outputting it.
// This allows for TUI rendering (markdown to ANSI) without coupling the core package.
type ContentRenderer func(string) (string, error)

// NewRunner creates a Runner for the default record, with a simulated contact.
// Input and Output must be set before Run.
func NewRunner() *Runner {
	return &Runner{Phone: "10000000000"}
}

// Run reads lines until EOF, "exit" or "quit".
func (r *Runner) Run(ctx context.Context, b *Builder) error {
	if r.Input == nil {
		return fmt.Errorf("input reader must be set (use os.Stdin)")
	}
	if r.Output == nil {
		return fmt.Errorf("output writer must be set (use os.Stdout)")
	}
	lines := bufio.NewReader(r.Input)

	if !r.Headless {
		fmt.Fprintln(r.Output, "--- wabuilder chat (type exit to quit) ---")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !r.Headless {
			fmt.Fprint(r.Output, "> ")
		}
		text, err := lines.ReadString('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("input error: %w", err)
		}
		input := strings.TrimSpace(text)
		if input == "exit" || input == "quit" {
			fmt.Fprintln(r.Output, "Bye!")
			return nil
		}

		if input != "" {
			res, serr := b.Simulate(ctx, r.Config, r.Chatbot, r.Phone, input)
			if serr != nil {
				return fmt.Errorf("simulate: %w", serr)
			}
			r.show(res)
		}

		if err == io.EOF {
			return nil
		}
	}
}

func (r *Runner) show(res *Resolution) {
	if res.Template == nil {
		fmt.Fprintln(r.Output, "(no template matched)")
		return
	}
	output := Preview(*res.Template)
	if r.Renderer != nil {
		if rendered, err := r.Renderer(output); err == nil {
			output = rendered
		}
	}
	fmt.Fprintln(r.Output, strings.TrimSpace(output))
}

// Simulate logs text as an incoming message from phone and records the reply
// the flow would send, exactly like webhook intake does for a text message.
func (b *Builder) Simulate(ctx context.Context, configName, chatbot, phone, text string) (*Resolution, error) {
	text, err := SanitizeInput(text)
	if err != nil {
		return nil, err
	}
	name := b.name(configName)
	_, flow, _, err := b.loadFlow(ctx, name, chatbot)
	if err != nil {
		return nil, err
	}
	engine := routing.New(b.routable(name, flow, chatbot), routing.WithLogger(b.logger))
	phone = domain.NormalizePhone(phone)

	var res *Resolution
	err = b.sessions.WithLock(ctx, phone, func(ctx context.Context) error {
		msg := &domain.ChatMessage{
			MessageID: "sim-" + uuid.NewString(),
			Phone:     phone,
			Direction: domain.DirectionIncoming,
			Type:      domain.TypeText,
			Text:      text,
			Status:    domain.StatusDelivered,
			Timestamp: time.Now().UTC(),
		}
		if err := b.messages.Append(ctx, msg); err != nil {
			return fmt.Errorf("log message: %w", err)
		}
		var err error
		res, err = b.reply(ctx, name, engine, phone, text)
		return err
	})
	return res, err
}

// Preview renders a template as markdown the way a contact would read it.
func Preview(t domain.Template) string {
	var sb strings.Builder
	if t.Name != "" {
		fmt.Fprintf(&sb, "**%s**\n\n", t.Name)
	}

	payload, err := domain.DecodeMessage(t)
	if err != nil {
		fmt.Fprintf(&sb, "_unreadable %s message: %v_\n", t.Type, err)
		return sb.String()
	}

	switch m := payload.(type) {
	case domain.TextMessage:
		sb.WriteString(m.Body + "\n")
	case domain.ButtonMessage:
		writeLines(&sb, m.Title, m.Body)
		for _, btn := range m.Buttons {
			fmt.Fprintf(&sb, "- [%s]\n", btn)
		}
		writeLines(&sb, m.Footer)
	case domain.ListMessage:
		writeLines(&sb, m.Title, m.Body)
		for _, sec := range m.Sections {
			fmt.Fprintf(&sb, "\n_%s_\n", sec.Title)
			for _, row := range sec.Rows {
				fmt.Fprintf(&sb, "- %s\n", row.Title)
			}
		}
		writeLines(&sb, m.Footer)
	case domain.MediaMessage:
		fmt.Fprintf(&sb, "[%s] %s\n", m.MediaType, firstNonEmpty(m.URL, m.MediaID))
		writeLines(&sb, m.Caption)
	case domain.LocationMessage:
		fmt.Fprintf(&sb, "Location: %s (%g, %g)\n", firstNonEmpty(m.Name, m.Address), m.Latitude, m.Longitude)
	case domain.CTAMessage:
		writeLines(&sb, m.Title, m.Body)
		fmt.Fprintf(&sb, "[%s](%s)\n", m.Button, m.URL)
	case domain.FlowMessage:
		writeLines(&sb, m.Title, m.Body)
		fmt.Fprintf(&sb, "[%s] flow %s\n", firstNonEmpty(m.Button, "Open"), m.FlowID)
	case domain.TemplateMessage:
		fmt.Fprintf(&sb, "template `%s` (%s)\n", m.Name, m.Language)
	default:
		fmt.Fprintf(&sb, "_%s message_\n", t.Type)
	}
	return sb.String()
}

func writeLines(sb *strings.Builder, lines ...string) {
	for _, l := range lines {
		if l != "" {
			sb.WriteString(l + "\n")
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
