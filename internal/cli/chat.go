package cli

import (
	"context"
	"errors"
	"io"

	"github.com/aretw0/wabuilder"
	"github.com/aretw0/wabuilder/internal/presentation/tui"
)

// ChatOptions contains all the configuration for the chat command.
type ChatOptions struct {
	Config   string
	Chatbot  string
	Phone    string
	Headless bool
	// Width wraps rendered replies; zero disables rich rendering.
	Width int
}

// Chat runs an interactive conversation against a chatbot, as a WhatsApp
// contact would have it, until the input ends or ctx is cancelled.
func Chat(ctx context.Context, b *wabuilder.Builder, opts ChatOptions, in io.Reader, out io.Writer) error {
	r := wabuilder.NewRunner()
	r.Input = in
	r.Output = out
	r.Headless = opts.Headless
	r.Config = opts.Config
	r.Chatbot = opts.Chatbot
	if opts.Phone != "" {
		r.Phone = opts.Phone
	}

	if !opts.Headless {
		tui.PrintBanner(out, wabuilder.Version)
		if opts.Width > 0 && tui.IsTerminal(out) {
			r.Renderer = tui.NewRenderer(opts.Width)
		}
	}

	err := r.Run(ctx, b)
	if errors.Is(err, context.Canceled) {
		if !opts.Headless {
			PrintSystemMessage(out, "Interrupted.")
		}
		return nil
	}
	return err
}
