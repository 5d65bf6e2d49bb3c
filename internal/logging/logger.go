package logging

import (
	"io"
	"log/slog"
	"os"
)

// Keys rewritten by the application handler.
const (
	ErrorKey = "err"
	PhoneKey = "phone"
)

// visibleDigits is how much of a contact phone survives masking.
const visibleDigits = 4

// New returns the application logger: a text handler on Stderr, so Stdout
// stays free for exported flows and JSON-RPC.
func New(level slog.Level) *slog.Logger {
	return NewWithWriter(os.Stderr, level)
}

// NewWithWriter is New writing to w.
//
// Attributes keyed "error" are renamed to "err". Contact phones logged under
// "phone" are masked to their last digits unless level is Debug or lower.
func NewWithWriter(w io.Writer, level slog.Level) *slog.Logger {
	mask := level > slog.LevelDebug
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			switch a.Key {
			case "error":
				a.Key = ErrorKey
			case PhoneKey:
				if mask && a.Value.Kind() == slog.KindString {
					a.Value = slog.StringValue(MaskPhone(a.Value.String()))
				}
			}
			return a
		},
	}))
}

// MaskPhone hides all but the last digits of a phone number.
func MaskPhone(phone string) string {
	if len(phone) <= visibleDigits {
		return phone
	}
	hidden := len(phone) - visibleDigits
	out := make([]byte, 0, len(phone))
	for i := 0; i < hidden; i++ {
		out = append(out, '*')
	}
	return string(append(out, phone[hidden:]...))
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
