package tui

import (
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// PrintBanner writes the wabuilder banner to w. Colors are only used on a terminal.
func PrintBanner(w io.Writer, version string) {
	lines := []string{
		"                _           _ _     _",
		" __      ____ _| |__  _   _(_) | __| | ___ _ __",
		" \\ \\ /\\ / / _` | '_ \\| | | | | |/ _` |/ _ \\ '__|",
		"  \\ V  V / (_| | |_) | |_| | | | (_| |  __/ |",
		"   \\_/\\_/ \\__,_|_.__/ \\__,_|_|_|\\__,_|\\___|_|",
	}
	// Green gradient, WhatsApp-like.
	colors := []string{"#86efac", "#4ade80", "#22c55e", "#16a34a", "#15803d"}

	p := termenv.Ascii
	if IsTerminal(w) {
		p = termenv.ColorProfile()
	}

	fmt.Fprintln(w)
	for i, l := range lines {
		fmt.Fprintln(w, p.String(l).Foreground(p.Color(colors[i])))
	}
	if version != "" {
		fmt.Fprintln(w, p.String("  "+version).Faint())
	}
	fmt.Fprintln(w)
}
