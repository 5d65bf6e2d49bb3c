package editor

import "github.com/aretw0/wabuilder/pkg/domain"

// history is a linear stack of template snapshots with a cursor.
// Pushing after an undo discards everything above the cursor.
type history struct {
	snapshots [][]domain.Template
	cursor    int
	limit     int
}

func newHistory(initial []domain.Template, limit int) *history {
	return &history{
		snapshots: [][]domain.Template{cloneTemplates(initial)},
		limit:     limit,
	}
}

func (h *history) push(s []domain.Template) {
	h.snapshots = append(h.snapshots[:h.cursor+1], cloneTemplates(s))
	if h.limit > 0 && len(h.snapshots) > h.limit {
		drop := len(h.snapshots) - h.limit
		h.snapshots = append([][]domain.Template(nil), h.snapshots[drop:]...)
	}
	h.cursor = len(h.snapshots) - 1
}

func (h *history) canUndo() bool { return h.cursor > 0 }
func (h *history) canRedo() bool { return h.cursor < len(h.snapshots)-1 }

func (h *history) undo() ([]domain.Template, bool) {
	if !h.canUndo() {
		return nil, false
	}
	h.cursor--
	return cloneTemplates(h.snapshots[h.cursor]), true
}

func (h *history) redo() ([]domain.Template, bool) {
	if !h.canRedo() {
		return nil, false
	}
	h.cursor++
	return cloneTemplates(h.snapshots[h.cursor]), true
}

func cloneTemplates(ts []domain.Template) []domain.Template {
	out := make([]domain.Template, len(ts))
	for i, t := range ts {
		out[i] = t.Clone()
	}
	return out
}
