package editor

import (
	"encoding/json"
	"fmt"

	"github.com/aretw0/wabuilder/pkg/codec"
	"github.com/aretw0/wabuilder/pkg/domain"
	"github.com/google/uuid"
)

// Editor holds the working copy of one chatbot and its undo history.
type Editor struct {
	name      string
	version   string
	templates []domain.Template
	history   *history
}

// Option configures an Editor.
type Option func(*config)

type config struct {
	historyLimit int
	version      string
}

// WithHistoryLimit caps the number of retained snapshots. The oldest are dropped first.
// Zero keeps everything.
func WithHistoryLimit(n int) Option {
	return func(c *config) { c.historyLimit = n }
}

// WithVersion sets the version written by Export.
func WithVersion(v string) Option {
	return func(c *config) { c.version = v }
}

// New loads chatbot into a fresh editor. The initial state is the first history snapshot.
func New(chatbot domain.Chatbot, opts ...Option) *Editor {
	cfg := config{version: domain.DefaultVersion}
	for _, opt := range opts {
		opt(&cfg)
	}
	templates := cloneTemplates(chatbot.Templates)
	return &Editor{
		name:      chatbot.Name,
		version:   cfg.version,
		templates: templates,
		history:   newHistory(templates, cfg.historyLimit),
	}
}

// Name returns the name of the edited chatbot.
func (e *Editor) Name() string { return e.name }

// Version returns the flow version carried by exports.
func (e *Editor) Version() string { return e.version }

// Canvas returns the current nodes and edges.
func (e *Editor) Canvas() Canvas { return Project(e.templates) }

// Chatbot rebuilds the chatbot from the current canvas.
func (e *Editor) Chatbot() domain.Chatbot {
	return domain.Chatbot{Name: e.name, Templates: cloneTemplates(e.templates)}
}

// Template returns a copy of the template with the given id.
func (e *Editor) Template(id string) (domain.Template, bool) {
	i := indexOf(e.templates, id)
	if i < 0 {
		return domain.Template{}, false
	}
	return e.templates[i].Clone(), true
}

// mutate runs fn on a copy of the current templates. The copy replaces the
// current state and is recorded in history only when fn succeeds.
func (e *Editor) mutate(fn func(ts []domain.Template) ([]domain.Template, error)) error {
	next, err := fn(cloneTemplates(e.templates))
	if err != nil {
		return err
	}
	e.templates = next
	e.history.push(next)
	return nil
}

// AddTemplate appends t to the chatbot and returns its id.
// An empty id is replaced by a generated one.
func (e *Editor) AddTemplate(t domain.Template) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	err := e.mutate(func(ts []domain.Template) ([]domain.Template, error) {
		if indexOf(ts, t.ID) >= 0 {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTemplate, t.ID)
		}
		t = t.Clone()
		if t.Type == "" {
			t.Type = domain.TypeText
		}
		if t.Routes == nil {
			t.Routes = []domain.Route{}
		}
		if t.Hooks == nil {
			t.Hooks = []domain.Hook{}
		}
		ts = append(ts, t)
		exclusive(ts, len(ts)-1)
		return ts, nil
	})
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// UpdateTemplate replaces the template with t.ID. The canvas position is kept.
func (e *Editor) UpdateTemplate(t domain.Template) error {
	return e.mutate(func(ts []domain.Template) ([]domain.Template, error) {
		i, err := find(ts, t.ID)
		if err != nil {
			return nil, err
		}
		t = t.Clone()
		t.Position = ts[i].Position
		if t.Routes == nil {
			t.Routes = []domain.Route{}
		}
		if t.Hooks == nil {
			t.Hooks = []domain.Hook{}
		}
		ts[i] = t
		exclusive(ts, i)
		return ts, nil
	})
}

// DeleteTemplate removes the template and disconnects every route targeting it.
func (e *Editor) DeleteTemplate(id string) error {
	return e.mutate(func(ts []domain.Template) ([]domain.Template, error) {
		i, err := find(ts, id)
		if err != nil {
			return nil, err
		}
		ts = append(ts[:i], ts[i+1:]...)
		for j := range ts {
			for k := range ts[j].Routes {
				if ts[j].Routes[k].ConnectedTo == id {
					ts[j].Routes[k].ConnectedTo = ""
				}
			}
		}
		return ts, nil
	})
}

// MoveTemplate sets the canvas position of a template.
func (e *Editor) MoveTemplate(id string, pos domain.Position) error {
	return e.mutate(func(ts []domain.Template) ([]domain.Template, error) {
		i, err := find(ts, id)
		if err != nil {
			return nil, err
		}
		ts[i].Position = pos
		return ts, nil
	})
}

// AddRoute appends a route to a template and returns its index.
// A target that does not exist is rejected.
func (e *Editor) AddRoute(id string, r domain.Route) (int, error) {
	index := -1
	err := e.mutate(func(ts []domain.Template) ([]domain.Template, error) {
		i, err := find(ts, id)
		if err != nil {
			return nil, err
		}
		if r.ConnectedTo != "" {
			if _, err := find(ts, r.ConnectedTo); err != nil {
				return nil, err
			}
		}
		ts[i].Routes = append(ts[i].Routes, r)
		index = len(ts[i].Routes) - 1
		return ts, nil
	})
	return index, err
}

// UpdateRoute replaces the pattern and regex flag of a route. Its target is kept.
func (e *Editor) UpdateRoute(id string, index int, r domain.Route) error {
	return e.mutate(func(ts []domain.Template) ([]domain.Template, error) {
		i, err := findRoute(ts, id, index)
		if err != nil {
			return nil, err
		}
		route := &ts[i].Routes[index]
		route.Pattern = r.Pattern
		route.IsRegex = r.IsRegex
		return ts, nil
	})
}

// DeleteRoute removes a route. Edges of later routes shift down by one index.
func (e *Editor) DeleteRoute(id string, index int) error {
	return e.mutate(func(ts []domain.Template) ([]domain.Template, error) {
		i, err := findRoute(ts, id, index)
		if err != nil {
			return nil, err
		}
		ts[i].Routes = append(ts[i].Routes[:index], ts[i].Routes[index+1:]...)
		return ts, nil
	})
}

// Connect points route index of source at target and returns the new edge.
func (e *Editor) Connect(source string, index int, target string) (Edge, error) {
	var edge Edge
	err := e.mutate(func(ts []domain.Template) ([]domain.Template, error) {
		i, err := findRoute(ts, source, index)
		if err != nil {
			return nil, err
		}
		if _, err := find(ts, target); err != nil {
			return nil, err
		}
		ts[i].Routes[index].ConnectedTo = target
		edge = Edge{
			ID:           EdgeID(source, index, target),
			Source:       source,
			SourceHandle: Handle(index),
			Target:       target,
			Label:        Label(ts[i].Routes[index]),
		}
		return ts, nil
	})
	return edge, err
}

// DeleteEdge disconnects the route that the edge was drawn from.
// The route itself is kept.
func (e *Editor) DeleteEdge(edgeID string) error {
	return e.mutate(func(ts []domain.Template) ([]domain.Template, error) {
		for _, edge := range Project(ts).Edges {
			if edge.ID != edgeID {
				continue
			}
			index, _ := HandleIndex(edge.SourceHandle)
			i := indexOf(ts, edge.Source)
			ts[i].Routes[index].ConnectedTo = ""
			return ts, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrEdgeNotFound, edgeID)
	})
}

// AddHook attaches a hook to a template.
func (e *Editor) AddHook(id string, h domain.Hook) error {
	return e.mutate(func(ts []domain.Template) ([]domain.Template, error) {
		i, err := find(ts, id)
		if err != nil {
			return nil, err
		}
		ts[i].Hooks = append(ts[i].Hooks, h)
		return ts, nil
	})
}

// DeleteHook removes hook index from a template.
func (e *Editor) DeleteHook(id string, index int) error {
	return e.mutate(func(ts []domain.Template) ([]domain.Template, error) {
		i, err := find(ts, id)
		if err != nil {
			return nil, err
		}
		if index < 0 || index >= len(ts[i].Hooks) {
			return nil, fmt.Errorf("%w: %s[%d]", ErrHookNotFound, id, index)
		}
		ts[i].Hooks = append(ts[i].Hooks[:index], ts[i].Hooks[index+1:]...)
		return ts, nil
	})
}

// UpdateSettings replaces the settings of a template.
// Start and report flags stay exclusive across the chatbot.
func (e *Editor) UpdateSettings(id string, s domain.Settings) error {
	return e.mutate(func(ts []domain.Template) ([]domain.Template, error) {
		i, err := find(ts, id)
		if err != nil {
			return nil, err
		}
		ts[i].Settings = s
		exclusive(ts, i)
		return ts, nil
	})
}

// SetStart marks or unmarks a template as the entry point of the chatbot.
// Marking clears the template's report flag and the start flag of every other template.
func (e *Editor) SetStart(id string, on bool) error {
	return e.mutate(func(ts []domain.Template) ([]domain.Template, error) {
		i, err := find(ts, id)
		if err != nil {
			return nil, err
		}
		ts[i].Settings.IsStart = on
		if on {
			ts[i].Settings.IsReport = false
		}
		exclusive(ts, i)
		return ts, nil
	})
}

// SetReport marks or unmarks a template as the report template.
// Marking clears the template's start flag and the report flag of every other template.
func (e *Editor) SetReport(id string, on bool) error {
	return e.mutate(func(ts []domain.Template) ([]domain.Template, error) {
		i, err := find(ts, id)
		if err != nil {
			return nil, err
		}
		ts[i].Settings.IsReport = on
		if on {
			ts[i].Settings.IsStart = false
		}
		exclusive(ts, i)
		return ts, nil
	})
}

// Import replaces the canvas with an exported chatbot file (JSON or YAML).
// On error the canvas and history are left unchanged.
func (e *Editor) Import(data []byte) error {
	file, err := codec.DecodeChatbotFile(data)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	err = e.mutate(func([]domain.Template) ([]domain.Template, error) {
		return cloneTemplates(file.Templates), nil
	})
	if err != nil {
		return err
	}
	e.version = file.Version
	return nil
}

// Export writes the current chatbot as a JSON export file.
func (e *Editor) Export() ([]byte, error) {
	return e.ExportAs("")
}

// ExportAs writes the current chatbot in the encoding matching filename.
func (e *Editor) ExportAs(filename string) ([]byte, error) {
	return codec.EncodeChatbotFile(filename, e.Chatbot(), e.version)
}

// Undo restores the previous snapshot. It reports false when there is none.
func (e *Editor) Undo() bool {
	s, ok := e.history.undo()
	if ok {
		e.templates = s
	}
	return ok
}

// Redo re-applies the snapshot undone last. It reports false when there is none.
func (e *Editor) Redo() bool {
	s, ok := e.history.redo()
	if ok {
		e.templates = s
	}
	return ok
}

// CanUndo reports whether Undo has a snapshot to restore.
func (e *Editor) CanUndo() bool { return e.history.canUndo() }

// CanRedo reports whether Redo has an undone snapshot to reapply.
func (e *Editor) CanRedo() bool { return e.history.canRedo() }

type editorJSON struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Canvas
}

// MarshalJSON encodes the chatbot name, version and canvas.
func (e *Editor) MarshalJSON() ([]byte, error) {
	return json.Marshal(editorJSON{Name: e.name, Version: e.version, Canvas: e.Canvas()})
}

// UnmarshalJSON loads a canvas written by MarshalJSON and resets history.
// Node positions win over the positions stored in node data.
func (e *Editor) UnmarshalJSON(data []byte) error {
	var doc editorJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: %v", codec.ErrMalformed, err)
	}
	templates := make([]domain.Template, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		t := n.Data
		if t.ID == "" {
			t.ID = n.ID
		}
		t.Position = n.Position
		templates = append(templates, t)
	}
	limit := 0
	if e.history != nil {
		limit = e.history.limit
	}
	e.name = doc.Name
	e.version = doc.Version
	if e.version == "" {
		e.version = domain.DefaultVersion
	}
	e.templates = templates
	e.history = newHistory(templates, limit)
	return nil
}

func indexOf(ts []domain.Template, id string) int {
	for i := range ts {
		if ts[i].ID == id {
			return i
		}
	}
	return -1
}

func find(ts []domain.Template, id string) (int, error) {
	i := indexOf(ts, id)
	if i < 0 {
		return -1, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}
	return i, nil
}

func findRoute(ts []domain.Template, id string, index int) (int, error) {
	i, err := find(ts, id)
	if err != nil {
		return -1, err
	}
	if index < 0 || index >= len(ts[i].Routes) {
		return -1, fmt.Errorf("%w: %s[%d]", ErrRouteNotFound, id, index)
	}
	return i, nil
}

// exclusive clears start and report flags on every template other than ts[keep]
// when ts[keep] holds them. A template holding both keeps start.
func exclusive(ts []domain.Template, keep int) {
	s := &ts[keep].Settings
	if s.IsStart && s.IsReport {
		s.IsReport = false
	}
	for j := range ts {
		if j == keep {
			continue
		}
		if s.IsStart {
			ts[j].Settings.IsStart = false
		}
		if s.IsReport {
			ts[j].Settings.IsReport = false
		}
	}
}
