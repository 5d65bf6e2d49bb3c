package domain

// Flow is the flow document persisted in a configuration record's flow_json field.
type Flow struct {
	// Format is the explicit shape discriminant. Always FormatMulti once decoded.
	Format   string    `json:"format" yaml:"format"`
	Version  string    `json:"version" yaml:"version"`
	Chatbots []Chatbot `json:"chatbots" yaml:"chatbots"`
}

// Chatbot is one named set of templates inside a flow document.
type Chatbot struct {
	Name      string     `json:"name" yaml:"name"`
	Templates []Template `json:"templates" yaml:"templates"`
}

// Template is one conversational step (a node on the editor canvas).
type Template struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`

	// Message holds the raw payload; its shape depends on Type.
	// Use DecodeMessage for a typed view.
	Message any `json:"message,omitempty" yaml:"message,omitempty"`

	Routes   []Route  `json:"routes" yaml:"routes"`
	Hooks    []Hook   `json:"hooks" yaml:"hooks"`
	Settings Settings `json:"settings" yaml:"settings"`
	Position Position `json:"position" yaml:"position"`
}

// Route is a pattern-matched transition out of a template.
type Route struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	IsRegex bool   `json:"isRegex" yaml:"isRegex"`

	// ConnectedTo is the target template ID; empty when the route is not connected.
	ConnectedTo string `json:"connectedTo,omitempty" yaml:"connectedTo,omitempty"`
}

// Hook references server-side logic by dotted path.
type Hook struct {
	Type   string         `json:"type" yaml:"type"`
	Path   string         `json:"path" yaml:"path"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// Settings controls runtime behavior of a template.
type Settings struct {
	Authenticated bool `json:"authenticated,omitempty" yaml:"authenticated,omitempty"`
	Typing        bool `json:"typing,omitempty" yaml:"typing,omitempty"`
	Ack           bool `json:"ack,omitempty" yaml:"ack,omitempty"`
	Session       bool `json:"session,omitempty" yaml:"session,omitempty"`
	IsStart       bool `json:"isStart,omitempty" yaml:"isStart,omitempty"`
	IsReport      bool `json:"isReport,omitempty" yaml:"isReport,omitempty"`
	Reply         bool `json:"reply,omitempty" yaml:"reply,omitempty"`

	// Trigger is a regex matched against raw input to enter the flow at this template.
	Trigger string `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	// Prop names the user property the reply is saved under.
	Prop  string `json:"prop,omitempty" yaml:"prop,omitempty"`
	React string `json:"react,omitempty" yaml:"react,omitempty"`
	// Delay before sending, in seconds.
	Delay int `json:"delay,omitempty" yaml:"delay,omitempty"`

	MessageLevel string `json:"message_level,omitempty" yaml:"message_level,omitempty"`
	NextLevel    string `json:"next_level,omitempty" yaml:"next_level,omitempty"`
}

// Position is the 2D canvas position of a template.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Clone returns a deep copy of the template.
func (t Template) Clone() Template {
	c := t
	c.Message = cloneValue(t.Message)
	if t.Routes != nil {
		c.Routes = make([]Route, len(t.Routes))
		copy(c.Routes, t.Routes)
	}
	if t.Hooks != nil {
		c.Hooks = make([]Hook, len(t.Hooks))
		for i, h := range t.Hooks {
			c.Hooks[i] = h
			if h.Params != nil {
				c.Hooks[i].Params, _ = cloneValue(h.Params).(map[string]any)
			}
		}
	}
	return c
}

// Clone returns a deep copy of the chatbot.
func (c Chatbot) Clone() Chatbot {
	out := Chatbot{Name: c.Name}
	if c.Templates != nil {
		out.Templates = make([]Template, len(c.Templates))
		for i, t := range c.Templates {
			out.Templates[i] = t.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the flow.
func (f *Flow) Clone() *Flow {
	if f == nil {
		return nil
	}
	out := &Flow{Format: f.Format, Version: f.Version}
	if f.Chatbots != nil {
		out.Chatbots = make([]Chatbot, len(f.Chatbots))
		for i, c := range f.Chatbots {
			out.Chatbots[i] = c.Clone()
		}
	}
	return out
}

// Template returns the template with the given ID.
func (c *Chatbot) Template(id string) (*Template, bool) {
	for i := range c.Templates {
		if c.Templates[i].ID == id {
			return &c.Templates[i], true
		}
	}
	return nil, false
}

// Start returns the template marked as start, if any.
func (c *Chatbot) Start() (*Template, bool) {
	for i := range c.Templates {
		if c.Templates[i].Settings.IsStart {
			return &c.Templates[i], true
		}
	}
	return nil, false
}

// Report returns the template marked as report, if any.
func (c *Chatbot) Report() (*Template, bool) {
	for i := range c.Templates {
		if c.Templates[i].Settings.IsReport {
			return &c.Templates[i], true
		}
	}
	return nil, false
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(val))
		for k, item := range val {
			m[k] = cloneValue(item)
		}
		return m
	case []any:
		s := make([]any, len(val))
		for i, item := range val {
			s[i] = cloneValue(item)
		}
		return s
	case []string:
		s := make([]string, len(val))
		copy(s, val)
		return s
	default:
		return v
	}
}
