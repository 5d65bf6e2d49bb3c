package editor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/wabuilder/pkg/domain"
)

// Node is a template placed on the canvas.
type Node struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Position domain.Position `json:"position"`
	Data     domain.Template `json:"data"`
}

// Edge is a connected route, drawn from a template's route handle to its target.
type Edge struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	SourceHandle string `json:"sourceHandle"`
	Target       string `json:"target"`
	Label        string `json:"label"`
}

// Canvas is the full graph projected from a list of templates.
type Canvas struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Project converts templates into canvas nodes and edges.
// Routes without a target produce no edge.
func Project(templates []domain.Template) Canvas {
	c := Canvas{
		Nodes: make([]Node, 0, len(templates)),
		Edges: []Edge{},
	}
	for _, t := range templates {
		c.Nodes = append(c.Nodes, Node{
			ID:       t.ID,
			Type:     t.Type,
			Position: t.Position,
			Data:     t.Clone(),
		})
		for i, r := range t.Routes {
			if r.ConnectedTo == "" {
				continue
			}
			c.Edges = append(c.Edges, Edge{
				ID:           EdgeID(t.ID, i, r.ConnectedTo),
				Source:       t.ID,
				SourceHandle: Handle(i),
				Target:       r.ConnectedTo,
				Label:        Label(r),
			})
		}
	}
	return c
}

// edgeIDEscaper keeps '-' reserved for the separators of an edge id.
var edgeIDEscaper = strings.NewReplacer("%", "%25", "-", "%2D")

// EdgeID returns the identifier of the edge drawn for route index of source.
// Dashes inside template ids are escaped, so distinct edges never share an id.
func EdgeID(source string, index int, target string) string {
	return fmt.Sprintf("e-%s-%d-%s", edgeIDEscaper.Replace(source), index, edgeIDEscaper.Replace(target))
}

// Handle returns the source handle name of route index.
func Handle(index int) string {
	return "route-" + strconv.Itoa(index)
}

// HandleIndex parses a source handle back into a route index.
func HandleIndex(handle string) (int, bool) {
	s, ok := strings.CutPrefix(handle, "route-")
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, false
	}
	return i, true
}

// Label returns the edge label of a route. Regex routes are wrapped in slashes.
func Label(r domain.Route) string {
	if r.IsRegex {
		return "/" + r.Pattern + "/"
	}
	return r.Pattern
}
