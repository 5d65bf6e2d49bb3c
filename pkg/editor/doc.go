// Package editor implements the graph model behind the flow editor canvas.
//
// An Editor holds the templates of one chatbot. The canvas (nodes and edges) is
// a projection of those templates: each template is a node, and each route with
// a target is an edge. Every successful mutation records a deep-copied snapshot
// in a linear history so that Undo and Redo can move between them.
//
// An Editor is owned by a single caller and is not safe for concurrent use.
package editor
