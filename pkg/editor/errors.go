package editor

import "errors"

var (
	ErrTemplateNotFound  = errors.New("template not found")
	ErrDuplicateTemplate = errors.New("template id already exists")
	ErrRouteNotFound     = errors.New("route not found")
	ErrEdgeNotFound      = errors.New("edge not found")
	ErrHookNotFound      = errors.New("hook not found")
)
