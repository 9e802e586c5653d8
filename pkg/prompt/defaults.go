package prompt

import (
	"embed"
	"strings"
)

// Built-in template names.
const (
	SystemTemplate  = "system.tmpl"
	PrimingTemplate = "priming.tmpl"
	ContextTemplate = "context.tmpl"
)

//go:embed defaults/*.tmpl
var defaults embed.FS

// Load returns the template at path, or the built-in template name when path
// is empty.
func Load(path, name string) (*Template, error) {
	if strings.TrimSpace(path) != "" {
		return NewTemplate(path, Funcs())
	}
	return NewTemplateFS(defaults, "defaults/"+name, Funcs())
}
