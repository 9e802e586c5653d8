package prompt

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"
	"text/template"
)

// Template wraps a text/template loaded from disk or an fs.FS.
type Template struct {
	path  string
	fsys  fs.FS
	funcs template.FuncMap

	mu   sync.RWMutex
	tmpl *template.Template
	hash string
}

// NewTemplate parses the template at path using the provided template functions.
func NewTemplate(path string, funcs template.FuncMap) (*Template, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("prompt template path is empty")
	}
	return newTemplate(nil, path, funcs)
}

// NewTemplateFS parses name from fsys.
func NewTemplateFS(fsys fs.FS, name string, funcs template.FuncMap) (*Template, error) {
	if fsys == nil {
		return nil, fmt.Errorf("prompt template fs is nil")
	}
	return newTemplate(fsys, name, funcs)
}

func newTemplate(fsys fs.FS, name string, funcs template.FuncMap) (*Template, error) {
	t := &Template{
		path:  name,
		fsys:  fsys,
		funcs: funcs,
	}
	if err := t.reload(); err != nil {
		return nil, err
	}
	return t, nil
}

// Render executes the template with the provided data and returns the rendered string.
func (t *Template) Render(data any) (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var buf bytes.Buffer
	if err := t.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute prompt template %q: %w", t.path, err)
	}
	return buf.String(), nil
}

// Reload reparses the underlying template. This can be used when files change.
func (t *Template) Reload() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reload()
}

func (t *Template) reload() error {
	var (
		data []byte
		err  error
	)
	if t.fsys != nil {
		data, err = fs.ReadFile(t.fsys, t.path)
	} else {
		data, err = os.ReadFile(t.path)
	}
	if err != nil {
		return fmt.Errorf("read prompt template %q: %w", t.path, err)
	}

	tmpl := template.New(path.Base(t.path)).Option("missingkey=error")
	if len(t.funcs) > 0 {
		tmpl = tmpl.Funcs(t.funcs)
	}
	if _, err := tmpl.Parse(string(data)); err != nil {
		return fmt.Errorf("parse prompt template %q: %w", t.path, err)
	}
	t.tmpl = tmpl
	t.hash = Digest(data)
	return nil
}

// Digest returns the sha256 hash of the template content.
func (t *Template) Digest() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.hash
}

// Path returns where the template was read from.
func (t *Template) Path() string { return t.path }
