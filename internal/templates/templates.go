// Package templates manages translation prompt templates: the built-in
// tones and any custom templates created at runtime.
package templates

import (
	"fmt"
	"maps"
	"net/http"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/haowjy/luminote-go"
)

// Field limits for custom templates.
const (
	MaxNameLength        = 100
	MaxDescriptionLength = 500
)

// Template is a translation prompt with {{.variable}} placeholders.
type Template struct {
	ID          string            `json:"template_id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Text        string            `json:"prompt_template"`
	Variables   map[string]string `json:"variables"` // name -> description
	BuiltIn     bool              `json:"built_in"`
	CreatedAt   time.Time         `json:"created_at"`
	UsageCount  int64             `json:"usage_count"`

	parsed *template.Template
}

// Engine stores templates and renders them. It is safe for concurrent use.
type Engine struct {
	mu        sync.RWMutex
	templates map[string]*Template
	order     []string // creation order
	now       func() time.Time
}

// New returns an Engine holding the built-in templates.
func New() *Engine {
	e := &Engine{
		templates: make(map[string]*Template),
		now:       time.Now,
	}
	for _, b := range builtIns {
		t := &Template{
			ID:          b.id,
			Name:        b.name,
			Description: b.description,
			Text:        b.text,
			Variables:   maps.Clone(builtInVariables),
			BuiltIn:     true,
			CreatedAt:   e.now().UTC(),
			parsed:      template.Must(luminote.ParsePrompt(b.id, b.text)),
		}
		e.add(t)
	}
	return e
}

func (e *Engine) add(t *Template) {
	e.templates[t.ID] = t
	e.order = append(e.order, t.ID)
}

// Create validates and stores a custom template.
func (e *Engine) Create(name, description, text string, variables map[string]string) (Template, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return Template{}, luminote.NewValidationError("name", name, "template name must not be empty")
	case len(name) > MaxNameLength:
		return Template{}, luminote.NewValidationError("name", name,
			fmt.Sprintf("template name must be at most %d characters", MaxNameLength))
	case len(description) > MaxDescriptionLength:
		return Template{}, luminote.NewValidationError("description", description,
			fmt.Sprintf("template description must be at most %d characters", MaxDescriptionLength))
	case strings.TrimSpace(text) == "":
		return Template{}, luminote.NewValidationError("prompt_template", text, "prompt template must not be empty")
	}

	id := uuid.NewString()
	parsed, err := luminote.ParsePrompt(id, text)
	if err != nil {
		return Template{}, &luminote.TranslationError{
			Code:       luminote.ErrorCodeInvalidTemplateSyntax,
			Message:    fmt.Sprintf("Invalid template syntax: %v", err),
			StatusCode: http.StatusBadRequest,
			Details:    map[string]any{"syntax_error": err.Error()},
			Err:        luminote.ErrInvalidRequest,
		}
	}

	if variables == nil {
		variables = map[string]string{}
	}
	t := &Template{
		ID:          id,
		Name:        name,
		Description: description,
		Text:        text,
		Variables:   maps.Clone(variables),
		CreatedAt:   e.now().UTC(),
		parsed:      parsed,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.add(t)
	return t.snapshot(), nil
}

// List returns templates in creation order, built-ins first.
func (e *Engine) List(includeBuiltIn bool) []Template {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Template, 0, len(e.order))
	for _, id := range e.order {
		t := e.templates[id]
		if t.BuiltIn && !includeBuiltIn {
			continue
		}
		out = append(out, t.snapshot())
	}
	return out
}

// Get returns the template with id.
func (e *Engine) Get(id string) (Template, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	t, ok := e.templates[id]
	if !ok {
		return Template{}, false
	}
	return t.snapshot(), true
}

// Has reports whether a template with id exists.
func (e *Engine) Has(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.templates[id]
	return ok
}

// Delete removes a custom template. It returns false if no template has id.
// Built-in templates cannot be deleted.
func (e *Engine) Delete(id string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	t, ok := e.templates[id]
	if !ok {
		return false, nil
	}
	if t.BuiltIn {
		return false, &luminote.TranslationError{
			Code:       luminote.ErrorCodeCannotDeleteBuiltIn,
			Message:    fmt.Sprintf("Cannot delete built-in template: %s", id),
			StatusCode: http.StatusBadRequest,
			Details:    map[string]any{"template_id": id},
			Err:        luminote.ErrInvalidRequest,
		}
	}

	delete(e.templates, id)
	for i, v := range e.order {
		if v == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return true, nil
}

// Render fills the template's placeholders. Declared variables that vars
// leaves out render as empty strings; extra entries in vars are passed
// through. It returns the prompt and the variables it was rendered with.
func (e *Engine) Render(id string, vars map[string]string) (string, map[string]string, error) {
	e.mu.Lock()
	t, ok := e.templates[id]
	if ok {
		t.UsageCount++
	}
	e.mu.Unlock()
	if !ok {
		return "", nil, NotFoundError(id)
	}

	used := make(map[string]string, len(t.Variables)+len(vars))
	for name := range t.Variables {
		used[name] = ""
	}
	maps.Copy(used, vars)

	out, err := luminote.RenderPrompt(t.parsed, used)
	if err != nil {
		if strings.Contains(err.Error(), "map has no entry for key") {
			return "", nil, &luminote.TranslationError{
				Code:       luminote.ErrorCodeUndefinedTemplateVar,
				Message:    fmt.Sprintf("Undefined variable in template: %v", err),
				StatusCode: http.StatusBadRequest,
				Details:    map[string]any{"template_id": id, "error": err.Error()},
				Err:        luminote.ErrInvalidRequest,
			}
		}
		return "", nil, &luminote.TranslationError{
			Code:       luminote.ErrorCodeTemplateRendering,
			Message:    fmt.Sprintf("Template rendering failed: %v", err),
			StatusCode: http.StatusInternalServerError,
			Details:    map[string]any{"template_id": id, "error": err.Error()},
			Err:        err,
		}
	}
	return out, used, nil
}

// NotFoundError reports an unknown template id.
func NotFoundError(id string) *luminote.TranslationError {
	return &luminote.TranslationError{
		Code:       luminote.ErrorCodeTemplateNotFound,
		Message:    fmt.Sprintf("Template not found: %s", id),
		StatusCode: http.StatusNotFound,
		Details:    map[string]any{"template_id": id},
		Err:        luminote.ErrInvalidRequest,
	}
}

func (t *Template) snapshot() Template {
	c := *t
	c.Variables = maps.Clone(t.Variables)
	return c
}
