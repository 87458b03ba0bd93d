// Package templates renders stage prompts and the report skeleton from embedded templates.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed *.tpl.md
var templateFS embed.FS

// ToolOutput is the output of one tool run before the model call.
type ToolOutput struct {
	Name        string
	Description string
	Content     string
	Truncated   bool
}

// PredecessorOutput is an earlier stage's result handed to a later stage.
type PredecessorOutput struct {
	StageID string
	Title   string
	Content string
}

// Section is one level-2 section of the report.
type Section struct {
	Title string
	Body  string
}

// TemplateData holds the data for template rendering. Stage templates use the persona and
// task fields; the report template uses Title, Meta, Summary and Sections.
type TemplateData struct {
	// Stage persona
	Role      string
	Goal      string
	Backstory string
	// Stage task
	Instructions   string
	ExpectedOutput string
	DatasetName    string
	ToolOutputs    []ToolOutput
	Facts          string
	Predecessors   []PredecessorOutput
	// Report
	Title    string
	Meta     string
	Summary  string
	Sections []Section
}

// Template names a template file.
type Template string

const (
	// StageSystemTemplate is the system prompt carrying a stage's persona.
	StageSystemTemplate Template = "stage_system.tpl.md"
	// StageUserTemplate is the user prompt carrying a stage's task and inputs.
	StageUserTemplate Template = "stage_user.tpl.md"
	// ReportTemplate is the markdown report skeleton.
	ReportTemplate Template = "report.tpl.md"
)

// Renderer handles template rendering.
type Renderer struct {
	templates map[Template]*template.Template
}

// NewRenderer creates a new template renderer with every embedded template parsed.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[Template]*template.Template),
	}

	for _, name := range []Template{StageSystemTemplate, StageUserTemplate, ReportTemplate} {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New(string(name)).Funcs(template.FuncMap{
			"trim": strings.TrimSpace,
		}).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// MustNewRenderer is NewRenderer for package-level initialization; the templates are
// embedded, so a failure is a build defect.
func MustNewRenderer() *Renderer {
	r, err := NewRenderer()
	if err != nil {
		panic(err)
	}
	return r
}

// Render renders the specified template with the given data. The result has no trailing
// whitespace beyond a single newline.
func (r *Renderer) Render(templateName Template, data *TemplateData) (string, error) {
	tmpl, exists := r.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	return strings.TrimRight(buf.String(), " \n") + "\n", nil
}
