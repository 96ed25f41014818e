package content

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Task names used in the prompt catalog and the [tasks] preferences.
const (
	TaskAnalysis     = "analysis"
	TaskSegmentation = "segmentation"
	TaskCopyright    = "copyright"
	TaskSensitive    = "sensitive"
)

//go:embed prompts.yaml
var defaultCatalog []byte

// Prompt is one catalog entry.
type Prompt struct {
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Template    string  `yaml:"template"`

	tmpl *template.Template
}

// Catalog maps task names to prompts.
type Catalog map[string]*Prompt

var templateFuncs = template.FuncMap{"join": strings.Join}

// ParseCatalog decodes a YAML catalog and compiles its templates.
func ParseCatalog(data []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("parse prompt catalog: %w", err)
	}
	for name, prompt := range catalog {
		if prompt == nil || strings.TrimSpace(prompt.Template) == "" {
			return nil, fmt.Errorf("prompt %q has no template", name)
		}
		tmpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(prompt.Template)
		if err != nil {
			return nil, fmt.Errorf("compile prompt %q: %w", name, err)
		}
		prompt.tmpl = tmpl
	}
	return catalog, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() Catalog {
	catalog, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return catalog
}

// Render executes the named prompt with data.
func (c Catalog) Render(name string, data any) (*Prompt, string, error) {
	prompt, ok := c[name]
	if !ok {
		return nil, "", fmt.Errorf("prompt %q not in catalog", name)
	}
	var buf bytes.Buffer
	if err := prompt.tmpl.Execute(&buf, data); err != nil {
		return nil, "", fmt.Errorf("render prompt %q: %w", name, err)
	}
	return prompt, strings.TrimSpace(buf.String()), nil
}
