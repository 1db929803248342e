package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"path/filepath"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templateFS embed.FS

type TemplateName string

const (
	TemplateRecommendation   TemplateName = "recommendation.yaml"
	TemplateCommentSentiment TemplateName = "comment_sentiment.yaml"
)

// Prompt is a rendered template: an optional system instruction and the user
// message.
type Prompt struct {
	System string
	User   string
}

type templateFile struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

type compiled struct {
	system *template.Template
	user   *template.Template
}

type PromptBuilder struct {
	mu        sync.RWMutex
	templates map[TemplateName]*compiled
}

var (
	defaultBuilderOnce sync.Once
	defaultBuilder     *PromptBuilder
)

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{
		templates: make(map[TemplateName]*compiled),
	}
}

func DefaultPromptBuilder() *PromptBuilder {
	defaultBuilderOnce.Do(func() {
		defaultBuilder = NewPromptBuilder()
	})
	return defaultBuilder
}

func (pb *PromptBuilder) Render(name TemplateName, data any) (Prompt, error) {
	tmpl, err := pb.getTemplate(name)
	if err != nil {
		return Prompt{}, err
	}

	var out Prompt
	if out.System, err = execute(tmpl.system, data); err != nil {
		return Prompt{}, fmt.Errorf("render prompt %s: %w", name, err)
	}
	if out.User, err = execute(tmpl.user, data); err != nil {
		return Prompt{}, fmt.Errorf("render prompt %s: %w", name, err)
	}
	return out, nil
}

func execute(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (pb *PromptBuilder) getTemplate(name TemplateName) (*compiled, error) {
	pb.mu.RLock()
	if tmpl, ok := pb.templates[name]; ok {
		pb.mu.RUnlock()
		return tmpl, nil
	}
	pb.mu.RUnlock()

	filename := filepath.ToSlash(filepath.Join("templates", string(name)))
	content, err := templateFS.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("load prompt template %s: %w", name, err)
	}

	var file templateFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, fmt.Errorf("decode prompt template %s: %w", name, err)
	}

	system, err := template.New(string(name) + ".system").Parse(file.System)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}
	user, err := template.New(string(name) + ".user").Parse(file.User)
	if err != nil {
		return nil, fmt.Errorf("parse prompt template %s: %w", name, err)
	}

	tmpl := &compiled{system: system, user: user}

	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.templates[name] = tmpl

	return tmpl, nil
}
