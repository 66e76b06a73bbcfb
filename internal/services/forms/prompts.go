package forms

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// Prompts are the two instructions sent with every voice message.
type Prompts struct {
	Title   string `yaml:"title"`
	Content string `yaml:"content"`
}

// LoadPrompts reads a prompt catalogue from path, or the built-in one when
// path is empty.
func LoadPrompts(path string) (Prompts, error) {
	data := defaultPrompts
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return Prompts{}, fmt.Errorf("reading prompts: %w", err)
		}
	}
	return parsePrompts(data)
}

func parsePrompts(data []byte) (Prompts, error) {
	var p Prompts
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Prompts{}, fmt.Errorf("parsing prompts: %w", err)
	}
	p.Title = strings.TrimSpace(p.Title)
	p.Content = strings.TrimSpace(p.Content)
	if p.Title == "" || p.Content == "" {
		return Prompts{}, fmt.Errorf("prompts: title and content are both required")
	}
	return p, nil
}
