package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Channels a template may target.
var Channels = []string{"email", "sms"}

// LoadRegistry reads a template registry file. Channels missing from the file
// keep their built-in template.
func LoadRegistry(path string) (*TemplateRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg TemplateRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parse template registry %s: %w", path, err)
	}
	if err := reg.Validate(); err != nil {
		return nil, fmt.Errorf("template registry %s: %w", path, err)
	}

	for _, d := range Default().Templates {
		if _, ok := reg.Lookup(d.Channel); !ok {
			reg.Templates = append(reg.Templates, d)
		}
	}
	return &reg, nil
}

// Default returns the built-in top-match templates.
func Default() *TemplateRegistry {
	return &TemplateRegistry{
		Version: "1",
		Templates: []Template{
			{
				ID:      "top-match-email",
				Channel: "email",
				Subject: "You are a top match for {{requirementTitle}}",
				Body: "Hello {{trainerName}},\n\nYou were shortlisted for \"{{requirementTitle}}\" " +
					"with a match score of {{score}}.\n\n{{explanation}}",
			},
			{
				ID:      "top-match-sms",
				Channel: "sms",
				Body:    "Top match for {{requirementTitle}} (score {{score}}). Check your inbox for details.",
			},
		},
	}
}

// Validate checks ids are unique and every template has a known channel and a body.
func (r *TemplateRegistry) Validate() error {
	ids := make(map[string]bool, len(r.Templates))
	for _, t := range r.Templates {
		if t.ID == "" {
			return fmt.Errorf("template missing required field: id")
		}
		if ids[t.ID] {
			return fmt.Errorf("duplicate template id: %s", t.ID)
		}
		ids[t.ID] = true

		if !knownChannel(t.Channel) {
			return fmt.Errorf("template %s: unknown channel %q", t.ID, t.Channel)
		}
		if t.Body == "" {
			return fmt.Errorf("template %s: body is required", t.ID)
		}
	}
	return nil
}

// Save writes the registry as indented JSON, creating parent directories.
func (r *TemplateRegistry) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

// Find returns the template with the given id.
func (r *TemplateRegistry) Find(id string) (*Template, bool) {
	for i := range r.Templates {
		if r.Templates[i].ID == id {
			return &r.Templates[i], true
		}
	}
	return nil, false
}

func knownChannel(channel string) bool {
	for _, c := range Channels {
		if strings.EqualFold(c, channel) {
			return true
		}
	}
	return false
}

// Lookup returns the first template registered for channel.
func (r *TemplateRegistry) Lookup(channel string) (Template, bool) {
	for _, t := range r.Templates {
		if strings.EqualFold(t.Channel, channel) {
			return t, true
		}
	}
	return Template{}, false
}

// Render replaces every {{key}} in tmpl with data[key]. Unknown placeholders
// render as empty strings.
func Render(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		value := ""
		switch val := v.(type) {
		case string:
			value = val
		case float64:
			value = fmt.Sprintf("%.2f", val)
		case nil:
		default:
			value = fmt.Sprintf("%v", val)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}
