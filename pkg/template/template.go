// Package template renders automation message text (notification bodies, task titles,
// email subjects) against the target entity.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/dealflow/pkg/models"
)

// NeedsTemplating reports whether input contains template actions.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

// RenderMessage renders input with the entity snapshot under .entity and any extra values
// at the top level. Plain strings are returned untouched.
func RenderMessage(input string, entity models.EntitySnapshot, extra map[string]any) (string, error) {
	if !NeedsTemplating(input) {
		return input, nil
	}

	data := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		data[k] = v
	}

	data["entity"] = map[string]any(entity)

	return Render(input, data)
}

// Render executes a text/template. Missing keys render as empty strings.
func Render(templateStr string, data any) (string, error) {
	tmpl, err := template.
		New("message").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"default": func(fallback, value any) any {
				if value == nil || value == "" {
					return fallback
				}

				return value
			},
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}
