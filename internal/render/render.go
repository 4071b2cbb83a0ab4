// Package render substitutes {{name}} placeholders in message templates.
package render

import (
	"regexp"
	"strings"
)

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Vars maps placeholder names to their values. Lookups are case-insensitive.
type Vars map[string]string

// Render replaces every {{name}} token in tmpl with its value from vars.
// Tokens with no value are replaced with an empty string.
func Render(tmpl string, vars Vars) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}

	normalized := make(map[string]string, len(vars))
	for k, v := range vars {
		normalized[strings.ToLower(k)] = v
	}

	return placeholder.ReplaceAllStringFunc(tmpl, func(token string) string {
		m := placeholder.FindStringSubmatch(token)
		return normalized[strings.ToLower(m[1])]
	})
}
