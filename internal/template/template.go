// Package template personalizes a message template with the values of one
// contact row. Placeholders have the form {column}; only declared variables
// are substituted and there is no escape syntax for literal braces.
package template

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"campaignflow/internal/contacts"
)

var placeholderRe = regexp.MustCompile(`\{([^}]+)\}`)

// Render replaces every {v} for v in variables with row[v], or with the empty
// string when the cell is absent or null. Placeholders of undeclared names are
// left untouched. Substitution is a single pass, so values containing
// placeholder text are never expanded again.
func Render(tmpl string, row contacts.Row, variables []string) string {
	if len(variables) == 0 {
		return tmpl
	}

	pairs := make([]string, 0, 2*len(variables))
	for _, name := range variables {
		value, _ := row.Value(name)
		pairs = append(pairs, "{"+name+"}", value)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Load reads a template file. A single trailing newline, as left by most
// editors, is dropped.
func Load(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read template file: %w", err)
	}
	s := strings.TrimSuffix(string(content), "\n")
	return strings.TrimSuffix(s, "\r"), nil
}

// Variables lists the placeholder names found in tmpl in order of first
// appearance.
func Variables(tmpl string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Validate reports unbalanced braces in tmpl and duplicate names in
// variables. Render tolerates both; callers use this to warn the user.
func Validate(tmpl string, variables []string) error {
	var problems []string

	depth := 0
	for i, r := range tmpl {
		switch r {
		case '{':
			if depth > 0 {
				problems = append(problems, fmt.Sprintf("nested '{' at offset %d", i))
			}
			depth++
		case '}':
			if depth == 0 {
				problems = append(problems, fmt.Sprintf("unmatched '}' at offset %d", i))
				continue
			}
			depth--
		}
	}
	if depth > 0 {
		problems = append(problems, "unclosed '{'")
	}

	seen := make(map[string]bool, len(variables))
	for _, v := range variables {
		if seen[v] {
			problems = append(problems, fmt.Sprintf("duplicate variable %q", v))
		}
		seen[v] = true
	}

	if len(problems) > 0 {
		return fmt.Errorf("template: %s", strings.Join(problems, "; "))
	}
	return nil
}
