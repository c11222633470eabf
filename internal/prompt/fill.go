package prompt

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{([A-Z][A-Z0-9_]*)\}`)

// Fill replaces every occurrence of {key} in body with its value, one key at
// a time in insertion order. Substitution is sequential, so a value that
// contains {OTHER} is itself rewritten when OTHER is processed later.
// Placeholders without a value are left as-is.
func Fill(body string, values Values) string {
	out := body
	for _, key := range values.keys {
		out = strings.ReplaceAll(out, "{"+key+"}", values.m[key])
	}
	return out
}

// Complete reports whether every declared variable has a non-blank value.
func Complete(variables []string, values Values) bool {
	return len(Missing(variables, values)) == 0
}

// Missing returns the declared variables whose values are absent or blank.
func Missing(variables []string, values Values) []string {
	var missing []string
	for _, name := range variables {
		val, ok := values.Get(name)
		if !ok || len(strings.TrimSpace(val)) == 0 {
			missing = append(missing, name)
		}
	}
	return missing
}

func placeholders(body string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(body, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		out = append(out, m[1])
	}
	return out
}
