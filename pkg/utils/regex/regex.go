package regex

import (
	"regexp"
	"strings"
)

func CombinePatterns(patterns []string) *regexp.Regexp {
	combined := "(?:" + strings.Join(patterns, ")|(?:") + ")"
	return regexp.MustCompile(combined)
}

// ExtensionPattern matches paths ending in one of exts, case-insensitively.
// Leading dots on the extensions are optional. Returns nil for an empty list.
func ExtensionPattern(exts []string) *regexp.Regexp {
	quoted := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(ext))
	}
	if len(quoted) == 0 {
		return nil
	}
	return regexp.MustCompile(`(?i)\.(?:` + strings.Join(quoted, "|") + `)$`)
}
