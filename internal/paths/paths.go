package paths

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"go-case-tracker/internal/helpers"
)

// Tags accepted in attachment path patterns.
const (
	TagCaseID   = "caseId"
	TagCaseName = "caseName"
	TagKind     = "kind"
	TagDate     = "date"
)

var allowedTags = map[string]struct{}{
	TagCaseID:   {},
	TagCaseName: {},
	TagKind:     {},
	TagDate:     {},
}

// Regex to find tags like {tagName}
var tagRegex = regexp.MustCompile(`\{([^}]+)\}`)

// Validate reports the first unknown tag of pattern.
func Validate(pattern string) error {
	for _, match := range tagRegex.FindAllStringSubmatch(pattern, -1) {
		if _, ok := allowedTags[match[1]]; !ok {
			return fmt.Errorf("unknown tag found in path pattern: %s", match[0])
		}
	}
	return nil
}

// GeneratePath substitutes placeholders in pattern with slugged values from
// data and returns a relative path. Missing or empty values become "empty_<tag>".
func GeneratePath(pattern string, data map[string]string) (string, error) {
	if err := Validate(pattern); err != nil {
		return "", err
	}

	generated := tagRegex.ReplaceAllStringFunc(pattern, func(tag string) string {
		name := tag[1 : len(tag)-1]
		value := helpers.ConvertToSlug(data[name])
		if value == "" {
			value = "empty_" + name
		}
		return value
	})

	cleaned := filepath.Clean(generated)
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("generated path pattern resulted in an empty or invalid path: '%s'", pattern)
	}
	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))

	for _, part := range strings.Split(cleaned, string(filepath.Separator)) {
		if part == ".." {
			return "", fmt.Errorf("generated path contains invalid sequence '..': %s", cleaned)
		}
	}
	return cleaned, nil
}
