package adapters

import (
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
)

var whitespaceRun = regexp.MustCompile(`[ \t]+`)
var blankLineRun = regexp.MustCompile(`\n{3,}`)

// NormalizeHTMLFragment converts an HTML fragment (job description,
// requirements) to clean text: block-level tags become newlines, entities
// decode, and residual whitespace collapses. baseURL is used to resolve
// relative links encountered during conversion.
func NormalizeHTMLFragment(baseURL, fragment string) (string, error) {
	converter := md.NewConverter(baseURL, true, nil)
	converted, err := converter.ConvertString(fragment)
	if err != nil {
		return "", err
	}
	return collapseWhitespace(converted), nil
}

// collapseWhitespace collapses runs of spaces and tabs within each line,
// trims trailing spaces per line, and caps consecutive blank lines at one,
// so parsed fields that differ only in incidental whitespace are stored
// identically.
func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(whitespaceRun.ReplaceAllString(line, " "), " ")
	}
	joined := strings.Join(lines, "\n")
	return strings.TrimSpace(blankLineRun.ReplaceAllString(joined, "\n\n"))
}
