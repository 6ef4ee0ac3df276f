package core

import (
	"strings"
	"unicode"

	"github.com/tidwall/match"
)

// maxPatternComplexity bounds the work a single wildcard comparison may do.
const maxPatternComplexity = 10_000

// intentMatcher is a wildcard intent pattern compiled at registration.
// '*' matches any run of characters, dots included; '?' matches exactly one.
type intentMatcher struct {
	pattern string
}

func compileIntentPattern(pattern string) (intentMatcher, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return intentMatcher{}, registrationError("core: intent pattern is required", nil)
	}
	if strings.IndexFunc(pattern, unicode.IsSpace) >= 0 {
		return intentMatcher{}, registrationError(
			"core: intent pattern must not contain whitespace",
			map[string]any{"intent": pattern},
		)
	}
	if strings.HasSuffix(pattern, `\`) {
		return intentMatcher{}, registrationError(
			"core: intent pattern ends with a dangling escape",
			map[string]any{"intent": pattern},
		)
	}
	return intentMatcher{pattern: pattern}, nil
}

func (m intentMatcher) Matches(intent string) bool {
	matched, stopped := match.MatchLimit(intent, m.pattern, maxPatternComplexity)
	return matched && !stopped
}

func isIntentPattern(intent string) bool {
	return match.IsPattern(intent)
}
