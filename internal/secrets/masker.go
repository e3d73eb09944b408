package secrets

import (
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
)

const redacted = "[REDACTED]"

// secretShapedPatterns catch common credential shapes even when the exact
// value was never registered: key=value assignments with secret-ish keys,
// bearer tokens, and vault tokens.
var secretShapedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)((?:api[_-]?key|secret|token|password|passwd|credential|authorization)\s*[=:]\s*)\S+`),
	regexp.MustCompile(`(?i)(bearer\s+)[a-z0-9._~+/-]+=*`),
	regexp.MustCompile(`\bhvs\.[A-Za-z0-9_-]{10,}\b`),
	regexp.MustCompile(`\bsk-[A-Za-z0-9_-]{16,}\b`),
}

// Masker redacts secret material from free-form text. Registered values are
// matched case-insensitively; pattern matching handles secret-shaped text
// whose value was never registered. Best effort only: this keeps secrets
// out of routine logs, it is not a security boundary.
type Masker struct {
	mu     sync.RWMutex
	values []string // lowercase registered secret values, longest first
}

func NewMasker() *Masker {
	return &Masker{}
}

// AddSecret registers a value for redaction. Short values are ignored to
// avoid redacting half the log.
func (m *Masker) AddSecret(value string) {
	if len(value) < 4 {
		return
	}
	lower := strings.ToLower(value)

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.values {
		if existing == lower {
			return
		}
	}
	m.values = append(m.values, lower)
	// Longest first so substrings of longer secrets don't leave fragments.
	sort.Slice(m.values, func(i, j int) bool {
		return len(m.values[i]) > len(m.values[j])
	})
}

// Mask redacts registered values and secret-shaped substrings from text.
func (m *Masker) Mask(text string) string {
	// Copy the contents, not just the header: AddSecret re-sorts the
	// backing array under the write lock.
	m.mu.RLock()
	values := append([]string(nil), m.values...)
	m.mu.RUnlock()

	for _, value := range values {
		text = replaceFold(text, value)
	}

	for _, pattern := range secretShapedPatterns {
		if pattern.NumSubexp() > 0 {
			text = pattern.ReplaceAllString(text, "${1}"+redacted)
		} else {
			text = pattern.ReplaceAllString(text, redacted)
		}
	}
	return text
}

// replaceFold replaces every case-insensitive occurrence of lowerValue
// (already lowercased) in text with the redaction marker. Matching is done
// rune by rune: lowercasing changes the byte length of some runes, so byte
// offsets into a lowered copy cannot be applied to the original text.
func replaceFold(text, lowerValue string) string {
	valueRunes := []rune(lowerValue)
	if len(valueRunes) == 0 {
		return text
	}

	textRunes := []rune(text)
	var b strings.Builder
	for i := 0; i < len(textRunes); {
		if matchesFold(textRunes[i:], valueRunes) {
			b.WriteString(redacted)
			i += len(valueRunes)
			continue
		}
		b.WriteRune(textRunes[i])
		i++
	}
	return b.String()
}

func matchesFold(text, lowerValue []rune) bool {
	if len(text) < len(lowerValue) {
		return false
	}
	for i, r := range lowerValue {
		if unicode.ToLower(text[i]) != r {
			return false
		}
	}
	return true
}
