package slug

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxLength leaves room for a numeric or random suffix inside the 191-byte
// unique index.
const MaxLength = 160

var (
	// ErrInvalid is returned when an explicit slug has characters outside [a-z0-9-].
	ErrInvalid = errors.New("slug may only contain lowercase letters, digits and single hyphens")
	// ErrEmpty is returned when an explicit slug is blank.
	ErrEmpty = errors.New("slug is required")
	// ErrTooLong is returned when an explicit slug exceeds MaxLength.
	ErrTooLong = errors.New("slug is too long")

	pattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
)

// Valid reports whether s is already in canonical slug form.
func Valid(s string) bool {
	return len(s) <= MaxLength && pattern.MatchString(s)
}

// Make derives a slug from free text such as a title. Accents are folded,
// every other non-alphanumeric run becomes one hyphen. The result may be
// empty when the input has no ASCII letters or digits.
func Make(text string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), text)
	if err != nil {
		folded = text
	}

	var b strings.Builder
	pendingHyphen := false
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingHyphen && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingHyphen = false
			b.WriteRune(r)
		case r == '\'' || r == '’':
			// "what's" reads better as "whats" than "what-s"
		default:
			pendingHyphen = true
		}
	}
	return truncate(b.String())
}

// Normalize canonicalizes an editor-supplied slug. Case, surrounding space,
// underscores and inner whitespace are forgiven; anything else that is not
// already slug-shaped is rejected rather than silently rewritten.
func Normalize(raw string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return "", ErrEmpty
	}
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == '_'
	}), "-")
	if len(s) > MaxLength {
		return "", ErrTooLong
	}
	if !pattern.MatchString(s) {
		return "", ErrInvalid
	}
	return s, nil
}

func truncate(s string) string {
	if len(s) <= MaxLength {
		return s
	}
	s = s[:MaxLength]
	if i := strings.LastIndexByte(s, '-'); i > 0 {
		s = s[:i]
	}
	return strings.Trim(s, "-")
}
