package tracker

import (
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

// allowedSchemes is the set of URL schemes aria2 can announce to.
var allowedSchemes = map[string]struct{}{
	"http":  {},
	"https": {},
	"udp":   {},
	"ws":    {},
	"wss":   {},
}

// commentPrefixes mark a line of a tracker list as a comment.
var commentPrefixes = []string{"#", ";", "//"}

// Normalize returns the canonical form of a tracker candidate: surrounding
// whitespace and a leading byte order mark are removed.
func Normalize(candidate string) string {
	return strings.TrimSpace(strings.TrimPrefix(candidate, "\ufeff"))
}

// IsComment reports whether the normalized line is a comment.
func IsComment(line string) bool {
	line = Normalize(line)
	for _, prefix := range commentPrefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}

	return false
}

// IsValid reports whether candidate is a well formed tracker address: a URL
// with an allowed scheme, a non-empty host and, when present, a port in the
// range 1-65535. The candidate must already be normalized. IsValid never
// panics and its answer depends on nothing but its input.
func IsValid(candidate string) bool {
	if candidate == "" || IsComment(candidate) {
		return false
	}

	// Whitespace or control characters anywhere make the entry unusable
	// inside aria2's comma separated option value.
	for _, r := range candidate {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == ',' {
			return false
		}
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}

	if _, ok := allowedSchemes[strings.ToLower(u.Scheme)]; !ok {
		return false
	}

	// Forms like "udp:host" parse with an opaque part and no host.
	if u.Opaque != "" || u.Hostname() == "" {
		return false
	}

	if port := u.Port(); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > 65535 {
			return false
		}
	}

	return true
}

// SplitList splits an aria2 bt-tracker value into its entries. Entries may be
// separated by commas or newlines; empty entries are dropped and the rest are
// normalized. Order is preserved and duplicates are kept.
func SplitList(value string) []string {
	fields := strings.FieldsFunc(value, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})

	entries := make([]string, 0, len(fields))
	for _, field := range fields {
		if entry := Normalize(field); entry != "" {
			entries = append(entries, entry)
		}
	}

	return entries
}
