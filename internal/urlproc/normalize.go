package urlproc

import (
	"net/url"
	"strings"
)

// NormalizeDomain reduces any URL-ish input to a bare lowercase hostname:
// no scheme, no leading www., no path/query/fragment/port, percent-decoded.
// It never fails; when the result lacks a dot the best-effort lowercased,
// trimmed remainder is returned and callers must tolerate it. The function
// is idempotent.
func NormalizeDomain(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))

	// Decode to a fixpoint so double-encoded input ("%2520") normalizes the
	// same as its decoded form. Bounded to guard against pathological input.
	for range 4 {
		decoded, err := url.PathUnescape(s)
		if err != nil || decoded == s {
			break
		}
		s = strings.ToLower(strings.TrimSpace(decoded))
	}

	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	for _, sep := range []string{"/", "?", "#"} {
		if i := strings.Index(s, sep); i >= 0 {
			s = s[:i]
		}
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "www.")

	return strings.TrimSpace(s)
}
