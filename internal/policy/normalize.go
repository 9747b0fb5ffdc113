package policy

import "strings"

// NormalizeDomain canonicalises a user-entered domain: lowercase, surrounding
// whitespace removed, exactly one leading scheme and one leading "www."
// stripped, and any trailing path discarded. The result is idempotent:
// NormalizeDomain(NormalizeDomain(d)) == NormalizeDomain(d).
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	if rest, ok := strings.CutPrefix(d, "https://"); ok {
		d = rest
	} else if rest, ok := strings.CutPrefix(d, "http://"); ok {
		d = rest
	}
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexByte(d, '/'); i >= 0 {
		d = d[:i]
	}
	return d
}
