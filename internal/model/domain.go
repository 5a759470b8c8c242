package model

import (
	"net/url"
	"strings"
)

// CanonicalDomain normalizes a raw domain or URL to its canonical form:
// lowercased, with scheme, www. prefix, path, query, and port stripped.
// Inputs like "https:/www.example.com" (a common missing-slash typo) are
// repaired before parsing.
func CanonicalDomain(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	s = strings.Replace(s, "https:/www.", "https://www.", 1)
	s = strings.Replace(s, "http:/www.", "http://www.", 1)

	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}

	host := s
	if u, err := url.Parse(s); err == nil {
		host = u.Host
		if host == "" {
			host = u.Path
		}
	}

	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	return strings.TrimSpace(host)
}
