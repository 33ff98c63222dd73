package search

import (
	"encoding/base64"
	"net/url"
	"strings"
)

// UnwrapURL resolves search-engine click-tracking links to their destination.
// Unknown shapes are returned unchanged; non-http targets become "".
func UnwrapURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	q := u.Query()
	target := raw
	switch {
	case strings.HasSuffix(host, "duckduckgo.com") && strings.HasPrefix(u.Path, "/l/"):
		if v := q.Get("uddg"); v != "" {
			target = v
		}
	case strings.Contains(host, "google.") && u.Path == "/url":
		if v := firstNonEmpty(q.Get("q"), q.Get("url")); v != "" {
			target = v
		}
	case strings.HasSuffix(host, "bing.com") && strings.HasPrefix(u.Path, "/ck/a"):
		if v := decodeBingTarget(q.Get("u")); v != "" {
			target = v
		}
	}
	if !strings.HasPrefix(target, "http://") && !strings.HasPrefix(target, "https://") {
		return ""
	}
	return target
}

// decodeBingTarget decodes "a1" + base64url(target).
func decodeBingTarget(v string) string {
	if !strings.HasPrefix(v, "a1") {
		return ""
	}
	payload := strings.TrimRight(v[2:], "=")
	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		decoded, err = base64.RawStdEncoding.DecodeString(payload)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
