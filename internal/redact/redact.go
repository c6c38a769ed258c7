// Package redact masks secret-like values before provider I/O is persisted.
// Masking is irreversible: a redacted document stays redacted on every read.
package redact

import (
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Mask replaces redacted values.
const Mask = "***REDACTED***"

// secretHeaderPatterns match header keys case-insensitively by substring.
var secretHeaderPatterns = []string{"authorization", "api-key", "apikey", "x-api-key", "token"}

var tokenLike = regexp.MustCompile(`[A-Za-z0-9]{20,}`)

// IsSecretHeader reports whether a header key names a credential.
func IsSecretHeader(key string) bool {
	k := strings.ToLower(key)
	for _, p := range secretHeaderPatterns {
		if strings.Contains(k, p) {
			return true
		}
	}
	return false
}

// Headers returns a copy of headers with credential values masked.
func Headers(headers map[string]string) map[string]any {
	out := make(map[string]any, len(headers))
	for k, v := range headers {
		if IsSecretHeader(k) {
			out[k] = Mask
			continue
		}
		out[k] = v
	}
	return out
}

// HTTPHeaders flattens and masks an http.Header.
func HTTPHeaders(h http.Header) map[string]any {
	flat := make(map[string]string, len(h))
	for k := range h {
		flat[k] = h.Get(k)
	}
	return Headers(flat)
}

// String masks s if it is longer than 24 characters and contains a run of
// 20 or more alphanumerics, keeping only the first and last four characters.
func String(s string) string {
	if utf8.RuneCountInString(s) <= 24 || !tokenLike.MatchString(s) {
		return s
	}
	r := []rune(s)
	return string(r[:4]) + Mask + string(r[len(r)-4:])
}

// Value walks maps and slices and masks token-like strings. Keys are left
// alone: body fields such as max_tokens are not credentials.
func Value(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = Value(inner)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, inner := range t {
			out[k] = String(inner)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = Value(inner)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, inner := range t {
			out[i] = String(inner)
		}
		return out
	case string:
		return String(t)
	default:
		return v
	}
}

// RawIO builds the audit record for one provider request or response.
func RawIO(url string, headers map[string]any, body any) map[string]any {
	masked := make(map[string]any, len(headers))
	for k, v := range headers {
		if IsSecretHeader(k) {
			masked[k] = Mask
			continue
		}
		masked[k] = v
	}
	var b any
	if body != nil {
		b = Value(body)
	}
	return map[string]any{
		"url":     url,
		"headers": masked,
		"body":    b,
	}
}
