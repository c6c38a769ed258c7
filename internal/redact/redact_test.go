package redact

import (
	"net/http"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaders(t *testing.T) {
	got := Headers(map[string]string{
		"Authorization": "Bearer sk-abc",
		"X-Api-Key":     "k",
		"apikey":        "k",
		"X-Auth-Token":  "t",
		"Content-Type":  "application/json",
	})
	assert.Equal(t, Mask, got["Authorization"])
	assert.Equal(t, Mask, got["X-Api-Key"])
	assert.Equal(t, Mask, got["apikey"])
	assert.Equal(t, Mask, got["X-Auth-Token"])
	assert.Equal(t, "application/json", got["Content-Type"])
}

func TestHTTPHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("Anthropic-Version", "2023-06-01")
	got := HTTPHeaders(h)
	assert.Equal(t, Mask, got["Authorization"])
	assert.Equal(t, "2023-06-01", got["Anthropic-Version"])
}

func TestString(t *testing.T) {
	secret := "sk-proj-ABCDEFGHIJKLMNOPQRSTUVWXYZ012345"
	masked := String(secret)
	assert.Equal(t, "sk-p"+Mask+"2345", masked)

	assert.Equal(t, "short", String("short"))
	// Long but no 20-char alphanumeric run.
	spaced := "this is a normal sentence of words"
	assert.Equal(t, spaced, String(spaced))
	// Exactly 24 characters is left alone.
	assert.Equal(t, "ABCDEFGHIJKLMNOPQRSTUVWX", String("ABCDEFGHIJKLMNOPQRSTUVWX"))
}

func TestString_KeepsRuneBoundaries(t *testing.T) {
	secret := "ééABCDEFGHIJKLMNOPQRSTUVWXYZ0123üü"
	masked := String(secret)
	assert.True(t, utf8.ValidString(masked))
	assert.Equal(t, "ééAB"+Mask+"23üü", masked)

	// 23 characters but 26 bytes: left alone.
	short := "éééABCDEFGHIJKLMNOPQRST"
	assert.Equal(t, short, String(short))
}

func TestValue_Nested(t *testing.T) {
	secret := "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdef"
	in := map[string]any{
		"max_tokens": 512,
		"messages": []any{
			map[string]any{"role": "user", "content": secret},
		},
		"tags":  []string{"ok", secret},
		"plain": "hello",
	}
	out, ok := Value(in).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, 512, out["max_tokens"], "numeric fields pass through even when the key mentions tokens")
	assert.Equal(t, "hello", out["plain"])

	msgs := out["messages"].([]any)
	msg := msgs[0].(map[string]any)
	assert.Equal(t, "ABCD"+Mask+"cdef", msg["content"])

	tags := out["tags"].([]any)
	assert.Equal(t, "ok", tags[0])
	assert.Equal(t, "ABCD"+Mask+"cdef", tags[1])

	// Input is not mutated.
	assert.Equal(t, secret, in["messages"].([]any)[0].(map[string]any)["content"])
}

func TestRawIO(t *testing.T) {
	rec := RawIO("https://api.example.com/v1", map[string]any{"Authorization": "Bearer x"}, nil)
	assert.Equal(t, "https://api.example.com/v1", rec["url"])
	assert.Equal(t, Mask, rec["headers"].(map[string]any)["Authorization"])
	assert.Nil(t, rec["body"])
}
