package mockservice

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormaliseQuery(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{query: "", want: ""},
		{query: "a=1&b=2", want: "a=1&b=2"},
		{query: "?a=1", want: "a=1"},
		{query: "a=1&", want: "a=1"},
		{query: "a=1&&", want: "a=1&"},
		{query: "q=%e2%82%ac", want: "q=%E2%82%AC"},
		{query: "b=2&a=1", want: "b=2&a=1"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, NormaliseQuery(tt.query))
		})
	}
}

func TestParseQuery(t *testing.T) {
	params, err := parseQuery("b=2&a=1&b=3&c")
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "a", "c"}, params.keys)
	assert.Equal(t, []string{"2", "3"}, params.values["b"])
	assert.Equal(t, []string{""}, params.values["c"])

	_, err = parseQuery("a=%zz")
	assert.Error(t, err)
}

func TestNormaliseHeaderValue(t *testing.T) {
	assert.Equal(t, "a, b, c", NormaliseHeaderValue("a,b , c"))
	assert.Equal(t, "application/json", NormaliseHeaderValue(" application/json "))
}

func TestJoinHeaders(t *testing.T) {
	header := http.Header{}
	header.Add("Accept", "text/plain")
	header.Add("Accept", "application/json")
	header.Set("X-Id", "1")

	joined := JoinHeaders(header)
	assert.Equal(t, map[string]string{
		"Accept": "text/plain, application/json",
		"X-Id":   "1",
	}, joined)

	assert.Nil(t, JoinHeaders(http.Header{}))
}

func TestHeaderValue(t *testing.T) {
	headers := map[string]string{"content-type": "application/json"}

	v, ok := HeaderValue(headers, "Content-Type")
	assert.True(t, ok)
	assert.Equal(t, "application/json", v)

	_, ok = HeaderValue(headers, "Accept")
	assert.False(t, ok)
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		content     string
		want        Value
	}{
		{name: "empty", contentType: "application/json", content: "", want: nil},
		{name: "json", contentType: "application/json; charset=utf-8", content: `{"a":1}`, want: NewObject().Set("a", Number("1"))},
		{name: "vendor json", contentType: "application/vnd.api+json", content: `[true]`, want: Array{Bool(true)}},
		{name: "malformed json", contentType: "application/json", content: `{"a":`, want: Bytes(`{"a":`)},
		{name: "text", contentType: "text/plain", content: "hello", want: String("hello")},
		{name: "no content type", contentType: "", content: "hello", want: String("hello")},
		{name: "other", contentType: "application/octet-stream", content: "\x00\x01", want: Bytes("\x00\x01")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := map[string]string{}
			if tt.contentType != "" {
				headers["Content-Type"] = tt.contentType
			}
			assert.Equal(t, tt.want, DecodeBody([]byte(tt.content), headers))
		})
	}
}
