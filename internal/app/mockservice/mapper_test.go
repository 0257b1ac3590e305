package mockservice

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/events?b=2&a=1", strings.NewReader(`{"type":"SearchView","count":2}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Accept", "text/plain")

	mapped, err := MapRequest(req)
	require.NoError(t, err)

	assert.Equal(t, MethodPost, mapped.Method)
	assert.Equal(t, "/events", mapped.Path)
	assert.Equal(t, "b=2&a=1", mapped.Query)
	assert.Equal(t, "application/json, text/plain", mapped.Headers["Accept"])
	assert.Equal(t, `{"type":"SearchView","count":2}`, Describe(mapped.Body))
	assert.Nil(t, mapped.MatchingRules)
}

func TestMapRequest_NoBody(t *testing.T) {
	mapped, err := MapRequest(httptest.NewRequest(http.MethodGet, "/events", nil))
	require.NoError(t, err)
	assert.Nil(t, mapped.Body)
}

func TestMapRequest_UnsupportedMethod(t *testing.T) {
	_, err := MapRequest(httptest.NewRequest("TRACE", "/events", nil))
	assert.Error(t, err)
}

func TestWriteResponse(t *testing.T) {
	tests := []struct {
		name            string
		response        *Response
		wantStatus      int
		wantContentType string
		wantBody        string
	}{
		{
			name:            "json body",
			response:        &Response{Status: 200, Body: NewObject().Set("type", String("SearchView"))},
			wantStatus:      200,
			wantContentType: "application/json; charset=utf-8",
			wantBody:        `{"type":"SearchView"}`,
		},
		{
			name: "declared content type is kept",
			response: &Response{
				Status:  201,
				Headers: map[string]string{"Content-Type": "application/hal+json", "Location": "/events/1"},
				Body:    NewObject().Set("id", Number("1")),
			},
			wantStatus:      201,
			wantContentType: "application/hal+json",
			wantBody:        `{"id":1}`,
		},
		{
			name:            "text body",
			response:        &Response{Status: 200, Body: String("hello")},
			wantStatus:      200,
			wantContentType: "text/plain; charset=utf-8",
			wantBody:        "hello",
		},
		{
			name: "string declared as json",
			response: &Response{
				Status:  200,
				Headers: map[string]string{"Content-Type": "application/json"},
				Body:    String("hello"),
			},
			wantStatus:      200,
			wantContentType: "application/json",
			wantBody:        `"hello"`,
		},
		{
			name:       "no body",
			response:   &Response{Status: 204},
			wantStatus: 204,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			require.NoError(t, WriteResponse(rec, tt.response))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantContentType, rec.Header().Get("Content-Type"))
			assert.Equal(t, tt.wantBody, rec.Body.String())
			for name, value := range tt.response.Headers {
				assert.Equal(t, value, rec.Header().Get(name))
			}
		})
	}
}
