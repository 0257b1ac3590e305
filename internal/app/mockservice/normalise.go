package mockservice

import (
	"mime"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

const (
	mediaTypeJSON = "application/json"
	mediaTypeText = "text/plain"
)

var percentEncoded = regexp.MustCompile(`%[0-9a-fA-F]{2}`)

// NormaliseQuery upper-cases percent-encoded triplets and trims a single
// trailing '&'. Parameter order is left alone.
func NormaliseQuery(query string) string {
	query = strings.TrimPrefix(query, "?")
	query = percentEncoded.ReplaceAllStringFunc(query, strings.ToUpper)
	return strings.TrimSuffix(query, "&")
}

// queryParams keeps keys in first-seen order and values in arrival order.
type queryParams struct {
	keys   []string
	values map[string][]string
}

func parseQuery(query string) (*queryParams, error) {
	params := &queryParams{values: map[string][]string{}}
	for _, pair := range strings.Split(query, "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid query parameter '%s'", rawKey)
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid value for query parameter '%s'", key)
		}
		if _, seen := params.values[key]; !seen {
			params.keys = append(params.keys, key)
		}
		params.values[key] = append(params.values[key], value)
	}
	return params, nil
}

// NormaliseHeaderValue trims the items of a comma separated header value and
// joins them with ", ".
func NormaliseHeaderValue(value string) string {
	items := strings.Split(value, ",")
	for i, item := range items {
		items[i] = strings.TrimSpace(item)
	}
	return strings.Join(items, ", ")
}

// JoinHeaders flattens multi-valued headers in arrival order.
func JoinHeaders(header http.Header) map[string]string {
	if len(header) == 0 {
		return nil
	}
	joined := make(map[string]string, len(header))
	for name, values := range header {
		joined[name] = strings.Join(values, ", ")
	}
	return joined
}

// HeaderValue looks a header up by case-insensitive name.
func HeaderValue(headers map[string]string, name string) (string, bool) {
	if v, ok := headers[name]; ok {
		return v, true
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// MediaType returns the media type of the Content-Type header, or "" when
// there is none or it cannot be parsed.
func MediaType(headers map[string]string) string {
	contentType, ok := HeaderValue(headers, "Content-Type")
	if !ok || contentType == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return mediaType
}

func isJSONMediaType(mediaType string) bool {
	return mediaType == mediaTypeJSON || strings.HasSuffix(mediaType, "+json")
}

// DecodeBody turns raw content into a Value according to the content type.
// Content that claims to be JSON but does not parse is kept as Bytes, so the
// comparison reports it as a difference instead of failing.
func DecodeBody(content []byte, headers map[string]string) Value {
	if len(content) == 0 {
		return nil
	}
	mediaType := MediaType(headers)
	switch {
	case isJSONMediaType(mediaType):
		v, err := ParseJSON(content)
		if err != nil {
			return Bytes(content)
		}
		return v
	case mediaType == mediaTypeText, mediaType == "":
		return String(content)
	}
	return Bytes(content)
}
