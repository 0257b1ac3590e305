package mockservice

import (
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// MapRequest converts intercepted traffic into a Request. Multi-valued
// headers are joined in arrival order and the body is decoded according to
// its Content-Type.
func MapRequest(req *http.Request) (*Request, error) {
	method, err := ParseHTTPVerb(req.Method)
	if err != nil {
		return nil, err
	}

	headers := JoinHeaders(req.Header)

	var content []byte
	if req.Body != nil {
		content, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, "unable to read request body")
		}
		if err := req.Body.Close(); err != nil {
			return nil, errors.Wrap(err, "unable to close request body")
		}
	}

	return &Request{
		Method:  method,
		Path:    req.URL.Path,
		Query:   req.URL.RawQuery,
		Headers: headers,
		Body:    DecodeBody(content, headers),
	}, nil
}

// WriteResponse replays a declared response verbatim.
func WriteResponse(w http.ResponseWriter, resp *Response) error {
	for name, value := range resp.Headers {
		w.Header().Set(name, value)
	}

	content, err := encodeBody(resp)
	if err != nil {
		return err
	}
	if content != nil && w.Header().Get("Content-Type") == "" {
		if _, text := resp.Body.(String); text {
			w.Header().Set("Content-Type", mediaTypeText+"; charset=utf-8")
		} else if _, raw := resp.Body.(Bytes); !raw {
			w.Header().Set("Content-Type", mediaTypeJSON+"; charset=utf-8")
		}
	}

	w.WriteHeader(resp.Status)
	if content == nil {
		return nil
	}
	_, err = w.Write(content)
	return err
}

func encodeBody(resp *Response) ([]byte, error) {
	switch body := resp.Body.(type) {
	case nil:
		return nil, nil
	case Bytes:
		return body, nil
	case String:
		if isJSONMediaType(MediaType(resp.Headers)) {
			return body.MarshalJSON()
		}
		return []byte(body), nil
	}
	content, err := resp.Body.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "unable to serialise response body")
	}
	return content, nil
}
