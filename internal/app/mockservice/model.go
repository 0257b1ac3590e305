package mockservice

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

type HTTPVerb string

const (
	MethodGet     HTTPVerb = "GET"
	MethodPost    HTTPVerb = "POST"
	MethodPut     HTTPVerb = "PUT"
	MethodDelete  HTTPVerb = "DELETE"
	MethodPatch   HTTPVerb = "PATCH"
	MethodHead    HTTPVerb = "HEAD"
	MethodOptions HTTPVerb = "OPTIONS"
)

var httpVerbs = map[string]HTTPVerb{
	"GET":     MethodGet,
	"POST":    MethodPost,
	"PUT":     MethodPut,
	"DELETE":  MethodDelete,
	"PATCH":   MethodPatch,
	"HEAD":    MethodHead,
	"OPTIONS": MethodOptions,
}

// ParseHTTPVerb is case-insensitive and rejects methods outside the closed set.
func ParseHTTPVerb(method string) (HTTPVerb, error) {
	verb, ok := httpVerbs[strings.ToUpper(strings.TrimSpace(method))]
	if !ok {
		return "", errors.Errorf("unsupported HTTP method '%s'", method)
	}
	return verb, nil
}

// Contract files carry methods in lower case.
func (v HTTPVerb) MarshalJSON() ([]byte, error) {
	return json.Marshal(strings.ToLower(string(v)))
}

func (v *HTTPVerb) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "method must be a string")
	}
	verb, err := ParseHTTPVerb(s)
	if err != nil {
		return err
	}
	*v = verb
	return nil
}

// Request is either an expectation (may carry matching rules) or an observed
// request (rules absent). A nil Body means no body; nil Headers means headers
// are not checked.
type Request struct {
	Method        HTTPVerb
	Path          string
	Query         string
	Headers       map[string]string
	Body          Value
	MatchingRules *MatchingRules
}

type requestJSON struct {
	Method        HTTPVerb          `json:"method"`
	Path          string            `json:"path"`
	Query         json.RawMessage   `json:"query,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          json.RawMessage   `json:"body,omitempty"`
	MatchingRules *MatchingRules    `json:"matchingRules,omitempty"`
}

func (r *Request) MarshalJSON() ([]byte, error) {
	out := requestJSON{
		Method:        r.Method,
		Path:          r.Path,
		Headers:       r.Headers,
		MatchingRules: r.MatchingRules,
	}
	if r.Query != "" {
		q, err := json.Marshal(r.Query)
		if err != nil {
			return nil, err
		}
		out.Query = q
	}
	if r.Body != nil {
		body, err := r.Body.MarshalJSON()
		if err != nil {
			return nil, errors.Wrap(err, "unable to serialise request body")
		}
		out.Body = body
	}
	return json.Marshal(out)
}

func (r *Request) UnmarshalJSON(data []byte) error {
	var in requestJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return errors.Wrap(err, "unable to parse request")
	}
	if in.Method == "" {
		return errors.New("request has no method defined")
	}
	query, err := parseQueryDefinition(in.Query)
	if err != nil {
		return err
	}
	body, err := parseBodyDefinition(in.Body)
	if err != nil {
		return errors.Wrap(err, "unable to parse request body")
	}

	*r = Request{
		Method:        in.Method,
		Path:          in.Path,
		Query:         query,
		Headers:       in.Headers,
		Body:          body,
		MatchingRules: in.MatchingRules,
	}
	return nil
}

// Description identifies the request in diagnostics, e.g. "GET /events?id=1".
func (r *Request) Description() string {
	if r == nil {
		return "<none>"
	}
	if r.Query != "" {
		return fmt.Sprintf("%s %s?%s", r.Method, r.Path, r.Query)
	}
	return fmt.Sprintf("%s %s", r.Method, r.Path)
}

type Response struct {
	Status        int
	Headers       map[string]string
	Body          Value
	MatchingRules *MatchingRules
}

type responseJSON struct {
	Status        int               `json:"status"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          json.RawMessage   `json:"body,omitempty"`
	MatchingRules *MatchingRules    `json:"matchingRules,omitempty"`
}

func (r *Response) MarshalJSON() ([]byte, error) {
	out := responseJSON{
		Status:        r.Status,
		Headers:       r.Headers,
		MatchingRules: r.MatchingRules,
	}
	if r.Body != nil {
		body, err := r.Body.MarshalJSON()
		if err != nil {
			return nil, errors.Wrap(err, "unable to serialise response body")
		}
		out.Body = body
	}
	return json.Marshal(out)
}

func (r *Response) UnmarshalJSON(data []byte) error {
	var in responseJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return errors.Wrap(err, "unable to parse response")
	}
	body, err := parseBodyDefinition(in.Body)
	if err != nil {
		return errors.Wrap(err, "unable to parse response body")
	}
	*r = Response{
		Status:        in.Status,
		Headers:       in.Headers,
		Body:          body,
		MatchingRules: in.MatchingRules,
	}
	return nil
}

type Interaction struct {
	Description   string    `json:"description"`
	ProviderState string    `json:"providerState,omitempty"`
	Request       *Request  `json:"request"`
	Response      *Response `json:"response"`
}

// LoadInteraction parses and validates an interaction definition.
func LoadInteraction(data []byte) (*Interaction, error) {
	interaction := &Interaction{}
	if err := json.Unmarshal(data, interaction); err != nil {
		return nil, errors.Wrap(err, "unable to parse interaction definition")
	}
	if err := interaction.Validate(); err != nil {
		return nil, err
	}
	return interaction, nil
}

func (i *Interaction) Validate() error {
	if i.Description == "" {
		return errors.New("unable to parse interaction definition, no description defined")
	}
	if i.Request == nil {
		return errors.New("unable to parse interaction definition, no request defined")
	}
	if i.Response == nil {
		return errors.New("unable to parse interaction definition, no response defined")
	}
	if i.Response.Status == 0 {
		i.Response.Status = 200
	}
	return nil
}

// Key is the identity used when interactions are collected into a contract.
func (i *Interaction) Key() string {
	return i.Description + "\x00" + i.ProviderState
}

// HandledRequest pairs observed traffic with the interaction it matched.
// MatchedInteraction is nil when nothing matched.
type HandledRequest struct {
	ID                 string
	Actual             *Request
	MatchedInteraction *Interaction
}

func parseBodyDefinition(raw json.RawMessage) (Value, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	return ParseJSON(raw)
}

// parseQueryDefinition accepts the string form and the object form
// ({"a": ["1", "2"]} or {"a": "1"}) of a declared query.
func parseQueryDefinition(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	res := gjson.ParseBytes(raw)
	switch {
	case res.Type == gjson.Null:
		return "", nil
	case res.Type == gjson.String:
		return res.Str, nil
	case res.IsObject():
		var parts []string
		res.ForEach(func(k, v gjson.Result) bool {
			if v.IsArray() {
				for _, item := range v.Array() {
					parts = append(parts, url.QueryEscape(k.Str)+"="+url.QueryEscape(item.String()))
				}
				return true
			}
			parts = append(parts, url.QueryEscape(k.Str)+"="+url.QueryEscape(v.String()))
			return true
		})
		return strings.Join(parts, "&"), nil
	}
	return "", errors.Errorf("unsupported query definition %s", string(raw))
}
