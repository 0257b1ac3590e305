package pactmock

// Interaction is the definition posted to a mock service. Bodies are any
// value that encodes to JSON; a plain string is sent as text.
type Interaction struct {
	Description   string   `json:"description"`
	ProviderState string   `json:"providerState,omitempty"`
	Request       Request  `json:"request"`
	Response      Response `json:"response"`
}

type Request struct {
	Method        string                 `json:"method"`
	Path          string                 `json:"path"`
	Query         string                 `json:"query,omitempty"`
	Headers       map[string]string      `json:"headers,omitempty"`
	Body          interface{}            `json:"body,omitempty"`
	MatchingRules map[string]interface{} `json:"matchingRules,omitempty"`
}

type Response struct {
	Status        int                    `json:"status"`
	Headers       map[string]string      `json:"headers,omitempty"`
	Body          interface{}            `json:"body,omitempty"`
	MatchingRules map[string]interface{} `json:"matchingRules,omitempty"`
}

// VerificationError is returned by Verify with the message reported by the
// mock service.
type VerificationError struct {
	Message string
}

func (e *VerificationError) Error() string {
	return e.Message
}
