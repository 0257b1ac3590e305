package pactmock

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/form3tech-oss/pact-mock/internal/app/mockservice"
	"github.com/pkg/errors"
)

// MockService drives one mock service through its administrative requests.
type MockService struct {
	client      http.Client
	url         string
	testContext string
}

func New(url string) *MockService {
	return &MockService{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: url,
	}
}

// WithTestContext names the running test in the mock service logs.
func (m *MockService) WithTestContext(name string) *MockService {
	c := *m
	c.testContext = name
	return &c
}

func (m *MockService) URL() string {
	return m.url
}

// IsReady polls the mock service until it answers or the attempts run out.
func (m *MockService) IsReady() error {
	return retry.Do(
		func() error {
			_, err := m.do(http.MethodGet, mockservice.ReadyPath, nil, http.StatusOK)
			return err
		},
		retry.Attempts(20),
		retry.Delay(100*time.Millisecond),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)
}

func (m *MockService) ClearInteractions() error {
	_, err := m.do(http.MethodDelete, mockservice.InteractionsPath, nil, http.StatusOK)
	return err
}

func (m *MockService) AddInteraction(interaction Interaction) error {
	content, err := json.Marshal(interaction)
	if err != nil {
		return errors.Wrap(err, "failed to marshal interaction")
	}
	return m.AddInteractionJSON(content)
}

// AddInteractionJSON registers an interaction that is already encoded.
func (m *MockService) AddInteractionJSON(content []byte) error {
	_, err := m.do(http.MethodPost, mockservice.InteractionsPath, content, http.StatusOK)
	return err
}

// Interactions returns the registered interactions as the mock service
// reports them.
func (m *MockService) Interactions() ([]json.RawMessage, error) {
	body, err := m.do(http.MethodGet, mockservice.InteractionsPath, nil, http.StatusOK)
	if err != nil {
		return nil, err
	}
	var out struct {
		Interactions []json.RawMessage `json:"interactions"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, errors.Wrap(err, "failed to parse interactions")
	}
	return out.Interactions, nil
}

// Verify returns a *VerificationError when the observed traffic does not
// match the registered interactions.
func (m *MockService) Verify() error {
	body, status, err := m.send(http.MethodGet, mockservice.InteractionsVerificationPath, nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return &VerificationError{Message: string(body)}
	}
	return nil
}

// WaitForAll blocks until every registered interaction has been used at
// least count times or the mock service gives up.
func (m *MockService) WaitForAll(count int) error {
	q := url.Values{}
	q.Add("count", strconv.Itoa(count))
	_, err := m.do(http.MethodGet, mockservice.InteractionsWaitPath+"?"+q.Encode(), nil, http.StatusOK)
	return err
}

// WritePact writes the contract for the verified interactions and returns
// its content. Empty names fall back to the mock service's configuration.
func (m *MockService) WritePact(consumer, provider string) ([]byte, error) {
	details := map[string]interface{}{}
	if consumer != "" {
		details["consumer"] = map[string]string{"name": consumer}
	}
	if provider != "" {
		details["provider"] = map[string]string{"name": provider}
	}
	content, err := json.Marshal(details)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal pact details")
	}
	return m.do(http.MethodPost, mockservice.PactPath, content, http.StatusOK)
}

func (m *MockService) do(method, path string, content []byte, expectedStatus int) ([]byte, error) {
	body, status, err := m.send(method, path, content)
	if err != nil {
		return nil, err
	}
	if status != expectedStatus {
		return nil, fmt.Errorf("%s %s failed with status %d: %s", method, path, status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func (m *MockService) send(method, path string, content []byte) ([]byte, int, error) {
	var reader io.Reader
	if content != nil {
		reader = bytes.NewReader(content)
	}

	req, err := http.NewRequest(method, strings.TrimSuffix(m.url, "/")+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set(mockservice.AdministrativeRequestHeader, "true")
	if m.testContext != "" {
		req.Header.Set(mockservice.AdministrativeRequestTestContextHeader, m.testContext)
	}
	if content != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := m.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to read response")
	}
	return body, res.StatusCode, nil
}
