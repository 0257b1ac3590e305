package app

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/form3tech-oss/pact-mock/pkg/pactmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"
)

const (
	consumerName = "Event API Consumer"
	providerName = "Event API"

	getEventsInteraction    = "A GET request to retrieve events"
	getEventByIDInteraction = "A GET request to retrieve an event by id"
)

type MockServiceStage struct {
	t                  *testing.T
	assert             *assert.Assertions
	mockService        *pactmock.MockService
	pactDir            string
	responses          []*http.Response
	responseBodies     [][]byte
	verificationResult error
	pactContent        []byte
}

func NewMockServiceStage(t *testing.T) (*MockServiceStage, *MockServiceStage, *MockServiceStage) {
	pactDir := t.TempDir()
	mockService, err := setupAndWaitForMockService(pactDir)
	if err != nil {
		t.Fatalf("Error setting up mock service: %v", err)
	}

	s := &MockServiceStage{
		t:           t,
		assert:      assert.New(t),
		mockService: mockService.WithTestContext(t.Name()),
		pactDir:     pactDir,
	}

	s.t.Cleanup(func() {
		if err := pactmock.Configuration(adminURL.String()).Reset(); err != nil {
			t.Logf("Error resetting mock services: %v", err)
		}
	})

	return s, s, s
}

func setupAndWaitForMockService(pactDir string) (*pactmock.MockService, error) {
	mockService, err := pactmock.
		Configuration(adminURL.String()).
		SetupMockServiceWithConfig(&pactmock.Config{
			ServerAddress: *mockServiceURL,
			Consumer:      consumerName,
			Provider:      providerName,
			PactDir:       pactDir,
			WaitDelay:     10 * time.Millisecond,
			WaitDuration:  time.Second,
		})
	if err != nil {
		return nil, errors.Wrap(err, "mock service setup failed")
	}

	retryOpts := []retry.Option{
		retry.Attempts(10),
		retry.DelayType(retry.FixedDelay),
		retry.Delay(100 * time.Millisecond),
	}

	err = retry.Do(mockService.IsReady, retryOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "mock service readiness wait failed")
	}

	return mockService, nil
}

func (s *MockServiceStage) and() *MockServiceStage {
	return s
}

func (s *MockServiceStage) an_interaction_to_retrieve_events() *MockServiceStage {
	s.assert.NoError(s.mockService.AddInteraction(pactmock.Interaction{
		Description:   getEventsInteraction,
		ProviderState: "There are events",
		Request: pactmock.Request{
			Method:  "GET",
			Path:    "/events",
			Headers: map[string]string{"Accept": "application/json"},
		},
		Response: pactmock.Response{
			Status:  200,
			Headers: map[string]string{"Content-Type": "application/json; charset=utf-8"},
			Body:    map[string]string{"type": "SearchView"},
		},
	}))
	return s
}

func (s *MockServiceStage) an_interaction_to_retrieve_any_event_by_id() *MockServiceStage {
	s.assert.NoError(s.mockService.AddInteraction(pactmock.Interaction{
		Description:   getEventByIDInteraction,
		ProviderState: "There is an event with id 1",
		Request: pactmock.Request{
			Method: "GET",
			Path:   "/events/1",
			MatchingRules: map[string]interface{}{
				"$.path": map[string]string{"match": "regex", "regex": `/events/\d+`},
			},
		},
		Response: pactmock.Response{
			Status:  200,
			Headers: map[string]string{"Content-Type": "application/json; charset=utf-8"},
			Body:    map[string]interface{}{"id": 1, "type": "DetailsView"},
		},
	}))
	return s
}

func (s *MockServiceStage) the_interactions_are_cleared() *MockServiceStage {
	s.assert.NoError(s.mockService.ClearInteractions())
	s.responses = nil
	s.responseBodies = nil
	return s
}

func (s *MockServiceStage) a_request_is_sent_to_(path string) *MockServiceStage {
	req, err := http.NewRequest(http.MethodGet, strings.TrimSuffix(mockServiceURL.String(), "/")+path, nil)
	if err != nil {
		s.t.Fatal(err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := http.DefaultClient.Do(req)
	if err != nil {
		s.t.Fatal(err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		s.t.Fatal(err)
	}

	s.responses = append(s.responses, res)
	s.responseBodies = append(s.responseBodies, body)
	return s
}

func (s *MockServiceStage) the_interactions_are_verified() *MockServiceStage {
	s.verificationResult = s.mockService.Verify()
	return s
}

func (s *MockServiceStage) the_pact_is_written() *MockServiceStage {
	content, err := s.mockService.WritePact("", "")
	s.assert.NoError(err)
	s.pactContent = content
	return s
}

func (s *MockServiceStage) the_nth_response_is_(n, status int) *MockServiceStage {
	if s.assert.Len(s.responses, n) {
		s.assert.Equal(status, s.responses[n-1].StatusCode)
	}
	return s
}

func (s *MockServiceStage) the_nth_response_body_is_(n int, body string) *MockServiceStage {
	if s.assert.GreaterOrEqual(len(s.responseBodies), n) {
		s.assert.Equal(body, string(s.responseBodies[n-1]))
	}
	return s
}

func (s *MockServiceStage) the_nth_response_body_contains_(n int, text string) *MockServiceStage {
	if s.assert.GreaterOrEqual(len(s.responseBodies), n) {
		s.assert.Contains(string(s.responseBodies[n-1]), text)
	}
	return s
}

func (s *MockServiceStage) verification_is_successful() *MockServiceStage {
	s.assert.NoError(s.verificationResult)
	return s
}

func (s *MockServiceStage) verification_fails_with_(message string) *MockServiceStage {
	if s.assert.Error(s.verificationResult) {
		s.assert.Contains(s.verificationResult.Error(), message)
	}
	return s
}

func (s *MockServiceStage) the_pact_contains_the_interactions_(descriptions ...string) *MockServiceStage {
	written, err := os.ReadFile(filepath.Join(s.pactDir, "event_api_consumer-event_api.json"))
	if !s.assert.NoError(err) {
		return s
	}
	s.assert.Equal(s.pactContent, written)

	var found []string
	for _, d := range gjson.GetBytes(written, "interactions.#.description").Array() {
		found = append(found, d.String())
	}
	s.assert.Equal(descriptions, found)
	s.assert.Equal(consumerName, gjson.GetBytes(written, "consumer.name").String())
	s.assert.Equal(providerName, gjson.GetBytes(written, "provider.name").String())
	return s
}
