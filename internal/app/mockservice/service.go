package mockservice

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	AdministrativeRequestHeader            = "X-Pact-Mock-Service"
	AdministrativeRequestTestContextHeader = "X-Pact-Mock-Service-Test-Context"

	InteractionsPath             = "/interactions"
	InteractionsVerificationPath = "/interactions/verification"
	InteractionsWaitPath         = "/interactions/wait"
	PactPath                     = "/pact"
	ReadyPath                    = "/ready"

	defaultDelay    = 500 * time.Millisecond
	defaultDuration = 15 * time.Second
)

type Config struct {
	ServerAddress         url.URL       `env:"SERVER_ADDRESS"`          // Address to listen on
	Consumer              string        `env:"CONSUMER"`                // Consumer name used when writing the pact
	Provider              string        `env:"PROVIDER"`                // Provider name used when writing the pact
	PactDir               string        `env:"PACT_DIR"`                // Directory pact files are written to
	WaitDelay             time.Duration `env:"WAIT_DELAY"`              // Default delay for the wait endpoint
	WaitDuration          time.Duration `env:"WAIT_DURATION"`           // Default duration for the wait endpoint
	QueryOrderInsensitive bool          `env:"QUERY_ORDER_INSENSITIVE"` // Compare query parameters per key
	TLSCAFile             string        `env:"TLS_CA_FILE"`
	TLSCertFile           string        `env:"TLS_CERT_FILE"`
	TLSKeyFile            string        `env:"TLS_KEY_FILE"`
}

// MockService stands in for one provider. It serves the consumer's traffic
// and the administrative requests of the test driving it.
type MockService struct {
	config     Config
	repository *Repository
	writer     *Writer
	log        *log.Entry
	delay      time.Duration
	duration   time.Duration
}

func NewMockService(config *Config) *MockService {
	logger := log.WithFields(log.Fields{
		"consumer": config.Consumer,
		"provider": config.Provider,
	})

	s := &MockService{
		config:     *config,
		repository: NewRepository(NewMatcher(MatcherOptions{QueryOrderInsensitive: config.QueryOrderInsensitive}), logger),
		writer:     NewWriter(config.PactDir, logger),
		log:        logger,
		delay:      config.WaitDelay,
		duration:   config.WaitDuration,
	}
	if s.delay == 0 {
		s.delay = defaultDelay
	}
	if s.duration == 0 {
		s.duration = defaultDuration
	}
	return s
}

// SetupRoutes sends every request on e to a new mock service.
func SetupRoutes(e *echo.Echo, config *Config) *MockService {
	s := NewMockService(config)
	e.Any("/", s.handle)
	e.Any("/*", s.handle)
	return s
}

// Handler serves both mock traffic and administrative requests.
func (s *MockService) Handler() echo.HandlerFunc {
	return s.handle
}

func (s *MockService) Repository() *Repository {
	return s.repository
}

func (s *MockService) handle(c echo.Context) error {
	if isAdminRequest(c.Request()) {
		return s.handleAdmin(c)
	}
	return s.handleMockRequest(c)
}

func isAdminRequest(req *http.Request) bool {
	_, ok := req.Header[http.CanonicalHeaderKey(AdministrativeRequestHeader)]
	return ok
}

func (s *MockService) handleMockRequest(c echo.Context) error {
	id := uuid.NewString()
	logger := s.log.WithField("request_id", id)

	actual, err := MapRequest(c.Request())
	if err != nil {
		logger.WithError(err).Error("Failed to handle the request")
		return s.failure(c, err)
	}

	logger.Infof("Received request %s %s", actual.Method, actual.Path)
	if logger.Logger.IsLevelEnabled(log.DebugLevel) {
		if b, err := json.Marshal(actual); err == nil {
			logger.Debug(string(b))
		}
	}

	interaction, err := s.repository.HandleRequest(id, actual)
	if err != nil {
		logger.Errorf("No matching interaction found for %s %s", actual.Method, actual.Path)
		var noMatch *NoMatchingInteractionError
		if errors.As(err, &noMatch) && noMatch.Comparison != nil {
			logger.Debug(noMatch.Comparison.String())
		}
		return s.failure(c, err)
	}

	logger.Infof("Found matching response for %s %s", actual.Method, actual.Path)
	return WriteResponse(c.Response(), interaction.Response)
}

func (s *MockService) handleAdmin(c echo.Context) error {
	req := c.Request()
	if testContext := req.Header.Get(AdministrativeRequestTestContextHeader); s.repository.SetTestContext(testContext) {
		s.log.Infof("Test context %s", testContext)
	}

	path := req.URL.Path
	switch {
	case req.Method == http.MethodDelete && path == InteractionsPath:
		return s.deleteInteractionsHandler(c)
	case req.Method == http.MethodPost && path == InteractionsPath:
		return s.postInteractionsHandler(c)
	case req.Method == http.MethodGet && path == InteractionsPath:
		return s.getInteractionsHandler(c)
	case req.Method == http.MethodGet && path == InteractionsVerificationPath:
		return s.verificationHandler(c)
	case req.Method == http.MethodGet && path == InteractionsWaitPath:
		return s.waitHandler(c)
	case req.Method == http.MethodPost && path == PactPath:
		return s.pactHandler(c)
	case req.Method == http.MethodGet && path == ReadyPath:
		return c.String(http.StatusOK, "ready")
	}

	return c.String(http.StatusNotFound,
		fmt.Sprintf("The %s request for path %s, does not have a matching mock provider admin action.", req.Method, path))
}

func (s *MockService) deleteInteractionsHandler(c echo.Context) error {
	s.repository.ClearTestScopedState()
	s.log.Info("Cleared interactions")
	return c.String(http.StatusOK, "Deleted interactions")
}

func (s *MockService) postInteractionsHandler(c echo.Context) error {
	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.String(http.StatusBadRequest, fmt.Sprintf("unable to read interaction. %s", err.Error()))
	}

	interaction, err := LoadInteraction(data)
	if err != nil {
		s.log.WithError(err).Error("unable to load interaction")
		return c.String(http.StatusBadRequest, fmt.Sprintf("unable to load interaction. %s", err.Error()))
	}

	s.repository.AddInteraction(interaction)
	s.log.Infof("Registered expected interaction %s %s", interaction.Request.Method, interaction.Request.Path)
	s.log.Debug(string(data))

	return c.String(http.StatusOK, "Added interaction")
}

func (s *MockService) getInteractionsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"interactions": s.repository.Interactions(),
	})
}

func (s *MockService) verificationHandler(c echo.Context) error {
	result, err := s.repository.Verify()
	if err == nil {
		s.log.Info("Verifying - interactions matched")
		return c.String(http.StatusOK, "Interactions matched")
	}

	s.log.Error("Verifying - actual interactions do not match expected interactions")
	var verificationErr *VerificationError
	if errors.As(err, &verificationErr) {
		for _, line := range verificationErr.summary() {
			s.log.Error(line)
		}
	}
	s.log.Debug(result.String())
	return s.failure(c, err)
}

func (s *MockService) waitHandler(c echo.Context) error {
	waitForCount, err := strconv.Atoi(c.QueryParam("count"))
	if err != nil || waitForCount < 1 {
		waitForCount = 1
	}

	s.log.WithField("count", waitForCount).Info("waiting for all interactions")
	met := retryFor(func(timeLeft time.Duration) bool {
		if s.repository.AllHaveRequests(waitForCount) {
			return true
		}
		if timeLeft > 0 {
			s.repository.notify.Wait(timeLeft)
		}
		return false
	}, s.delay, s.duration)

	if !met {
		for _, i := range s.repository.Interactions() {
			s.log.Infof("'%s' has fewer than %d request(s)", i.Description, waitForCount)
		}
		return c.String(http.StatusRequestTimeout, "timeout waiting for interactions to be met")
	}
	return c.NoContent(http.StatusOK)
}

type pactDetails struct {
	Consumer Pacticipant `json:"consumer"`
	Provider Pacticipant `json:"provider"`
}

func (s *MockService) pactHandler(c echo.Context) error {
	details := pactDetails{
		Consumer: Pacticipant{Name: s.config.Consumer},
		Provider: Pacticipant{Name: s.config.Provider},
	}

	data, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.String(http.StatusBadRequest, fmt.Sprintf("unable to read pact details. %s", err.Error()))
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &details); err != nil {
			return c.String(http.StatusBadRequest, fmt.Sprintf("unable to parse pact details. %s", err.Error()))
		}
	}
	if details.Consumer.Name == "" || details.Provider.Name == "" {
		return c.String(http.StatusBadRequest, "consumer and provider names are required to write a pact")
	}

	doc := BuildDocument(details.Consumer.Name, details.Provider.Name, s.repository.ContractInteractions())
	_, content, err := s.writer.Write(doc)
	if err != nil {
		s.log.WithError(err).Error("Failed to handle the request")
		return s.failure(c, err)
	}
	return c.Blob(http.StatusOK, echo.MIMEApplicationJSONCharsetUTF8, content)
}

func (s *MockService) failure(c echo.Context, err error) error {
	return c.String(http.StatusInternalServerError, err.Error()+" See logs for details.")
}
