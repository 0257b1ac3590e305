package pactmock

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/form3tech-oss/pact-mock/internal/app/mockservice"
	"github.com/pkg/errors"
)

// MockServiceConfiguration talks to the admin API of a running pact-mock.
type MockServiceConfiguration struct {
	client http.Client
	url    string
}

type Config mockservice.Config

func Configuration(url string) *MockServiceConfiguration {
	return &MockServiceConfiguration{
		client: http.Client{
			Timeout: 30 * time.Second,
		},
		url: url,
	}
}

func (conf *MockServiceConfiguration) SetupMockService(serverAddress, consumer, provider string) (*MockService, error) {
	serverURL, err := url.Parse(serverAddress)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse server address")
	}

	config := &Config{
		ServerAddress: *serverURL,
		Consumer:      consumer,
		Provider:      provider,
	}
	return conf.SetupMockServiceWithConfig(config)
}

func (conf *MockServiceConfiguration) SetupMockServiceWithConfig(config *Config) (*MockService, error) {
	content, err := json.Marshal(config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal config")
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimSuffix(conf.url, "/")+"/mock-services", bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := conf.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	responseBody, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, errors.New(string(responseBody))
	}

	return New(config.ServerAddress.String()), nil
}

// Reset stops every mock service.
func (conf *MockServiceConfiguration) Reset() error {
	req, err := http.NewRequest(http.MethodDelete, strings.TrimSuffix(conf.url, "/")+"/mock-services", nil)
	if err != nil {
		return err
	}

	res, err := conf.client.Do(req)
	if err != nil {
		return err
	}
	res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return errors.Errorf("error resetting mock services, status %d", res.StatusCode)
	}
	return nil
}
