package configuration

import (
	"context"
	"net/url"
	"strings"

	"github.com/form3tech-oss/pact-mock/internal/app/mockservice"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
)

// Settings are the process wide settings. Each mock service gets its own
// mockservice.Config.
type Settings struct {
	AdminPort    int    `env:"ADMIN_PORT,default=8080"`
	MockServices string `env:"MOCK_SERVICES"` // consumer:provider@url entries separated by ';'
	LogLevel     string `env:"LOG_LEVEL,default=info"`
	LogFormat    string `env:"LOG_FORMAT,default=text"`
	Defaults     mockservice.Config
}

func NewFromEnv(ctx context.Context) (Settings, error) {
	var settings Settings
	if err := envconfig.Process(ctx, &settings); err != nil {
		return settings, errors.Wrap(err, "process env config")
	}
	if settings.Defaults.PactDir == "" {
		settings.Defaults.PactDir = mockservice.DefaultPactDir
	}
	return settings, nil
}

// ServiceConfigs expands MockServices into one config per entry, each
// inheriting the defaults.
func (s Settings) ServiceConfigs() ([]mockservice.Config, error) {
	var configs []mockservice.Config
	for _, entry := range strings.Split(strings.TrimSpace(s.MockServices), ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		participants, address, ok := strings.Cut(entry, "@")
		if !ok {
			return nil, errors.Errorf("mock service '%s' must have the form consumer:provider@url", entry)
		}
		consumer, provider, ok := strings.Cut(participants, ":")
		if !ok || consumer == "" || provider == "" {
			return nil, errors.Errorf("mock service '%s' must name a consumer and a provider", entry)
		}
		serverURL, err := url.Parse(address)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid address for mock service '%s'", entry)
		}

		config := s.Defaults
		config.Consumer = consumer
		config.Provider = provider
		config.ServerAddress = *serverURL
		configs = append(configs, config)
	}
	return configs, nil
}

func ConfigureMockService(config mockservice.Config) error {
	return StartServer(&config.ServerAddress, &config)
}
