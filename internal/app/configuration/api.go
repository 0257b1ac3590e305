package configuration

import (
	"fmt"
	"net/http"

	"github.com/form3tech-oss/pact-mock/internal/app/httpresponse"
	"github.com/form3tech-oss/pact-mock/internal/app/mockservice"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// ServeAdminAPI starts the API used to create and remove mock services at
// runtime.
func ServeAdminAPI(port int) *echo.Echo {
	adminServer := echo.New()
	adminServer.HideBanner = true

	adminServer.DELETE("/mock-services", deleteMockServicesHandler)
	adminServer.POST("/mock-services", postMockServicesHandler)
	adminServer.GET("/ready", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	go func() {
		address := fmt.Sprintf(":%d", port)
		if err := adminServer.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	return adminServer
}

func deleteMockServicesHandler(c echo.Context) error {
	log.Infof("closing all mock services")
	ShutdownAllServers(c.Request().Context())
	return c.NoContent(http.StatusNoContent)
}

func postMockServicesHandler(c echo.Context) error {
	config := mockservice.Config{}
	err := c.Bind(&config)
	if err != nil {
		return httpresponse.Reply(c, http.StatusBadRequest, "unable to parse mock service configuration. %s", err.Error())
	}
	if config.PactDir == "" {
		config.PactDir = mockservice.DefaultPactDir
	}

	log.Infof("setting up mock service for %s -> %s at %s", config.Consumer, config.Provider, config.ServerAddress.String())

	err = ConfigureMockService(config)
	if err != nil {
		return httpresponse.Reply(c, http.StatusInternalServerError, "unable to create mock service from configuration. %s", err.Error())
	}

	return c.NoContent(http.StatusCreated)
}
