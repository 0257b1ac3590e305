package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/form3tech-oss/pact-mock/internal/app/configuration"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the admin API and the mock services listed in MOCK_SERVICES",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	settings, err := configuration.NewFromEnv(cmd.Context())
	if err != nil {
		return err
	}
	if err := configureLogging(settings.LogLevel, settings.LogFormat); err != nil {
		return err
	}

	configs, err := settings.ServiceConfigs()
	if err != nil {
		return err
	}
	for _, config := range configs {
		log.Infof("setting up mock service for %s -> %s at %s", config.Consumer, config.Provider, config.ServerAddress.String())
		if err := configuration.ConfigureMockService(config); err != nil {
			return err
		}
	}

	adminServer := configuration.ServeAdminAPI(settings.AdminPort)

	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := adminServer.Shutdown(ctx); err != nil {
		log.WithError(err).Error("unable to stop the admin API")
	}
	configuration.ShutdownAllServers(ctx)
	return nil
}

func configureLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid LOG_LEVEL '%s'", level)
	}
	log.SetLevel(lvl)

	switch format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	default:
		return errors.Errorf("invalid LOG_FORMAT '%s', expected text or json", format)
	}
	return nil
}
