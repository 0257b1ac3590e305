package configuration

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/form3tech-oss/pact-mock/internal/app/mockservice"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	servers   sync.Map
	hostPaths sync.Map
)

// StartServer runs a mock service at url. Several mock services may share a
// host when each is given its own path prefix.
func StartServer(url *url.URL, config *mockservice.Config) error {
	rootServer, loaded := loadServer(url.Host)
	if !loaded {
		rootServer, err := newServer(url, config)
		if err != nil {
			return err
		}
		servers.Store(url.Host, rootServer)
		go func() {
			var err error
			if config.TLSCertFile != "" && config.TLSKeyFile != "" {
				err = rootServer.ListenAndServeTLS(config.TLSCertFile, config.TLSKeyFile)
			} else {
				err = rootServer.ListenAndServe()
			}
			if err != nil && err != http.ErrServerClosed {
				log.Error(err)
			}
		}()
		return nil
	}

	// don't allow two mock services on the same address with an empty path
	if strings.TrimLeft(url.Path, "/") == "" {
		return fmt.Errorf("mock service already running at %s", url.String())
	}

	key := hostPathKey(url)
	if _, found := hostPaths.Load(key); found {
		return fmt.Errorf("mock service already running at %s", url.String())
	}

	e := rootServer.Handler.(*echo.Echo)
	addMockService(e, url.Path, config)
	hostPaths.Store(key, true)
	return nil
}

func loadServer(addr string) (*http.Server, bool) {
	server, loaded := servers.Load(addr)
	if !loaded {
		return nil, false
	}
	return server.(*http.Server), loaded
}

func ShutdownAllServers(ctx context.Context) {
	servers.Range(func(key, _ interface{}) bool {
		server, loaded := servers.LoadAndDelete(key)
		if loaded {
			if err := server.(*http.Server).Shutdown(ctx); err != nil {
				log.Error(err)
			}
		}
		return true
	})

	hostPaths.Range(func(key, _ interface{}) bool {
		hostPaths.Delete(key)
		return true
	})
}

func newServer(url *url.URL, config *mockservice.Config) (*http.Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &http.Server{
		Addr:    url.Host,
		Handler: e,
	}

	if config.TLSCAFile != "" {
		if config.TLSCertFile == "" || config.TLSKeyFile == "" {
			return nil, errors.New("cannot run in mTLS mode without TLS cert and key")
		}

		caCertFile, err := os.ReadFile(config.TLSCAFile)
		if err != nil {
			return nil, errors.Wrap(err, "error reading CA certificate")
		}
		certPool := x509.NewCertPool()
		certPool.AppendCertsFromPEM(caCertFile)
		s.TLSConfig = &tls.Config{
			ClientAuth: tls.RequireAndVerifyClientCert,
			ClientCAs:  certPool,
			MinVersion: tls.VersionTLS12,
		}
	}

	if strings.TrimLeft(url.Path, "/") != "" {
		hostPaths.Store(hostPathKey(url), true)
		addMockService(e, url.Path, config)
		return s, nil
	}

	mockservice.SetupRoutes(e, config)
	return s, nil
}

// addMockService mounts a mock service under path. Requests are rewritten to
// drop the prefix so the mock service sees the consumer's paths.
func addMockService(e *echo.Echo, path string, config *mockservice.Config) {
	prefix := "/" + strings.Trim(path, "/")
	rewrite := middleware.Rewrite(map[string]string{
		prefix:        "/",
		prefix + "/*": "/$1",
	})
	handler := mockservice.NewMockService(config).Handler()
	e.Any(prefix, handler, rewrite)
	e.Any(prefix+"/*", handler, rewrite)
	log.Infof("mock service for %s -> %s mounted at %s", config.Consumer, config.Provider, prefix)
}

func hostPathKey(url *url.URL) string {
	return url.Host + "/" + strings.Trim(url.Path, "/")
}
