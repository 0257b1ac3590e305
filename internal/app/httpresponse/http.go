package httpresponse

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

// APIError is the body the admin API replies with when a request fails.
type APIError struct {
	Status       int    `json:"status"`
	ErrorMessage string `json:"error_message"`
}

func (e *APIError) Error() string {
	return e.ErrorMessage
}

func Errorf(status int, format string, a ...interface{}) *APIError {
	e := &APIError{
		Status:       status,
		ErrorMessage: fmt.Sprintf(format, a...),
	}
	if status >= http.StatusInternalServerError {
		log.Error(e.ErrorMessage)
	} else {
		log.Warn(e.ErrorMessage)
	}
	return e
}

// Reply logs the failure and writes it as JSON with its status.
func Reply(c echo.Context, status int, format string, a ...interface{}) error {
	e := Errorf(status, format, a...)
	return c.JSON(e.Status, e)
}
