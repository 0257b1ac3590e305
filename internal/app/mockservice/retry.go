package mockservice

import (
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/pkg/errors"
)

var errNotYet = errors.New("retry")

// retryFor calls do every delay until it returns true or duration elapses,
// and reports whether it succeeded.
func retryFor(do func(timeLeft time.Duration) bool, delay, duration time.Duration) bool {
	start := time.Now()
	err := retry.Do(func() error {
		timeLeft := duration - time.Since(start)
		if !do(timeLeft) {
			return errNotYet
		}
		return nil
	},
		retry.Delay(delay),
		retry.DelayType(retry.FixedDelay),
		retry.Attempts(0),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return err != nil && time.Since(start) <= duration
		}))
	return err == nil
}
