package health

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// StartupCompleteChecker reports unhealthy until MarkComplete is called,
// so load balancers do not route traffic to an instance that is still wiring up.
type StartupCompleteChecker struct {
	complete atomic.Bool
}

func NewStartupCompleteChecker() *StartupCompleteChecker {
	return &StartupCompleteChecker{}
}

func (c *StartupCompleteChecker) MarkComplete() {
	c.complete.Store(true)
}

func (c *StartupCompleteChecker) Check() error {
	if c.complete.Load() {
		return nil
	}
	return errors.New("startup not complete")
}
