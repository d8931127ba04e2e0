package health

import (
	"sync"

	"github.com/hashicorp/go-multierror"
)

// MultiChecker aggregates several checkers into one; it is healthy only when
// every registered checker is.
type MultiChecker struct {
	mu       sync.Mutex
	checkers []Checker
}

func NewMultiChecker(checkers ...Checker) *MultiChecker {
	return &MultiChecker{
		checkers: checkers,
	}
}

func (mc *MultiChecker) Check() error {
	mc.mu.Lock()
	checkers := make([]Checker, len(mc.checkers))
	copy(checkers, mc.checkers)
	mc.mu.Unlock()

	var result *multierror.Error
	for _, checker := range checkers {
		result = multierror.Append(result, checker.Check())
	}
	return result.ErrorOrNil()
}

func (mc *MultiChecker) Add(checker Checker) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.checkers = append(mc.checkers, checker)
}
