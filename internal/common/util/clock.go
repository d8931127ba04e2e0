package util

import "time"

// Clock supplies job timestamps so tests can pin them.
type Clock interface {
	Now() time.Time
}

// WallClock reads the system time.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }

// FrozenClock reports the same instant on every call.
type FrozenClock struct {
	T time.Time
}

func (c *FrozenClock) Now() time.Time { return c.T }
