package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrChannelUnavailable marks a channel that is private, invalid, deleted or
// otherwise not readable by the session.
var ErrChannelUnavailable = errors.New("channel unavailable")

// FloodWaitError is returned by the platform when a call must not be repeated
// before Wait has elapsed.
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("flood wait %s", e.Wait)
}

// AsFloodWait reports the wait carried by err, if any.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Wait, true
	}
	return 0, false
}
