// Package quota bounds how many forwards may go out within a window and how
// close together two forwards may be.
package quota

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Reason string

const (
	ReasonNone      Reason = ""
	ReasonExhausted Reason = "window_exhausted"
	ReasonGap       Reason = "min_gap"
)

type Status struct {
	Max          int       `json:"max"`
	SentInWindow int       `json:"sentInWindow"`
	WindowStart  time.Time `json:"windowStart,omitempty"`
	LastSend     time.Time `json:"lastSend,omitempty"`
	Window       string    `json:"window"`
	MinGap       string    `json:"minGap"`
}

// Quota keeps a sliding log of the most recent sends, so any interval of
// length window holds at most max sends.
type Quota struct {
	max    int
	window time.Duration
	minGap time.Duration

	mu       sync.Mutex
	sends    []time.Time
	lastSend time.Time
	gap      *rate.Limiter // nil when minGap is 0
}

func New(max int, window, minGap time.Duration) (*Quota, error) {
	if max <= 0 {
		return nil, errors.New("max must be > 0")
	}
	if window <= 0 {
		return nil, errors.New("window must be > 0")
	}
	if minGap < 0 {
		return nil, errors.New("minGap must be >= 0")
	}

	q := &Quota{
		max:    max,
		window: window,
		minGap: minGap,
		sends:  make([]time.Time, 0, max),
	}
	if minGap > 0 {
		q.gap = rate.NewLimiter(rate.Every(minGap), 1)
	}
	return q, nil
}

// Check reports whether a send at now is allowed. When it is not, retryAfter
// is the earliest delay after which the same check can pass.
func (q *Quota) Check(now time.Time) (ok bool, retryAfter time.Duration, reason Reason) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.prune(now)

	if len(q.sends) >= q.max {
		return false, q.window - now.Sub(q.sends[0]), ReasonExhausted
	}

	if q.gap != nil && q.gap.TokensAt(now) < 1 {
		wait := q.minGap - now.Sub(q.lastSend)
		if wait <= 0 {
			wait = time.Millisecond
		}
		return false, wait, ReasonGap
	}

	return true, 0, ReasonNone
}

// Record registers a send at now.
func (q *Quota) Record(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.prune(now)
	if len(q.sends) == q.max {
		q.sends = q.sends[1:]
	}
	q.sends = append(q.sends, now)
	q.lastSend = now
	if q.gap != nil {
		q.gap.AllowN(now, 1)
	}
}

func (q *Quota) Status(now time.Time) Status {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.prune(now)
	st := Status{
		Max:          q.max,
		SentInWindow: len(q.sends),
		LastSend:     q.lastSend,
		Window:       q.window.String(),
		MinGap:       q.minGap.String(),
	}
	if len(q.sends) > 0 {
		st.WindowStart = q.sends[0]
	}
	return st
}

func (q *Quota) prune(now time.Time) {
	i := 0
	for i < len(q.sends) && now.Sub(q.sends[i]) >= q.window {
		i++
	}
	if i > 0 {
		q.sends = append(q.sends[:0], q.sends[i:]...)
	}
}
