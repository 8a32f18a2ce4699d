package cache

import (
	"context"
	"time"
)

type ForwardRecord struct {
	ChannelKey  string
	MessageID   int64
	Target      string
	FunnyScore  float64
	Involvement float64
	ForwardedAt time.Time
}

// ForwardCache keeps a short-lived audit trail of forwarded messages.
type ForwardCache interface {
	StoreForwarded(ctx context.Context, rec ForwardRecord) error
}
