package repo

import "context"

// LedgerRepository persists the per-channel forwarding watermark.
type LedgerRepository interface {
	// Load returns every stored watermark keyed by channel.
	Load(ctx context.Context) (map[string]int64, error)

	// Save stores messageID as the watermark for channelKey.
	Save(ctx context.Context, channelKey string, messageID int64) error
}
