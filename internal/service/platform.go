package service

import (
	"context"
	"time"

	"github.com/LeventeLantos/meme-forwarder/internal/model"
)

// Platform is the messaging platform the forwarder reads from and writes to.
type Platform interface {
	Folders(ctx context.Context) ([]model.Folder, error)
	ChannelInfo(ctx context.Context, ch model.Channel) (model.ChannelInfo, error)
	// History returns up to limit messages with ID > afterID, oldest first.
	// When more exist, the oldest ones are returned so the next call picks up
	// where this one ended.
	History(ctx context.Context, ch model.Channel, afterID int64, limit int) ([]model.Message, error)
	Forward(ctx context.Context, from model.Channel, msg model.Message) error
}

type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
