package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/LeventeLantos/meme-forwarder/internal/metrics"
	"github.com/LeventeLantos/meme-forwarder/internal/model"
	"github.com/LeventeLantos/meme-forwarder/internal/scoring"
)

// ResolvedChannel is a source channel together with its engagement data for
// the current sweep.
type ResolvedChannel struct {
	Channel     model.Channel
	Subscribers int
	Involvement float64
}

type Resolver struct {
	platform        Platform
	involvementCoef float64
	maxAttempts     int
	sleep           SleepFunc
	logger          *slog.Logger
}

func NewResolver(p Platform, involvementCoef float64, maxAttempts int, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &Resolver{
		platform:        p,
		involvementCoef: involvementCoef,
		maxAttempts:     maxAttempts,
		sleep:           sleepCtx,
		logger:          logger,
	}
}

func (r *Resolver) WithSleep(fn SleepFunc) *Resolver {
	r.sleep = fn
	return r
}

// Resolve lists the channels of the named folders in folder order. A channel
// listed in several folders is returned once, under the first folder that
// names it. Channels whose metadata cannot be read are left out.
func (r *Resolver) Resolve(ctx context.Context, folderNames []string) ([]ResolvedChannel, error) {
	folders, err := r.platform.Folders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}

	byTitle := make(map[string]model.Folder, len(folders))
	for _, f := range folders {
		if _, dup := byTitle[f.Title]; !dup {
			byTitle[f.Title] = f
		}
	}

	var (
		out  []ResolvedChannel
		seen = make(map[int64]struct{})
	)

	for _, name := range folderNames {
		f, ok := byTitle[name]
		if !ok {
			r.logger.Warn("folder not found", "folder", name)
			continue
		}

		for _, ch := range f.Channels {
			if _, dup := seen[ch.ID]; dup {
				continue
			}
			seen[ch.ID] = struct{}{}
			ch.Folder = name

			info, err := r.channelInfo(ctx, ch)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return out, ctxErr
				}
				reason := "error"
				if errors.Is(err, model.ErrChannelUnavailable) {
					reason = "unavailable"
				}
				metrics.ChannelsSkipped.WithLabelValues(reason).Inc()
				r.logger.Warn("skipping channel", "channel", ch.Key(), "title", ch.Title, "reason", reason, "error", err)
				continue
			}
			if info.Title != "" {
				ch.Title = info.Title
			}

			out = append(out, ResolvedChannel{
				Channel:     ch,
				Subscribers: info.Subscribers,
				Involvement: scoring.Involvement(info.Subscribers, r.involvementCoef),
			})
		}
	}

	return out, nil
}

func (r *Resolver) channelInfo(ctx context.Context, ch model.Channel) (model.ChannelInfo, error) {
	for attempt := 1; ; attempt++ {
		info, err := r.platform.ChannelInfo(ctx, ch)
		if err == nil {
			return info, nil
		}

		wait, ok := model.AsFloodWait(err)
		if !ok {
			return model.ChannelInfo{}, err
		}
		metrics.FloodWaits.WithLabelValues("channel_info").Inc()

		if attempt >= r.maxAttempts {
			return model.ChannelInfo{}, fmt.Errorf("%w: rate limited after %d attempts: %v", model.ErrChannelUnavailable, attempt, err)
		}

		r.logger.Warn("rate limited reading channel info", "channel", ch.Key(), "wait", wait.String(), "attempt", attempt)
		if err := r.sleep(ctx, wait); err != nil {
			return model.ChannelInfo{}, err
		}
	}
}
