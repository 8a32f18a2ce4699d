package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/LeventeLantos/meme-forwarder/internal/metrics"
	"github.com/LeventeLantos/meme-forwarder/internal/model"
	"github.com/LeventeLantos/meme-forwarder/internal/quota"
)

type ForwarderConfig struct {
	Folders              []string
	HistoryDepth         int
	IterationMaxAttempts int
	IterationRetryDelay  time.Duration
	SendMaxAttempts      int
}

// ForwardedEvent describes one successful forward.
type ForwardedEvent struct {
	Channel     ResolvedChannel
	Message     model.Message
	FunnyScore  float64
	ForwardedAt time.Time
}

type SweepStats struct {
	Channels        int
	ChannelsSkipped int
	Evaluated       int
	Forwarded       int
	QuotaExhausted  bool
}

// Forwarder runs sweeps: resolve the source channels, walk each channel's new
// messages oldest first and forward those the gate lets through.
type Forwarder struct {
	platform Platform
	resolver *Resolver
	gate     *Gate
	quota    *quota.Quota
	ledger   *Ledger
	cfg      ForwarderConfig
	logger   *slog.Logger

	now   func() time.Time
	sleep SleepFunc

	onForwarded func(ctx context.Context, ev ForwardedEvent) error
}

func NewForwarder(
	p Platform,
	resolver *Resolver,
	gate *Gate,
	q *quota.Quota,
	ledger *Ledger,
	cfg ForwarderConfig,
	logger *slog.Logger,
) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.IterationMaxAttempts <= 0 {
		cfg.IterationMaxAttempts = 1
	}
	if cfg.SendMaxAttempts <= 0 {
		cfg.SendMaxAttempts = 1
	}
	return &Forwarder{
		platform: p,
		resolver: resolver,
		gate:     gate,
		quota:    q,
		ledger:   ledger,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// WithClock replaces the wall clock and the sleeper, for tests.
func (f *Forwarder) WithClock(now func() time.Time, sleep SleepFunc) *Forwarder {
	f.now = now
	f.sleep = sleep
	return f
}

func (f *Forwarder) WithHooks(onForwarded func(ctx context.Context, ev ForwardedEvent) error) *Forwarder {
	f.onForwarded = onForwarded
	return f
}

// Sweep performs one full pass over the configured folders. It returns an
// error only when the folders cannot be listed or ctx is done; per-channel
// faults are logged and skipped.
func (f *Forwarder) Sweep(ctx context.Context) (SweepStats, error) {
	start := time.Now()
	var stats SweepStats

	channels, err := f.resolver.Resolve(ctx, f.cfg.Folders)
	if err != nil {
		return stats, fmt.Errorf("resolve channels: %w", err)
	}
	stats.Channels = len(channels)

	for _, ch := range channels {
		stop, err := f.walkChannel(ctx, ch, &stats)
		if err != nil {
			return stats, err
		}
		if stop {
			break
		}
	}

	metrics.SweepsTotal.Inc()
	metrics.SweepDuration.Observe(time.Since(start).Seconds())

	f.logger.Info("sweep completed",
		"channels", stats.Channels,
		"channels_skipped", stats.ChannelsSkipped,
		"evaluated", stats.Evaluated,
		"forwarded", stats.Forwarded,
		"quota_exhausted", stats.QuotaExhausted,
	)
	return stats, nil
}

// walkChannel reports stop=true when the quota is exhausted and the sweep
// should end. err is only set when ctx is done.
func (f *Forwarder) walkChannel(ctx context.Context, ch ResolvedChannel, stats *SweepStats) (stop bool, err error) {
	key := ch.Channel.Key()
	log := f.logger.With("channel", key, "title", ch.Channel.Title)

	msgs, err := f.history(ctx, ch.Channel, f.ledger.LastSeen(key))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		reason := "history_error"
		if errors.Is(err, model.ErrChannelUnavailable) {
			reason = "unavailable"
		}
		metrics.ChannelsSkipped.WithLabelValues(reason).Inc()
		stats.ChannelsSkipped++
		log.Warn("skipping channel", "reason", reason, "error", err)
		return false, nil
	}

	for i := 0; i < len(msgs); {
		msg := msgs[i]
		d := f.gate.Evaluate(ch, msg, f.ledger.LastSeen(key), f.now())
		metrics.MessagesEvaluated.WithLabelValues(d.Kind.String()).Inc()

		if d.Kind == DeferGap {
			log.Debug("waiting for send gap", "message_id", msg.ID, "wait", d.RetryAfter.String())
			if err := f.sleep(ctx, d.RetryAfter); err != nil {
				return false, err
			}
			continue
		}
		stats.Evaluated++

		switch d.Kind {
		case DeferQuota:
			stats.QuotaExhausted = true
			log.Info("send quota exhausted, ending sweep", "message_id", msg.ID, "retry_after", d.RetryAfter.String())
			return true, nil

		case SkipTooYoung:
			log.Debug("message not old enough, stopping channel", "message_id", msg.ID)
			return false, nil

		case Forward:
			if err := f.forward(ctx, ch.Channel, msg); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return false, ctxErr
				}
				log.Error("forward failed, stopping channel", "message_id", msg.ID, "error", err)
				return false, nil
			}
			f.commit(ctx, ch, msg, d)
			stats.Forwarded++

		default:
			log.Debug("message skipped", "message_id", msg.ID, "decision", d.Kind.String())
		}

		i++
	}

	return false, nil
}

func (f *Forwarder) history(ctx context.Context, ch model.Channel, afterID int64) ([]model.Message, error) {
	var lastErr error
	for attempt := 1; attempt <= f.cfg.IterationMaxAttempts; attempt++ {
		msgs, err := f.platform.History(ctx, ch, afterID, f.cfg.HistoryDepth)
		if err == nil {
			return msgs, nil
		}
		if errors.Is(err, model.ErrChannelUnavailable) || ctx.Err() != nil {
			return nil, err
		}
		lastErr = err
		if attempt == f.cfg.IterationMaxAttempts {
			break
		}

		delay := f.cfg.IterationRetryDelay
		if wait, ok := model.AsFloodWait(err); ok {
			metrics.FloodWaits.WithLabelValues("history").Inc()
			delay = wait
		}
		f.logger.Warn("reading history failed, retrying",
			"channel", ch.Key(), "attempt", attempt, "wait", delay.String(), "error", err)
		if err := f.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("read history after %d attempts: %w", f.cfg.IterationMaxAttempts, lastErr)
}

func (f *Forwarder) forward(ctx context.Context, from model.Channel, msg model.Message) error {
	for attempt := 1; ; attempt++ {
		err := f.platform.Forward(ctx, from, msg)
		if err == nil {
			return nil
		}

		wait, ok := model.AsFloodWait(err)
		if !ok {
			return err
		}
		metrics.FloodWaits.WithLabelValues("forward").Inc()
		if attempt >= f.cfg.SendMaxAttempts {
			return fmt.Errorf("forward after %d attempts: %w", attempt, err)
		}

		f.logger.Warn("rate limited forwarding, retrying",
			"channel", from.Key(), "message_id", msg.ID, "attempt", attempt, "wait", wait.String())
		if err := f.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (f *Forwarder) commit(ctx context.Context, ch ResolvedChannel, msg model.Message, d Decision) {
	now := f.now()
	key := ch.Channel.Key()

	f.quota.Record(now)
	metrics.ForwardsTotal.Inc()

	if err := f.ledger.Record(ctx, key, msg.ID); err != nil {
		metrics.LedgerWriteErrors.Inc()
		f.logger.Error("ledger write failed", "channel", key, "message_id", msg.ID, "error", err)
	}

	f.logger.Info("message forwarded",
		"channel", key, "message_id", msg.ID, "funny_score", d.Funny, "involvement", ch.Involvement)

	if f.onForwarded != nil {
		ev := ForwardedEvent{Channel: ch, Message: msg, FunnyScore: d.Funny, ForwardedAt: now}
		if err := f.onForwarded(ctx, ev); err != nil {
			f.logger.Warn("forward hook failed", "channel", key, "message_id", msg.ID, "error", err)
		}
	}
}
