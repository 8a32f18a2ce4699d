package service

import (
	"time"

	"github.com/LeventeLantos/meme-forwarder/internal/model"
	"github.com/LeventeLantos/meme-forwarder/internal/quota"
	"github.com/LeventeLantos/meme-forwarder/internal/scoring"
)

type DecisionKind int

const (
	Forward DecisionKind = iota
	SkipNotPhoto
	SkipSeen
	SkipTooYoung
	SkipNoReactions
	SkipLowScore
	DeferQuota
	DeferGap
)

func (k DecisionKind) String() string {
	switch k {
	case Forward:
		return "forward"
	case SkipNotPhoto:
		return "not_photo"
	case SkipSeen:
		return "seen"
	case SkipTooYoung:
		return "too_young"
	case SkipNoReactions:
		return "no_reactions"
	case SkipLowScore:
		return "low_score"
	case DeferQuota:
		return "quota_exhausted"
	case DeferGap:
		return "min_gap"
	default:
		return "unknown"
	}
}

type Decision struct {
	Kind DecisionKind
	// Funny is set once the reaction check has passed.
	Funny      float64
	RetryAfter time.Duration
}

type GateConfig struct {
	FunnyCoefficient     float64
	SpreadingCoefficient float64
	MinAge               time.Duration
	Positive             scoring.ReactionSet
	Negative             scoring.ReactionSet
}

// Gate decides per message whether it should be forwarded now.
type Gate struct {
	cfg   GateConfig
	quota *quota.Quota
}

func NewGate(cfg GateConfig, q *quota.Quota) *Gate {
	return &Gate{cfg: cfg, quota: q}
}

// Evaluate applies the checks in a fixed order and reports the first one
// that fails. The quota is only consulted, never consumed.
func (g *Gate) Evaluate(ch ResolvedChannel, msg model.Message, lastSeen int64, now time.Time) Decision {
	if msg.Media != model.MediaPhoto {
		return Decision{Kind: SkipNotPhoto}
	}
	if msg.ID <= lastSeen {
		return Decision{Kind: SkipSeen}
	}
	if msg.Age(now) < g.cfg.MinAge {
		return Decision{Kind: SkipTooYoung}
	}

	funny, ok := scoring.Funny(msg.Reactions, g.cfg.Positive, g.cfg.Negative)
	if !ok {
		return Decision{Kind: SkipNoReactions}
	}
	if funny < g.cfg.FunnyCoefficient || ch.Involvement < g.cfg.SpreadingCoefficient {
		return Decision{Kind: SkipLowScore, Funny: funny}
	}

	allowed, retryAfter, reason := g.quota.Check(now)
	if !allowed {
		kind := DeferGap
		if reason == quota.ReasonExhausted {
			kind = DeferQuota
		}
		return Decision{Kind: kind, Funny: funny, RetryAfter: retryAfter}
	}

	return Decision{Kind: Forward, Funny: funny}
}
