// Package scoring computes the funny and involvement scores used to decide
// whether a message is worth forwarding.
package scoring

import "github.com/LeventeLantos/meme-forwarder/internal/model"

// ReactionSet is a set of emoji labels.
type ReactionSet map[string]struct{}

func NewReactionSet(labels []string) ReactionSet {
	s := make(ReactionSet, len(labels))
	for _, l := range labels {
		s[l] = struct{}{}
	}
	return s
}

func (s ReactionSet) Contains(label string) bool {
	_, ok := s[label]
	return ok
}

type Counts struct {
	Positive int
	Negative int
}

func (c Counts) Total() int {
	return c.Positive + c.Negative
}

// Tally sums the reaction counts that fall into the positive and negative
// sets. Only emoji reactions are ever counted.
func Tally(reactions []model.ReactionCount, positive, negative ReactionSet) Counts {
	var c Counts
	for _, rc := range reactions {
		switch rc.Reaction.Kind {
		case model.ReactionEmoji:
			if positive.Contains(rc.Reaction.Emoticon) {
				c.Positive += rc.Count
			}
			if negative.Contains(rc.Reaction.Emoticon) {
				c.Negative += rc.Count
			}
		case model.ReactionCustom, model.ReactionOther:
		}
	}
	return c
}

// Funny returns positive/total. ok is false when no reaction matched either
// set, in which case the score is undefined.
func Funny(reactions []model.ReactionCount, positive, negative ReactionSet) (score float64, ok bool) {
	c := Tally(reactions, positive, negative)
	if c.Total() <= 0 {
		return 0, false
	}
	return float64(c.Positive) / float64(c.Total()), true
}

// Involvement scales a channel's subscriber count.
func Involvement(subscribers int, coefficient float64) float64 {
	return float64(subscribers) * coefficient
}
