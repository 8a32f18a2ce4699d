package model

import "time"

type MediaKind int

const (
	MediaNone MediaKind = iota
	MediaPhoto
	MediaOther
)

func (k MediaKind) String() string {
	switch k {
	case MediaPhoto:
		return "photo"
	case MediaOther:
		return "other"
	default:
		return "none"
	}
}

type ReactionKind int

const (
	ReactionEmoji ReactionKind = iota
	ReactionCustom
	ReactionOther
)

// Reaction is one reaction variant. Emoticon is set for ReactionEmoji,
// DocumentID for ReactionCustom.
type Reaction struct {
	Kind       ReactionKind
	Emoticon   string
	DocumentID int64
}

func Emoji(e string) Reaction {
	return Reaction{Kind: ReactionEmoji, Emoticon: e}
}

type ReactionCount struct {
	Reaction Reaction
	Count    int
}

type Message struct {
	ID        int64
	Date      time.Time
	Media     MediaKind
	Reactions []ReactionCount
}

func (m Message) Age(now time.Time) time.Duration {
	return now.Sub(m.Date)
}
