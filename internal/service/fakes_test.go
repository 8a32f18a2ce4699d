package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/LeventeLantos/meme-forwarder/internal/model"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type forwardCall struct {
	channelID int64
	messageID int64
}

type fakePlatform struct {
	mu sync.Mutex

	folders    []model.Folder
	foldersErr error

	subscribers map[int64]int
	infoErrs    map[int64][]error
	infoCalls   map[int64]int

	history     map[int64][]model.Message
	historyErrs map[int64][]error

	forwardErrs []error
	forwarded   []forwardCall
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		subscribers: map[int64]int{},
		infoErrs:    map[int64][]error{},
		infoCalls:   map[int64]int{},
		history:     map[int64][]model.Message{},
		historyErrs: map[int64][]error{},
	}
}

// addChannel registers a channel with subs subscribers in the named folder.
func (p *fakePlatform) addChannel(folder string, id int64, subs int, msgs ...model.Message) model.Channel {
	ch := model.Channel{ID: id, AccessHash: id * 7, Title: "channel"}
	found := false
	for i := range p.folders {
		if p.folders[i].Title == folder {
			p.folders[i].Channels = append(p.folders[i].Channels, ch)
			found = true
		}
	}
	if !found {
		p.folders = append(p.folders, model.Folder{Title: folder, Channels: []model.Channel{ch}})
	}
	p.subscribers[id] = subs
	p.history[id] = msgs
	return ch
}

func (p *fakePlatform) Folders(ctx context.Context) ([]model.Folder, error) {
	if p.foldersErr != nil {
		return nil, p.foldersErr
	}
	return p.folders, nil
}

func (p *fakePlatform) ChannelInfo(ctx context.Context, ch model.Channel) (model.ChannelInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.infoCalls[ch.ID]++
	if errs := p.infoErrs[ch.ID]; len(errs) > 0 {
		p.infoErrs[ch.ID] = errs[1:]
		return model.ChannelInfo{}, errs[0]
	}
	return model.ChannelInfo{Subscribers: p.subscribers[ch.ID]}, nil
}

func (p *fakePlatform) History(ctx context.Context, ch model.Channel, afterID int64, limit int) ([]model.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if errs := p.historyErrs[ch.ID]; len(errs) > 0 {
		p.historyErrs[ch.ID] = errs[1:]
		return nil, errs[0]
	}

	var out []model.Message
	for _, m := range p.history[ch.ID] {
		if m.ID > afterID {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *fakePlatform) Forward(ctx context.Context, from model.Channel, msg model.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.forwardErrs) > 0 {
		err := p.forwardErrs[0]
		p.forwardErrs = p.forwardErrs[1:]
		if err != nil {
			return err
		}
	}
	p.forwarded = append(p.forwarded, forwardCall{channelID: from.ID, messageID: msg.ID})
	return nil
}

func (p *fakePlatform) forwardedCalls() []forwardCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]forwardCall(nil), p.forwarded...)
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: t0}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	return nil
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type memRepo struct {
	mu      sync.Mutex
	data    map[string]int64
	loadErr error
	saveErr error
	saves   int
}

func newMemRepo() *memRepo {
	return &memRepo{data: map[string]int64{}}
}

func (r *memRepo) Load(ctx context.Context) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loadErr != nil {
		return nil, r.loadErr
	}
	out := make(map[string]int64, len(r.data))
	for k, v := range r.data {
		out[k] = v
	}
	return out, nil
}

func (r *memRepo) Save(ctx context.Context, key string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.data[key] = id
	return nil
}

func (r *memRepo) get(key string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data[key]
}

// meme builds an aged photo message with the given reaction counts.
func meme(id int64, age time.Duration, positive, negative int) model.Message {
	var reactions []model.ReactionCount
	if positive > 0 {
		reactions = append(reactions, model.ReactionCount{Reaction: model.Emoji("😂"), Count: positive})
	}
	if negative > 0 {
		reactions = append(reactions, model.ReactionCount{Reaction: model.Emoji("👎"), Count: negative})
	}
	return model.Message{
		ID:        id,
		Date:      t0.Add(-age),
		Media:     model.MediaPhoto,
		Reactions: reactions,
	}
}

var errTransient = errors.New("read timeout")
