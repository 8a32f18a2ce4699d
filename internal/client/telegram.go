package client

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/message/peer"
	"github.com/gotd/td/telegram/query"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"
	"go.uber.org/zap"

	"github.com/LeventeLantos/meme-forwarder/internal/model"
)

const historyPageSize = 100

// Errors that mean the session cannot read or post to a channel.
var unavailableErrors = []string{
	"CHANNEL_PRIVATE",
	"CHANNEL_INVALID",
	"CHANNEL_PUBLIC_GROUP_NA",
	"CHAT_FORBIDDEN",
}

type TelegramConfig struct {
	APIID         int
	APIHash       string
	StringSession string
	TargetChannel string
}

// Telegram talks MTProto through gotd. Calls other than Run are only valid
// from inside the function passed to Run.
type Telegram struct {
	client *telegram.Client
	api    *tg.Client
	target string
	logger *slog.Logger

	mu         sync.RWMutex
	targetPeer tg.InputPeerClass
}

// NewTelegram builds a client from a Telethon-format string session.
func NewTelegram(cfg TelegramConfig, logger *slog.Logger) (*Telegram, error) {
	if logger == nil {
		logger = slog.Default()
	}

	data, err := session.TelethonSession(cfg.StringSession)
	if err != nil {
		return nil, fmt.Errorf("decode string session: %w", err)
	}

	storage := new(session.StorageMemory)
	loader := session.Loader{Storage: storage}
	if err := loader.Save(context.Background(), data); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}

	zl, err := newZapLogger()
	if err != nil {
		return nil, fmt.Errorf("build client logger: %w", err)
	}

	c := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: storage,
		Logger:         zl,
	})

	return &Telegram{
		client: c,
		api:    c.API(),
		target: cfg.TargetChannel,
		logger: logger,
	}, nil
}

func newZapLogger() (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return zcfg.Build()
}

// Run connects, checks the session is authorized, resolves the target channel
// and then calls fn. The connection closes when fn returns.
func (t *Telegram) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	return t.client.Run(ctx, func(ctx context.Context) error {
		status, err := t.client.Auth().Status(ctx)
		if err != nil {
			return fmt.Errorf("auth status: %w", err)
		}
		if !status.Authorized {
			return errors.New("string session is not authorized")
		}

		p, err := t.resolveTarget(ctx)
		if err != nil {
			return fmt.Errorf("resolve target channel %q: %w", t.target, err)
		}
		t.mu.Lock()
		t.targetPeer = p
		t.mu.Unlock()

		t.logger.Info("telegram client ready", "target", t.target)
		return fn(ctx)
	})
}

// resolveTarget looks a username up directly. A numeric id has no public
// lookup, so it is matched against the session's dialogs.
func (t *Telegram) resolveTarget(ctx context.Context) (tg.InputPeerClass, error) {
	id, numeric := targetID(t.target)
	if !numeric {
		return peer.DefaultResolver(t.api).ResolveDomain(ctx, t.target)
	}

	iter := query.GetDialogs(t.api).Iter()
	for iter.Next(ctx) {
		if p := iter.Value().Peer; peerHasID(p, id) {
			return p, nil
		}
	}
	if err := iter.Err(); err != nil {
		return nil, wrapErr("list dialogs", err)
	}
	return nil, fmt.Errorf("no dialog with id %d", id)
}

// Bot API style ids put channels at -(1e12 + id) and basic groups at -id.
const botAPIChannelOffset = 1_000_000_000_000

// targetID reports whether target is a numeric chat id and returns the bare
// MTProto id.
func targetID(target string) (int64, bool) {
	n, err := strconv.ParseInt(target, 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	switch {
	case n < -botAPIChannelOffset:
		return -n - botAPIChannelOffset, true
	case n < 0:
		return -n, true
	default:
		return n, true
	}
}

func peerHasID(p tg.InputPeerClass, id int64) bool {
	switch p := p.(type) {
	case *tg.InputPeerChannel:
		return p.ChannelID == id
	case *tg.InputPeerChat:
		return p.ChatID == id
	default:
		return false
	}
}

func (t *Telegram) Target() string {
	return t.target
}

func (t *Telegram) Folders(ctx context.Context) ([]model.Folder, error) {
	res, err := t.api.MessagesGetDialogFilters(ctx)
	if err != nil {
		return nil, wrapErr("get dialog filters", err)
	}
	return convertFolders(res.Filters), nil
}

func (t *Telegram) ChannelInfo(ctx context.Context, ch model.Channel) (model.ChannelInfo, error) {
	full, err := t.api.ChannelsGetFullChannel(ctx, &tg.InputChannel{
		ChannelID:  ch.ID,
		AccessHash: ch.AccessHash,
	})
	if err != nil {
		return model.ChannelInfo{}, wrapErr("get full channel", err)
	}

	cf, ok := full.FullChat.(*tg.ChannelFull)
	if !ok {
		return model.ChannelInfo{}, fmt.Errorf("get full channel: unexpected type %T", full.FullChat)
	}

	info := model.ChannelInfo{Subscribers: cf.ParticipantsCount}
	for _, c := range full.Chats {
		if c, ok := c.(*tg.Channel); ok && c.ID == ch.ID {
			info.Title = c.Title
		}
	}
	return info, nil
}

func (t *Telegram) History(ctx context.Context, ch model.Channel, afterID int64, limit int) ([]model.Message, error) {
	return fetchHistory(ctx, t.api, &tg.InputPeerChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}, afterID, limit)
}

type historyGetter interface {
	MessagesGetHistory(ctx context.Context, req *tg.MessagesGetHistoryRequest) (tg.MessagesMessagesClass, error)
}

// fetchHistory pages upward from afterID and returns the oldest limit
// messages above it, oldest first. A negative add_offset makes offset_id the
// lower edge of each page.
func fetchHistory(ctx context.Context, api historyGetter, inputPeer tg.InputPeerClass, afterID int64, limit int) ([]model.Message, error) {
	var (
		out    []model.Message
		cursor = afterID
	)
	for len(out) < limit {
		pageSize := min(historyPageSize, limit-len(out))

		res, err := api.MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
			Peer:      inputPeer,
			OffsetID:  int(cursor) + 1,
			AddOffset: -pageSize,
			Limit:     pageSize,
			MinID:     int(cursor),
		})
		if err != nil {
			return nil, wrapErr("get history", err)
		}

		page, ok := res.AsModified()
		if !ok {
			break
		}
		msgs := page.GetMessages()

		batch := make([]model.Message, 0, len(msgs))
		next := cursor
		for _, m := range msgs {
			id := int64(m.GetID())
			if id <= cursor {
				continue
			}
			next = max(next, id)
			if msg, ok := m.(*tg.Message); ok {
				batch = append(batch, convertMessage(msg))
			}
		}
		slices.SortFunc(batch, func(a, b model.Message) int { return cmp.Compare(a.ID, b.ID) })
		out = append(out, batch...)

		if len(msgs) < pageSize || next == cursor {
			break
		}
		cursor = next
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *Telegram) Forward(ctx context.Context, from model.Channel, msg model.Message) error {
	t.mu.RLock()
	target := t.targetPeer
	t.mu.RUnlock()
	if target == nil {
		return errors.New("target channel not resolved")
	}

	_, err := t.api.MessagesForwardMessages(ctx, &tg.MessagesForwardMessagesRequest{
		FromPeer:   &tg.InputPeerChannel{ChannelID: from.ID, AccessHash: from.AccessHash},
		ID:         []int{int(msg.ID)},
		RandomID:   []int64{rand.Int64()},
		ToPeer:     target,
		DropAuthor: true,
	})
	if err != nil {
		return wrapErr("forward message", err)
	}
	return nil
}

func convertFolders(filters []tg.DialogFilterClass) []model.Folder {
	var out []model.Folder
	for _, f := range filters {
		switch f := f.(type) {
		case *tg.DialogFilter:
			out = append(out, model.Folder{Title: f.Title, Channels: channelPeers(f.PinnedPeers, f.IncludePeers)})
		case *tg.DialogFilterChatlist:
			out = append(out, model.Folder{Title: f.Title, Channels: channelPeers(f.PinnedPeers, f.IncludePeers)})
		}
	}
	return out
}

// channelPeers keeps channel peers only, in order, without repeats.
func channelPeers(lists ...[]tg.InputPeerClass) []model.Channel {
	var (
		out  []model.Channel
		seen = map[int64]struct{}{}
	)
	for _, peers := range lists {
		for _, p := range peers {
			c, ok := p.(*tg.InputPeerChannel)
			if !ok {
				continue
			}
			if _, dup := seen[c.ChannelID]; dup {
				continue
			}
			seen[c.ChannelID] = struct{}{}
			out = append(out, model.Channel{ID: c.ChannelID, AccessHash: c.AccessHash})
		}
	}
	return out
}

func convertMessage(m *tg.Message) model.Message {
	out := model.Message{
		ID:    int64(m.ID),
		Date:  time.Unix(int64(m.Date), 0).UTC(),
		Media: mediaKind(m.Media),
	}
	if r, ok := m.GetReactions(); ok {
		out.Reactions = convertReactions(r.Results)
	}
	return out
}

func mediaKind(media tg.MessageMediaClass) model.MediaKind {
	switch media.(type) {
	case nil, *tg.MessageMediaEmpty:
		return model.MediaNone
	case *tg.MessageMediaPhoto:
		return model.MediaPhoto
	default:
		return model.MediaOther
	}
}

func convertReactions(results []tg.ReactionCount) []model.ReactionCount {
	out := make([]model.ReactionCount, 0, len(results))
	for _, rc := range results {
		var r model.Reaction
		switch v := rc.Reaction.(type) {
		case *tg.ReactionEmoji:
			r = model.Emoji(v.Emoticon)
		case *tg.ReactionCustomEmoji:
			r = model.Reaction{Kind: model.ReactionCustom, DocumentID: v.DocumentID}
		case *tg.ReactionEmpty:
			continue
		default:
			r = model.Reaction{Kind: model.ReactionOther}
		}
		out = append(out, model.ReactionCount{Reaction: r, Count: rc.Count})
	}
	return out
}

// wrapErr maps platform errors onto the model's rate-limit and unavailable
// signals.
func wrapErr(op string, err error) error {
	if wait, ok := tgerr.AsFloodWait(err); ok {
		return fmt.Errorf("%s: %w", op, &model.FloodWaitError{Wait: wait})
	}
	if tgerr.Is(err, unavailableErrors...) {
		return fmt.Errorf("%s: %w: %v", op, model.ErrChannelUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
