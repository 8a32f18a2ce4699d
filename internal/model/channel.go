package model

import "strconv"

type Channel struct {
	ID         int64
	AccessHash int64
	Title      string
	Folder     string
}

// Key is the ledger key for the channel.
func (c Channel) Key() string {
	return strconv.FormatInt(c.ID, 10)
}

// ChannelInfo is the per-sweep metadata of a channel. Title is empty when
// the platform did not report one.
type ChannelInfo struct {
	Title       string
	Subscribers int
}

type Folder struct {
	Title    string
	Channels []Channel
}
