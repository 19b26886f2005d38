package aria2rpc

import (
	"context"
	"fmt"
)

// Updater pushes a tracker set to a running aria2 through its JSON-RPC
// interface.
type Updater struct {
	Client *Client
}

// NewUpdater returns an Updater for client.
func NewUpdater(client *Client) *Updater {
	return &Updater{Client: client}
}

// Apply replaces aria2's live bt-tracker option with trackers. The change is
// not persisted by aria2 itself; use the config file channel for that.
func (u *Updater) Apply(ctx context.Context, trackers []string) error {
	err := u.Client.SetTrackers(ctx, trackers)
	if err != nil {
		log.Errorf("RPC update via %s failed (%s): %v", u.Client.URL(),
			ErrorKind(err), err)
	}

	return err
}

// String describes the updater for log lines.
func (u *Updater) String() string {
	return fmt.Sprintf("rpc %s", u.Client.URL())
}
