package client

import (
	"context"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/vidfetch/vidfetch/internal/vidfetch/gateway"
)

// WatchFunc receives every frame the backend pushes. Returning true ends
// the watch.
type WatchFunc func(message gateway.Message) bool

// Watch subscribes to the backend's event stream and feeds frames to
// onMessage until it returns true, the context is cancelled, or the
// connection drops. An empty downloadId subscribes to every job.
func (c *Client) Watch(ctx context.Context, downloadId string, onMessage WatchFunc) error {
	wsUrl, err := c.websocketUrl()
	if err != nil {
		return err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsUrl, nil)
	if err != nil {
		return errors.Wrapf(err, "error dialing %s", wsUrl)
	}
	defer conn.Close()

	command := gateway.Command{Action: gateway.ActionSubscribeAll}
	if downloadId != "" {
		command = gateway.Command{Action: gateway.ActionSubscribe, DownloadID: downloadId}
	}
	if err := conn.WriteJSON(command); err != nil {
		return errors.Wrap(err, "error subscribing")
	}

	// Closing the connection is the only way to unblock ReadJSON when the
	// caller gives up.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	for {
		var message gateway.Message
		if err := conn.ReadJSON(&message); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "error reading event stream")
		}
		if onMessage(message) {
			return nil
		}
	}
}

func (c *Client) websocketUrl() (string, error) {
	parsed, err := url.Parse(c.baseUrl)
	if err != nil {
		return "", errors.Wrapf(err, "error parsing backend url %s", c.baseUrl)
	}
	switch parsed.Scheme {
	case "https":
		parsed.Scheme = "wss"
	default:
		parsed.Scheme = "ws"
	}
	parsed.Path = "/ws"
	return parsed.String(), nil
}
