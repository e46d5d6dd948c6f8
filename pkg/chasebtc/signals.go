package chasebtc

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
)

// Signals subscribes to the live prediction stream on /ws/signals. The
// returned channel is closed when ctx is done or the connection drops.
func (c *Client) Signals(ctx context.Context) (<-chan PredictResponse, error) {
	u, err := url.Parse(c.baseURL + "/ws/signals")
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", u, err)
	}

	out := make(chan PredictResponse, 8)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()
	go func() {
		defer close(out)
		defer close(done)
		for {
			var p PredictResponse
			if err := conn.ReadJSON(&p); err != nil {
				return
			}
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
