package client

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/bryanwahyu/trapscan/internal/domain/apperr"
	"github.com/bryanwahyu/trapscan/internal/domain/jobs"
)

// Await opens the events socket for pageURL and blocks until the daemon
// pushes a finished job view or closes the stream. The last view seen is
// returned.
func (c *Client) Await(ctx context.Context, pageURL string) (jobs.View, error) {
	wsURL := c.BaseURL
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	wsURL += "/v1/analyses/events?" + url.Values{"url": {pageURL}}.Encode()

	header := http.Header{}
	if c.APIKey != "" {
		header.Set("X-API-Key", c.APIKey)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return jobs.View{}, &apperr.Error{Kind: kindForStatus(resp.StatusCode), Message: "events stream refused", Status: resp.StatusCode}
		}
		return jobs.View{}, apperr.Wrap(apperr.KindNetwork, "events stream unreachable", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	var last jobs.View
	for {
		var v jobs.View
		err := conn.ReadJSON(&v)
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return last, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return last, apperr.Wrap(apperr.KindOf(ctxErr), "waiting for analysis", ctxErr)
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return last, apperr.Wrap(apperr.KindNetwork, "events stream closed", err)
			}
			return last, apperr.Wrap(apperr.KindNetwork, "read event", err)
		}
		last = v
		if v.Status == jobs.StatusComplete || v.Status == jobs.StatusError {
			return last, nil
		}
	}
}
