package inboxsync

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"nhooyr.io/websocket"
)

// OpenStream dials the push endpoint for the client's user. The returned
// stream stays open until the server closes it, the read fails, or the
// caller's context is cancelled; there is no reconnect.
func (c *HTTPClient) OpenStream(ctx context.Context) (EventStream, error) {
	streamURL, err := c.streamURL()
	if err != nil {
		return nil, err
	}
	conn, resp, err := websocket.Dial(ctx, streamURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + c.token}},
		// A client with a global timeout would sever the long-lived
		// connection; the handshake is bounded by ctx instead.
		HTTPClient: &http.Client{},
	})
	if err != nil {
		if resp != nil {
			return nil, &HTTPError{StatusCode: resp.StatusCode, Message: "event stream handshake rejected"}
		}
		return nil, err
	}
	return &wsStream{conn: conn}, nil
}

func (c *HTTPClient) streamURL() (string, error) {
	parsed, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base URL scheme: %s", parsed.Scheme)
	}
	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/v1/notifications/stream"
	q := url.Values{}
	q.Set("userId", c.userID)
	parsed.RawQuery = q.Encode()
	return parsed.String(), nil
}

type wsStream struct {
	conn *websocket.Conn
}

func (s *wsStream) Next(ctx context.Context) ([]byte, error) {
	_, data, err := s.conn.Read(ctx)
	return data, err
}

func (s *wsStream) Close() error {
	return s.conn.Close(websocket.StatusNormalClosure, "session closed")
}
