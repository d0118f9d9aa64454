// Package client is a typed Go client for a ClipSync relay. It mints pair
// credentials over HTTP and exchanges clipboard and file-transfer frames over
// the relay's websocket surface. It is used by the e2e tests and by tooling;
// device integrations (clipboard capture, file I/O) live outside this module.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/clipsync/clipsync/controlplane/mint"
	"github.com/clipsync/clipsync/realtime/ws"
	"github.com/clipsync/clipsync/relay/protocol"
)

var (
	ErrMissingBaseURL = errors.New("missing base url")
	ErrMissingPairID  = errors.New("missing pair id")
	ErrMissingToken   = errors.New("missing token")
)

// Options configures a Client.
type Options struct {
	// BaseURL is the http(s) root of the relay, e.g. "http://127.0.0.1:5050".
	BaseURL string
	// DeviceName is presented on connect; the relay substitutes "Unknown"
	// when empty.
	DeviceName string
	// HTTPClient overrides the client used for the mint request.
	HTTPClient *http.Client
}

// Client talks to one relay.
type Client struct {
	baseURL    string
	deviceName string
	httpc      *http.Client
}

// New validates options and returns a Client.
func New(opts Options) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		return nil, ErrMissingBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url scheme %q: want http or https", u.Scheme)
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = http.DefaultClient
	}
	return &Client{baseURL: base, deviceName: opts.DeviceName, httpc: httpc}, nil
}

// MintPair requests fresh pair credentials from the relay.
func (c *Client) MintPair(ctx context.Context) (mint.Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/pair", nil)
	if err != nil {
		return mint.Credentials{}, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return mint.Credentials{}, fmt.Errorf("mint pair: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return mint.Credentials{}, fmt.Errorf("mint pair: unexpected status %d", resp.StatusCode)
	}
	var creds mint.Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return mint.Credentials{}, fmt.Errorf("mint pair: decode: %w", err)
	}
	if !mint.ValidPairID(creds.PairID) || creds.Token == "" {
		return mint.Credentials{}, fmt.Errorf("mint pair: malformed credentials %q", creds.PairID)
	}
	return creds, nil
}

// Connect opens the websocket for one side of a pair. The returned Conn is
// ready to use; the relay's registration status frame is left for the caller
// to read.
func (c *Client) Connect(ctx context.Context, pairID string, token string, role protocol.Role) (*Conn, error) {
	if pairID == "" {
		return nil, ErrMissingPairID
	}
	if token == "" {
		return nil, ErrMissingToken
	}
	q := url.Values{}
	q.Set("pairId", pairID)
	q.Set("token", token)
	q.Set("type", string(role))
	if c.deviceName != "" {
		q.Set("deviceName", c.deviceName)
	}
	wsURL := c.connectURL() + "?" + q.Encode()
	conn, _, err := ws.Dial(ctx, wsURL, ws.DialOptions{})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", role, err)
	}
	return &Conn{ws: conn, role: role}, nil
}

func (c *Client) connectURL() string {
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://") + "/connect"
	default:
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://") + "/connect"
	}
}
