package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/five82/eaglebridge/internal/wire"
)

// ErrRejected is returned when the Responder answers with a 4xx/5xx status
// or an {success:false} acknowledgement.
var ErrRejected = errors.New("request rejected")

// Client talks to the Responder's HTTP API on one host:port.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	userAgent string
}

const (
	defaultHost      = "127.0.0.1"
	defaultUserAgent = "eaglebridge/0.1"

	PingTimeout     = 5 * time.Second
	RequestTimeout  = 5 * time.Second
	PortInfoTimeout = 1 * time.Second
	SettingsTimeout = 3 * time.Second
)

// NewClient builds a Client for host:port.
func NewClient(host string, port int) (*Client, error) {
	if strings.TrimSpace(host) == "" {
		host = defaultHost
	}
	base, err := parseBaseURL(net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL:   base,
		http:      &http.Client{},
		userAgent: defaultUserAgent,
	}, nil
}

// WithPort returns a copy of c addressing the same host on port. The
// underlying connection pool is shared.
func (c *Client) WithPort(port int) *Client {
	u := *c.baseURL
	u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	return &Client{baseURL: &u, http: c.http, userAgent: c.userAgent}
}

// Port returns the port this client addresses.
func (c *Client) Port() int {
	p, _ := strconv.Atoi(c.baseURL.Port())
	return p
}

// Ping probes GET /ping. A reply without pong:true is malformed.
func (c *Client) Ping(ctx context.Context) (wire.PingResponse, error) {
	var payload wire.PingResponse
	if err := c.do(ctx, PingTimeout, http.MethodGet, &url.URL{Path: "/ping"}, nil, &payload); err != nil {
		return wire.PingResponse{}, err
	}
	if !payload.Pong {
		return payload, fmt.Errorf("%w: ping without pong", wire.ErrMalformedResponse)
	}
	return payload, nil
}

// FetchMessages drains the Responder queue for clientID. Shipped logs ride
// along in the same response.
func (c *Client) FetchMessages(ctx context.Context, clientID string) (wire.MessagesResponse, error) {
	values := url.Values{}
	if clientID != "" {
		values.Set("clientId", clientID)
	}
	rel := &url.URL{Path: "/messages", RawQuery: values.Encode()}
	var payload wire.MessagesResponse
	if err := c.do(ctx, RequestTimeout, http.MethodGet, rel, nil, &payload); err != nil {
		return wire.MessagesResponse{}, err
	}
	return payload, nil
}

// PostMessage sends env to /<event>-message. An empty event posts to
// /ae-message.
func (c *Client) PostMessage(ctx context.Context, event string, env wire.Envelope) error {
	event = strings.TrimSpace(event)
	if event == "" {
		event = "ae"
	}
	return c.ack(ctx, RequestTimeout, "/"+event+"-message", env, nil)
}

// FetchStatus reads GET /ae-status.
func (c *Client) FetchStatus(ctx context.Context) (wire.StatusResponse, error) {
	var payload wire.StatusResponse
	if err := c.do(ctx, RequestTimeout, http.MethodGet, &url.URL{Path: "/ae-status"}, nil, &payload); err != nil {
		return wire.StatusResponse{}, err
	}
	return payload, nil
}

// PushSettings posts a settings update. The returned Ack reports whether the
// Responder moved its listener.
func (c *Client) PushSettings(ctx context.Context, update wire.SettingsUpdate) (wire.Ack, error) {
	var ack wire.Ack
	err := c.ack(ctx, SettingsTimeout, "/settings-sync", update, &ack)
	return ack, err
}

// SendPortInfo announces the Initiator's port. The returned Ack reports
// whether the Responder is moving to it.
func (c *Client) SendPortInfo(ctx context.Context, info wire.PortInfo) (wire.Ack, error) {
	var ack wire.Ack
	err := c.ack(ctx, PortInfoTimeout, "/ae-port-info", info, &ack)
	return ack, err
}

// ShipLogs posts Initiator-sourced log entries to the Responder.
func (c *Client) ShipLogs(ctx context.Context, entries []wire.LogEntry) (int, error) {
	var ack wire.Ack
	if err := c.ack(ctx, RequestTimeout, "/eagle-logs", wire.LogsPayload{Logs: entries}, &ack); err != nil {
		return 0, err
	}
	return ack.Received, nil
}

// ClearLogs asks the Responder to wipe its log buffer.
func (c *Client) ClearLogs(ctx context.Context) error {
	return c.ack(ctx, RequestTimeout, "/clear-logs", nil, nil)
}

func (c *Client) ack(ctx context.Context, timeout time.Duration, path string, body any, dest *wire.Ack) error {
	var ack wire.Ack
	if err := c.do(ctx, timeout, http.MethodPost, &url.URL{Path: path}, body, &ack); err != nil {
		return err
	}
	if dest != nil {
		*dest = ack
	}
	if !ack.Success {
		return fmt.Errorf("%w: %s: %s", ErrRejected, path, ack.Error)
	}
	return nil
}

func (c *Client) do(ctx context.Context, timeout time.Duration, method string, rel *url.URL, body, dest any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	reqURL := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wire.Classify(fmt.Errorf("execute request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var ack wire.Ack
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&ack)
		if ack.Error != "" {
			return fmt.Errorf("%w: api %s returned status %d: %s", ErrRejected, rel.Path, resp.StatusCode, ack.Error)
		}
		return fmt.Errorf("%w: api %s returned status %d", ErrRejected, rel.Path, resp.StatusCode)
	}
	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		if ctx.Err() != nil {
			return wire.Classify(fmt.Errorf("decode response: %w", ctx.Err()))
		}
		return fmt.Errorf("%w: decode response: %w", wire.ErrMalformedResponse, err)
	}
	return nil
}

func parseBaseURL(hostPort string) (*url.URL, error) {
	trimmed := strings.TrimSpace(hostPort)
	if trimmed == "" {
		trimmed = net.JoinHostPort(defaultHost, "8080")
	}
	if !strings.Contains(trimmed, "://") {
		trimmed = "http://" + trimmed
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse address %q: %w", hostPort, err)
	}
	u.Path = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}
