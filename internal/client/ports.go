package client

import (
	"context"

	"github.com/five82/eaglebridge/internal/wire"
)

// Ports addresses the client's host on arbitrary ports. Port negotiation
// sweeps candidates through it.
type Ports struct {
	c *Client
}

// Ports returns a port-addressed view of c.
func (c *Client) Ports() Ports {
	return Ports{c: c}
}

// Ping probes /ping on port.
func (p Ports) Ping(ctx context.Context, port int) (wire.PingResponse, error) {
	return p.c.WithPort(port).Ping(ctx)
}

// SendPortInfo announces the local port to the Responder on port.
func (p Ports) SendPortInfo(ctx context.Context, port int, info wire.PortInfo) (wire.Ack, error) {
	return p.c.WithPort(port).SendPortInfo(ctx, info)
}

// PushSettings pushes update to the Responder on port.
func (p Ports) PushSettings(ctx context.Context, port int, update wire.SettingsUpdate) (wire.Ack, error) {
	return p.c.WithPort(port).PushSettings(ctx, update)
}
